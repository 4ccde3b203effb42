package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenFieldbusCore/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// GET /api/v1/bus-configs
func (s *Server) listBusConfigs(c *gin.Context) {
	configs, err := s.lm.Storage().ListBusConfigurations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("BUS_500", "Failed to list bus configurations", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"configurations": configs})
}

// POST /api/v1/bus-configs
func (s *Server) saveBusConfig(c *gin.Context) {
	var comp types.BusComposition
	if err := c.ShouldBindJSON(&comp); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("BUS_400", "Invalid request body", err.Error()))
		return
	}
	if comp.Name == "" {
		c.JSON(http.StatusBadRequest, errorResponse("BUS_400", "Missing bus name", nil))
		return
	}

	id, err := s.lm.Storage().SaveOrUpdateBusComposition(c.Request.Context(), comp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("BUS_500", "Failed to save bus configuration", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id, "name": comp.Name})
}

// POST /api/v1/bus-configs/:name/apply
func (s *Server) applyBusConfig(c *gin.Context) {
	name := c.Param("name")

	compositions, err := s.lm.Storage().LoadEnabledBusCompositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("BUS_500", "Failed to load bus configurations", err.Error()))
		return
	}

	for _, comp := range compositions {
		if comp.Name != name {
			continue
		}

		domainIDs, err := s.lm.ApplyComposition(c.Request.Context(), comp)
		if err != nil {
			s.logger.Error("Failed to apply bus composition",
				zap.String("bus", name),
				zap.Error(err))
			fieldbusError(c, "BUS_APPLY", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"name":       name,
			"domain_ids": domainIDs,
		})
		return
	}

	c.JSON(http.StatusNotFound, errorResponse("BUS_404", "Bus configuration not found", name))
}

// DELETE /api/v1/bus-configs/:name
func (s *Server) deleteBusConfig(c *gin.Context) {
	name := c.Param("name")

	if err := s.lm.Storage().DeleteBusConfiguration(c.Request.Context(), name); err != nil {
		if err == pgx.ErrNoRows {
			c.JSON(http.StatusNotFound, errorResponse("BUS_404", "Bus configuration not found", name))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse("BUS_500", "Failed to delete bus configuration", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "bus configuration deleted"})
}

// GET /api/v1/bus-configs/:name/events
func (s *Server) listBusEvents(c *gin.Context) {
	name := c.Param("name")

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse("BUS_400", "Invalid limit", raw))
			return
		}
		limit = parsed
	}

	events, err := s.lm.Storage().ListBusEvents(c.Request.Context(), name, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("BUS_500", "Failed to list bus events", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}
