package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type StartCyclicRequest struct {
	// DomainIDs empty means all registered domains
	DomainIDs []int `json:"domain_ids"`
	// PeriodMs defaults to the configured cycle period
	PeriodMs            int `json:"period_ms"`
	MaxIncompleteCycles int `json:"max_incomplete_cycles"`
}

// POST /api/v1/cyclic/start
func (s *Server) startCyclic(c *gin.Context) {
	var req StartCyclicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("CYCLIC_400", "Invalid request body", err.Error()))
		return
	}

	cfg := s.lm.Config().EtherCAT

	period := cfg.CyclePeriod
	if req.PeriodMs > 0 {
		period = time.Duration(req.PeriodMs) * time.Millisecond
	}

	maxIncomplete := cfg.MaxIncompleteCycles
	if req.MaxIncompleteCycles > 0 {
		maxIncomplete = req.MaxIncompleteCycles
	}

	if err := s.lm.Session().StartCyclic(req.DomainIDs, period, maxIncomplete, nil); err != nil {
		fieldbusError(c, "CYCLIC_START", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"state":     s.lm.Session().CurrentState().String(),
		"period_ms": period.Milliseconds(),
	})
}

// POST /api/v1/cyclic/stop
func (s *Server) stopCyclic(c *gin.Context) {
	if err := s.lm.Session().StopCyclic(); err != nil {
		fieldbusError(c, "CYCLIC_STOP", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.lm.Session().CurrentState().String()})
}

// GET /api/v1/cyclic/status
func (s *Server) getCyclicStatus(c *gin.Context) {
	stats, running := s.lm.Session().EngineStats()
	c.JSON(http.StatusOK, gin.H{
		"running":  running,
		"cycles":   stats.Cycles,
		"overruns": stats.Overruns,
	})
}
