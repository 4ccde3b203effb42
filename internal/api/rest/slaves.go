package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenFieldbusCore/internal/profiles"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ConfigureSlaveRequest struct {
	Alias       uint16 `json:"alias"`
	Position    uint16 `json:"position"`
	VendorID    uint32 `json:"vendor_id" binding:"required"`
	ProductCode uint32 `json:"product_code" binding:"required"`
}

type ApplyProfileRequest struct {
	Profile  string `json:"profile" binding:"required"`
	DomainID *int   `json:"domain_id" binding:"required"`
}

type RegisterPdoEntryRequest struct {
	EntryIndex    uint16 `json:"entry_index" binding:"required"`
	EntrySubindex uint8  `json:"entry_subindex"`
	DomainID      *int   `json:"domain_id" binding:"required"`
}

func (s *Server) configParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("CONFIG_400", "Invalid slave config id", err.Error()))
		return 0, false
	}
	return id, true
}

// POST /api/v1/slave-configs
func (s *Server) configureSlave(c *gin.Context) {
	var req ConfigureSlaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("CONFIG_400", "Invalid request body", err.Error()))
		return
	}

	id, err := s.lm.Session().ConfigureSlave(req.Alias, req.Position, req.VendorID, req.ProductCode)
	if err != nil {
		fieldbusError(c, "CONFIG_SLAVE", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"config_id": id})
}

// POST /api/v1/slave-configs/:id/apply-profile
func (s *Server) applyProfile(c *gin.Context) {
	configID, ok := s.configParam(c)
	if !ok {
		return
	}

	var req ApplyProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("CONFIG_400", "Invalid request body", err.Error()))
		return
	}

	profile, err := s.lm.Profiles().Load(req.Profile)
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse("PROFILE_404", "Profile not found", err.Error()))
		return
	}

	offsets, err := profiles.Apply(s.lm.Session(), configID, *req.DomainID, profile)
	if err != nil {
		s.logger.Error("Failed to apply profile",
			zap.String("profile", req.Profile),
			zap.Int("config_id", configID),
			zap.Error(err))
		fieldbusError(c, "PROFILE_APPLY", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profile": req.Profile,
		"offsets": offsets,
	})
}

// POST /api/v1/slave-configs/:id/register
func (s *Server) registerPdoEntry(c *gin.Context) {
	configID, ok := s.configParam(c)
	if !ok {
		return
	}

	var req RegisterPdoEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("CONFIG_400", "Invalid request body", err.Error()))
		return
	}

	offset, err := s.lm.Session().RegisterPdoEntry(configID, req.EntryIndex, req.EntrySubindex, *req.DomainID)
	if err != nil {
		fieldbusError(c, "PDO_REGISTER", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"byte_offset":  offset.Byte,
		"bit_position": offset.Bit,
	})
}
