package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// POST /api/v1/master/request
func (s *Server) requestMaster(c *gin.Context) {
	if err := s.lm.Session().Request(); err != nil {
		fieldbusError(c, "MASTER_REQUEST", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.lm.Session().CurrentState().String()})
}

// POST /api/v1/master/activate
func (s *Server) activateMaster(c *gin.Context) {
	if err := s.lm.Session().Activate(); err != nil {
		fieldbusError(c, "MASTER_ACTIVATE", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.lm.Session().CurrentState().String()})
}

// POST /api/v1/master/reset
func (s *Server) resetMaster(c *gin.Context) {
	if err := s.lm.Session().Reset(); err != nil {
		fieldbusError(c, "MASTER_RESET", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.lm.Session().CurrentState().String()})
}

// POST /api/v1/master/release
func (s *Server) releaseMaster(c *gin.Context) {
	if err := s.lm.Session().Release(); err != nil {
		fieldbusError(c, "MASTER_RELEASE", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.lm.Session().CurrentState().String()})
}

// GET /api/v1/master/state
func (s *Server) getMasterState(c *gin.Context) {
	state, err := s.lm.Session().State()
	if err != nil {
		fieldbusError(c, "MASTER_STATE", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_state":     s.lm.Session().CurrentState().String(),
		"slaves_responding": state.SlavesResponding(),
		"al_states":         state.ALStates(),
		"link_up":           state.LinkUp(),
	})
}

// GET /api/v1/master/slaves
func (s *Server) scanSlaves(c *gin.Context) {
	slaves, err := s.lm.Session().Scan()
	if err != nil {
		fieldbusError(c, "SLAVE_SCAN", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slaves": slaves, "count": len(slaves)})
}

// GET /api/v1/master/slaves/:position
func (s *Server) getSlave(c *gin.Context) {
	position, err := strconv.ParseUint(c.Param("position"), 10, 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("SLAVE_400", "Invalid slave position", err.Error()))
		return
	}

	info, err := s.lm.Session().GetSlave(uint16(position))
	if err != nil {
		fieldbusError(c, "SLAVE_GET", err)
		return
	}
	c.JSON(http.StatusOK, info)
}
