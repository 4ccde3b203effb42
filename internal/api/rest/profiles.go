package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GET /api/v1/profiles
func (s *Server) listProfiles(c *gin.Context) {
	index, err := s.lm.Profiles().Index()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("PROFILE_500", "Failed to read profile index", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": index})
}

// GET /api/v1/profiles/:name
func (s *Server) getProfile(c *gin.Context) {
	profile, err := s.lm.Profiles().Load(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse("PROFILE_404", "Profile not found", err.Error()))
		return
	}
	c.JSON(http.StatusOK, profile)
}
