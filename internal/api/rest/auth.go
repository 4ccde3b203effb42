package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenFieldbusCore/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Login request/response types
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // seconds
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Machine Token Management
type CreateMachineTokenRequest struct {
	Name        string   `json:"name" binding:"required"`
	Permissions []string `json:"permissions"`
}

type CreateMachineTokenResponse struct {
	Token       string    `json:"token"` // Only returned once!
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
}

// Auth handlers
func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("AUTH_400", "Invalid request body", err.Error()))
		return
	}

	authService := c.MustGet("authService").(*auth.AuthService)
	accessToken, refreshToken, err := authService.LoginUser(
		c.Request.Context(),
		req.Username,
		req.Password,
		c.ClientIP(),
		c.GetHeader("User-Agent"),
	)

	if err != nil {
		c.JSON(http.StatusUnauthorized, errorResponse("AUTH_401", "Invalid credentials", nil))
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    3600, // 60 minutes
	})
}

func (s *Server) refreshToken(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("AUTH_400", "Invalid request body", err.Error()))
		return
	}

	authService := c.MustGet("authService").(*auth.AuthService)
	accessToken, newRefreshToken, err := authService.RefreshAccessToken(
		c.Request.Context(),
		req.RefreshToken,
	)

	if err != nil {
		c.JSON(http.StatusUnauthorized, errorResponse("AUTH_401", "Invalid or expired refresh token", nil))
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    3600,
	})
}

func (s *Server) logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("AUTH_400", "Invalid request body", err.Error()))
		return
	}

	authService := c.MustGet("authService").(*auth.AuthService)
	if err := authService.RevokeRefreshToken(c.Request.Context(), req.RefreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("AUTH_500", "Failed to logout", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

func (s *Server) getCurrentUser(c *gin.Context) {
	username, _ := c.Get("username")
	role, _ := c.Get("role")
	permissions, _ := c.Get("permissions")

	c.JSON(http.StatusOK, gin.H{
		"username":    username,
		"role":        role,
		"permissions": permissions,
	})
}

// Machine Token Management (Admin only)
func (s *Server) createMachineToken(c *gin.Context) {
	var req CreateMachineTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("TOKEN_400", "Invalid request body", err.Error()))
		return
	}

	// Default to operator permission if none specified
	if len(req.Permissions) == 0 {
		req.Permissions = []string{"operator"}
	}

	var createdBy *uuid.UUID
	if userID, ok := c.Get("user_id"); ok {
		if id, ok := userID.(uuid.UUID); ok {
			createdBy = &id
		}
	}

	authService := c.MustGet("authService").(*auth.AuthService)
	token, machineToken, err := authService.CreateMachineToken(
		c.Request.Context(),
		req.Name,
		req.Permissions,
		createdBy,
	)

	if err != nil {
		s.logger.Error("Failed to create machine token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("TOKEN_500", "Failed to create token", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, CreateMachineTokenResponse{
		Token:       token, // Only time this is returned!
		ID:          machineToken.ID,
		Name:        machineToken.Name,
		Permissions: machineToken.Permissions,
	})
}

func (s *Server) listMachineTokens(c *gin.Context) {
	authService := c.MustGet("authService").(*auth.AuthService)
	tokens, err := authService.ListMachineTokens(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("TOKEN_500", "Failed to list tokens", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

func (s *Server) deleteMachineToken(c *gin.Context) {
	tokenID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("TOKEN_400", "Invalid token ID", err.Error()))
		return
	}

	authService := c.MustGet("authService").(*auth.AuthService)
	if err := authService.DeleteMachineToken(c.Request.Context(), tokenID); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("TOKEN_500", "Failed to delete token", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "token deleted"})
}
