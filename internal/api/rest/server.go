package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenFieldbusCore/internal/api/websocket"
	"github.com/KevinKickass/OpenFieldbusCore/internal/auth"
	"github.com/KevinKickass/OpenFieldbusCore/internal/config"
	"github.com/KevinKickass/OpenFieldbusCore/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Inject AuthService into Gin context
	s.router.Use(func(c *gin.Context) {
		c.Set("authService", s.authService)
		c.Next()
	})

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// ==================== AUTH ENDPOINTS (PUBLIC) ====================
		authPublic := v1.Group("/auth")
		{
			authPublic.POST("/login", s.login)
			authPublic.POST("/refresh", s.refreshToken)
		}

		// ==================== AUTH ENDPOINTS (AUTHENTICATED) ====================
		authProtected := v1.Group("/auth")
		authProtected.Use(s.authService.AuthMiddleware())
		{
			authProtected.POST("/logout", s.logout)
			authProtected.GET("/me", s.getCurrentUser)
		}

		// ==================== MACHINE TOKENS (ADMIN ONLY) ====================
		machineTokens := v1.Group("/machine-tokens")
		machineTokens.Use(s.authService.AuthMiddleware())
		machineTokens.Use(auth.RequirePermission(auth.PermAdmin))
		{
			machineTokens.POST("", s.createMachineToken)
			machineTokens.GET("", s.listMachineTokens)
			machineTokens.DELETE("/:id", s.deleteMachineToken)
		}

		// ==================== SYSTEM (OPERATOR+) ====================
		system := v1.Group("/system")
		system.Use(s.authService.AuthMiddleware())
		system.Use(auth.RequirePermission(auth.PermOperator))
		{
			system.GET("/status", s.getSystemStatus)
			system.POST("/shutdown", auth.RequirePermission(auth.PermAdmin), s.shutdown)
		}

		// ==================== MASTER LIFECYCLE ====================
		master := v1.Group("/master")
		master.Use(s.authService.AuthMiddleware())
		{
			master.GET("/state", auth.RequirePermission(auth.PermOperator), s.getMasterState)
			master.GET("/slaves", auth.RequirePermission(auth.PermOperator), s.scanSlaves)
			master.GET("/slaves/:position", auth.RequirePermission(auth.PermOperator), s.getSlave)

			master.POST("/request", auth.RequirePermission(auth.PermTechnician), s.requestMaster)
			master.POST("/activate", auth.RequirePermission(auth.PermTechnician), s.activateMaster)
			master.POST("/reset", auth.RequirePermission(auth.PermTechnician), s.resetMaster)
			master.POST("/release", auth.RequirePermission(auth.PermTechnician), s.releaseMaster)
		}

		// ==================== DOMAINS ====================
		domains := v1.Group("/domains")
		domains.Use(s.authService.AuthMiddleware())
		{
			domains.GET("", auth.RequirePermission(auth.PermOperator), s.listDomains)
			domains.POST("", auth.RequirePermission(auth.PermTechnician), s.createDomain)
			domains.POST("/:id/read", auth.RequirePermission(auth.PermOperator), s.readDomainData)
			domains.POST("/:id/write", auth.RequirePermission(auth.PermTechnician), s.writeDomainData)
		}

		// ==================== SLAVE CONFIGURATION ====================
		slaves := v1.Group("/slave-configs")
		slaves.Use(s.authService.AuthMiddleware())
		slaves.Use(auth.RequirePermission(auth.PermTechnician))
		{
			slaves.POST("", s.configureSlave)
			slaves.POST("/:id/apply-profile", s.applyProfile)
			slaves.POST("/:id/register", s.registerPdoEntry)
		}

		// ==================== CYCLIC EXCHANGE ====================
		cyclic := v1.Group("/cyclic")
		cyclic.Use(s.authService.AuthMiddleware())
		{
			cyclic.GET("/status", auth.RequirePermission(auth.PermOperator), s.getCyclicStatus)
			cyclic.POST("/start", auth.RequirePermission(auth.PermTechnician), s.startCyclic)
			cyclic.POST("/stop", auth.RequirePermission(auth.PermTechnician), s.stopCyclic)
		}

		// ==================== SLAVE PROFILES ====================
		profiles := v1.Group("/profiles")
		profiles.Use(s.authService.AuthMiddleware())
		profiles.Use(auth.RequirePermission(auth.PermOperator))
		{
			profiles.GET("", s.listProfiles)
			profiles.GET("/:name", s.getProfile)
		}

		// ==================== BUS CONFIGURATIONS ====================
		configs := v1.Group("/bus-configs")
		configs.Use(s.authService.AuthMiddleware())
		{
			configs.GET("", auth.RequirePermission(auth.PermOperator), s.listBusConfigs)
			configs.GET("/:name/events", auth.RequirePermission(auth.PermOperator), s.listBusEvents)
			configs.POST("", auth.RequirePermission(auth.PermAdmin), s.saveBusConfig)
			configs.POST("/:name/apply", auth.RequirePermission(auth.PermTechnician), s.applyBusConfig)
			configs.DELETE("/:name", auth.RequirePermission(auth.PermAdmin), s.deleteBusConfig)
		}

		// ==================== WEBSOCKET (PUBLIC - Auth via first message) ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.authService.AuthMiddleware(), auth.RequirePermission(auth.PermOperator), s.wsStatus)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
