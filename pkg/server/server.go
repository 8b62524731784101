package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imago-ai/imago"
	"github.com/imago-ai/imago/pkg/config"
	"github.com/imago-ai/imago/pkg/server/handlers"
	"github.com/imago-ai/imago/pkg/types"
)

// Server is the thin reference HTTP facade over the client. It carries no
// auth or rate limiting; those belong to the deployment in front of it.
type Server struct {
	config *config.Config
	router *gin.Engine
	client imago.Imago
	server *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, client imago.Imago) *Server {
	return &Server{config: cfg, client: client}
}

// Setup sets up the server routes and middleware
func (s *Server) Setup() {
	gin.SetMode(s.config.Server.Mode)

	s.router = gin.New()
	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())
	s.router.Use(contextMiddleware())

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{Addr: addr, Handler: s.router}
}

// setupRoutes sets up all the routes
func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler()
	agentHandler := handlers.NewAgentHandler(s.client)
	translateHandler := handlers.NewTranslateHandler(s.client)

	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/live", healthHandler.LivenessCheck)

	v1 := s.router.Group("/api/v1")
	{
		agents := v1.Group("/agents/:agent_id")
		{
			agents.POST("/snapshots", agentHandler.CreateSnapshot)
			agents.POST("/corrections", agentHandler.RecordCorrection)
			agents.POST("/late-arriving", agentHandler.InsertLateArriving)
			agents.POST("/morph", translateHandler.Morph)
			agents.GET("/snapshot", agentHandler.GetSnapshot)
			agents.GET("/history", agentHandler.GetHistory)
		}

		v1.POST("/translate", translateHandler.Translate)
		v1.POST("/validate", translateHandler.Validate)
		v1.GET("/compatibility", translateHandler.CompatibilityMatrix)
		v1.GET("/specifications/:protocol", translateHandler.ResolveSpecification)
	}
}

// Router exposes the configured router for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the server
func (s *Server) Start() error {
	fmt.Printf("Starting server on %s\n", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	fmt.Println("Stopping server...")
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// contextMiddleware tags the request context for telemetry.
func contextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if agentID := c.Param("agent_id"); agentID != "" {
			ctx = context.WithValue(ctx, types.ContextKeyAgentID, agentID)
		}
		ctx = context.WithValue(ctx, types.ContextKeyRequestSource, "server")

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
