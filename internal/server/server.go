package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
	"github.com/kode4food/timebox"

	"github.com/kode4food/paisley/internal/engine"
	"github.com/kode4food/paisley/internal/metrics"
	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/util"
)

// Server implements the HTTP API server for the workflow state engine
type Server struct {
	engine   *engine.Engine
	eventHub timebox.EventHub
	sockets  util.Set[*Client]
	mu       sync.Mutex
}

var (
	// ErrGetEngineState is returned when the engine state cannot be
	// retrieved
	ErrGetEngineState = errors.New("failed to get engine state")

	// ErrInvalidJSON is returned when a request body cannot be parsed
	ErrInvalidJSON = errors.New("invalid JSON payload")
)

// NewServer creates a new HTTP API server
func NewServer(eng *engine.Engine, hub timebox.EventHub) *Server {
	return &Server{
		engine:   eng,
		eventHub: hub,
		sockets:  util.Set[*Client]{},
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods",
			"GET, POST, PUT, DELETE, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	// Health check and metrics
	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Engine endpoints
	eng := router.Group("/engine")
	{
		eng.GET("", s.handleEngine)
		eng.GET("/", s.handleEngine)

		// State endpoints
		eng.GET("/state", s.listStates)
		eng.POST("/state", s.initializeState)
		eng.GET("/state/:stateID", s.getState)
		eng.POST("/state/:stateID/transition", s.transitionState)
		eng.PUT("/state/:stateID/variables", s.updateVariables)
		eng.GET("/state/:stateID/variables/:name", s.getVariable)
		eng.POST("/state/:stateID/merge", s.mergeVariables)
		eng.POST("/state/:stateID/snapshot", s.createSnapshot)
		eng.POST("/state/:stateID/restore", s.restoreSnapshot)
		eng.POST("/state/:stateID/rollback", s.rollbackState)
		eng.GET("/state/:stateID/history", s.getHistory)
		eng.POST("/state/:stateID/compact", s.compactHistory)
		eng.POST("/state/:stateID/archive", s.archiveState)

		// Machine catalog endpoints
		eng.GET("/machine", s.listMachines)
		eng.POST("/machine", s.registerMachine)
		eng.GET("/machine/:machineID", s.getMachine)
		eng.PUT("/machine/:machineID", s.updateMachine)
		eng.DELETE("/machine/:machineID", s.removeMachine)

		// Loop endpoints
		eng.GET("/loop", s.listLoops)
		eng.POST("/loop", s.executeLoop)
		eng.GET("/loop/:loopID", s.getLoop)
		eng.GET("/loop/:loopID/result", s.getLoopResult)

		// WebSocket
		eng.GET("/ws", s.handleWebSocket)
	}

	return router
}

func (s *Server) handleEngine(c *gin.Context) {
	engState, err := s.engine.GetEngineState(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error: fmt.Sprintf("%s: %v", ErrGetEngineState, err),
			Code:  api.ErrCodePersistence,
		})
		return
	}

	c.JSON(http.StatusOK, engState)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Service: "paisley-engine",
		Version: "1.0.0",
		Status:  "healthy",
	})
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Add(c)
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Remove(c)
}

// CloseWebSockets closes all active WebSocket connections.
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := make([]*Client, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// resultStatus maps a state operation result to its HTTP status
func resultStatus(res *api.StateResult) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Code {
	case api.ErrCodeConfiguration:
		return http.StatusBadRequest
	case api.ErrCodeTransitionRejected:
		return http.StatusUnprocessableEntity
	case api.ErrCodeConflict:
		return http.StatusConflict
	case api.ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
