// Package api provides the HTTP and WebSocket API.
package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/painscope/painscope/pkg/events"
	"github.com/painscope/painscope/pkg/models"
	"github.com/painscope/painscope/pkg/queue"
	"github.com/painscope/painscope/pkg/services"
)

// Intake submits validated search requests. Implemented by
// *services.IntakeService.
type Intake interface {
	Submit(ctx context.Context, req models.SearchRequest) (*services.IntakeResponse, error)
}

// StatusReader looks up search status. Implemented by
// *services.StatusService.
type StatusReader interface {
	Get(ctx context.Context, searchID string) (*services.StatusResponse, error)
}

// SchedulerHealth reports scheduler state for the health endpoint.
// Implemented by *queue.Scheduler.
type SchedulerHealth interface {
	Health(ctx context.Context) queue.Health
}

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server

	intake      Intake
	status      StatusReader
	scheduler   SchedulerHealth
	connManager *events.ConnectionManager
	db          *sql.DB
}

// NewServer creates the API server and registers its routes.
func NewServer(intake Intake, status StatusReader, scheduler SchedulerHealth, connManager *events.ConnectionManager, db *sql.DB) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), securityHeaders())

	s := &Server{
		router:      router,
		intake:      intake,
		status:      status,
		scheduler:   scheduler,
		connManager: connManager,
		db:          db,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.POST("/search", s.searchHandler)
	s.router.GET("/search-status", s.statusHandler)
	s.router.GET("/ws", s.wsHandler)
	s.router.GET("/health", s.healthHandler)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving on addr and blocks until the listener fails or
// Shutdown runs.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
