// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/logging"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/models"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/orchestrator"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/storage"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/types"
	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// TestServiceInterface defines the interface for test orchestration operations
type TestServiceInterface interface {
	Submit(ctx context.Context, userID string, input orchestrator.SubmitInput) (string, error)
	GetStatus(ctx context.Context, testID string) (*models.TestRun, error)
	ListTests(ctx context.Context, userID string, limit int) ([]*models.TestRun, error)
}

// HistoryReaderInterface defines the interface for metrics trend queries
type HistoryReaderInterface interface {
	History(ctx context.Context, url string, device types.Device, limit int) ([]*storage.MetricsPoint, error)
}

// Server represents the HTTP API server.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	testService TestServiceInterface
	history     HistoryReaderInterface
	keys        KeyValidator
	keyCache    KeyCache
	logger      *logging.Logger
	config      *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	FreeTierRPS     int
	PremiumTierRPS  int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	testService TestServiceInterface,
	history HistoryReaderInterface,
	keys KeyValidator,
	keyCache KeyCache,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		testService: testService,
		history:     history,
		keys:        keys,
		keyCache:    keyCache,
		logger:      logger.WithField("component", "api"),
		config:      config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.FreeTierRPS, s.config.PremiumTierRPS)

	// Middleware order matters: identity must be resolved before the
	// per-user rate limit keys on it.
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)

	// Health check endpoint, outside auth
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(AuthMiddleware(s.keys, s.keyCache, s.logger))
	api.Use(RateLimitMiddleware(rateLimiter))
	api.Use(CompressionMiddleware)

	api.HandleFunc("/tests", s.handleSubmitTest).Methods("POST")
	api.HandleFunc("/tests", s.handleListTests).Methods("GET")
	api.HandleFunc("/tests/{id}", s.handleGetTest).Methods("GET")
	api.HandleFunc("/tests/{id}/recommendations", s.handleGetRecommendations).Methods("GET")
	api.HandleFunc("/history", s.handleGetHistory).Methods("GET")

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// Router returns the configured router. Used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "probe-point",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
