// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/peer-digital/medla-projects/internal/classify"
	"github.com/peer-digital/medla-projects/internal/ingest"
	"github.com/peer-digital/medla-projects/internal/logging"
	"github.com/peer-digital/medla-projects/internal/models"
	"github.com/peer-digital/medla-projects/internal/types"
)

// Service interfaces for dependency injection and testing

// IngestRunner runs one full ingestion pass
type IngestRunner interface {
	RunWith(ctx context.Context, sink ingest.ProgressSink) (*ingest.RunStats, error)
}

// ClassifyRunner runs one classification batch
type ClassifyRunner interface {
	RunWith(ctx context.Context, sink ingest.ProgressSink) (*classify.Result, error)
}

// DetailEnricher fetches a case's detail page on demand
type DetailEnricher interface {
	EnrichCase(ctx context.Context, caseNumber string) (*ingest.DetailStats, error)
}

// CaseReader is the read surface over stored cases
type CaseReader interface {
	GetByCaseNumber(ctx context.Context, caseNumber string) (*models.Case, error)
	ListByPartition(ctx context.Context, partition types.Partition, limit, offset int) ([]*models.Case, error)
	CountByPartition(ctx context.Context) (map[types.Partition]int, error)
	ResetDetailAttempts(ctx context.Context, caseNumber string) error
}

// BookmarkStore is the persistence surface for bookmarks
type BookmarkStore interface {
	Create(ctx context.Context, bookmark *models.Bookmark) error
	Get(ctx context.Context, id int) (*models.Bookmark, error)
	GetByCaseNumber(ctx context.Context, caseNumber string) (*models.Bookmark, error)
	List(ctx context.Context) ([]*models.Bookmark, error)
	Update(ctx context.Context, bookmark *models.Bookmark) error
	Delete(ctx context.Context, id int) error
}

// CheckpointReader exposes per-partition fetch progress
type CheckpointReader interface {
	ListAll(ctx context.Context) ([]*models.FetchCheckpoint, error)
}

// Server represents the HTTP API server.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	ingestor    IngestRunner
	classifier  ClassifyRunner
	enricher    DetailEnricher
	cases       CaseReader
	bookmarks   BookmarkStore
	checkpoints CheckpointReader
	tasks       *TaskTracker
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
	AdminPerMinute  int // Requests per minute for mutating admin routes
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	ingestor IngestRunner,
	classifier ClassifyRunner,
	enricher DetailEnricher,
	cases CaseReader,
	bookmarks BookmarkStore,
	checkpoints CheckpointReader,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		ingestor:    ingestor,
		classifier:  classifier,
		enricher:    enricher,
		cases:       cases,
		bookmarks:   bookmarks,
		checkpoints: checkpoints,
		tasks:       NewTaskTracker(),
		logger:      logger,
		config:      config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Mutating admin routes are rate limited per IP: each one kicks off
	// portal or classification traffic.
	limit := RateLimitMiddleware(NewRateLimiter(s.config.AdminPerMinute))

	// Run endpoints
	api.Handle("/ingest/runs", limit(http.HandlerFunc(s.handleStartIngestRun))).Methods("POST")
	api.Handle("/classify/runs", limit(http.HandlerFunc(s.handleStartClassifyRun))).Methods("POST")
	api.HandleFunc("/tasks/{id}", s.handleGetTask).Methods("GET")

	// Case endpoints
	api.HandleFunc("/cases", s.handleListCases).Methods("GET")
	api.HandleFunc("/cases/{caseNumber}", s.handleGetCase).Methods("GET")
	api.Handle("/cases/{caseNumber}/fetch-details", limit(http.HandlerFunc(s.handleFetchDetails))).Methods("POST")

	// Partition progress overview
	api.HandleFunc("/partitions", s.handleListPartitions).Methods("GET")

	// Bookmark endpoints
	api.HandleFunc("/bookmarks", s.handleCreateBookmark).Methods("POST")
	api.HandleFunc("/bookmarks", s.handleListBookmarks).Methods("GET")
	api.HandleFunc("/bookmarks/{id}", s.handleGetBookmark).Methods("GET")
	api.HandleFunc("/bookmarks/{id}", s.handleUpdateBookmark).Methods("PUT")
	api.HandleFunc("/bookmarks/{id}", s.handleDeleteBookmark).Methods("DELETE")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "medla-projects",
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
