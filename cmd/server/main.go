// Package main provides the API server entry point for the diarium ingestion service.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peer-digital/medla-projects/internal/api"
	"github.com/peer-digital/medla-projects/internal/classify"
	"github.com/peer-digital/medla-projects/internal/config"
	"github.com/peer-digital/medla-projects/internal/errors"
	"github.com/peer-digital/medla-projects/internal/ingest"
	"github.com/peer-digital/medla-projects/internal/logging"
	"github.com/peer-digital/medla-projects/internal/portal"
	"github.com/peer-digital/medla-projects/internal/storage"
	"github.com/peer-digital/medla-projects/internal/types"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	var clickhouseDB *storage.ClickHouseDB
	if cfg.Database.ClickHouse.Enabled {
		clickhouseDB, err = storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer clickhouseDB.Close()

		if err := clickhouseDB.EnsureRunHistorySchema(context.Background()); err != nil {
			logger.WithError(err).Fatal("Failed to prepare run history schema")
		}
	}

	logger.Info("Database connections established")

	// Repositories and cache
	caseRepo := storage.NewCaseRepository(postgres)
	checkpointRepo := storage.NewCheckpointRepository(postgres)
	bookmarkRepo := storage.NewBookmarkRepository(postgres)
	runHistory := storage.NewRunHistoryRepository(clickhouseDB)
	caseCache := storage.NewCaseCache(redis, cfg.Database.Redis.CaseTTL)

	// Portal access
	session := portal.NewSession(&cfg.Portal)
	searcher := portal.NewSearcher(session, cfg.Portal.BaseURL, cfg.Portal.PartitionQueries)
	detailFetcher := portal.NewDetailFetcher(session, cfg.Portal.BaseURL, cfg.Portal.DetailBaseDelay)

	// Pipeline services
	coordinator := ingest.NewCoordinator(
		ingest.AdaptCaseRepository(caseRepo),
		checkpointRepo,
		ingest.AdaptSearcher(searcher),
		caseCache,
		runHistory,
		ingest.NopSink{},
		&cfg.Ingest,
	)
	detailService := ingest.NewDetailService(caseRepo, detailFetcher, caseCache)

	var classifyRunner api.ClassifyRunner
	if classifier, err := classify.NewOpenAIClassifier(&cfg.Classify); err != nil {
		logger.WithError(err).Warn("Classification disabled")
		classifyRunner = unconfiguredClassifier{}
	} else {
		classifyRunner = classify.NewStage(caseRepo, classifier, ingest.NopSink{}, &cfg.Classify)
	}

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		AdminPerMinute:  5,
	}

	server := api.NewServer(serverConfig, coordinator, classifyRunner, detailService, caseRepo, bookmarkRepo, checkpointRepo, logger)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

// unconfiguredClassifier stands in when no API key is configured: every run
// fails fast with a terminal snapshot instead of hanging the task.
type unconfiguredClassifier struct{}

func (unconfiguredClassifier) RunWith(_ context.Context, sink ingest.ProgressSink) (*classify.Result, error) {
	err := errors.NewInvalidInputError("classification is not configured: OPENAI_API_KEY is not set")
	sink.Publish(types.ProgressSnapshot{
		Status:    types.RunStatusFailed,
		Percent:   100,
		Errors:    []string{err.Message},
		Timestamp: time.Now(),
	})
	return nil, err
}
