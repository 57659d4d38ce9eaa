// Package main runs one full ingestion pass over all configured partitions.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/peer-digital/medla-projects/internal/config"
	"github.com/peer-digital/medla-projects/internal/ingest"
	"github.com/peer-digital/medla-projects/internal/logging"
	"github.com/peer-digital/medla-projects/internal/portal"
	"github.com/peer-digital/medla-projects/internal/storage"
	"github.com/peer-digital/medla-projects/internal/types"
)

func main() {
	var detailsLimit = flag.Int("details", 0, "After ingestion, fetch details for up to N pending bookmarked cases")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

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

	caseRepo := storage.NewCaseRepository(postgres)
	checkpointRepo := storage.NewCheckpointRepository(postgres)
	caseCache := storage.NewCaseCache(redis, cfg.Database.Redis.CaseTTL)
	runHistory := storage.NewRunHistoryRepository(clickhouseDB)

	session := portal.NewSession(&cfg.Portal)
	searcher := portal.NewSearcher(session, cfg.Portal.BaseURL, cfg.Portal.PartitionQueries)

	coordinator := ingest.NewCoordinator(
		ingest.AdaptCaseRepository(caseRepo),
		checkpointRepo,
		ingest.AdaptSearcher(searcher),
		caseCache,
		runHistory,
		ingest.NopSink{},
		&cfg.Ingest,
	)

	// SIGINT/SIGTERM cancel the run; checkpoints make the interruption safe
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stats, err := coordinator.Run(ctx)
	if err != nil {
		logger.WithError(err).Error("Ingestion run aborted")
		os.Exit(1)
	}

	logger.WithFields(map[string]interface{}{
		"status":       string(stats.Status),
		"pages":        stats.PagesFetched,
		"inserted":     stats.Inserted,
		"updated":      stats.Updated,
		"skipped":      stats.Skipped,
		"recordErrors": stats.RecordErrors,
	}).Info("Ingestion run finished")

	if *detailsLimit > 0 {
		detailFetcher := portal.NewDetailFetcher(session, cfg.Portal.BaseURL, cfg.Portal.DetailBaseDelay)
		detailService := ingest.NewDetailService(caseRepo, detailFetcher, caseCache)

		detailStats, err := detailService.EnrichPending(ctx, *detailsLimit)
		if err != nil {
			logger.WithError(err).Error("Detail enrichment aborted")
			os.Exit(1)
		}
		logger.WithFields(map[string]interface{}{
			"processed": detailStats.Processed,
			"succeeded": detailStats.Succeeded,
			"failed":    detailStats.Failed,
			"absent":    detailStats.Absent,
		}).Info("Detail enrichment finished")
	}

	if stats.Status == types.RunStatusFailed {
		os.Exit(1)
	}
}
