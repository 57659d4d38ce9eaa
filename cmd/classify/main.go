// Package main runs one classification batch over unlabeled cases.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/peer-digital/medla-projects/internal/classify"
	"github.com/peer-digital/medla-projects/internal/config"
	"github.com/peer-digital/medla-projects/internal/ingest"
	"github.com/peer-digital/medla-projects/internal/logging"
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

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	classifier, err := classify.NewOpenAIClassifier(&cfg.Classify)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create classifier")
	}

	caseRepo := storage.NewCaseRepository(postgres)
	stage := classify.NewStage(caseRepo, classifier, ingest.NopSink{}, &cfg.Classify)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := stage.Run(ctx)
	if err != nil {
		logger.WithError(err).Error("Classification run aborted")
		os.Exit(1)
	}

	logger.WithFields(map[string]interface{}{
		"status":     string(result.Status),
		"processed":  result.Processed,
		"successful": result.Successful,
		"failed":     result.Failed,
		"categories": result.Categories,
	}).Info("Classification run finished")

	if result.Status == types.RunStatusFailed {
		os.Exit(1)
	}
}
