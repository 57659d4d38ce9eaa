package storage

import (
	"context"
	"time"

	"github.com/peer-digital/medla-projects/internal/errors"
	"github.com/peer-digital/medla-projects/internal/types"
)

// RunRecord is one partition's outcome within an ingestion run, written to
// the analytics sink when the partition finishes.
type RunRecord struct {
	RunID         string
	Partition     types.Partition
	Status        types.RunStatus
	PagesFetched  int
	CasesInserted int
	CasesUpdated  int
	CasesSkipped  int
	Errors        int
	StartedAt     time.Time
	FinishedAt    time.Time
}

// RunHistoryRepository appends run records to ClickHouse. The sink is
// optional: constructed with a nil connection it silently drops writes, so
// callers never have to branch on whether analytics is deployed.
type RunHistoryRepository struct {
	db *ClickHouseDB
}

// NewRunHistoryRepository creates a run history repository; db may be nil
func NewRunHistoryRepository(db *ClickHouseDB) *RunHistoryRepository {
	return &RunHistoryRepository{db: db}
}

// Enabled reports whether the analytics sink is configured
func (r *RunHistoryRepository) Enabled() bool {
	return r != nil && r.db != nil
}

// Record appends one run record
func (r *RunHistoryRepository) Record(ctx context.Context, record *RunRecord) error {
	if !r.Enabled() {
		return nil
	}

	query := `
		INSERT INTO ingestion_runs (
			run_id, partition, status, pages_fetched,
			cases_inserted, cases_updated, cases_skipped, errors,
			started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	err := r.db.Exec(ctx, query,
		record.RunID,
		string(record.Partition),
		string(record.Status),
		uint32(record.PagesFetched),  // #nosec G115 - page counts are small
		uint32(record.CasesInserted), // #nosec G115
		uint32(record.CasesUpdated),  // #nosec G115
		uint32(record.CasesSkipped),  // #nosec G115
		uint32(record.Errors),        // #nosec G115
		record.StartedAt,
		record.FinishedAt,
	)
	if err != nil {
		return errors.NewPersistenceError("record ingestion run", err)
	}

	return nil
}
