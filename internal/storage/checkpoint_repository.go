package storage

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"

	"github.com/peer-digital/medla-projects/internal/errors"
	"github.com/peer-digital/medla-projects/internal/models"
	"github.com/peer-digital/medla-projects/internal/types"
)

// CheckpointRepository persists per-partition fetch checkpoints. The
// coordinator saves after every page, so an interrupted run can resume from
// exactly where it stopped.
type CheckpointRepository struct {
	db *PostgresDB
}

// NewCheckpointRepository creates a new checkpoint repository
func NewCheckpointRepository(db *PostgresDB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

const checkpointColumns = `
	partition_key, last_successful_fetch, last_page_fetched, total_pages,
	error_count, last_error, total_cases_checked, created_at, updated_at`

// Get retrieves the checkpoint for a partition. A partition never fetched has
// no row; the caller treats that as NEEDS_BACKFILL.
func (r *CheckpointRepository) Get(ctx context.Context, partition types.Partition) (*models.FetchCheckpoint, error) {
	query := `SELECT ` + checkpointColumns + ` FROM fetch_checkpoints WHERE partition_key = $1`

	var checkpoint models.FetchCheckpoint
	err := r.db.Pool().QueryRow(ctx, query, partition).Scan(
		&checkpoint.PartitionKey,
		&checkpoint.LastSuccessfulFetch,
		&checkpoint.LastPageFetched,
		&checkpoint.TotalPages,
		&checkpoint.ErrorCount,
		&checkpoint.LastError,
		&checkpoint.TotalCasesChecked,
		&checkpoint.CreatedAt,
		&checkpoint.UpdatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("checkpoint", string(partition))
		}
		return nil, errors.NewPersistenceError("get checkpoint", err)
	}

	return &checkpoint, nil
}

// Save upserts the checkpoint for a partition
func (r *CheckpointRepository) Save(ctx context.Context, checkpoint *models.FetchCheckpoint) error {
	query := `
		INSERT INTO fetch_checkpoints (
			partition_key, last_successful_fetch, last_page_fetched,
			total_pages, error_count, last_error, total_cases_checked
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (partition_key)
		DO UPDATE SET
			last_successful_fetch = EXCLUDED.last_successful_fetch,
			last_page_fetched = EXCLUDED.last_page_fetched,
			total_pages = EXCLUDED.total_pages,
			error_count = EXCLUDED.error_count,
			last_error = EXCLUDED.last_error,
			total_cases_checked = EXCLUDED.total_cases_checked,
			updated_at = now()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		checkpoint.PartitionKey,
		checkpoint.LastSuccessfulFetch,
		checkpoint.LastPageFetched,
		checkpoint.TotalPages,
		checkpoint.ErrorCount,
		checkpoint.LastError,
		checkpoint.TotalCasesChecked,
	)
	if err != nil {
		return errors.NewPersistenceError("save checkpoint", err)
	}

	return nil
}

// ListAll retrieves every stored checkpoint
func (r *CheckpointRepository) ListAll(ctx context.Context) ([]*models.FetchCheckpoint, error) {
	query := `SELECT ` + checkpointColumns + ` FROM fetch_checkpoints ORDER BY partition_key`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, errors.NewPersistenceError("list checkpoints", err)
	}
	defer rows.Close()

	var checkpoints []*models.FetchCheckpoint
	for rows.Next() {
		var checkpoint models.FetchCheckpoint
		err := rows.Scan(
			&checkpoint.PartitionKey,
			&checkpoint.LastSuccessfulFetch,
			&checkpoint.LastPageFetched,
			&checkpoint.TotalPages,
			&checkpoint.ErrorCount,
			&checkpoint.LastError,
			&checkpoint.TotalCasesChecked,
			&checkpoint.CreatedAt,
			&checkpoint.UpdatedAt,
		)
		if err != nil {
			return nil, errors.NewPersistenceError("scan checkpoint", err)
		}
		checkpoints = append(checkpoints, &checkpoint)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistenceError("iterate checkpoints", err)
	}

	return checkpoints, nil
}
