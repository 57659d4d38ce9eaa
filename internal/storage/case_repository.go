package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/peer-digital/medla-projects/internal/errors"
	"github.com/peer-digital/medla-projects/internal/models"
	"github.com/peer-digital/medla-projects/internal/types"
)

// caseQuerier is the query surface shared by the pool and a transaction
type caseQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CaseRepository handles case persistence. A repository is either pool-backed
// or scoped to one transaction via InTx.
type CaseRepository struct {
	db *PostgresDB
	tx pgx.Tx
}

// NewCaseRepository creates a new case repository
func NewCaseRepository(db *PostgresDB) *CaseRepository {
	return &CaseRepository{db: db}
}

func (r *CaseRepository) conn() caseQuerier {
	if r.tx != nil {
		return r.tx
	}
	return r.db.Pool()
}

// InTx runs fn against a transaction-scoped view of the repository. All
// writes made through the view commit together or roll back together. On a
// repository already inside a transaction, fn joins it.
func (r *CaseRepository) InTx(ctx context.Context, fn func(*CaseRepository) error) error {
	if r.tx != nil {
		return fn(r)
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return errors.NewPersistenceError("begin transaction", err)
	}

	if err := fn(&CaseRepository{db: r.db, tx: tx}); err != nil {
		_ = tx.Rollback(ctx) // nolint:errcheck
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.NewPersistenceError("commit transaction", err)
	}
	return nil
}

const caseColumns = `
	case_number, portal_id, source_partition, title, description, location,
	municipality, status, url, filed_at,
	sender, diarium, decision_date, decision_summary, case_type, documents,
	details_fetched, details_fetch_attempts, last_fetch_attempt,
	primary_category, secondary_category, project_phase, category_confidence,
	category_metadata, is_medla_suitable, potential_jobs, last_categorized_at,
	last_updated_from_source, created_at, updated_at`

// GetByCaseNumber retrieves a case by its canonical case number
func (r *CaseRepository) GetByCaseNumber(ctx context.Context, caseNumber string) (*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE case_number = $1`

	row := r.conn().QueryRow(ctx, query, caseNumber)
	c, err := scanCase(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("case", caseNumber)
		}
		return nil, errors.NewPersistenceError("get case", err)
	}
	return c, nil
}

// Insert creates a new case record
func (r *CaseRepository) Insert(ctx context.Context, c *models.Case) error {
	documents, metadata, jobs, err := marshalCaseJSON(c)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO cases (
			case_number, portal_id, source_partition, title, description,
			location, municipality, status, url, filed_at,
			sender, diarium, decision_date, decision_summary, case_type,
			documents, details_fetched, details_fetch_attempts, last_fetch_attempt,
			primary_category, secondary_category, project_phase,
			category_confidence, category_metadata, is_medla_suitable,
			potential_jobs, last_categorized_at, last_updated_from_source
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
				$11, $12, $13, $14, $15, $16, $17, $18, $19,
				$20, $21, $22, $23, $24, $25, $26, $27, $28)
	`

	_, err = r.conn().Exec(ctx, query,
		c.CaseNumber, c.PortalID, c.SourcePartition, c.Title, c.Description,
		c.Location, c.Municipality, c.Status, c.URL, c.FiledAt,
		c.Sender, c.Diarium, c.DecisionDate, c.DecisionSummary, c.CaseType,
		documents, c.DetailsFetched, c.DetailsFetchAttempts, c.LastFetchAttempt,
		c.PrimaryCategory, c.SecondaryCategory, c.ProjectPhase,
		c.CategoryConfidence, metadata, c.IsMedlaSuitable,
		jobs, c.LastCategorizedAt, c.LastUpdatedFromSource,
	)
	if err != nil {
		return errors.NewPersistenceError("insert case", err)
	}
	return nil
}

// UpdateFromSource overwrites the listing-derived fields of an existing case.
// Detail and classification fields are untouched; those belong to their own
// pipeline stages.
func (r *CaseRepository) UpdateFromSource(ctx context.Context, c *models.Case) error {
	query := `
		UPDATE cases
		SET portal_id = $2, source_partition = $3, title = $4, status = $5,
			location = $6, municipality = $7, url = $8, filed_at = $9,
			decision_date = $10, sender = $11,
			last_updated_from_source = $12, updated_at = now()
		WHERE case_number = $1
	`

	result, err := r.conn().Exec(ctx, query,
		c.CaseNumber, c.PortalID, c.SourcePartition, c.Title, c.Status,
		c.Location, c.Municipality, c.URL, c.FiledAt,
		c.DecisionDate, c.Sender, c.LastUpdatedFromSource,
	)
	if err != nil {
		return errors.NewPersistenceError("update case from source", err)
	}
	if result.RowsAffected() == 0 {
		return errors.NewNotFoundError("case", c.CaseNumber)
	}
	return nil
}

// RecordDetailFailure counts a failed detail-fetch attempt. The increment and
// timestamp land in one statement so a crash can never leave the counter
// half-updated.
func (r *CaseRepository) RecordDetailFailure(ctx context.Context, caseNumber string) error {
	query := `
		UPDATE cases
		SET details_fetch_attempts = details_fetch_attempts + 1,
			last_fetch_attempt = now(), updated_at = now()
		WHERE case_number = $1
	`

	result, err := r.conn().Exec(ctx, query, caseNumber)
	if err != nil {
		return errors.NewPersistenceError("record detail failure", err)
	}
	if result.RowsAffected() == 0 {
		return errors.NewNotFoundError("case", caseNumber)
	}
	return nil
}

// RecordDetailSuccess stores fetched detail fields and counts the attempt, in
// one statement.
func (r *CaseRepository) RecordDetailSuccess(ctx context.Context, c *models.Case) error {
	documents, err := json.Marshal(c.Documents)
	if err != nil {
		return errors.NewPersistenceError("marshal case documents", err)
	}

	query := `
		UPDATE cases
		SET sender = $2, diarium = $3, decision_date = $4, decision_summary = $5,
			case_type = $6, documents = $7, municipality = COALESCE($8, municipality),
			status = COALESCE($9, status), filed_at = COALESCE($10, filed_at),
			details_fetched = true,
			details_fetch_attempts = details_fetch_attempts + 1,
			last_fetch_attempt = now(), updated_at = now()
		WHERE case_number = $1
	`

	result, err := r.conn().Exec(ctx, query,
		c.CaseNumber, c.Sender, c.Diarium, c.DecisionDate, c.DecisionSummary,
		c.CaseType, documents, c.Municipality, c.Status, c.FiledAt,
	)
	if err != nil {
		return errors.NewPersistenceError("record detail success", err)
	}
	if result.RowsAffected() == 0 {
		return errors.NewNotFoundError("case", c.CaseNumber)
	}
	return nil
}

// ResetDetailAttempts clears the attempt counter so a case past the ceiling
// becomes a fetch candidate again. Operator action.
func (r *CaseRepository) ResetDetailAttempts(ctx context.Context, caseNumber string) error {
	query := `
		UPDATE cases
		SET details_fetch_attempts = 0, updated_at = now()
		WHERE case_number = $1
	`

	result, err := r.conn().Exec(ctx, query, caseNumber)
	if err != nil {
		return errors.NewPersistenceError("reset detail attempts", err)
	}
	if result.RowsAffected() == 0 {
		return errors.NewNotFoundError("case", caseNumber)
	}
	return nil
}

// ListNeedingDetails returns bookmarked cases still awaiting detail
// enrichment, oldest first.
func (r *CaseRepository) ListNeedingDetails(ctx context.Context, limit int) ([]*models.Case, error) {
	query := `
		SELECT ` + caseColumns + `
		FROM cases
		WHERE case_number IN (SELECT case_number FROM bookmarks)
		  AND NOT details_fetched
		  AND details_fetch_attempts < $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.conn().Query(ctx, query, models.MaxDetailFetchAttempts, limit)
	if err != nil {
		return nil, errors.NewPersistenceError("list cases needing details", err)
	}
	defer rows.Close()

	return collectCases(rows)
}

// ListNeedingClassification returns cases awaiting a usable label: never
// classified, marked as a classification error, or labeled below the
// confidence threshold. Oldest first.
func (r *CaseRepository) ListNeedingClassification(ctx context.Context, minConfidence float64, limit int) ([]*models.Case, error) {
	query := `
		SELECT ` + caseColumns + `
		FROM cases
		WHERE primary_category IS NULL
		   OR primary_category = 'Error'
		   OR category_confidence < $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.conn().Query(ctx, query, minConfidence, limit)
	if err != nil {
		return nil, errors.NewPersistenceError("list cases needing classification", err)
	}
	defer rows.Close()

	return collectCases(rows)
}

// UpdateClassification stores the classification outputs for a case
func (r *CaseRepository) UpdateClassification(ctx context.Context, c *models.Case) error {
	metadata, err := json.Marshal(c.CategoryMetadata)
	if err != nil {
		return errors.NewPersistenceError("marshal category metadata", err)
	}
	jobs, err := json.Marshal(c.PotentialJobs)
	if err != nil {
		return errors.NewPersistenceError("marshal potential jobs", err)
	}

	query := `
		UPDATE cases
		SET primary_category = $2, secondary_category = $3, project_phase = $4,
			category_confidence = $5, category_metadata = $6,
			is_medla_suitable = $7, potential_jobs = $8,
			last_categorized_at = now(), updated_at = now()
		WHERE case_number = $1
	`

	result, err := r.conn().Exec(ctx, query,
		c.CaseNumber, c.PrimaryCategory, c.SecondaryCategory, c.ProjectPhase,
		c.CategoryConfidence, metadata, c.IsMedlaSuitable, jobs,
	)
	if err != nil {
		return errors.NewPersistenceError("update classification", err)
	}
	if result.RowsAffected() == 0 {
		return errors.NewNotFoundError("case", c.CaseNumber)
	}
	return nil
}

// ListByPartition returns cases in a partition, newest filings first
func (r *CaseRepository) ListByPartition(ctx context.Context, partition types.Partition, limit, offset int) ([]*models.Case, error) {
	query := `
		SELECT ` + caseColumns + `
		FROM cases
		WHERE source_partition = $1
		ORDER BY filed_at DESC NULLS LAST, case_number
		LIMIT $2 OFFSET $3
	`

	rows, err := r.conn().Query(ctx, query, partition, limit, offset)
	if err != nil {
		return nil, errors.NewPersistenceError("list cases by partition", err)
	}
	defer rows.Close()

	return collectCases(rows)
}

// CountByPartition returns the stored case count per partition
func (r *CaseRepository) CountByPartition(ctx context.Context) (map[types.Partition]int, error) {
	query := `SELECT source_partition, count(*) FROM cases GROUP BY source_partition`

	rows, err := r.conn().Query(ctx, query)
	if err != nil {
		return nil, errors.NewPersistenceError("count cases by partition", err)
	}
	defer rows.Close()

	counts := make(map[types.Partition]int)
	for rows.Next() {
		var partition types.Partition
		var count int
		if err := rows.Scan(&partition, &count); err != nil {
			return nil, errors.NewPersistenceError("scan partition count", err)
		}
		counts[partition] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistenceError("iterate partition counts", err)
	}
	return counts, nil
}

func marshalCaseJSON(c *models.Case) (documents, metadata, jobs []byte, err error) {
	if documents, err = json.Marshal(c.Documents); err != nil {
		return nil, nil, nil, errors.NewPersistenceError("marshal case documents", err)
	}
	if metadata, err = json.Marshal(c.CategoryMetadata); err != nil {
		return nil, nil, nil, errors.NewPersistenceError("marshal category metadata", err)
	}
	if jobs, err = json.Marshal(c.PotentialJobs); err != nil {
		return nil, nil, nil, errors.NewPersistenceError("marshal potential jobs", err)
	}
	return documents, metadata, jobs, nil
}

type caseScanner interface {
	Scan(dest ...interface{}) error
}

func scanCase(row caseScanner) (*models.Case, error) {
	var c models.Case
	var documents, metadata, jobs []byte
	var createdAt time.Time

	err := row.Scan(
		&c.CaseNumber, &c.PortalID, &c.SourcePartition, &c.Title, &c.Description,
		&c.Location, &c.Municipality, &c.Status, &c.URL, &c.FiledAt,
		&c.Sender, &c.Diarium, &c.DecisionDate, &c.DecisionSummary, &c.CaseType,
		&documents, &c.DetailsFetched, &c.DetailsFetchAttempts, &c.LastFetchAttempt,
		&c.PrimaryCategory, &c.SecondaryCategory, &c.ProjectPhase,
		&c.CategoryConfidence, &metadata, &c.IsMedlaSuitable,
		&jobs, &c.LastCategorizedAt, &c.LastUpdatedFromSource,
		&createdAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = createdAt

	if len(documents) > 0 {
		if err := json.Unmarshal(documents, &c.Documents); err != nil {
			return nil, err
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.CategoryMetadata); err != nil {
			return nil, err
		}
	}
	if len(jobs) > 0 {
		if err := json.Unmarshal(jobs, &c.PotentialJobs); err != nil {
			return nil, err
		}
	}

	return &c, nil
}

func collectCases(rows pgx.Rows) ([]*models.Case, error) {
	var cases []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, errors.NewPersistenceError("scan case", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistenceError("iterate cases", err)
	}
	return cases, nil
}
