package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/peer-digital/medla-projects/internal/config"
	"github.com/peer-digital/medla-projects/internal/dateutil"
	"github.com/peer-digital/medla-projects/internal/errors"
	"github.com/peer-digital/medla-projects/internal/logging"
	"github.com/peer-digital/medla-projects/internal/models"
	"github.com/peer-digital/medla-projects/internal/portal"
	"github.com/peer-digital/medla-projects/internal/storage"
	"github.com/peer-digital/medla-projects/internal/types"
)

// CaseStore is the case persistence surface the coordinator needs. InTx runs
// fn against a transaction-scoped view of the store; everything fn writes
// commits together or rolls back together.
type CaseStore interface {
	GetByCaseNumber(ctx context.Context, caseNumber string) (*models.Case, error)
	Insert(ctx context.Context, c *models.Case) error
	UpdateFromSource(ctx context.Context, c *models.Case) error
	InTx(ctx context.Context, fn func(CaseStore) error) error
}

// CheckpointStore is the checkpoint persistence surface the coordinator needs
type CheckpointStore interface {
	Get(ctx context.Context, partition types.Partition) (*models.FetchCheckpoint, error)
	Save(ctx context.Context, checkpoint *models.FetchCheckpoint) error
}

// PageCursor yields parsed result pages in page order
type PageCursor interface {
	Next(ctx context.Context) (*portal.SearchResultPage, int, error)
}

// PortalSearcher opens paginated search passes over partitions
type PortalSearcher interface {
	Partitions() []types.Partition
	OpenSearch(ctx context.Context, partition types.Partition, startPage int) (PageCursor, error)
}

// CaseLookupCache fronts case lookups during reconciliation. Optional.
type CaseLookupCache interface {
	Get(ctx context.Context, caseNumber string) (*models.Case, bool)
	Set(ctx context.Context, c *models.Case)
	Invalidate(ctx context.Context, caseNumber string)
}

// RunHistorySink receives per-partition run records. Optional.
type RunHistorySink interface {
	Record(ctx context.Context, record *storage.RunRecord) error
}

// AdaptCaseRepository exposes a storage.CaseRepository through the CaseStore
// interface
func AdaptCaseRepository(repo *storage.CaseRepository) CaseStore {
	return caseRepositoryAdapter{repo}
}

type caseRepositoryAdapter struct {
	repo *storage.CaseRepository
}

func (a caseRepositoryAdapter) GetByCaseNumber(ctx context.Context, caseNumber string) (*models.Case, error) {
	return a.repo.GetByCaseNumber(ctx, caseNumber)
}

func (a caseRepositoryAdapter) Insert(ctx context.Context, c *models.Case) error {
	return a.repo.Insert(ctx, c)
}

func (a caseRepositoryAdapter) UpdateFromSource(ctx context.Context, c *models.Case) error {
	return a.repo.UpdateFromSource(ctx, c)
}

func (a caseRepositoryAdapter) InTx(ctx context.Context, fn func(CaseStore) error) error {
	return a.repo.InTx(ctx, func(txRepo *storage.CaseRepository) error {
		return fn(caseRepositoryAdapter{txRepo})
	})
}

// AdaptSearcher exposes a portal.Searcher through the PortalSearcher interface
func AdaptSearcher(s *portal.Searcher) PortalSearcher {
	return portalSearcherAdapter{s}
}

type portalSearcherAdapter struct {
	searcher *portal.Searcher
}

func (a portalSearcherAdapter) Partitions() []types.Partition {
	return a.searcher.Partitions()
}

func (a portalSearcherAdapter) OpenSearch(ctx context.Context, partition types.Partition, startPage int) (PageCursor, error) {
	cursor, err := a.searcher.OpenSearch(ctx, partition, startPage)
	if err != nil {
		return nil, err
	}
	return cursor, nil
}

// RunStats summarizes one coordinator run
type RunStats struct {
	RunID               string          `json:"runId"`
	Status              types.RunStatus `json:"status"`
	PartitionsProcessed int             `json:"partitionsProcessed"`
	PartitionsFailed    int             `json:"partitionsFailed"`
	PagesFetched        int             `json:"pagesFetched"`
	Inserted            int             `json:"inserted"`
	Updated             int             `json:"updated"`
	Skipped             int             `json:"skipped"`
	RecordErrors        int             `json:"recordErrors"`
	StartedAt           time.Time       `json:"startedAt"`
	FinishedAt          time.Time       `json:"finishedAt"`
}

// Coordinator drives ingestion across all configured partitions. One run
// walks every partition in priority order, persisting the partition's
// checkpoint after every page so an interruption loses at most the page in
// flight.
type Coordinator struct {
	cases       CaseStore
	checkpoints CheckpointStore
	searcher    PortalSearcher
	cache       CaseLookupCache
	history     RunHistorySink
	sink        ProgressSink
	cfg         *config.IngestConfig
}

// NewCoordinator creates an ingestion coordinator. cache, history, and sink
// may be nil.
func NewCoordinator(
	cases CaseStore,
	checkpoints CheckpointStore,
	searcher PortalSearcher,
	cache CaseLookupCache,
	history RunHistorySink,
	sink ProgressSink,
	cfg *config.IngestConfig,
) *Coordinator {
	return &Coordinator{
		cases:       cases,
		checkpoints: checkpoints,
		searcher:    searcher,
		cache:       cache,
		history:     history,
		sink:        sink,
		cfg:         cfg,
	}
}

// partitionStats tracks one partition's outcome within a run
type partitionStats struct {
	pages    int
	inserted int
	updated  int
	skipped  int
	errors   int
}

// Run executes one full ingestion pass
func (c *Coordinator) Run(ctx context.Context) (*RunStats, error) {
	return c.RunWith(ctx, c.sink)
}

// RunWith executes one full ingestion pass publishing snapshots to the given
// sink, overriding the construction-time one. Used when each run gets its own
// tracked progress context.
func (c *Coordinator) RunWith(ctx context.Context, sink ProgressSink) (*RunStats, error) {
	runID := uuid.New().String()
	logger := logging.FromContext(ctx).WithField("runId", runID)
	ctx = logging.WithLogger(ctx, logger)

	stats := &RunStats{
		RunID:     runID,
		Status:    types.RunStatusRunning,
		StartedAt: time.Now(),
	}

	plan, err := c.buildPlan(ctx)
	if err != nil {
		stats.Status = types.RunStatusFailed
		stats.FinishedAt = time.Now()
		return stats, err
	}

	reporter := newProgressReporter(runID, sink)
	reporter.SetTotal(c.estimateTotal(plan))

	logger.WithField("partitions", len(plan)).Info("Starting ingestion run")

	for _, checkpoint := range plan {
		if ctx.Err() != nil {
			break
		}

		partitionLogger := logger.WithPartition(string(checkpoint.PartitionKey))
		partitionCtx := logging.WithLogger(ctx, partitionLogger)

		startedAt := time.Now()
		partStats, err := c.processPartition(partitionCtx, reporter, checkpoint)

		stats.PartitionsProcessed++
		stats.PagesFetched += partStats.pages
		stats.Inserted += partStats.inserted
		stats.Updated += partStats.updated
		stats.Skipped += partStats.skipped
		stats.RecordErrors += partStats.errors

		status := types.RunStatusCompleted
		if err != nil {
			stats.PartitionsFailed++
			status = types.RunStatusFailed
			reporter.RecordError(fmt.Sprintf("%s: %v", checkpoint.PartitionKey, err))
			partitionLogger.WithError(err).Error("Partition ingestion aborted")
		} else if partStats.errors > 0 {
			status = types.RunStatusCompletedWithErrors
		}

		c.recordHistory(partitionCtx, runID, checkpoint.PartitionKey, status, partStats, startedAt)
	}

	stats.FinishedAt = time.Now()
	stats.Status = runOutcome(stats)

	reporter.Finish(stats.Status, fmt.Sprintf(
		"ingested %d partitions: %d inserted, %d updated, %d skipped",
		stats.PartitionsProcessed, stats.Inserted, stats.Updated, stats.Skipped), nil)

	logger.WithFields(map[string]interface{}{
		"status":   stats.Status,
		"inserted": stats.Inserted,
		"updated":  stats.Updated,
		"skipped":  stats.Skipped,
		"errors":   stats.RecordErrors,
	}).Info("Ingestion run finished")

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// buildPlan loads or creates a checkpoint per partition and orders the work:
// interrupted backfills first, then fewest pages fetched, then name.
func (c *Coordinator) buildPlan(ctx context.Context) ([]*models.FetchCheckpoint, error) {
	partitions := c.searcher.Partitions()
	if len(partitions) == 0 {
		return nil, errors.NewInvalidInputError("no partitions configured")
	}

	plan := make([]*models.FetchCheckpoint, 0, len(partitions))
	for _, partition := range partitions {
		checkpoint, err := c.checkpoints.Get(ctx, partition)
		if err != nil {
			if !errors.IsNotFound(err) {
				return nil, err
			}
			checkpoint = &models.FetchCheckpoint{PartitionKey: partition}
		}
		plan = append(plan, checkpoint)
	}

	sort.Slice(plan, func(i, j int) bool {
		a, b := plan[i], plan[j]
		if a.Interrupted() != b.Interrupted() {
			return a.Interrupted()
		}
		if a.LastPageFetched != b.LastPageFetched {
			return a.LastPageFetched < b.LastPageFetched
		}
		return a.PartitionKey < b.PartitionKey
	})

	return plan, nil
}

// estimateTotal derives the run's rough work estimate from known page counts.
// Fixed at run start; upstream drift during the run does not move it.
func (c *Coordinator) estimateTotal(plan []*models.FetchCheckpoint) int {
	total := 0
	for _, checkpoint := range plan {
		if checkpoint.TotalPages != nil {
			total += *checkpoint.TotalPages * c.cfg.PageSize
		} else {
			total += c.cfg.PageSize
		}
	}
	return total
}

// processPartition walks one partition's pages. A returned error aborts only
// this partition; the failure is recorded on its checkpoint and the run moves
// on to the next partition.
func (c *Coordinator) processPartition(ctx context.Context, reporter *progressReporter, checkpoint *models.FetchCheckpoint) (partitionStats, error) {
	var stats partitionStats
	logger := logging.FromContext(ctx)

	state := checkpoint.State()
	updatePass := state == types.PartitionBackfillComplete

	startPage := 1
	if state == types.PartitionBackfilling {
		startPage = checkpoint.LastPageFetched + 1
	}

	logger.WithFields(map[string]interface{}{
		"state":     string(state),
		"startPage": startPage,
	}).Info("Processing partition")

	cursor, err := c.searcher.OpenSearch(ctx, checkpoint.PartitionKey, startPage)
	if err != nil {
		return stats, c.abortPartition(ctx, checkpoint, err)
	}

	completed := false
	for {
		if err := ctx.Err(); err != nil {
			// Interrupted mid-pass; the checkpoint already reflects the last
			// completed page.
			return stats, err
		}

		if stats.pages >= c.cfg.PageSafetyCeiling {
			logger.WithField("pages", stats.pages).Warn("Page safety ceiling reached, deferring rest of partition")
			break
		}

		page, pageNumber, err := cursor.Next(ctx)
		if err != nil {
			return stats, c.abortPartition(ctx, checkpoint, err)
		}
		if page == nil {
			completed = true
			break
		}

		stats.pages++

		if page.TotalAdvertised != nil && c.cfg.PageSize > 0 {
			totalPages := (*page.TotalAdvertised + c.cfg.PageSize - 1) / c.cfg.PageSize
			checkpoint.TotalPages = &totalPages
		}

		inserted, updated, skipped, failed, err := c.reconcilePage(ctx, reporter, checkpoint.PartitionKey, page.Records)
		if err != nil {
			// The page rolled back whole; the checkpoint stays put so the
			// next run refetches it.
			return stats, c.abortPartition(ctx, checkpoint, err)
		}
		stats.inserted += inserted
		stats.updated += updated
		stats.skipped += skipped
		stats.errors += failed

		checkpoint.TotalCasesChecked += len(page.Records)
		checkpoint.RecordSuccess()
		if !updatePass {
			checkpoint.LastPageFetched = pageNumber
		}

		if err := c.checkpoints.Save(ctx, checkpoint); err != nil {
			return stats, err
		}

		// Results are newest first: an update pass that finds a fully
		// unchanged page has reached records older than the last check.
		if updatePass && len(page.Records) > 0 && inserted == 0 && updated == 0 {
			completed = true
			break
		}
	}

	if completed {
		now := time.Now()
		checkpoint.LastSuccessfulFetch = &now
		if err := c.checkpoints.Save(ctx, checkpoint); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

// abortPartition records a partition-level failure on its checkpoint
func (c *Coordinator) abortPartition(ctx context.Context, checkpoint *models.FetchCheckpoint, cause error) error {
	checkpoint.RecordError(cause)
	if err := c.checkpoints.Save(ctx, checkpoint); err != nil {
		logging.FromContext(ctx).WithError(err).Error("Failed to persist checkpoint after partition error")
	}
	return cause
}

// pageOutcome carries one record's reconciliation result out of the page
// transaction so cache updates can wait for the commit.
type pageOutcome struct {
	outcome types.ReconcileOutcome
	c       *models.Case
}

// reconcilePage applies one page of records as a single transaction: all of a
// page's writes land together or not at all. Rows without a case number are
// counted as record errors and skipped; a persistence error rolls the whole
// page back and is returned.
func (c *Coordinator) reconcilePage(ctx context.Context, reporter *progressReporter, partition types.Partition, records []portal.RawRecord) (inserted, updated, skipped, failed int, err error) {
	var outcomes []pageOutcome

	txErr := c.cases.InTx(ctx, func(store CaseStore) error {
		for i := range records {
			record := &records[i]

			if record.CaseNumber == "" {
				failed++
				reporter.RecordProcessed(1, 0, 1)
				reporter.RecordError("search result row has no case number")
				reporter.Emit(partition, "skipped row without case number")
				logging.FromContext(ctx).Warn("Search result row has no case number")
				continue
			}

			result, reconcileErr := c.reconcile(ctx, store, partition, record)
			if reconcileErr != nil {
				return reconcileErr
			}

			switch result.outcome {
			case types.OutcomeInserted:
				inserted++
			case types.OutcomeUpdated:
				updated++
			case types.OutcomeSkipped:
				skipped++
			}
			outcomes = append(outcomes, result)

			reporter.RecordProcessed(1, 1, 0)
			reporter.Emit(partition, fmt.Sprintf("case %s", record.CaseNumber))
		}
		return nil
	})
	if txErr != nil {
		return 0, 0, 0, 0, txErr
	}

	// Cache only what actually committed
	for _, result := range outcomes {
		switch result.outcome {
		case types.OutcomeUpdated:
			c.cacheInvalidate(ctx, result.c.CaseNumber)
		default:
			c.cacheSet(ctx, result.c)
		}
	}

	return inserted, updated, skipped, failed, nil
}

// reconcile decides insert/update/skip for one incoming row. The case number
// is the identity; the caller has already rejected rows without one.
func (c *Coordinator) reconcile(ctx context.Context, store CaseStore, partition types.Partition, record *portal.RawRecord) (pageOutcome, error) {
	incoming := buildCase(partition, record)
	marker := upstreamChangeMarker(incoming)

	existing, cached := c.cacheGet(ctx, record.CaseNumber)
	if !cached {
		var err error
		existing, err = store.GetByCaseNumber(ctx, record.CaseNumber)
		if err != nil && !errors.IsNotFound(err) {
			return pageOutcome{}, err
		}
	}

	if existing == nil {
		incoming.LastUpdatedFromSource = marker
		if err := store.Insert(ctx, incoming); err != nil {
			return pageOutcome{}, err
		}
		return pageOutcome{types.OutcomeInserted, incoming}, nil
	}

	if !existing.SourceNewer(marker) && !sourceChanged(existing, incoming) {
		return pageOutcome{types.OutcomeSkipped, existing}, nil
	}

	// The filing's own dates are the change marker, not wall-clock time. A
	// content change with no newer date keeps the stored marker.
	incoming.LastUpdatedFromSource = existing.LastUpdatedFromSource
	if existing.SourceNewer(marker) {
		incoming.LastUpdatedFromSource = marker
	}
	if err := store.UpdateFromSource(ctx, incoming); err != nil {
		return pageOutcome{}, err
	}
	return pageOutcome{types.OutcomeUpdated, incoming}, nil
}

// upstreamChangeMarker is the newest upstream field indicating the filing
// changed: the decision date when present, else the filing date.
func upstreamChangeMarker(c *models.Case) *time.Time {
	marker := c.FiledAt
	if c.DecisionDate != nil && (marker == nil || c.DecisionDate.After(*marker)) {
		marker = c.DecisionDate
	}
	return marker
}

func (c *Coordinator) cacheGet(ctx context.Context, caseNumber string) (*models.Case, bool) {
	if c.cache == nil {
		return nil, false
	}
	return c.cache.Get(ctx, caseNumber)
}

func (c *Coordinator) cacheSet(ctx context.Context, cached *models.Case) {
	if c.cache != nil {
		c.cache.Set(ctx, cached)
	}
}

func (c *Coordinator) cacheInvalidate(ctx context.Context, caseNumber string) {
	if c.cache != nil {
		c.cache.Invalidate(ctx, caseNumber)
	}
}

func (c *Coordinator) recordHistory(ctx context.Context, runID string, partition types.Partition, status types.RunStatus, stats partitionStats, startedAt time.Time) {
	if c.history == nil {
		return
	}
	record := &storage.RunRecord{
		RunID:         runID,
		Partition:     partition,
		Status:        status,
		PagesFetched:  stats.pages,
		CasesInserted: stats.inserted,
		CasesUpdated:  stats.updated,
		CasesSkipped:  stats.skipped,
		Errors:        stats.errors,
		StartedAt:     startedAt,
		FinishedAt:    time.Now(),
	}
	if err := c.history.Record(ctx, record); err != nil {
		// Analytics must never fail ingestion
		logging.FromContext(ctx).WithError(err).Warn("Failed to record run history")
	}
}

// buildCase converts a raw search row into a case record
func buildCase(partition types.Partition, record *portal.RawRecord) *models.Case {
	c := &models.Case{
		CaseNumber:      record.CaseNumber,
		PortalID:        record.PortalID,
		SourcePartition: partition,
		Title:           record.Title,
		URL:             record.URL,
		FiledAt:         dateutil.Parse(record.FiledDateRaw),
		DecisionDate:    dateutil.Parse(record.DecisionDateRaw),
	}
	if record.Status != "" {
		status := record.Status
		c.Status = &status
	}
	if record.Location != "" {
		location := record.Location
		c.Location = &location
	}
	if record.Municipality != "" {
		municipality := record.Municipality
		c.Municipality = &municipality
	}
	if record.Sender != "" {
		sender := record.Sender
		c.Sender = &sender
	}
	return c
}

// sourceChanged compares the listing-visible fields of the stored case with
// the incoming row. The portal exposes no change marker on listings, so a
// content diff stands in for one.
func sourceChanged(existing, incoming *models.Case) bool {
	return existing.Title != incoming.Title ||
		!stringPtrEqual(existing.Status, incoming.Status) ||
		!stringPtrEqual(existing.Municipality, incoming.Municipality) ||
		!timePtrEqual(existing.FiledAt, incoming.FiledAt) ||
		!timePtrEqual(existing.DecisionDate, incoming.DecisionDate)
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func runOutcome(stats *RunStats) types.RunStatus {
	switch {
	case stats.PartitionsProcessed > 0 && stats.PartitionsFailed == stats.PartitionsProcessed:
		return types.RunStatusFailed
	case stats.PartitionsFailed > 0 || stats.RecordErrors > 0:
		return types.RunStatusCompletedWithErrors
	default:
		return types.RunStatusCompleted
	}
}
