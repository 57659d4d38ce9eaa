package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peer-digital/medla-projects/internal/config"
	"github.com/peer-digital/medla-projects/internal/errors"
	"github.com/peer-digital/medla-projects/internal/models"
	"github.com/peer-digital/medla-projects/internal/portal"
	"github.com/peer-digital/medla-projects/internal/types"
)

// fakeCaseStore is an in-memory CaseStore. InTx mirrors the real store:
// writes are staged and only land when fn succeeds.
type fakeCaseStore struct {
	mu         sync.Mutex
	cases      map[string]*models.Case
	inserts    int
	updates    int
	failOnCase string // inserting or updating this case number fails
}

func newFakeCaseStore() *fakeCaseStore {
	return &fakeCaseStore{cases: make(map[string]*models.Case)}
}

func (s *fakeCaseStore) InTx(_ context.Context, fn func(CaseStore) error) error {
	s.mu.Lock()
	staged := &fakeCaseStore{
		cases:      make(map[string]*models.Case, len(s.cases)),
		failOnCase: s.failOnCase,
	}
	for caseNumber, c := range s.cases {
		clone := *c
		staged.cases[caseNumber] = &clone
	}
	s.mu.Unlock()

	if err := fn(staged); err != nil {
		return err
	}

	s.mu.Lock()
	s.cases = staged.cases
	s.inserts += staged.inserts
	s.updates += staged.updates
	s.mu.Unlock()
	return nil
}

func (s *fakeCaseStore) GetByCaseNumber(_ context.Context, caseNumber string) (*models.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseNumber]
	if !ok {
		return nil, errors.NewNotFoundError("case", caseNumber)
	}
	clone := *c
	return &clone, nil
}

func (s *fakeCaseStore) Insert(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOnCase == c.CaseNumber {
		return errors.NewPersistenceError("insert case", fmt.Errorf("connection reset"))
	}
	clone := *c
	s.cases[c.CaseNumber] = &clone
	s.inserts++
	return nil
}

func (s *fakeCaseStore) UpdateFromSource(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOnCase == c.CaseNumber {
		return errors.NewPersistenceError("update case from source", fmt.Errorf("connection reset"))
	}
	if _, ok := s.cases[c.CaseNumber]; !ok {
		return errors.NewNotFoundError("case", c.CaseNumber)
	}
	clone := *c
	s.cases[c.CaseNumber] = &clone
	s.updates++
	return nil
}

// fakeCheckpointStore is an in-memory CheckpointStore
type fakeCheckpointStore struct {
	mu          sync.Mutex
	checkpoints map[types.Partition]*models.FetchCheckpoint
	saves       int
}

func newFakeCheckpointStore() *fakeCheckpointStore {
	return &fakeCheckpointStore{checkpoints: make(map[types.Partition]*models.FetchCheckpoint)}
}

func (s *fakeCheckpointStore) Get(_ context.Context, partition types.Partition) (*models.FetchCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	checkpoint, ok := s.checkpoints[partition]
	if !ok {
		return nil, errors.NewNotFoundError("checkpoint", string(partition))
	}
	clone := *checkpoint
	return &clone, nil
}

func (s *fakeCheckpointStore) Save(_ context.Context, checkpoint *models.FetchCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *checkpoint
	s.checkpoints[checkpoint.PartitionKey] = &clone
	s.saves++
	return nil
}

func (s *fakeCheckpointStore) stored(t *testing.T, partition types.Partition) *models.FetchCheckpoint {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	checkpoint, ok := s.checkpoints[partition]
	require.True(t, ok, "no checkpoint stored for %s", partition)
	clone := *checkpoint
	return &clone
}

// fakeSearcher serves canned result pages and records how it was opened
type fakeSearcher struct {
	mu         sync.Mutex
	pages      map[types.Partition][][]portal.RawRecord
	failAtPage map[types.Partition]int // 1-based; 0 means never
	opened     []openCall
}

type openCall struct {
	partition types.Partition
	startPage int
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		pages:      make(map[types.Partition][][]portal.RawRecord),
		failAtPage: make(map[types.Partition]int),
	}
}

func (s *fakeSearcher) Partitions() []types.Partition {
	partitions := make([]types.Partition, 0, len(s.pages))
	for partition := range s.pages {
		partitions = append(partitions, partition)
	}
	return partitions
}

func (s *fakeSearcher) OpenSearch(_ context.Context, partition types.Partition, startPage int) (PageCursor, error) {
	s.mu.Lock()
	s.opened = append(s.opened, openCall{partition: partition, startPage: startPage})
	s.mu.Unlock()
	return &fakeCursor{searcher: s, partition: partition, next: startPage}, nil
}

type fakeCursor struct {
	searcher  *fakeSearcher
	partition types.Partition
	next      int
}

func (c *fakeCursor) Next(_ context.Context) (*portal.SearchResultPage, int, error) {
	pages := c.searcher.pages[c.partition]
	page := c.next

	if fail := c.searcher.failAtPage[c.partition]; fail > 0 && page >= fail {
		return nil, page, errors.NewParseError("no results table found", nil)
	}
	if page > len(pages) {
		return nil, page, nil
	}

	c.next++
	total := 0
	for _, p := range pages {
		total += len(p)
	}
	return &portal.SearchResultPage{Records: pages[page-1], TotalAdvertised: &total}, page, nil
}

// collectSink gathers every published snapshot
type collectSink struct {
	mu        sync.Mutex
	snapshots []types.ProgressSnapshot
}

func (s *collectSink) Publish(snapshot types.ProgressSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot)
}

func (s *collectSink) all() []types.ProgressSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ProgressSnapshot(nil), s.snapshots...)
}

func makeRecords(prefix string, page, count int) []portal.RawRecord {
	records := make([]portal.RawRecord, count)
	for i := range records {
		id := fmt.Sprintf("%d%02d", page, i)
		records[i] = portal.RawRecord{
			CaseNumber:   fmt.Sprintf("%s-%d%02d-2024", prefix, page, i),
			PortalID:     &id,
			Status:       "Pågående",
			FiledDateRaw: "2024-03-05",
			Title:        fmt.Sprintf("Ärende %s %d-%02d", prefix, page, i),
			Municipality: "Umeå",
		}
	}
	return records
}

func testIngestConfig() *config.IngestConfig {
	return &config.IngestConfig{PageSafetyCeiling: 100, PageSize: 3}
}

func newTestCoordinator(cases CaseStore, checkpoints CheckpointStore, searcher PortalSearcher, sink ProgressSink) *Coordinator {
	return NewCoordinator(cases, checkpoints, searcher, nil, nil, sink, testIngestConfig())
}

func TestCoordinatorFreshBackfill(t *testing.T) {
	cases := newFakeCaseStore()
	checkpoints := newFakeCheckpointStore()
	searcher := newFakeSearcher()
	searcher.pages["Västerbotten"] = [][]portal.RawRecord{
		makeRecords("VB", 1, 3),
		makeRecords("VB", 2, 3),
		makeRecords("VB", 3, 2),
	}

	sink := &collectSink{}
	coordinator := newTestCoordinator(cases, checkpoints, searcher, sink)

	stats, err := coordinator.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.RunStatusCompleted, stats.Status)
	assert.Equal(t, 8, stats.Inserted)
	assert.Equal(t, 0, stats.Updated)
	assert.Equal(t, 3, stats.PagesFetched)
	assert.Len(t, cases.cases, 8)

	checkpoint := checkpoints.stored(t, "Västerbotten")
	require.NotNil(t, checkpoint.LastSuccessfulFetch)
	assert.Equal(t, 3, checkpoint.LastPageFetched)
	assert.Equal(t, 8, checkpoint.TotalCasesChecked)
	assert.Equal(t, 0, checkpoint.ErrorCount)
	assert.Equal(t, types.PartitionBackfillComplete, checkpoint.State())

	// One terminal snapshot, at the end
	snapshots := sink.all()
	require.NotEmpty(t, snapshots)
	for _, snapshot := range snapshots[:len(snapshots)-1] {
		assert.Equal(t, types.RunStatusRunning, snapshot.Status)
	}
	final := snapshots[len(snapshots)-1]
	assert.True(t, final.Status.Terminal())
	assert.Equal(t, 100, final.Percent)
}

func TestCoordinatorCheckpointSavedAfterEveryPage(t *testing.T) {
	cases := newFakeCaseStore()
	checkpoints := newFakeCheckpointStore()
	searcher := newFakeSearcher()
	searcher.pages["Västerbotten"] = [][]portal.RawRecord{
		makeRecords("VB", 1, 3),
		makeRecords("VB", 2, 3),
	}

	coordinator := newTestCoordinator(cases, checkpoints, searcher, nil)
	_, err := coordinator.Run(context.Background())
	require.NoError(t, err)

	// One save per page plus the completion save
	assert.Equal(t, 3, checkpoints.saves)
}

func TestCoordinatorResumesInterruptedBackfill(t *testing.T) {
	cases := newFakeCaseStore()
	checkpoints := newFakeCheckpointStore()
	searcher := newFakeSearcher()
	searcher.pages["Västerbotten"] = [][]portal.RawRecord{
		makeRecords("VB", 1, 3),
		makeRecords("VB", 2, 3),
		makeRecords("VB", 3, 3),
		makeRecords("VB", 4, 1),
	}

	// Two pages already done in an interrupted earlier pass
	require.NoError(t, checkpoints.Save(context.Background(), &models.FetchCheckpoint{
		PartitionKey:      "Västerbotten",
		LastPageFetched:   2,
		TotalCasesChecked: 6,
	}))

	coordinator := newTestCoordinator(cases, checkpoints, searcher, nil)
	stats, err := coordinator.Run(context.Background())
	require.NoError(t, err)

	// Pages 1-2 are neither re-fetched nor re-reconciled; page 3 is not skipped
	require.Len(t, searcher.opened, 1)
	assert.Equal(t, 3, searcher.opened[0].startPage)
	assert.Equal(t, 2, stats.PagesFetched)
	assert.Equal(t, 4, stats.Inserted)

	checkpoint := checkpoints.stored(t, "Västerbotten")
	assert.Equal(t, 4, checkpoint.LastPageFetched)
	assert.Equal(t, 10, checkpoint.TotalCasesChecked)
	require.NotNil(t, checkpoint.LastSuccessfulFetch)
}

func TestCoordinatorUpdatePassStopsAtUnchangedPage(t *testing.T) {
	cases := newFakeCaseStore()
	checkpoints := newFakeCheckpointStore()
	searcher := newFakeSearcher()
	searcher.pages["Västerbotten"] = [][]portal.RawRecord{
		makeRecords("VB", 1, 3),
		makeRecords("VB", 2, 3),
	}

	coordinator := newTestCoordinator(cases, checkpoints, searcher, nil)

	// First run backfills everything
	_, err := coordinator.Run(context.Background())
	require.NoError(t, err)
	before := checkpoints.stored(t, "Västerbotten")

	// Second run is an update check: page 1 is fully unchanged, so page 2 is
	// never fetched
	stats, err := coordinator.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.RunStatusCompleted, stats.Status)
	assert.Equal(t, 0, stats.Inserted)
	assert.Equal(t, 0, stats.Updated)
	assert.Equal(t, 3, stats.Skipped)
	assert.Equal(t, 1, stats.PagesFetched)

	checkpoint := checkpoints.stored(t, "Västerbotten")
	// An update pass leaves the backfill high-water mark alone
	assert.Equal(t, before.LastPageFetched, checkpoint.LastPageFetched)
	assert.True(t, checkpoint.LastSuccessfulFetch.After(*before.LastSuccessfulFetch) ||
		checkpoint.LastSuccessfulFetch.Equal(*before.LastSuccessfulFetch))
}

func TestCoordinatorUpdatePassPicksUpChanges(t *testing.T) {
	cases := newFakeCaseStore()
	checkpoints := newFakeCheckpointStore()
	searcher := newFakeSearcher()
	page1 := makeRecords("VB", 1, 3)
	page2 := makeRecords("VB", 2, 3)
	searcher.pages["Västerbotten"] = [][]portal.RawRecord{page1, page2}

	coordinator := newTestCoordinator(cases, checkpoints, searcher, nil)
	_, err := coordinator.Run(context.Background())
	require.NoError(t, err)

	// A decision lands on one case and a brand new case appears at the top
	changed := page1[1]
	changed.Status = "Avslutat"
	changed.DecisionDateRaw = "2024-06-10"
	newID := "999"
	newCase := portal.RawRecord{
		CaseNumber:   "VB-NEW-2024",
		PortalID:     &newID,
		Status:       "Pågående",
		FiledDateRaw: "2024-06-11",
		Title:        "Nytt ärende",
	}
	searcher.pages["Västerbotten"] = [][]portal.RawRecord{
		{newCase, page1[0], changed},
		{page1[2], page2[0], page2[1]},
		{page2[2]},
	}

	stats, err := coordinator.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1, stats.Updated)
	// Page 2 is fully unchanged, so page 3 is never fetched
	assert.Equal(t, 2, stats.PagesFetched)

	stored, err := cases.GetByCaseNumber(context.Background(), changed.CaseNumber)
	require.NoError(t, err)
	require.NotNil(t, stored.Status)
	assert.Equal(t, "Avslutat", *stored.Status)
	require.NotNil(t, stored.DecisionDate)
	// The change marker comes from the filing itself, not the wall clock
	require.NotNil(t, stored.LastUpdatedFromSource)
	assert.Equal(t, "2024-06-10", stored.LastUpdatedFromSource.Format("2006-01-02"))
}

func TestCoordinatorReingestIsIdempotent(t *testing.T) {
	cases := newFakeCaseStore()
	checkpoints := newFakeCheckpointStore()
	searcher := newFakeSearcher()
	searcher.pages["Västerbotten"] = [][]portal.RawRecord{makeRecords("VB", 1, 3)}

	coordinator := newTestCoordinator(cases, checkpoints, searcher, nil)

	_, err := coordinator.Run(context.Background())
	require.NoError(t, err)
	_, err = coordinator.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, cases.inserts)
	assert.Equal(t, 0, cases.updates)
	assert.Len(t, cases.cases, 3)
}

func TestCoordinatorPartitionFailureIsIsolated(t *testing.T) {
	cases := newFakeCaseStore()
	checkpoints := newFakeCheckpointStore()
	searcher := newFakeSearcher()
	searcher.pages["Norrbotten"] = [][]portal.RawRecord{makeRecords("NB", 1, 2)}
	searcher.pages["Västerbotten"] = [][]portal.RawRecord{makeRecords("VB", 1, 2)}
	searcher.failAtPage["Norrbotten"] = 1

	coordinator := newTestCoordinator(cases, checkpoints, searcher, nil)
	stats, err := coordinator.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.RunStatusCompletedWithErrors, stats.Status)
	assert.Equal(t, 1, stats.PartitionsFailed)
	assert.Equal(t, 2, stats.Inserted)

	failed := checkpoints.stored(t, "Norrbotten")
	assert.Equal(t, 1, failed.ErrorCount)
	require.NotNil(t, failed.LastError)
	assert.Nil(t, failed.LastSuccessfulFetch)

	healthy := checkpoints.stored(t, "Västerbotten")
	require.NotNil(t, healthy.LastSuccessfulFetch)
	assert.Equal(t, 0, healthy.ErrorCount)
}

func TestCoordinatorInterruptedBackfillGoesFirst(t *testing.T) {
	cases := newFakeCaseStore()
	checkpoints := newFakeCheckpointStore()
	searcher := newFakeSearcher()
	searcher.pages["Halland"] = [][]portal.RawRecord{makeRecords("HA", 1, 1)}
	searcher.pages["Skåne"] = [][]portal.RawRecord{makeRecords("SK", 1, 1)}
	searcher.pages["Västerbotten"] = [][]portal.RawRecord{
		makeRecords("VB", 1, 1),
		makeRecords("VB", 2, 1),
	}

	// Västerbotten was interrupted partway through its backfill
	require.NoError(t, checkpoints.Save(context.Background(), &models.FetchCheckpoint{
		PartitionKey:    "Västerbotten",
		LastPageFetched: 1,
	}))

	coordinator := newTestCoordinator(cases, checkpoints, searcher, nil)
	_, err := coordinator.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, searcher.opened, 3)
	assert.Equal(t, types.Partition("Västerbotten"), searcher.opened[0].partition)
	// Fresh partitions follow in name order
	assert.Equal(t, types.Partition("Halland"), searcher.opened[1].partition)
	assert.Equal(t, types.Partition("Skåne"), searcher.opened[2].partition)
}

func TestCoordinatorPageSafetyCeiling(t *testing.T) {
	cases := newFakeCaseStore()
	checkpoints := newFakeCheckpointStore()
	searcher := newFakeSearcher()
	searcher.pages["Västerbotten"] = [][]portal.RawRecord{
		makeRecords("VB", 1, 2),
		makeRecords("VB", 2, 2),
		makeRecords("VB", 3, 2),
		makeRecords("VB", 4, 2),
	}

	cfg := testIngestConfig()
	cfg.PageSafetyCeiling = 2
	coordinator := NewCoordinator(cases, checkpoints, searcher, nil, nil, nil, cfg)

	stats, err := coordinator.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PagesFetched)

	// The partition stays resumable: next run continues at page 3
	checkpoint := checkpoints.stored(t, "Västerbotten")
	assert.Nil(t, checkpoint.LastSuccessfulFetch)
	assert.Equal(t, 2, checkpoint.LastPageFetched)
	assert.Equal(t, types.PartitionBackfilling, checkpoint.State())

	_, err = coordinator.Run(context.Background())
	require.NoError(t, err)
	last := searcher.opened[len(searcher.opened)-1]
	assert.Equal(t, 3, last.startPage)
}

func TestCoordinatorSkipsRowsWithoutCaseNumber(t *testing.T) {
	cases := newFakeCaseStore()
	checkpoints := newFakeCheckpointStore()
	searcher := newFakeSearcher()
	records := makeRecords("VB", 1, 3)
	records[1].CaseNumber = ""
	searcher.pages["Västerbotten"] = [][]portal.RawRecord{records}

	coordinator := newTestCoordinator(cases, checkpoints, searcher, nil)
	stats, err := coordinator.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 1, stats.RecordErrors)
	assert.Equal(t, types.RunStatusCompletedWithErrors, stats.Status)
}

func TestCoordinatorSnapshotPerRecord(t *testing.T) {
	cases := newFakeCaseStore()
	checkpoints := newFakeCheckpointStore()
	searcher := newFakeSearcher()
	searcher.pages["Västerbotten"] = [][]portal.RawRecord{makeRecords("VB", 1, 3)}

	sink := &collectSink{}
	coordinator := newTestCoordinator(cases, checkpoints, searcher, sink)

	_, err := coordinator.Run(context.Background())
	require.NoError(t, err)

	running := 0
	for _, snapshot := range sink.all() {
		if snapshot.Status == types.RunStatusRunning {
			running++
		}
	}
	// One running snapshot per reconciled record, not per page
	assert.Equal(t, 3, running)
}

func TestCoordinatorPageAppliesAsUnit(t *testing.T) {
	cases := newFakeCaseStore()
	cases.failOnCase = "VB-101-2024" // second record of the page
	checkpoints := newFakeCheckpointStore()
	searcher := newFakeSearcher()
	searcher.pages["Västerbotten"] = [][]portal.RawRecord{makeRecords("VB", 1, 3)}

	coordinator := newTestCoordinator(cases, checkpoints, searcher, nil)
	stats, err := coordinator.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.RunStatusFailed, stats.Status)
	assert.Equal(t, 1, stats.PartitionsFailed)
	// The record before the failure rolled back with the page
	assert.Empty(t, cases.cases)
	assert.Equal(t, 0, stats.Inserted)

	// The checkpoint never advanced, so the next run refetches the page
	checkpoint := checkpoints.stored(t, "Västerbotten")
	assert.Equal(t, 0, checkpoint.LastPageFetched)
	assert.Equal(t, 1, checkpoint.ErrorCount)
	require.NotNil(t, checkpoint.LastError)
}

func TestCoordinatorCancellationPreservesCheckpoint(t *testing.T) {
	cases := newFakeCaseStore()
	checkpoints := newFakeCheckpointStore()
	searcher := newFakeSearcher()
	searcher.pages["Västerbotten"] = [][]portal.RawRecord{
		makeRecords("VB", 1, 2),
		makeRecords("VB", 2, 2),
		makeRecords("VB", 3, 2),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancelling := &cancelAfterSink{cancel: cancel, afterSnapshots: 1}
	coordinator := newTestCoordinator(cases, checkpoints, searcher, cancelling)

	stats, err := coordinator.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, context.Canceled, err)

	// The page completed before cancellation is durably checkpointed
	checkpoint := checkpoints.stored(t, "Västerbotten")
	assert.GreaterOrEqual(t, checkpoint.LastPageFetched, 1)
	assert.Nil(t, checkpoint.LastSuccessfulFetch)
	assert.Less(t, stats.PagesFetched, 3)
}

// cancelAfterSink cancels the run context after a number of snapshots
type cancelAfterSink struct {
	mu             sync.Mutex
	cancel         context.CancelFunc
	afterSnapshots int
	seen           int
}

func (s *cancelAfterSink) Publish(types.ProgressSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen++
	if s.seen == s.afterSnapshots {
		s.cancel()
	}
}

func TestProgressSnapshotSequence(t *testing.T) {
	sink := &collectSink{}
	reporter := newProgressReporter("run-1", sink)
	reporter.SetTotal(100)

	reporter.RecordProcessed(50, 48, 2)
	reporter.Emit("Västerbotten", "page 1")
	reporter.Finish(types.RunStatusCompletedWithErrors, "done", nil)
	// Publishes after the terminal snapshot are dropped
	reporter.Emit("Västerbotten", "late")
	reporter.Finish(types.RunStatusCompleted, "late finish", nil)

	snapshots := sink.all()
	require.Len(t, snapshots, 2)

	running := snapshots[0]
	assert.Equal(t, types.RunStatusRunning, running.Status)
	assert.Equal(t, 50, running.Processed)
	assert.Equal(t, 48, running.Successful)
	assert.Equal(t, 2, running.Failed)
	assert.Equal(t, 50, running.Percent)

	final := snapshots[1]
	assert.Equal(t, types.RunStatusCompletedWithErrors, final.Status)
	assert.Equal(t, 100, final.Percent)
}

func TestProgressPercentNeverReportsDoneEarly(t *testing.T) {
	sink := &collectSink{}
	reporter := newProgressReporter("run-1", sink)
	reporter.SetTotal(10)

	// The estimate undershot: more work than estimated
	reporter.RecordProcessed(25, 25, 0)
	reporter.Emit("Västerbotten", "page 9")

	snapshots := sink.all()
	require.Len(t, snapshots, 1)
	assert.Equal(t, 99, snapshots[0].Percent)
}

func TestRunOutcome(t *testing.T) {
	tests := []struct {
		name  string
		stats RunStats
		want  types.RunStatus
	}{
		{"all clean", RunStats{PartitionsProcessed: 3}, types.RunStatusCompleted},
		{"record errors", RunStats{PartitionsProcessed: 3, RecordErrors: 1}, types.RunStatusCompletedWithErrors},
		{"some partitions failed", RunStats{PartitionsProcessed: 3, PartitionsFailed: 1}, types.RunStatusCompletedWithErrors},
		{"all partitions failed", RunStats{PartitionsProcessed: 2, PartitionsFailed: 2}, types.RunStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runOutcome(&tt.stats))
		})
	}
}
