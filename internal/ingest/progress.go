// Package ingest implements the checkpointed ingestion pipeline: walking each
// partition's paginated search results, reconciling rows against stored
// cases, and enriching bookmarked cases with detail-page fields.
package ingest

import (
	"sync"
	"time"

	"github.com/peer-digital/medla-projects/internal/types"
)

// ProgressSink receives the snapshot sequence a run emits. The final snapshot
// of a run carries a terminal status; none follow it.
type ProgressSink interface {
	Publish(snapshot types.ProgressSnapshot)
}

// NopSink discards snapshots, for callers that do not track progress
type NopSink struct{}

// Publish implements ProgressSink
func (NopSink) Publish(types.ProgressSnapshot) {}

// progressReporter accumulates counters for one run and derives snapshots
// from them. All state is scoped to the run; nothing is shared across runs.
type progressReporter struct {
	mu sync.Mutex

	runID     string
	sink      ProgressSink
	startedAt time.Time

	total      int
	processed  int
	successful int
	failed     int
	errors     []string

	terminal bool
}

const maxReportedErrors = 20

func newProgressReporter(runID string, sink ProgressSink) *progressReporter {
	if sink == nil {
		sink = NopSink{}
	}
	return &progressReporter{
		runID:     runID,
		sink:      sink,
		startedAt: time.Now(),
	}
}

// SetTotal fixes the rough work estimate. Set once at run start; later
// upstream drift does not move it.
func (p *progressReporter) SetTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
}

// RecordProcessed adds processed/successful/failed counts
func (p *progressReporter) RecordProcessed(processed, successful, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed += processed
	p.successful += successful
	p.failed += failed
}

// RecordError captures an error message for the snapshot error tail
func (p *progressReporter) RecordError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.errors) < maxReportedErrors {
		p.errors = append(p.errors, message)
	}
}

// Emit publishes a running snapshot
func (p *progressReporter) Emit(partition types.Partition, message string) {
	p.publish(types.RunStatusRunning, partition, message, nil)
}

// Finish publishes the terminal snapshot. Further publishes are dropped, so
// the sequence has exactly one terminal element.
func (p *progressReporter) Finish(status types.RunStatus, message string, categories map[string]int) {
	p.publish(status, "", message, categories)
}

func (p *progressReporter) publish(status types.RunStatus, partition types.Partition, message string, categories map[string]int) {
	p.mu.Lock()
	if p.terminal {
		p.mu.Unlock()
		return
	}
	if status.Terminal() {
		p.terminal = true
	}

	snapshot := types.ProgressSnapshot{
		RunID:            p.runID,
		Status:           status,
		Processed:        p.processed,
		Successful:       p.successful,
		Failed:           p.failed,
		Total:            p.total,
		Percent:          percent(p.processed, p.total, status),
		CurrentPartition: partition,
		Message:          message,
		Categories:       categories,
		Errors:           append([]string(nil), p.errors...),
		Timestamp:        time.Now(),
	}

	if eta := p.estimateRemaining(); eta != nil && !status.Terminal() {
		snapshot.EstimatedTimeRemaining = eta
	}
	p.mu.Unlock()

	p.sink.Publish(snapshot)
}

// estimateRemaining extrapolates from throughput so far; caller holds the lock
func (p *progressReporter) estimateRemaining() *int {
	if p.processed == 0 || p.total <= p.processed {
		return nil
	}
	elapsed := time.Since(p.startedAt).Seconds()
	if elapsed <= 0 {
		return nil
	}
	rate := float64(p.processed) / elapsed
	remaining := int(float64(p.total-p.processed) / rate)
	return &remaining
}

func percent(processed, total int, status types.RunStatus) int {
	if status.Terminal() {
		return 100
	}
	if total <= 0 {
		return 0
	}
	pct := processed * 100 / total
	if pct > 99 {
		// The total is an estimate; never show done before the terminal snapshot
		pct = 99
	}
	return pct
}
