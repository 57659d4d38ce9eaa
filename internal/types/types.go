// Package types provides common type definitions for the diarium ingestion system.
package types

import "time"

// Partition identifies one source partition (a Swedish län/region).
// Each partition carries its own fetch checkpoint and is ingested independently.
type Partition string

// PartitionState represents where a partition is in its ingestion lifecycle
type PartitionState string

const (
	// PartitionNeedsBackfill represents a partition that has never completed an initial pass
	PartitionNeedsBackfill PartitionState = "needs_backfill"
	// PartitionBackfilling represents a partition with an interrupted backfill to resume
	PartitionBackfilling PartitionState = "backfilling"
	// PartitionBackfillComplete represents a partition whose initial pass has finished
	PartitionBackfillComplete PartitionState = "backfill_complete"
	// PartitionCheckingUpdates represents a completed partition being checked for changed records
	PartitionCheckingUpdates PartitionState = "checking_updates"
)

// RunStatus represents the status of an ingestion or classification run
type RunStatus string

const (
	// RunStatusRunning represents a run still in progress
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted represents a run that finished with zero failures
	RunStatusCompleted RunStatus = "completed"
	// RunStatusCompletedWithErrors represents a run that finished with partial failures
	RunStatusCompletedWithErrors RunStatus = "completed_with_errors"
	// RunStatusFailed represents a run in which every unit of work failed
	RunStatusFailed RunStatus = "failed"
	// RunStatusQuotaExceeded represents a classification run cut short by exhausted quota
	RunStatusQuotaExceeded RunStatus = "quota_exceeded"
)

// Terminal reports whether the status ends a run's snapshot sequence.
func (s RunStatus) Terminal() bool {
	return s != RunStatusRunning
}

// ReconcileOutcome represents the decision taken for one incoming record
type ReconcileOutcome string

const (
	// OutcomeInserted represents a record seen for the first time
	OutcomeInserted ReconcileOutcome = "inserted"
	// OutcomeUpdated represents an existing record refreshed with newer upstream fields
	OutcomeUpdated ReconcileOutcome = "updated"
	// OutcomeSkipped represents an existing record with no upstream change
	OutcomeSkipped ReconcileOutcome = "skipped"
)

// ProgressSnapshot is one element of the finite snapshot sequence a run emits.
// The final snapshot carries a terminal Status; every earlier snapshot is
// RunStatusRunning.
type ProgressSnapshot struct {
	RunID                  string         `json:"runId"`
	Status                 RunStatus      `json:"status"`
	Processed              int            `json:"processed"`
	Successful             int            `json:"successful"`
	Failed                 int            `json:"failed"`
	Total                  int            `json:"total"` // rough estimate, fixed at run start
	Percent                int            `json:"percent"`
	CurrentPartition       Partition      `json:"currentPartition,omitempty"`
	Message                string         `json:"message,omitempty"`
	Categories             map[string]int `json:"categories,omitempty"`
	Errors                 []string       `json:"errors,omitempty"`
	EstimatedTimeRemaining *int           `json:"estimatedTimeRemaining,omitempty"` // seconds
	Timestamp              time.Time      `json:"timestamp"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
