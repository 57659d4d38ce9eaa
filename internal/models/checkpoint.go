package models

import (
	"time"

	"github.com/peer-digital/medla-projects/internal/types"
)

// FetchCheckpoint is the durable per-partition record of fetch progress.
//
// LastPageFetched advances monotonically within one pass and resets to 0 when
// a new backfill starts. A nil LastSuccessfulFetch means the partition has
// never completed an initial backfill.
type FetchCheckpoint struct {
	PartitionKey       types.Partition `json:"partitionKey" db:"partition_key"`
	LastSuccessfulFetch *time.Time     `json:"lastSuccessfulFetch,omitempty" db:"last_successful_fetch"`
	LastPageFetched    int             `json:"lastPageFetched" db:"last_page_fetched"`
	TotalPages         *int            `json:"totalPages,omitempty" db:"total_pages"`
	ErrorCount         int             `json:"errorCount" db:"error_count"`
	LastError          *string         `json:"lastError,omitempty" db:"last_error"`
	TotalCasesChecked  int             `json:"totalCasesChecked" db:"total_cases_checked"`
	CreatedAt          time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt          *time.Time      `json:"updatedAt,omitempty" db:"updated_at"`
}

// State derives the partition's lifecycle state from the checkpoint.
func (c *FetchCheckpoint) State() types.PartitionState {
	if c.LastSuccessfulFetch == nil {
		if c.LastPageFetched > 0 {
			return types.PartitionBackfilling
		}
		return types.PartitionNeedsBackfill
	}
	return types.PartitionBackfillComplete
}

// Interrupted reports whether a backfill was cut off partway through.
func (c *FetchCheckpoint) Interrupted() bool {
	return c.State() == types.PartitionBackfilling
}

// RecordError notes a failed page fetch on the checkpoint.
func (c *FetchCheckpoint) RecordError(err error) {
	c.ErrorCount++
	msg := err.Error()
	c.LastError = &msg
}

// RecordSuccess clears the consecutive-failure state after a good page.
func (c *FetchCheckpoint) RecordSuccess() {
	c.ErrorCount = 0
	c.LastError = nil
}
