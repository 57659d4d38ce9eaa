package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/peer-digital/medla-projects/internal/types"
)

func TestRunHistoryRepositoryDisabledSink(t *testing.T) {
	repo := NewRunHistoryRepository(nil)

	assert.False(t, repo.Enabled())

	// Writes against a disabled sink are dropped, not errors
	err := repo.Record(context.Background(), &RunRecord{
		RunID:     "run-1",
		Partition: "Västerbotten",
		Status:    types.RunStatusCompleted,
		StartedAt: time.Now(),
	})
	assert.NoError(t, err)
}
