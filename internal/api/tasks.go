package api

import (
	"sync"

	"github.com/peer-digital/medla-projects/internal/ingest"
	"github.com/peer-digital/medla-projects/internal/types"
)

// TaskTracker keeps the latest progress snapshot for each background task.
// Each run publishes to its own tracked sink, so two concurrent runs never
// see each other's progress. At most one run per kind is active at a time:
// partitions are fetched single-flight, so overlapping ingestion runs would
// race the same checkpoints.
type TaskTracker struct {
	mu     sync.RWMutex
	tasks  map[string]types.ProgressSnapshot
	active map[string]string // task kind -> running task id
}

// NewTaskTracker creates an empty tracker
func NewTaskTracker() *TaskTracker {
	return &TaskTracker{
		tasks:  make(map[string]types.ProgressSnapshot),
		active: make(map[string]string),
	}
}

// TryStart claims the single run slot for a task kind and registers the task.
// When a run of that kind is already active, it returns that run's task id
// and false.
func (t *TaskTracker) TryStart(kind, taskID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if activeID, ok := t.active[kind]; ok {
		return activeID, false
	}

	t.active[kind] = taskID
	t.tasks[taskID] = types.ProgressSnapshot{
		RunID:  taskID,
		Status: types.RunStatusRunning,
	}
	return taskID, true
}

// Release frees the run slot for a task kind. The finished task's snapshots
// stay readable.
func (t *TaskTracker) Release(kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, kind)
}

// Register creates the task entry so Get succeeds before the run publishes
// its first snapshot.
func (t *TaskTracker) Register(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tasks[taskID] = types.ProgressSnapshot{
		RunID:  taskID,
		Status: types.RunStatusRunning,
	}
}

// Sink returns a progress sink that records snapshots under the given task id
func (t *TaskTracker) Sink(taskID string) ingest.ProgressSink {
	return &taskSink{tracker: t, taskID: taskID}
}

// Get returns the latest snapshot for a task
func (t *TaskTracker) Get(taskID string) (types.ProgressSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snapshot, ok := t.tasks[taskID]
	return snapshot, ok
}

func (t *TaskTracker) store(taskID string, snapshot types.ProgressSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tasks[taskID] = snapshot
}

type taskSink struct {
	tracker *TaskTracker
	taskID  string
}

// Publish records the snapshot under the task id. The run's internal run id
// is replaced so callers only ever see the id they were handed.
func (s *taskSink) Publish(snapshot types.ProgressSnapshot) {
	snapshot.RunID = s.taskID
	s.tracker.store(s.taskID, snapshot)
}
