package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/peer-digital/medla-projects/internal/logging"
)

// Task kinds with a single run slot each.
const (
	taskKindIngest   = "ingest"
	taskKindClassify = "classify"
)

// handleStartIngestRun handles POST /api/v1/ingest/runs - Start an ingestion run
//
// The run executes in the background; the response carries a task id the
// caller polls via /api/v1/tasks/{id}. Only one ingestion run may be active
// at a time; a second request gets 409 with the running task's id.
func (s *Server) handleStartIngestRun(w http.ResponseWriter, r *http.Request) {
	taskID := uuid.New().String()
	activeID, ok := s.tasks.TryStart(taskKindIngest, taskID)
	if !ok {
		respondError(w, http.StatusConflict, ErrCodeConflict, "An ingestion run is already in progress", map[string]interface{}{
			"taskId": activeID,
		})
		return
	}

	// Detached from the request context: the run outlives the HTTP request
	ctx := logging.WithLogger(context.Background(), s.logger.WithField("taskId", taskID))

	go func() {
		defer s.tasks.Release(taskKindIngest)
		if _, err := s.ingestor.RunWith(ctx, s.tasks.Sink(taskID)); err != nil {
			s.logger.WithError(err).WithField("taskId", taskID).Error("Ingestion run failed")
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
}

// handleStartClassifyRun handles POST /api/v1/classify/runs - Start a classification run
func (s *Server) handleStartClassifyRun(w http.ResponseWriter, r *http.Request) {
	taskID := uuid.New().String()
	activeID, ok := s.tasks.TryStart(taskKindClassify, taskID)
	if !ok {
		respondError(w, http.StatusConflict, ErrCodeConflict, "A classification run is already in progress", map[string]interface{}{
			"taskId": activeID,
		})
		return
	}

	ctx := logging.WithLogger(context.Background(), s.logger.WithField("taskId", taskID))

	go func() {
		defer s.tasks.Release(taskKindClassify)
		if _, err := s.classifier.RunWith(ctx, s.tasks.Sink(taskID)); err != nil {
			s.logger.WithError(err).WithField("taskId", taskID).Error("Classification run failed")
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
}

// handleGetTask handles GET /api/v1/tasks/{id} - Latest progress snapshot
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]

	snapshot, ok := s.tasks.Get(taskID)
	if !ok {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Task not found", map[string]interface{}{
			"taskId": taskID,
		})
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}
