package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/peer-digital/medla-projects/internal/types"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// handleListCases handles GET /api/v1/cases - List cases in a partition
//
// Query parameters: partition (required), limit, offset.
func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	partition := query.Get("partition")
	if partition == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "partition parameter required", nil)
		return
	}

	limit := defaultPageLimit
	if limitStr := query.Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be a positive integer", nil)
			return
		}
		if l > maxPageLimit {
			l = maxPageLimit
		}
		limit = l
	}

	offset := 0
	if offsetStr := query.Get("offset"); offsetStr != "" {
		o, err := strconv.Atoi(offsetStr)
		if err != nil || o < 0 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "offset must be a non-negative integer", nil)
			return
		}
		offset = o
	}

	cases, err := s.cases.ListByPartition(r.Context(), types.Partition(partition), limit, offset)
	if err != nil {
		s.logger.WithError(err).WithPartition(partition).Error("Failed to list cases")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"partition": partition,
		"limit":     limit,
		"offset":    offset,
		"count":     len(cases),
		"cases":     cases,
	})
}

// handleGetCase handles GET /api/v1/cases/{caseNumber} - Get one case
func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	caseNumber := mux.Vars(r)["caseNumber"]

	c, err := s.cases.GetByCaseNumber(r.Context(), caseNumber)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, c)
}

// handleFetchDetails handles POST /api/v1/cases/{caseNumber}/fetch-details
//
// Forces a detail fetch for one case. With reset=true the attempt counter is
// cleared first, reviving a case that exhausted its attempts.
func (s *Server) handleFetchDetails(w http.ResponseWriter, r *http.Request) {
	caseNumber := mux.Vars(r)["caseNumber"]

	if r.URL.Query().Get("reset") == "true" {
		if err := s.cases.ResetDetailAttempts(r.Context(), caseNumber); err != nil {
			respondServiceError(w, err)
			return
		}
	}

	stats, err := s.enricher.EnrichCase(r.Context(), caseNumber)
	if err != nil {
		s.logger.WithError(err).WithField("caseNumber", caseNumber).Error("Detail fetch failed")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// handleListPartitions handles GET /api/v1/partitions - Per-partition progress
//
// Combines fetch checkpoints with stored case counts into one overview.
func (s *Server) handleListPartitions(w http.ResponseWriter, r *http.Request) {
	checkpoints, err := s.checkpoints.ListAll(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	counts, err := s.cases.CountByPartition(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	type partitionView struct {
		Partition           types.Partition      `json:"partition"`
		State               types.PartitionState `json:"state"`
		LastPageFetched     int                  `json:"lastPageFetched"`
		TotalPages          *int                 `json:"totalPages,omitempty"`
		TotalCasesChecked   int                  `json:"totalCasesChecked"`
		StoredCases         int                  `json:"storedCases"`
		ErrorCount          int                  `json:"errorCount"`
		LastError           *string              `json:"lastError,omitempty"`
		LastSuccessfulFetch *time.Time           `json:"lastSuccessfulFetch,omitempty"`
	}

	views := make([]partitionView, 0, len(checkpoints))
	for _, checkpoint := range checkpoints {
		view := partitionView{
			Partition:         checkpoint.PartitionKey,
			State:             checkpoint.State(),
			LastPageFetched:   checkpoint.LastPageFetched,
			TotalPages:        checkpoint.TotalPages,
			TotalCasesChecked: checkpoint.TotalCasesChecked,
			StoredCases:       counts[checkpoint.PartitionKey],
			ErrorCount:          checkpoint.ErrorCount,
			LastError:           checkpoint.LastError,
			LastSuccessfulFetch: checkpoint.LastSuccessfulFetch,
		}
		views = append(views, view)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"partitions": views})
}
