package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/peer-digital/medla-projects/internal/errors"
	"github.com/peer-digital/medla-projects/internal/models"
)

type bookmarkRequest struct {
	CaseNumber      string  `json:"caseNumber"`
	Notes           *string `json:"notes,omitempty"`
	IsGreenIndustry bool    `json:"isGreenIndustry"`
	IndustryType    *string `json:"industryType,omitempty"`
}

// handleCreateBookmark handles POST /api/v1/bookmarks - Bookmark a case
//
// The case must exist; bookmarked cases become candidates for detail
// enrichment.
func (s *Server) handleCreateBookmark(w http.ResponseWriter, r *http.Request) {
	var req bookmarkRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.CaseNumber == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "caseNumber is required", nil)
		return
	}

	if _, err := s.cases.GetByCaseNumber(r.Context(), req.CaseNumber); err != nil {
		respondServiceError(w, err)
		return
	}

	if existing, err := s.bookmarks.GetByCaseNumber(r.Context(), req.CaseNumber); err == nil {
		respondError(w, http.StatusConflict, ErrCodeInvalidInput, "Case is already bookmarked", map[string]interface{}{
			"bookmarkId": existing.ID,
		})
		return
	} else if !errors.IsNotFound(err) {
		respondServiceError(w, err)
		return
	}

	bookmark := &models.Bookmark{
		CaseNumber:      req.CaseNumber,
		Notes:           req.Notes,
		IsGreenIndustry: req.IsGreenIndustry,
		IndustryType:    req.IndustryType,
	}

	if err := s.bookmarks.Create(r.Context(), bookmark); err != nil {
		s.logger.WithError(err).WithField("caseNumber", req.CaseNumber).Error("Failed to create bookmark")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, bookmark)
}

// handleListBookmarks handles GET /api/v1/bookmarks - List all bookmarks
func (s *Server) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	bookmarks, err := s.bookmarks.List(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if bookmarks == nil {
		bookmarks = []*models.Bookmark{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(bookmarks),
		"bookmarks": bookmarks,
	})
}

// handleGetBookmark handles GET /api/v1/bookmarks/{id} - Get one bookmark
func (s *Server) handleGetBookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := bookmarkID(w, r)
	if !ok {
		return
	}

	bookmark, err := s.bookmarks.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, bookmark)
}

// handleUpdateBookmark handles PUT /api/v1/bookmarks/{id} - Update annotations
func (s *Server) handleUpdateBookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := bookmarkID(w, r)
	if !ok {
		return
	}

	var req bookmarkRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	bookmark := &models.Bookmark{
		ID:              id,
		Notes:           req.Notes,
		IsGreenIndustry: req.IsGreenIndustry,
		IndustryType:    req.IndustryType,
	}

	if err := s.bookmarks.Update(r.Context(), bookmark); err != nil {
		respondServiceError(w, err)
		return
	}

	updated, err := s.bookmarks.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

// handleDeleteBookmark handles DELETE /api/v1/bookmarks/{id} - Remove a bookmark
func (s *Server) handleDeleteBookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := bookmarkID(w, r)
	if !ok {
		return
	}

	if err := s.bookmarks.Delete(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

// bookmarkID parses the path id, responding with 400 on garbage
func bookmarkID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Bookmark id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}
