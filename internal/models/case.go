package models

import (
	"time"

	"github.com/peer-digital/medla-projects/internal/types"
)

// MaxDetailFetchAttempts is the ceiling on detail-fetch attempts for one case.
// A case that reaches the ceiling without DetailsFetched is left alone until
// an operator resets the counter.
const MaxDetailFetchAttempts = 5

// Case represents one government filing from the diarium portal.
//
// The human case number (e.g. "13649-2014") is the canonical identity; the
// numeric PortalID from the portal's query string is a secondary attribute
// used only to construct detail-fetch URLs.
type Case struct {
	CaseNumber      string          `json:"caseNumber" db:"case_number"`
	PortalID        *string         `json:"portalId,omitempty" db:"portal_id"`
	SourcePartition types.Partition `json:"sourcePartition" db:"source_partition"`

	Title        string     `json:"title" db:"title"`
	Description  *string    `json:"description,omitempty" db:"description"`
	Location     *string    `json:"location,omitempty" db:"location"`
	Municipality *string    `json:"municipality,omitempty" db:"municipality"`
	Status       *string    `json:"status,omitempty" db:"status"`
	URL          *string    `json:"url,omitempty" db:"url"`
	FiledAt      *time.Time `json:"filedAt,omitempty" db:"filed_at"`

	// Detail fields, populated lazily by the detail fetcher
	Sender              *string        `json:"sender,omitempty" db:"sender"`
	Diarium             *string        `json:"diarium,omitempty" db:"diarium"`
	DecisionDate        *time.Time     `json:"decisionDate,omitempty" db:"decision_date"`
	DecisionSummary     *string        `json:"decisionSummary,omitempty" db:"decision_summary"`
	CaseType            *string        `json:"caseType,omitempty" db:"case_type"`
	Documents           []CaseDocument `json:"documents,omitempty" db:"documents"`
	DetailsFetched      bool           `json:"detailsFetched" db:"details_fetched"`
	DetailsFetchAttempts int           `json:"detailsFetchAttempts" db:"details_fetch_attempts"`
	LastFetchAttempt    *time.Time     `json:"lastFetchAttempt,omitempty" db:"last_fetch_attempt"`

	// Classification fields, populated by the classification stage
	PrimaryCategory    *string                `json:"primaryCategory,omitempty" db:"primary_category"`
	SecondaryCategory  *string                `json:"secondaryCategory,omitempty" db:"secondary_category"`
	ProjectPhase       *string                `json:"projectPhase,omitempty" db:"project_phase"`
	CategoryConfidence *float64               `json:"categoryConfidence,omitempty" db:"category_confidence"`
	CategoryMetadata   map[string]interface{} `json:"categoryMetadata,omitempty" db:"category_metadata"`
	IsMedlaSuitable    *bool                  `json:"isMedlaSuitable,omitempty" db:"is_medla_suitable"`
	PotentialJobs      []string               `json:"potentialJobs,omitempty" db:"potential_jobs"`
	LastCategorizedAt  *time.Time             `json:"lastCategorizedAt,omitempty" db:"last_categorized_at"`

	// Provenance
	LastUpdatedFromSource *time.Time `json:"lastUpdatedFromSource,omitempty" db:"last_updated_from_source"`
	CreatedAt             time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt             *time.Time `json:"updatedAt,omitempty" db:"updated_at"`
}

// CaseDocument represents one document attached to a case on the detail page
type CaseDocument struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Date   *string `json:"date,omitempty"`
	Sender *string `json:"sender,omitempty"`
	URL    *string `json:"url,omitempty"`
}

// NeedsDetailFetch reports whether the case is still a candidate for detail
// enrichment: details missing and the attempt ceiling not reached.
func (c *Case) NeedsDetailFetch() bool {
	return !c.DetailsFetched && c.DetailsFetchAttempts < MaxDetailFetchAttempts
}

// SourceNewer reports whether the incoming upstream change marker is strictly
// newer than the stored one. A nil incoming marker is never newer.
func (c *Case) SourceNewer(incoming *time.Time) bool {
	if incoming == nil {
		return false
	}
	if c.LastUpdatedFromSource == nil {
		return true
	}
	return incoming.After(*c.LastUpdatedFromSource)
}
