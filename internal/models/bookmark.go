package models

import "time"

// Bookmark marks a case an analyst wants to follow. Bookmarked cases form the
// set that the detail fetcher lazily enriches.
type Bookmark struct {
	ID              int        `json:"id" db:"id"`
	CaseNumber      string     `json:"caseNumber" db:"case_number"`
	Notes           *string    `json:"notes,omitempty" db:"notes"`
	IsGreenIndustry bool       `json:"isGreenIndustry" db:"is_green_industry"`
	IndustryType    *string    `json:"industryType,omitempty" db:"industry_type"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty" db:"updated_at"`
}
