package ingest

import (
	"context"

	"github.com/peer-digital/medla-projects/internal/dateutil"
	"github.com/peer-digital/medla-projects/internal/logging"
	"github.com/peer-digital/medla-projects/internal/models"
	"github.com/peer-digital/medla-projects/internal/portal"
)

// DetailStore is the persistence surface for detail enrichment. Attempt
// accounting happens inside the store, in a single statement per outcome.
type DetailStore interface {
	GetByCaseNumber(ctx context.Context, caseNumber string) (*models.Case, error)
	ListNeedingDetails(ctx context.Context, limit int) ([]*models.Case, error)
	RecordDetailSuccess(ctx context.Context, c *models.Case) error
	RecordDetailFailure(ctx context.Context, caseNumber string) error
}

// DetailFetcher fetches one case's detail page
type DetailFetcher interface {
	FetchDetails(ctx context.Context, caseNumber, portalID string) (*portal.DetailRecord, error)
}

// DetailStats summarizes one enrichment pass
type DetailStats struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Absent    int `json:"absent"`
}

// DetailService enriches bookmarked cases with detail-page fields. Each case
// gets a bounded number of lifetime attempts; one past the ceiling is left
// alone until an operator resets its counter.
type DetailService struct {
	store   DetailStore
	fetcher DetailFetcher
	cache   CaseLookupCache
}

// NewDetailService creates a detail enrichment service; cache may be nil
func NewDetailService(store DetailStore, fetcher DetailFetcher, cache CaseLookupCache) *DetailService {
	return &DetailService{store: store, fetcher: fetcher, cache: cache}
}

// EnrichPending fetches details for up to limit pending cases
func (s *DetailService) EnrichPending(ctx context.Context, limit int) (*DetailStats, error) {
	pending, err := s.store.ListNeedingDetails(ctx, limit)
	if err != nil {
		return nil, err
	}

	stats := &DetailStats{}
	logger := logging.FromContext(ctx)

	for _, c := range pending {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := s.enrichOne(ctx, c, stats); err != nil {
			return stats, err
		}
	}

	logger.WithFields(map[string]interface{}{
		"processed": stats.Processed,
		"succeeded": stats.Succeeded,
		"failed":    stats.Failed,
		"absent":    stats.Absent,
	}).Info("Detail enrichment pass finished")

	return stats, nil
}

// EnrichCase fetches details for one specific case on operator request. The
// explicit request bypasses the pending queue but still counts toward the
// case's attempt ceiling.
func (s *DetailService) EnrichCase(ctx context.Context, caseNumber string) (*DetailStats, error) {
	c, err := s.store.GetByCaseNumber(ctx, caseNumber)
	if err != nil {
		return nil, err
	}

	stats := &DetailStats{}
	if err := s.enrichOne(ctx, c, stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// enrichOne runs one fetch-and-record cycle for a case. Returned errors are
// persistence failures; fetch failures are folded into stats.
func (s *DetailService) enrichOne(ctx context.Context, c *models.Case, stats *DetailStats) error {
	stats.Processed++
	caseLogger := logging.FromContext(ctx).WithField("caseNumber", c.CaseNumber)

	if c.PortalID == nil {
		// Without a portal ID there is no detail URL to fetch; the
		// attempt still counts so the case eventually drops out.
		if err := s.store.RecordDetailFailure(ctx, c.CaseNumber); err != nil {
			return err
		}
		stats.Failed++
		caseLogger.Warn("Case has no portal ID, skipping detail fetch")
		return nil
	}

	record, err := s.fetcher.FetchDetails(ctx, c.CaseNumber, *c.PortalID)
	switch {
	case err != nil:
		if recordErr := s.store.RecordDetailFailure(ctx, c.CaseNumber); recordErr != nil {
			return recordErr
		}
		stats.Failed++
		caseLogger.WithError(err).Warn("Detail fetch failed")

	case record == nil:
		// The portal no longer has the case
		if recordErr := s.store.RecordDetailFailure(ctx, c.CaseNumber); recordErr != nil {
			return recordErr
		}
		stats.Absent++
		caseLogger.Info("Case absent from portal")

	default:
		applyDetails(c, record)
		if err := s.store.RecordDetailSuccess(ctx, c); err != nil {
			return err
		}
		s.invalidate(ctx, c.CaseNumber)
		stats.Succeeded++
		caseLogger.Debug("Case details stored")
	}

	return nil
}

func (s *DetailService) invalidate(ctx context.Context, caseNumber string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, caseNumber)
	}
}

// applyDetails merges fetched detail fields into the case. Listing fields are
// only overwritten when the detail page actually carries a value.
func applyDetails(c *models.Case, record *portal.DetailRecord) {
	c.Sender = record.Sender
	c.Diarium = record.Diarium
	c.CaseType = record.CaseType
	c.DecisionSummary = record.DecisionSummary
	c.Documents = record.Documents

	// Detail pages render dates in the portal's day-first locale
	if parsed := dateutil.ParsePortalDate(record.DecisionDateRaw); parsed != nil {
		c.DecisionDate = parsed
	}
	if parsed := dateutil.ParsePortalDate(record.FiledDateRaw); parsed != nil {
		c.FiledAt = parsed
	}
	if record.Status != nil {
		c.Status = record.Status
	}
	if record.Municipality != nil {
		c.Municipality = record.Municipality
	}
	if record.Title != nil && c.Title == "" {
		c.Title = *record.Title
	}
}
