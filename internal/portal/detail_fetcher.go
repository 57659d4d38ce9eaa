package portal

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/peer-digital/medla-projects/internal/errors"
	"github.com/peer-digital/medla-projects/internal/logging"
	"github.com/peer-digital/medla-projects/internal/models"
	"github.com/peer-digital/medla-projects/internal/retry"
)

// Attribute labels on the portal's case detail page
const (
	labelCaseNumber   = "Diarienummer"
	labelDiarium      = "Diarium"
	labelFiledDate    = "In/Upp-datum"
	labelTitle        = "Ärenderubrik"
	labelStatus       = "Status"
	labelDecisionDate = "Beslutsdatum"
	labelSender       = "Avsändare/mottagare"
	labelMunicipality = "Kommun"
	labelCaseType     = "Ärendetyp"
	labelDecision     = "Beslut"
)

// documentsTableID identifies the related-documents grid on the detail page
const documentsTableID = "DocumentsPlaceHolder_documentsGridView"

// DetailRecord is the parsed case detail view
type DetailRecord struct {
	CaseNumber      string
	Diarium         *string
	CaseType        *string
	Status          *string
	Title           *string
	FiledDateRaw    string
	DecisionDateRaw string
	Sender          *string
	Municipality    *string
	DecisionSummary *string
	Documents       []models.CaseDocument
	URL             string
}

// DetailFetcher fetches and parses single-case detail pages, independent of
// the list/search flow.
type DetailFetcher struct {
	session     *Session
	baseURL     string
	baseDelay   time.Duration
	maxAttempts int
}

// NewDetailFetcher creates a detail fetcher over an existing session
func NewDetailFetcher(session *Session, baseURL string, baseDelay time.Duration) *DetailFetcher {
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	return &DetailFetcher{
		session:     session,
		baseURL:     baseURL,
		baseDelay:   baseDelay,
		maxAttempts: 3,
	}
}

// FetchDetails fetches the detail view for one case. The delay before each
// attempt, including the first, doubles per attempt with up to 10% jitter to
// stay under the portal's implicit rate limit. A 404 means the case is
// definitively absent: (nil, nil), no retry. Any other failure, including the
// portal silently serving a different case, is retried up to the attempt
// ceiling, then gives up with the last error. The caller owns the record's
// attempt accounting.
func (f *DetailFetcher) FetchDetails(ctx context.Context, caseNumber, portalID string) (*DetailRecord, error) {
	if portalID == "" {
		return nil, errors.NewDataQualityError(caseNumber, "no portal ID available for detail fetch")
	}

	logger := logging.FromContext(ctx).WithField("caseNumber", caseNumber)
	caseURL := fmt.Sprintf("%s/Case/CaseInfo.aspx?caseID=%s", f.baseURL, portalID)

	delayConfig := &retry.Config{
		MaxAttempts:  f.maxAttempts,
		InitialDelay: f.baseDelay,
		Multiplier:   2.0,
		Jitter:       0.1,
		DelayFirst:   true,
	}

	var lastErr error

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		delay := retry.Delay(delayConfig, attempt)
		logger.WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Debug("Waiting before detail fetch attempt")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		resp, err := f.session.Get(ctx, caseURL, caseURL)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			logger.Info("Detail page reports case absent")
			return nil, nil
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = errors.NewTransientError(fmt.Sprintf("detail fetch returned %d", resp.StatusCode), nil)
			continue
		}

		record, err := parseDetailPage(resp.Body, f.baseURL, caseURL)
		if err != nil {
			lastErr = err
			continue
		}

		// The portal can silently serve a different case on transient
		// errors; a mismatch is a failed attempt, not a success.
		if record.CaseNumber == "" || !strings.Contains(record.CaseNumber, caseNumber) {
			lastErr = errors.NewDetailMismatchError(caseNumber, record.CaseNumber)
			logger.WithField("got", record.CaseNumber).Warn("Detail page returned a different case")
			continue
		}

		return record, nil
	}

	logger.WithError(lastErr).Warn("Giving up on case details after max attempts")
	return nil, lastErr
}

// parseDetailPage extracts the attribute table and, when present, the related
// documents table from a detail page.
func parseDetailPage(html, baseURL, pageURL string) (*DetailRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.NewParseError("detail page markup is unreadable", err)
	}

	tables := doc.Find("table")
	if tables.Length() == 0 {
		return nil, errors.NewParseError("no tables found on detail page", nil)
	}

	attributes := parseAttributeTable(tables.First())

	record := &DetailRecord{
		CaseNumber:      attributes[labelCaseNumber],
		FiledDateRaw:    attributes[labelFiledDate],
		DecisionDateRaw: attributes[labelDecisionDate],
		Diarium:         optional(attributes[labelDiarium]),
		CaseType:        optional(attributes[labelCaseType]),
		Status:          optional(attributes[labelStatus]),
		Title:           optional(attributes[labelTitle]),
		Sender:          optional(attributes[labelSender]),
		Municipality:    optional(attributes[labelMunicipality]),
		URL:             pageURL,
	}

	record.Documents = parseDocumentsTable(doc, tables, baseURL)
	record.DecisionSummary = decisionSummary(attributes, record.Documents)

	return record, nil
}

// parseAttributeTable reads the label/value rows of the detail overview table
func parseAttributeTable(table *goquery.Selection) map[string]string {
	attributes := make(map[string]string)
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() != 2 {
			return
		}
		key := strings.TrimSpace(cells.Eq(0).Text())
		if key == "" {
			return
		}
		attributes[key] = strings.TrimSpace(cells.Eq(1).Text())
	})
	return attributes
}

// parseDocumentsTable extracts the related-documents list: by element id
// first, then falling back to the page's second table.
func parseDocumentsTable(doc *goquery.Document, tables *goquery.Selection, baseURL string) []models.CaseDocument {
	table := doc.Find("table#" + documentsTableID).First()
	if table.Length() == 0 {
		if tables.Length() < 2 {
			return nil
		}
		table = tables.Eq(1)
	}

	var documents []models.CaseDocument
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			// header
			return
		}
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}

		document := models.CaseDocument{
			ID:     strings.TrimSpace(cells.Eq(0).Text()),
			Title:  strings.TrimSpace(cells.Eq(1).Text()),
			Date:   optional(strings.TrimSpace(cells.Eq(2).Text())),
			Sender: optional(strings.TrimSpace(cells.Eq(3).Text())),
		}

		if href, ok := cells.Eq(1).Find("a").First().Attr("href"); ok {
			docURL := baseURL + "/" + strings.TrimPrefix(href, "/")
			document.URL = &docURL
		}

		documents = append(documents, document)
	})

	return documents
}

// decisionSummary prefers the explicit decision attribute and falls back to
// the first related document whose title mentions a decision.
func decisionSummary(attributes map[string]string, documents []models.CaseDocument) *string {
	if summary := attributes[labelDecision]; summary != "" {
		return &summary
	}
	for _, document := range documents {
		if strings.Contains(strings.ToLower(document.Title), "beslut") {
			title := document.Title
			return &title
		}
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
