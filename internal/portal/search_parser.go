package portal

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/peer-digital/medla-projects/internal/errors"
	"github.com/peer-digital/medla-projects/internal/logging"
)

// resultsTableID is the portal's element identifier for the results grid.
// Identifiers have changed across portal deploys, so a structural fallback
// scan backs it up.
const resultsTableID = "SearchPlaceHolder_caseGridView"

// caseLinkClass marks the case-number anchor in the first cell of a data row
const caseLinkClass = "sv-font-brodtext-med-bla-lankning"

// expectedColumns is the column count of the results grid: case number,
// status, in/up-date, title, sender, postal city, municipality, decision date.
const expectedColumns = 8

var (
	portalIDPattern   = regexp.MustCompile(`caseID=(\d+)`)
	totalCountPattern = regexp.MustCompile(`av\s+(\d+)`)
)

// RawRecord is one case row as extracted from a search-result page, dates
// still unparsed.
type RawRecord struct {
	CaseNumber      string
	PortalID        *string
	Status          string
	FiledDateRaw    string
	Title           string
	Sender          string
	Location        string
	Municipality    string
	DecisionDateRaw string
	URL             *string
}

// SearchResultPage is the parsed form of one page of search results
type SearchResultPage struct {
	Records []RawRecord
	// TotalAdvertised is the upstream-reported result count from the
	// "Sökresultat: X-Y av Z" label, when present.
	TotalAdvertised *int
}

// ParseSearchResults extracts case rows and pagination metadata from one page
// of portal search results. Rows without a usable case-number link or with too
// few cells are skipped. A results table with no data rows yields zero records
// and no error; that is the normal end-of-results condition. A missing results
// table is a structural parse miss.
func ParseSearchResults(html, baseURL string) (*SearchResultPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.NewParseError("search results markup is unreadable", err)
	}

	page := &SearchResultPage{
		TotalAdvertised: parseTotalAdvertised(doc),
	}

	table := findResultsTable(doc)
	if table == nil {
		return nil, errors.NewParseError("no results table found", nil)
	}

	logger := logging.GetGlobalLogger()

	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		// Header rows carry th cells; pagination footers span all columns.
		if row.Find("th").Length() > 0 || row.Find("td[colspan]").Length() > 0 {
			return
		}

		cells := row.Find("td")
		if cells.Length() < expectedColumns {
			if cells.Length() > 0 {
				logger.WithField("cells", cells.Length()).Debug("Skipping short result row")
			}
			return
		}

		record, ok := parseResultRow(cells, baseURL)
		if !ok {
			return
		}
		page.Records = append(page.Records, record)
	})

	return page, nil
}

// findResultsTable locates the results grid by id, falling back to a
// structural scan for a table whose header row has the expected column count.
func findResultsTable(doc *goquery.Document) *goquery.Selection {
	table := doc.Find("table#" + resultsTableID)
	if table.Length() > 0 {
		return table.First()
	}

	var match *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, candidate *goquery.Selection) bool {
		if candidate.Find("tr").First().Find("th").Length() >= expectedColumns {
			match = candidate
			return false
		}
		return true
	})
	return match
}

func parseResultRow(cells *goquery.Selection, baseURL string) (RawRecord, bool) {
	caseLink := cells.Eq(0).Find("a." + caseLinkClass).First()
	if caseLink.Length() == 0 {
		// Identifier classes have drifted across deploys; accept any anchor
		// that encodes a portal case ID.
		cells.Eq(0).Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			if href, ok := a.Attr("href"); ok && portalIDPattern.MatchString(href) {
				caseLink = a
				return false
			}
			return true
		})
	}
	if caseLink.Length() == 0 {
		return RawRecord{}, false
	}

	href, _ := caseLink.Attr("href")
	if strings.Contains(href, "javascript:") {
		// Pagination artifact, not a case row
		return RawRecord{}, false
	}

	caseNumber := strings.TrimSpace(caseLink.Text())
	if caseNumber == "" {
		return RawRecord{}, false
	}

	record := RawRecord{
		CaseNumber:      caseNumber,
		Status:          cellText(cells, 1),
		FiledDateRaw:    cellText(cells, 2),
		Title:           cellText(cells, 3),
		Sender:          cellText(cells, 4),
		Location:        cellText(cells, 5),
		Municipality:    cellText(cells, 6),
		DecisionDateRaw: cellText(cells, 7),
	}

	if m := portalIDPattern.FindStringSubmatch(href); m != nil {
		id := m[1]
		record.PortalID = &id
		caseURL := baseURL + "/Case/CaseInfo.aspx?caseID=" + id
		record.URL = &caseURL
	}

	return record, true
}

// parseTotalAdvertised extracts the advertised result total from the search
// hit count label, best effort.
func parseTotalAdvertised(doc *goquery.Document) *int {
	label := doc.Find("span#SearchPlaceHolder_lblCaseCount").First()
	if label.Length() == 0 {
		label = doc.Find("div.large-search__search-hit-count").First()
	}
	if label.Length() == 0 {
		return nil
	}

	m := totalCountPattern.FindStringSubmatch(label.Text())
	if m == nil {
		return nil
	}

	total, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &total
}

func cellText(cells *goquery.Selection, index int) string {
	return strings.TrimSpace(cells.Eq(index).Text())
}
