package portal

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// pageArgumentPattern matches the postback argument that encodes a page
// number, e.g. "Page$7".
var pageArgumentPattern = regexp.MustCompile(`Page\$\d+`)

// PostbackRequest bundles everything a simulated ASP.NET postback needs: the
// event target and argument from the clicked link plus the three hidden state
// fields read from the same page. All five are mandatory.
type PostbackRequest struct {
	EventTarget        string
	EventArgument      string
	ViewState          string
	ViewStateGenerator string
	EventValidation    string
}

// FormValues renders the postback as the form field set the portal expects
func (p *PostbackRequest) FormValues() url.Values {
	return url.Values{
		"__EVENTTARGET":        {p.EventTarget},
		"__EVENTARGUMENT":      {p.EventArgument},
		"__VIEWSTATE":          {p.ViewState},
		"__VIEWSTATEGENERATOR": {p.ViewStateGenerator},
		"__EVENTVALIDATION":    {p.EventValidation},
	}
}

// NextPageRequest inspects a fetched results page and builds the postback for
// the following page. It returns nil when there is no next page: pagination
// footer absent, no link for currentPage+1 or a "Page$N" ellipsis link, the
// link not being a script postback, or any hidden state field missing. A nil
// return is the loop's normal terminal condition, never an error.
func NextPageRequest(html string) *PostbackRequest {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	pagination := doc.Find("tfoot").First()
	if pagination.Length() == 0 {
		return nil
	}

	// The current page is rendered as the footer's first plain span
	currentPage, err := strconv.Atoi(strings.TrimSpace(pagination.Find("span").First().Text()))
	if err != nil {
		return nil
	}

	target, argument, found := findNextPageLink(pagination, currentPage)
	if !found {
		return nil
	}

	viewState, ok1 := hiddenField(doc, "__VIEWSTATE")
	viewStateGenerator, ok2 := hiddenField(doc, "__VIEWSTATEGENERATOR")
	eventValidation, ok3 := hiddenField(doc, "__EVENTVALIDATION")
	if !ok1 || !ok2 || !ok3 {
		// Submitting a postback without the full hidden-field set would be
		// malformed; treat the page as terminal instead.
		return nil
	}

	return &PostbackRequest{
		EventTarget:        target,
		EventArgument:      argument,
		ViewState:          viewState,
		ViewStateGenerator: viewStateGenerator,
		EventValidation:    eventValidation,
	}
}

// findNextPageLink scans the pagination anchors for either an exact
// currentPage+1 link or an ellipsis link that still encodes a Page$N postback
// argument.
func findNextPageLink(pagination *goquery.Selection, currentPage int) (target, argument string, found bool) {
	nextLabel := strconv.Itoa(currentPage + 1)

	pagination.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok {
			return true
		}

		label := strings.TrimSpace(a.Text())
		if label == nextLabel {
			t, _, ok := postbackTokens(href)
			if !ok {
				// A plain navigational link in some other format; keep
				// scanning rather than submitting garbage.
				return true
			}
			target = t
			argument = "Page$" + nextLabel
			found = true
			return false
		}

		if strings.Contains(label, "...") || label == "…" {
			t, arg, ok := postbackTokens(href)
			if ok && pageArgumentPattern.MatchString(arg) {
				target = t
				argument = arg
				found = true
				return false
			}
		}

		return true
	})

	return target, argument, found
}

// postbackTokens extracts the event target and argument from a
// javascript:__doPostBack('target','argument') href.
func postbackTokens(href string) (target, argument string, ok bool) {
	if !strings.Contains(href, "__doPostBack") {
		return "", "", false
	}

	parts := strings.Split(href, "'")
	if len(parts) < 4 {
		return "", "", false
	}
	return parts[1], parts[3], true
}

func hiddenField(doc *goquery.Document, name string) (string, bool) {
	value, ok := doc.Find("input[name='" + name + "']").First().Attr("value")
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
