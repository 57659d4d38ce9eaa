package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peer-digital/medla-projects/internal/errors"
)

func searchPageFixture(caseNumber, portalID, pager string) string {
	footer := ""
	if pager != "" {
		footer = `<tfoot><tr><td colspan="8">` + pager + `</td></tr></tfoot>`
	}
	return `<html><body><form>
<input type="hidden" name="__VIEWSTATE" value="dDwxMjM0NTY3ODk=" />
<input type="hidden" name="__VIEWSTATEGENERATOR" value="CA0B0334" />
<input type="hidden" name="__EVENTVALIDATION" value="/wEWAgL" />
<span id="SearchPlaceHolder_lblCaseCount">Sökresultat: 1-50 av 120</span>
<table id="SearchPlaceHolder_caseGridView">
<tbody>
<tr><th>a</th><th>b</th><th>c</th><th>d</th><th>e</th><th>f</th><th>g</th><th>h</th></tr>
<tr>
<td><a class="sv-font-brodtext-med-bla-lankning" href="/Case/CaseInfo.aspx?caseID=` + portalID + `">` + caseNumber + `</a></td>
<td>Pågående</td><td>2024-03-05</td><td>Titel</td><td>Avsändare</td><td>Ort</td><td>Kommun</td><td></td>
</tr>
</tbody>
` + footer + `
</table>
</form></body></html>`
}

// threePagePortal serves a three-page search result set over the postback
// protocol and records which pages were requested.
func threePagePortal(t *testing.T, requested *[]int) *httptest.Server {
	pager := func(current, next int) string {
		return fmt.Sprintf(
			`<span>%d</span> <a href="javascript:__doPostBack('grid','Page$%d')">%d</a>`,
			current, next, next)
	}

	pages := map[int]string{
		1: searchPageFixture("2024-000001", "101", pager(1, 2)),
		2: searchPageFixture("2024-000002", "102", pager(2, 3)),
		3: searchPageFixture("2024-000003", "103", `<span>3</span>`),
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if r.Method == http.MethodPost {
			require.NoError(t, r.ParseForm())
			argument := r.PostFormValue("__EVENTARGUMENT")
			require.NotEmpty(t, r.PostFormValue("__VIEWSTATE"))
			switch argument {
			case "Page$2":
				page = 2
			case "Page$3":
				page = 3
			default:
				t.Errorf("unexpected postback argument %q", argument)
			}
		} else {
			assert.Equal(t, "token-AC", r.URL.Query().Get("query"))
		}
		*requested = append(*requested, page)
		w.Write([]byte(pages[page])) // nolint:errcheck
	}))
}

func TestSearcherWalksAllPages(t *testing.T) {
	var requested []int
	server := threePagePortal(t, &requested)
	defer server.Close()

	searcher := NewSearcher(newTestSession(), server.URL, map[string]string{
		"Västerbotten": "token-AC",
	})

	cursor, err := searcher.OpenSearch(context.Background(), "Västerbotten", 1)
	require.NoError(t, err)

	var caseNumbers []string
	var pageNumbers []int
	for {
		page, pageNumber, err := cursor.Next(context.Background())
		require.NoError(t, err)
		if page == nil {
			break
		}
		pageNumbers = append(pageNumbers, pageNumber)
		for _, record := range page.Records {
			caseNumbers = append(caseNumbers, record.CaseNumber)
		}
		require.NotNil(t, page.TotalAdvertised)
		assert.Equal(t, 120, *page.TotalAdvertised)
	}

	assert.Equal(t, []string{"2024-000001", "2024-000002", "2024-000003"}, caseNumbers)
	assert.Equal(t, []int{1, 2, 3}, pageNumbers)
	assert.Equal(t, []int{1, 2, 3}, requested)
}

func TestSearcherResumesAtStartPage(t *testing.T) {
	var requested []int
	server := threePagePortal(t, &requested)
	defer server.Close()

	searcher := NewSearcher(newTestSession(), server.URL, map[string]string{
		"Västerbotten": "token-AC",
	})

	cursor, err := searcher.OpenSearch(context.Background(), "Västerbotten", 3)
	require.NoError(t, err)

	page, pageNumber, err := cursor.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, 3, pageNumber)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "2024-000003", page.Records[0].CaseNumber)

	page, _, err = cursor.Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, page)
}

func TestSearcherStartPageBeyondEnd(t *testing.T) {
	var requested []int
	server := threePagePortal(t, &requested)
	defer server.Close()

	searcher := NewSearcher(newTestSession(), server.URL, map[string]string{
		"Västerbotten": "token-AC",
	})

	// The result set shrank below the checkpointed page; the cursor is
	// immediately exhausted rather than failing.
	cursor, err := searcher.OpenSearch(context.Background(), "Västerbotten", 7)
	require.NoError(t, err)

	page, _, err := cursor.Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, page)
}

func TestSearcherUnknownPartition(t *testing.T) {
	searcher := NewSearcher(newTestSession(), "http://unused.invalid", map[string]string{})

	_, err := searcher.OpenSearch(context.Background(), "Gotland", 1)
	require.Error(t, err)

	var categorized *errors.CategorizedError
	require.ErrorAs(t, err, &categorized)
	assert.Equal(t, errors.CategoryUserInput, categorized.Category)
}

func TestSearcherSurfacesParseMiss(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>Tjänsten är inte tillgänglig</p></body></html>`)) // nolint:errcheck
	}))
	defer server.Close()

	searcher := NewSearcher(newTestSession(), server.URL, map[string]string{
		"Västerbotten": "token-AC",
	})

	cursor, err := searcher.OpenSearch(context.Background(), "Västerbotten", 1)
	require.NoError(t, err)

	page, _, err := cursor.Next(context.Background())
	require.Error(t, err)
	assert.Nil(t, page)

	var categorized *errors.CategorizedError
	require.ErrorAs(t, err, &categorized)
	assert.Equal(t, errors.CategoryParse, categorized.Category)
}
