package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peer-digital/medla-projects/internal/errors"
)

const testBaseURL = "https://diarium.example.se"

const searchResultsFixture = `<html><body>
<span id="SearchPlaceHolder_lblCaseCount">Sökresultat: 1-50 av 1234</span>
<table id="SearchPlaceHolder_caseGridView">
<tbody>
<tr><th>Diarienummer</th><th>Status</th><th>In/Upp-datum</th><th>Ärenderubrik</th><th>Avsändare/mottagare</th><th>Postort</th><th>Kommun</th><th>Beslutsdatum</th></tr>
<tr>
<td><a class="sv-font-brodtext-med-bla-lankning" href="/Case/CaseInfo.aspx?caseID=98765">2024-001234</a></td>
<td>Pågående</td>
<td>2024-03-05</td>
<td>Vindkraftpark Norrberget, ansökan om tillstånd</td>
<td>Norrvind AB</td>
<td>Umeå</td>
<td>Umeå</td>
<td></td>
</tr>
<tr>
<td><a href="/Case/CaseInfo.aspx?caseID=98766">2024-001235</a></td>
<td>Avslutat</td>
<td>2024-02-28</td>
<td>Solcellspark Sunne</td>
<td>Solkraft i Värmland AB</td>
<td>Sunne</td>
<td>Sunne</td>
<td>2024-06-10</td>
</tr>
<tr><td>orphan row with too few cells</td><td>x</td></tr>
</tbody>
<tfoot>
<tr><td colspan="8"><span>1</span> <a href="javascript:__doPostBack('ctl00$SearchPlaceHolder$caseGridView','Page$2')">2</a></td></tr>
</tfoot>
</table>
</body></html>`

func TestParseSearchResults(t *testing.T) {
	page, err := ParseSearchResults(searchResultsFixture, testBaseURL)
	require.NoError(t, err)

	require.Len(t, page.Records, 2)

	first := page.Records[0]
	assert.Equal(t, "2024-001234", first.CaseNumber)
	require.NotNil(t, first.PortalID)
	assert.Equal(t, "98765", *first.PortalID)
	assert.Equal(t, "Pågående", first.Status)
	assert.Equal(t, "2024-03-05", first.FiledDateRaw)
	assert.Equal(t, "Vindkraftpark Norrberget, ansökan om tillstånd", first.Title)
	assert.Equal(t, "Norrvind AB", first.Sender)
	assert.Equal(t, "Umeå", first.Location)
	assert.Equal(t, "Umeå", first.Municipality)
	assert.Empty(t, first.DecisionDateRaw)
	require.NotNil(t, first.URL)
	assert.Equal(t, testBaseURL+"/Case/CaseInfo.aspx?caseID=98765", *first.URL)

	// Second row has no link class; the anchor fallback still finds it
	second := page.Records[1]
	assert.Equal(t, "2024-001235", second.CaseNumber)
	require.NotNil(t, second.PortalID)
	assert.Equal(t, "98766", *second.PortalID)
	assert.Equal(t, "2024-06-10", second.DecisionDateRaw)

	require.NotNil(t, page.TotalAdvertised)
	assert.Equal(t, 1234, *page.TotalAdvertised)
}

func TestParseSearchResultsMissingTable(t *testing.T) {
	_, err := ParseSearchResults(`<html><body><p>Inga resultat</p></body></html>`, testBaseURL)
	require.Error(t, err)

	var categorized *errors.CategorizedError
	require.ErrorAs(t, err, &categorized)
	assert.Equal(t, errors.CategoryParse, categorized.Category)
}

func TestParseSearchResultsFallbackTable(t *testing.T) {
	// Same grid shape but without the known element id
	html := `<html><body><table>
<tr><th>a</th><th>b</th><th>c</th><th>d</th><th>e</th><th>f</th><th>g</th><th>h</th></tr>
<tr>
<td><a href="/Case/CaseInfo.aspx?caseID=11">2023-000011</a></td>
<td>Pågående</td><td>2023-01-02</td><td>Titel</td><td>Avsändare</td><td>Ort</td><td>Kommun</td><td></td>
</tr>
</table></body></html>`

	page, err := ParseSearchResults(html, testBaseURL)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "2023-000011", page.Records[0].CaseNumber)
	assert.Nil(t, page.TotalAdvertised)
}

func TestParseSearchResultsEmptyGrid(t *testing.T) {
	html := `<html><body><table id="SearchPlaceHolder_caseGridView">
<tr><th>a</th><th>b</th><th>c</th><th>d</th><th>e</th><th>f</th><th>g</th><th>h</th></tr>
</table></body></html>`

	page, err := ParseSearchResults(html, testBaseURL)
	require.NoError(t, err)
	assert.Empty(t, page.Records)
}

func TestParseSearchResultsRowWithoutPortalID(t *testing.T) {
	// A case link that does not encode a caseID still yields a record, just
	// without a portal ID or URL
	html := `<html><body><table id="SearchPlaceHolder_caseGridView">
<tr><th>a</th><th>b</th><th>c</th><th>d</th><th>e</th><th>f</th><th>g</th><th>h</th></tr>
<tr>
<td><a class="sv-font-brodtext-med-bla-lankning" href="/Case/Unknown.aspx">2022-000099</a></td>
<td>Pågående</td><td>2022-05-01</td><td>Titel</td><td>Avsändare</td><td>Ort</td><td>Kommun</td><td></td>
</tr>
</table></body></html>`

	page, err := ParseSearchResults(html, testBaseURL)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Nil(t, page.Records[0].PortalID)
	assert.Nil(t, page.Records[0].URL)
}
