package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peer-digital/medla-projects/internal/models"
)

func TestCreateBookmark(t *testing.T) {
	f := newServerFixture(sampleCase("13649-2014", "Västerbotten"))

	notes := "Vindkraftspark, följ upp"
	recorder := f.do(t, "POST", "/api/v1/bookmarks", bookmarkRequest{
		CaseNumber:      "13649-2014",
		Notes:           &notes,
		IsGreenIndustry: true,
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	var bookmark models.Bookmark
	decodeBody(t, recorder, &bookmark)
	assert.Equal(t, 1, bookmark.ID)
	assert.Equal(t, "13649-2014", bookmark.CaseNumber)
	assert.True(t, bookmark.IsGreenIndustry)
}

func TestCreateBookmarkUnknownCase(t *testing.T) {
	f := newServerFixture()

	recorder := f.do(t, "POST", "/api/v1/bookmarks", bookmarkRequest{CaseNumber: "404-2024"})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestCreateBookmarkRequiresCaseNumber(t *testing.T) {
	f := newServerFixture()

	recorder := f.do(t, "POST", "/api/v1/bookmarks", bookmarkRequest{})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestCreateBookmarkDuplicate(t *testing.T) {
	f := newServerFixture(sampleCase("13649-2014", "Västerbotten"))

	first := f.do(t, "POST", "/api/v1/bookmarks", bookmarkRequest{CaseNumber: "13649-2014"})
	require.Equal(t, http.StatusCreated, first.Code)

	second := f.do(t, "POST", "/api/v1/bookmarks", bookmarkRequest{CaseNumber: "13649-2014"})
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestListBookmarks(t *testing.T) {
	f := newServerFixture(
		sampleCase("1-2024", "Halland"),
		sampleCase("2-2024", "Halland"),
	)

	for _, caseNumber := range []string{"1-2024", "2-2024"} {
		recorder := f.do(t, "POST", "/api/v1/bookmarks", bookmarkRequest{CaseNumber: caseNumber})
		require.Equal(t, http.StatusCreated, recorder.Code)
	}

	recorder := f.do(t, "GET", "/api/v1/bookmarks", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Count     int                `json:"count"`
		Bookmarks []*models.Bookmark `json:"bookmarks"`
	}
	decodeBody(t, recorder, &body)
	assert.Equal(t, 2, body.Count)
	assert.Len(t, body.Bookmarks, 2)
}

func TestListBookmarksEmpty(t *testing.T) {
	f := newServerFixture()

	recorder := f.do(t, "GET", "/api/v1/bookmarks", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"bookmarks":[]`)
}

func TestUpdateBookmark(t *testing.T) {
	f := newServerFixture(sampleCase("1-2024", "Halland"))

	created := f.do(t, "POST", "/api/v1/bookmarks", bookmarkRequest{CaseNumber: "1-2024"})
	require.Equal(t, http.StatusCreated, created.Code)

	var bookmark models.Bookmark
	decodeBody(t, created, &bookmark)

	industry := "wind_power"
	recorder := f.do(t, "PUT", fmt.Sprintf("/api/v1/bookmarks/%d", bookmark.ID), bookmarkRequest{
		IsGreenIndustry: true,
		IndustryType:    &industry,
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var updated models.Bookmark
	decodeBody(t, recorder, &updated)
	assert.True(t, updated.IsGreenIndustry)
	require.NotNil(t, updated.IndustryType)
	assert.Equal(t, "wind_power", *updated.IndustryType)
}

func TestDeleteBookmark(t *testing.T) {
	f := newServerFixture(sampleCase("1-2024", "Halland"))

	created := f.do(t, "POST", "/api/v1/bookmarks", bookmarkRequest{CaseNumber: "1-2024"})
	require.Equal(t, http.StatusCreated, created.Code)

	var bookmark models.Bookmark
	decodeBody(t, created, &bookmark)

	recorder := f.do(t, "DELETE", fmt.Sprintf("/api/v1/bookmarks/%d", bookmark.ID), nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = f.do(t, "GET", fmt.Sprintf("/api/v1/bookmarks/%d", bookmark.ID), nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestBookmarkBadID(t *testing.T) {
	f := newServerFixture()

	recorder := f.do(t, "GET", "/api/v1/bookmarks/abc", nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
