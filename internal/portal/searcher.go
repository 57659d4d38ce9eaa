package portal

import (
	"context"
	"fmt"
	"net/http"

	"github.com/peer-digital/medla-projects/internal/errors"
	"github.com/peer-digital/medla-projects/internal/logging"
	"github.com/peer-digital/medla-projects/internal/types"
)

// Searcher walks a partition's paginated search results. The portal keeps
// pagination state server side, so pages can only be reached by replaying
// postbacks in order; Searcher hides that behind a cursor.
type Searcher struct {
	session *Session
	baseURL string
	queries map[string]string
}

// NewSearcher creates a searcher for the configured partition query tokens
func NewSearcher(session *Session, baseURL string, queries map[string]string) *Searcher {
	return &Searcher{
		session: session,
		baseURL: baseURL,
		queries: queries,
	}
}

// Partitions lists the partitions the searcher knows query tokens for
func (s *Searcher) Partitions() []types.Partition {
	partitions := make([]types.Partition, 0, len(s.queries))
	for name := range s.queries {
		partitions = append(partitions, types.Partition(name))
	}
	return partitions
}

// OpenSearch starts a search pass for a partition at the given 1-based page.
// Reaching a start page beyond 1 walks the intervening postbacks without
// parsing their rows, so resumed runs do not re-process earlier pages.
func (s *Searcher) OpenSearch(ctx context.Context, partition types.Partition, startPage int) (*SearchCursor, error) {
	query, ok := s.queries[string(partition)]
	if !ok {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("unknown partition: %s", partition))
	}

	searchURL := fmt.Sprintf("%s/Case/CaseSearchResult.aspx?query=%s", s.baseURL, query)

	resp, err := s.session.Get(ctx, searchURL, searchURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewTransientError(
			fmt.Sprintf("initial search page for %s returned %d", partition, resp.StatusCode), nil)
	}

	cursor := &SearchCursor{
		session:   s.session,
		baseURL:   s.baseURL,
		searchURL: searchURL,
		partition: partition,
		html:      resp.Body,
		page:      1,
	}

	if startPage > 1 {
		if err := cursor.skipTo(ctx, startPage); err != nil {
			return nil, err
		}
	}

	return cursor, nil
}

// SearchCursor yields one parsed result page per Next call, in page order
type SearchCursor struct {
	session   *Session
	baseURL   string
	searchURL string
	partition types.Partition
	html      string
	page      int
	done      bool
}

// Page returns the 1-based number of the page the cursor currently holds
func (c *SearchCursor) Page() int {
	return c.page
}

// Next parses the page the cursor holds and advances to the following one.
// It returns nil when pagination has ended.
func (c *SearchCursor) Next(ctx context.Context) (*SearchResultPage, int, error) {
	if c.done {
		return nil, c.page, nil
	}

	parsed, err := ParseSearchResults(c.html, c.baseURL)
	if err != nil {
		c.done = true
		return nil, c.page, err
	}
	pageNumber := c.page

	if err := c.advance(ctx); err != nil {
		// The parsed page is still good; the next call surfaces nothing
		// further. Terminal conditions are not errors.
		c.done = true
		logging.FromContext(ctx).WithPartition(string(c.partition)).WithError(err).
			Warn("Pagination stopped early")
	}

	return parsed, pageNumber, nil
}

// skipTo replays postbacks up to the given page without parsing rows
func (c *SearchCursor) skipTo(ctx context.Context, targetPage int) error {
	for c.page < targetPage && !c.done {
		if err := c.advance(ctx); err != nil {
			return err
		}
	}
	return nil
}

// advance submits the next-page postback and replaces the held markup.
// Marks the cursor done when no next page exists.
func (c *SearchCursor) advance(ctx context.Context) error {
	postback := NextPageRequest(c.html)
	if postback == nil {
		c.done = true
		return nil
	}

	resp, err := c.session.PostForm(ctx, c.searchURL, postback.FormValues(), c.searchURL)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return errors.NewTransientError(
			fmt.Sprintf("page %d postback for %s returned %d", c.page+1, c.partition, resp.StatusCode), nil)
	}

	c.html = resp.Body
	c.page++
	return nil
}
