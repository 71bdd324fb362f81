// Package rss provides feed fetching and parsing.
package rss

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/bryan-buckman/bytebite/internal/model"
)

const userAgent = "bytebite/1.0 (+https://github.com/bryan-buckman/bytebite)"

// NetworkError covers connection, DNS and timeout failures. Retryable.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// Retryable reports whether a later attempt may succeed without user action.
func (e *NetworkError) Retryable() bool { return true }

// HTTPError is a non-success status from the feed host (404, 410, 503...).
// Not retried automatically; the subscription likely needs user attention.
type HTTPError struct {
	URL    string
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
}

func (e *HTTPError) Retryable() bool { return false }

// ParseError means the response body is not a parseable feed.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.URL, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Retryable() bool { return false }

// Result is one successful fetch: the feed's own title plus its current items.
type Result struct {
	Title    string
	Articles []model.RawArticle
}

// Source is the capability of turning a feed URL into raw articles. The live
// implementation is FeedSource; tests substitute stubs.
type Source interface {
	Fetch(ctx context.Context, url string) (Result, error)
}

// FeedSource fetches and parses syndication feeds over HTTP. gofeed's
// universal parser sniffs the body, so RSS, Atom and JSON feeds all come
// through the same path.
//
// The timeout is enforced here, on the client and the request context, rather
// than left to the caller: a hung connection must not be able to stall
// sibling feed refreshes.
type FeedSource struct {
	client  *http.Client
	timeout time.Duration
}

// NewFeedSource returns a source whose every fetch is bounded by timeout.
func NewFeedSource(timeout time.Duration) *FeedSource {
	return &FeedSource{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Fetch retrieves and parses the feed at url. Failures are typed:
// *NetworkError, *HTTPError or *ParseError.
func (s *FeedSource) Fetch(ctx context.Context, url string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, &NetworkError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &HTTPError{URL: url, Status: resp.StatusCode}
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return Result{}, &ParseError{URL: url, Err: err}
	}

	now := time.Now().UTC()
	articles := make([]model.RawArticle, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.GUID == "" && item.Link == "" && item.Title == "" {
			continue
		}
		published := now
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			published = item.UpdatedParsed.UTC()
		}
		summary := item.Description
		if summary == "" {
			summary = item.Content
		}
		articles = append(articles, model.RawArticle{
			GUID:      item.GUID,
			Title:     item.Title,
			Link:      item.Link,
			Published: published,
			Summary:   summary,
		})
	}

	return Result{Title: parsed.Title, Articles: articles}, nil
}
