package rss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Site</title>
    <link>https://example.com</link>
    <item>
      <guid>guid-1</guid>
      <title>First post</title>
      <link>https://example.com/1</link>
      <description>hello</description>
      <pubDate>Sun, 10 Mar 2024 09:00:00 GMT</pubDate>
    </item>
    <item>
      <title>No guid</title>
      <link>https://example.com/2</link>
      <pubDate>Sun, 10 Mar 2024 10:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

func TestFetch_ParsesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	res, err := NewFeedSource(5*time.Second).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Example Site", res.Title)
	require.Len(t, res.Articles, 2)
	assert.Equal(t, "guid-1", res.Articles[0].GUID)
	assert.Equal(t, "First post", res.Articles[0].Title)
	assert.Equal(t, "hello", res.Articles[0].Summary)
	assert.Equal(t, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), res.Articles[0].Published)
	assert.Empty(t, res.Articles[1].GUID)
}

func TestFetch_HTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewFeedSource(5*time.Second).Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
	assert.False(t, httpErr.Retryable())
}

func TestFetch_MalformedBodyIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not a feed"))
	}))
	defer srv.Close()

	_, err := NewFeedSource(5*time.Second).Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.False(t, parseErr.Retryable())
}

func TestFetch_ConnectionRefusedIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	_, err := NewFeedSource(5*time.Second).Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Retryable())
}

// A hung upstream must be cut off by the fetcher's own timeout, without any
// caller-side cancellation.
func TestFetch_TimeoutEnforcedBySource(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := NewFeedSource(100*time.Millisecond).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
}
