package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/bytebite/internal/model"
)

const feedID = model.FeedID("feed-1")

func ts(hour int) time.Time {
	return time.Date(2024, 3, 10, hour, 0, 0, 0, time.UTC)
}

func TestArticleID_PrefersGUID(t *testing.T) {
	raw := model.RawArticle{GUID: "guid-42", Link: "https://x/a", Title: "A"}
	assert.Equal(t, "guid-42", ArticleID(raw))
}

func TestArticleID_HashFallbackIsStable(t *testing.T) {
	a := model.RawArticle{Link: "https://x/post/", Title: "Hello World "}
	b := model.RawArticle{Link: "HTTPS://X/post", Title: "hello world"}
	require.NotEmpty(t, ArticleID(a))
	// Trailing slash, case and whitespace variations map to the same ID.
	assert.Equal(t, ArticleID(a), ArticleID(b))

	c := model.RawArticle{Link: "https://x/other", Title: "hello world"}
	assert.NotEqual(t, ArticleID(a), ArticleID(c))
}

func TestArticleID_BlankGUIDFallsThrough(t *testing.T) {
	a := model.RawArticle{GUID: "   ", Link: "https://x/a", Title: "A"}
	b := model.RawArticle{Link: "https://x/a", Title: "A"}
	assert.Equal(t, ArticleID(b), ArticleID(a))
}

func TestMerge_NewArticles(t *testing.T) {
	now := ts(12)
	fetched := []model.RawArticle{
		{GUID: "1", Title: "first", Link: "https://x/1", Published: ts(9)},
		{GUID: "2", Title: "second", Link: "https://x/2", Published: ts(10)},
	}

	merged, newCount := Merge(nil, fetched, feedID, now)
	require.Len(t, merged, 2)
	assert.Equal(t, 2, newCount)

	// Published descending.
	assert.Equal(t, "2", merged[0].ID)
	assert.Equal(t, "1", merged[1].ID)
	for _, a := range merged {
		assert.Equal(t, feedID, a.FeedID)
		assert.False(t, a.Read)
		assert.False(t, a.Dismissed)
		assert.Equal(t, now, a.FirstSeen)
	}
}

// The scenario from the store contract: one known item republished with a new
// title, one genuinely new item.
func TestMerge_PreservesStateAndRefreshesContent(t *testing.T) {
	now := ts(12)
	existing := []model.Article{
		{ID: "1", FeedID: feedID, Title: "old", Link: "https://x/1", Published: ts(9), Read: true, FirstSeen: ts(8)},
	}
	fetched := []model.RawArticle{
		{GUID: "1", Title: "new", Link: "https://x/1", Published: ts(9)},
		{GUID: "2", Title: "fresh", Link: "https://x/2", Published: ts(10)},
	}

	merged, newCount := Merge(existing, fetched, feedID, now)
	require.Len(t, merged, 2)
	assert.Equal(t, 1, newCount)

	assert.Equal(t, "2", merged[0].ID)
	assert.False(t, merged[0].Read)
	assert.Equal(t, now, merged[0].FirstSeen)

	assert.Equal(t, "1", merged[1].ID)
	assert.Equal(t, "new", merged[1].Title, "content fields refresh from the fetch")
	assert.True(t, merged[1].Read, "read state survives a content refresh")
	assert.Equal(t, ts(8), merged[1].FirstSeen, "first-seen survives a content refresh")
}

func TestMerge_EmptyFetchKeepsHistory(t *testing.T) {
	existing := []model.Article{
		{ID: "1", FeedID: feedID, Title: "a", Published: ts(9), Read: true},
		{ID: "2", FeedID: feedID, Title: "b", Published: ts(10)},
	}

	merged, newCount := Merge(existing, nil, feedID, ts(12))
	assert.Equal(t, 0, newCount)
	require.Len(t, merged, 2)
	assert.Equal(t, "2", merged[0].ID)
	assert.Equal(t, "1", merged[1].ID)
}

func TestMerge_RetainsArticlesMissingFromFetch(t *testing.T) {
	existing := []model.Article{
		{ID: "old", FeedID: feedID, Title: "truncated away", Published: ts(1), Read: true},
	}
	fetched := []model.RawArticle{
		{GUID: "new", Title: "latest", Published: ts(10)},
	}

	merged, newCount := Merge(existing, fetched, feedID, ts(12))
	assert.Equal(t, 1, newCount)
	require.Len(t, merged, 2)
	assert.Equal(t, "new", merged[0].ID)
	assert.Equal(t, "old", merged[1].ID)
	assert.True(t, merged[1].Read)
}

func TestMerge_Idempotent(t *testing.T) {
	fetched := []model.RawArticle{
		{GUID: "1", Title: "a", Published: ts(9)},
		{GUID: "2", Title: "b", Published: ts(10)},
		{Link: "https://x/c", Title: "c", Published: ts(11)},
	}

	first, n1 := Merge(nil, fetched, feedID, ts(12))
	assert.Equal(t, 3, n1)

	second, n2 := Merge(first, fetched, feedID, ts(13))
	assert.Equal(t, 0, n2)
	assert.Equal(t, first, second)
}

func TestMerge_Deterministic(t *testing.T) {
	existing := []model.Article{
		{ID: "b", FeedID: feedID, Published: ts(9)},
		{ID: "a", FeedID: feedID, Published: ts(9)},
	}
	fetched := []model.RawArticle{
		{GUID: "d", Published: ts(9)},
		{GUID: "c", Published: ts(9)},
	}

	first, _ := Merge(existing, fetched, feedID, ts(12))
	for i := 0; i < 10; i++ {
		again, _ := Merge(existing, fetched, feedID, ts(12))
		require.Equal(t, first, again)
	}
	// Equal timestamps fall back to ID order.
	ids := []string{first[0].ID, first[1].ID, first[2].ID, first[3].ID}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
}

func TestMerge_DuplicateIDsInBatchFirstWins(t *testing.T) {
	fetched := []model.RawArticle{
		{GUID: "1", Title: "kept", Published: ts(9)},
		{GUID: "1", Title: "dropped", Published: ts(10)},
	}

	merged, newCount := Merge(nil, fetched, feedID, ts(12))
	assert.Equal(t, 1, newCount)
	require.Len(t, merged, 1)
	assert.Equal(t, "kept", merged[0].Title)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	existing := []model.Article{
		{ID: "1", FeedID: feedID, Title: "old", Published: ts(9), Read: true},
	}
	fetched := []model.RawArticle{
		{GUID: "1", Title: "new", Published: ts(9)},
	}

	_, _ = Merge(existing, fetched, feedID, ts(12))
	assert.Equal(t, "old", existing[0].Title, "caller's snapshot stays untouched")
}
