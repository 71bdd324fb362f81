// Package model defines shared data structures.
package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// FeedID identifies a subscribed feed. It is derived from the feed URL, so the
// same URL always maps to the same ID regardless of display title changes.
type FeedID string

// NewFeedID derives the identifier for a feed URL.
func NewFeedID(url string) FeedID {
	return FeedID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String())
}

// Feed represents an RSS/Atom feed subscription.
type Feed struct {
	ID         FeedID    `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	LastSynced time.Time `json:"last_synced,omitempty"` // last successful sync
	LastError  string    `json:"last_error,omitempty"`  // cleared on success
	AddedAt    time.Time `json:"added_at"`
}

// Article represents a single item belonging to a feed, with local read state.
type Article struct {
	ID        string    `json:"id"` // GUID from the feed, or a derived hash
	FeedID    FeedID    `json:"feed_id"`
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Published time.Time `json:"published"`
	Summary   string    `json:"summary,omitempty"`
	Read      bool      `json:"read"`
	Dismissed bool      `json:"dismissed"`
	FirstSeen time.Time `json:"first_seen"`
}

// SortArticles orders articles for presentation: published timestamp
// descending, with the article ID as tiebreaker for determinism.
func SortArticles(articles []Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		if !articles[i].Published.Equal(articles[j].Published) {
			return articles[i].Published.After(articles[j].Published)
		}
		return articles[i].ID < articles[j].ID
	})
}

// RawArticle is a fetched item before local state (read/dismissed/first-seen)
// is attached. Produced by the fetcher, consumed by the reconciler.
type RawArticle struct {
	GUID      string
	Title     string
	Link      string
	Published time.Time
	Summary   string
}

// FeedView pairs a feed with its ordered article list for the presentation
// layer. Articles are ordered by published timestamp descending.
type FeedView struct {
	Feed     Feed      `json:"feed"`
	Articles []Article `json:"articles"`
}

// Snapshot is the read-only view of the whole store handed to the UI.
type Snapshot struct {
	Feeds []FeedView `json:"feeds"`
}
