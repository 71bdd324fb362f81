// Package reconcile merges freshly fetched feed items into a feed's stored
// article collection without duplicating items or losing local read state.
package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bryan-buckman/bytebite/internal/model"
)

// ArticleID computes the stable identifier for a fetched item: the feed's GUID
// when it provides one, otherwise a hash of the normalized link and title.
// Repeated fetches of the same logical item must always produce the same ID.
func ArticleID(raw model.RawArticle) string {
	if guid := strings.TrimSpace(raw.GUID); guid != "" {
		return guid
	}
	sum := sha256.Sum256([]byte(normalize(raw.Link) + "\n" + normalize(raw.Title)))
	return hex.EncodeToString(sum[:])
}

// normalize folds trivial variations (case, surrounding whitespace, trailing
// slashes) so that e.g. "https://x/a/" and "https://x/A" don't spawn duplicate
// articles.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimRight(s, "/")
}

// Merge merges fetched items into the existing collection for one feed.
//
// Items whose identifier already exists keep the stored article's read,
// dismissed and first-seen fields and take their content fields (title, link,
// published, summary) from the fetched version. Items with a new identifier
// become unread articles first seen at now. Existing articles absent from the
// fetch are retained unchanged: upstream feeds are sliding windows that
// truncate their item lists, so absence is not deletion.
//
// The input slices are never mutated; the result is a fresh collection ordered
// by published timestamp descending, ties broken by ID for determinism.
// Returns the merged collection and the number of newly created articles.
func Merge(existing []model.Article, fetched []model.RawArticle, feedID model.FeedID, now time.Time) ([]model.Article, int) {
	byID := make(map[string]model.Article, len(existing))
	order := make([]string, 0, len(existing)+len(fetched))
	for _, a := range existing {
		if _, ok := byID[a.ID]; ok {
			continue
		}
		byID[a.ID] = a
		order = append(order, a.ID)
	}

	newCount := 0
	seenInBatch := make(map[string]bool, len(fetched))
	for _, raw := range fetched {
		id := ArticleID(raw)
		// First occurrence wins; later duplicates within one batch are
		// source-side duplication bugs, not new articles.
		if seenInBatch[id] {
			continue
		}
		seenInBatch[id] = true

		if prev, ok := byID[id]; ok {
			prev.Title = raw.Title
			prev.Link = raw.Link
			prev.Published = raw.Published
			prev.Summary = raw.Summary
			byID[id] = prev
			continue
		}

		byID[id] = model.Article{
			ID:        id,
			FeedID:    feedID,
			Title:     raw.Title,
			Link:      raw.Link,
			Published: raw.Published,
			Summary:   raw.Summary,
			FirstSeen: now,
		}
		order = append(order, id)
		newCount++
	}

	merged := make([]model.Article, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	model.SortArticles(merged)
	return merged, newCount
}
