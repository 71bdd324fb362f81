// Package store provides durable JSON-file storage for feeds and articles.
//
// State lives in a data directory as two collections, feeds.json and
// articles.json. Every mutation re-commits the full state: each file is
// serialized to a temporary sibling and renamed into place, so a crash
// mid-write never leaves a truncated store visible on the next load. A copy of
// the last good state is kept alongside as *.bak for manual recovery.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bryan-buckman/bytebite/internal/model"
)

const (
	feedsFile    = "feeds.json"
	articlesFile = "articles.json"
)

var (
	// ErrCorruptStore means a store file exists but cannot be decoded. The
	// store refuses to start rather than wipe user data; the wrapped error
	// names the offending file.
	ErrCorruptStore = errors.New("store file is corrupt")

	// ErrDuplicateFeed means a feed with the same URL-derived ID already exists.
	ErrDuplicateFeed = errors.New("feed already exists")

	// ErrFeedNotFound means no feed has the given ID.
	ErrFeedNotFound = errors.New("feed not found")

	// ErrArticleNotFound means no article has the given ID.
	ErrArticleNotFound = errors.New("article not found")
)

// Store owns all persisted state. It is the single writer: mutating methods
// perform a full read-modify-write under one lock, so concurrent refreshes of
// different feeds converge safely at the commit boundary.
type Store struct {
	dir string

	mu       sync.RWMutex
	feeds    map[model.FeedID]model.Feed
	articles map[model.FeedID][]model.Article // insertion order; sorted on read
}

// Open loads the store from dir, creating the directory if needed. A missing
// store file is not an error and yields an empty collection.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{
		dir:      dir,
		feeds:    make(map[model.FeedID]model.Feed),
		articles: make(map[model.FeedID][]model.Article),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	var feeds []model.Feed
	if err := readJSON(filepath.Join(s.dir, feedsFile), &feeds); err != nil {
		return err
	}
	for _, f := range feeds {
		s.feeds[f.ID] = f
	}

	var articles []model.Article
	if err := readJSON(filepath.Join(s.dir, articlesFile), &articles); err != nil {
		return err
	}
	for _, a := range articles {
		if _, ok := s.feeds[a.FeedID]; !ok {
			log.Printf("store: dropping orphaned article %s (feed %s gone)", a.ID, a.FeedID)
			continue
		}
		s.articles[a.FeedID] = append(s.articles[a.FeedID], a)
	}
	return nil
}

// readJSON decodes path into v. Absence of the file leaves v untouched.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptStore, path, err)
	}
	return nil
}

// commitLocked writes the given state durably and all-or-nothing across both
// collections: each file is staged to a temporary sibling first, and the
// renames happen only after both stages succeeded. If the second rename still
// fails, the first file is put back from the bytes it held before the commit,
// so a failed commit never leaves the two collections disagreeing on disk.
// On failure the in-memory state is not swapped; the caller must only install
// the new maps after a nil return. Caller holds the write lock.
func (s *Store) commitLocked(feeds map[model.FeedID]model.Feed, articles map[model.FeedID][]model.Article) error {
	feedList := make([]model.Feed, 0, len(feeds))
	for _, f := range feeds {
		feedList = append(feedList, f)
	}
	sort.Slice(feedList, func(i, j int) bool {
		if !feedList[i].AddedAt.Equal(feedList[j].AddedAt) {
			return feedList[i].AddedAt.Before(feedList[j].AddedAt)
		}
		return feedList[i].ID < feedList[j].ID
	})

	articleList := make([]model.Article, 0)
	for _, f := range feedList {
		articleList = append(articleList, articles[f.ID]...)
	}

	feedsPath := filepath.Join(s.dir, feedsFile)
	articlesPath := filepath.Join(s.dir, articlesFile)

	feedsTmp, err := stage(feedsPath, feedList)
	if err != nil {
		return err
	}
	articlesTmp, err := stage(articlesPath, articleList)
	if err != nil {
		_ = os.Remove(feedsTmp)
		return err
	}

	prevFeeds, hadFeeds := backup(feedsPath)
	backup(articlesPath)

	if err := os.Rename(feedsTmp, feedsPath); err != nil {
		_ = os.Remove(articlesTmp)
		return fmt.Errorf("rename %s: %w", feedsTmp, err)
	}
	if err := os.Rename(articlesTmp, articlesPath); err != nil {
		_ = os.Remove(articlesTmp)
		// Undo the feeds rename so the previously committed state stays
		// intact as a whole. The .bak written above holds the same bytes in
		// case this plain write is itself interrupted.
		if hadFeeds {
			if restoreErr := os.WriteFile(feedsPath, prevFeeds, 0o644); restoreErr != nil {
				log.Printf("store: restore of %s failed: %v (recover from %s.bak)", feedsPath, restoreErr, feedsPath)
			}
		} else {
			_ = os.Remove(feedsPath)
		}
		return fmt.Errorf("rename %s: %w", articlesTmp, err)
	}
	return nil
}

// stage serializes v next to path and returns the temporary file name. The
// real file is untouched until the caller renames the staged copy over it.
func stage(path string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", tmp, err)
	}
	return tmp, nil
}

// backup copies path's current contents to path.bak and returns them. The
// backup is best effort, a recovery convenience rather than part of the
// commit.
func backup(path string) ([]byte, bool) {
	prev, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	if err := os.WriteFile(path+".bak", prev, 0o644); err != nil {
		log.Printf("store: backup of %s failed: %v", path, err)
	}
	return prev, true
}

// cloneFeeds and cloneArticles copy the top-level maps so a mutation can be
// prepared and committed without touching the live state until the disk write
// succeeds.
func (s *Store) cloneFeeds() map[model.FeedID]model.Feed {
	c := make(map[model.FeedID]model.Feed, len(s.feeds))
	for id, f := range s.feeds {
		c[id] = f
	}
	return c
}

func (s *Store) cloneArticles() map[model.FeedID][]model.Article {
	c := make(map[model.FeedID][]model.Article, len(s.articles))
	for id, list := range s.articles {
		c[id] = list
	}
	return c
}

// AddFeed subscribes to url. The feed ID is derived from the URL, so adding
// the same URL twice fails with ErrDuplicateFeed.
func (s *Store) AddFeed(url, title string, now time.Time) (model.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := model.NewFeedID(url)
	if _, ok := s.feeds[id]; ok {
		return model.Feed{}, fmt.Errorf("%w: %s", ErrDuplicateFeed, url)
	}
	if title == "" {
		title = url
	}
	feed := model.Feed{ID: id, URL: url, Title: title, AddedAt: now}

	feeds := s.cloneFeeds()
	feeds[id] = feed
	if err := s.commitLocked(feeds, s.articles); err != nil {
		return model.Feed{}, err
	}
	s.feeds = feeds
	return feed, nil
}

// RemoveFeed deletes a feed and all of its articles.
func (s *Store) RemoveFeed(id model.FeedID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.feeds[id]; !ok {
		return fmt.Errorf("%w: %s", ErrFeedNotFound, id)
	}
	feeds := s.cloneFeeds()
	articles := s.cloneArticles()
	delete(feeds, id)
	delete(articles, id)
	if err := s.commitLocked(feeds, articles); err != nil {
		return err
	}
	s.feeds = feeds
	s.articles = articles
	return nil
}

// RenameFeed changes a feed's display title.
func (s *Store) RenameFeed(id model.FeedID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	feed, ok := s.feeds[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFeedNotFound, id)
	}
	feed.Title = title

	feeds := s.cloneFeeds()
	feeds[id] = feed
	if err := s.commitLocked(feeds, s.articles); err != nil {
		return err
	}
	s.feeds = feeds
	return nil
}

// ApplyRefresh commits the reconciled article collection for a feed after a
// successful sync. It replaces the feed's articles wholesale, records the sync
// time, clears any previous error, and adopts feedTitle as the display title
// if the user never set one (the title still equals the URL).
func (s *Store) ApplyRefresh(id model.FeedID, merged []model.Article, feedTitle string, syncedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	feed, ok := s.feeds[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFeedNotFound, id)
	}
	feed.LastSynced = syncedAt
	feed.LastError = ""
	if feedTitle != "" && feed.Title == feed.URL {
		feed.Title = feedTitle
	}

	feeds := s.cloneFeeds()
	articles := s.cloneArticles()
	feeds[id] = feed
	articles[id] = merged
	if err := s.commitLocked(feeds, articles); err != nil {
		return err
	}
	s.feeds = feeds
	s.articles = articles
	return nil
}

// RecordRefreshError notes a failed refresh on the feed without touching its
// article collection.
func (s *Store) RecordRefreshError(id model.FeedID, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	feed, ok := s.feeds[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFeedNotFound, id)
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	feed.LastError = msg

	feeds := s.cloneFeeds()
	feeds[id] = feed
	if err := s.commitLocked(feeds, s.articles); err != nil {
		return err
	}
	s.feeds = feeds
	return nil
}

// MarkRead flags an article as read.
func (s *Store) MarkRead(articleID string) error {
	return s.updateArticle(articleID, func(a *model.Article) { a.Read = true })
}

// Dismiss flags an article as dismissed so the UI can hide it. The article is
// kept so a later fetch of the same identifier doesn't resurrect it as new.
func (s *Store) Dismiss(articleID string) error {
	return s.updateArticle(articleID, func(a *model.Article) { a.Dismissed = true })
}

func (s *Store) updateArticle(articleID string, apply func(*model.Article)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for feedID, list := range s.articles {
		for i, a := range list {
			if a.ID != articleID {
				continue
			}
			updated := make([]model.Article, len(list))
			copy(updated, list)
			apply(&updated[i])

			articles := s.cloneArticles()
			articles[feedID] = updated
			if err := s.commitLocked(s.feeds, articles); err != nil {
				return err
			}
			s.articles = articles
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrArticleNotFound, articleID)
}

// Flush re-commits the current state. Called on shutdown.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(s.feeds, s.articles)
}

// Feed returns one feed's metadata.
func (s *Store) Feed(id model.FeedID) (model.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	feed, ok := s.feeds[id]
	if !ok {
		return model.Feed{}, fmt.Errorf("%w: %s", ErrFeedNotFound, id)
	}
	return feed, nil
}

// Feeds returns all feeds ordered by the time they were added.
func (s *Store) Feeds() []model.Feed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feedsLocked()
}

func (s *Store) feedsLocked() []model.Feed {
	feeds := make([]model.Feed, 0, len(s.feeds))
	for _, f := range s.feeds {
		feeds = append(feeds, f)
	}
	sort.Slice(feeds, func(i, j int) bool {
		if !feeds[i].AddedAt.Equal(feeds[j].AddedAt) {
			return feeds[i].AddedAt.Before(feeds[j].AddedAt)
		}
		return feeds[i].ID < feeds[j].ID
	})
	return feeds
}

// Articles returns a feed's articles ordered by published timestamp
// descending. The returned slice is the caller's to keep.
func (s *Store) Articles(id model.FeedID) ([]model.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.feeds[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrFeedNotFound, id)
	}
	return s.articlesLocked(id), nil
}

func (s *Store) articlesLocked(id model.FeedID) []model.Article {
	list := make([]model.Article, len(s.articles[id]))
	copy(list, s.articles[id])
	model.SortArticles(list)
	return list
}

// Snapshot returns a read-only view of every feed with its ordered articles,
// for the presentation layer.
func (s *Store) Snapshot() model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	feeds := s.feedsLocked()
	views := make([]model.FeedView, 0, len(feeds))
	for _, f := range feeds {
		views = append(views, model.FeedView{
			Feed:     f,
			Articles: s.articlesLocked(f.ID),
		})
	}
	return model.Snapshot{Feeds: views}
}
