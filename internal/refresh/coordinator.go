// Package refresh orchestrates feed synchronization: it fans fetches out
// across feeds, merges results through the reconciler and commits them to the
// store. Fetch and reconcile phases run on immutable snapshots; all writes
// converge at the store's commit boundary.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bryan-buckman/bytebite/internal/model"
	"github.com/bryan-buckman/bytebite/internal/reconcile"
	"github.com/bryan-buckman/bytebite/internal/rss"
	"github.com/bryan-buckman/bytebite/internal/store"
)

// ErrRefreshInProgress means the feed is already being refreshed. The second
// request is rejected, not queued; the caller simply retries later.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Status classifies the outcome of one feed refresh.
type Status string

const (
	StatusUpdated   Status = "updated"
	StatusUnchanged Status = "unchanged"
	StatusFailed    Status = "failed"
)

// Outcome is the per-feed result of a refresh.
type Outcome struct {
	Status      Status
	NewArticles int
	Err         error
}

// Coordinator runs refreshes. Concurrent refreshes of different feeds are
// bounded by a semaphore; a duplicate refresh of a feed already in flight is
// rejected with ErrRefreshInProgress.
type Coordinator struct {
	store  *store.Store
	source rss.Source
	sem    chan struct{}

	mu       sync.Mutex
	inFlight map[model.FeedID]bool

	now func() time.Time
}

// NewCoordinator creates a coordinator allowing at most maxInFlight
// simultaneous fetches.
func NewCoordinator(st *store.Store, source rss.Source, maxInFlight int) *Coordinator {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Coordinator{
		store:    st,
		source:   source,
		sem:      make(chan struct{}, maxInFlight),
		inFlight: make(map[model.FeedID]bool),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (c *Coordinator) begin(id model.FeedID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[id] {
		return fmt.Errorf("%w: %s", ErrRefreshInProgress, id)
	}
	c.inFlight[id] = true
	return nil
}

func (c *Coordinator) end(id model.FeedID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, id)
}

// RefreshOne refreshes a single feed. Fetch failures come back as a
// StatusFailed outcome and are recorded on the feed; the returned error is
// reserved for caller mistakes (unknown feed, duplicate refresh) and store
// commit failures.
func (c *Coordinator) RefreshOne(ctx context.Context, id model.FeedID) (Outcome, error) {
	feed, err := c.store.Feed(id)
	if err != nil {
		return Outcome{}, err
	}
	if err := c.begin(id); err != nil {
		return Outcome{}, err
	}
	// The marker is cleared on every path, timeout included.
	defer c.end(id)

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}

	res, err := c.source.Fetch(ctx, feed.URL)
	if err != nil {
		log.Printf("refresh: fetch %s failed: %v", feed.URL, err)
		if recErr := c.store.RecordRefreshError(id, err.Error()); recErr != nil {
			return Outcome{}, recErr
		}
		return Outcome{Status: StatusFailed, Err: err}, nil
	}

	existing, err := c.store.Articles(id)
	if err != nil {
		return Outcome{}, err
	}
	merged, newCount := reconcile.Merge(existing, res.Articles, id, c.now())
	if err := c.store.ApplyRefresh(id, merged, res.Title, c.now()); err != nil {
		return Outcome{}, err
	}

	if newCount == 0 {
		return Outcome{Status: StatusUnchanged}, nil
	}
	return Outcome{Status: StatusUpdated, NewArticles: newCount}, nil
}

// RefreshAll refreshes every subscribed feed. Feeds are fetched in parallel
// within the in-flight bound; one feed's failure never blocks or aborts the
// others. The returned map has an outcome for every feed.
func (c *Coordinator) RefreshAll(ctx context.Context) map[model.FeedID]Outcome {
	feeds := c.store.Feeds()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	outcomes := make(map[model.FeedID]Outcome, len(feeds))

	for _, feed := range feeds {
		wg.Add(1)
		go func(id model.FeedID) {
			defer wg.Done()
			outcome, err := c.RefreshOne(ctx, id)
			if err != nil {
				outcome = Outcome{Status: StatusFailed, Err: err}
			}
			mu.Lock()
			outcomes[id] = outcome
			mu.Unlock()
		}(feed.ID)
	}
	wg.Wait()

	return outcomes
}
