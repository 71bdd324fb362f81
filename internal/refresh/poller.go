package refresh

import (
	"context"
	"log"
	"sync"
	"time"
)

// Poller runs continuous background refreshes.
type Poller struct {
	coord    *Coordinator
	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPoller creates a background poller. An interval of zero disables it.
func NewPoller(coord *Coordinator, interval time.Duration) *Poller {
	return &Poller{
		coord:    coord,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the polling loop.
func (p *Poller) Start() {
	if p.interval <= 0 {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-p.stopChan:
				return
			case <-time.After(p.interval):
			}

			outcomes := p.coord.RefreshAll(context.Background())
			updated, failed, total := 0, 0, 0
			for _, o := range outcomes {
				switch o.Status {
				case StatusUpdated:
					updated++
					total += o.NewArticles
				case StatusFailed:
					failed++
				}
			}
			log.Printf("poller: %d new articles across %d feeds (%d failed)", total, updated, failed)
		}
	}()
}

// Stop stops the poller gracefully.
func (p *Poller) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}
