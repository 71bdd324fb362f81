package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryan-buckman/bytebite/internal/config"
	"github.com/bryan-buckman/bytebite/internal/refresh"
	"github.com/bryan-buckman/bytebite/internal/rss"
	"github.com/bryan-buckman/bytebite/internal/server"
	"github.com/bryan-buckman/bytebite/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		if errors.Is(err, store.ErrCorruptStore) {
			// Never auto-wipe user data; point at the .bak recovery path.
			log.Printf("[ERROR] %v", err)
			log.Printf("[ERROR] repair or move the file aside; the last good copy is kept next to it as *.bak")
		} else {
			log.Printf("[ERROR] open store: %v", err)
		}
		os.Exit(1)
	}

	coord := refresh.NewCoordinator(st, rss.NewFeedSource(cfg.FetchTimeout), cfg.MaxInFlight)
	poller := refresh.NewPoller(coord, cfg.RefreshInterval)
	poller.Start()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(st, coord),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[ERROR] http shutdown: %v", err)
		}
	}()

	log.Printf("bytebite listening on %s (data in %s)", cfg.ListenAddr, cfg.DataDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("[ERROR] http server: %v", err)
	}

	poller.Stop()
	if err := st.Flush(); err != nil {
		log.Printf("[ERROR] final flush: %v", err)
	}
	log.Println("bytebite stopped")
}
