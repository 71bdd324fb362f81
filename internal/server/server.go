// Package server provides the HTTP command and snapshot surface consumed by
// presentation clients. All endpoints speak JSON; rendering is the client's
// concern.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bryan-buckman/bytebite/internal/model"
	"github.com/bryan-buckman/bytebite/internal/opml"
	"github.com/bryan-buckman/bytebite/internal/refresh"
	"github.com/bryan-buckman/bytebite/internal/store"
)

// Server is the HTTP API server.
type Server struct {
	store  *store.Store
	coord  *refresh.Coordinator
	router chi.Router
}

// New creates a server over the given store and coordinator.
func New(st *store.Store, coord *refresh.Coordinator) *Server {
	s := &Server{store: st, coord: coord}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshot)
		r.Post("/feeds", s.handleAddFeed)
		r.Delete("/feeds/{feedID}", s.handleRemoveFeed)
		r.Patch("/feeds/{feedID}", s.handleRenameFeed)
		r.Post("/feeds/{feedID}/refresh", s.handleRefreshFeed)
		r.Post("/refresh", s.handleRefreshAll)
		r.Post("/articles/{articleID}/read", s.handleMarkRead)
		r.Post("/articles/{articleID}/dismiss", s.handleDismiss)
		r.Post("/import-opml", s.handleImportOPML)
		r.Get("/export-opml", s.handleExportOPML)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

// writeError maps the store/coordinator error taxonomy onto HTTP statuses.
// User-input errors come back 4xx; anything else is a 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrDuplicateFeed), errors.Is(err, refresh.ErrRefreshInProgress):
		status = http.StatusConflict
	case errors.Is(err, store.ErrFeedNotFound), errors.Is(err, store.ErrArticleNotFound):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// outcomeView is the wire form of a refresh outcome.
type outcomeView struct {
	Status      refresh.Status `json:"status"`
	NewArticles int            `json:"new_articles,omitempty"`
	Error       string         `json:"error,omitempty"`
}

func toOutcomeView(o refresh.Outcome) outcomeView {
	v := outcomeView{Status: o.Status, NewArticles: o.NewArticles}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return v
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *Server) handleAddFeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}
	feed, err := s.store.AddFeed(req.URL, req.Title, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, feed)
}

func (s *Server) handleRemoveFeed(w http.ResponseWriter, r *http.Request) {
	id := model.FeedID(chi.URLParam(r, "feedID"))
	if err := s.store.RemoveFeed(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRenameFeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}
	id := model.FeedID(chi.URLParam(r, "feedID"))
	if err := s.store.RenameFeed(id, req.Title); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshFeed(w http.ResponseWriter, r *http.Request) {
	id := model.FeedID(chi.URLParam(r, "feedID"))
	outcome, err := s.coord.RefreshOne(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	// A failed fetch is ordinary per-feed state, not a request failure.
	writeJSON(w, http.StatusOK, toOutcomeView(outcome))
}

func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	outcomes := s.coord.RefreshAll(r.Context())
	views := make(map[model.FeedID]outcomeView, len(outcomes))
	for id, o := range outcomes {
		views[id] = toOutcomeView(o)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.store.MarkRead(chi.URLParam(r, "articleID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Dismiss(chi.URLParam(r, "articleID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	entries, err := opml.Parse(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	added, skipped := 0, 0
	now := time.Now().UTC()
	for _, e := range entries {
		_, err := s.store.AddFeed(e.URL, e.Title, now)
		switch {
		case errors.Is(err, store.ErrDuplicateFeed):
			skipped++
		case err != nil:
			writeError(w, err)
			return
		default:
			added++
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"added": added, "skipped": skipped})
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	out, err := opml.Export("bytebite subscriptions", s.store.Feeds(), time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/x-opml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "subscriptions.opml"))
	_, _ = w.Write(out)
}
