// Package statusserver serves a local read-only view of verification
// state: the current record per profile, recent run history, and
// prometheus metrics. It watches the state directory so the status
// endpoint reflects a run the moment its record slot lands.
package statusserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/assurance/pkg/logging"
	"github.com/odvcencio/assurance/pkg/profile"
	"github.com/odvcencio/assurance/pkg/runstate"
)

// Server exposes the status API.
type Server struct {
	registry *profile.Registry
	store    *runstate.Store
	history  *runstate.History
	logger   *logging.Logger

	mu        sync.RWMutex
	lastEvent time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger attaches a diagnostics logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithHistory enables the /runs endpoint's history listing.
func WithHistory(h *runstate.History) Option {
	return func(s *Server) { s.history = h }
}

// New creates a status server over the given registry and store.
func New(registry *profile.Registry, store *runstate.Store, opts ...Option) *Server {
	s := &Server{registry: registry, store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/status", s.handleStatus)
	r.Get("/runs/{profile}", s.handleRuns)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Serve runs the HTTP listener and the state-directory watcher until ctx
// is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := httpServer.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return s.watchState(ctx)
	})
	return g.Wait()
}

// watchState observes record-slot replacements. Watch failures degrade
// to a server without change timestamps, never to a dead server.
func (s *Server) watchState(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn(logging.CategoryServer, "watch_unavailable",
			"state watcher could not start", map[string]any{"error": err.Error()})
		<-ctx.Done()
		return nil
	}
	defer watcher.Close()

	if err := watcher.Add(s.store.Dir()); err != nil {
		s.logger.Warn(logging.CategoryServer, "watch_unavailable",
			"state directory not watchable", map[string]any{"error": err.Error()})
		<-ctx.Done()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Slot replacement lands as a rename onto the final name.
			if ev.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			s.mu.Lock()
			s.lastEvent = time.Now()
			s.mu.Unlock()
			s.logger.Debug(logging.CategoryServer, "state_changed",
				"record slot updated", map[string]any{"path": ev.Name})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn(logging.CategoryServer, "watch_error",
				"state watcher error", map[string]any{"error": err.Error()})
		}
	}
}

type statusResponse struct {
	Profiles    []profileStatus `json:"profiles"`
	LastChange  *time.Time      `json:"last_change,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
}

type profileStatus struct {
	Name       string           `json:"name"`
	AutoSelect bool             `json:"auto_select"`
	Record     *runstate.Record `json:"record,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{GeneratedAt: time.Now()}
	for _, p := range s.registry.Profiles.Profiles {
		resp.Profiles = append(resp.Profiles, profileStatus{
			Name:       p.Name,
			AutoSelect: p.AutoSelect,
			Record:     s.store.Get(p.Name),
		})
	}

	s.mu.RLock()
	if !s.lastEvent.IsZero() {
		t := s.lastEvent
		resp.LastChange = &t
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "profile")
	if s.registry.Profiles.Get(name) == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown profile"})
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"profile": name, "runs": []runstate.Record{}})
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.history.Recent(name, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history unavailable"})
		return
	}
	if runs == nil {
		runs = []runstate.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": name, "runs": runs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
