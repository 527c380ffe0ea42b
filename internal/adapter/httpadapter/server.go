package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/scheduler"
	"github.com/couchcryptid/storm-data-sync/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Syncer queues job runs and reports on them.
type Syncer interface {
	Trigger(ctx context.Context, job string) (scheduler.Task, error)
	Task(id string) (scheduler.Task, bool)
}

// Stores are the record stores exposed by the list endpoints.
type Stores struct {
	Events    store.EntityStore[domain.Event]
	Wildfires store.EntityStore[domain.Wildfire]
	Droughts  store.EntityStore[domain.Drought]
}

// Server exposes health, readiness, metrics, sync triggers, and read-only
// record listings.
type Server struct {
	httpServer *http.Server
	syncer     Syncer
	logger     *slog.Logger
}

// NewServer creates the HTTP server and registers every route.
func NewServer(addr string, ready sharedobs.ReadinessChecker, syncer Syncer, stores Stores, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		syncer: syncer,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /sync/{job}", s.handleTrigger)
	mux.HandleFunc("GET /tasks/{id}", s.handleTask)
	mux.HandleFunc("GET /events", listHandler(stores.Events, func(e domain.Event) (bool, time.Time) {
		return e.IsActive, e.StartDate
	}, logger))
	mux.HandleFunc("GET /wildfires", listHandler(stores.Wildfires, func(w domain.Wildfire) (bool, time.Time) {
		return w.Active, w.StartDate
	}, logger))
	mux.HandleFunc("GET /droughts", listHandler(stores.Droughts, func(d domain.Drought) (bool, time.Time) {
		return d.IsActive, d.StartDate
	}, logger))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	task, err := s.syncer.Trigger(r.Context(), r.PathValue("job"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.logger.Error("trigger failed", "job", r.PathValue("job"), "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": task.ID, "job": task.Job})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.syncer.Task(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, domain.NotFoundf("task %s", r.PathValue("id")))
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// filter is the query of a list endpoint: ?active=true&since=...&until=...
// with RFC 3339 bounds applied to the record's start date.
type filter struct {
	activeOnly bool
	since      time.Time
	until      time.Time
}

func parseFilter(r *http.Request) (filter, error) {
	var f filter
	q := r.URL.Query()
	switch q.Get("active") {
	case "", "false":
	case "true":
		f.activeOnly = true
	default:
		return f, domain.Validationf("active must be true or false")
	}
	for name, dst := range map[string]*time.Time{"since": &f.since, "until": &f.until} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, domain.Validationf("%s must be an RFC 3339 time", name)
		}
		*dst = t
	}
	return f, nil
}

func (f filter) match(active bool, start time.Time) bool {
	if f.activeOnly && !active {
		return false
	}
	if !f.since.IsZero() && start.Before(f.since) {
		return false
	}
	if !f.until.IsZero() && start.After(f.until) {
		return false
	}
	return true
}

func listHandler[T any](records store.EntityStore[T], attrs func(T) (bool, time.Time), logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		all, err := records.List(r.Context(), "")
		if err != nil {
			logger.Error("list records failed", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		out := make([]T, 0, len(all))
		for _, rec := range all {
			if f.match(attrs(rec)) {
				out = append(out, rec)
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// Readiness reports ready only when every checker does.
func Readiness(checkers ...sharedobs.ReadinessChecker) sharedobs.ReadinessChecker {
	return allReady(checkers)
}

type allReady []sharedobs.ReadinessChecker

func (a allReady) CheckReadiness(ctx context.Context) error {
	for _, c := range a {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
