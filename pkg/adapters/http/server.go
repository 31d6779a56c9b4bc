package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxBodyBytes limits the size of a dispatched action.
const maxBodyBytes = 1 << 20

// App is the part of the application the HTTP surface drives.
type App interface {
	Dispatch(ctx context.Context, action domain.Action) error
	State() domain.Tree
	Subscribe(listener domain.Listener) (unsubscribe func())
	Modules() []string
}

// DispatchRequest is the body of POST /dispatch.
type DispatchRequest struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Server exposes an App over HTTP.
type Server struct {
	app     App
	streams *StreamManager
	limiter *RateLimiter
	metrics http.Handler
	logger  *slog.Logger
	version string

	router      chi.Router
	unsubscribe func()

	mu   sync.Mutex
	prev domain.Tree
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRateLimit throttles POST /dispatch per client.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond > 0 {
			s.limiter = NewRateLimiter(perSecond, burst, s.logger)
		}
	}
}

// WithMetrics mounts a metrics handler under GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates the HTTP surface for app and starts streaming its changes.
// Close releases the subscription.
func NewServer(app App, opts ...Option) *Server {
	s := &Server{
		app:     app,
		logger:  logging.NewNop(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter != nil {
		s.limiter.logger = s.logger
	}
	s.streams = NewStreamManager(s.logger)
	s.prev = app.State()
	s.unsubscribe = app.Subscribe(s.onDispatch)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/state", s.GetState)
	r.Get("/state/{key}", s.GetSlice)
	r.Get("/modules", s.GetModules)
	r.Get("/healthz", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/events", s.SubscribeEvents)

	dispatch := http.Handler(http.HandlerFunc(s.Dispatch))
	if s.limiter != nil {
		dispatch = s.limiter.Handler(dispatch)
	}
	r.Method(http.MethodPost, "/dispatch", dispatch)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops streaming state changes.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Server) onDispatch(_ context.Context, action domain.Action, tree domain.Tree) {
	s.mu.Lock()
	diff := domain.Diff(s.prev, tree)
	s.prev = tree
	s.mu.Unlock()

	if diff == nil {
		return
	}
	s.streams.Broadcast(Event{Action: action.Type, Diff: diff})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetState handles GET /state.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.State())
}

// GetSlice handles GET /state/{key}.
func (s *Server) GetSlice(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	slice, ok := s.app.State().Slice(key)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("module %q is not registered", key))
		return
	}
	writeJSON(w, http.StatusOK, slice)
}

// Dispatch handles POST /dispatch.
func (s *Server) Dispatch(w http.ResponseWriter, r *http.Request) {
	var body DispatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		s.logger.WarnContext(r.Context(), "dispatch: invalid request body", "error", err)
		return
	}

	body.Type = strings.TrimSpace(body.Type)
	if body.Type == "" {
		writeError(w, http.StatusBadRequest, "action type is required")
		return
	}
	if domain.IsReserved(body.Type) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("action type %q is reserved", body.Type))
		return
	}

	if err := s.app.Dispatch(r.Context(), domain.NewAction(body.Type, body.Payload)); err != nil {
		var te *domain.TransitionError
		switch {
		case errors.As(err, &te):
			writeError(w, http.StatusInternalServerError, te.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		s.logger.ErrorContext(r.Context(), "dispatch failed", "action", body.Type, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.State())
}

// GetModules handles GET /modules.
func (s *Server) GetModules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"modules": s.app.Modules()})
}

// GetHealth handles GET /healthz. It reports unavailable until persisted
// state has been restored.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	meta := s.app.State().Persist()
	status, code := "ok", http.StatusOK
	if !meta.Rehydrated {
		status, code = "rehydrating", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "rehydrated": meta.Rehydrated})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "arbor",
		"version": s.version,
	})
}

// SubscribeEvents handles GET /events (SSE). The optional watch query lists
// module keys to filter on, comma separated.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var watch []string
	for _, k := range strings.Split(r.URL.Query().Get("watch"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			watch = append(watch, k)
		}
	}

	events, cancel := s.streams.Subscribe(watch)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("SSE: failed to encode event", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
