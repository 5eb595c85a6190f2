package devtools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vango-dev/connect/pkg/store"
)

// StateFunc returns the value served at /state. It must be safe to call from
// request goroutines.
type StateFunc func() any

// Options configures the devtools server.
type Options struct {
	// Addr is the address to listen on.
	Addr string

	// Hub receives consumer events. Required.
	Hub *Hub

	// State returns the current store state.
	State StateFunc

	// Dispatch backs POST /dispatch. Nil disables the endpoint. It is called
	// from request goroutines and must serialize access to the store.
	Dispatch func(action store.Action) error

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// Logger is used for request and lifecycle logs. Default: slog.Default().
	Logger *slog.Logger

	// ShutdownTimeout bounds graceful shutdown. Default: 5s.
	ShutdownTimeout time.Duration
}

// Server serves store state, consumer info, metrics and the event stream.
type Server struct {
	opts       Options
	router     chi.Router
	httpServer *http.Server
	mu         sync.Mutex
	running    bool
}

// NewServer creates a new devtools server.
func NewServer(opts Options) *Server {
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{opts: opts}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/state", s.handleState)
	r.Get("/consumers", s.handleConsumers)
	r.Get("/renders", s.handleRenders)
	r.Get("/history", s.handleHistory)
	r.Get("/events", s.opts.Hub.HandleWebSocket)
	if s.opts.Dispatch != nil {
		r.Post("/dispatch", s.handleDispatch)
	}
	if s.opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the server's hub.
func (s *Server) Hub() *Hub {
	return s.opts.Hub
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if s.opts.State == nil {
		writeJSON(w, r, http.StatusOK, nil, s.opts.Logger)
		return
	}
	writeJSON(w, r, http.StatusOK, s.opts.State(), s.opts.Logger)
}

func (s *Server) handleConsumers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.opts.Hub.Consumers(), s.opts.Logger)
}

func (s *Server) handleRenders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.opts.Hub.countsByName(), s.opts.Logger)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.opts.Hub.History(), s.opts.Logger)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var action store.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil || action.Type == "" {
		writeJSON(w, r, http.StatusBadRequest, errorBody{Error: "body must be an action with a type"}, s.opts.Logger)
		return
	}
	if err := s.opts.Dispatch(action); err != nil {
		s.opts.Logger.WarnContext(r.Context(), "devtools dispatch failed",
			"request_id", middleware.GetReqID(r.Context()),
			"action", action.Type,
			"error", err.Error(),
		)
		writeJSON(w, r, http.StatusUnprocessableEntity, errorBody{Error: err.Error()}, s.opts.Logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.ErrorContext(r.Context(), "devtools response encode failed",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"error", err.Error(),
		)
	}
}

// Start listens on Options.Addr and serves until ctx is done, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		ln.Close()
		return errors.New("devtools: server already running")
	}
	s.running = true
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.opts.Logger.Info("devtools listening", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}
}

// Stop closes WebSocket clients and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false

	s.opts.Hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.opts.Logger.Info("devtools stopped")
	return nil
}
