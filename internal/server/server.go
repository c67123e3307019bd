package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/voluzi/traceclaw/pkg/collector"
	"github.com/voluzi/traceclaw/pkg/procident"
)

const shutdownTimeout = 5 * time.Second

// Manager is the part of the collector manager exposed over HTTP.
type Manager interface {
	State() collector.State
	Status() collector.Status
}

// IdentitySource reports the process identities currently tracked.
type IdentitySource interface {
	Identities() []procident.Identity
}

type StatusResponse struct {
	collector.Status
	Target     string               `json:"target,omitempty"`
	Identities []procident.Identity `json:"identities,omitempty"`
}

// Server exposes health, status and self metrics of a running collector.
type Server struct {
	router     *mux.Router
	manager    Manager
	identities IdentitySource
	target     string
	metrics    http.Handler
}

type Option func(*Server)

// WithIdentities adds the tracked identities of target to /status.
func WithIdentities(target string, src IdentitySource) Option {
	return func(s *Server) {
		s.target = target
		s.identities = src
	}
}

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

func New(manager Manager, opts ...Option) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		manager: manager,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.status).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("status server shutdown")
		}
	}()

	log.Infof("status server listening on %s", ln.Addr())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	if state := s.manager.State(); state != collector.StateRunning {
		http.Error(w, "collector is "+state.String(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Status: s.manager.Status(),
		Target: s.target,
	}
	if s.identities != nil {
		resp.Identities = s.identities.Identities()
	}

	b, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("error encoding status: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}
