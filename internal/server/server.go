// Package server exposes the relay and the interview controller over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"phq-companion/internal/interview"
	"phq-companion/internal/relay"
)

// Relay is the part of relay.Service the HTTP layer needs.
type Relay interface {
	Generate(ctx context.Context, req relay.Request) (relay.Result, error)
	Model() string
}

type Options struct {
	Port           int
	StaticDir      string
	AllowedOrigins string
	RateLimitRPS   float64
	RateLimitBurst int
	Relay          Relay
	Sessions       *interview.Manager
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
}

type Server struct {
	opts     Options
	relay    Relay
	sessions *interview.Manager
	limiter  *ipLimiter
	logger   *zap.Logger
	router   *mux.Router
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.AllowedOrigins == "" {
		opts.AllowedOrigins = "*"
	}
	s := &Server{
		opts:     opts,
		relay:    opts.Relay,
		sessions: opts.Sessions,
		limiter:  newIPLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		logger:   opts.Logger,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware(s.opts.AllowedOrigins))
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/questionnaire", s.handleQuestionnaire).Methods("GET", "OPTIONS")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET", "OPTIONS")

	// routes that can reach the generation API
	limited := api.NewRoute().Subrouter()
	limited.Use(s.rateLimitMiddleware)
	limited.HandleFunc("/llm", s.handleLLM).Methods("POST", "OPTIONS")
	limited.HandleFunc("/sessions", s.handleCreateSession).Methods("POST", "OPTIONS")
	limited.HandleFunc("/sessions/{id}/consent", s.handleConsent).Methods("POST", "OPTIONS")
	limited.HandleFunc("/sessions/{id}/answers", s.handleAnswer).Methods("POST", "OPTIONS")

	if s.opts.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.opts.StaticDir))).Methods("GET", "HEAD")
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", srv.Addr), zap.String("static_dir", s.opts.StaticDir))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
