// Package api exposes the session over HTTP: a JSON state surface for the
// presentation layer (state, volume, language, recorded strengths), commands
// to connect, disconnect, and switch language, and the operational endpoints
// (/metrics, /healthz, /readyz).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/astra/internal/controller"
	"github.com/MrWong99/astra/internal/health"
	"github.com/MrWong99/astra/internal/i18n"
	"github.com/MrWong99/astra/internal/observe"
	"github.com/MrWong99/astra/internal/strengths"
)

// shutdownTimeout bounds the graceful drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithLogger sets the structured logger. The default is [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics instance used by the HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTLS enables HTTPS using the given certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) {
		s.certFile = certFile
		s.keyFile = keyFile
	}
}

// WithCheckers adds readiness checkers evaluated by /readyz.
func WithCheckers(checkers ...health.Checker) Option {
	return func(s *Server) {
		s.checkers = append(s.checkers, checkers...)
	}
}

// Server serves the session API on one listen address.
type Server struct {
	addr     string
	ctrl     *controller.Controller
	logger   *slog.Logger
	metrics  *observe.Metrics
	certFile string
	keyFile  string
	checkers []health.Checker
}

// New creates a Server for ctrl listening on addr. The server does not bind
// until [Server.Run] is called.
func New(addr string, ctrl *controller.Controller, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		ctrl:   ctrl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// stateResponse is the JSON shape of the session state surface.
type stateResponse struct {
	State     string             `json:"state"`
	Language  string             `json:"language"`
	Volume    float64            `json:"volume"`
	Strengths []strengths.Record `json:"strengths"`
	Error     string             `json:"error,omitempty"`
}

type languageRequest struct {
	Language string `json:"language"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler builds the full route table, wrapped in the metrics middleware.
// Exposed separately from Run so tests can drive it with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/state", s.handleState)
	mux.HandleFunc("POST /v1/connect", s.handleConnect)
	mux.HandleFunc("POST /v1/disconnect", s.handleDisconnect)
	mux.HandleFunc("POST /v1/language", s.handleLanguage)
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(s.checkers...).Register(mux)

	return observe.Middleware(s.metrics)(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// returns. A nil error means a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("api server listening", "addr", s.addr, "tls", s.certFile != "")
		var err error
		if s.certFile != "" {
			err = srv.ListenAndServeTLS(s.certFile, s.keyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: serve: %w", err)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.currentState())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	lang := s.ctrl.Language()
	if r.ContentLength != 0 {
		var req languageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
			return
		}
		if req.Language != "" {
			lang = i18n.Parse(req.Language)
		}
	}

	if err := s.ctrl.Connect(r.Context(), lang); err != nil {
		s.logger.Warn("connect request failed", "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.currentState())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.Disconnect()
	writeJSON(w, http.StatusOK, s.currentState())
}

func (s *Server) handleLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if req.Language == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "language is required"})
		return
	}

	s.ctrl.SetLanguage(i18n.Parse(req.Language))
	writeJSON(w, http.StatusOK, s.currentState())
}

// currentState snapshots the controller into one response. Strengths is
// always a non-nil slice so the JSON field is [] rather than null.
func (s *Server) currentState() stateResponse {
	recs := s.ctrl.Strengths()
	if recs == nil {
		recs = []strengths.Record{}
	}
	resp := stateResponse{
		State:     string(s.ctrl.State()),
		Language:  string(s.ctrl.Language()),
		Volume:    s.ctrl.Volume(),
		Strengths: recs,
	}
	if err := s.ctrl.LastError(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// writeJSON encodes v with the given status code. On encoding failure it
// falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
