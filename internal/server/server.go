// Package server exposes the call control REST API, the per-call duplex
// WebSocket channel, and the operational endpoints (health, readiness,
// Prometheus metrics).
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hostline-ai/hostline/internal/call"
	"github.com/hostline-ai/hostline/internal/config"
	"github.com/hostline-ai/hostline/internal/dialogue"
	"github.com/hostline-ai/hostline/internal/health"
	"github.com/hostline-ai/hostline/internal/observe"
	"github.com/hostline-ai/hostline/internal/transcript"
	"github.com/hostline-ai/hostline/pkg/provider/stt"
	"github.com/hostline-ai/hostline/pkg/provider/tts"
)

// BridgeFactory builds the dialogue bridge for one call. It receives the
// call's start options so a per-call system prompt or RAG toggle can select
// a differently configured bridge.
type BridgeFactory func(opts call.StartOptions) (dialogue.Bridge, error)

// Deps holds the subsystems the server routes requests to. Registry, STT,
// TTS and Bridge are required.
type Deps struct {
	Registry *call.Registry
	STT      stt.Provider
	TTS      tts.Provider
	Bridge   BridgeFactory

	// Health serves /healthz and /readyz. Nil installs a handler with no
	// readiness checks.
	Health *health.Handler

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	Logger *slog.Logger
}

// Server is the HTTP front of the service.
type Server struct {
	httpSrv  *http.Server
	registry *call.Registry
	stt      stt.Provider
	tts      tts.Provider
	bridge   BridgeFactory
	metrics  *observe.Metrics
	logger   *slog.Logger

	defaultVoice  string
	defaultUseRAG bool
	drainTimeout  time.Duration
	maxQueued     int
	corrector     *transcript.Corrector

	voiceList voiceCache

	tls *config.TLSConfig
}

// New wires the HTTP routes from configuration and dependencies.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("server: registry must not be nil")
	case deps.STT == nil:
		return nil, errors.New("server: stt provider must not be nil")
	case deps.TTS == nil:
		return nil, errors.New("server: tts provider must not be nil")
	case deps.Bridge == nil:
		return nil, errors.New("server: bridge factory must not be nil")
	}

	s := &Server{
		registry:      deps.Registry,
		stt:           deps.STT,
		tts:           deps.TTS,
		bridge:        deps.Bridge,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		defaultVoice:  cfg.Agent.Voice,
		defaultUseRAG: cfg.Agent.UseRAG,
		drainTimeout:  time.Duration(cfg.Calls.DrainTimeoutSeconds) * time.Second,
		maxQueued:     cfg.Calls.MaxQueuedSegments,
		tls:           cfg.Server.TLS,
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if len(cfg.Agent.Vocabulary) > 0 {
		s.corrector = transcript.NewCorrector(cfg.Agent.Vocabulary)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	hh := deps.Health
	if hh == nil {
		hh = health.New("")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/calls/start", s.handleStart)
	mux.HandleFunc("GET /api/calls/active", s.handleActive)
	mux.HandleFunc("GET /api/calls/config", s.handleConfig)
	mux.HandleFunc("GET /api/calls/{call_id}/status", s.handleStatus)
	mux.HandleFunc("POST /api/calls/{call_id}/end", s.handleEnd)
	mux.HandleFunc("GET /api/calls/{call_id}/ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	hh.Register(mux)

	s.httpSrv = &http.Server{
		Addr:        cfg.Server.ListenAddr,
		Handler:     observe.Middleware(s.metrics)(mux),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return s, nil
}

// Handler returns the fully-routed HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe blocks serving HTTP (or HTTPS when TLS is configured)
// until Shutdown is called. It never returns http.ErrServerClosed.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.httpSrv.Addr, "tls", s.tls != nil)
	var err error
	if s.tls != nil {
		err = s.httpSrv.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
	} else {
		err = s.httpSrv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("server: listen on %s: %w", s.httpSrv.Addr, err)
}

// Shutdown terminates every registered call and stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, c := range s.registry.List() {
		c.Terminate()
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) bridgeFor(opts call.StartOptions) (dialogue.Bridge, error) {
	return s.bridge(opts)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
