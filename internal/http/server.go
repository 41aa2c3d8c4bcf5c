// Package http provides the control surface: UI input events in, status
// projections and metrics out.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"genreroulette/internal/core"
)

// Controller is the subset of the roulette controller the UI drives.
type Controller interface {
	StartRound(ctx context.Context) error
	Advance(ctx context.Context) error
	Skip(ctx context.Context) error
	SelectDevice(deviceID string)
	OverrideRoundDuration(minutes int)
	Devices(ctx context.Context) ([]core.Device, error)
	Status() core.Status
	History() []core.RoundRecord
}

// AuthFlow is the subset of the auth session the UI drives.
type AuthFlow interface {
	Begin() (string, error)
	Acquire(ctx context.Context, query url.Values) (string, error)
	Validate(ctx context.Context) bool
	Revoke()
	AccessToken() string
}

type Server struct {
	config  *core.ServerConfig
	logger  *zap.Logger
	server  *http.Server
	metrics *Metrics

	controller Controller
	auth       AuthFlow

	mu         sync.RWMutex
	lastStatus core.Status
	lastRound  uint64
}

type Metrics struct {
	registry         *prometheus.Registry
	RoundsTotal      *prometheus.CounterVec
	CommandsTotal    *prometheus.CounterVec
	RoundPhase       *prometheus.GaugeVec
	RemainingSeconds prometheus.Gauge
}

func newMetrics() *Metrics {
	metrics := &Metrics{
		registry: prometheus.NewRegistry(),
		RoundsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "genreroulette_rounds_total",
				Help: "Total number of rounds started",
			},
			[]string{"genre"},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "genreroulette_commands_total",
				Help: "Total number of remote playback commands issued",
			},
			[]string{"command", "status"},
		),
		RoundPhase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "genreroulette_round_phase",
				Help: "Current round phase (1 for the active phase, 0 otherwise)",
			},
			[]string{"phase"},
		),
		RemainingSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "genreroulette_remaining_seconds",
				Help: "Seconds remaining in the active round",
			},
		),
	}

	metrics.registry.MustRegister(
		metrics.RoundsTotal,
		metrics.CommandsTotal,
		metrics.RoundPhase,
		metrics.RemainingSeconds,
	)

	return metrics
}

// NewServer creates the control-surface server. Controller and auth flow
// are attached afterwards via Attach.
func NewServer(config *core.ServerConfig, logger *zap.Logger) *Server {
	s := &Server{
		config:  config,
		logger:  logger,
		metrics: newMetrics(),
	}

	s.server = createHTTPServer(config, s.routes())
	return s
}

// Attach wires the controller and auth session the handlers delegate to.
func (s *Server) Attach(controller Controller, auth AuthFlow) {
	s.controller = controller
	s.auth = auth
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"genreroulette"}`))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"genreroulette"}`))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/callback", s.handleCallback)
	mux.HandleFunc("/logout", s.handleLogout)

	mux.HandleFunc("/api/start", s.handleStart)
	mux.HandleFunc("/api/advance", s.handleAdvance)
	mux.HandleFunc("/api/skip", s.handleSkip)
	mux.HandleFunc("/api/device", s.handleDevice)
	mux.HandleFunc("/api/devices", s.handleDevices)
	mux.HandleFunc("/api/status", s.handleStatus)

	mux.HandleFunc("/", s.handleHome)

	return mux
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}

	authURL, err := s.auth.Begin()
	if err != nil {
		s.logger.Error("Login failed", zap.Error(err))
		if errors.Is(err, core.ErrConfigMissing) {
			writeError(w, http.StatusInternalServerError, "Spotify configuration missing. Check client id, redirect URL, and scopes.")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}

	if _, err := s.auth.Acquire(r.Context(), r.URL.Query()); err != nil {
		s.logger.Warn("Credential acquisition failed", zap.Error(err))
		if errors.Is(err, core.ErrTokenExchange) {
			writeError(w, http.StatusBadGateway, "Login failed. Please try again.")
			return
		}
		// No code and no cached credential: back to the login affordance.
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.auth == nil {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}

	s.auth.Revoke()
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.handleRoundRequest(w, r, func(ctx context.Context) error {
		return s.controller.StartRound(ctx)
	})
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	s.handleRoundRequest(w, r, func(ctx context.Context) error {
		return s.controller.Advance(ctx)
	})
}

func (s *Server) handleRoundRequest(w http.ResponseWriter, r *http.Request, run func(context.Context) error) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}

	// Optional per-start duration override; invalid values are ignored.
	if raw := r.URL.Query().Get("minutes"); raw != "" {
		if minutes, err := strconv.Atoi(raw); err == nil {
			s.controller.OverrideRoundDuration(minutes)
		}
	}

	if err := run(r.Context()); err != nil {
		if errors.Is(err, core.ErrDeviceUnavailable) {
			writeError(w, http.StatusConflict, "Playback device not ready.")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}

	if err := s.controller.Skip(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.ID == "" {
		writeError(w, http.StatusBadRequest, "device id required")
		return
	}

	s.controller.SelectDevice(payload.ID)
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}

	devices, err := s.controller.Devices(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}

	s.mu.RLock()
	last := s.lastStatus
	s.mu.RUnlock()

	authenticated := s.auth != nil && s.auth.AccessToken() != ""

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        last,
		"history":       s.controller.History(),
		"authenticated": authenticated,
	})
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Genre Roulette</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .header { color: #333; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
        .endpoint a:hover { text-decoration: underline; }
    </style>
</head>
<body>
    <h1 class="header">&#127922; Genre Roulette</h1>
    <p>Cycles Spotify playback across random genres at fixed intervals.</p>

    <h2>Controls</h2>
    <div class="endpoint">&#128273; <a href="/login">Login</a> - Authorize with Spotify</div>
    <div class="endpoint">&#9654; POST /api/start - Start a round (optional ?minutes=N)</div>
    <div class="endpoint">&#9197; POST /api/advance - Next genre after a round ends</div>
    <div class="endpoint">&#9193; POST /api/skip - Skip the current track (once per round)</div>
    <div class="endpoint">&#128241; POST /api/device - Select a playback device</div>
    <div class="endpoint">&#128203; <a href="/api/status">Status</a> - Current round state and history</div>

    <h2>Operations</h2>
    <div class="endpoint">&#128202; <a href="/metrics">Metrics</a> - Prometheus metrics</div>
    <div class="endpoint">&#128154; <a href="/healthz">Health</a> - Health check</div>
    <div class="endpoint">&#9989; <a href="/readyz">Ready</a> - Readiness check</div>
</body>
</html>`))
}

// Publish implements core.StatusSink: the latest projection is kept for the
// status endpoint and reflected into metrics.
func (s *Server) Publish(status core.Status) {
	s.mu.Lock()
	newRound := status.Round > s.lastRound
	if newRound {
		s.lastRound = status.Round
	}
	s.lastStatus = status
	s.mu.Unlock()

	if newRound && status.Genre != "" {
		s.metrics.RoundsTotal.WithLabelValues(status.Genre).Inc()
	}
	s.metrics.RemainingSeconds.Set(float64(status.RemainingSeconds))

	for _, phase := range []core.RoundPhase{core.PhaseIdle, core.PhaseSelecting, core.PhasePlaying, core.PhaseAwaitingAdvance} {
		value := 0.0
		if phase.String() == status.Phase {
			value = 1.0
		}
		s.metrics.RoundPhase.WithLabelValues(phase.String()).Set(value)
	}
}

// RecordCommand implements the gateway's command recorder.
func (s *Server) RecordCommand(command, status string) {
	s.metrics.CommandsTotal.WithLabelValues(command, status).Inc()
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
