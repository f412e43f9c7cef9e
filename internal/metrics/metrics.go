// Package metrics exposes Prometheus metrics and the /healthz endpoint of
// the terminal.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds all Prometheus metrics for the terminal.
type Metrics struct {
	CyclesTotal      *prometheus.CounterVec // labels: result=ok|error
	CycleDur         prometheus.Histogram
	InstrumentsSkip  *prometheus.CounterVec // labels: instrument, reason
	DecisionsTotal   *prometheus.CounterVec // labels: instrument, direction
	Confidence       *prometheus.GaugeVec   // labels: instrument
	Leverage         *prometheus.GaugeVec   // labels: instrument
	RegimeCrisis     prometheus.Gauge       // 1 while the crisis weights are active
	FetchDur         *prometheus.HistogramVec
	FeedBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	FeedBreakerTrips prometheus.Counter

	NotificationsTotal *prometheus.CounterVec // labels: kind, result=ok|error
	AlertsSuppressed   *prometheus.CounterVec // labels: instrument

	OpenPositions   prometheus.Gauge
	BreakEvenTotal  prometheus.Counter
	WarningsTotal   *prometheus.CounterVec // labels: reason
	SettlementTotal *prometheus.CounterVec // labels: reason
	RealizedProfit  prometheus.Gauge
	UnrealizedPnL   prometheus.Gauge

	SessionOpen prometheus.Gauge // 0=closed, 1=open
	UIClients   prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_cycles_total",
			Help: "Evaluation cycles run",
		}, []string{"result"}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "terminal_cycle_duration_seconds",
			Help:    "Wall time of one evaluation cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}),
		InstrumentsSkip: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_instruments_skipped_total",
			Help: "Instruments skipped in a cycle (data unavailable, insufficient history)",
		}, []string{"instrument", "reason"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_decisions_total",
			Help: "Decisions produced by direction",
		}, []string{"instrument", "direction"}),
		Confidence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "terminal_confidence",
			Help: "Latest confidence score per instrument",
		}, []string{"instrument"}),
		Leverage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "terminal_suggested_leverage",
			Help: "Latest suggested leverage per instrument",
		}, []string{"instrument"}),
		RegimeCrisis: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_regime_crisis",
			Help: "1 while the fear gauge selects the crisis weights",
		}),
		FetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "terminal_fetch_duration_seconds",
			Help:    "Market data fetch latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"timeframe"}),
		FeedBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_feed_circuit_breaker_state",
			Help: "Market data circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		FeedBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_feed_circuit_breaker_trips_total",
			Help: "Times the market data circuit breaker tripped open",
		}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_notifications_total",
			Help: "Notification attempts by kind and result",
		}, []string{"kind", "result"}),
		AlertsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_alerts_suppressed_total",
			Help: "Directional decisions not sent because the instrument was already notified",
		}, []string{"instrument"}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_open_positions",
			Help: "Open positions",
		}),
		BreakEvenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_break_even_total",
			Help: "Positions promoted to break-even",
		}),
		WarningsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_exit_warnings_total",
			Help: "Exit warnings raised by reason",
		}, []string{"reason"}),
		SettlementTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_settlements_total",
			Help: "Settled positions by reason",
		}, []string{"reason"}),
		RealizedProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_total_profit",
			Help: "Cumulative realized profit in account currency",
		}),
		UnrealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_unrealized_pnl",
			Help: "Unrealized P&L of open positions in account currency",
		}),
		SessionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_session_open",
			Help: "Trading session state (0=closed, 1=open)",
		}),
		UIClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_ui_clients",
			Help: "Connected WebSocket UI sessions",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDur,
		m.InstrumentsSkip,
		m.DecisionsTotal,
		m.Confidence,
		m.Leverage,
		m.RegimeCrisis,
		m.FetchDur,
		m.FeedBreakerState,
		m.FeedBreakerTrips,
		m.NotificationsTotal,
		m.AlertsSuppressed,
		m.OpenPositions,
		m.BreakEvenTotal,
		m.WarningsTotal,
		m.SettlementTotal,
		m.RealizedProfit,
		m.UnrealizedPnL,
		m.SessionOpen,
		m.UIClients,
	)

	return m
}

// ObserveNotification records one notification attempt.
func (m *Metrics) ObserveNotification(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.NotificationsTotal.WithLabelValues(kind, result).Inc()
}

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	LastCycleAt  time.Time `json:"last_cycle_at"`
	LastCycleOK  bool      `json:"last_cycle_ok"`
	Instruments  int       `json:"instruments"`
	Skipped      int       `json:"skipped"`
	FeedBreaker  string    `json:"feed_breaker"`
	StoreOK      bool      `json:"store_ok"`
	StoreBackend string    `json:"store_backend"`

	// Liveness probe results
	StoreLatencyMs float64   `json:"store_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`

	// A cycle older than this makes the service degraded.
	staleAfter time.Duration
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(storeBackend string, staleAfter time.Duration) *HealthStatus {
	return &HealthStatus{
		StartedAt:    time.Now(),
		StoreBackend: storeBackend,
		StoreOK:      true,
		FeedBreaker:  "closed",
		staleAfter:   staleAfter,
	}
}

// RecordCycle records the outcome of an evaluation cycle.
func (h *HealthStatus) RecordCycle(at time.Time, ok bool, instruments, skipped int) {
	h.mu.Lock()
	h.LastCycleAt = at
	h.LastCycleOK = ok
	h.Instruments = instruments
	h.Skipped = skipped
	h.mu.Unlock()
}

func (h *HealthStatus) SetFeedBreaker(state string) {
	h.mu.Lock()
	h.FeedBreaker = state
	h.mu.Unlock()
}

// CheckStore runs the store probe and records latency + health.
func (h *HealthStatus) CheckStore(ctx context.Context, probe Probe) {
	start := time.Now()
	err := probe(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.StoreOK = err == nil
	h.StoreLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, probe Probe, interval time.Duration) {
	if probe == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.CheckStore(probeCtx, probe)
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	cycleAge := ""
	stale := false
	if !h.LastCycleAt.IsZero() {
		age := time.Since(h.LastCycleAt)
		cycleAge = age.Round(time.Millisecond).String()
		stale = h.staleAfter > 0 && age > h.staleAfter
	}

	if !h.StoreOK || stale || h.FeedBreaker == "open" || (!h.LastCycleAt.IsZero() && !h.LastCycleOK) {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.StoreOK && h.FeedBreaker == "open" {
		overallStatus = "unhealthy"
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		LastCycleAt    string  `json:"last_cycle_at"`
		CycleAge       string  `json:"cycle_age"`
		LastCycleOK    bool    `json:"last_cycle_ok"`
		Instruments    int     `json:"instruments"`
		Skipped        int     `json:"skipped"`
		FeedBreaker    string  `json:"feed_breaker"`
		StoreBackend   string  `json:"store_backend"`
		StoreOK        bool    `json:"store_ok"`
		StoreLatencyMs float64 `json:"store_latency_ms"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		LastCycleAt:    h.LastCycleAt.Format(time.RFC3339),
		CycleAge:       cycleAge,
		LastCycleOK:    h.LastCycleOK,
		Instruments:    h.Instruments,
		Skipped:        h.Skipped,
		FeedBreaker:    h.FeedBreaker,
		StoreBackend:   h.StoreBackend,
		StoreOK:        h.StoreOK,
		StoreLatencyMs: h.StoreLatencyMs,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
	log    zerolog.Logger
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus, log zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", health)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("metrics server listening")
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("metrics server error")
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
