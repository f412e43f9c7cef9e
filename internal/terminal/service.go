// Package terminal runs the evaluation cycle: it fetches market data, scores
// every instrument, deduplicates and sends alerts, and ticks open positions
// against the persisted account. It also carries the operator actions
// (confirm, settle, balance) that mutate the account outside of a cycle.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"market-terminal/internal/composite"
	"market-terminal/internal/indicator"
	"market-terminal/internal/marketdata"
	"market-terminal/internal/markethours"
	"market-terminal/internal/metrics"
	"market-terminal/internal/model"
	"market-terminal/internal/notification"
	"market-terminal/internal/portfolio"
	"market-terminal/internal/ringbuf"
	"market-terminal/internal/strategy"
)

// ErrNoDecision is returned when an operator confirms an instrument that has
// no directional decision in the latest cycle.
var ErrNoDecision = errors.New("terminal: no actionable decision")

// Config holds the cycle settings.
type Config struct {
	Interval      time.Duration `yaml:"interval" default:"60s"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout" default:"8s"`
	NotifyTimeout time.Duration `yaml:"notify_timeout" default:"5s"`
	FetchWorkers  int           `yaml:"fetch_workers" default:"4" validate:"gte=1"`
	HistorySize   int           `yaml:"history_size" default:"128" validate:"gte=0"`
	FearSymbols   []string      `yaml:"fear_symbols"`
	DollarSymbols []string      `yaml:"dollar_symbols"`
}

// DefaultConfig polls every minute with the VIX as fear gauge and the dollar
// index as dollar proxy.
func DefaultConfig() Config {
	return Config{
		Interval:      60 * time.Second,
		FetchTimeout:  8 * time.Second,
		NotifyTimeout: 5 * time.Second,
		FetchWorkers:  4,
		HistorySize:   128,
		FearSymbols:   []string{"^VIX"},
		DollarSymbols: []string{"DX-Y.NYB"},
	}
}

// Publisher receives cycle reports, alerts and account snapshots for UI
// fan-out.
type Publisher interface {
	Publish(kind string, payload any) error
}

// Deps are the collaborators of a Service. Journal, Publisher, Metrics,
// Health and Session are optional.
type Deps struct {
	Provider  marketdata.Provider
	Composite *composite.Calculator
	Engine    *indicator.Engine
	Scorer    *strategy.Scorer
	Sizer     *portfolio.Sizer
	Manager   *portfolio.Manager
	Notifier  notification.Notifier
	Store     model.StateStore
	Journal   model.SettlementJournal
	Publisher Publisher
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
	Session   *markethours.Session
}

// Service is safe for concurrent use. Cycles are serialised; operator
// actions go through the store's Update and never block on a running cycle.
type Service struct {
	cfg         Config
	instruments []model.Instrument
	deps        Deps
	notify      notification.Notifier // best-effort wrapper around deps.Notifier
	dedupe      notification.Deduper
	log         zerolog.Logger
	now         func() time.Time

	cycleMu sync.Mutex

	mu    sync.RWMutex
	last  *Report
	marks map[string]float64

	history map[string]*ringbuf.Ring[model.SignalDecision]
}

// New validates deps and creates a service.
func New(cfg Config, instruments []model.Instrument, deps Deps, log zerolog.Logger) (*Service, error) {
	switch {
	case deps.Provider == nil:
		return nil, fmt.Errorf("terminal: provider is required")
	case deps.Composite == nil || deps.Engine == nil || deps.Scorer == nil:
		return nil, fmt.Errorf("terminal: composite, engine and scorer are required")
	case deps.Sizer == nil || deps.Manager == nil:
		return nil, fmt.Errorf("terminal: sizer and manager are required")
	case deps.Store == nil:
		return nil, fmt.Errorf("terminal: store is required")
	case len(instruments) == 0:
		return nil, fmt.Errorf("terminal: no instruments configured")
	}
	if deps.Notifier == nil {
		deps.Notifier = notification.NewLogNotifier(log)
	}
	if cfg.FetchWorkers < 1 {
		cfg.FetchWorkers = 1
	}

	s := &Service{
		cfg:         cfg,
		instruments: instruments,
		deps:        deps,
		log:         log,
		now:         time.Now,
		marks:       make(map[string]float64),
		history:     make(map[string]*ringbuf.Ring[model.SignalDecision], len(instruments)),
	}
	if cfg.HistorySize > 0 {
		for _, inst := range instruments {
			s.history[inst.Key()] = ringbuf.New[model.SignalDecision](cfg.HistorySize)
		}
	}
	var onSend func(notification.AlertKind, error)
	if deps.Metrics != nil {
		onSend = func(kind notification.AlertKind, err error) {
			deps.Metrics.ObserveNotification(string(kind), err)
		}
	}
	s.notify = notification.NewBestEffort(deps.Notifier, cfg.NotifyTimeout, log, onSend)
	return s, nil
}

// Instruments returns the configured instruments.
func (s *Service) Instruments() []model.Instrument { return s.instruments }

// Last returns the most recent cycle report, or nil before the first cycle.
func (s *Service) Last() *Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Decision returns the latest decision for an instrument.
func (s *Service) Decision(instrument string) (model.SignalDecision, bool) {
	r := s.Last()
	if r == nil {
		return model.SignalDecision{}, false
	}
	for _, ir := range r.Instruments {
		if ir.Instrument == instrument && ir.Decision != nil {
			return *ir.Decision, true
		}
	}
	return model.SignalDecision{}, false
}

// History returns up to limit of the most recent sized decisions for an
// instrument, oldest first. ok is false for unknown instruments or when the
// history is disabled.
func (s *Service) History(instrument string, limit int) ([]model.SignalDecision, bool) {
	r, ok := s.history[instrument]
	if !ok {
		return nil, false
	}
	return r.Snapshot(limit), true
}

func (s *Service) currentMarks() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[string]float64, len(s.marks))
	for k, v := range s.marks {
		cp[k] = v
	}
	return cp
}

// Run executes a cycle immediately and then every cfg.Interval until ctx is
// cancelled. Cycle errors are logged, never fatal.
func (s *Service) Run(ctx context.Context) {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Msg("cycle failed")
		}
		select {
		case <-ctx.Done():
			s.log.Info().Msg("evaluation loop stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) publish(kind string, payload any) {
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.Publish(kind, payload); err != nil {
		s.log.Warn().Err(err).Str("type", kind).Msg("publish failed")
	}
}
