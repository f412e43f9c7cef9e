package terminal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"market-terminal/internal/composite"
	"market-terminal/internal/gateway"
	"market-terminal/internal/indicator"
	"market-terminal/internal/logger"
	"market-terminal/internal/marketdata"
	"market-terminal/internal/markethours"
	"market-terminal/internal/model"
	"market-terminal/internal/notification"
	"market-terminal/internal/portfolio"
	"market-terminal/internal/strategy"
)

// fetchKey identifies one request of the acquisition phase.
type fetchKey struct {
	id string
	tf model.Timeframe
}

type fetchResult struct {
	series model.PriceSeries
	symbol string
	err    error
}

type fetchJob struct {
	key     fetchKey
	symbols []string
}

const (
	fearID   = "__fear"
	dollarID = "__dollar"
)

// RunCycle runs one evaluation pass. Per-instrument failures are recorded in
// the report and never abort the pass; the returned error is non-nil only
// when the account could not be updated.
func (s *Service) RunCycle(ctx context.Context) (*Report, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	start := s.now()
	traceID := logger.GenerateTraceID("cyc", start)
	ctx = logger.WithTraceID(ctx, traceID)
	log := logger.FromContext(ctx, s.log)

	report := &Report{TraceID: traceID, Started: start}
	if s.deps.Session != nil {
		report.SessionOpen = s.deps.Session.IsOpen(start)
		report.Session = s.deps.Session.StatusString(start)
	} else {
		report.SessionOpen = true
	}

	// 1. acquisition
	data := s.fetchAll(ctx)

	// 2. pure compute
	drivers := s.drivers(data)
	report.Drivers = drivers
	decisions := make(map[string]model.SignalDecision)
	marks := make(map[string]float64)
	volPcts := make(map[string]float64)
	for _, inst := range s.instruments {
		ir := s.evaluate(inst, data, drivers, start)
		if ir.Decision != nil {
			decisions[inst.Key()] = *ir.Decision
			marks[inst.Key()] = ir.Decision.Price
			volPcts[inst.Key()] = ir.Decision.VolatilityPct
		} else {
			log.Warn().Str("instrument", inst.Key()).Str("reason", ir.Skipped).Str("error", ir.Error).Msg("instrument skipped")
			if s.deps.Metrics != nil {
				s.deps.Metrics.InstrumentsSkip.WithLabelValues(inst.Key(), ir.Skipped).Inc()
			}
		}
		report.Instruments = append(report.Instruments, ir)
	}

	// 3. state mutation under the store's single writer. fn may be retried,
	// so it only collects side effects; they run after the update commits.
	var (
		alerts  []notification.Alert
		events  []portfolio.Event
		summary portfolio.Summary
	)
	err := s.deps.Store.Update(ctx, func(acct *model.Account) error {
		alerts, events = nil, nil
		for i := range report.Instruments {
			ir := &report.Instruments[i]
			if ir.Decision == nil {
				continue
			}
			d := decisions[ir.Instrument]
			s.deps.Sizer.Apply(&d, acct.Balance)
			ir.Decision = &d
			ir.Alerted = s.dedupe.Observe(acct, d)
			if ir.Alerted {
				alerts = append(alerts, signalAlert(d))
			}
		}
		for key := range acct.Positions {
			mark, ok := marks[key]
			if !ok {
				continue
			}
			evs, err := s.deps.Manager.Tick(acct, key, mark, volPcts[key], start)
			if err != nil {
				return fmt.Errorf("tick %s: %w", key, err)
			}
			events = append(events, evs...)
		}
		summary = portfolio.Summarize(acct, marks, s.deps.Manager.Limits().SpreadPct)
		return nil
	})
	if err != nil {
		s.finish(report, false, log)
		return report, fmt.Errorf("terminal: cycle update: %w", err)
	}
	report.Events = events
	report.Account = summary

	// 4. side effects
	for _, a := range alerts {
		s.notify.Send(ctx, a)
	}
	for _, ev := range events {
		s.notify.Send(ctx, eventAlert(ev))
		if ev.Kind == portfolio.EventSettled {
			s.journal(ctx, ev)
		}
	}

	s.mu.Lock()
	s.last = report
	for k, v := range marks {
		s.marks[k] = v
	}
	s.mu.Unlock()
	for _, ir := range report.Instruments {
		if h, ok := s.history[ir.Instrument]; ok && ir.Decision != nil {
			h.Push(*ir.Decision)
		}
	}

	s.finish(report, true, log)
	s.observe(report)
	s.publish(gateway.TypeReport, report)
	s.publish(gateway.TypeAccount, summary)
	for _, a := range alerts {
		s.publish(gateway.TypeAlert, a)
	}
	return report, nil
}

func (s *Service) finish(r *Report, ok bool, log zerolog.Logger) {
	r.Finished = s.now()
	if s.deps.Health != nil {
		s.deps.Health.RecordCycle(r.Finished, ok, len(r.Instruments), r.Skipped())
	}
	if s.deps.Metrics != nil {
		result := "ok"
		if !ok {
			result = "error"
		}
		s.deps.Metrics.CyclesTotal.WithLabelValues(result).Inc()
		s.deps.Metrics.CycleDur.Observe(r.Finished.Sub(r.Started).Seconds())
	}
	log.Info().
		Bool("ok", ok).
		Int("instruments", len(r.Instruments)).
		Int("skipped", r.Skipped()).
		Int("events", len(r.Events)).
		Dur("took", r.Finished.Sub(r.Started)).
		Msg("cycle finished")
}

// fetchAll retrieves every series the cycle needs with a bounded worker pool.
func (s *Service) fetchAll(ctx context.Context) map[fetchKey]fetchResult {
	var jobs []fetchJob
	for _, inst := range s.instruments {
		jobs = append(jobs,
			fetchJob{fetchKey{inst.Key(), model.Intraday}, inst.Symbols},
			fetchJob{fetchKey{inst.Key(), model.Daily}, inst.Symbols},
		)
	}
	for _, ref := range s.deps.Composite.References() {
		jobs = append(jobs, fetchJob{fetchKey{ref.ID, model.Intraday}, []string{ref.Symbol}})
	}
	if len(s.cfg.FearSymbols) > 0 {
		jobs = append(jobs, fetchJob{fetchKey{fearID, model.Intraday}, s.cfg.FearSymbols})
	}
	if len(s.cfg.DollarSymbols) > 0 {
		jobs = append(jobs, fetchJob{fetchKey{dollarID, model.Intraday}, s.cfg.DollarSymbols})
	}

	results := make(map[fetchKey]fetchResult, len(jobs))
	var mu sync.Mutex
	var wg sync.WaitGroup
	queue := make(chan fetchJob)

	for w := 0; w < s.cfg.FetchWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				res := s.fetch(ctx, job)
				mu.Lock()
				results[job.key] = res
				mu.Unlock()
			}
		}()
	}
	for _, job := range jobs {
		queue <- job
	}
	close(queue)
	wg.Wait()
	return results
}

func (s *Service) fetch(ctx context.Context, job fetchJob) fetchResult {
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}
	start := time.Now()
	series, symbol, err := marketdata.FetchFirst(ctx, s.deps.Provider, job.symbols, job.key.tf)
	if s.deps.Metrics != nil {
		s.deps.Metrics.FetchDur.WithLabelValues(string(job.key.tf)).Observe(time.Since(start).Seconds())
	}
	return fetchResult{series: series, symbol: symbol, err: err}
}

func (s *Service) drivers(data map[fetchKey]fetchResult) Drivers {
	var d Drivers
	if r, ok := data[fetchKey{fearID, model.Intraday}]; ok && r.err == nil && !r.series.Empty() {
		d.Fear = r.series.Last().Price
		d.FearKnown = true
	}
	if r, ok := data[fetchKey{dollarID, model.Intraday}]; ok && r.err == nil && !r.series.Empty() {
		d.DollarChange = indicator.PctChangeSum(r.series.Values(), s.deps.Engine.Config().MomentumLookback)
		d.DollarKnown = true
	}
	return d
}

// evaluate scores one instrument. It never touches the account.
func (s *Service) evaluate(inst model.Instrument, data map[fetchKey]fetchResult, drivers Drivers, now time.Time) InstrumentReport {
	ir := InstrumentReport{Instrument: inst.Key()}

	intraday := data[fetchKey{inst.Key(), model.Intraday}]
	daily := data[fetchKey{inst.Key(), model.Daily}]
	for _, r := range []fetchResult{intraday, daily} {
		if r.err != nil {
			ir.Skipped, ir.Error = SkipDataUnavailable, r.err.Error()
			return ir
		}
		if r.series.Empty() {
			ir.Skipped = SkipDataUnavailable
			return ir
		}
	}
	ir.Symbol = intraday.symbol
	ir.Freshness = markethours.Grade(intraday.series.Last().Time, now)

	regime := s.deps.Composite.DetectRegime(drivers.Fear, drivers.FearKnown, inst.Class)
	refs := make(map[string]model.PriceSeries)
	for _, ref := range s.deps.Composite.References() {
		if r := data[fetchKey{ref.ID, model.Intraday}]; r.err == nil {
			refs[ref.ID] = r.series
		}
	}
	aligned, err := composite.Align(intraday.series, refs, s.deps.Composite.Weights(regime))
	if err != nil {
		ir.Skipped, ir.Error = SkipMissingReference, err.Error()
		return ir
	}

	snap, err := s.deps.Engine.Compute(indicator.Inputs{
		Intraday: aligned.Prices,
		Index:    aligned.Index,
		Daily:    daily.series.Values(),
	})
	if err != nil {
		if errors.Is(err, indicator.ErrInsufficientHistory) {
			ir.Skipped = SkipInsufficientHistory
		} else {
			ir.Skipped = SkipDataUnavailable
		}
		ir.Error = err.Error()
		return ir
	}
	ir.Snapshot = &snap

	d := s.deps.Scorer.Score(strategy.Input{
		Instrument: inst,
		Symbol:     intraday.symbol,
		Snapshot:   snap,
		Macro: strategy.Macro{
			DollarChange: drivers.DollarChange,
			DollarKnown:  drivers.DollarKnown,
			Fear:         drivers.Fear,
			FearKnown:    drivers.FearKnown,
		},
		Regime: string(regime),
		Now:    now,
	})
	ir.Decision = &d
	return ir
}

func (s *Service) journal(ctx context.Context, ev portfolio.Event) {
	if s.deps.Journal == nil {
		return
	}
	if err := s.deps.Journal.RecordSettlement(ctx, ev.Position, ev.Time, ev.Reason); err != nil {
		s.log.Warn().Err(err).Str("instrument", ev.Instrument).Msg("settlement journal write failed")
	}
}

func (s *Service) observe(r *Report) {
	m := s.deps.Metrics
	if m == nil {
		return
	}
	crisis := 0.0
	for _, ir := range r.Instruments {
		if ir.Decision == nil {
			continue
		}
		d := ir.Decision
		m.DecisionsTotal.WithLabelValues(d.Instrument, string(d.Direction)).Inc()
		m.Confidence.WithLabelValues(d.Instrument).Set(d.Confidence)
		m.Leverage.WithLabelValues(d.Instrument).Set(float64(d.Leverage))
		if d.Direction.Actionable() && !ir.Alerted {
			m.AlertsSuppressed.WithLabelValues(d.Instrument).Inc()
		}
		if d.Regime == string(composite.Crisis) {
			crisis = 1
		}
	}
	m.RegimeCrisis.Set(crisis)
	for _, ev := range r.Events {
		switch ev.Kind {
		case portfolio.EventBreakEven:
			m.BreakEvenTotal.Inc()
		case portfolio.EventExitWarning:
			m.WarningsTotal.WithLabelValues(ev.Reason).Inc()
		case portfolio.EventSettled:
			m.SettlementTotal.WithLabelValues(ev.Reason).Inc()
		}
	}
	observeAccount(m, r.Account)
	session := 0.0
	if r.SessionOpen {
		session = 1
	}
	m.SessionOpen.Set(session)
}
