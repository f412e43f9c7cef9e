package portfolio

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"market-terminal/internal/model"
)

// Lifecycle errors.
var (
	ErrPositionExists = errors.New("portfolio: position already open")
	ErrNoPosition     = errors.New("portfolio: no open position")
	ErrNotActionable  = errors.New("portfolio: decision is not actionable")
)

// EventKind identifies a lifecycle transition worth notifying.
type EventKind string

const (
	EventOpened      EventKind = "OPENED"
	EventBreakEven   EventKind = "BREAK_EVEN"
	EventExitWarning EventKind = "EXIT_WARNING"
	EventSettled     EventKind = "SETTLED"
)

// Event is emitted by the lifecycle manager for notification and metrics.
type Event struct {
	Kind       EventKind      `json:"kind"`
	Instrument string         `json:"instrument"`
	Position   model.Position `json:"position"`
	Mark       float64        `json:"mark,omitempty"`
	PnLPct     float64        `json:"pnl_pct"`
	PnL        float64        `json:"pnl"`
	Reason     string         `json:"reason,omitempty"`
	Time       time.Time      `json:"time"`
}

// Manager runs the NONE -> OPEN -> BREAK_EVEN -> CLOSED state machine.
// BREAK_EVEN is a flag on an open position: once set it never clears.
type Manager struct {
	limits Limits
	log    zerolog.Logger
}

// NewManager creates a lifecycle manager.
func NewManager(limits Limits, log zerolog.Logger) *Manager {
	return &Manager{limits: limits, log: log}
}

// Limits returns the configured limits.
func (m *Manager) Limits() Limits { return m.limits }

// Open creates a position from an operator-confirmed decision. A positive
// entry overrides the decision price; stop and target keep their distances
// from the actual entry.
func (m *Manager) Open(acct *model.Account, d model.SignalDecision, entry float64, now time.Time) (Event, error) {
	if !d.Direction.Actionable() {
		return Event{}, fmt.Errorf("%w: %s is %s", ErrNotActionable, d.Instrument, d.Direction)
	}
	if _, ok := acct.Positions[d.Instrument]; ok {
		return Event{}, fmt.Errorf("%w: %s", ErrPositionExists, d.Instrument)
	}
	if entry <= 0 {
		entry = d.Price
	}
	if entry <= 0 {
		return Event{}, fmt.Errorf("portfolio: open %s: invalid entry %v", d.Instrument, entry)
	}

	sign := d.Direction.Sign()
	lev := d.Leverage
	if lev < 1 {
		lev = 1
	}
	pos := &model.Position{
		Instrument:  d.Instrument,
		Symbol:      d.Symbol,
		Direction:   d.Direction,
		Entry:       entry,
		Leverage:    lev,
		Exposure:    d.Exposure,
		EntryTime:   now,
		StopLoss:    entry - sign*d.StopDistance,
		TakeProfit:  entry + sign*d.TargetDistance,
		PlannedExit: now.Add(d.EstimatedDuration),
	}
	if d.StopDistance <= 0 {
		pos.StopLoss = 0
	}
	if d.TargetDistance <= 0 {
		pos.TakeProfit = 0
	}
	acct.Positions[d.Instrument] = pos

	m.log.Info().
		Str("instrument", pos.Instrument).
		Str("direction", string(pos.Direction)).
		Float64("entry", pos.Entry).
		Int("leverage", pos.Leverage).
		Float64("exposure", pos.Exposure).
		Msg("position opened")

	return Event{Kind: EventOpened, Instrument: pos.Instrument, Position: *pos, Mark: entry, Time: now}, nil
}

// Tick re-evaluates an open position at mark. It promotes to break-even at
// most once, raises at most one exit warning (possibly on the promoting tick),
// and settles automatically on a stop, target or expiry when AutoSettle is
// enabled.
func (m *Manager) Tick(acct *model.Account, instrument string, mark, volPct float64, now time.Time) ([]Event, error) {
	pos, ok := acct.Positions[instrument]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPosition, instrument)
	}

	pnlPct := pos.PnLPct(mark, m.limits.SpreadPct)
	var events []Event

	promoted := false
	if !pos.BreakEven && pnlPct >= m.limits.BreakEvenThreshold(volPct) {
		pos.BreakEven = true
		pos.StopLoss = pos.Entry
		promoted = true
		m.log.Info().Str("instrument", instrument).Float64("pnl_pct", pnlPct).Msg("break-even reached")
		events = append(events, m.event(EventBreakEven, pos, mark, pnlPct, "", now))
	}

	reason := m.limits.exitReason(pos, mark, pnlPct, now)
	// The stop pinned at entry this tick is evaluated from the next tick on.
	if reason == "" || (promoted && reason == ReasonStop) {
		return events, nil
	}

	if m.limits.AutoSettle && settlesAutomatically(reason) {
		ev, err := m.Settle(acct, instrument, UnrealizedPnL(pos, mark, m.limits.SpreadPct), reason, now)
		if err != nil {
			return events, err
		}
		ev.Mark = mark
		ev.PnLPct = pnlPct
		return append(events, ev), nil
	}

	if !pos.WarningSent {
		pos.WarningSent = true
		m.log.Info().Str("instrument", instrument).Str("reason", reason).Float64("pnl_pct", pnlPct).Msg("exit warning")
		events = append(events, m.event(EventExitWarning, pos, mark, pnlPct, reason, now))
	}
	return events, nil
}

// Settle closes a position with the given realized P&L (account currency).
// The P&L folds into TotalProfit and the instrument's notification marker is
// cleared so the next signal alerts again.
func (m *Manager) Settle(acct *model.Account, instrument string, realized float64, reason string, now time.Time) (Event, error) {
	pos, ok := acct.Positions[instrument]
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrNoPosition, instrument)
	}
	if reason == "" {
		reason = ReasonManual
	}

	pos.RealizedPnL = realized
	acct.TotalProfit += realized
	delete(acct.Positions, instrument)
	delete(acct.LastNotified, instrument)

	m.log.Info().
		Str("instrument", instrument).
		Str("reason", reason).
		Float64("pnl", realized).
		Float64("total_profit", acct.TotalProfit).
		Msg("position settled")

	return Event{Kind: EventSettled, Instrument: instrument, Position: *pos, PnL: realized, Reason: reason, Time: now}, nil
}

func (m *Manager) event(kind EventKind, pos *model.Position, mark, pnlPct float64, reason string, now time.Time) Event {
	return Event{
		Kind:       kind,
		Instrument: pos.Instrument,
		Position:   *pos,
		Mark:       mark,
		PnLPct:     pnlPct,
		PnL:        pos.Exposure * pnlPct / 100,
		Reason:     reason,
		Time:       now,
	}
}
