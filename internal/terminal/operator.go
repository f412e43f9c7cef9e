package terminal

import (
	"context"
	"fmt"

	"market-terminal/internal/gateway"
	"market-terminal/internal/metrics"
	"market-terminal/internal/model"
	"market-terminal/internal/notification"
	"market-terminal/internal/portfolio"
)

// Confirm opens a position from the latest decision for instrument. A
// positive entry overrides the decision price.
func (s *Service) Confirm(ctx context.Context, instrument string, entry float64) (portfolio.Event, error) {
	d, ok := s.Decision(instrument)
	if !ok || !d.Direction.Actionable() {
		return portfolio.Event{}, fmt.Errorf("%w: %s", ErrNoDecision, instrument)
	}

	var ev portfolio.Event
	var summary portfolio.Summary
	marks := s.currentMarks()
	err := s.deps.Store.Update(ctx, func(acct *model.Account) error {
		var err error
		ev, err = s.deps.Manager.Open(acct, d, entry, s.now())
		if err != nil {
			return err
		}
		summary = portfolio.Summarize(acct, marks, s.deps.Manager.Limits().SpreadPct)
		return nil
	})
	if err != nil {
		return portfolio.Event{}, err
	}
	s.accountChanged(summary)
	return ev, nil
}

// Settle closes a position with the operator-reported realized P&L.
func (s *Service) Settle(ctx context.Context, instrument string, realized float64) (portfolio.Event, error) {
	var ev portfolio.Event
	var summary portfolio.Summary
	marks := s.currentMarks()
	err := s.deps.Store.Update(ctx, func(acct *model.Account) error {
		var err error
		ev, err = s.deps.Manager.Settle(acct, instrument, realized, portfolio.ReasonManual, s.now())
		if err != nil {
			return err
		}
		summary = portfolio.Summarize(acct, marks, s.deps.Manager.Limits().SpreadPct)
		return nil
	})
	if err != nil {
		return portfolio.Event{}, err
	}

	s.notify.Send(ctx, eventAlert(ev))
	s.journal(ctx, ev)
	if s.deps.Metrics != nil {
		s.deps.Metrics.SettlementTotal.WithLabelValues(ev.Reason).Inc()
	}
	s.accountChanged(summary)
	return ev, nil
}

// SetBalance replaces the account balance used for sizing.
func (s *Service) SetBalance(ctx context.Context, balance float64) (portfolio.Summary, error) {
	if balance <= 0 {
		return portfolio.Summary{}, fmt.Errorf("terminal: balance must be positive, got %v", balance)
	}
	var summary portfolio.Summary
	marks := s.currentMarks()
	err := s.deps.Store.Update(ctx, func(acct *model.Account) error {
		acct.Balance = balance
		summary = portfolio.Summarize(acct, marks, s.deps.Manager.Limits().SpreadPct)
		return nil
	})
	if err != nil {
		return portfolio.Summary{}, err
	}
	s.log.Info().Float64("balance", balance).Msg("balance updated")
	s.accountChanged(summary)
	return summary, nil
}

// Account returns the persisted account valued at the latest marks.
func (s *Service) Account(ctx context.Context) (portfolio.Summary, error) {
	acct, err := s.deps.Store.Load(ctx)
	if err != nil {
		return portfolio.Summary{}, err
	}
	return portfolio.Summarize(acct, s.currentMarks(), s.deps.Manager.Limits().SpreadPct), nil
}

// PushSignals re-sends every directional decision of the latest cycle,
// bypassing deduplication. It returns the number of alerts sent.
func (s *Service) PushSignals(ctx context.Context) int {
	r := s.Last()
	if r == nil {
		return 0
	}
	n := 0
	for _, ir := range r.Instruments {
		if ir.Decision == nil || !ir.Decision.Direction.Actionable() {
			continue
		}
		a := decisionAlert(*ir.Decision, "MANUAL PUSH")
		s.notify.Send(ctx, a)
		s.publish(gateway.TypeAlert, a)
		n++
	}
	return n
}

// TestAlert sends a test message straight to the configured channels and
// reports delivery errors, unlike cycle alerts.
func (s *Service) TestAlert(ctx context.Context) error {
	if s.cfg.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.NotifyTimeout)
		defer cancel()
	}
	err := s.deps.Notifier.Send(ctx, notification.Alert{
		Level:   notification.AlertInfo,
		Kind:    notification.KindTest,
		Title:   "SYSTEM CHECK",
		Message: "The terminal is connected and ready for signals.",
		Time:    s.now(),
	})
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveNotification(string(notification.KindTest), err)
	}
	return err
}

func (s *Service) accountChanged(summary portfolio.Summary) {
	if s.deps.Metrics != nil {
		observeAccount(s.deps.Metrics, summary)
	}
	s.publish(gateway.TypeAccount, summary)
}

func observeAccount(m *metrics.Metrics, summary portfolio.Summary) {
	m.OpenPositions.Set(float64(summary.OpenPositions))
	m.RealizedProfit.Set(summary.TotalProfit)
	m.UnrealizedPnL.Set(summary.UnrealizedPnL)
}
