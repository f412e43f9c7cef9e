package terminal

import (
	"fmt"
	"strings"

	"market-terminal/internal/model"
	"market-terminal/internal/notification"
	"market-terminal/internal/portfolio"
)

func signalAlert(d model.SignalDecision) notification.Alert {
	return decisionAlert(d, "SIGNAL")
}

func decisionAlert(d model.SignalDecision, label string) notification.Alert {
	var b strings.Builder
	fmt.Fprintf(&b, "Direction: %s\nConfidence: %.0f%%\n", d.Direction, d.Confidence)
	fmt.Fprintf(&b, "Entry: %.4f\nTarget: %.4f\nStop: %.4f\n", d.Price, d.TakeProfit, d.StopLoss)
	fmt.Fprintf(&b, "Leverage: %dx  Exposure: %.0f\n", d.Leverage, d.Exposure)
	if !d.PlannedExit.IsZero() {
		fmt.Fprintf(&b, "Planned exit: %s", d.PlannedExit.Format("15:04"))
	}
	decision := d
	return notification.Alert{
		Level:      notification.AlertInfo,
		Kind:       notification.KindSignal,
		Instrument: d.Instrument,
		Title:      fmt.Sprintf("%s %s %s", label, d.Instrument, d.Direction),
		Message:    b.String(),
		Decision:   &decision,
		Time:       d.Time,
	}
}

func eventAlert(ev portfolio.Event) notification.Alert {
	a := notification.Alert{
		Level:      notification.AlertInfo,
		Instrument: ev.Instrument,
		Time:       ev.Time,
	}
	switch ev.Kind {
	case portfolio.EventBreakEven:
		a.Kind = notification.KindBreakEven
		a.Title = "BREAK-EVEN " + ev.Instrument
		a.Message = fmt.Sprintf("Profit: %.2f%%\nMove the stop to entry %.4f.", ev.PnLPct, ev.Position.Entry)
	case portfolio.EventExitWarning:
		a.Kind = notification.KindExitWarning
		a.Level = notification.AlertWarning
		a.Title = "EXIT WARNING " + ev.Instrument
		a.Message = fmt.Sprintf("%s\nP&L: %.2f%% (%.2f)\nCheck the position and close if needed.",
			warningText(ev.Reason), ev.PnLPct, ev.PnL)
	case portfolio.EventSettled:
		a.Kind = notification.KindSettled
		a.Title = "SETTLED " + ev.Instrument
		a.Message = fmt.Sprintf("Reason: %s\nP&L: %.2f", ev.Reason, ev.PnL)
		if ev.Reason == portfolio.ReasonStop {
			a.Level = notification.AlertWarning
		}
	default:
		a.Kind = notification.AlertKind(strings.ToLower(string(ev.Kind)))
		a.Title = string(ev.Kind) + " " + ev.Instrument
	}
	return a
}

func warningText(reason string) string {
	switch reason {
	case portfolio.ReasonExitSoon:
		return "Planned exit in less than 5 minutes."
	case portfolio.ReasonExpired:
		return "Planned exit time passed."
	case portfolio.ReasonStop:
		return "Stop level crossed."
	case portfolio.ReasonTarget:
		return "Target level reached."
	case portfolio.ReasonProfitCap:
		return "Profit cap reached."
	case portfolio.ReasonLossCap:
		return "Loss cap reached."
	}
	return reason
}
