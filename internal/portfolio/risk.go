package portfolio

import (
	"math"
	"time"

	"market-terminal/internal/model"
)

// Limits configures break-even promotion and exit triggers.
type Limits struct {
	SpreadPct            float64       `yaml:"spread_pct" default:"0.05" validate:"gte=0"`
	BreakEvenMinPct      float64       `yaml:"break_even_min_pct" default:"0.5" validate:"gte=0"`
	BreakEvenVolMultiple float64       `yaml:"break_even_vol_multiple" default:"1" validate:"gte=0"`
	WarningLead          time.Duration `yaml:"warning_lead" default:"5m"`
	HardProfitPct        float64       `yaml:"hard_profit_pct" default:"1.5" validate:"gte=0"` // 0 disables
	HardLossPct          float64       `yaml:"hard_loss_pct" default:"0.8" validate:"gte=0"`   // 0 disables
	AutoSettle           bool          `yaml:"auto_settle"`
}

// DefaultLimits returns the production limits: 0.05 % spread, break-even at
// max(0.5 %, volatility %), exit warning 5 minutes before the planned exit or
// at +1.5 % / -0.8 %, manual settlement.
func DefaultLimits() Limits {
	return Limits{
		SpreadPct:            0.05,
		BreakEvenMinPct:      0.5,
		BreakEvenVolMultiple: 1,
		WarningLead:          5 * time.Minute,
		HardProfitPct:        1.5,
		HardLossPct:          0.8,
	}
}

// BreakEvenThreshold returns the pnl% at which the stop moves to entry.
func (l Limits) BreakEvenThreshold(volPct float64) float64 {
	return math.Max(l.BreakEvenMinPct, volPct*l.BreakEvenVolMultiple)
}

// Exit trigger reasons.
const (
	ReasonStop      = "stop"
	ReasonTarget    = "target"
	ReasonExpired   = "expired"
	ReasonExitSoon  = "exit_soon"
	ReasonProfitCap = "profit_cap"
	ReasonLossCap   = "loss_cap"
	ReasonManual    = "manual"
)

// exitReason returns the first exit trigger hit by a position at mark, or "".
func (l Limits) exitReason(p *model.Position, mark, pnlPct float64, now time.Time) string {
	sign := p.Direction.Sign()
	switch {
	case p.StopLoss > 0 && sign*(mark-p.StopLoss) <= 0:
		return ReasonStop
	case p.TakeProfit > 0 && sign*(mark-p.TakeProfit) >= 0:
		return ReasonTarget
	case l.HardLossPct > 0 && pnlPct <= -l.HardLossPct:
		return ReasonLossCap
	case l.HardProfitPct > 0 && pnlPct >= l.HardProfitPct:
		return ReasonProfitCap
	}
	if !p.PlannedExit.IsZero() {
		left := p.PlannedExit.Sub(now)
		if left <= 0 {
			return ReasonExpired
		}
		if left <= l.WarningLead {
			return ReasonExitSoon
		}
	}
	return ""
}

// settlesAutomatically reports whether an exit reason closes the position
// when auto-settlement is enabled.
func settlesAutomatically(reason string) bool {
	return reason == ReasonStop || reason == ReasonTarget || reason == ReasonExpired
}
