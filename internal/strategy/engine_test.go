package strategy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"market-terminal/internal/model"
)

type fixedGate bool

func (g fixedGate) IsOpen(time.Time) bool { return bool(g) }

var now = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

func gold() model.Instrument {
	return model.Instrument{ID: "GOLD", Symbols: []string{"GC=F"}, Class: model.PreciousMetal{}}
}

// bullish returns a snapshot where every LONG rule passes.
func bullish(daily, intraday model.Trend) model.IndicatorSnapshot {
	return model.IndicatorSnapshot{
		Price:         2000,
		RSI:           55,
		Volatility:    10,
		VolatilityPct: 0.5,
		Ratio:         0.21,
		RatioMA:       0.20,
		Trends:        map[model.Timeframe]model.Trend{model.Daily: daily, model.Intraday: intraday},
		IndexChange:   0.004,
		PriceChange:   0.003,
	}
}

func bullishMacro() Macro {
	return Macro{DollarChange: -0.002, DollarKnown: true, Fear: 22, FearKnown: true}
}

func newScorer(open bool) *Scorer {
	return NewScorer(DefaultConfig(), fixedGate(open), zerolog.Nop())
}

func findCheck(d model.SignalDecision, rule string) (model.Check, bool) {
	for _, c := range d.Checks {
		if c.Rule == rule {
			return c, true
		}
	}
	return model.Check{}, false
}

func TestScore_AllRulesLong(t *testing.T) {
	d := newScorer(true).Score(Input{Instrument: gold(), Symbol: "GC=F", Snapshot: bullish(model.TrendUp, model.TrendUp), Macro: bullishMacro(), Now: now})

	assert.Equal(t, model.Long, d.Direction)
	assert.Equal(t, 100.0, d.Confidence)
	assert.True(t, d.Aligned)
	assert.Equal(t, "GOLD", d.Instrument)
	assert.Equal(t, 20.0, d.StopDistance)
	assert.Equal(t, 30.0, d.TargetDistance)
	assert.Equal(t, 1980.0, d.StopLoss)
	assert.Equal(t, 2030.0, d.TakeProfit)
	assert.Equal(t, 3*time.Hour, d.EstimatedDuration)
	assert.Equal(t, now.Add(3*time.Hour), d.PlannedExit)
}

func TestScore_TrendDisagreementForcesHold(t *testing.T) {
	d := newScorer(true).Score(Input{Instrument: gold(), Snapshot: bullish(model.TrendUp, model.TrendDown), Macro: bullishMacro(), Now: now})

	assert.Equal(t, model.Hold, d.Direction)
	assert.False(t, d.Aligned)
	assert.LessOrEqual(t, d.Confidence, 49.0)
	_, capped := findCheck(d, RuleGate)
	assert.True(t, capped, "cap should be recorded as a check")
}

func TestScore_ShortSide(t *testing.T) {
	snap := bullish(model.TrendDown, model.TrendDown)
	snap.Ratio, snap.RatioMA = 0.19, 0.20
	snap.IndexChange, snap.PriceChange = -0.004, -0.003
	oil := model.Instrument{ID: "WTI", Symbols: []string{"CL=F"}, Class: model.IndustrialCommodity{}}

	d := newScorer(true).Score(Input{Instrument: oil, Snapshot: snap, Now: now})

	// 40 trend + 20 ratio + 20 momentum; no macro rules for oil.
	assert.Equal(t, model.Short, d.Direction)
	assert.Equal(t, 80.0, d.Confidence)
	assert.Equal(t, 2020.0, d.StopLoss)
	assert.Equal(t, 1970.0, d.TakeProfit)
	_, hasMacro := findCheck(d, RuleDollar)
	assert.False(t, hasMacro)
}

func TestScore_FearBonusOnlyForLong(t *testing.T) {
	snap := bullish(model.TrendDown, model.TrendDown)
	d := newScorer(true).Score(Input{Instrument: gold(), Snapshot: snap, Macro: Macro{Fear: 40, FearKnown: true}, Now: now})

	c, ok := findCheck(d, RuleFear)
	assert.True(t, ok)
	assert.False(t, c.Passed)
}

func TestScore_RSIVeto(t *testing.T) {
	snap := bullish(model.TrendUp, model.TrendUp)
	snap.RSI = 75

	d := newScorer(true).Score(Input{Instrument: gold(), Snapshot: snap, Macro: bullishMacro(), Now: now})

	assert.Equal(t, 50.0, d.Confidence)
	assert.Equal(t, model.Hold, d.Direction)
	c, _ := findCheck(d, RuleRSIVeto)
	assert.Equal(t, -50.0, c.Points)
}

func TestScore_SessionClosedHolds(t *testing.T) {
	d := newScorer(false).Score(Input{Instrument: gold(), Snapshot: bullish(model.TrendUp, model.TrendUp), Macro: bullishMacro(), Now: now})

	assert.Equal(t, model.Hold, d.Direction)
	assert.Equal(t, 100.0, d.Confidence)
}

func TestScore_NilGateIsOpen(t *testing.T) {
	s := NewScorer(DefaultConfig(), nil, zerolog.Nop())
	d := s.Score(Input{Instrument: gold(), Snapshot: bullish(model.TrendUp, model.TrendUp), Macro: bullishMacro(), Now: now})
	assert.Equal(t, model.Long, d.Direction)
}

func TestScore_SafeHavenDivergence(t *testing.T) {
	// Index sells off while the metal holds: momentum passes for a LONG bias.
	snap := bullish(model.TrendUp, model.TrendUp)
	snap.IndexChange, snap.PriceChange = -0.005, 0.0
	metal := gold()
	metal.Class = model.PreciousMetal{Divergence: true}

	d := newScorer(true).Score(Input{Instrument: metal, Snapshot: snap, Now: now})

	c, _ := findCheck(d, RuleMomentum)
	assert.True(t, c.Passed)

	// Co-movement rule would reject the same readings.
	d = newScorer(true).Score(Input{Instrument: gold(), Snapshot: snap, Now: now})
	c, _ = findCheck(d, RuleMomentum)
	assert.False(t, c.Passed)
}

func TestScore_ConfidenceAlwaysBounded(t *testing.T) {
	s := newScorer(true)
	trends := []model.Trend{model.TrendUp, model.TrendDown, model.TrendNeutral}
	for _, daily := range trends {
		for _, intraday := range trends {
			for _, rsi := range []float64{0, 25, 50, 75, 100} {
				for _, ratio := range []float64{0.1, 0.3} {
					snap := bullish(daily, intraday)
					snap.RSI = rsi
					snap.Ratio = ratio
					d := s.Score(Input{Instrument: gold(), Snapshot: snap, Macro: bullishMacro(), Now: now})
					assert.GreaterOrEqual(t, d.Confidence, 0.0)
					assert.LessOrEqual(t, d.Confidence, 100.0)
					if daily != intraday || daily == model.TrendNeutral {
						assert.Equal(t, model.Hold, d.Direction)
						assert.LessOrEqual(t, d.Confidence, 49.0)
					}
				}
			}
		}
	}
}

func TestScore_ZeroVolatilityUsesMinimumDuration(t *testing.T) {
	snap := bullish(model.TrendUp, model.TrendUp)
	snap.Volatility = 0
	d := newScorer(true).Score(Input{Instrument: gold(), Snapshot: snap, Now: now})
	assert.Equal(t, 2*time.Hour, d.EstimatedDuration)
}
