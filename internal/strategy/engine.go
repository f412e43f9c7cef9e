// Package strategy scores instruments into LONG/SHORT/HOLD decisions.
//
// The Scorer adds up named rule contributions (trend alignment, ratio vs its
// moving average, macro drivers, momentum, RSI veto) into a confidence in
// [0,100]. Trend disagreement between the daily and intraday timeframes is a
// hard gate: the score is capped below any usable threshold and the decision
// is HOLD.
package strategy

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"market-terminal/internal/model"
)

// Rule names recorded in decision checks.
const (
	RuleTrend    = "trend_alignment"
	RuleRatio    = "ratio_vs_ma"
	RuleDollar   = "dollar_proxy"
	RuleFear     = "fear_gauge"
	RuleMomentum = "index_momentum"
	RuleRSIVeto  = "rsi_veto"
	RuleGate     = "trend_gate"
)

// Config holds the rule weights and thresholds.
type Config struct {
	Threshold       float64       `yaml:"threshold" default:"70" validate:"gte=50,lte=100"`
	TrendPoints     float64       `yaml:"trend_points" default:"40"`
	RatioPoints     float64       `yaml:"ratio_points" default:"20"`
	DollarPoints    float64       `yaml:"dollar_points" default:"10"`
	FearPoints      float64       `yaml:"fear_points" default:"10"`
	FearLevel       float64       `yaml:"fear_level" default:"20"`
	MomentumPoints  float64       `yaml:"momentum_points" default:"20"`
	DisagreementCap float64       `yaml:"disagreement_cap" default:"49" validate:"ltfield=Threshold"`
	RSIOverbought   float64       `yaml:"rsi_overbought" default:"70"`
	RSIOversold     float64       `yaml:"rsi_oversold" default:"30"`
	RSIPenalty      float64       `yaml:"rsi_penalty" default:"50"`
	StopMultiple    float64       `yaml:"stop_multiple" default:"2" validate:"gt=0"`
	TargetMultiple  float64       `yaml:"target_multiple" default:"3" validate:"gt=0"`
	MinDurationBars float64       `yaml:"min_duration_bars" default:"2"`
	MaxDurationBars float64       `yaml:"max_duration_bars" default:"10"`
	BarDuration     time.Duration `yaml:"bar_duration" default:"1h"`
}

// DefaultConfig returns the production rule set.
func DefaultConfig() Config {
	return Config{
		Threshold:       70,
		TrendPoints:     40,
		RatioPoints:     20,
		DollarPoints:    10,
		FearPoints:      10,
		FearLevel:       20,
		MomentumPoints:  20,
		DisagreementCap: 49,
		RSIOverbought:   70,
		RSIOversold:     30,
		RSIPenalty:      50,
		StopMultiple:    2,
		TargetMultiple:  3,
		MinDurationBars: 2,
		MaxDurationBars: 10,
		BarDuration:     time.Hour,
	}
}

// Gate reports whether new directional signals may be emitted at t.
type Gate interface {
	IsOpen(t time.Time) bool
}

// Macro carries the driver readings for macro-sensitive instruments.
type Macro struct {
	DollarChange float64 // summed pct change of the dollar proxy, fraction
	DollarKnown  bool
	Fear         float64 // latest fear-gauge level
	FearKnown    bool
}

// Input is everything the scorer needs for one instrument.
type Input struct {
	Instrument model.Instrument
	Symbol     string
	Snapshot   model.IndicatorSnapshot
	Macro      Macro
	Regime     string
	Now        time.Time
}

// Scorer turns indicator snapshots into decisions. It is pure apart from
// debug logging and safe for concurrent use.
type Scorer struct {
	cfg  Config
	gate Gate
	log  zerolog.Logger
}

// NewScorer creates a scorer. A nil gate is always open.
func NewScorer(cfg Config, gate Gate, log zerolog.Logger) *Scorer {
	return &Scorer{cfg: cfg, gate: gate, log: log}
}

// Config returns the scorer rules.
func (s *Scorer) Config() Config { return s.cfg }

// Score evaluates one instrument. The returned decision carries no sizing.
func (s *Scorer) Score(in Input) model.SignalDecision {
	snap := in.Snapshot
	daily := snap.Trends[model.Daily]
	intraday := snap.Trends[model.Intraday]
	aligned := daily == intraday && daily != model.TrendNeutral && daily != ""

	// Without alignment the daily trend still drives the remaining rules so
	// the checks explain what would have scored.
	bias := daily
	if bias == "" {
		bias = model.TrendNeutral
	}
	side := bias.Direction()

	var checks []model.Check
	score := 0.0
	add := func(rule string, points float64, passed bool, note string) {
		c := model.Check{Rule: rule, Passed: passed, Note: note}
		if passed {
			c.Points = points
			score += points
		}
		checks = append(checks, c)
	}

	add(RuleTrend, s.cfg.TrendPoints, aligned, string(daily)+"/"+string(intraday))

	ratioOK := (side == model.Long && snap.Ratio > snap.RatioMA) ||
		(side == model.Short && snap.Ratio < snap.RatioMA)
	add(RuleRatio, s.cfg.RatioPoints, ratioOK, "")

	class := in.Instrument.Class
	if class != nil && class.MacroSensitive() {
		m := in.Macro
		dollarOK := m.DollarKnown &&
			((side == model.Long && m.DollarChange < 0) || (side == model.Short && m.DollarChange > 0))
		add(RuleDollar, s.cfg.DollarPoints, dollarOK, "")

		fearOK := m.FearKnown && side == model.Long && m.Fear > s.cfg.FearLevel
		add(RuleFear, s.cfg.FearPoints, fearOK, "")
	}

	if class != nil {
		add(RuleMomentum, s.cfg.MomentumPoints, class.Momentum(snap.IndexChange, snap.PriceChange, bias), "")
	}

	veto := (side == model.Long && snap.RSI > s.cfg.RSIOverbought) ||
		(side == model.Short && snap.RSI < s.cfg.RSIOversold)
	add(RuleRSIVeto, -s.cfg.RSIPenalty, veto, "")

	if !aligned && score > s.cfg.DisagreementCap {
		checks = append(checks, model.Check{Rule: RuleGate, Points: s.cfg.DisagreementCap - score, Passed: true})
		score = s.cfg.DisagreementCap
	}

	confidence := math.Max(0, math.Min(100, score))

	direction := model.Hold
	if aligned && confidence >= s.cfg.Threshold && s.sessionOpen(in.Now) {
		direction = side
	}

	d := model.SignalDecision{
		Instrument:    in.Instrument.Key(),
		Symbol:        in.Symbol,
		Direction:     direction,
		Confidence:    confidence,
		Price:         snap.Price,
		Volatility:    snap.Volatility,
		VolatilityPct: snap.VolatilityPct,
		Aligned:       aligned,
		Regime:        in.Regime,
		Checks:        checks,
		Time:          in.Now,
	}
	s.applyLevels(&d, side)

	s.log.Debug().
		Str("instrument", d.Instrument).
		Str("direction", string(d.Direction)).
		Float64("confidence", d.Confidence).
		Bool("aligned", aligned).
		Float64("rsi", snap.RSI).
		Msg("scored")

	return d
}

func (s *Scorer) sessionOpen(t time.Time) bool {
	return s.gate == nil || s.gate.IsOpen(t)
}

// applyLevels fills stop/target distances, prices and the planned exit.
// Levels follow the candidate side so HOLD decisions still show them.
func (s *Scorer) applyLevels(d *model.SignalDecision, side model.Direction) {
	vol := d.Volatility
	d.StopDistance = s.cfg.StopMultiple * vol
	d.TargetDistance = s.cfg.TargetMultiple * vol

	bars := s.cfg.MinDurationBars
	if vol > 0 {
		bars = math.Max(s.cfg.MinDurationBars, math.Min(s.cfg.MaxDurationBars, d.TargetDistance/vol))
	}
	d.EstimatedDuration = time.Duration(bars * float64(s.cfg.BarDuration))
	d.PlannedExit = d.Time.Add(d.EstimatedDuration)

	if sign := side.Sign(); sign != 0 {
		d.StopLoss = d.Price - sign*d.StopDistance
		d.TakeProfit = d.Price + sign*d.TargetDistance
	}
}
