package model

import "time"

// Direction is the side of a trade decision.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
	Hold  Direction = "HOLD"
)

// Sign returns +1 for LONG, -1 for SHORT and 0 for HOLD.
func (d Direction) Sign() float64 {
	switch d {
	case Long:
		return 1
	case Short:
		return -1
	}
	return 0
}

// Actionable reports whether the direction opens exposure.
func (d Direction) Actionable() bool { return d == Long || d == Short }

// Trend is a per-timeframe trend tag.
type Trend string

const (
	TrendUp      Trend = "UP"
	TrendDown    Trend = "DOWN"
	TrendNeutral Trend = "NEUTRAL"
)

// Direction maps a trend onto the matching trade side.
func (t Trend) Direction() Direction {
	switch t {
	case TrendUp:
		return Long
	case TrendDown:
		return Short
	}
	return Hold
}

// IndicatorSnapshot holds the per-evaluation indicator outputs of one instrument.
type IndicatorSnapshot struct {
	Price         float64             `json:"price"`
	RSI           float64             `json:"rsi"`
	Volatility    float64             `json:"volatility"`     // absolute, price units
	VolatilityPct float64             `json:"volatility_pct"` // percent of price
	Index         float64             `json:"index"`
	Ratio         float64             `json:"ratio"`
	RatioMA       float64             `json:"ratio_ma"`
	Trends        map[Timeframe]Trend `json:"trends"`
	IndexChange   float64             `json:"index_change"` // summed pct change, fraction
	PriceChange   float64             `json:"price_change"`
}

// Check is one named rule contribution to a confidence score.
type Check struct {
	Rule   string  `json:"rule"`
	Points float64 `json:"points"`
	Passed bool    `json:"passed"`
	Note   string  `json:"note,omitempty"`
}

// SignalDecision is the outcome of scoring one instrument in one cycle.
type SignalDecision struct {
	Instrument        string        `json:"instrument"`
	Symbol            string        `json:"symbol"`
	Direction         Direction     `json:"direction"`
	Confidence        float64       `json:"confidence"`
	Price             float64       `json:"price"`
	Leverage          int           `json:"leverage"`
	Exposure          float64       `json:"exposure"`
	StopLoss          float64       `json:"stop_loss"`
	TakeProfit        float64       `json:"take_profit"`
	StopDistance      float64       `json:"stop_distance"`
	TargetDistance    float64       `json:"target_distance"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	PlannedExit       time.Time     `json:"planned_exit_time"`
	Volatility        float64       `json:"volatility"`
	VolatilityPct     float64       `json:"volatility_pct"`
	Aligned           bool          `json:"aligned"`
	Regime            string        `json:"regime"`
	Checks            []Check       `json:"checks,omitempty"`
	Time              time.Time     `json:"timestamp"`
}
