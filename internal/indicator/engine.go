package indicator

import (
	"errors"
	"fmt"

	"market-terminal/internal/model"
)

// ErrInsufficientHistory is returned when a series is too short for the
// configured windows.
var ErrInsufficientHistory = errors.New("indicator: insufficient history")

// Config holds the indicator windows. Variants of the scoring rules differ
// only in these constants.
type Config struct {
	RSIPeriod        int       `yaml:"rsi_period" default:"14" validate:"min=2"`
	VolRangeWindow   int       `yaml:"vol_range_window" default:"2" validate:"min=1"`
	VolAvgWindow     int       `yaml:"vol_avg_window" default:"14" validate:"min=1"`
	RatioMAWindow    int       `yaml:"ratio_ma_window" default:"50" validate:"min=1"`
	MomentumLookback int       `yaml:"momentum_lookback" default:"5" validate:"min=1"`
	DailyTrend       TrendRule `yaml:"daily_trend"`
	IntradayTrend    TrendRule `yaml:"intraday_trend"`
}

// DefaultConfig returns the windows used by the hourly terminal.
func DefaultConfig() Config {
	return Config{
		RSIPeriod:        14,
		VolRangeWindow:   2,
		VolAvgWindow:     14,
		RatioMAWindow:    50,
		MomentumLookback: 5,
		DailyTrend:       TrendRule{LongWindow: 50},
		IntradayTrend:    TrendRule{ShortWindow: 20, LongWindow: 50},
	}
}

// Inputs are the cleaned series of one instrument. Intraday and Index must be
// aligned point for point.
type Inputs struct {
	Intraday []float64
	Index    []float64
	Daily    []float64
}

// Engine computes indicator snapshots. It holds no state between calls and is
// safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine creates an indicator engine with the given windows.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the engine windows.
func (e *Engine) Config() Config { return e.cfg }

// Compute derives the indicator snapshot for one instrument.
func (e *Engine) Compute(in Inputs) (model.IndicatorSnapshot, error) {
	var snap model.IndicatorSnapshot
	if len(in.Intraday) == 0 || len(in.Intraday) != len(in.Index) {
		return snap, fmt.Errorf("%w: intraday=%d index=%d", ErrInsufficientHistory, len(in.Intraday), len(in.Index))
	}

	price := in.Intraday[len(in.Intraday)-1]
	snap.Price = price
	snap.Index = in.Index[len(in.Index)-1]

	rsi, ok := RSIOf(in.Intraday, e.cfg.RSIPeriod)
	if !ok {
		return snap, fmt.Errorf("%w: rsi(%d) needs %d points, have %d", ErrInsufficientHistory, e.cfg.RSIPeriod, e.cfg.RSIPeriod+1, len(in.Intraday))
	}
	snap.RSI = rsi

	vol, ok := VolatilityOf(in.Intraday, e.cfg.VolRangeWindow, e.cfg.VolAvgWindow)
	if !ok {
		return snap, fmt.Errorf("%w: volatility proxy", ErrInsufficientHistory)
	}
	snap.Volatility = vol
	if price > 0 {
		snap.VolatilityPct = vol / price * 100
	}

	ratios := Ratio(in.Intraday, in.Index)
	snap.Ratio = ratios[len(ratios)-1]
	ratioMA, ok := SMAOf(ratios, e.cfg.RatioMAWindow)
	if !ok {
		return snap, fmt.Errorf("%w: ratio ma(%d)", ErrInsufficientHistory, e.cfg.RatioMAWindow)
	}
	snap.RatioMA = ratioMA

	snap.Trends = map[model.Timeframe]model.Trend{
		model.Daily:    TrendOf(in.Daily, e.cfg.DailyTrend),
		model.Intraday: TrendOf(in.Intraday, e.cfg.IntradayTrend),
	}
	snap.IndexChange = PctChangeSum(in.Index, e.cfg.MomentumLookback)
	snap.PriceChange = PctChangeSum(in.Intraday, e.cfg.MomentumLookback)

	return snap, nil
}
