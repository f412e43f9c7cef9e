// Package composite builds the regime-weighted benchmark index that every
// instrument is compared against.
package composite

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"market-terminal/internal/model"
)

// ErrMissingReference is returned when a weighted reference series is absent
// or has no value at any instrument timestamp.
var ErrMissingReference = errors.New("composite: missing reference series")

// Regime selects the active weight vector.
type Regime string

const (
	Standard Regime = "standard"
	Economic Regime = "economic"
	Crisis   Regime = "crisis"
)

// weightTolerance is the allowed deviation of a weight vector sum from 1.
const weightTolerance = 1e-9

// Weights maps a reference id (SPX, DAX, ...) to its share of the index.
type Weights map[string]float64

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	s := 0.0
	for _, v := range w {
		s += v
	}
	return s
}

// Keys returns the reference ids in sorted order.
func (w Weights) Keys() []string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reference is one benchmark series feeding the composite.
type Reference struct {
	ID     string `yaml:"id" validate:"required"`
	Symbol string `yaml:"symbol" validate:"required"`
}

// Config holds the reference series, the weight vector of each regime and the
// fear-gauge level above which the crisis vector applies.
type Config struct {
	References    []Reference `yaml:"references"`
	Standard      Weights     `yaml:"standard"`
	Economic      Weights     `yaml:"economic"`
	Crisis        Weights     `yaml:"crisis"`
	FearThreshold float64     `yaml:"fear_threshold" default:"25"`
}

// DefaultConfig returns the S&P 500 / DAX / Shanghai / Nikkei composite.
func DefaultConfig() Config {
	return Config{
		References: []Reference{
			{ID: "SPX", Symbol: "^GSPC"},
			{ID: "DAX", Symbol: "^GDAXI"},
			{ID: "SSE", Symbol: "000001.SS"},
			{ID: "N225", Symbol: "^N225"},
		},
		Standard:      Weights{"SPX": 0.50, "DAX": 0.20, "SSE": 0.15, "N225": 0.15},
		Economic:      Weights{"SPX": 0.35, "DAX": 0.20, "SSE": 0.30, "N225": 0.15},
		Crisis:        Weights{"SPX": 0.80, "DAX": 0.10, "SSE": 0.05, "N225": 0.05},
		FearThreshold: 25,
	}
}

// Validate checks that every regime vector sums to 1 and only names known
// references.
func (c Config) Validate() error {
	known := make(map[string]bool, len(c.References))
	for _, r := range c.References {
		known[r.ID] = true
	}
	for _, rw := range []struct {
		regime Regime
		w      Weights
	}{{Standard, c.Standard}, {Economic, c.Economic}, {Crisis, c.Crisis}} {
		if len(rw.w) == 0 {
			return fmt.Errorf("composite: %s weights are empty", rw.regime)
		}
		if sum := rw.w.Sum(); math.Abs(sum-1) > weightTolerance {
			return fmt.Errorf("composite: %s weights sum to %.12f, want 1", rw.regime, sum)
		}
		for _, id := range rw.w.Keys() {
			if !known[id] {
				return fmt.Errorf("composite: %s weights reference unknown series %q", rw.regime, id)
			}
			if rw.w[id] < 0 {
				return fmt.Errorf("composite: %s weight for %q is negative", rw.regime, id)
			}
		}
	}
	return nil
}

// Calculator selects regimes and combines reference series.
type Calculator struct {
	cfg Config
}

// NewCalculator validates cfg and returns a calculator.
func NewCalculator(cfg Config) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{cfg: cfg}, nil
}

// References returns the configured benchmark series.
func (c *Calculator) References() []Reference { return c.cfg.References }

// DetectRegime returns Crisis when the fear reading is known and above the
// threshold, otherwise the weight class of the instrument. It is evaluated
// fresh on every call.
func (c *Calculator) DetectRegime(fear float64, fearKnown bool, class model.AssetClass) Regime {
	if fearKnown && fear > c.cfg.FearThreshold {
		return Crisis
	}
	if class != nil && class.WeightClass() == model.WeightEconomic {
		return Economic
	}
	return Standard
}

// Weights returns the weight vector of a regime.
func (c *Calculator) Weights(r Regime) Weights {
	switch r {
	case Crisis:
		return c.cfg.Crisis
	case Economic:
		return c.cfg.Economic
	}
	return c.cfg.Standard
}

// Value combines single reference readings: Σ wᵢ·valueᵢ.
func Value(w Weights, values map[string]float64) (float64, error) {
	total := 0.0
	for _, id := range w.Keys() {
		v, ok := values[id]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingReference, id)
		}
		total += w[id] * v
	}
	return total, nil
}

// Aligned is an instrument series paired point for point with its composite.
type Aligned struct {
	Times  []time.Time
	Prices []float64
	Index  []float64
}

// Len returns the number of aligned points.
func (a Aligned) Len() int { return len(a.Times) }

// Align computes the composite at every instrument timestamp. References are
// taken as of each timestamp (last known value), so markets closed at that
// hour contribute their previous close. Timestamps before every weighted
// reference has printed are dropped.
func Align(instrument model.PriceSeries, refs map[string]model.PriceSeries, w Weights) (Aligned, error) {
	ids := w.Keys()
	for _, id := range ids {
		if refs[id].Empty() {
			return Aligned{}, fmt.Errorf("%w: %s", ErrMissingReference, id)
		}
	}

	out := Aligned{
		Times:  make([]time.Time, 0, instrument.Len()),
		Prices: make([]float64, 0, instrument.Len()),
		Index:  make([]float64, 0, instrument.Len()),
	}
	values := make(map[string]float64, len(ids))
	for _, pt := range instrument.Points {
		complete := true
		for _, id := range ids {
			v, ok := refs[id].AsOf(pt.Time)
			if !ok {
				complete = false
				break
			}
			values[id] = v
		}
		if !complete {
			continue
		}
		idx, err := Value(w, values)
		if err != nil {
			return Aligned{}, err
		}
		out.Times = append(out.Times, pt.Time)
		out.Prices = append(out.Prices, pt.Price)
		out.Index = append(out.Index, idx)
	}
	if out.Len() == 0 {
		return out, fmt.Errorf("%w: no overlap with %s", ErrMissingReference, instrument.Symbol)
	}
	return out, nil
}
