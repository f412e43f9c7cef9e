package portfolio

import (
	"math"

	"market-terminal/internal/model"
)

// Tier caps leverage once the balance exceeds Above.
type Tier struct {
	Above float64 `yaml:"above" validate:"gt=0"`
	Cap   int     `yaml:"cap" validate:"min=1"`
}

// SizerConfig holds the volatility-scaled leverage parameters.
type SizerConfig struct {
	TargetVolPct   float64 `yaml:"target_vol_pct" default:"4" validate:"gt=0"`
	MaxLeverage    int     `yaml:"max_leverage" default:"20" validate:"min=1"`
	ExposureFactor float64 `yaml:"exposure_factor" default:"0.5" validate:"gt=0"`
	Tiers          []Tier  `yaml:"tiers" validate:"dive"`
}

// DefaultSizerConfig returns 4 % target volatility, 1..20 leverage and the
// 25k/50k balance tiers.
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		TargetVolPct:   4,
		MaxLeverage:    20,
		ExposureFactor: 0.5,
		Tiers:          []Tier{{Above: 25000, Cap: 3}, {Above: 50000, Cap: 2}},
	}
}

// Sizer maps volatility and confidence to leverage and exposure.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer creates a sizer.
func NewSizer(cfg SizerConfig) *Sizer {
	if cfg.MaxLeverage < 1 {
		cfg.MaxLeverage = 1
	}
	return &Sizer{cfg: cfg}
}

// Leverage returns the suggested leverage in [1, MaxLeverage]:
// floor(clamp(target/volPct, 1, max) * (confidence/100)^2), then balance tiers.
func (s *Sizer) Leverage(volPct, confidence, balance float64) int {
	base := 1.0
	if volPct > 0 {
		base = s.cfg.TargetVolPct / volPct
	}
	base = math.Max(1, math.Min(float64(s.cfg.MaxLeverage), base))

	cf := math.Max(0, math.Min(100, confidence)) / 100
	lev := int(math.Floor(base * cf * cf))
	if lev < 1 {
		lev = 1
	}

	for _, t := range s.cfg.Tiers {
		if balance > t.Above && lev > t.Cap {
			lev = t.Cap
		}
	}
	if lev > s.cfg.MaxLeverage {
		lev = s.cfg.MaxLeverage
	}
	return lev
}

// Exposure returns balance * leverage * ExposureFactor.
func (s *Sizer) Exposure(balance float64, leverage int) float64 {
	return balance * float64(leverage) * s.cfg.ExposureFactor
}

// Apply fills leverage and exposure on a decision.
func (s *Sizer) Apply(d *model.SignalDecision, balance float64) {
	d.Leverage = s.Leverage(d.VolatilityPct, d.Confidence, balance)
	d.Exposure = s.Exposure(balance, d.Leverage)
}
