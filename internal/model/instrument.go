package model

import (
	"fmt"
	"strings"
)

// WeightClass selects which composite-index weight vector an instrument uses
// outside of a crisis regime.
type WeightClass string

const (
	WeightStandard WeightClass = "standard"
	WeightEconomic WeightClass = "economic"
)

// AssetClass is the tagged variant carried by every instrument. It replaces
// name-based switches: composite weighting, macro sensitivity and the momentum
// rule are all answered by the class.
type AssetClass interface {
	Name() string
	WeightClass() WeightClass
	// MacroSensitive reports whether dollar strength and the fear gauge
	// contribute to the instrument's score.
	MacroSensitive() bool
	// Momentum reports whether the recent index and instrument changes
	// (summed percentage changes) confirm the bias trend.
	Momentum(indexChange, priceChange float64, bias Trend) bool
}

// coMovement is the default momentum rule: the index moved in the bias direction.
func coMovement(indexChange float64, bias Trend) bool {
	return (indexChange > 0 && bias == TrendUp) || (indexChange < 0 && bias == TrendDown)
}

// PreciousMetal covers safe-haven metals (gold, silver, platinum).
// Divergence enables the safe-haven pattern: the index sells off while the
// metal holds, or both rally together.
type PreciousMetal struct {
	Divergence bool
}

func (PreciousMetal) Name() string             { return "precious_metal" }
func (PreciousMetal) WeightClass() WeightClass { return WeightStandard }
func (PreciousMetal) MacroSensitive() bool     { return true }

func (p PreciousMetal) Momentum(indexChange, priceChange float64, bias Trend) bool {
	if !p.Divergence {
		return coMovement(indexChange, bias)
	}
	if indexChange < -0.002 && priceChange > -0.001 {
		return true
	}
	return indexChange > 0.002 && priceChange > 0.002
}

// IndustrialCommodity covers growth-driven commodities (oil, copper). They
// weight the composite towards China.
type IndustrialCommodity struct{}

func (IndustrialCommodity) Name() string             { return "industrial_commodity" }
func (IndustrialCommodity) WeightClass() WeightClass { return WeightEconomic }
func (IndustrialCommodity) MacroSensitive() bool     { return false }

func (IndustrialCommodity) Momentum(indexChange, _ float64, bias Trend) bool {
	return coMovement(indexChange, bias)
}

// EquityIndex covers stock index futures and cash indices.
type EquityIndex struct{}

func (EquityIndex) Name() string             { return "equity_index" }
func (EquityIndex) WeightClass() WeightClass { return WeightStandard }
func (EquityIndex) MacroSensitive() bool     { return false }

func (EquityIndex) Momentum(indexChange, _ float64, bias Trend) bool {
	return coMovement(indexChange, bias)
}

// ParseAssetClass maps a config tag to its variant.
func ParseAssetClass(tag string, divergence bool) (AssetClass, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "precious_metal", "metal":
		return PreciousMetal{Divergence: divergence}, nil
	case "industrial_commodity", "energy", "industrial":
		return IndustrialCommodity{}, nil
	case "equity_index", "index":
		return EquityIndex{}, nil
	default:
		return nil, fmt.Errorf("unknown asset class %q", tag)
	}
}

// Instrument represents a tradeable instrument with its feed symbols.
type Instrument struct {
	ID      string     `json:"id"`
	Symbols []string   `json:"symbols"` // primary first, then fallbacks
	Class   AssetClass `json:"-"`
}

// Key returns the instrument id used as map key throughout the account.
func (i *Instrument) Key() string {
	return i.ID
}
