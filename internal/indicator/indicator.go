// Package indicator provides technical indicator calculations over price series.
//
// Incremental indicators implement the Indicator interface and are folded over
// a series by the helpers in series.go. The Engine combines them into a
// model.IndicatorSnapshot for one instrument and one evaluation.
package indicator

// Indicator is the interface for all incremental indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "RSI").
	Name() string

	// Update feeds the next price and recalculates.
	Update(price float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}
