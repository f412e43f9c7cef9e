package indicator

import "market-terminal/internal/model"

// fold feeds every value to ind and returns its final value and readiness.
func fold(ind Indicator, values []float64) (float64, bool) {
	for _, v := range values {
		ind.Update(v)
	}
	return ind.Value(), ind.Ready()
}

// RSIOf returns the RSI of the last value in the series.
func RSIOf(values []float64, period int) (float64, bool) {
	return fold(NewRSI(period), values)
}

// SMAOf returns the simple moving average of the last window values.
func SMAOf(values []float64, window int) (float64, bool) {
	return fold(NewSMA(window), values)
}

// VolatilityOf returns the range-average volatility proxy of the series.
func VolatilityOf(values []float64, rangeWindow, avgWindow int) (float64, bool) {
	return fold(NewRangeAverage(rangeWindow, avgWindow), values)
}

// PctChangeSum sums the simple returns of the last n steps (as fractions).
// Steps with a zero base are skipped.
func PctChangeSum(values []float64, n int) float64 {
	if len(values) < 2 || n <= 0 {
		return 0
	}
	start := len(values) - n
	if start < 1 {
		start = 1
	}
	sum := 0.0
	for i := start; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		sum += (values[i] - values[i-1]) / values[i-1]
	}
	return sum
}

// Ratio divides prices by index values element-wise. Both slices must have
// equal length; zero index values produce a zero ratio.
func Ratio(prices, index []float64) []float64 {
	n := len(prices)
	if len(index) < n {
		n = len(index)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if index[i] != 0 {
			out[i] = prices[i] / index[i]
		}
	}
	return out
}

// TrendRule configures the trend tag of one timeframe. A zero ShortWindow
// compares the last price against the long SMA only.
type TrendRule struct {
	ShortWindow int `yaml:"short_window"`
	LongWindow  int `yaml:"long_window"`
}

// TrendOf classifies the series: UP when the last price is above the long SMA
// (and the short SMA is above the long SMA when configured), DOWN when
// reversed, NEUTRAL otherwise or when history is too short.
func TrendOf(values []float64, rule TrendRule) model.Trend {
	if len(values) == 0 {
		return model.TrendNeutral
	}
	long, ok := SMAOf(values, rule.LongWindow)
	if !ok {
		return model.TrendNeutral
	}
	last := values[len(values)-1]

	if rule.ShortWindow <= 0 {
		switch {
		case last > long:
			return model.TrendUp
		case last < long:
			return model.TrendDown
		}
		return model.TrendNeutral
	}

	short, ok := SMAOf(values, rule.ShortWindow)
	if !ok {
		return model.TrendNeutral
	}
	switch {
	case last > long && short > long:
		return model.TrendUp
	case last < long && short < long:
		return model.TrendDown
	}
	return model.TrendNeutral
}
