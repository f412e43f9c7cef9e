package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-terminal/internal/model"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA after 3: 102, after 4: 103, after 5: 104
	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(p)
		assert.Equal(t, ready[i], sma.Ready(), "price %d readiness", i)
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 1e-9)
		}
	}
}

func TestRSI_RollingMeanHandComputed(t *testing.T) {
	// Deltas: +2, -1, +3, -2 with period 4
	// avg gain = 5/4, avg loss = 3/4, RS = 5/3, RSI = 100 - 100/(1+5/3) = 62.5
	rsi, ok := RSIOf([]float64{10, 12, 11, 14, 12}, 4)
	require.True(t, ok)
	assertClose(t, "RSI(4)", rsi, 62.5, 1e-9)
}

func TestRSI_NotReadyBeforePeriodPlusOne(t *testing.T) {
	_, ok := RSIOf([]float64{1, 2, 3}, 3)
	assert.False(t, ok)
	_, ok = RSIOf([]float64{1, 2, 3, 4}, 3)
	assert.True(t, ok)
}

func TestRSI_StrictlyIncreasingIs100(t *testing.T) {
	values := make([]float64, 40)
	for i := range values {
		values[i] = 100 + float64(i)*0.7
	}
	rsi, ok := RSIOf(values, 14)
	require.True(t, ok)
	assert.Equal(t, 100.0, rsi)
}

func TestRSI_AlwaysBounded(t *testing.T) {
	series := [][]float64{
		{5, 4, 3, 2, 1, 0.5, 0.25, 0.1, 0.05, 0.01},
		{1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		{1, 9, 1, 9, 1, 9, 1, 9, 1, 9},
		{100, 100.01, 99.99, 100.02, 99.98, 100.03, 99.97, 100, 100, 100},
	}
	for i, s := range series {
		rsi := NewRSI(5)
		for _, p := range s {
			rsi.Update(p)
			v := rsi.Value()
			assert.False(t, math.IsNaN(v), "series %d produced NaN", i)
			assert.GreaterOrEqual(t, v, 0.0, "series %d", i)
			assert.LessOrEqual(t, v, 100.0, "series %d", i)
		}
	}
}

func TestRSI_StrictlyDecreasingIsZero(t *testing.T) {
	rsi, ok := RSIOf([]float64{20, 19, 18, 17, 16, 15}, 5)
	require.True(t, ok)
	assertClose(t, "RSI falling", rsi, 0, 1e-9)
}

func TestVolatility_TwoSampleRangeAveraged(t *testing.T) {
	// 2-sample ranges are |p[i]-p[i-1]|: 2, 1, 3, 2 -> mean over 4 = 2
	vol, ok := VolatilityOf([]float64{10, 12, 11, 14, 12}, 2, 4)
	require.True(t, ok)
	assertClose(t, "vol", vol, 2.0, 1e-9)

	// Only the last 4 ranges count: ranges 2,1,3,2,4 -> (1+3+2+4)/4 = 2.5
	vol, ok = VolatilityOf([]float64{10, 12, 11, 14, 12, 16}, 2, 4)
	require.True(t, ok)
	assertClose(t, "vol rolled", vol, 2.5, 1e-9)
}

func TestVolatility_NeedsRangeAndAverageWindows(t *testing.T) {
	values := make([]float64, 14)
	for i := range values {
		values[i] = float64(i)
	}
	_, ok := VolatilityOf(values, 2, 14)
	assert.False(t, ok, "14 prices only give 13 ranges")
	_, ok = VolatilityOf(append(values, 14), 2, 14)
	assert.True(t, ok)
}

func TestPctChangeSum(t *testing.T) {
	// returns: +10%, -10% (110 -> 99), +0% ; last 2 steps: -0.1 + 0
	values := []float64{100, 110, 99, 99}
	assertClose(t, "last 2", PctChangeSum(values, 2), -0.1, 1e-12)
	assertClose(t, "all", PctChangeSum(values, 10), 0.0, 1e-12)
	assert.Equal(t, 0.0, PctChangeSum([]float64{1}, 5))
}

func TestTrendOf(t *testing.T) {
	up := make([]float64, 60)
	down := make([]float64, 60)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 200 - float64(i)
	}

	tests := []struct {
		name   string
		values []float64
		rule   TrendRule
		want   model.Trend
	}{
		{"long only up", up, TrendRule{LongWindow: 50}, model.TrendUp},
		{"long only down", down, TrendRule{LongWindow: 50}, model.TrendDown},
		{"short and long up", up, TrendRule{ShortWindow: 20, LongWindow: 50}, model.TrendUp},
		{"short and long down", down, TrendRule{ShortWindow: 20, LongWindow: 50}, model.TrendDown},
		{"too short", up[:10], TrendRule{LongWindow: 50}, model.TrendNeutral},
		{"empty", nil, TrendRule{LongWindow: 5}, model.TrendNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrendOf(tt.values, tt.rule))
		})
	}
}

func TestTrendOf_PullbackIsNeutral(t *testing.T) {
	// Rising series with a sharp last-bar drop: price below long SMA while
	// the short SMA is still above it.
	values := make([]float64, 50)
	for i := range values {
		values[i] = 100 + float64(i)
	}
	values[49] = 80
	assert.Equal(t, model.TrendNeutral, TrendOf(values, TrendRule{ShortWindow: 10, LongWindow: 50}))
}

func TestEngine_Compute(t *testing.T) {
	n := 60
	prices := make([]float64, n)
	index := make([]float64, n)
	daily := make([]float64, 60)
	for i := 0; i < n; i++ {
		prices[i] = 2000 + float64(i)*2
		index[i] = 10000
	}
	for i := range daily {
		daily[i] = 1800 + float64(i)*5
	}

	e := NewEngine(DefaultConfig())
	snap, err := e.Compute(Inputs{Intraday: prices, Index: index, Daily: daily})
	require.NoError(t, err)

	assert.Equal(t, 100.0, snap.RSI)
	assertClose(t, "vol", snap.Volatility, 2.0, 1e-9)
	assertClose(t, "vol pct", snap.VolatilityPct, 2.0/prices[n-1]*100, 1e-12)
	assertClose(t, "ratio", snap.Ratio, prices[n-1]/10000, 1e-12)
	assert.Greater(t, snap.Ratio, snap.RatioMA)
	assert.Equal(t, model.TrendUp, snap.Trends[model.Daily])
	assert.Equal(t, model.TrendUp, snap.Trends[model.Intraday])
	assert.Equal(t, 0.0, snap.IndexChange)
	assert.Greater(t, snap.PriceChange, 0.0)
}

func TestEngine_InsufficientHistory(t *testing.T) {
	e := NewEngine(DefaultConfig())
	_, err := e.Compute(Inputs{Intraday: []float64{1, 2, 3}, Index: []float64{1, 1, 1}})
	assert.ErrorIs(t, err, ErrInsufficientHistory)

	_, err = e.Compute(Inputs{Intraday: []float64{1, 2}, Index: []float64{1}})
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}
