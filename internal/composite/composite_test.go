package composite

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-terminal/internal/model"
)

func TestValue_WorkedExample(t *testing.T) {
	w := Weights{"A": 0.50, "B": 0.20, "C": 0.15, "D": 0.15}
	got, err := Value(w, map[string]float64{"A": 4500, "B": 18000, "C": 3200, "D": 38000})
	require.NoError(t, err)
	assert.InDelta(t, 12030.0, got, 1e-9)
}

func TestValue_MissingReference(t *testing.T) {
	_, err := Value(Weights{"A": 1}, map[string]float64{"B": 1})
	assert.ErrorIs(t, err, ErrMissingReference)
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	cfg := DefaultConfig()
	for name, w := range map[string]Weights{"standard": cfg.Standard, "economic": cfg.Economic, "crisis": cfg.Crisis} {
		assert.InDelta(t, 1.0, w.Sum(), weightTolerance, name)
	}
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsBadVectors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Crisis = Weights{"SPX": 0.8, "DAX": 0.1}
	assert.Error(t, cfg.Validate(), "sum 0.9")

	cfg = DefaultConfig()
	cfg.Standard = Weights{"SPX": 0.5, "FTSE": 0.5}
	assert.Error(t, cfg.Validate(), "unknown reference")

	cfg = DefaultConfig()
	cfg.Economic = nil
	assert.Error(t, cfg.Validate(), "empty vector")

	_, err := NewCalculator(cfg)
	assert.Error(t, err)
}

func TestDetectRegime(t *testing.T) {
	c, err := NewCalculator(DefaultConfig())
	require.NoError(t, err)

	tests := []struct {
		name      string
		fear      float64
		fearKnown bool
		class     model.AssetClass
		want      Regime
	}{
		{"calm metal", 15, true, model.PreciousMetal{}, Standard},
		{"calm oil", 15, true, model.IndustrialCommodity{}, Economic},
		{"fear beats class", 30, true, model.IndustrialCommodity{}, Crisis},
		{"threshold is exclusive", 25, true, model.PreciousMetal{}, Standard},
		{"unknown fear", 99, false, model.EquityIndex{}, Standard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.DetectRegime(tt.fear, tt.fearKnown, tt.class))
		})
	}
	assert.Equal(t, 0.80, c.Weights(Crisis)["SPX"])
	assert.Equal(t, 0.30, c.Weights(Economic)["SSE"])
	assert.Equal(t, 0.50, c.Weights(Standard)["SPX"])
}

func series(symbol string, start time.Time, step time.Duration, prices ...float64) model.PriceSeries {
	s := model.PriceSeries{Symbol: symbol}
	for i, p := range prices {
		s.Points = append(s.Points, model.Point{Time: start.Add(time.Duration(i) * step), Price: p})
	}
	return s
}

func TestAlign_ForwardFillsReferences(t *testing.T) {
	t0 := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	inst := series("GC=F", t0, time.Hour, 2000, 2001, 2002, 2003)
	// A prints every hour starting one hour late; B only prints once.
	refs := map[string]model.PriceSeries{
		"A": series("A", t0.Add(time.Hour), time.Hour, 100, 110, 120),
		"B": series("B", t0, time.Hour, 50),
	}
	w := Weights{"A": 0.5, "B": 0.5}

	got, err := Align(inst, refs, w)
	require.NoError(t, err)

	// First instrument bar has no A value yet and is dropped.
	require.Equal(t, 3, got.Len())
	assert.Equal(t, []float64{2001, 2002, 2003}, got.Prices)
	assert.Equal(t, t0.Add(time.Hour), got.Times[0])
	for i, want := range []float64{75, 80, 85} {
		assert.False(t, math.Abs(got.Index[i]-want) > 1e-9, "index[%d]=%v want %v", i, got.Index[i], want)
	}
}

func TestAlign_MissingSeries(t *testing.T) {
	t0 := time.Now()
	inst := series("X", t0, time.Hour, 1, 2)
	_, err := Align(inst, map[string]model.PriceSeries{"A": series("A", t0, time.Hour, 1)}, Weights{"A": 0.5, "B": 0.5})
	assert.ErrorIs(t, err, ErrMissingReference)

	// Reference starts after the instrument ends: no overlap.
	late := series("A", t0.Add(48*time.Hour), time.Hour, 1)
	_, err = Align(inst, map[string]model.PriceSeries{"A": late}, Weights{"A": 1})
	assert.ErrorIs(t, err, ErrMissingReference)
}
