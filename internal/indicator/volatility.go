package indicator

// RangeAverage is the volatility proxy: the max-min range over a short rolling
// window (2 samples) averaged over a longer window (14 samples). It is an
// approximation of true range calibrated against the break-even and leverage
// thresholds, and must not be swapped for a textbook ATR.
type RangeAverage struct {
	rangeWindow int
	window      []float64
	filled      int
	pos         int
	avg         *SMA
}

// NewRangeAverage creates the proxy with the given range and averaging windows.
func NewRangeAverage(rangeWindow, avgWindow int) *RangeAverage {
	if rangeWindow < 1 {
		rangeWindow = 1
	}
	return &RangeAverage{
		rangeWindow: rangeWindow,
		window:      make([]float64, rangeWindow),
		avg:         NewSMA(avgWindow),
	}
}

func (v *RangeAverage) Name() string { return "VOLA" }

func (v *RangeAverage) Update(price float64) {
	v.window[v.pos] = price
	v.pos = (v.pos + 1) % v.rangeWindow
	if v.filled < v.rangeWindow {
		v.filled++
	}
	if v.filled < v.rangeWindow {
		return
	}

	hi, lo := v.window[0], v.window[0]
	for _, p := range v.window[1:] {
		if p > hi {
			hi = p
		}
		if p < lo {
			lo = p
		}
	}
	v.avg.Update(hi - lo)
}

func (v *RangeAverage) Value() float64 { return v.avg.Value() }
func (v *RangeAverage) Ready() bool    { return v.avg.Ready() }
