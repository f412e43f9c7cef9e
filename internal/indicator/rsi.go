package indicator

// RSI calculates the Relative Strength Index from rolling means of gains and
// losses over period deltas (not Wilder's smoothing). A zero average loss
// yields 100.
type RSI struct {
	period    int
	count     int
	prevPrice float64
	gains     *SMA
	losses    *SMA
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (9 or 14 in practice).
func NewRSI(period int) *RSI {
	return &RSI{
		period: period,
		gains:  NewSMA(period),
		losses: NewSMA(period),
	}
}

func (r *RSI) Name() string { return "RSI" }

func (r *RSI) Update(price float64) {
	r.count++
	if r.count == 1 {
		// First price: no delta yet
		r.prevPrice = price
		return
	}

	delta := price - r.prevPrice
	r.prevPrice = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	r.gains.Update(gain)
	r.losses.Update(loss)

	if r.gains.Ready() {
		r.current = rsiFromAverages(r.gains.Value(), r.losses.Value())
	}
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.gains.Ready() }

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss <= 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return clamp(100-100/(1+rs), 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
