package indicator

// SMA is a rolling mean over the last period values. RSI averages its gains
// and losses with it and the volatility proxy averages its ranges.
type SMA struct {
	window []float64
	next   int
	seen   int
	total  float64
}

// NewSMA returns a rolling mean; periods below 1 are treated as 1.
func NewSMA(period int) *SMA {
	if period < 1 {
		period = 1
	}
	return &SMA{window: make([]float64, period)}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(v float64) {
	s.total += v - s.window[s.next]
	s.window[s.next] = v
	s.next++
	if s.next == len(s.window) {
		s.next = 0
	}
	s.seen++
}

// Value is 0 until the window is full.
func (s *SMA) Value() float64 {
	if !s.Ready() {
		return 0
	}
	return s.total / float64(len(s.window))
}

func (s *SMA) Ready() bool { return s.seen >= len(s.window) }
