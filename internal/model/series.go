package model

import (
	"sort"
	"time"
)

// Timeframe identifies the bar interval of a price series.
type Timeframe string

const (
	Daily    Timeframe = "1d"
	Intraday Timeframe = "1h"
)

// Point is one observation of a price series.
type Point struct {
	Time  time.Time `json:"t"`
	Price float64   `json:"p"`
}

// PriceSeries is a time-ascending sequence of prices without duplicate timestamps.
type PriceSeries struct {
	Symbol string  `json:"symbol"`
	Points []Point `json:"points"`
}

// Len returns the number of points.
func (s PriceSeries) Len() int { return len(s.Points) }

// Empty reports whether the series has no points.
func (s PriceSeries) Empty() bool { return len(s.Points) == 0 }

// Last returns the newest point. Callers must check Empty first.
func (s PriceSeries) Last() Point { return s.Points[len(s.Points)-1] }

// Values returns the prices in time order.
func (s PriceSeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Price
	}
	return out
}

// Times returns the timestamps in time order.
func (s PriceSeries) Times() []time.Time {
	out := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Time
	}
	return out
}

// AsOf returns the latest price at or before t.
func (s PriceSeries) AsOf(t time.Time) (float64, bool) {
	i := sort.Search(len(s.Points), func(i int) bool { return s.Points[i].Time.After(t) })
	if i == 0 {
		return 0, false
	}
	return s.Points[i-1].Price, true
}
