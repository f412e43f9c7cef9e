// Package marketdata retrieves and cleans price series from the quote feed.
//
// Providers return time-ascending series with unique timestamps. Cleaning
// drops leading undefined values and forward-fills gaps; anything left
// shorter than the configured minimum is reported as ErrDataUnavailable so the
// caller can skip the instrument for this cycle.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"market-terminal/internal/model"
)

// ErrDataUnavailable is returned when a symbol yields no usable series.
var ErrDataUnavailable = errors.New("marketdata: data unavailable")

// Provider fetches one symbol at one timeframe.
type Provider interface {
	Fetch(ctx context.Context, symbol string, tf model.Timeframe) (model.PriceSeries, error)
}

// RawPoint is an observation as delivered by a feed; Price is nil when the
// feed has no value for that bar.
type RawPoint struct {
	Time  time.Time
	Price *float64
}

// Clean converts raw feed points into a series: sorted by time, duplicate
// timestamps collapsed to the last value, leading nil or non-positive
// values dropped and later gaps forward-filled.
func Clean(symbol string, raw []RawPoint, minLen int) (model.PriceSeries, error) {
	pts := make([]RawPoint, len(raw))
	copy(pts, raw)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Time.Before(pts[j].Time) })

	out := model.PriceSeries{Symbol: symbol, Points: make([]model.Point, 0, len(pts))}
	var last float64
	have := false
	for _, p := range pts {
		if p.Price != nil && *p.Price > 0 && !math.IsNaN(*p.Price) {
			last = *p.Price
			have = true
		}
		if !have {
			continue
		}
		if n := len(out.Points); n > 0 && out.Points[n-1].Time.Equal(p.Time) {
			out.Points[n-1].Price = last
			continue
		}
		out.Points = append(out.Points, model.Point{Time: p.Time, Price: last})
	}

	if out.Len() < minLen || out.Empty() {
		return out, fmt.Errorf("%w: %s has %d points, need %d", ErrDataUnavailable, symbol, out.Len(), minLen)
	}
	return out, nil
}

// FetchFirst tries symbols in order and returns the first usable series with
// the symbol that produced it.
func FetchFirst(ctx context.Context, p Provider, symbols []string, tf model.Timeframe) (model.PriceSeries, string, error) {
	var errs []error
	for _, sym := range symbols {
		s, err := p.Fetch(ctx, sym, tf)
		if err == nil {
			return s, sym, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return model.PriceSeries{}, "", fmt.Errorf("%w: no symbols configured", ErrDataUnavailable)
	}
	return model.PriceSeries{}, "", fmt.Errorf("%w: %w", ErrDataUnavailable, errors.Join(errs...))
}
