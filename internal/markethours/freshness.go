package markethours

import "time"

// Freshness grades the age of the newest data point.
type Freshness string

const (
	Live    Freshness = "LIVE"
	Delayed Freshness = "DELAYED"
	Stale   Freshness = "STALE"
)

// Freshness thresholds.
const (
	LiveWithin    = 15 * time.Minute
	DelayedWithin = 60 * time.Minute
)

// Grade classifies data last updated at newest as seen at now.
func Grade(newest, now time.Time) Freshness {
	age := now.Sub(newest)
	switch {
	case age < LiveWithin:
		return Live
	case age < DelayedWithin:
		return Delayed
	}
	return Stale
}
