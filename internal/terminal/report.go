package terminal

import (
	"time"

	"market-terminal/internal/markethours"
	"market-terminal/internal/model"
	"market-terminal/internal/portfolio"
)

// Skip reasons recorded when an instrument cannot be scored.
const (
	SkipDataUnavailable     = "data_unavailable"
	SkipMissingReference    = "missing_reference"
	SkipInsufficientHistory = "insufficient_history"
)

// InstrumentReport is the outcome of one instrument in one cycle. Exactly
// one of Decision and Skipped is set.
type InstrumentReport struct {
	Instrument string                   `json:"instrument"`
	Symbol     string                   `json:"symbol,omitempty"`
	Decision   *model.SignalDecision    `json:"decision,omitempty"`
	Snapshot   *model.IndicatorSnapshot `json:"snapshot,omitempty"`
	Freshness  markethours.Freshness    `json:"freshness,omitempty"`
	Alerted    bool                     `json:"alerted"`
	Skipped    string                   `json:"skipped,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

// Drivers are the macro readings used by the cycle.
type Drivers struct {
	Fear         float64 `json:"fear"`
	FearKnown    bool    `json:"fear_known"`
	DollarChange float64 `json:"dollar_change"`
	DollarKnown  bool    `json:"dollar_known"`
}

// Report summarises one evaluation cycle.
type Report struct {
	TraceID     string             `json:"trace_id"`
	Started     time.Time          `json:"started"`
	Finished    time.Time          `json:"finished"`
	SessionOpen bool               `json:"session_open"`
	Session     string             `json:"session,omitempty"`
	Drivers     Drivers            `json:"drivers"`
	Instruments []InstrumentReport `json:"instruments"`
	Events      []portfolio.Event  `json:"events,omitempty"`
	Account     portfolio.Summary  `json:"account"`
}

// Skipped returns the number of instruments that could not be scored.
func (r *Report) Skipped() int {
	n := 0
	for _, ir := range r.Instruments {
		if ir.Skipped != "" {
			n++
		}
	}
	return n
}
