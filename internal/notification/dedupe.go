package notification

import "market-terminal/internal/model"

// Deduper suppresses repeated alerts using the per-instrument last-notified
// direction stored in the account.
//
// A LONG/SHORT decision that differs from the marker is sent once and
// recorded. A HOLD decision is never sent but is recorded, which re-arms the
// instrument so the next directional signal alerts again.
type Deduper struct{}

// Observe records d against the account and reports whether it should be sent.
func (Deduper) Observe(acct *model.Account, d model.SignalDecision) bool {
	if acct.LastNotified == nil {
		acct.LastNotified = make(map[string]model.Direction)
	}
	last := acct.LastNotified[d.Instrument]
	if !d.Direction.Actionable() {
		acct.LastNotified[d.Instrument] = model.Hold
		return false
	}
	if last == d.Direction {
		return false
	}
	acct.LastNotified[d.Instrument] = d.Direction
	return true
}
