// Package store holds the account codec shared by the state store backends
// (store/file, store/redis, store/sqlite).
//
// The persisted document is a JSON object with keys balance, total_profit,
// active_trades and last_notified. Missing keys are defaulted and unknown
// keys are ignored, so state written by older versions still loads.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"market-terminal/internal/model"
)

// Decode parses a persisted account. Empty input yields model.NewAccount().
func Decode(data []byte) (*model.Account, error) {
	acct := model.NewAccount()
	if len(bytes.TrimSpace(data)) == 0 {
		return acct, nil
	}
	if err := json.Unmarshal(data, acct); err != nil {
		return nil, fmt.Errorf("store: decode account: %w", err)
	}
	acct.Normalize()
	return acct, nil
}

// Encode serializes an account for persistence.
func Encode(acct *model.Account) ([]byte, error) {
	if acct == nil {
		acct = model.NewAccount()
	}
	cp := acct.Clone()
	cp.Normalize()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("store: encode account: %w", err)
	}
	return data, nil
}

// Apply runs fn against a copy of acct and returns the copy only when fn
// succeeds, so a failing update never leaks partial changes.
func Apply(acct *model.Account, fn func(*model.Account) error) (*model.Account, error) {
	next := acct.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	return next, nil
}
