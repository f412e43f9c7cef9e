package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the evaluation cycle from concrete persistence
// (JSON file, Redis, SQLite).

// StateStore persists the Account.
type StateStore interface {
	// Load returns the persisted account. Missing keys are defaulted and a
	// missing store yields NewAccount().
	Load(ctx context.Context) (*Account, error)

	// Save atomically overwrites the persisted account.
	Save(ctx context.Context, acct *Account) error

	// Update runs a read-modify-write of the account under the store's
	// single-writer discipline. fn's changes are saved only if it returns nil.
	Update(ctx context.Context, fn func(acct *Account) error) error

	// Close releases underlying resources.
	Close() error
}

// SettlementJournal records closed positions for audit.
type SettlementJournal interface {
	RecordSettlement(ctx context.Context, pos Position, closedAt time.Time, reason string) error
}

// SettlementRecord is one journaled settlement, newest first when listed.
type SettlementRecord struct {
	ID         int64   `json:"id"`
	Instrument string  `json:"instrument"`
	Direction  string  `json:"direction"`
	Entry      float64 `json:"entry"`
	Leverage   int     `json:"leverage"`
	Exposure   float64 `json:"exposure"`
	BreakEven  bool    `json:"break_even"`
	PnL        float64 `json:"pnl"`
	Reason     string  `json:"reason"`
	OpenedAt   string  `json:"opened_at"`
	ClosedAt   string  `json:"closed_at"`
}

// SettlementLister lists journaled settlements.
type SettlementLister interface {
	Settlements(ctx context.Context, limit int) ([]SettlementRecord, error)
}
