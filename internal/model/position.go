package model

import "time"

// DefaultBalance is the account balance used when nothing is persisted.
const DefaultBalance = 5000.0

// Position is an open trade tracked by the lifecycle manager.
type Position struct {
	Instrument  string    `json:"instrument"`
	Symbol      string    `json:"symbol,omitempty"`
	Direction   Direction `json:"direction"`
	Entry       float64   `json:"entry"`
	Leverage    int       `json:"leverage"`
	Exposure    float64   `json:"exposure"`
	EntryTime   time.Time `json:"entry_time"`
	BreakEven   bool      `json:"break_even"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfit  float64   `json:"take_profit"`
	PlannedExit time.Time `json:"planned_exit"`
	WarningSent bool      `json:"warning_sent"`
	RealizedPnL float64   `json:"realized_pnl,omitempty"`
}

// PnLPct returns sign(direction) * (mark - entry) / entry in percent, net of spreadPct.
func (p *Position) PnLPct(mark, spreadPct float64) float64 {
	if p.Entry == 0 {
		return 0
	}
	return p.Direction.Sign()*(mark-p.Entry)*100/p.Entry - spreadPct
}

// Account is the persisted trading state.
type Account struct {
	Balance      float64              `json:"balance"`
	TotalProfit  float64              `json:"total_profit"`
	Positions    map[string]*Position `json:"active_trades"`
	LastNotified map[string]Direction `json:"last_notified"`
}

// NewAccount returns an account with default balance and empty maps.
func NewAccount() *Account {
	return &Account{
		Balance:      DefaultBalance,
		Positions:    make(map[string]*Position),
		LastNotified: make(map[string]Direction),
	}
}

// Normalize replaces nil maps so a partially persisted account is usable.
func (a *Account) Normalize() {
	if a.Positions == nil {
		a.Positions = make(map[string]*Position)
	}
	if a.LastNotified == nil {
		a.LastNotified = make(map[string]Direction)
	}
	for k, p := range a.Positions {
		if p == nil {
			delete(a.Positions, k)
		}
	}
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	cp := &Account{
		Balance:      a.Balance,
		TotalProfit:  a.TotalProfit,
		Positions:    make(map[string]*Position, len(a.Positions)),
		LastNotified: make(map[string]Direction, len(a.LastNotified)),
	}
	for k, p := range a.Positions {
		pc := *p
		cp.Positions[k] = &pc
	}
	for k, d := range a.LastNotified {
		cp.LastNotified[k] = d
	}
	return cp
}
