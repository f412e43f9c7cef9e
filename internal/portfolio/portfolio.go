// Package portfolio sizes new positions and runs the position lifecycle
// (open, break-even promotion, exit warnings, settlement) against the account.
//
// Everything here mutates a *model.Account handed in by the caller; callers
// are expected to hold the store's single-writer Update around these calls.
package portfolio

import (
	"sort"

	"market-terminal/internal/model"
)

// PositionView is an open position valued at the latest mark.
type PositionView struct {
	model.Position
	Mark          float64 `json:"mark"`
	PnLPct        float64 `json:"pnl_pct"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// Summary is the account valued at the latest marks.
type Summary struct {
	Balance       float64        `json:"balance"`
	TotalProfit   float64        `json:"total_profit"`
	UnrealizedPnL float64        `json:"unrealized_pnl"`
	OpenPositions int            `json:"open_positions"`
	Positions     []PositionView `json:"positions"`
}

// UnrealizedPnL returns exposure * pnl% / 100 for a position at mark.
func UnrealizedPnL(p *model.Position, mark, spreadPct float64) float64 {
	return p.Exposure * p.PnLPct(mark, spreadPct) / 100
}

// Summarize values every open position. Positions without a mark are valued
// at their entry price.
func Summarize(acct *model.Account, marks map[string]float64, spreadPct float64) Summary {
	s := Summary{
		Balance:     acct.Balance,
		TotalProfit: acct.TotalProfit,
		Positions:   make([]PositionView, 0, len(acct.Positions)),
	}
	for key, p := range acct.Positions {
		mark, ok := marks[key]
		if !ok {
			mark = p.Entry
		}
		v := PositionView{
			Position:      *p,
			Mark:          mark,
			PnLPct:        p.PnLPct(mark, spreadPct),
			UnrealizedPnL: UnrealizedPnL(p, mark, spreadPct),
		}
		s.UnrealizedPnL += v.UnrealizedPnL
		s.Positions = append(s.Positions, v)
	}
	s.OpenPositions = len(s.Positions)
	sort.Slice(s.Positions, func(i, j int) bool {
		return s.Positions[i].Instrument < s.Positions[j].Instrument
	})
	return s
}
