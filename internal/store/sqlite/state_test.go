package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-terminal/internal/model"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "terminal.db")}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_EmptyYieldsDefaults(t *testing.T) {
	s := newStore(t)
	acct, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.NewAccount(), acct)
}

func TestStore_RoundTripAndUpdate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	acct := model.NewAccount()
	acct.Balance = 30000
	acct.Positions["SILVER"] = &model.Position{Instrument: "SILVER", Direction: model.Long, Entry: 24.5, Leverage: 2}
	require.NoError(t, s.Save(ctx, acct))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, acct, got)

	require.NoError(t, s.Update(ctx, func(a *model.Account) error {
		delete(a.Positions, "SILVER")
		a.TotalProfit += 12
		return nil
	}))
	err = s.Update(ctx, func(a *model.Account) error {
		a.Balance = 0
		return errors.New("rejected")
	})
	assert.Error(t, err)

	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.Positions)
	assert.Equal(t, 12.0, got.TotalProfit)
	assert.Equal(t, 30000.0, got.Balance)
}

func TestStore_SettlementJournal(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	opened := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	var j model.SettlementJournal = s
	require.NoError(t, j.RecordSettlement(ctx, model.Position{
		Instrument: "GOLD", Direction: model.Long, Entry: 2000, Leverage: 5,
		Exposure: 12500, BreakEven: true, EntryTime: opened, RealizedPnL: 37.5,
	}, opened.Add(3*time.Hour), "target"))
	require.NoError(t, j.RecordSettlement(ctx, model.Position{
		Instrument: "WTI", Direction: model.Short, Entry: 78, Leverage: 2, EntryTime: opened, RealizedPnL: -4,
	}, opened.Add(4*time.Hour), "manual"))

	recs, err := s.Settlements(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "WTI", recs[0].Instrument)
	assert.Equal(t, "GOLD", recs[1].Instrument)
	assert.True(t, recs[1].BreakEven)
	assert.Equal(t, 37.5, recs[1].PnL)
	assert.Equal(t, "target", recs[1].Reason)
	assert.Equal(t, "2024-03-05T13:00:00Z", recs[1].ClosedAt)
}
