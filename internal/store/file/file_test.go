package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-terminal/internal/model"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "state.json"))
	require.NoError(t, err)
	return s
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	s := newStore(t)
	acct, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.NewAccount(), acct)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	acct := model.NewAccount()
	acct.Balance = 9000
	acct.LastNotified["GOLD"] = model.Short
	acct.Positions["GOLD"] = &model.Position{Instrument: "GOLD", Direction: model.Short, Entry: 2000, Leverage: 3}
	require.NoError(t, s.Save(ctx, acct))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, acct, got)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoad_UnknownKeysIgnored(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"balance": 100, "last_test_sent": "x"}`), 0o600))

	acct, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100.0, acct.Balance)
	assert.Empty(t, acct.Positions)
}

func TestUpdate_ErrorLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Save(ctx, model.NewAccount()))

	err := s.Update(ctx, func(a *model.Account) error {
		a.Balance = 1
		return errors.New("rejected")
	})
	assert.Error(t, err)

	acct, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultBalance, acct.Balance)
}

func TestUpdate_SerializesWriters(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Update(ctx, func(a *model.Account) error {
				a.TotalProfit += 1
				return nil
			}))
		}()
	}
	wg.Wait()

	acct, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20.0, acct.TotalProfit)
}
