package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-terminal/internal/model"
)

func TestDecode_EmptyYieldsDefaults(t *testing.T) {
	for _, in := range []string{"", "  \n", "{}"} {
		acct, err := Decode([]byte(in))
		require.NoError(t, err)
		assert.Equal(t, 5000.0, acct.Balance)
		assert.Equal(t, 0.0, acct.TotalProfit)
		assert.NotNil(t, acct.Positions)
		assert.Empty(t, acct.Positions)
		assert.NotNil(t, acct.LastNotified)
		assert.Empty(t, acct.LastNotified)
	}
}

func TestDecode_MissingAndUnknownKeys(t *testing.T) {
	acct, err := Decode([]byte(`{"total_profit": 12.5, "last_test_sent": "2024-03-05", "active_trades": null, "be_notified": {"GOLD": true}}`))
	require.NoError(t, err)
	assert.Equal(t, model.DefaultBalance, acct.Balance)
	assert.Equal(t, 12.5, acct.TotalProfit)
	assert.NotNil(t, acct.Positions)
}

func TestDecode_Corrupt(t *testing.T) {
	_, err := Decode([]byte(`{"balance": "lots"`))
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	acct := model.NewAccount()
	acct.Balance = 7200
	acct.TotalProfit = -31.25
	acct.LastNotified["GOLD"] = model.Long
	acct.LastNotified["WTI"] = model.Hold
	acct.Positions["GOLD"] = &model.Position{
		Instrument:  "GOLD",
		Direction:   model.Long,
		Entry:       2000,
		Leverage:    6,
		Exposure:    21600,
		EntryTime:   time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		BreakEven:   true,
		StopLoss:    2000,
		TakeProfit:  2030,
		PlannedExit: time.Date(2024, 3, 5, 13, 0, 0, 0, time.UTC),
	}

	data, err := Encode(acct)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, acct, got)
}

func TestApply_DiscardsOnError(t *testing.T) {
	acct := model.NewAccount()
	_, err := Apply(acct, func(a *model.Account) error {
		a.Balance = 1
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, model.DefaultBalance, acct.Balance)

	next, err := Apply(acct, func(a *model.Account) error {
		a.Balance = 1
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, next.Balance)
	assert.Equal(t, model.DefaultBalance, acct.Balance)
}
