package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-terminal/internal/model"
	"market-terminal/internal/portfolio"
	"market-terminal/internal/terminal"
)

type fakeOperator struct {
	last      *terminal.Report
	decisions map[string]model.SignalDecision
	positions map[string]bool
	balance   float64
	settled   []float64
	alertErr  error
}

func newOperator() *fakeOperator {
	return &fakeOperator{
		decisions: map[string]model.SignalDecision{
			"GOLD": {Instrument: "GOLD", Direction: model.Long, Confidence: 80, Price: 2000},
		},
		positions: map[string]bool{},
		balance:   5000,
	}
}

func (f *fakeOperator) Last() *terminal.Report { return f.last }

func (f *fakeOperator) Decision(instrument string) (model.SignalDecision, bool) {
	d, ok := f.decisions[instrument]
	return d, ok
}

func (f *fakeOperator) History(instrument string, limit int) ([]model.SignalDecision, bool) {
	d, ok := f.decisions[instrument]
	if !ok {
		return nil, false
	}
	rows := []model.SignalDecision{d, d, d}
	if limit > 0 && limit < len(rows) {
		rows = rows[len(rows)-limit:]
	}
	return rows, true
}

func (f *fakeOperator) Account(context.Context) (portfolio.Summary, error) {
	return portfolio.Summary{Balance: f.balance, OpenPositions: len(f.positions)}, nil
}

func (f *fakeOperator) RunCycle(context.Context) (*terminal.Report, error) {
	f.last = &terminal.Report{TraceID: "cyc-1"}
	return f.last, nil
}

func (f *fakeOperator) Confirm(_ context.Context, instrument string, entry float64) (portfolio.Event, error) {
	d, ok := f.decisions[instrument]
	if !ok {
		return portfolio.Event{}, fmt.Errorf("%w: %s", terminal.ErrNoDecision, instrument)
	}
	if f.positions[instrument] {
		return portfolio.Event{}, fmt.Errorf("%w: %s", portfolio.ErrPositionExists, instrument)
	}
	if entry == 0 {
		entry = d.Price
	}
	f.positions[instrument] = true
	return portfolio.Event{Kind: portfolio.EventOpened, Instrument: instrument, Position: model.Position{Entry: entry}}, nil
}

func (f *fakeOperator) Settle(_ context.Context, instrument string, realized float64) (portfolio.Event, error) {
	if !f.positions[instrument] {
		return portfolio.Event{}, fmt.Errorf("%w: %s", portfolio.ErrNoPosition, instrument)
	}
	delete(f.positions, instrument)
	f.settled = append(f.settled, realized)
	return portfolio.Event{Kind: portfolio.EventSettled, Instrument: instrument, PnL: realized}, nil
}

func (f *fakeOperator) SetBalance(_ context.Context, b float64) (portfolio.Summary, error) {
	f.balance = b
	return portfolio.Summary{Balance: b}, nil
}

func (f *fakeOperator) PushSignals(context.Context) int { return len(f.decisions) }

func (f *fakeOperator) TestAlert(context.Context) error { return f.alertErr }

type fakeJournal struct{}

func (fakeJournal) Settlements(_ context.Context, limit int) ([]model.SettlementRecord, error) {
	return []model.SettlementRecord{{ID: 2, Instrument: "GOLD", PnL: 25}, {ID: 1, Instrument: "OIL", PnL: -10}}[:min(limit, 2)], nil
}

func newServer(op Operator, secret string) *Server {
	h := NewHandler(op, fakeJournal{}, zerolog.Nop())
	return NewServer(Config{TOTPSecret: secret}, h, nil, nil, zerolog.Nop())
}

func do(t *testing.T, s *Server, method, path, body string, header map[string]string) (int, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func TestReadEndpoints(t *testing.T) {
	op := newOperator()
	s := newServer(op, "")

	code, _ := do(t, s, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, s, http.MethodGet, "/api/v1/report", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, s, http.MethodPost, "/api/v1/cycle", "", nil)
	assert.Equal(t, http.StatusOK, code)
	code, resp := do(t, s, http.MethodGet, "/api/v1/report", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cyc-1", resp.Data.(map[string]any)["trace_id"])

	code, resp = do(t, s, http.MethodGet, "/api/v1/decisions/GOLD", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "LONG", resp.Data.(map[string]any)["direction"])

	code, _ = do(t, s, http.MethodGet, "/api/v1/decisions/OIL", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, resp = do(t, s, http.MethodGet, "/api/v1/decisions/GOLD/history?limit=2", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), resp.Data.(map[string]any)["total"])

	code, _ = do(t, s, http.MethodGet, "/api/v1/decisions/OIL/history", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, s, http.MethodGet, "/api/v1/decisions/GOLD/history?limit=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = do(t, s, http.MethodGet, "/api/v1/settlements?limit=1", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), resp.Data.(map[string]any)["total"])

	code, _ = do(t, s, http.MethodGet, "/api/v1/settlements?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = do(t, s, http.MethodPost, "/api/v1/signals/push", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), resp.Data.(map[string]any)["sent"])
}

func TestConfirmAndSettle(t *testing.T) {
	op := newOperator()
	s := newServer(op, "")

	code, resp := do(t, s, http.MethodPost, "/api/v1/positions/GOLD/confirm", `{"entry":2001.5}`, nil)
	require.Equal(t, http.StatusOK, code)
	pos := resp.Data.(map[string]any)["position"].(map[string]any)
	assert.Equal(t, 2001.5, pos["entry"])

	code, _ = do(t, s, http.MethodPost, "/api/v1/positions/GOLD/confirm", `{}`, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = do(t, s, http.MethodPost, "/api/v1/positions/OIL/confirm", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, s, http.MethodPost, "/api/v1/positions/GOLD/confirm", `{"entry":-1}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = do(t, s, http.MethodPost, "/api/v1/positions/GOLD/settle", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	errs := resp.Data.([]any)
	assert.Equal(t, "ERR_REQUIRED", errs[0].(map[string]any)["code"])

	code, _ = do(t, s, http.MethodPost, "/api/v1/positions/GOLD/settle", `{"pnl":0}`, nil)
	assert.Equal(t, http.StatusOK, code, "zero P&L is a valid settlement")
	assert.Equal(t, []float64{0}, op.settled)

	code, _ = do(t, s, http.MethodPost, "/api/v1/positions/GOLD/settle", `{"pnl":5}`, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, s, http.MethodPut, "/api/v1/balance", `{"balance":0}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, s, http.MethodPut, "/api/v1/balance", `{"balance":12000}`, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 12000.0, op.balance)
}

func TestTOTPGuard(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "market-terminal", AccountName: "operator"})
	require.NoError(t, err)

	op := newOperator()
	s := newServer(op, key.Secret())

	code, _ := do(t, s, http.MethodPut, "/api/v1/balance", `{"balance":9000}`, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, s, http.MethodPut, "/api/v1/balance", `{"balance":9000}`, map[string]string{HeaderTOTP: "not-a-code"})
	assert.Equal(t, http.StatusUnauthorized, code)

	valid, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)
	code, _ = do(t, s, http.MethodPut, "/api/v1/balance", `{"balance":9000}`, map[string]string{HeaderTOTP: valid})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 9000.0, op.balance)

	code, _ = do(t, s, http.MethodGet, "/api/v1/account", "", nil)
	assert.Equal(t, http.StatusOK, code, "reads are not guarded")
}

func TestTestAlertFailure(t *testing.T) {
	op := newOperator()
	op.alertErr = errors.New("telegram: 401")
	s := newServer(op, "")

	code, resp := do(t, s, http.MethodPost, "/api/v1/alerts/test", "", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, resp.Data, "401")
}
