package api

import (
	"context"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"market-terminal/internal/model"
	"market-terminal/internal/portfolio"
	"market-terminal/internal/terminal"
)

// Operator is the part of terminal.Service the API drives.
type Operator interface {
	Last() *terminal.Report
	Decision(instrument string) (model.SignalDecision, bool)
	History(instrument string, limit int) ([]model.SignalDecision, bool)
	Account(ctx context.Context) (portfolio.Summary, error)
	RunCycle(ctx context.Context) (*terminal.Report, error)
	Confirm(ctx context.Context, instrument string, entry float64) (portfolio.Event, error)
	Settle(ctx context.Context, instrument string, realized float64) (portfolio.Event, error)
	SetBalance(ctx context.Context, balance float64) (portfolio.Summary, error)
	PushSignals(ctx context.Context) int
	TestAlert(ctx context.Context) error
}

// ConfirmRequest confirms the latest decision. Entry 0 uses the decision price.
type ConfirmRequest struct {
	Entry float64 `json:"entry" validate:"gte=0"`
}

// SettleRequest reports the realized P&L in account currency.
type SettleRequest struct {
	PnL *float64 `json:"pnl" validate:"required"`
}

// BalanceRequest replaces the account balance.
type BalanceRequest struct {
	Balance float64 `json:"balance" validate:"gt=0"`
}

// Handler serves the operator endpoints.
type Handler struct {
	op          Operator
	settlements model.SettlementLister
	log         zerolog.Logger
}

// NewHandler creates a handler. settlements may be nil when the store keeps
// no journal.
func NewHandler(op Operator, settlements model.SettlementLister, log zerolog.Logger) *Handler {
	return &Handler{op: op, settlements: settlements, log: log}
}

// RegisterRoutes mounts the API. guard wraps endpoints that change positions
// or the balance.
func (h *Handler) RegisterRoutes(e *echo.Echo, guard echo.MiddlewareFunc) {
	g := e.Group("/api/v1")
	g.GET("/health", h.health)
	g.GET("/account", h.account)
	g.GET("/report", h.report)
	g.GET("/decisions/:instrument", h.decision)
	g.GET("/decisions/:instrument/history", h.history)
	g.GET("/settlements", h.listSettlements)
	g.POST("/cycle", h.runCycle)
	g.POST("/signals/push", h.pushSignals)
	g.POST("/alerts/test", h.testAlert)

	g.POST("/positions/:instrument/confirm", h.confirm, guard)
	g.POST("/positions/:instrument/settle", h.settle, guard)
	g.PUT("/balance", h.setBalance, guard)
}

func (h *Handler) health(c echo.Context) error {
	return SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *Handler) account(c echo.Context) error {
	summary, err := h.op.Account(c.Request().Context())
	if err != nil {
		return ErrorResponse(c, err)
	}
	return SuccessResponse(c, summary)
}

func (h *Handler) report(c echo.Context) error {
	r := h.op.Last()
	if r == nil {
		return NotFoundResponse(c, "no cycle has completed yet")
	}
	return SuccessResponse(c, r)
}

func (h *Handler) decision(c echo.Context) error {
	d, ok := h.op.Decision(c.Param("instrument"))
	if !ok {
		return NotFoundResponse(c, "no decision for "+c.Param("instrument"))
	}
	return SuccessResponse(c, d)
}

func (h *Handler) history(c echo.Context) error {
	limit, verr := limitParam(c, 0)
	if verr != nil {
		return BadRequestResponse(c, []ValidationError{*verr})
	}
	rows, ok := h.op.History(c.Param("instrument"), limit)
	if !ok {
		return NotFoundResponse(c, "no history for "+c.Param("instrument"))
	}
	return ListResponse(c, rows, int64(len(rows)))
}

// limitParam parses ?limit=, returning def when absent.
func limitParam(c echo.Context, def int) (int, *ValidationError) {
	v := c.QueryParam("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 1000 {
		return 0, &ValidationError{Code: "ERR_RANGE", Field: "limit", Message: "limit must be between 1 and 1000"}
	}
	return n, nil
}

func (h *Handler) listSettlements(c echo.Context) error {
	if h.settlements == nil {
		return NotFoundResponse(c, "settlement journal not configured")
	}
	limit, verr := limitParam(c, 50)
	if verr != nil {
		return BadRequestResponse(c, []ValidationError{*verr})
	}
	rows, err := h.settlements.Settlements(c.Request().Context(), limit)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return ListResponse(c, rows, int64(len(rows)))
}

func (h *Handler) runCycle(c echo.Context) error {
	r, err := h.op.RunCycle(c.Request().Context())
	if err != nil {
		return ErrorResponse(c, err)
	}
	return SuccessResponse(c, r)
}

func (h *Handler) pushSignals(c echo.Context) error {
	n := h.op.PushSignals(c.Request().Context())
	return SuccessResponse(c, map[string]int{"sent": n})
}

func (h *Handler) testAlert(c echo.Context) error {
	if err := h.op.TestAlert(c.Request().Context()); err != nil {
		h.log.Warn().Err(err).Msg("test alert failed")
		return ErrorResponse(c, err)
	}
	return SuccessResponse(c, map[string]bool{"sent": true})
}

func (h *Handler) confirm(c echo.Context) error {
	var req ConfirmRequest
	if errs := bindRequest(c, &req); errs != nil {
		return BadRequestResponse(c, errs)
	}
	ev, err := h.op.Confirm(c.Request().Context(), c.Param("instrument"), req.Entry)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return SuccessResponse(c, ev)
}

func (h *Handler) settle(c echo.Context) error {
	var req SettleRequest
	if errs := bindRequest(c, &req); errs != nil {
		return BadRequestResponse(c, errs)
	}
	ev, err := h.op.Settle(c.Request().Context(), c.Param("instrument"), *req.PnL)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return SuccessResponse(c, ev)
}

func (h *Handler) setBalance(c echo.Context) error {
	var req BalanceRequest
	if errs := bindRequest(c, &req); errs != nil {
		return BadRequestResponse(c, errs)
	}
	summary, err := h.op.SetBalance(c.Request().Context(), req.Balance)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return SuccessResponse(c, summary)
}
