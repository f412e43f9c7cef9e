package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"market-terminal/internal/portfolio"
	"market-terminal/internal/terminal"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ListDataResponse is a list with its total.
type ListDataResponse struct {
	Rows  any   `json:"rows"`
	Total int64 `json:"total"`
}

// DataResponse writes data under the given status.
func DataResponse(c echo.Context, status int, data any) error {
	return c.JSON(status, APIResponse{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

func SuccessResponse(c echo.Context, data any) error {
	return DataResponse(c, http.StatusOK, data)
}

func ListResponse(c echo.Context, rows any, total int64) error {
	return SuccessResponse(c, &ListDataResponse{Rows: rows, Total: total})
}

func BadRequestResponse(c echo.Context, data any) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

func UnauthorizedResponse(c echo.Context, data any) error {
	return DataResponse(c, http.StatusUnauthorized, data)
}

func NotFoundResponse(c echo.Context, data any) error {
	return DataResponse(c, http.StatusNotFound, data)
}

// ErrorResponse maps domain errors onto HTTP statuses.
func ErrorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, terminal.ErrNoDecision), errors.Is(err, portfolio.ErrNoPosition):
		return NotFoundResponse(c, err.Error())
	case errors.Is(err, portfolio.ErrPositionExists), errors.Is(err, portfolio.ErrNotActionable):
		return DataResponse(c, http.StatusConflict, err.Error())
	}
	return DataResponse(c, http.StatusInternalServerError, err.Error())
}
