package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/forager/billing/pkg/pagination"
)

// Envelope is the uniform response body for every operation.
type Envelope struct {
	Success    bool             `json:"success"`
	Data       interface{}      `json:"data,omitempty"`
	Error      *Error           `json:"error,omitempty"`
	Pagination *pagination.Meta `json:"pagination,omitempty"`
}

// OK writes a 200 envelope with data.
func OK(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 envelope with data.
func Created(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// NoContent writes an empty 204 success; deletes return no body.
func NoContent(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// Page writes a 200 envelope with data and pagination metadata.
func Page(c echo.Context, data interface{}, meta pagination.Meta) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: data, Pagination: &meta})
}

// Fail resolves err into an error envelope. Taxonomy errors pass through with
// their status and code; anything else is logged and masked as a generic
// internal error for the given entity tag.
func Fail(c echo.Context, logger zerolog.Logger, entity string, err error) error {
	apiErr, ok := AsError(err)
	if !ok {
		logger.Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Msg("unexpected error")
		apiErr = Internal(entity)
	}
	return c.JSON(apiErr.Status, Envelope{Success: false, Error: apiErr})
}
