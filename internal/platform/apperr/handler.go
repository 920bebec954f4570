package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Body is the JSON shape of every error response.
type Body struct {
	Error    string            `json:"error"`
	Fields   map[string]string `json:"fields,omitempty"`
	Conflict bool              `json:"conflict,omitempty"`
}

// HTTPErrorHandler renders errors returned by handlers as {"error": ...}.
// Internal errors are logged in full and reach the caller as a generic
// message.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		rid, _ := c.Get("request_id").(string)

		status, body := render(err)
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Str("stack", string(debug.Stack())).
				Msg("unhandled error")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Str("request_id", rid).Msg("failed to write error response")
		}
	}
}

func render(err error) (int, Body) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := fmt.Sprintf("%v", he.Message)
		if he.Code >= http.StatusInternalServerError {
			msg = http.StatusText(he.Code)
		}
		return he.Code, Body{Error: msg}
	}

	var ae *Error
	if errors.As(err, &ae) {
		status := StatusCode(ae.Kind)
		if ae.Kind == KindInternal {
			return status, Body{Error: "internal server error"}
		}
		return status, Body{
			Error:    ae.Message,
			Fields:   ae.Fields,
			Conflict: ae.Kind == KindConflict,
		}
	}

	return http.StatusInternalServerError, Body{Error: "internal server error"}
}
