// Package response renders every API reply in one envelope shape and converts
// classified errors into it.
package response

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/emsops/emsops/internal/platform/apperr"
	"github.com/emsops/emsops/internal/platform/telemetry"
)

const genericInternalMessage = "an unexpected error occurred, please try again later"

// Envelope is the uniform body of every response.
type Envelope struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorBody  `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	TraceID   string      `json:"trace_id,omitempty"`
}

type ErrorBody struct {
	Kind  apperr.Kind `json:"kind"`
	Field string      `json:"field,omitempty"`
	Key   string      `json:"key,omitempty"`
}

// OK writes a success envelope.
func OK(c echo.Context, code int, message string, data interface{}) error {
	return c.JSON(code, Envelope{
		Success:   true,
		Message:   message,
		Data:      data,
		RequestID: requestID(c),
		TraceID:   telemetry.TraceID(c.Request().Context()),
	})
}

// Failure builds the status code and envelope for err. Internal errors get a
// generic message; classified errors are returned verbatim.
func Failure(err error) (int, Envelope) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok {
			msg = s
		}
		return he.Code, Envelope{
			Message: msg,
			Error:   &ErrorBody{Kind: kindForStatus(he.Code)},
		}
	}

	ae := apperr.Ensure(err, "unclassified error")
	status := apperr.HTTPStatus(ae.Kind)
	msg := ae.Message
	if ae.Kind == apperr.KindInternal {
		msg = genericInternalMessage
	}
	return status, Envelope{
		Message: msg,
		Error:   &ErrorBody{Kind: ae.Kind, Field: ae.Field, Key: ae.Key},
	}
}

// ErrorHandler is the echo HTTPErrorHandler. Every error is logged; internal
// errors at error level with their cause, the rest at warn.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		status, env := Failure(err)
		env.RequestID = requestID(c)
		env.TraceID = telemetry.TraceID(ctx)

		evt := logger.Warn()
		if status >= http.StatusInternalServerError {
			evt = logger.Error()
		}
		evt.Err(err).
			Str("request_id", env.RequestID).
			Str("trace_id", env.TraceID).
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Int("status", status).
			Msg("request failed")

		if c.Response().Committed {
			return
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, env)
	}
}

func kindForStatus(code int) apperr.Kind {
	switch {
	case code == http.StatusNotFound:
		return apperr.KindNotFound
	case code == http.StatusConflict:
		return apperr.KindConflict
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		return apperr.KindForbidden
	case code >= 400 && code < 500:
		return apperr.KindValidation
	default:
		return apperr.KindInternal
	}
}

func requestID(c echo.Context) string {
	rid, _ := c.Get("request_id").(string)
	return rid
}
