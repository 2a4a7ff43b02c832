package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ragdesk/ragdesk/internal/apperr"
)

const internalMessage = "Internal server error"

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// httpErrorHandler turns handler errors into {"error": msg} responses.
// Server-side failures are logged in full and shown generically.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, msg := s.classify(err)

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			slog.String("method", c.Request().Method),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, errorBody{Error: msg})
	}

	if writeErr != nil {
		s.logger.Warn("writing error response failed", slog.String("error", writeErr.Error()))
	}
}

func (s *Server) classify(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok && m != "" {
			msg = m
		}

		if he.Code >= http.StatusInternalServerError {
			msg = internalMessage
		}

		return he.Code, msg
	}

	return apperr.HTTPStatus(err), apperr.PublicMessage(err)
}

// badRequest is shorthand for a 400 with a client-facing message.
func badRequest(msg string) error {
	return apperr.New(apperr.ErrInvalidRequest, msg)
}

// internal wraps an unexpected failure; the client sees a generic message.
func internal(op string, err error) error {
	return fmt.Errorf("server: %s: %w", op, err)
}
