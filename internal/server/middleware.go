package server

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ragdesk/ragdesk/internal/apperr"
	"github.com/ragdesk/ragdesk/internal/metrics"
	"github.com/ragdesk/ragdesk/internal/store"
)

const principalKey = "principal"

// unmatchedRoute labels requests that matched no route, keeping metric
// cardinality bounded.
const unmatchedRoute = "unmatched"

// Principal is the signed-in user behind a request.
type Principal struct {
	User      store.User
	AccountID string
}

// principal returns the request's signed-in user, or nil.
func principal(c echo.Context) *Principal {
	p, _ := c.Get(principalKey).(*Principal)
	return p
}

func newRequestID() string {
	return uuid.NewString()
}

func metricsHandler() http.Handler {
	return metrics.Handler()
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("request_id", v.RequestID),
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			}

			if p := principal(c); p != nil {
				attrs = append(attrs, slog.String("user_id", p.User.ID))
			}

			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}

			s.logger.LogAttrs(c.Request().Context(), level, "http request", attrs...)

			return nil
		},
	})
}

// observeRequests records request metrics. It resolves handler errors
// itself so the recorded status is the one actually sent.
func observeRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()

		if err := next(c); err != nil {
			c.Error(err)
		}

		route := c.Path()
		if route == "" {
			route = unmatchedRoute
		}

		metrics.ObserveHTTP(c.Request().Method, route, c.Response().Status, time.Since(start))

		return nil
	}
}

// loadSession attaches a Principal when the request carries a valid session
// for a user that still exists. The user's role is read fresh so role
// changes and deletions apply immediately.
func (s *Server) loadSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := sessionToken(c.Request())
		if token == "" {
			return next(c)
		}

		claims, err := s.sessions.Parse(token)
		if err != nil {
			s.logger.Debug("ignoring invalid session", slog.String("error", err.Error()))
			return next(c)
		}

		user, err := s.store.GetUser(c.Request().Context(), claims.Subject)
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.logger.Info("session for deleted user", slog.String("user_id", claims.Subject))
			s.sessions.ClearCookie(c)
		case err != nil:
			s.logger.Warn("loading session user failed",
				slog.String("user_id", claims.Subject),
				slog.String("error", err.Error()),
			)
		default:
			c.Set(principalKey, &Principal{User: *user, AccountID: claims.AccountID})
		}

		return next(c)
	}
}

// sessionToken reads a bearer header first, then the session cookie.
func sessionToken(r *http.Request) string {
	if h := r.Header.Get(echo.HeaderAuthorization); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}

	if ck, err := r.Cookie(SessionCookie); err == nil {
		return ck.Value
	}

	return ""
}

// requireSession rejects anonymous API calls.
func requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if principal(c) == nil {
			return apperr.New(apperr.ErrAuthentication, "Unauthorized")
		}

		return next(c)
	}
}

// requireRole admits only the listed roles.
func requireRole(roles ...string) echo.MiddlewareFunc {
	msg := "Unauthorized. " + strings.Join(roles, " or ") + " role required."

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := principal(c)
			if p == nil {
				return apperr.New(apperr.ErrAuthentication, "Unauthorized")
			}

			if !slices.Contains(roles, p.User.Role) {
				return apperr.New(apperr.ErrAuthorization, msg)
			}

			return next(c)
		}
	}
}
