package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// SessionCookie holds the signed session token.
const SessionCookie = "session_token"

// ErrInvalidSession is returned for a missing, expired or forged token.
var ErrInvalidSession = errors.New("server: invalid session")

// Claims are the session token contents. Subject is the user ID. Role is
// what the user held at sign-in; requests re-read the current role.
type Claims struct {
	Role      string `json:"role"`
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}

// SessionManager issues and verifies HS256 session tokens.
type SessionManager struct {
	secret  []byte
	ttl     time.Duration
	secure  bool
	nowFunc func() time.Time
}

// NewSessionManager creates a SessionManager. secure marks the cookie
// Secure; enable it whenever the site is served over HTTPS.
func NewSessionManager(secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		secret:  []byte(secret),
		ttl:     ttl,
		secure:  secure,
		nowFunc: time.Now,
	}
}

// Issue signs a token for the user and returns it with its expiry.
func (m *SessionManager) Issue(userID, role, accountID string) (string, time.Time, error) {
	now := m.nowFunc()
	expires := now.Add(m.ttl)

	claims := Claims{
		Role:      role,
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("server: signing session: %w", err)
	}

	return signed, expires, nil
}

// Parse verifies a token and returns its claims.
func (m *SessionManager) Parse(token string) (*Claims, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.nowFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidSession
	}

	return claims, nil
}

// SetCookie stores token in the session cookie.
func (m *SessionManager) SetCookie(c echo.Context, token string, expires time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (m *SessionManager) ClearCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
