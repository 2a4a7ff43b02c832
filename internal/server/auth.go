package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"github.com/ragdesk/ragdesk/internal/apperr"
	"github.com/ragdesk/ragdesk/internal/graph"
	"github.com/ragdesk/ragdesk/internal/store"
)

// stateCookie binds a login attempt to the browser that started it.
const stateCookie = "oauth_state"

// Identity is the verified user behind a completed sign-in.
type Identity struct {
	AccountID string // stable Microsoft account identifier
	Email     string
	Name      string
}

// LoginTokens are the plaintext tokens a sign-in yields.
type LoginTokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Authenticator runs the authorization-code flow against an identity
// provider.
type Authenticator interface {
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*Identity, *LoginTokens, error)
}

// multiTenantAuthorities issue tokens whose iss names the user's home
// tenant, so the discovery issuer never matches.
var multiTenantAuthorities = map[string]bool{
	"common":        true,
	"organizations": true,
	"consumers":     true,
}

// EntraAuthenticator signs users in with Microsoft Entra ID and verifies
// the returned ID token.
type EntraAuthenticator struct {
	oauth      *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
}

// NewEntraAuthenticator discovers the tenant's OIDC configuration.
func NewEntraAuthenticator(
	ctx context.Context, clientID, clientSecret, tenant, redirectURL string, httpClient *http.Client,
) (*EntraAuthenticator, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	issuer := graph.IssuerURL(tenant)
	discoveryCtx := oidc.ClientContext(ctx, httpClient)

	multiTenant := multiTenantAuthorities[strings.ToLower(tenant)] || tenant == ""
	if multiTenant {
		discoveryCtx = oidc.InsecureIssuerURLContext(discoveryCtx, issuer)
	}

	provider, err := oidc.NewProvider(discoveryCtx, issuer)
	if err != nil {
		return nil, fmt.Errorf("server: oidc discovery for %s: %w", issuer, err)
	}

	return &EntraAuthenticator{
		oauth: graph.OAuthConfig(clientID, clientSecret, tenant, redirectURL),
		verifier: provider.Verifier(&oidc.Config{
			ClientID:        clientID,
			SkipIssuerCheck: multiTenant,
		}),
		httpClient: httpClient,
	}, nil
}

// AuthCodeURL returns the provider URL to send the browser to.
func (a *EntraAuthenticator) AuthCodeURL(state, verifier string) string {
	return a.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// Exchange redeems code and verifies the ID token that comes with it.
func (a *EntraAuthenticator) Exchange(ctx context.Context, code, verifier string) (*Identity, *LoginTokens, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	tok, err := a.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, nil, fmt.Errorf("server: exchanging code: %w", err)
	}

	rawID, ok := tok.Extra("id_token").(string)
	if !ok || rawID == "" {
		return nil, nil, errors.New("server: token response has no id_token")
	}

	idToken, err := a.verifier.Verify(oidc.ClientContext(ctx, a.httpClient), rawID)
	if err != nil {
		return nil, nil, fmt.Errorf("server: verifying id_token: %w", err)
	}

	var claims struct {
		Subject           string `json:"sub"`
		ObjectID          string `json:"oid"`
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
		Name              string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, nil, fmt.Errorf("server: decoding id_token claims: %w", err)
	}

	id := &Identity{
		AccountID: claims.ObjectID,
		Email:     claims.Email,
		Name:      claims.Name,
	}

	if id.AccountID == "" {
		id.AccountID = claims.Subject
	}

	if id.Email == "" {
		id.Email = claims.PreferredUsername
	}

	return id, &LoginTokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

// handleLogin starts a sign-in. The PKCE verifier stays server-side keyed
// by state; the state also goes into a cookie to bind it to this browser.
func (s *Server) handleLogin(c echo.Context) error {
	state, err := graph.GenerateState()
	if err != nil {
		return internal("generating login state", err)
	}

	verifier := oauth2.GenerateVerifier()
	s.loginStates.Set(state, verifier, loginStateTTL)

	c.SetCookie(&http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(loginStateTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.IsTLS(),
		SameSite: http.SameSiteLaxMode,
	})

	return c.Redirect(http.StatusFound, s.auth.AuthCodeURL(state, verifier))
}

// handleCallback completes a sign-in: it checks state, redeems the code,
// records the user and their encrypted tokens, and starts a session.
func (s *Server) handleCallback(c echo.Context) error {
	ctx := c.Request().Context()

	if e := c.QueryParam("error"); e != "" {
		s.logger.Warn("sign-in rejected by provider",
			slog.String("error", e),
			slog.String("description", c.QueryParam("error_description")),
		)

		return apperr.New(apperr.ErrAuthentication, "Sign-in was cancelled or denied")
	}

	state := c.QueryParam("state")
	code := c.QueryParam("code")

	ck, err := c.Cookie(stateCookie)
	if state == "" || code == "" || err != nil || ck.Value != state {
		return badRequest("Invalid sign-in state")
	}

	item, ok := s.loginStates.GetAndDelete(state)
	if !ok {
		return badRequest("Sign-in expired, please try again")
	}

	c.SetCookie(&http.Cookie{Name: stateCookie, Path: "/auth", MaxAge: -1})

	identity, toks, err := s.auth.Exchange(ctx, code, item.Value())
	if err != nil {
		return apperr.Wrap(apperr.ErrAuthentication, "Sign-in failed", err)
	}

	if identity.Email == "" {
		return apperr.New(apperr.ErrAuthentication, "Microsoft account has no email address")
	}

	user, err := s.store.UpsertUserByEmail(ctx, identity.Email, identity.Name)
	if err != nil {
		return internal("recording user", err)
	}

	if err := s.saveAccount(ctx, user.ID, identity.AccountID, toks); err != nil {
		return err
	}

	session, expires, err := s.sessions.Issue(user.ID, user.Role, identity.AccountID)
	if err != nil {
		return internal("issuing session", err)
	}

	s.sessions.SetCookie(c, session, expires)

	s.logger.Info("user signed in",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
	)

	return c.Redirect(http.StatusFound, "/")
}

func (s *Server) saveAccount(ctx context.Context, userID, accountID string, toks *LoginTokens) error {
	access, err := s.codec.Encrypt(toks.AccessToken)
	if err != nil {
		return internal("encrypting access token", err)
	}

	var refresh string
	if toks.RefreshToken != "" {
		if refresh, err = s.codec.Encrypt(toks.RefreshToken); err != nil {
			return internal("encrypting refresh token", err)
		}
	}

	acct := store.Account{
		UserID:       userID,
		ProviderID:   graph.ProviderID,
		AccountID:    accountID,
		AccessToken:  access,
		RefreshToken: refresh,
	}

	if !toks.Expiry.IsZero() {
		exp := toks.Expiry.UTC()
		acct.AccessTokenExpiresAt = &exp
	}

	if err := s.store.UpsertAccount(ctx, acct); err != nil {
		return internal("recording account", err)
	}

	return nil
}

func (s *Server) handleLogout(c echo.Context) error {
	s.sessions.ClearCookie(c)

	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON) {
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}

	return c.Redirect(http.StatusFound, "/")
}
