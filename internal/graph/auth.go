package graph

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/ragdesk/ragdesk/internal/metrics"
)

// ProviderID is the accounts.provider_id value for Microsoft sign-ins.
const ProviderID = "microsoft"

// RefreshScope is requested on every refresh. It must cover the drive
// operations the File Transfer Client performs.
const RefreshScope = "https://graph.microsoft.com/Files.ReadWrite openid profile email"

// loginScopes are requested at sign-in. offline_access yields the refresh token.
var loginScopes = []string{
	"openid",
	"profile",
	"email",
	"offline_access",
	"https://graph.microsoft.com/Files.ReadWrite",
}

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// maxErrorBody caps how much of an error response is kept for diagnostics.
const maxErrorBody = 4096

// OAuthConfig returns the authorization-code configuration for the Entra ID
// tenant. An empty tenant means "common".
func OAuthConfig(clientID, clientSecret, tenant, redirectURL string) *oauth2.Config {
	if tenant == "" {
		tenant = "common"
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     microsoft.AzureADEndpoint(tenant),
		RedirectURL:  redirectURL,
		Scopes:       loginScopes,
	}
}

// IssuerURL is the OIDC issuer for tokens minted by the tenant.
func IssuerURL(tenant string) string {
	if tenant == "" {
		tenant = "common"
	}

	return "https://login.microsoftonline.com/" + tenant + "/v2.0"
}

// GenerateState produces a cryptographically random hex string for the OAuth2
// state parameter.
func GenerateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("graph: generating state token: %w", err)
	}

	return hex.EncodeToString(b), nil
}

// Decrypter turns a stored ciphertext back into a plaintext token.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// TokenResponse is the token endpoint's JSON reply. Every field is plaintext;
// callers encrypt before persisting.
type TokenResponse struct {
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// Refresher mints new access tokens from stored refresh tokens.
type Refresher struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	codec        Decrypter
	logger       *slog.Logger
}

// RefresherConfig configures NewRefresher. TokenURL defaults to the tenant's
// v2.0 token endpoint.
type RefresherConfig struct {
	ClientID     string
	ClientSecret string
	Tenant       string
	TokenURL     string
	HTTPClient   *http.Client
	Codec        Decrypter
	Logger       *slog.Logger
}

// NewRefresher builds a Refresher.
func NewRefresher(cfg RefresherConfig) *Refresher {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tenant := cfg.Tenant
		if tenant == "" {
			tenant = "common"
		}

		tokenURL = microsoft.AzureADEndpoint(tenant).TokenURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Refresher{
		tokenURL:     tokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   httpClient,
		codec:        cfg.Codec,
		logger:       logger,
	}
}

// Refresh decrypts encryptedRefreshToken and exchanges it for a new access
// token. A non-2xx reply returns *RefreshError. It is not retried.
func (r *Refresher) Refresh(ctx context.Context, encryptedRefreshToken string) (*TokenResponse, error) {
	refreshToken, err := r.codec.Decrypt(encryptedRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("graph: decrypting refresh token: %w", err)
	}

	form := url.Values{
		"client_id":     {r.clientID},
		"client_secret": {r.clientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
		"scope":         {RefreshScope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("graph: creating refresh request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return nil, fmt.Errorf("graph: refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best-effort read for error message

		r.logger.Warn("token refresh rejected",
			slog.Int("status", resp.StatusCode),
		)
		metrics.TokenRefreshTotal.WithLabelValues(metrics.OutcomeFailure).Inc()

		return nil, &RefreshError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		metrics.TokenRefreshTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return nil, fmt.Errorf("graph: decoding token response: %w", err)
	}

	if tr.AccessToken == "" {
		metrics.TokenRefreshTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return nil, fmt.Errorf("graph: token response has no access_token")
	}

	metrics.TokenRefreshTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	r.logger.Info("access token refreshed",
		slog.Int64("expires_in", tr.ExpiresIn),
		slog.Bool("rotated_refresh_token", tr.RefreshToken != ""),
	)

	return &tr, nil
}
