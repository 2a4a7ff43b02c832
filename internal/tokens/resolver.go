// Package tokens resolves a usable Microsoft Graph access token for a
// stored account, refreshing it when it is close to expiry. Refreshes for
// the same account are serialized so a rotated refresh token is never
// raced by a second refresh using the stale one.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ragdesk/ragdesk/internal/apperr"
	"github.com/ragdesk/ragdesk/internal/graph"
	"github.com/ragdesk/ragdesk/internal/store"
)

// ExpiryBuffer is how far ahead of expiry a token is treated as expired.
const ExpiryBuffer = 5 * time.Minute

// Sentinel errors. Both are authentication failures: the user must sign in
// again.
var (
	ErrNotFound      = fmt.Errorf("tokens: account not found: %w", apperr.ErrAuthentication)
	ErrMissingTokens = fmt.Errorf("tokens: account has no stored tokens: %w", apperr.ErrAuthentication)
)

// AccountStore reads and writes encrypted tokens.
type AccountStore interface {
	FindAccount(ctx context.Context, providerID, accountID string) (*store.Account, error)
	UpdateAccessToken(ctx context.Context, providerID, accountID, encryptedAccess string, expiresAt time.Time) error
	UpdateRefreshToken(ctx context.Context, providerID, accountID, encryptedRefresh string) error
}

// Refresher exchanges an encrypted refresh token for new tokens.
type Refresher interface {
	Refresh(ctx context.Context, encryptedRefreshToken string) (*graph.TokenResponse, error)
}

// Codec encrypts and decrypts stored tokens.
type Codec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Result carries either an access token or the reason none is available.
type Result struct {
	AccessToken string
	Err         error
}

// Resolver returns valid access tokens. Safe for concurrent use.
type Resolver struct {
	store     AccountStore
	refresher Refresher
	codec     Codec
	locker    Locker
	logger    *slog.Logger
	nowFunc   func() time.Time
}

// Config wires a Resolver. Locker defaults to a process-local KeyedMutex.
type Config struct {
	Store     AccountStore
	Refresher Refresher
	Codec     Codec
	Locker    Locker
	Logger    *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(cfg Config) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	locker := cfg.Locker
	if locker == nil {
		locker = NewKeyedMutex()
	}

	return &Resolver{
		store:     cfg.Store,
		refresher: cfg.Refresher,
		codec:     cfg.Codec,
		locker:    locker,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// Resolve returns a plaintext access token for the Microsoft account
// accountID. Failures are carried in Result.Err; Resolve never panics.
func (r *Resolver) Resolve(ctx context.Context, accountID string) Result {
	tok, err := r.resolve(ctx, accountID)
	if err != nil {
		return Result{Err: err}
	}

	return Result{AccessToken: tok}
}

// Source adapts the resolver to a graph.TokenSource bound to accountID.
func (r *Resolver) Source(accountID string) graph.TokenSource {
	return accountSource{r: r, accountID: accountID}
}

type accountSource struct {
	r         *Resolver
	accountID string
}

func (s accountSource) Token(ctx context.Context) (string, error) {
	res := s.r.Resolve(ctx, s.accountID)
	return res.AccessToken, res.Err
}

func (r *Resolver) resolve(ctx context.Context, accountID string) (string, error) {
	acct, err := r.load(ctx, accountID)
	if err != nil {
		return "", err
	}

	if !r.needsRefresh(acct) {
		return r.decryptAccess(acct)
	}

	unlock, err := r.locker.Lock(ctx, lockKey(accountID))
	if err != nil {
		return "", fmt.Errorf("tokens: acquiring refresh lock for %s: %w", accountID, err)
	}
	defer unlock()

	// Another holder may have refreshed while we waited.
	acct, err = r.load(ctx, accountID)
	if err != nil {
		return "", err
	}

	if !r.needsRefresh(acct) {
		r.logger.Debug("token refreshed by another holder", slog.String("account_id", accountID))
		return r.decryptAccess(acct)
	}

	return r.refresh(ctx, acct)
}

func (r *Resolver) load(ctx context.Context, accountID string) (*store.Account, error) {
	acct, err := r.store.FindAccount(ctx, graph.ProviderID, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("tokens: loading account %s: %w", accountID, err)
	}

	if acct.AccessToken == "" || acct.RefreshToken == "" {
		return nil, ErrMissingTokens
	}

	return acct, nil
}

// needsRefresh reports whether the token expires within ExpiryBuffer.
// A missing expiry is treated as expired.
func (r *Resolver) needsRefresh(acct *store.Account) bool {
	if acct.AccessTokenExpiresAt == nil {
		return true
	}

	return !acct.AccessTokenExpiresAt.After(r.nowFunc().Add(ExpiryBuffer))
}

func (r *Resolver) decryptAccess(acct *store.Account) (string, error) {
	tok, err := r.codec.Decrypt(acct.AccessToken)
	if err != nil {
		return "", fmt.Errorf("tokens: decrypting access token for %s: %w", acct.AccountID, err)
	}

	return tok, nil
}

func (r *Resolver) refresh(ctx context.Context, acct *store.Account) (string, error) {
	r.logger.Info("refreshing access token", slog.String("account_id", acct.AccountID))

	tr, err := r.refresher.Refresh(ctx, acct.RefreshToken)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrAuthentication, "Failed to refresh access token", err)
	}

	encAccess, err := r.codec.Encrypt(tr.AccessToken)
	if err != nil {
		return "", fmt.Errorf("tokens: encrypting access token: %w", err)
	}

	expiresAt := r.nowFunc().Add(time.Duration(tr.ExpiresIn) * time.Second)

	if err := r.store.UpdateAccessToken(ctx, graph.ProviderID, acct.AccountID, encAccess, expiresAt); err != nil {
		return "", fmt.Errorf("tokens: persisting access token for %s: %w", acct.AccountID, err)
	}

	if tr.RefreshToken != "" {
		encRefresh, err := r.codec.Encrypt(tr.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("tokens: encrypting refresh token: %w", err)
		}

		if err := r.store.UpdateRefreshToken(ctx, graph.ProviderID, acct.AccountID, encRefresh); err != nil {
			return "", fmt.Errorf("tokens: persisting refresh token for %s: %w", acct.AccountID, err)
		}
	}

	r.logger.Info("access token refreshed",
		slog.String("account_id", acct.AccountID),
		slog.Time("expires_at", expiresAt),
		slog.Bool("rotated", tr.RefreshToken != ""),
	)

	return tr.AccessToken, nil
}

func lockKey(accountID string) string {
	return "ragdesk:refresh:" + graph.ProviderID + ":" + accountID
}
