package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Account is an OAuth account linked to a user. AccessToken and
// RefreshToken hold ciphertext produced by the credential codec.
type Account struct {
	ID                   string
	UserID               string
	ProviderID           string
	AccountID            string
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

const accountColumns = `id, user_id, provider_id, account_id,
	COALESCE(access_token, ''), COALESCE(refresh_token, ''),
	access_token_expires_at, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*Account, error) {
	var (
		a       Account
		expires sql.NullTime
	)

	if err := row.Scan(&a.ID, &a.UserID, &a.ProviderID, &a.AccountID,
		&a.AccessToken, &a.RefreshToken, &expires, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}

	a.AccessTokenExpiresAt = nullTimePtr(expires)

	return &a, nil
}

// FindAccount returns the account for (providerID, accountID), or
// ErrNotFound.
func (s *Store) FindAccount(ctx context.Context, providerID, accountID string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+accountColumns+`
		FROM accounts WHERE provider_id = ? AND account_id = ?`), providerID, accountID)

	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("store: finding account %s/%s: %w", providerID, accountID, err)
	}

	return a, nil
}

// FindAccountByUser returns the user's account for providerID, or
// ErrNotFound.
func (s *Store) FindAccountByUser(ctx context.Context, userID, providerID string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+accountColumns+`
		FROM accounts WHERE user_id = ? AND provider_id = ?
		ORDER BY updated_at DESC LIMIT 1`), userID, providerID)

	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("store: finding account for user %s: %w", userID, err)
	}

	return a, nil
}

// UpdateAccessToken stores a freshly encrypted access token and its expiry.
func (s *Store) UpdateAccessToken(
	ctx context.Context, providerID, accountID, encryptedAccess string, expiresAt time.Time,
) error {
	return s.updateAccount(ctx, providerID, accountID,
		`access_token = ?, access_token_expires_at = ?`, encryptedAccess, expiresAt.UTC())
}

// UpdateRefreshToken stores a rotated, encrypted refresh token.
func (s *Store) UpdateRefreshToken(ctx context.Context, providerID, accountID, encryptedRefresh string) error {
	return s.updateAccount(ctx, providerID, accountID, `refresh_token = ?`, encryptedRefresh)
}

func (s *Store) updateAccount(ctx context.Context, providerID, accountID, set string, vals ...any) error {
	args := append(vals, s.now(), providerID, accountID)

	res, err := s.db.ExecContext(ctx, s.q(`UPDATE accounts SET `+set+`, updated_at = ?
		WHERE provider_id = ? AND account_id = ?`), args...)
	if err != nil {
		return fmt.Errorf("store: updating account %s/%s: %w", providerID, accountID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: updating account %s/%s: %w", providerID, accountID, err)
	}

	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// UpsertAccount inserts the account or replaces the tokens of an existing
// (provider_id, account_id) row. Tokens must already be encrypted. An empty
// refresh token keeps the stored one, since providers do not always return
// one on re-consent.
func (s *Store) UpsertAccount(ctx context.Context, a Account) error {
	now := s.now()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO accounts
		(id, user_id, provider_id, account_id, access_token, refresh_token,
		 access_token_expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_id, account_id) DO UPDATE SET
			user_id = excluded.user_id,
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token = '' OR excluded.refresh_token IS NULL
				THEN accounts.refresh_token ELSE excluded.refresh_token END,
			access_token_expires_at = excluded.access_token_expires_at,
			updated_at = excluded.updated_at`),
		a.ID, a.UserID, a.ProviderID, a.AccountID, a.AccessToken, a.RefreshToken,
		timePtrArg(a.AccessTokenExpiresAt), now, now,
	)
	if err != nil {
		return fmt.Errorf("store: upserting account %s/%s: %w", a.ProviderID, a.AccountID, err)
	}

	return nil
}
