package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Roles.
const (
	RoleUser  = "USER"
	RoleMod   = "MOD"
	RoleAdmin = "ADMIN"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	switch r {
	case RoleUser, RoleMod, RoleAdmin:
		return true
	default:
		return false
	}
}

// User is a signed-in person.
type User struct {
	ID        string
	Name      string
	Email     string
	Image     string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoleChange assigns Role to UserID.
type RoleChange struct {
	UserID string
	Role   string
}

const userColumns = `id, name, email, COALESCE(image, ''), role, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Image, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}

	return &u, nil
}

// UpsertUserByEmail creates a user with role USER, or refreshes the name of
// the existing user with that email. The role of an existing user is never
// touched.
func (s *Store) UpsertUserByEmail(ctx context.Context, email, name string) (*User, error) {
	now := s.now()

	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO users (id, name, email, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`),
		uuid.NewString(), name, email, RoleUser, now, now)
	if err != nil {
		return nil, fmt.Errorf("store: upserting user %s: %w", email, err)
	}

	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE email = ?`), email)

	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("store: reading user %s: %w", email, err)
	}

	return u, nil
}

// GetUser returns the user with id, or ErrNotFound.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("store: reading user %s: %w", id, err)
	}

	return u, nil
}

// ListUsers returns every user, newest first.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("store: listing users: %w", err)
	}
	defer rows.Close()

	var users []User

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning user: %w", err)
		}

		users = append(users, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: listing users: %w", err)
	}

	return users, nil
}

// UpdateRoles applies every change in one transaction. It returns the
// number of users updated; unknown user IDs are not an error.
func (s *Store) UpdateRoles(ctx context.Context, changes []RoleChange) (int, error) {
	var updated int

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()

		for _, c := range changes {
			if !ValidRole(c.Role) {
				return fmt.Errorf("store: invalid role %q for user %s", c.Role, c.UserID)
			}

			res, err := tx.ExecContext(ctx, s.q(`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`),
				c.Role, now, c.UserID)
			if err != nil {
				return fmt.Errorf("store: updating role of %s: %w", c.UserID, err)
			}

			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("store: updating role of %s: %w", c.UserID, err)
			}

			updated += int(n)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return updated, nil
}

// DeleteUsers removes the users together with their accounts, chat
// sessions and chat history in one transaction. It returns the number of
// users deleted.
func (s *Store) DeleteUsers(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int

	in := placeholders(len(ids))
	args := stringArgs(ids)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// Explicit child deletes keep this correct on databases opened
		// without foreign key enforcement.
		steps := []string{
			`DELETE FROM chat_history WHERE session_id IN
				(SELECT session_id FROM chat_sessions WHERE user_id IN (` + in + `))`,
			`DELETE FROM chat_sessions WHERE user_id IN (` + in + `)`,
			`DELETE FROM accounts WHERE user_id IN (` + in + `)`,
		}

		for _, q := range steps {
			if _, err := tx.ExecContext(ctx, s.q(q), args...); err != nil {
				return fmt.Errorf("store: deleting user data: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM users WHERE id IN (`+in+`)`), args...)
		if err != nil {
			return fmt.Errorf("store: deleting users: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("store: deleting users: %w", err)
		}

		deleted = int(n)

		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}
