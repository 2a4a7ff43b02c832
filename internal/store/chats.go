package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ChatSession is a conversation thread owned by a user.
type ChatSession struct {
	SessionID    string
	UserID       string
	CreatedAt    time.Time
	LastOnlineAt time.Time
}

// SessionSummary is a ChatSession with its owner and message count.
type SessionSummary struct {
	ChatSession
	UserName     string
	UserEmail    string
	MessageCount int
}

// SessionDetail is a ChatSession with its owner.
type SessionDetail struct {
	ChatSession
	User User
}

// ChatMessage is one stored message. Type is "human" or "ai" as written by
// the chat workflow's memory node.
type ChatMessage struct {
	ID        int64
	Type      string
	Content   string
	CreatedAt time.Time
}

// messagePayload is the JSON shape of chat_history.message.
type messagePayload struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// TouchSession creates the session for userID or bumps its last_online_at.
func (s *Store) TouchSession(ctx context.Context, sessionID, userID string) error {
	now := s.now()

	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO chat_sessions (session_id, user_id, created_at, last_online_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET last_online_at = excluded.last_online_at`),
		sessionID, userID, now, now)
	if err != nil {
		return fmt.Errorf("store: touching chat session %s: %w", sessionID, err)
	}

	return nil
}

// ListSessions returns every session with owner details, most recently
// active first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cs.session_id, cs.user_id, cs.created_at, cs.last_online_at,
		COALESCE(u.name, ''), COALESCE(u.email, ''),
		(SELECT COUNT(*) FROM chat_history ch WHERE ch.session_id = cs.session_id)
		FROM chat_sessions cs
		LEFT JOIN users u ON u.id = cs.user_id
		ORDER BY cs.last_online_at DESC, cs.session_id`)
	if err != nil {
		return nil, fmt.Errorf("store: listing chat sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary

	for rows.Next() {
		var ss SessionSummary
		if err := rows.Scan(&ss.SessionID, &ss.UserID, &ss.CreatedAt, &ss.LastOnlineAt,
			&ss.UserName, &ss.UserEmail, &ss.MessageCount); err != nil {
			return nil, fmt.Errorf("store: scanning chat session: %w", err)
		}

		out = append(out, ss)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: listing chat sessions: %w", err)
	}

	return out, nil
}

// GetSession returns the session and its owner, or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*SessionDetail, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT cs.session_id, cs.user_id, cs.created_at, cs.last_online_at,
		u.id, u.name, u.email, COALESCE(u.image, ''), u.role, u.created_at, u.updated_at
		FROM chat_sessions cs
		JOIN users u ON u.id = cs.user_id
		WHERE cs.session_id = ?`), sessionID)

	var d SessionDetail

	err := row.Scan(&d.SessionID, &d.UserID, &d.CreatedAt, &d.LastOnlineAt,
		&d.User.ID, &d.User.Name, &d.User.Email, &d.User.Image, &d.User.Role, &d.User.CreatedAt, &d.User.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("store: reading chat session %s: %w", sessionID, err)
	}

	return &d, nil
}

// ListMessages returns the session's messages oldest first. Messages whose
// JSON cannot be decoded are returned with empty Type and Content.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, message, created_at FROM chat_history
		WHERE session_id = ? ORDER BY created_at, id`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: listing messages of %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []ChatMessage

	for rows.Next() {
		var (
			m   ChatMessage
			raw []byte
		)

		if err := rows.Scan(&m.ID, &raw, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scanning message: %w", err)
		}

		var p messagePayload
		if err := json.Unmarshal(raw, &p); err == nil {
			m.Type, m.Content = p.Type, p.Content
		} else {
			s.logger.Warn("undecodable chat message",
				slog.String("session_id", sessionID),
				slog.Int64("message_id", m.ID),
				slog.String("error", err.Error()),
			)
		}

		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: listing messages of %s: %w", sessionID, err)
	}

	return out, nil
}

// AppendMessage stores one message in the session's history.
func (s *Store) AppendMessage(ctx context.Context, sessionID, msgType, content string) error {
	payload, err := json.Marshal(messagePayload{Type: msgType, Content: content})
	if err != nil {
		return fmt.Errorf("store: encoding message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO chat_history (session_id, message, created_at) VALUES (?, ?, ?)`),
		sessionID, string(payload), s.now())
	if err != nil {
		return fmt.Errorf("store: appending message to %s: %w", sessionID, err)
	}

	return nil
}

// DeleteSessions removes the history and then the sessions for ids in one
// transaction. It returns the number of sessions removed.
func (s *Store) DeleteSessions(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	in := placeholders(len(ids))
	args := stringArgs(ids)

	var deleted int

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM chat_history WHERE session_id IN (`+in+`)`), args...); err != nil {
			return fmt.Errorf("store: deleting chat history: %w", err)
		}

		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM chat_sessions WHERE session_id IN (`+in+`)`), args...)
		if err != nil {
			return fmt.Errorf("store: deleting chat sessions: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("store: deleting chat sessions: %w", err)
		}

		deleted = int(n)

		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}
