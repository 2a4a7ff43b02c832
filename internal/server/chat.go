package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ragdesk/ragdesk/internal/apperr"
	"github.com/ragdesk/ragdesk/internal/metrics"
	"github.com/ragdesk/ragdesk/internal/store"
	"github.com/ragdesk/ragdesk/internal/timefmt"
)

// Message types as written by the chat workflow's memory node.
const (
	messageHuman = "human"
	messageAI    = "ai"
)

const chatFailedMessage = "Failed to get response from AI service"

type chatRequest struct {
	SessionID string `json:"sessionId"`
	ChatInput string `json:"chatInput"`
}

type chatResponse struct {
	Output string `json:"output"`
}

// handleChat forwards one message to the chat workflow.
func (s *Server) handleChat(c echo.Context) error {
	ctx := c.Request().Context()
	p := principal(c)

	var req chatRequest
	if err := c.Bind(&req); err != nil || req.SessionID == "" || req.ChatInput == "" {
		return badRequest("sessionId and chatInput are required")
	}

	if d := s.limiter.Allow(p.User.ID); !d.Allowed {
		metrics.ChatRequestsTotal.WithLabelValues(metrics.OutcomeRateLimited).Inc()

		retry := max(int(d.Reset.Sub(s.nowFunc()).Seconds()+0.5), 1)
		c.Response().Header().Set("Retry-After", strconv.Itoa(retry))

		return apperr.New(apperr.ErrRateLimited, "Too many requests, please slow down")
	}

	if err := s.store.TouchSession(ctx, req.SessionID, p.User.ID); err != nil {
		return internal("recording chat session", err)
	}

	output, err := s.chat.Send(ctx, req.SessionID, req.ChatInput)
	if err != nil {
		s.logger.Error("chat request failed",
			slog.String("session_id", req.SessionID),
			slog.String("user_id", p.User.ID),
			slog.String("error", err.Error()),
		)

		return c.JSON(http.StatusInternalServerError, errorBody{Error: chatFailedMessage})
	}

	if s.opts.RecordHistory {
		s.recordExchange(c, req.SessionID, req.ChatInput, output)
	}

	return c.JSON(http.StatusOK, chatResponse{Output: output})
}

// recordExchange stores both sides of a completed exchange. Failures are
// logged only; the reply has already been produced.
func (s *Server) recordExchange(c echo.Context, sessionID, input, output string) {
	ctx := c.Request().Context()

	for _, m := range []struct{ typ, content string }{
		{messageHuman, input},
		{messageAI, output},
	} {
		if err := s.store.AppendMessage(ctx, sessionID, m.typ, m.content); err != nil {
			s.logger.Warn("recording chat message failed",
				slog.String("session_id", sessionID),
				slog.String("type", m.typ),
				slog.String("error", err.Error()),
			)

			return
		}
	}
}

type chatSummaryJSON struct {
	SessionID    string `json:"session_id"`
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name"`
	UserEmail    string `json:"user_email"`
	MessageCount int    `json:"message_count"`
	CreatedAt    string `json:"created_at"`
	LastOnlineAt string `json:"last_online_at"`
	ActiveToday  bool   `json:"active_today"`
}

func (s *Server) handleListChats(c echo.Context) error {
	sessions, err := s.store.ListSessions(c.Request().Context())
	if err != nil {
		return internal("listing chat sessions", err)
	}

	now := s.nowFunc()
	data := make([]chatSummaryJSON, 0, len(sessions))

	for _, cs := range sessions {
		data = append(data, chatSummaryJSON{
			SessionID:    cs.SessionID,
			UserID:       cs.UserID,
			UserName:     cs.UserName,
			UserEmail:    cs.UserEmail,
			MessageCount: cs.MessageCount,
			CreatedAt:    timefmt.WIB(cs.CreatedAt),
			LastOnlineAt: timefmt.WIB(cs.LastOnlineAt),
			ActiveToday:  timefmt.IsToday(cs.LastOnlineAt, now),
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"data":       data,
		"totalCount": len(data),
	})
}

type userJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Image     string `json:"image,omitempty"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func newUserJSON(u store.User) userJSON {
	return userJSON{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Image:     u.Image,
		Role:      u.Role,
		CreatedAt: timefmt.WIB(u.CreatedAt),
		UpdatedAt: timefmt.WIB(u.UpdatedAt),
	}
}

type messageJSON struct {
	CreatedAt time.Time `json:"created_at"`
	Type      *string   `json:"type"`
	Content   *string   `json:"content"`
}

// nullable renders an empty string as JSON null.
func nullable(v string) *string {
	if v == "" {
		return nil
	}

	return &v
}

func (s *Server) handleGetChat(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	detail, err := s.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.ErrNotFound, "Chat session not found")
	}

	if err != nil {
		return internal("loading chat session", err)
	}

	history, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return internal("loading chat messages", err)
	}

	messages := make([]messageJSON, 0, len(history))
	for _, m := range history {
		messages = append(messages, messageJSON{
			CreatedAt: m.CreatedAt,
			Type:      nullable(m.Type),
			Content:   nullable(m.Content),
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"session_id":     detail.SessionID,
			"user_id":        detail.UserID,
			"user":           newUserJSON(detail.User),
			"last_online_at": timefmt.WIB(detail.LastOnlineAt),
			"created_at":     detail.CreatedAt,
			"messages":       messages,
		},
	})
}

func (s *Server) handleResetChat(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return badRequest("Session ID is required")
	}

	if _, err := s.store.DeleteSessions(c.Request().Context(), []string{id}); err != nil {
		return internal("resetting chat session", err)
	}

	s.logger.Info("chat session reset",
		slog.String("session_id", id),
		slog.String("user_id", principal(c).User.ID),
	)

	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDeleteChats(c echo.Context) error {
	var body struct {
		SessionIDs json.RawMessage `json:"sessionIds"`
	}

	ids, ok := bindIDList(c, &body, func() json.RawMessage { return body.SessionIDs })
	if !ok {
		return badRequest("Invalid session IDs format or empty array")
	}

	deleted, err := s.store.DeleteSessions(c.Request().Context(), ids)
	if err != nil {
		return internal("deleting chat sessions", err)
	}

	s.logger.Info("chat sessions deleted",
		slog.Int("requested", len(ids)),
		slog.Int("deleted", deleted),
	)

	return c.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"deletedCount": deleted,
		"message":      fmt.Sprintf("Deleted %d chat session(s)", deleted),
	})
}

// bindIDList binds body and decodes the field returned by raw as a
// non-empty list of non-empty strings.
func bindIDList(c echo.Context, body any, raw func() json.RawMessage) ([]string, bool) {
	if err := c.Bind(body); err != nil {
		return nil, false
	}

	var ids []string
	if err := json.Unmarshal(raw(), &ids); err != nil || len(ids) == 0 {
		return nil, false
	}

	for _, id := range ids {
		if id == "" {
			return nil, false
		}
	}

	return ids, true
}
