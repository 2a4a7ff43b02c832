package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"

	"github.com/ragdesk/ragdesk/internal/store"
)

func (s *Server) handleListUsers(c echo.Context) error {
	users, err := s.store.ListUsers(c.Request().Context())
	if err != nil {
		return internal("listing users", err)
	}

	out := make([]userJSON, 0, len(users))
	for _, u := range users {
		out = append(out, newUserJSON(u))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"users":      out,
		"totalCount": len(out),
	})
}

type roleChangeJSON struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// handleUpdateRoles applies a batch of role changes. The whole batch is
// validated before anything is written.
func (s *Server) handleUpdateRoles(c echo.Context) error {
	var body struct {
		Changes json.RawMessage `json:"changes"`
	}

	if err := c.Bind(&body); err != nil {
		return badRequest("Invalid changes format")
	}

	var entries []roleChangeJSON
	if err := json.Unmarshal(body.Changes, &entries); err != nil || entries == nil {
		return badRequest("Invalid changes format")
	}

	changes := make([]store.RoleChange, 0, len(entries))
	for _, e := range entries {
		if e.UserID == "" || !store.ValidRole(e.Role) {
			return badRequest("Invalid userId or role in changes")
		}

		changes = append(changes, store.RoleChange{UserID: e.UserID, Role: e.Role})
	}

	updated, err := s.store.UpdateRoles(c.Request().Context(), changes)
	if err != nil {
		return internal("updating roles", err)
	}

	s.logger.Info("user roles updated",
		slog.String("by", principal(c).User.ID),
		slog.Int("requested", len(changes)),
		slog.Int("updated", updated),
	)

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Updated %d user(s)", len(changes)),
	})
}

func (s *Server) handleDeleteUsers(c echo.Context) error {
	var body struct {
		UserIDs json.RawMessage `json:"userIds"`
	}

	ids, ok := bindIDList(c, &body, func() json.RawMessage { return body.UserIDs })
	if !ok {
		return badRequest("Invalid user IDs format or empty array")
	}

	self := principal(c).User.ID
	if slices.Contains(ids, self) {
		return badRequest("Cannot delete your own account")
	}

	deleted, err := s.store.DeleteUsers(c.Request().Context(), ids)
	if err != nil {
		return internal("deleting users", err)
	}

	s.logger.Info("users deleted",
		slog.String("by", self),
		slog.Int("requested", len(ids)),
		slog.Int("deleted", deleted),
	)

	return c.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"deletedCount": deleted,
		"message":      fmt.Sprintf("Deleted %d user(s)", deleted),
	})
}
