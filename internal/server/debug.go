package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// handleGraphDebug reports whether the caller's token works and what the
// knowledge-base folder tree looks like from it.
func (s *Server) handleGraphDebug(c echo.Context) error {
	token, err := s.accessToken(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()

	me, err := s.drive.Me(ctx, token)
	if err != nil {
		return internal("reading graph profile", err)
	}

	drive, err := s.drive.MyDrive(ctx, token)
	if err != nil {
		return internal("reading drive", err)
	}

	rootID, err := s.rootFolder(ctx, principal(c).AccountID, token)
	if err != nil {
		return internal("resolving knowledge base folder", err)
	}

	folders := s.drive.ListFolders(ctx, token, rootID, s.opts.FolderName)

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"token":   "valid",
		"account": map[string]string{
			"id":          me.ID,
			"displayName": me.DisplayName,
			"email":       me.Email,
		},
		"drive": map[string]any{
			"id":         drive.ID,
			"driveType":  drive.DriveType,
			"owner":      drive.OwnerName,
			"quotaUsed":  drive.QuotaUsed,
			"quotaTotal": drive.QuotaTotal,
		},
		"rootFolderId": rootID,
		"folderCount":  len(folders),
		"folders":      folders,
	})
}
