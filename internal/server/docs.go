package server

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/ragdesk/ragdesk/internal/apperr"
	"github.com/ragdesk/ragdesk/internal/docsync"
	"github.com/ragdesk/ragdesk/internal/graph"
	"github.com/ragdesk/ragdesk/internal/store"
	"github.com/ragdesk/ragdesk/internal/timefmt"
)

// accessToken resolves a Graph token for the signed-in account. Any
// failure means the user has to sign in again.
func (s *Server) accessToken(c echo.Context) (string, error) {
	res := s.tokens.Resolve(c.Request().Context(), principal(c).AccountID)
	if res.Err != nil || res.AccessToken == "" {
		s.logger.Warn("no usable access token",
			slog.String("user_id", principal(c).User.ID),
			slog.Any("error", res.Err),
		)

		return "", apperr.Wrap(apperr.ErrAuthentication, "Access token not available", res.Err)
	}

	return res.AccessToken, nil
}

type documentJSON struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	Path           string  `json:"path"`
	LastModifiedBy string  `json:"last_modified_by"`
	LastModifiedAt *string `json:"last_modified_at"`
	CreatedAt      string  `json:"created_at"`
}

func newDocumentJSON(d store.DocumentMetadata) documentJSON {
	return documentJSON{
		ID:             d.ID,
		Title:          d.Title,
		URL:            d.URL,
		Path:           d.Path,
		LastModifiedBy: d.LastModifiedBy,
		LastModifiedAt: timefmt.WIBPtr(d.LastModifiedAt),
		CreatedAt:      timefmt.WIB(d.CreatedAt),
	}
}

// handleListDocs returns the knowledge base's documents and the folder
// tree uploads can target. Both are fetched concurrently.
func (s *Server) handleListDocs(c echo.Context) error {
	token, err := s.accessToken(c)
	if err != nil {
		return err
	}

	var (
		docs    []store.DocumentMetadata
		folders []graph.FolderInfo
	)

	g, ctx := errgroup.WithContext(c.Request().Context())

	g.Go(func() error {
		var err error
		docs, err = s.store.ListDocuments(ctx)

		return err
	})

	accountID := principal(c).AccountID

	g.Go(func() error {
		rootID, err := s.rootFolder(ctx, accountID, token)
		if err != nil {
			return err
		}

		folders = s.drive.ListFolders(ctx, token, rootID, s.opts.FolderName)

		return nil
	})

	if err := g.Wait(); err != nil {
		return internal("listing documents", err)
	}

	out := make([]documentJSON, 0, len(docs))
	for _, d := range docs {
		out = append(out, newDocumentJSON(d))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"documents":  out,
		"folders":    folders,
		"totalCount": len(out),
	})
}

type uploadRequest struct {
	Files    []docsync.EncryptedFile `json:"files"`
	FolderID string                  `json:"folderId"`
}

func (s *Server) handleUploadDocs(c echo.Context) error {
	var req uploadRequest
	if err := c.Bind(&req); err != nil || len(req.Files) == 0 {
		return badRequest("No files provided")
	}

	token, err := s.accessToken(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()

	folderID := req.FolderID
	if folderID == "" {
		if folderID, err = s.rootFolder(ctx, principal(c).AccountID, token); err != nil {
			return internal("resolving upload folder", err)
		}
	}

	report, err := s.docs.Upload(ctx, token, folderID, req.Files)
	if err != nil {
		return err
	}

	return c.JSON(report.Status(), report)
}

func (s *Server) handleDeleteDocs(c echo.Context) error {
	var body struct {
		FileIDs []string `json:"fileIds"`
	}

	if err := c.Bind(&body); err != nil || len(body.FileIDs) == 0 {
		return badRequest("Invalid file IDs format or empty array")
	}

	token, err := s.accessToken(c)
	if err != nil {
		return err
	}

	report, err := s.docs.Delete(c.Request().Context(), token, body.FileIDs)
	if err != nil {
		return err
	}

	return c.JSON(report.Status, map[string]any{
		"success":      report.FailedCount == 0,
		"message":      report.Message,
		"deletedCount": report.DeletedCount,
		"failedCount":  report.FailedCount,
		"failures":     nonNil(report.Failures),
	})
}

// nonNil keeps empty lists rendering as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}
