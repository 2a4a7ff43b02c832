// Package docsync keeps the OneDrive knowledge-base folder and the local
// document tables in step. Deletions are remote-first: the local rows of a
// file are removed only after OneDrive confirmed the delete, and all local
// removals for one request commit together.
package docsync

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ragdesk/ragdesk/internal/apperr"
	"github.com/ragdesk/ragdesk/internal/graph"
	"github.com/ragdesk/ragdesk/internal/metrics"
	"github.com/ragdesk/ragdesk/internal/store"
)

// inconsistencyMessage is shown to clients when OneDrive and the database
// disagree after a delete.
const inconsistencyMessage = "Files deleted from OneDrive, but failed to sync with database"

// Drive is the OneDrive surface the coordinator uses, bound to one user's
// access token.
type Drive interface {
	BatchDelete(ctx context.Context, ids []string) graph.BatchDeleteResult
	UploadFiles(ctx context.Context, folderID string, files []graph.UploadFile) ([]graph.Item, error)
}

// DocumentStore removes local document rows and lists known titles.
type DocumentStore interface {
	DeleteDocuments(ctx context.Context, fileIDs []string) (store.DocumentDeletion, error)
	DocumentTitles(ctx context.Context) (map[string]bool, error)
}

// FileDecrypter decrypts uploaded payloads.
type FileDecrypter interface {
	DecryptFile(ciphertext string) ([]byte, error)
}

// SyncInconsistencyError reports files that were deleted remotely but whose
// local rows could not be removed. The IDs are no longer in OneDrive.
type SyncInconsistencyError struct {
	DeletedIDs []string
	Err        error
}

func (e *SyncInconsistencyError) Error() string {
	return fmt.Sprintf("docsync: %d file(s) deleted from OneDrive but local rows remain: %v", len(e.DeletedIDs), e.Err)
}

func (e *SyncInconsistencyError) Unwrap() []error {
	return []error{apperr.ErrSyncInconsistency, e.Err}
}

// PublicMessage is the client-facing text.
func (e *SyncInconsistencyError) PublicMessage() string {
	return inconsistencyMessage
}

// DeleteReport summarizes one delete request. Status is 200 when every
// file was deleted, 207 when some failed and 500 when all failed.
type DeleteReport struct {
	DeletedCount int
	FailedCount  int
	Failures     []graph.DeleteFailure
	Status       int
	Message      string
}

// Coordinator runs delete and upload flows. Safe for concurrent use.
type Coordinator struct {
	drive  func(accessToken string) Drive
	store  DocumentStore
	codec  FileDecrypter
	logger *slog.Logger
}

// NewCoordinator creates a Coordinator that talks to OneDrive through
// client, rebinding it to each caller's token.
func NewCoordinator(client *graph.Client, st DocumentStore, codec FileDecrypter, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		drive: func(tok string) Drive {
			return client.WithToken(graph.StaticToken(tok))
		},
		store:  st,
		codec:  codec,
		logger: logger,
	}
}

// Delete removes ids from OneDrive and then, in one local transaction,
// removes the chunks and metadata of every id OneDrive confirmed. A failed
// local transaction returns *SyncInconsistencyError.
func (c *Coordinator) Delete(ctx context.Context, accessToken string, ids []string) (*DeleteReport, error) {
	if len(ids) == 0 {
		return nil, apperr.New(apperr.ErrInvalidRequest, "Invalid file IDs format or empty array")
	}

	res := c.drive(accessToken).BatchDelete(ctx, ids)

	c.logger.Info("onedrive batch delete finished",
		slog.Int("requested", len(ids)),
		slog.Int("deleted", len(res.SuccessfulIDs)),
		slog.Int("failed", len(res.Failures)),
	)

	metrics.SyncDeletesTotal.WithLabelValues(metrics.OutcomeFailed).Add(float64(len(res.Failures)))

	if len(res.SuccessfulIDs) > 0 {
		removed, err := c.store.DeleteDocuments(ctx, res.SuccessfulIDs)
		if err != nil {
			metrics.SyncDeletesTotal.WithLabelValues(metrics.OutcomeInconsistent).Add(float64(len(res.SuccessfulIDs)))
			c.logger.Error("local document cleanup failed after remote delete",
				slog.Int("count", len(res.SuccessfulIDs)),
				slog.Any("file_ids", res.SuccessfulIDs),
				slog.String("error", err.Error()),
			)

			return nil, &SyncInconsistencyError{DeletedIDs: res.SuccessfulIDs, Err: err}
		}

		metrics.SyncDeletesTotal.WithLabelValues(metrics.OutcomeDeleted).Add(float64(len(res.SuccessfulIDs)))
		c.logger.Info("local document rows removed",
			slog.Int("chunks", removed.Chunks),
			slog.Int("metadata", removed.Metadata),
		)
	}

	return newDeleteReport(res), nil
}

func newDeleteReport(res graph.BatchDeleteResult) *DeleteReport {
	r := &DeleteReport{
		DeletedCount: len(res.SuccessfulIDs),
		FailedCount:  len(res.Failures),
		Failures:     res.Failures,
	}

	switch {
	case r.FailedCount == 0:
		r.Status = http.StatusOK
		r.Message = fmt.Sprintf("Successfully deleted %d file(s)", r.DeletedCount)
	case r.DeletedCount == 0:
		r.Status = http.StatusInternalServerError
		r.Message = fmt.Sprintf("Failed to delete %d file(s)", r.FailedCount)
	default:
		r.Status = http.StatusMultiStatus
		r.Message = fmt.Sprintf("Deleted %d file(s), failed to delete %d file(s)", r.DeletedCount, r.FailedCount)
	}

	return r
}

