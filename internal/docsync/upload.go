package docsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ragdesk/ragdesk/internal/graph"
	"github.com/ragdesk/ragdesk/internal/metrics"
)

// notAttempted is reported for files queued after a failed upload.
const notAttempted = "Not attempted: an earlier upload in this batch failed"

// EncryptedFile is one file as sent by the admin console: the payload is
// encrypted client-side with the shared key.
type EncryptedFile struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	EncryptedData string `json:"encryptedData"`
	OriginalSize  int64  `json:"originalSize"`
}

// UploadResult is the per-file outcome.
type UploadResult struct {
	Success  bool   `json:"success"`
	FileName string `json:"fileName"`
	Message  string `json:"message"`
	Error    string `json:"error,omitempty"`
}

// UploadSummary aggregates an upload request. Skipped covers duplicates and
// payloads that could not be decrypted.
type UploadSummary struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped"`
	Duplicates []string `json:"duplicates"`
}

// UploadReport is the response body of an upload request.
type UploadReport struct {
	Success bool           `json:"success"`
	Results []UploadResult `json:"results"`
	Summary UploadSummary  `json:"summary"`
}

// Status maps the report onto 200, 207 or 500.
func (r *UploadReport) Status() int {
	switch {
	case r.Summary.Failed == 0:
		return http.StatusOK
	case r.Summary.Successful == 0:
		return http.StatusInternalServerError
	default:
		return http.StatusMultiStatus
	}
}

// Upload decrypts files and uploads them into folderID. Files whose name
// already exists in the knowledge base, or repeats within the request, are
// skipped as duplicates. Undecryptable files are skipped. The remaining
// files upload sequentially; the first failure stops the rest.
func (c *Coordinator) Upload(ctx context.Context, accessToken, folderID string, files []EncryptedFile) (*UploadReport, error) {
	titles, err := c.store.DocumentTitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("docsync: loading known titles: %w", err)
	}

	known := make(map[string]bool, len(titles))
	for t := range titles {
		known[duplicateKey(t)] = true
	}

	report := &UploadReport{
		Results: make([]UploadResult, len(files)),
		Summary: UploadSummary{Total: len(files), Duplicates: []string{}},
	}

	var (
		pending []graph.UploadFile
		slots   []int // index into report.Results for each pending file
	)

	seen := make(map[string]bool, len(files))

	for i, f := range files {
		key := duplicateKey(f.Name)

		if known[key] || seen[key] {
			report.Results[i] = UploadResult{FileName: f.Name, Message: "Skipped: a file with this name already exists"}
			report.Summary.Skipped++
			report.Summary.Duplicates = append(report.Summary.Duplicates, f.Name)

			continue
		}

		seen[key] = true

		content, err := c.decrypt(f)
		if err != nil {
			c.logger.Warn("skipping undecryptable upload",
				slog.String("name", f.Name),
				slog.String("error", err.Error()),
			)

			report.Results[i] = UploadResult{FileName: f.Name, Message: "Skipped: file could not be decrypted", Error: err.Error()}
			report.Summary.Skipped++

			continue
		}

		pending = append(pending, graph.UploadFile{Name: f.Name, MimeType: f.Type, Content: content})
		slots = append(slots, i)
	}

	if len(pending) > 0 {
		c.uploadPending(ctx, accessToken, folderID, pending, slots, report)
	}

	metrics.UploadsTotal.WithLabelValues(metrics.OutcomeUploaded).Add(float64(report.Summary.Successful))
	metrics.UploadsTotal.WithLabelValues(metrics.OutcomeFailed).Add(float64(report.Summary.Failed))
	metrics.UploadsTotal.WithLabelValues(metrics.OutcomeSkipped).Add(float64(report.Summary.Skipped))

	report.Success = report.Summary.Failed == 0

	c.logger.Info("upload finished",
		slog.String("folder_id", folderID),
		slog.Int("total", report.Summary.Total),
		slog.Int("successful", report.Summary.Successful),
		slog.Int("failed", report.Summary.Failed),
		slog.Int("skipped", report.Summary.Skipped),
	)

	return report, nil
}

func (c *Coordinator) uploadPending(
	ctx context.Context, accessToken, folderID string,
	pending []graph.UploadFile, slots []int, report *UploadReport,
) {
	_, err := c.drive(accessToken).UploadFiles(ctx, folderID, pending)

	// Without a typed error nothing is known to have succeeded.
	failedAt := 0
	if err == nil {
		failedAt = len(pending)
	}

	var ue *graph.UploadError
	if errors.As(err, &ue) {
		failedAt = ue.Index
	}

	for j, f := range pending {
		slot := slots[j]

		switch {
		case j < failedAt:
			report.Results[slot] = UploadResult{Success: true, FileName: f.Name, Message: "Uploaded successfully"}
			report.Summary.Successful++
		case j == failedAt:
			report.Results[slot] = UploadResult{FileName: f.Name, Message: "Upload failed", Error: err.Error()}
			report.Summary.Failed++
		default:
			report.Results[slot] = UploadResult{FileName: f.Name, Message: notAttempted}
			report.Summary.Failed++
		}
	}
}

func (c *Coordinator) decrypt(f EncryptedFile) ([]byte, error) {
	content, err := c.codec.DecryptFile(f.EncryptedData)
	if err != nil {
		return nil, err
	}

	if f.OriginalSize > 0 && int64(len(content)) != f.OriginalSize {
		return nil, fmt.Errorf("decrypted size %d does not match original size %d", len(content), f.OriginalSize)
	}

	return content, nil
}

// duplicateKey folds a file name to the form duplicates are matched on:
// NFC, then lower case. Stored titles may be in either normalization form.
func duplicateKey(name string) string {
	return strings.ToLower(graph.NormalizeName(name))
}
