// Package graph talks to Microsoft Graph on behalf of a signed-in account:
// token refresh against the identity platform, folder enumeration, file
// upload and batched deletion in the user's OneDrive.
package graph

import (
	"errors"
	"fmt"
	"net/http"
)

// Status sentinels; match with errors.Is.
var (
	ErrBadRequest   = errors.New("graph: bad request")
	ErrUnauthorized = errors.New("graph: unauthorized")
	ErrForbidden    = errors.New("graph: forbidden")
	ErrNotFound     = errors.New("graph: not found")
	ErrConflict     = errors.New("graph: conflict")
	ErrThrottled    = errors.New("graph: throttled")
	ErrServerError  = errors.New("graph: server error")

	// ErrRefresh is wrapped by every RefreshError.
	ErrRefresh = errors.New("graph: token refresh failed")
	// ErrUpload is wrapped by every UploadError.
	ErrUpload = errors.New("graph: upload failed")
)

// GraphError is a non-2xx Graph response. Message holds the raw body.
type GraphError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error
}

func (e *GraphError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("graph: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("graph: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// RefreshError is returned when the token endpoint answers with a non-2xx
// status. Body is the raw response, which may name the AAD error code.
type RefreshError struct {
	StatusCode int
	Body       string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("graph: token refresh failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *RefreshError) Unwrap() error {
	return ErrRefresh
}

// UploadError names the file that aborted an upload batch.
type UploadError struct {
	Name  string
	Index int // zero-based position in the batch
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("Upload failed for %q: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() []error {
	return []error{ErrUpload, e.Err}
}

// statusSentinels maps the statuses callers branch on. Other 5xx codes
// fall back to ErrServerError.
var statusSentinels = map[int]error{
	http.StatusBadRequest:      ErrBadRequest,
	http.StatusUnauthorized:    ErrUnauthorized,
	http.StatusForbidden:       ErrForbidden,
	http.StatusNotFound:        ErrNotFound,
	http.StatusConflict:        ErrConflict,
	http.StatusTooManyRequests: ErrThrottled,
}

// classifyStatus returns the sentinel for code, or nil when none applies.
func classifyStatus(code int) error {
	if err, ok := statusSentinels[code]; ok {
		return err
	}

	if code >= http.StatusInternalServerError {
		return ErrServerError
	}

	return nil
}

// isRetryable reports whether a response with code is worth another attempt.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}

	return code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}
