// Package chat forwards user messages to the n8n chat workflow webhook and
// extracts the assistant reply from its loosely shaped response.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ragdesk/ragdesk/internal/apperr"
	"github.com/ragdesk/ragdesk/internal/metrics"
)

// Fallback replies when the workflow answers with an unknown shape.
const (
	UnexpectedArrayReply = "I received your message but the response format was unexpected."
	UnexpectedShapeReply = "I received your message but had trouble processing the response format."
)

// upstreamMessage is the client-facing text for any webhook failure.
const upstreamMessage = "Failed to get response from AI service"

// maxErrorBody caps how much of a failed webhook response is kept.
const maxErrorBody = 4096

// UpstreamError is a non-2xx webhook response.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("chat: webhook returned HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return apperr.ErrUpstream
}

// PublicMessage is the client-facing text.
func (e *UpstreamError) PublicMessage() string {
	return upstreamMessage
}

// Client calls the chat webhook.
type Client struct {
	webhookURL  string
	bearerToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a Client. httpClient should carry a timeout.
func NewClient(webhookURL, bearerToken string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		webhookURL:  webhookURL,
		bearerToken: bearerToken,
		httpClient:  httpClient,
		logger:      logger,
	}
}

type sendRequest struct {
	SessionID string `json:"sessionId"`
	ChatInput string `json:"chatInput"`
}

// Send posts the message and returns the assistant reply. Transport
// failures and non-2xx responses are upstream errors; an unrecognized
// 2xx body yields a fallback reply rather than an error.
func (c *Client) Send(ctx context.Context, sessionID, input string) (string, error) {
	body, err := json.Marshal(sendRequest{SessionID: sessionID, ChatInput: input})
	if err != nil {
		return "", fmt.Errorf("chat: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("chat: creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	c.logger.Debug("sending chat message", slog.String("session_id", sessionID), slog.Int("input_len", len(input)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ChatRequestsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return "", apperr.Wrap(apperr.ErrUpstream, upstreamMessage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		metrics.ChatRequestsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		c.logger.Error("chat webhook error",
			slog.String("session_id", sessionID),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(errBody)),
		)

		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ChatRequestsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return "", apperr.Wrap(apperr.ErrUpstream, upstreamMessage, err)
	}

	metrics.ChatRequestsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()

	out, err := ExtractOutput(raw)
	if err != nil {
		c.logger.Warn("unexpected chat webhook response",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}

	return out, nil
}

// errUnexpectedShape marks a response that fell back to a canned reply.
var errUnexpectedShape = errors.New("chat: unexpected response shape")

// ExtractOutput picks the reply out of a webhook response: the first item's
// output for arrays, else output, message or response on an object. When
// none is present it returns the matching fallback reply together with a
// non-nil error for logging.
func ExtractOutput(raw []byte) (string, error) {
	var arr []map[string]any
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		if s, ok := nonEmptyString(arr[0]["output"]); ok {
			return s, nil
		}

		return UnexpectedArrayReply, fmt.Errorf("%w: first array item has no output", errUnexpectedShape)
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"output", "message", "response"} {
			if s, ok := nonEmptyString(obj[key]); ok {
				return s, nil
			}
		}
	}

	return UnexpectedShapeReply, fmt.Errorf("%w: %.200s", errUnexpectedShape, raw)
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok && s != ""
}
