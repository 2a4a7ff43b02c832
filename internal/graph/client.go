package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/ragdesk/ragdesk/internal/metrics"
)

// DefaultBaseURL is the Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	jitterFraction = 0.25
)

// TokenSource provides bearer tokens for Graph requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for an access token that has already been
// resolved for the current request.
type StaticToken string

// Token returns the token unchanged.
func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("graph: empty access token")
	}

	return string(t), nil
}

// Client calls Microsoft Graph for one account at a time. Throttling, 5xx
// responses and network errors are retried with jittered exponential
// backoff; Retry-After on 429 wins over the computed delay.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
	userAgent  string

	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Graph API client. baseURL is normally DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, userAgent string) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		userAgent:  userAgent,
		sleepFunc:  timeSleep,
	}
}

// WithToken returns a shallow copy of c that authenticates with ts.
// Handlers resolve a per-account token and derive a client from the shared one.
func (c *Client) WithToken(ts TokenSource) *Client {
	cp := *c
	cp.token = ts

	return &cp
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends a JSON request to path under the base URL. A body is replayed on
// retry only if it implements io.Seeker. The caller closes the response body.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	return c.do(ctx, method, path, "application/json", body)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	target := c.baseURL + path

	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: obtaining token: %w", err)
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := rewindBody(body); err != nil {
				return nil, err
			}
		}

		resp, sendErr := c.send(ctx, method, target, tok, contentType, body)

		if sendErr != nil && ctx.Err() != nil {
			metrics.ObserveGraph(method, 0)
			return nil, fmt.Errorf("graph: %s %s canceled: %w", method, path, ctx.Err())
		}

		if sendErr == nil && resp.StatusCode/100 == 2 {
			metrics.ObserveGraph(method, resp.StatusCode)
			return resp, nil
		}

		var (
			status  int
			failure error
			delay   = c.backoff(attempt)
		)

		if sendErr != nil {
			failure = fmt.Errorf("graph: %s %s: %w", method, path, sendErr)
		} else {
			status = resp.StatusCode
			failure = readGraphError(resp)

			if d, ok := retryAfter(resp); ok {
				delay = d
			}
		}

		retry := (sendErr != nil || isRetryable(status)) && attempt < maxRetries && canRetryBody(body)
		if !retry {
			if attempt > 0 {
				c.logger.Error("graph request failed after retries",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("status", status),
					slog.Int("attempts", attempt+1),
				)
			}

			metrics.ObserveGraph(method, status)

			return nil, failure
		}

		c.logger.Warn("retrying graph request",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			slog.String("error", failure.Error()),
		)
		metrics.GraphRetriesTotal.Inc()

		if err := c.sleepFunc(ctx, delay); err != nil {
			return nil, fmt.Errorf("graph: %s %s canceled: %w", method, path, err)
		}
	}
}

// send performs one attempt.
func (c *Client) send(ctx context.Context, method, target, tok, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	return c.httpClient.Do(req)
}

// readGraphError drains and closes resp.Body into a *GraphError.
func readGraphError(resp *http.Response) error {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		raw = []byte("(failed to read response body)")
	}

	return &GraphError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("request-id"),
		Message:    string(raw),
		Err:        classifyStatus(resp.StatusCode),
	}
}

func canRetryBody(body io.Reader) bool {
	if body == nil {
		return true
	}

	_, ok := body.(io.Seeker)

	return ok
}

func rewindBody(body io.Reader) error {
	s, ok := body.(io.Seeker)
	if !ok {
		return nil
	}

	if _, err := s.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("graph: rewinding request body: %w", err)
	}

	return nil
}

// retryAfter reads a whole-second Retry-After from a 429.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp.StatusCode != http.StatusTooManyRequests {
		return 0, false
	}

	seconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		return 0, false
	}

	return time.Duration(seconds) * time.Second, true
}

// backoff doubles from baseBackoff per attempt, capped at maxBackoff, with
// up to jitterFraction of random spread either way.
func (c *Client) backoff(attempt int) time.Duration {
	d := maxBackoff
	if attempt < 6 {
		d = min(baseBackoff<<attempt, maxBackoff)
	}

	spread := float64(d) * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand

	return d + time.Duration(spread)
}

// timeSleep waits for d or until ctx is done.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
