package graph

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopSleep(context.Context, time.Duration) error { return nil }

type failingToken struct{}

func (failingToken) Token(context.Context) (string, error) {
	return "", errors.New("token error")
}

// newTestClient points a Client at url with retries that do not sleep.
func newTestClient(t *testing.T, url string) *Client {
	t.Helper()

	c := NewClient(url, http.DefaultClient, StaticToken("test-token"), slog.Default(), "test-agent")
	c.sleepFunc = noopSleep

	return c
}

// scripted answers each call with the next status, then 200 forever.
func scripted(statuses ...int) (http.HandlerFunc, *atomic.Int32) {
	var calls atomic.Int32

	return func(w http.ResponseWriter, _ *http.Request) {
		n := int(calls.Add(1))
		if n <= len(statuses) {
			w.Header().Set("request-id", "req-42")
			w.WriteHeader(statuses[n-1])
			_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))

			return
		}

		_, _ = w.Write([]byte(`{"value":"ok"}`))
	}, &calls
}

func TestDo_ReturnsBodyOn2xx(t *testing.T) {
	h, calls := scripted()
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL).Do(context.Background(), http.MethodGet, "/me", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"value":"ok"}`, string(body))
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_Retries(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantCalls int32
		wantErr   error
	}{
		{"503 then success", []int{503, 503}, 3, nil},
		{"502 then success", []int{502}, 2, nil},
		{"408 then success", []int{408}, 2, nil},
		{"gives up after max retries", []int{503, 503, 503, 503, 503, 503, 503}, maxRetries + 1, ErrServerError},
		{"403 is final", []int{403}, 1, ErrForbidden},
		{"404 is final", []int{404}, 1, ErrNotFound},
		{"409 is final", []int{409}, 1, ErrConflict},
		{"400 is final", []int{400}, 1, ErrBadRequest},
		{"401 is final", []int{401}, 1, ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, calls := scripted(tt.statuses...)
			srv := httptest.NewServer(h)
			defer srv.Close()

			resp, err := newTestClient(t, srv.URL).Do(context.Background(), http.MethodGet, "/x", nil)
			assert.Equal(t, tt.wantCalls, calls.Load())

			if tt.wantErr == nil {
				require.NoError(t, err)
				resp.Body.Close()

				return
			}

			require.ErrorIs(t, err, tt.wantErr)

			var ge *GraphError
			require.ErrorAs(t, err, &ge)
			assert.Equal(t, tt.statuses[0], ge.StatusCode)
			assert.Equal(t, "req-42", ge.RequestID)
			assert.Contains(t, ge.Message, "nope")
		})
	}
}

func TestDo_RetryAfterOverridesBackoff(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}
	}))
	defer srv.Close()

	var slept []time.Duration

	client := newTestClient(t, srv.URL)
	client.sleepFunc = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	resp, err := client.Do(context.Background(), http.MethodGet, "/throttle", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []time.Duration{7 * time.Second}, slept)
}

func TestDo_ReplaysSeekableBody(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)

	h, _ := scripted(http.StatusBadGateway)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)

		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()

		h(w, r)
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL).Do(context.Background(), http.MethodPost, "/$batch",
		bytes.NewReader([]byte(`{"requests":[]}`)))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{`{"requests":[]}`, `{"requests":[]}`}, bodies)
}

func TestDo_StreamBodyNotRetried(t *testing.T) {
	h, calls := scripted(http.StatusServiceUnavailable)
	srv := httptest.NewServer(h)
	defer srv.Close()

	// io.MultiReader hides the Seeker, so the body cannot be replayed.
	body := io.MultiReader(bytes.NewReader([]byte("payload")))

	_, err := newTestClient(t, srv.URL).Do(context.Background(), http.MethodPut, "/content", body)
	require.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_Headers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL).Do(context.Background(), http.MethodPost, "/x", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	resp.Body.Close()
}

func TestDo_TokenErrorNotRetried(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", http.DefaultClient, failingToken{}, nil, "")
	client.sleepFunc = func(context.Context, time.Duration) error {
		t.Fatal("token failures must not be retried")
		return nil
	}

	_, err := client.Do(context.Background(), http.MethodGet, "/me", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "obtaining token: token error")
}

func TestDo_CanceledContext(t *testing.T) {
	h, _ := scripted()
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, srv.URL).Do(ctx, http.MethodGet, "/me", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithToken_DoesNotMutateParent(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
	}))
	defer srv.Close()

	parent := newTestClient(t, srv.URL)
	child := parent.WithToken(StaticToken("account-token"))

	for _, c := range []*Client{child, parent} {
		resp, err := c.Do(context.Background(), http.MethodGet, "/me", nil)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, []string{"Bearer account-token", "Bearer test-token"}, seen)
}

func TestStaticToken_Empty(t *testing.T) {
	_, err := StaticToken("").Token(context.Background())
	assert.Error(t, err)
}

func TestClassifyStatus(t *testing.T) {
	assert.Nil(t, classifyStatus(http.StatusOK))
	assert.Nil(t, classifyStatus(http.StatusTeapot))
	assert.Equal(t, ErrThrottled, classifyStatus(http.StatusTooManyRequests))
	assert.Equal(t, ErrServerError, classifyStatus(http.StatusGatewayTimeout))
	assert.Equal(t, ErrServerError, classifyStatus(http.StatusHTTPVersionNotSupported))
}

func TestBackoff_Bounds(t *testing.T) {
	c := newTestClient(t, "http://unused")

	for range 20 {
		first := c.backoff(0)
		assert.GreaterOrEqual(t, first, time.Duration(float64(baseBackoff)*(1-jitterFraction)))
		assert.LessOrEqual(t, first, time.Duration(float64(baseBackoff)*(1+jitterFraction)))

		capped := c.backoff(30)
		assert.GreaterOrEqual(t, capped, time.Duration(float64(maxBackoff)*(1-jitterFraction)))
		assert.LessOrEqual(t, capped, time.Duration(float64(maxBackoff)*(1+jitterFraction)))
	}
}

func TestTimeSleep_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, timeSleep(ctx, time.Hour), context.Canceled)
}
