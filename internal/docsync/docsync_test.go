package docsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdesk/ragdesk/internal/apperr"
	"github.com/ragdesk/ragdesk/internal/crypt"
	"github.com/ragdesk/ragdesk/internal/graph"
	"github.com/ragdesk/ragdesk/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCodec(t *testing.T) *crypt.Codec {
	t.Helper()

	key, err := crypt.GenerateKey()
	require.NoError(t, err)

	c, err := crypt.New(key)
	require.NoError(t, err)

	return c
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(context.Background(), store.Options{
		Driver: store.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "docs.db"),
	}, discardLogger())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })

	return s
}

// fakeGraph serves $batch deletes and simple uploads. failIDs answer 403 and
// failNames reject uploads.
type fakeGraph struct {
	mu        sync.Mutex
	failIDs   map[string]bool
	failNames map[string]bool
	uploads   []string
	auth      []string
}

func (f *fakeGraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/$batch":
		f.serveBatch(w, r)
	case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, ":/content"):
		f.serveUpload(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeGraph) serveBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Requests []struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"requests"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	responses := make([]map[string]any, 0, len(req.Requests))
	for _, sub := range req.Requests {
		id := strings.TrimPrefix(sub.URL, "/me/drive/items/")
		if f.failIDs[id] {
			responses = append(responses, map[string]any{
				"id": sub.ID, "status": 403,
				"body": map[string]any{"error": map[string]any{"message": "Access denied"}},
			})

			continue
		}

		responses = append(responses, map[string]any{"id": sub.ID, "status": 204})
	}

	_ = json.NewEncoder(w).Encode(map[string]any{"responses": responses})
}

func (f *fakeGraph) serveUpload(w http.ResponseWriter, r *http.Request) {
	// Path: /me/drive/items/{folder}:/{name}:/content
	parts := strings.Split(r.URL.Path, ":/")
	name := parts[1]

	if f.failNames[name] {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"accessDenied","message":"denied"}}`))

		return
	}

	f.mu.Lock()
	f.uploads = append(f.uploads, name)
	f.mu.Unlock()

	_, _ = w.Write([]byte(`{"id":"new-` + name + `","name":"` + name + `"}`))
}

func newTestCoordinator(t *testing.T, fg *fakeGraph, st DocumentStore, codec FileDecrypter) *Coordinator {
	t.Helper()

	srv := httptest.NewServer(fg)
	t.Cleanup(srv.Close)

	client := graph.NewClient(srv.URL, srv.Client(), graph.StaticToken("unused"), discardLogger(), "ragdesk-test")

	return NewCoordinator(client, st, codec, discardLogger())
}

func seedDoc(t *testing.T, s *store.Store, id string, chunks int) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, s.UpsertDocumentMetadata(ctx, store.DocumentMetadata{ID: id, Title: id + ".pdf"}))

	for range chunks {
		require.NoError(t, s.InsertChunk(ctx, id, "text"))
	}
}

func TestDelete_AllSucceed(t *testing.T) {
	st := newTestStore(t)
	seedDoc(t, st, "f1", 2)
	seedDoc(t, st, "f2", 1)

	fg := &fakeGraph{}
	c := newTestCoordinator(t, fg, st, nil)

	rep, err := c.Delete(context.Background(), "user-token", []string{"f1", "f2"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rep.Status)
	assert.Equal(t, 2, rep.DeletedCount)
	assert.Zero(t, rep.FailedCount)
	assert.Equal(t, "Successfully deleted 2 file(s)", rep.Message)

	docs, err := st.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)

	assert.Equal(t, []string{"Bearer user-token"}, fg.auth)
}

func TestDelete_PartialKeepsFailedRows(t *testing.T) {
	st := newTestStore(t)
	for _, id := range []string{"f1", "f2", "f3"} {
		seedDoc(t, st, id, 2)
	}

	c := newTestCoordinator(t, &fakeGraph{failIDs: map[string]bool{"f2": true}}, st, nil)

	rep, err := c.Delete(context.Background(), "tok", []string{"f1", "f2", "f3"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusMultiStatus, rep.Status)
	assert.Equal(t, 2, rep.DeletedCount)
	assert.Equal(t, 1, rep.FailedCount)
	assert.Equal(t, []graph.DeleteFailure{{ID: "f2", Message: "Access denied"}}, rep.Failures)

	n, err := st.CountChunks(context.Background(), "f2")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "failed remote delete keeps local rows")

	n, err = st.CountChunks(context.Background(), "f1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

// recordingStore counts calls and can fail deletes.
type recordingStore struct {
	deleteCalls int
	deleteErr   error
	titles      map[string]bool
}

func (r *recordingStore) DeleteDocuments(context.Context, []string) (store.DocumentDeletion, error) {
	r.deleteCalls++
	return store.DocumentDeletion{}, r.deleteErr
}

func (r *recordingStore) DocumentTitles(context.Context) (map[string]bool, error) {
	if r.titles == nil {
		return map[string]bool{}, nil
	}

	return r.titles, nil
}

func TestDelete_AllFailSkipsLocalTransaction(t *testing.T) {
	rs := &recordingStore{}
	c := newTestCoordinator(t, &fakeGraph{failIDs: map[string]bool{"a": true, "b": true}}, rs, nil)

	rep, err := c.Delete(context.Background(), "tok", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, rep.Status)
	assert.Equal(t, 2, rep.FailedCount)
	assert.Zero(t, rs.deleteCalls)
}

func TestDelete_LocalFailureIsSyncInconsistency(t *testing.T) {
	rs := &recordingStore{deleteErr: errors.New("database is locked")}
	c := newTestCoordinator(t, &fakeGraph{}, rs, nil)

	rep, err := c.Delete(context.Background(), "tok", []string{"a", "b"})
	require.Error(t, err)
	assert.Nil(t, rep)

	var se *SyncInconsistencyError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"a", "b"}, se.DeletedIDs)
	assert.ErrorIs(t, err, apperr.ErrSyncInconsistency)
	assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(err))
	assert.Equal(t, "Files deleted from OneDrive, but failed to sync with database", apperr.PublicMessage(err))
}

func TestDelete_EmptyIDs(t *testing.T) {
	c := newTestCoordinator(t, &fakeGraph{}, &recordingStore{}, nil)

	_, err := c.Delete(context.Background(), "tok", nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
}
