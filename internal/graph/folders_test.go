package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// folderTreeServer serves /me/drive/items/{id}/children from a fixed map of
// JSON bodies. IDs not in the map answer 404.
func folderTreeServer(t *testing.T, children map[string]string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "/me/drive/items/"

		assert.True(t, strings.HasPrefix(r.URL.Path, prefix), r.URL.Path)
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), "/children")

		body, ok := children[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"itemNotFound"}}`))

			return
		}

		_, _ = w.Write([]byte(body))
	}))
}

func TestListFolders_PreOrderPaths(t *testing.T) {
	srv := folderTreeServer(t, map[string]string{
		"root-id": `{"value":[
			{"id":"a","name":"A","folder":{"childCount":1}},
			{"id":"f1","name":"notes.txt","file":{"mimeType":"text/plain"}},
			{"id":"b","name":"B","folder":{"childCount":0}}
		]}`,
		"a":  `{"value":[{"id":"a1","name":"A1","folder":{"childCount":0}}]}`,
		"a1": `{"value":[]}`,
		"b":  `{"value":[]}`,
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	got := client.ListFolders(context.Background(), "root-id", "root")

	want := []FolderInfo{
		{ID: "root-id", Name: "root", ParentPath: "", FullPath: "root"},
		{ID: "a", Name: "A", ParentPath: "root", FullPath: "root/A"},
		{ID: "a1", Name: "A1", ParentPath: "root/A", FullPath: "root/A/A1"},
		{ID: "b", Name: "B", ParentPath: "root", FullPath: "root/B"},
	}
	assert.Equal(t, want, got)
}

func TestListFolders_FailedBranchIsEmpty(t *testing.T) {
	srv := folderTreeServer(t, map[string]string{
		"root-id": `{"value":[
			{"id":"broken","name":"Broken","folder":{"childCount":3}},
			{"id":"ok","name":"OK","folder":{"childCount":0}}
		]}`,
		"ok": `{"value":[]}`,
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	got := client.ListFolders(context.Background(), "root-id", "rag-chatbot")

	require.Len(t, got, 3)
	assert.Equal(t, "rag-chatbot/Broken", got[1].FullPath)
	assert.Equal(t, "rag-chatbot/OK", got[2].FullPath)
}

func TestListFolders_RootFailureReturnsRootOnly(t *testing.T) {
	srv := folderTreeServer(t, map[string]string{})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	got := client.ListFolders(context.Background(), "missing", "rag-chatbot")

	assert.Equal(t, []FolderInfo{{ID: "missing", Name: "rag-chatbot", FullPath: "rag-chatbot"}}, got)
}

func TestListFolders_FollowsNextLink(t *testing.T) {
	var srvURL string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/me/drive/items/root-id/children" && r.URL.Query().Get("$skiptoken") == "":
			assert.Equal(t, "id,name,folder,package,parentReference", r.URL.Query().Get("$select"))
			fmt.Fprintf(w, `{"value":[{"id":"p1","name":"Page1","folder":{}}],"@odata.nextLink":"%s/me/drive/items/root-id/children?$skiptoken=abc"}`, srvURL)
		case r.URL.Path == "/me/drive/items/root-id/children":
			_, _ = w.Write([]byte(`{"value":[{"id":"p2","name":"Page2","folder":{}}]}`))
		default:
			_, _ = w.Write([]byte(`{"value":[]}`))
		}
	}))
	defer srv.Close()

	srvURL = srv.URL

	client := newTestClient(t, srv.URL)
	got := client.ListFolders(context.Background(), "root-id", "root")

	require.Len(t, got, 3)
	assert.Equal(t, "root/Page1", got[1].FullPath)
	assert.Equal(t, "root/Page2", got[2].FullPath)
}

func TestListChildren_ForeignNextLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value":[],"@odata.nextLink":"https://evil.example.com/next"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ListChildren(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match base URL")
}

func TestToItem_Fields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value":[{
			"id":"f","name":"report.pdf","size":42,"webUrl":"https://contoso/report.pdf",
			"createdDateTime":"2024-05-01T10:00:00Z","lastModifiedDateTime":"not-a-date",
			"lastModifiedBy":{"user":{"displayName":"Dewi"}},
			"parentReference":{"id":"p","path":"/drive/root:/rag-chatbot"},
			"file":{"mimeType":"application/pdf","hashes":{"quickXorHash":"qx=="}}
		}]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	items, err := client.ListChildren(context.Background(), "p")
	require.NoError(t, err)
	require.Len(t, items, 1)

	it := items[0]
	assert.False(t, it.IsFolder)
	assert.Equal(t, int64(42), it.Size)
	assert.Equal(t, "application/pdf", it.MimeType)
	assert.Equal(t, "Dewi", it.ModifiedBy)
	assert.Equal(t, "p", it.ParentID)
	assert.Equal(t, "qx==", it.QuickXorHash)
	assert.Equal(t, 2024, it.CreatedAt.Year())
	assert.False(t, it.ModifiedAt.IsZero(), "invalid timestamps fall back to now")
}

func TestItemByPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.EscapedPath() {
		case "/me/drive/root:/rag-chatbot/Q%20and%20A":
			_, _ = w.Write([]byte(`{"id":"kb-1","name":"Q and A","folder":{"childCount":3}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"itemNotFound"}}`))
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	item, err := client.ItemByPath(context.Background(), "/rag-chatbot/Q and A")
	require.NoError(t, err)
	assert.Equal(t, "kb-1", item.ID)
	assert.True(t, item.IsFolder)

	_, err = client.ItemByPath(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.ItemByPath(context.Background(), "/")
	assert.Error(t, err)
}
