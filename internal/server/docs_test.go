package server

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdesk/ragdesk/internal/docsync"
	"github.com/ragdesk/ragdesk/internal/graph"
	"github.com/ragdesk/ragdesk/internal/store"
	"github.com/ragdesk/ragdesk/internal/tokens"
)

func TestListDocs(t *testing.T) {
	h := newHarness(t, Options{})
	modified := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, h.store.UpsertDocumentMetadata(context.Background(), store.DocumentMetadata{
		ID:             "file-1",
		Title:          "handbook.pdf",
		URL:            "https://onedrive.example/handbook.pdf",
		Path:           "rag-chatbot/hr",
		LastModifiedBy: "Ana",
		LastModifiedAt: &modified,
	}))

	h.drive.folders = []graph.FolderInfo{
		{ID: "root-1", Name: "rag-chatbot", FullPath: "rag-chatbot"},
		{ID: "f-hr", Name: "hr", ParentPath: "rag-chatbot", FullPath: "rag-chatbot/hr"},
	}

	u, modTok := h.user(t, "mod@example.com", store.RoleMod)

	rec := h.do(t, http.MethodGet, "/api/docs", modTok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.InDelta(t, 1, body["totalCount"], 0)

	docs := body["documents"].([]any)
	require.Len(t, docs, 1)

	doc := docs[0].(map[string]any)
	assert.Equal(t, "handbook.pdf", doc["title"])
	assert.Equal(t, "02/01/2025, 10.04.05", doc["last_modified_at"])

	folders := body["folders"].([]any)
	require.Len(t, folders, 2)
	assert.Equal(t, "rag-chatbot/hr", folders[1].(map[string]any)["fullPath"])

	assert.Equal(t, "acct-"+u.ID, h.tokens.got)
	assert.Equal(t, "root-1", h.drive.gotRootID)
}

func TestListDocs_RootResolvedOnce(t *testing.T) {
	h := newHarness(t, Options{})
	_, modTok := h.user(t, "mod@example.com", store.RoleMod)

	for range 2 {
		require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/docs", modTok, "").Code)
	}

	assert.Equal(t, 1, h.drive.lookups)
}

func TestListDocs_RootResolvedPerAccount(t *testing.T) {
	h := newHarness(t, Options{})
	_, first := h.user(t, "mod@example.com", store.RoleMod)
	_, second := h.user(t, "admin@example.com", store.RoleAdmin)

	for _, tok := range []string{first, second, first} {
		require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/docs", tok, "").Code)
	}

	assert.Equal(t, 2, h.drive.lookups)
}

func TestListDocs_ConfiguredRoot(t *testing.T) {
	h := newHarness(t, Options{FolderID: "configured-root"})
	_, modTok := h.user(t, "mod@example.com", store.RoleMod)

	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/docs", modTok, "").Code)
	assert.Zero(t, h.drive.lookups)
	assert.Equal(t, "configured-root", h.drive.gotRootID)
}

func TestListDocs_NoToken(t *testing.T) {
	h := newHarness(t, Options{})
	h.tokens.token = ""
	h.tokens.err = tokens.ErrNotFound
	_, modTok := h.user(t, "mod@example.com", store.RoleMod)

	rec := h.do(t, http.MethodGet, "/api/docs", modTok, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Access token not available", decode(t, rec)["error"])
}

func TestListDocs_RootLookupFails(t *testing.T) {
	h := newHarness(t, Options{})
	h.drive.item = nil
	h.drive.itemErr = graph.ErrNotFound
	_, modTok := h.user(t, "mod@example.com", store.RoleMod)

	rec := h.do(t, http.MethodGet, "/api/docs", modTok, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decode(t, rec)["error"])
}

func TestUploadDocs_DefaultsToRoot(t *testing.T) {
	h := newHarness(t, Options{})
	h.docs.uploadReport = &docsync.UploadReport{
		Success: true,
		Results: []docsync.UploadResult{{Success: true, FileName: "a.pdf", Message: "Uploaded successfully"}},
		Summary: docsync.UploadSummary{Total: 1, Successful: 1, Duplicates: []string{}},
	}
	_, modTok := h.user(t, "mod@example.com", store.RoleMod)

	rec := h.do(t, http.MethodPost, "/api/docs", modTok,
		`{"files":[{"id":"1","name":"a.pdf","type":"application/pdf","encryptedData":"xx","originalSize":3}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "root-1", h.docs.gotFolder)
	assert.Equal(t, "graph-token", h.docs.gotToken)
	require.Len(t, h.docs.gotFiles, 1)
	assert.Equal(t, "a.pdf", h.docs.gotFiles[0].Name)
	assert.InDelta(t, 1, decode(t, rec)["summary"].(map[string]any)["successful"], 0)
}

func TestUploadDocs_PartialStatus(t *testing.T) {
	h := newHarness(t, Options{})
	h.docs.uploadReport = &docsync.UploadReport{
		Summary: docsync.UploadSummary{Total: 2, Successful: 1, Failed: 1},
	}
	_, modTok := h.user(t, "mod@example.com", store.RoleMod)

	rec := h.do(t, http.MethodPost, "/api/docs", modTok,
		`{"folderId":"f-hr","files":[{"name":"a.pdf"},{"name":"b.pdf"}]}`)
	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Equal(t, "f-hr", h.docs.gotFolder)
	assert.Zero(t, h.drive.lookups)
}

func TestUploadDocs_NoFiles(t *testing.T) {
	h := newHarness(t, Options{})
	_, modTok := h.user(t, "mod@example.com", store.RoleMod)

	rec := h.do(t, http.MethodPost, "/api/docs", modTok, `{"files":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteDocs_Partial(t *testing.T) {
	h := newHarness(t, Options{})
	h.docs.deleteReport = &docsync.DeleteReport{
		DeletedCount: 1,
		FailedCount:  1,
		Failures:     []graph.DeleteFailure{{ID: "b", Message: "itemNotFound"}},
		Status:       http.StatusMultiStatus,
		Message:      "Deleted 1 file(s), failed to delete 1 file(s)",
	}
	_, modTok := h.user(t, "mod@example.com", store.RoleMod)

	rec := h.do(t, http.MethodDelete, "/api/docs", modTok, `{"fileIds":["a","b"]}`)
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Equal(t, []string{"a", "b"}, h.docs.gotIDs)

	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.InDelta(t, 1, body["deletedCount"], 0)
	assert.InDelta(t, 1, body["failedCount"], 0)

	failures := body["failures"].([]any)
	require.Len(t, failures, 1)
	assert.Equal(t, "b", failures[0].(map[string]any)["id"])
}

func TestDeleteDocs_AllDeleted(t *testing.T) {
	h := newHarness(t, Options{})
	h.docs.deleteReport = &docsync.DeleteReport{DeletedCount: 1, Status: http.StatusOK, Message: "Successfully deleted 1 file(s)"}
	_, adminTok := h.user(t, "admin@example.com", store.RoleAdmin)

	rec := h.do(t, http.MethodDelete, "/api/docs", adminTok, `{"fileIds":["a"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []any{}, body["failures"])
}

func TestDeleteDocs_Inconsistent(t *testing.T) {
	h := newHarness(t, Options{})
	h.docs.err = &docsync.SyncInconsistencyError{DeletedIDs: []string{"a"}, Err: errors.New("db locked")}
	_, modTok := h.user(t, "mod@example.com", store.RoleMod)

	rec := h.do(t, http.MethodDelete, "/api/docs", modTok, `{"fileIds":["a"]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEqual(t, "Internal server error", decode(t, rec)["error"])
}

func TestDeleteDocs_Empty(t *testing.T) {
	h := newHarness(t, Options{})
	_, modTok := h.user(t, "mod@example.com", store.RoleMod)

	rec := h.do(t, http.MethodDelete, "/api/docs", modTok, `{"fileIds":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid file IDs format or empty array", decode(t, rec)["error"])
}

func TestGraphDebug(t *testing.T) {
	h := newHarness(t, Options{})
	h.drive.me = &graph.User{ID: "me-1", DisplayName: "Admin", Email: "admin@example.com"}
	h.drive.drive = &graph.Drive{ID: "d-1", DriveType: "business", QuotaUsed: 10, QuotaTotal: 100}
	_, adminTok := h.user(t, "admin@example.com", store.RoleAdmin)

	rec := h.do(t, http.MethodGet, "/api/graph/debug", adminTok, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "root-1", body["rootFolderId"])
	assert.InDelta(t, 1, body["folderCount"], 0)
	assert.Equal(t, "Admin", body["account"].(map[string]any)["displayName"])

	drive := body["drive"].(map[string]any)
	assert.Equal(t, "business", drive["driveType"])
	assert.InDelta(t, 100, drive["quotaTotal"], 0)
}
