package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockDatabase_RecordsPID(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "ragdesk.db.lock")

	release, err := lockDatabase(path)
	require.NoError(t, err)
	defer release()

	pid, err := lockHolder(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestLockDatabase_SecondServeRefused(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ragdesk.db.lock")

	release, err := lockDatabase(path)
	require.NoError(t, err)
	defer release()

	again, err := lockDatabase(path)
	require.Error(t, err)
	assert.Nil(t, again)
	assert.Contains(t, err.Error(), "database is in use by process "+strconv.Itoa(os.Getpid()))

	pid, err := lockHolder(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid, "a refused attempt leaves the holder's PID intact")
}

func TestLockDatabase_ReleaseAllowsRelock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ragdesk.db.lock")

	release, err := lockDatabase(path)
	require.NoError(t, err)
	release()

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	again, err := lockDatabase(path)
	require.NoError(t, err)
	again()
}

func TestLockDatabase_EmptyPath(t *testing.T) {
	t.Parallel()

	release, err := lockDatabase("")
	assert.ErrorContains(t, err, "empty")
	assert.Nil(t, release)
}

func TestLockHolder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	tests := []struct {
		name    string
		content *string
		want    int
		wantErr string
	}{
		{"valid", ptr("12345\n"), 12345, ""},
		{"garbage", ptr("not-a-pid\n"), 0, "invalid PID"},
		{"missing", nil, 0, "reading lock file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".lock")
			if tt.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.content), 0o644))
			}

			pid, err := lockHolder(path)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, pid)
		})
	}
}

func ptr(s string) *string { return &s }
