// Package keyfile reads and writes the base64 credential encryption key on
// disk. Key files hold a single line and are readable by the owner only.
package keyfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FilePerms restricts key files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the key's parent directory.
const DirPerms = 0o700

// Load reads a key file and returns the trimmed key. Returns ("", nil) if
// the file does not exist.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("keyfile: reading %s: %w", path, err)
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("keyfile: %s is empty", path)
	}

	return key, nil
}

// Save writes key to path atomically (write-to-temp + rename) with 0600
// permissions. An existing file is replaced only when overwrite is set.
func Save(path, key string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("keyfile: %s already exists", path)
		}
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("keyfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".key-*.tmp")
	if err != nil {
		return fmt.Errorf("keyfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("keyfile: setting permissions: %w", err)
	}

	if _, err := tmp.WriteString(key + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("keyfile: writing: %w", err)
	}

	// Flush before rename so a crash cannot leave a truncated key behind.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("keyfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("keyfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("keyfile: renaming: %w", err)
	}

	success = true

	return nil
}
