package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const lockFilePermissions = 0o644

// lockDatabase takes an exclusive, non-blocking flock on path and records
// this process's PID in it. SQLite tolerates one writing process, so a
// second `serve` on the same database fails here instead of later with
// SQLITE_BUSY. release removes the file and drops the lock.
func lockDatabase(path string) (release func(), err error) {
	if path == "" {
		return nil, errors.New("lock file path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), dataDirPermissions); err != nil {
		return nil, fmt.Errorf("creating lock file directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	locked := false
	defer func() {
		if !locked {
			f.Close()
		}
	}()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder := "another process"
		if pid, readErr := lockHolder(path); readErr == nil {
			holder = "process " + strconv.Itoa(pid)
		}

		return nil, fmt.Errorf("database is in use by %s (could not lock %s)", holder, path)
	}

	if err := f.Truncate(0); err != nil {
		return nil, fmt.Errorf("truncating lock file: %w", err)
	}

	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}

	locked = true

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

// lockHolder returns the PID recorded in a lock file.
func lockHolder(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading lock file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	return pid, nil
}
