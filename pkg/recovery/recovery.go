// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package recovery implements the write-ahead-log crash-recovery described
// in spec §4.3: a per-file cooperative periodic task samples the editor's
// in-memory content and, when it differs from the last flush, atomically
// writes it to ".midlight/recovery/<safe-key>.wal".
package recovery

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "github.com/midlightapp/midlight/internal/errors"
)

// ContentFunc samples the current in-memory editor content for a file key.
type ContentFunc func() string

// Entry describes one pending recovery, as returned by CheckForRecovery.
type Entry struct {
	FileKey     string
	WALTime     time.Time
	WALContent  string
}

// task is the per-file cooperative WAL-flush goroutine's state.
type task struct {
	cancel  chan struct{}
	done    chan struct{}
	lastSet bool
	last    string
}

// Manager is the Recovery Manager. One Manager exists per workspace.
type Manager struct {
	root     string
	interval time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	tasks map[string]*task
}

// New returns a Manager rooted at root (".midlight/recovery") flushing at
// the given interval. Call Init before first use.
func New(root string, interval time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{root: root, interval: interval, logger: logger, tasks: make(map[string]*task)}
}

// Init ensures the recovery directory exists.
func (m *Manager) Init() error {
	if err := os.MkdirAll(m.root, 0o750); err != nil {
		return xerrors.NewIoError("cannot create recovery directory", m.root, "check filesystem permissions", err)
	}
	return nil
}

func safeKey(fileKey string) string {
	s := strings.ReplaceAll(fileKey, "/", "_")
	return strings.ReplaceAll(s, "\\", "_")
}

func (m *Manager) walPath(fileKey string) string {
	return filepath.Join(m.root, safeKey(fileKey)+".wal")
}

// StartWAL registers a periodic task for fileKey that samples get() every
// interval and, if the content changed since the last flush, writes it to
// the WAL file. If a task already exists for fileKey it is stopped and
// replaced.
func (m *Manager) StartWAL(fileKey string, get ContentFunc) {
	m.StopWAL(fileKey)

	t := &task{cancel: make(chan struct{}), done: make(chan struct{})}
	m.mu.Lock()
	m.tasks[fileKey] = t
	m.mu.Unlock()

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.cancel:
				return
			case <-ticker.C:
				content := get()
				if t.lastSet && t.last == content {
					continue
				}
				if err := m.writeWAL(fileKey, content); err != nil {
					m.logger.Warn("recovery.wal_flush_failed", "file_key", fileKey, "err", err)
					continue
				}
				t.last = content
				t.lastSet = true
			}
		}
	}()
}

func (m *Manager) writeWAL(fileKey, content string) error {
	path := m.walPath(fileKey)
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "wal-*.tmp")
	if err != nil {
		return xerrors.NewIoError("cannot create temp WAL file", dir, "check filesystem permissions", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return xerrors.NewIoError("cannot write WAL", path, "", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return xerrors.NewIoError("cannot close temp WAL file", tmpPath, "", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return xerrors.NewIoError("cannot finalize WAL", path, "", err)
	}
	return nil
}

// UpdateWALNow writes content to fileKey's WAL immediately, regardless of
// whether it differs from the last flush.
func (m *Manager) UpdateWALNow(fileKey, content string) error {
	if err := m.writeWAL(fileKey, content); err != nil {
		return err
	}
	m.mu.Lock()
	if t, ok := m.tasks[fileKey]; ok {
		t.last = content
		t.lastSet = true
	}
	m.mu.Unlock()
	return nil
}

// StopWAL stops fileKey's periodic task, if any, and waits for its
// goroutine to exit before returning. After StopWAL returns, no further
// write for fileKey will occur until StartWAL is called again.
func (m *Manager) StopWAL(fileKey string) {
	m.mu.Lock()
	t, ok := m.tasks[fileKey]
	if ok {
		delete(m.tasks, fileKey)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	close(t.cancel)
	<-t.done
}

// StopAllWAL stops every registered periodic task.
func (m *Manager) StopAllWAL() {
	m.mu.Lock()
	keys := make([]string, 0, len(m.tasks))
	for k := range m.tasks {
		keys = append(keys, k)
	}
	m.mu.Unlock()
	for _, k := range keys {
		m.StopWAL(k)
	}
}

// ClearWAL removes fileKey's WAL file, called after a successful save. A
// missing file is not an error.
func (m *Manager) ClearWAL(fileKey string) error {
	path := m.walPath(fileKey)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return xerrors.NewIoError("cannot clear WAL", path, "check filesystem permissions", err)
	}
	return nil
}

// HasRecovery reports whether a WAL file exists for fileKey.
func (m *Manager) HasRecovery(fileKey string) bool {
	_, err := os.Stat(m.walPath(fileKey))
	return err == nil
}

// RecoveryContent returns the WAL content for fileKey, or ("", false) if
// absent.
func (m *Manager) RecoveryContent(fileKey string) (string, bool) {
	b, err := os.ReadFile(m.walPath(fileKey)) //nolint:gosec // path derived from safeKey
	if err != nil {
		return "", false
	}
	return string(b), true
}

// RecoveryTimestamp returns fileKey's WAL file modification time, or the
// zero time and false if no WAL exists.
func (m *Manager) RecoveryTimestamp(fileKey string) (time.Time, bool) {
	info, err := os.Stat(m.walPath(fileKey))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// CheckForRecovery enumerates every pending WAL in the recovery directory.
// Unreadable entries are skipped rather than failing the whole scan.
func (m *Manager) CheckForRecovery() ([]Entry, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, xerrors.NewIoError("cannot list recovery directory", m.root, "check filesystem permissions", err)
	}

	var out []Entry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			m.logger.Warn("recovery.scan.entry_unreadable", "name", e.Name(), "err", err)
			continue
		}
		path := filepath.Join(m.root, e.Name())
		content, err := os.ReadFile(path) //nolint:gosec // dir is trusted
		if err != nil {
			m.logger.Warn("recovery.scan.wal_unreadable", "name", e.Name(), "err", err)
			continue
		}
		fileKey := e.Name()
		if len(fileKey) > 4 && fileKey[len(fileKey)-4:] == ".wal" {
			fileKey = fileKey[:len(fileKey)-4]
		}
		out = append(out, Entry{FileKey: fileKey, WALTime: info.ModTime(), WALContent: string(content)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileKey < out[j].FileKey })
	return out, nil
}

// ApplyRecovery returns the WAL content for fileKey without deleting it.
// The caller must save successfully and then call ClearWAL.
func (m *Manager) ApplyRecovery(fileKey string) (string, bool) {
	return m.RecoveryContent(fileKey)
}

// DiscardRecovery deletes fileKey's WAL without applying it.
func (m *Manager) DiscardRecovery(fileKey string) error {
	return m.ClearWAL(fileKey)
}

// DiscardAllRecovery deletes every WAL file in the recovery directory.
func (m *Manager) DiscardAllRecovery() error {
	entries, err := m.CheckForRecovery()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := m.DiscardRecovery(e.FileKey); err != nil {
			return err
		}
	}
	return nil
}

// HasUniqueRecovery reports whether fileKey has a WAL that differs from
// currentContent.
func (m *Manager) HasUniqueRecovery(fileKey, currentContent string) bool {
	content, ok := m.RecoveryContent(fileKey)
	return ok && content != currentContent
}
