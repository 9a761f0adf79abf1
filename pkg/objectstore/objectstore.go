// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package objectstore implements the content-addressed blob store described
// in spec §4.1: write-once files named by the full hex SHA-256 of their
// content, sharded two levels deep so no directory holds more than a few
// hundred entries at repository scale.
package objectstore

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	xerrors "github.com/midlightapp/midlight/internal/errors"
)

// Store is a content-addressed blob store rooted at a directory, normally
// "<workspace>/.midlight/objects".
type Store struct {
	root   string
	logger *slog.Logger

	mu sync.Mutex // serializes directory creation during concurrent writes
}

// New returns a Store rooted at root. Call Init before first use.
func New(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger}
}

// Init ensures the objects directory exists.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return xerrors.NewIoError("cannot create object store directory", s.root, "check filesystem permissions", err)
	}
	return nil
}

// Hash returns the lowercase hex SHA-256 of b.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashText is Hash over the UTF-8 bytes of s.
func HashText(s string) string {
	return Hash([]byte(s))
}

func (s *Store) pathFor(hash string) (string, error) {
	if len(hash) < 3 {
		return "", xerrors.NewInvalidFormatError("malformed object hash", hash, "hashes must be full-length hex SHA-256 digests", nil)
	}
	return filepath.Join(s.root, hash[:2], hash[2:]), nil
}

// Write stores b and returns its hash. Writes are idempotent: if an object
// with the same hash already exists, the existing file is left untouched
// and no error is returned.
func (s *Store) Write(b []byte) (string, error) {
	hash := Hash(b)
	path, err := s.pathFor(hash)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}

	dir := filepath.Dir(path)
	s.mu.Lock()
	err = os.MkdirAll(dir, 0o750)
	s.mu.Unlock()
	if err != nil {
		return "", xerrors.NewIoError("cannot create object shard directory", dir, "check filesystem permissions", err)
	}

	tmp, err := os.CreateTemp(dir, "obj-*.tmp")
	if err != nil {
		return "", xerrors.NewIoError("cannot create temp object file", dir, "check filesystem permissions and free space", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", xerrors.NewIoError("cannot write object", path, "check available disk space", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", xerrors.NewIoError("cannot fsync object", path, "check filesystem health", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", xerrors.NewIoError("cannot close temp object file", tmpPath, "", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		// Another writer may have raced us to the same hash; that's fine.
		if _, statErr := os.Stat(path); statErr == nil {
			_ = os.Remove(tmpPath)
			return hash, nil
		}
		_ = os.Remove(tmpPath)
		return "", xerrors.NewIoError("cannot finalize object", path, "check filesystem permissions", err)
	}

	return hash, nil
}

// WriteText is Write over the UTF-8 bytes of s.
func (s *Store) WriteText(text string) (string, error) {
	return s.Write([]byte(text))
}

// Read returns the bytes stored under hash, or a NotFound error if absent.
func (s *Store) Read(hash string) ([]byte, error) {
	path, err := s.pathFor(hash)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path) //nolint:gosec // path derived from validated hash
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.NewNotFoundError("object not found", hash, "the referenced blob may have been garbage collected", err)
		}
		return nil, xerrors.NewIoError("cannot read object", path, "check filesystem permissions", err)
	}
	return b, nil
}

// ReadText is Read decoded as a UTF-8 string.
func (s *Store) ReadText(hash string) (string, error) {
	b, err := s.Read(hash)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Exists reports whether an object with the given hash is present.
func (s *Store) Exists(hash string) bool {
	path, err := s.pathFor(hash)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Enumerate returns the hashes of every object currently stored. Shards or
// files that cannot be read are skipped and logged rather than causing the
// whole enumeration to fail, matching the core's "listing treats an
// unreadable entry as absent" error policy.
func (s *Store) Enumerate() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, xerrors.NewIoError("cannot list object store", s.root, "check filesystem permissions", err)
	}

	var hashes []string
	for _, shard := range entries {
		if !shard.IsDir() {
			continue
		}
		shardPath := filepath.Join(s.root, shard.Name())
		files, err := os.ReadDir(shardPath)
		if err != nil {
			s.logger.Warn("objectstore.enumerate.shard_unreadable", "shard", shard.Name(), "err", err)
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			hashes = append(hashes, shard.Name()+f.Name())
		}
	}
	return hashes, nil
}

// GC deletes every stored object whose hash is not present in live, and
// returns the number of bytes freed. A single unlink failure is logged and
// skipped; GC continues and reports bytes freed up to that point.
func (s *Store) GC(live map[string]struct{}) (int64, error) {
	hashes, err := s.Enumerate()
	if err != nil {
		return 0, err
	}

	var freed int64
	for _, hash := range hashes {
		if _, ok := live[hash]; ok {
			continue
		}
		path, err := s.pathFor(hash)
		if err != nil {
			continue
		}
		info, statErr := os.Stat(path)
		if statErr != nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn("objectstore.gc.unlink_failed", "hash", hash, "err", err)
			continue
		}
		freed += info.Size()
	}
	return freed, nil
}

// StorageSize returns the total number of bytes occupied by stored objects.
func (s *Store) StorageSize() (int64, error) {
	hashes, err := s.Enumerate()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, hash := range hashes {
		path, err := s.pathFor(hash)
		if err != nil {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

// ObjectCount returns the number of objects currently stored.
func (s *Store) ObjectCount() (int, error) {
	hashes, err := s.Enumerate()
	if err != nil {
		return 0, err
	}
	return len(hashes), nil
}

// Copy streams the object named by hash to w, useful for exporting a
// checkpoint's content without loading it fully into memory.
func (s *Store) Copy(hash string, w io.Writer) error {
	path, err := s.pathFor(hash)
	if err != nil {
		return err
	}
	f, err := os.Open(path) //nolint:gosec // path derived from validated hash
	if err != nil {
		if os.IsNotExist(err) {
			return xerrors.NewNotFoundError("object not found", hash, "the referenced blob may have been garbage collected", err)
		}
		return xerrors.NewIoError("cannot open object", path, "check filesystem permissions", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := io.Copy(w, f); err != nil {
		return xerrors.NewIoError("cannot stream object", path, "", err)
	}
	return nil
}
