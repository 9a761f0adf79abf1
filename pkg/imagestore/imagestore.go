// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package imagestore implements the image store described in spec §4.2:
// base64/buffer ingestion, content-hash dedup, and data-URL/buffer readback,
// all addressed by a 16-character hex prefix of the image's SHA-256.
package imagestore

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	xerrors "github.com/midlightapp/midlight/internal/errors"
)

const hashLen = 16

var dataURLPattern = regexp.MustCompile(`^data:image/([a-zA-Z0-9.+-]+);base64,(.+)$`)

// extForMIMESubtype maps an image MIME subtype (as found in a data URL or a
// Buffer call) to the file extension used on disk.
var extForMIMESubtype = map[string]string{
	"jpeg": "jpg",
	"jpg":  "jpg",
	"png":  "png",
	"gif":  "gif",
	"webp": "webp",
	"svg+xml": "svg",
	"svg": "svg",
}

// Info describes one stored image, mirroring spec §3's Image record.
type Info struct {
	Ref          string `json:"ref"`
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name,omitempty"`
	SizeBytes    int64  `json:"size_bytes"`
	MimeType     string `json:"mime_type"`
}

// Store is an image store rooted at a directory, normally
// "<workspace>/.midlight/images".
type Store struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]string // hash16 -> filename, populated lazily
}

// New returns a Store rooted at root. Call Init before first use.
func New(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger}
}

// Init ensures the images directory exists.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return xerrors.NewIoError("cannot create image store directory", s.root, "check filesystem permissions", err)
	}
	return nil
}

func hash16(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:hashLen]
}

func extFor(mimeSubtype string) string {
	if ext, ok := extForMIMESubtype[mimeSubtype]; ok {
		return ext
	}
	return mimeSubtype
}

// mimeSubtype extracts "png" from "image/png".
func mimeSubtype(mime string) string {
	parts := strings.SplitN(mime, "/", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return mime
}

// StoreDataURL parses a "data:image/<fmt>;base64,<b64>" URL, writes the
// decoded bytes (deduped by content hash), and returns its ref and Info.
func (s *Store) StoreDataURL(dataURL, originalName string) (string, Info, error) {
	m := dataURLPattern.FindStringSubmatch(dataURL)
	if m == nil {
		return "", Info{}, xerrors.NewInvalidFormatError(
			"malformed image data URL",
			"expected data:image/<format>;base64,<data>",
			"check that the editor produced a well-formed data URL",
			nil,
		)
	}
	subtype, b64 := m[1], m[2]
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", Info{}, xerrors.NewInvalidFormatError("malformed base64 image data", "", "", err)
	}
	return s.storeBytes(raw, "image/"+subtype, originalName)
}

// StoreBuffer writes raw image bytes with an explicit MIME type, deduped by
// content hash.
func (s *Store) StoreBuffer(raw []byte, mime, originalName string) (string, Info, error) {
	return s.storeBytes(raw, mime, originalName)
}

func (s *Store) storeBytes(raw []byte, mime, originalName string) (string, Info, error) {
	h := hash16(raw)
	ref := "@img:" + h
	ext := extFor(mimeSubtype(mime))
	filename := h + "." + ext

	if existing, err := s.findFilename(h); err == nil && existing != "" {
		return ref, Info{
			Ref: ref, Filename: existing, OriginalName: originalName,
			SizeBytes: int64(len(raw)), MimeType: mime,
		}, nil
	}

	path := filepath.Join(s.root, filename)
	tmp, err := os.CreateTemp(s.root, "img-*.tmp")
	if err != nil {
		return "", Info{}, xerrors.NewIoError("cannot create temp image file", s.root, "check filesystem permissions and free space", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", Info{}, xerrors.NewIoError("cannot write image", path, "check available disk space", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", Info{}, xerrors.NewIoError("cannot close temp image file", tmpPath, "", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", Info{}, xerrors.NewIoError("cannot finalize image", path, "check filesystem permissions", err)
	}

	s.mu.Lock()
	if s.cache != nil {
		s.cache[h] = filename
	}
	s.mu.Unlock()

	return ref, Info{
		Ref: ref, Filename: filename, OriginalName: originalName,
		SizeBytes: int64(len(raw)), MimeType: mime,
	}, nil
}

// refHash extracts the hash16 from a "@img:<hash16>" ref.
func refHash(ref string) (string, error) {
	h, ok := strings.CutPrefix(ref, "@img:")
	if !ok || len(h) != hashLen {
		return "", xerrors.NewInvalidFormatError("malformed image ref", ref, `expected "@img:<16-hex-char-hash>"`, nil)
	}
	return h, nil
}

// findFilename locates the on-disk filename for a hash16 prefix, first
// consulting the in-memory cache and falling back to a directory scan.
func (s *Store) findFilename(h string) (string, error) {
	s.mu.Lock()
	if s.cache == nil {
		s.mu.Unlock()
		if err := s.rebuildCache(); err != nil {
			return "", err
		}
		s.mu.Lock()
	}
	filename := s.cache[h]
	s.mu.Unlock()
	if filename != "" {
		return filename, nil
	}
	return "", nil
}

func (s *Store) rebuildCache() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.cache = map[string]string{}
			s.mu.Unlock()
			return nil
		}
		return xerrors.NewIoError("cannot list image store", s.root, "check filesystem permissions", err)
	}
	cache := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || len(e.Name()) < hashLen {
			continue
		}
		cache[e.Name()[:hashLen]] = e.Name()
	}
	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()
	return nil
}

// Exists reports whether ref is backed by a file on disk.
func (s *Store) Exists(ref string) bool {
	h, err := refHash(ref)
	if err != nil {
		return false
	}
	filename, err := s.findFilename(h)
	return err == nil && filename != ""
}

// Info returns the stored metadata for ref. SizeBytes and MimeType are
// derived from the file on disk since they are not tracked separately.
func (s *Store) Info(ref string) (Info, error) {
	h, err := refHash(ref)
	if err != nil {
		return Info{}, err
	}
	filename, err := s.findFilename(h)
	if err != nil {
		return Info{}, err
	}
	if filename == "" {
		return Info{}, xerrors.NewNotFoundError("image not found", ref, "the referenced image may have been garbage collected", nil)
	}
	path := filepath.Join(s.root, filename)
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, xerrors.NewIoError("cannot stat image", path, "", err)
	}
	ext := filename[strings.LastIndex(filename, ".")+1:]
	return Info{Ref: ref, Filename: filename, SizeBytes: st.Size(), MimeType: "image/" + mimeForExt(ext)}, nil
}

func mimeForExt(ext string) string {
	switch ext {
	case "jpg":
		return "jpeg"
	default:
		return ext
	}
}

// Buffer returns the raw bytes and MIME type for ref.
func (s *Store) Buffer(ref string) ([]byte, string, error) {
	info, err := s.Info(ref)
	if err != nil {
		return nil, "", err
	}
	path := filepath.Join(s.root, info.Filename)
	b, err := os.ReadFile(path) //nolint:gosec // path derived from validated ref
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", xerrors.NewNotFoundError("image not found", ref, "the referenced image may have been garbage collected", err)
		}
		return nil, "", xerrors.NewIoError("cannot read image", path, "", err)
	}
	return b, info.MimeType, nil
}

// DataURL returns ref's content re-encoded as a data URL, or ("", nil) if
// absent.
func (s *Store) DataURL(ref string) (string, error) {
	b, mime, err := s.Buffer(ref)
	if err != nil {
		if xerrors.Of(err) == xerrors.NotFound {
			return "", nil
		}
		return "", err
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(b)), nil
}

// AllRefs returns every ref currently stored.
func (s *Store) AllRefs() ([]string, error) {
	if err := s.rebuildCache(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := make([]string, 0, len(s.cache))
	for h := range s.cache {
		refs = append(refs, "@img:"+h)
	}
	return refs, nil
}

// GC deletes every stored image whose hash16 is not present in liveRefs
// (each a "@img:<hash16>" string), returning bytes freed.
func (s *Store) GC(liveRefs map[string]struct{}) (int64, error) {
	live := make(map[string]struct{}, len(liveRefs))
	for ref := range liveRefs {
		if h, err := refHash(ref); err == nil {
			live[h] = struct{}{}
		}
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, xerrors.NewIoError("cannot list image store", s.root, "", err)
	}

	var freed int64
	for _, e := range entries {
		if e.IsDir() || len(e.Name()) < hashLen {
			continue
		}
		h := e.Name()[:hashLen]
		if _, ok := live[h]; ok {
			continue
		}
		path := filepath.Join(s.root, e.Name())
		info, statErr := e.Info()
		if statErr != nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn("imagestore.gc.unlink_failed", "file", e.Name(), "err", err)
			continue
		}
		freed += info.Size()
	}

	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
	return freed, nil
}

// CopyTo writes ref's bytes to destPath, returning false if ref is absent.
func (s *Store) CopyTo(ref, destPath string) (bool, error) {
	b, _, err := s.Buffer(ref)
	if err != nil {
		if xerrors.Of(err) == xerrors.NotFound {
			return false, nil
		}
		return false, err
	}
	if err := os.WriteFile(destPath, b, 0o640); err != nil {
		return false, xerrors.NewIoError("cannot write image export", destPath, "check filesystem permissions", err)
	}
	return true, nil
}
