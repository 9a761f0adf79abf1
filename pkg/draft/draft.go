// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package draft implements branch-like document drafts (spec.md §4.6):
// each draft carries its own independent, capped checkpoint chain rooted
// at a snapshot of a main-line checkpoint, stored under its own file
// separate from the document's main checkpoint history.
package draft

import (
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "github.com/midlightapp/midlight/internal/errors"
	"github.com/midlightapp/midlight/pkg/checkpoint"
	"github.com/midlightapp/midlight/pkg/objectstore"
)

// maxChainLength caps a draft's inline checkpoint chain (spec §4.6).
const maxChainLength = 20

// Status is a draft's lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusMerged   Status = "merged"
	StatusArchived Status = "archived"
)

// Draft is a named branch-like history rooted at a snapshot of some
// checkpoint of a document (spec §3).
type Draft struct {
	ID                 string                  `json:"id"`
	Name               string                  `json:"name"`
	FileKey            string                  `json:"file_key"`
	SourceCheckpointID string                  `json:"source_checkpoint_id"`
	HeadID             string                  `json:"head_id"`
	Checkpoints        []checkpoint.Checkpoint `json:"checkpoints"`
	Created            string                  `json:"created"`
	Modified           string                  `json:"modified"`
	Status             Status                  `json:"status"`
}

// file is the on-disk draft file envelope (spec §6).
type file struct {
	Version int   `json:"version"`
	Draft   Draft `json:"draft"`
}

const fileVersion = 1

// Manager implements the Draft Manager (spec §4.6).
type Manager struct {
	root    string // "<workspace>/.midlight/drafts"
	objects *objectstore.Store

	mu sync.Mutex
}

// New returns a Manager persisting drafts under root and blobs via objects.
func New(root string, objects *objectstore.Store) *Manager {
	return &Manager{root: root, objects: objects}
}

// Init ensures the drafts directory exists.
func (m *Manager) Init() error {
	if err := os.MkdirAll(m.root, 0o750); err != nil {
		return xerrors.NewIoError("cannot create drafts directory", m.root, "check filesystem permissions", err)
	}
	return nil
}

func safeKey(fileKey string) string {
	key := strings.ReplaceAll(fileKey, "\\", "_")
	key = strings.ReplaceAll(key, "/", "_")
	key = strings.TrimSuffix(key, ".md")
	return key
}

func (m *Manager) dirFor(fileKey string) string {
	return filepath.Join(m.root, safeKey(fileKey))
}

func (m *Manager) pathFor(fileKey, draftID string) string {
	return filepath.Join(m.dirFor(fileKey), draftID+".json")
}

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func randomBase36(n int) string {
	buf := make([]byte, n)
	out := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		for i := range out {
			out[i] = base36Alphabet[0]
		}
		return string(out)
	}
	for i, b := range buf {
		out[i] = base36Alphabet[int(b)%len(base36Alphabet)]
	}
	return string(out)
}

func newDraftID() string {
	return "draft-" + randomBase36(8)
}

func newDraftCheckpointID() string {
	return "dcp-" + randomBase36(6)
}

// Create starts a new draft named name, rooted at a snapshot of
// sourceCheckpointID's content. The snapshot is re-hashed and stored so
// the draft's first checkpoint has its own independent blob references.
func (m *Manager) Create(fileKey, name, sourceCheckpointID, markdown, sidecar string) (*Draft, error) {
	contentHash, err := m.objects.WriteText(markdown)
	if err != nil {
		return nil, err
	}
	sidecarHash, err := m.objects.WriteText(sidecar)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	cp := checkpoint.Checkpoint{
		ID:          newDraftCheckpointID(),
		ContentHash: contentHash,
		SidecarHash: sidecarHash,
		Timestamp:   now,
		ParentID:    nil,
		Type:        checkpoint.KindAuto,
		Stats:       checkpoint.Stats{Chars: len([]rune(markdown)), Words: len(strings.Fields(markdown))},
		Trigger:     checkpoint.TriggerManual,
	}

	d := Draft{
		ID:                 newDraftID(),
		Name:               name,
		FileKey:            fileKey,
		SourceCheckpointID: sourceCheckpointID,
		HeadID:             cp.ID,
		Checkpoints:        []checkpoint.Checkpoint{cp},
		Created:            now,
		Modified:           now,
		Status:             StatusActive,
	}

	if err := m.save(d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (m *Manager) load(fileKey, draftID string) (Draft, error) {
	path := m.pathFor(fileKey, draftID)
	data, err := os.ReadFile(path) //nolint:gosec // path derived from a workspace-relative file key and draft id
	if err != nil {
		if os.IsNotExist(err) {
			return Draft{}, xerrors.NewNotFoundError("draft not found", draftID, "", err)
		}
		return Draft{}, xerrors.NewIoError("cannot read draft", path, "", err)
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return Draft{}, xerrors.NewInvalidFormatError("corrupt draft file", path, "the draft may need manual repair or deletion", err)
	}
	return f.Draft, nil
}

func (m *Manager) save(d Draft) error {
	path := m.pathFor(d.FileKey, d.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return xerrors.NewIoError("cannot create draft directory", filepath.Dir(path), "check filesystem permissions", err)
	}
	data, err := json.MarshalIndent(file{Version: fileVersion, Draft: d}, "", "  ")
	if err != nil {
		return xerrors.NewInternalError("cannot encode draft", "", "", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "draft-*.tmp")
	if err != nil {
		return xerrors.NewIoError("cannot create temp draft file", path, "check filesystem permissions and free space", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return xerrors.NewIoError("cannot write draft", path, "", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return xerrors.NewIoError("cannot close temp draft file", tmpPath, "", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return xerrors.NewIoError("cannot finalize draft", path, "check filesystem permissions", err)
	}
	return nil
}

func findCheckpoint(d Draft, id string) (checkpoint.Checkpoint, bool) {
	for _, c := range d.Checkpoints {
		if c.ID == id {
			return c, true
		}
	}
	return checkpoint.Checkpoint{}, false
}

// SaveContent appends a new checkpoint to the draft's chain unless the new
// content hashes equal the current head's, per spec §4.6. Returns (nil,
// nil) when there was no change.
func (m *Manager) SaveContent(fileKey, draftID, markdown, sidecar string) (*checkpoint.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.load(fileKey, draftID)
	if err != nil {
		return nil, err
	}

	contentHash := objectstore.HashText(markdown)
	if head, ok := findCheckpoint(d, d.HeadID); ok && head.ContentHash == contentHash {
		return nil, nil
	}

	sidecarHash, err := m.objects.WriteText(sidecar)
	if err != nil {
		return nil, err
	}
	if _, err := m.objects.WriteText(markdown); err != nil {
		return nil, err
	}

	var parent *checkpoint.Checkpoint
	if head, ok := findCheckpoint(d, d.HeadID); ok {
		parent = &head
	}
	chars := len([]rune(markdown))
	changeSize := chars
	if parent != nil {
		changeSize = abs(chars - parent.Stats.Chars)
	}

	var parentID *string
	if d.HeadID != "" {
		id := d.HeadID
		parentID = &id
	}

	now := time.Now().UTC().Format(time.RFC3339)
	cp := checkpoint.Checkpoint{
		ID:          newDraftCheckpointID(),
		ContentHash: contentHash,
		SidecarHash: sidecarHash,
		Timestamp:   now,
		ParentID:    parentID,
		Type:        checkpoint.KindAuto,
		Stats:       checkpoint.Stats{Chars: chars, Words: len(strings.Fields(markdown)), ChangeSize: changeSize},
		Trigger:     checkpoint.TriggerManual,
	}

	d.Checkpoints = append(d.Checkpoints, cp)
	d.HeadID = cp.ID
	d.Modified = now

	if len(d.Checkpoints) > maxChainLength {
		drop := len(d.Checkpoints) - maxChainLength
		sort.SliceStable(d.Checkpoints, func(i, j int) bool { return d.Checkpoints[i].Timestamp < d.Checkpoints[j].Timestamp })
		d.Checkpoints = d.Checkpoints[drop:]
	}

	if err := m.save(d); err != nil {
		return nil, err
	}
	return &cp, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Get returns one draft's full record.
func (m *Manager) Get(fileKey, draftID string) (*Draft, error) {
	d, err := m.load(fileKey, draftID)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// List returns every draft stored for fileKey.
func (m *Manager) List(fileKey string) ([]Draft, error) {
	dir := m.dirFor(fileKey)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, xerrors.NewIoError("cannot list drafts", dir, "", err)
	}
	var drafts []Draft
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		d, err := m.load(fileKey, id)
		if err != nil {
			continue
		}
		drafts = append(drafts, d)
	}
	sort.SliceStable(drafts, func(i, j int) bool { return drafts[i].Created > drafts[j].Created })
	return drafts, nil
}

// Content retrieves one draft checkpoint's Markdown and Sidecar blobs.
func (m *Manager) Content(fileKey, draftID, checkpointID string) (*checkpoint.Content, error) {
	d, err := m.load(fileKey, draftID)
	if err != nil {
		return nil, err
	}
	cp, ok := findCheckpoint(d, checkpointID)
	if !ok {
		return nil, xerrors.NewNotFoundError("draft checkpoint not found", checkpointID, "", nil)
	}
	markdown, err := m.objects.ReadText(cp.ContentHash)
	if err != nil {
		return nil, err
	}
	sidecar, err := m.objects.ReadText(cp.SidecarHash)
	if err != nil {
		return nil, err
	}
	return &checkpoint.Content{Markdown: markdown, Sidecar: sidecar}, nil
}

// HeadContent retrieves a draft's current head content.
func (m *Manager) HeadContent(fileKey, draftID string) (*checkpoint.Content, error) {
	d, err := m.load(fileKey, draftID)
	if err != nil {
		return nil, err
	}
	return m.Content(fileKey, draftID, d.HeadID)
}

// Apply returns the draft's head content and transitions it to merged; the
// Workspace Coordinator is responsible for writing the content back to the
// main document and recording a main-line checkpoint (spec §4.6).
func (m *Manager) Apply(fileKey, draftID string) (*checkpoint.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.load(fileKey, draftID)
	if err != nil {
		return nil, err
	}
	content, err := m.Content(fileKey, draftID, d.HeadID)
	if err != nil {
		return nil, err
	}
	d.Status = StatusMerged
	d.Modified = time.Now().UTC().Format(time.RFC3339)
	if err := m.save(d); err != nil {
		return nil, err
	}
	return content, nil
}

// Discard archives a draft without deleting its file, for auditability.
func (m *Manager) Discard(fileKey, draftID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.load(fileKey, draftID)
	if err != nil {
		return err
	}
	d.Status = StatusArchived
	d.Modified = time.Now().UTC().Format(time.RFC3339)
	return m.save(d)
}

// Delete unlinks a draft's file entirely.
func (m *Manager) Delete(fileKey, draftID string) error {
	path := m.pathFor(fileKey, draftID)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xerrors.NewIoError("cannot delete draft", path, "check filesystem permissions", err)
	}
	return nil
}

// AllReferencedHashes returns the union of every content_hash and
// sidecar_hash across every draft file, for GC liveness.
func (m *Manager) AllReferencedHashes() (map[string]struct{}, error) {
	live := map[string]struct{}{}
	fileKeyDirs, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return live, nil
		}
		return nil, xerrors.NewIoError("cannot list drafts root", m.root, "", err)
	}
	for _, dirEntry := range fileKeyDirs {
		if !dirEntry.IsDir() {
			continue
		}
		draftDir := filepath.Join(m.root, dirEntry.Name())
		entries, err := os.ReadDir(draftDir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(draftDir, e.Name())) //nolint:gosec // enumerated from our own directory
			if err != nil {
				continue
			}
			var f file
			if err := json.Unmarshal(data, &f); err != nil {
				continue
			}
			for _, c := range f.Draft.Checkpoints {
				live[c.ContentHash] = struct{}{}
				live[c.SidecarHash] = struct{}{}
			}
		}
	}
	return live, nil
}
