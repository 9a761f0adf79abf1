// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package checkpoint implements the per-document checkpoint history
// described in spec.md §4.5: gated automatic checkpoints, bookmarks,
// restore, and retention, persisted as a parent-linked chain in one JSON
// file per document. Blob content (the Markdown text and Sidecar JSON) is
// handed to the Object Store as opaque bytes — this package has no
// dependency on pkg/serializer, mirroring the teacher's separation between
// pkg/ingestion's manifest (identity/diffing) and its blob-agnostic
// persistence helpers.
package checkpoint

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "github.com/midlightapp/midlight/internal/errors"
	"github.com/midlightapp/midlight/pkg/objectstore"
)

// Trigger identifies why a checkpoint was attempted.
type Trigger string

const (
	TriggerInterval   Trigger = "interval"
	TriggerBookmark   Trigger = "bookmark"
	TriggerFileOpen   Trigger = "file_open"
	TriggerFileClose  Trigger = "file_close"
	TriggerRestore    Trigger = "restore"
	TriggerDraftApply Trigger = "draft_apply"
	TriggerManual     Trigger = "manual"
)

// Kind is whether a Checkpoint is an auto-checkpoint or a user bookmark.
type Kind string

const (
	KindAuto     Kind = "auto"
	KindBookmark Kind = "bookmark"
)

// Stats are the size metrics recorded with each Checkpoint.
type Stats struct {
	Words      int `json:"words"`
	Chars      int `json:"chars"`
	ChangeSize int `json:"change_size"`
}

// Checkpoint is one saved version of a document (spec §3).
type Checkpoint struct {
	ID          string  `json:"id"`
	ContentHash string  `json:"content_hash"`
	SidecarHash string  `json:"sidecar_hash"`
	Timestamp   string  `json:"timestamp"`
	ParentID    *string `json:"parent_id"`
	Type        Kind    `json:"type"`
	Label       string  `json:"label,omitempty"`
	Stats       Stats   `json:"stats"`
	Trigger     Trigger `json:"trigger"`
}

// History is one document's parent-linked checkpoint chain (spec §3).
type History struct {
	FileKey     string       `json:"file_key"`
	HeadID      string       `json:"head_id"`
	Checkpoints []Checkpoint `json:"checkpoints"`
}

// Config is the subset of workspace config governing checkpoint behavior
// (spec §3's "versioning" block).
type Config struct {
	Enabled               bool
	CheckpointIntervalMs  int64
	MinChangeChars        int
	MaxCheckpointsPerFile int
	RetentionDays         int
}

// Content is a retrieved checkpoint's materialized payload.
type Content struct {
	Markdown string
	Sidecar  string
}

type lastSeen struct {
	time        time.Time
	contentHash string
}

// Manager implements the Checkpoint Manager (spec §4.5).
type Manager struct {
	root    string
	objects *objectstore.Store
	logger  *slog.Logger

	mu     sync.Mutex
	config Config
	last   map[string]lastSeen
}

// New returns a Manager persisting histories under root
// ("<workspace>/.midlight/checkpoints") and blobs via objects.
func New(root string, objects *objectstore.Store, config Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{root: root, objects: objects, config: config, logger: logger, last: map[string]lastSeen{}}
}

// Init ensures the checkpoints directory exists.
func (m *Manager) Init() error {
	if err := os.MkdirAll(m.root, 0o750); err != nil {
		return xerrors.NewIoError("cannot create checkpoints directory", m.root, "check filesystem permissions", err)
	}
	return nil
}

// UpdateConfig replaces the versioning configuration used by MaybeCreate
// and retention.
func (m *Manager) UpdateConfig(config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
}

// ClearTracking drops the in-memory last-checkpoint state for every file,
// forcing the next maybe_create call per key to re-evaluate from scratch.
func (m *Manager) ClearTracking() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = map[string]lastSeen{}
}

func safeKey(fileKey string) string {
	key := strings.ReplaceAll(fileKey, "\\", "_")
	key = strings.ReplaceAll(key, "/", "_")
	key = strings.TrimSuffix(key, ".md")
	return key
}

func (m *Manager) historyPath(fileKey string) string {
	return filepath.Join(m.root, safeKey(fileKey)+".json")
}

func newCheckpointID() string {
	return "cp-" + randomBase36(6)
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

// loadHistory reads a document's checkpoint history, returning an empty
// History (not an error) if none exists yet, per spec §4.1's "created
// lazily on first save" rule.
func (m *Manager) loadHistory(fileKey string) (History, error) {
	path := m.historyPath(fileKey)
	data, err := os.ReadFile(path) //nolint:gosec // path derived from a workspace-relative file key
	if err != nil {
		if os.IsNotExist(err) {
			return History{FileKey: fileKey, Checkpoints: []Checkpoint{}}, nil
		}
		return History{}, xerrors.NewIoError("cannot read checkpoint history", path, "", err)
	}
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return History{}, xerrors.NewInvalidFormatError("corrupt checkpoint history", path, "the history file may need manual repair or deletion", err)
	}
	if h.Checkpoints == nil {
		h.Checkpoints = []Checkpoint{}
	}
	return h, nil
}

func (m *Manager) saveHistory(h History) error {
	path := m.historyPath(h.FileKey)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return xerrors.NewIoError("cannot create checkpoint directory", filepath.Dir(path), "check filesystem permissions", err)
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return xerrors.NewInternalError("cannot encode checkpoint history", "", "", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "history-*.tmp")
	if err != nil {
		return xerrors.NewIoError("cannot create temp history file", path, "check filesystem permissions and free space", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return xerrors.NewIoError("cannot write checkpoint history", path, "", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return xerrors.NewIoError("cannot close temp history file", tmpPath, "", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return xerrors.NewIoError("cannot finalize checkpoint history", path, "check filesystem permissions", err)
	}
	return nil
}

func findCheckpoint(h History, id string) (Checkpoint, bool) {
	for _, c := range h.Checkpoints {
		if c.ID == id {
			return c, true
		}
	}
	return Checkpoint{}, false
}

func computeStats(markdown string, parent *Checkpoint) Stats {
	chars := len([]rune(markdown))
	words := len(strings.Fields(markdown))
	changeSize := chars
	if parent != nil {
		changeSize = abs(chars - parent.Stats.Chars)
	}
	return Stats{Words: words, Chars: chars, ChangeSize: changeSize}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// MaybeCreate applies the gating algorithm of spec §4.5 and, unless
// skipped, appends a checkpoint. Returns (nil, nil) when skipped.
func (m *Manager) MaybeCreate(fileKey, markdown, sidecar string, trigger Trigger, label string) (*Checkpoint, error) {
	m.mu.Lock()
	config := m.config
	last, hasLast := m.last[fileKey]
	m.mu.Unlock()

	if !config.Enabled && trigger != TriggerBookmark {
		return nil, nil
	}

	contentHash := objectstore.HashText(markdown)
	sidecarHash := objectstore.HashText(sidecar)

	if hasLast && last.contentHash == contentHash && trigger != TriggerBookmark {
		return nil, nil
	}

	exempt := trigger == TriggerBookmark || trigger == TriggerFileOpen
	now := time.Now().UTC()
	if !exempt && hasLast {
		if config.CheckpointIntervalMs > 0 && now.Sub(last.time) < time.Duration(config.CheckpointIntervalMs)*time.Millisecond {
			return nil, nil
		}
	}

	h, err := m.loadHistory(fileKey)
	if err != nil {
		return nil, err
	}

	var parent *Checkpoint
	if h.HeadID != "" {
		if c, ok := findCheckpoint(h, h.HeadID); ok {
			parent = &c
		}
	}

	if !exempt && hasLast && parent != nil && config.MinChangeChars > 0 {
		if prevMarkdown, err := m.objects.ReadText(last.contentHash); err == nil {
			if abs(len(markdown)-len(prevMarkdown)) < config.MinChangeChars {
				return nil, nil
			}
		}
	}

	if _, err := m.objects.WriteText(markdown); err != nil {
		return nil, err
	}
	if _, err := m.objects.WriteText(sidecar); err != nil {
		return nil, err
	}

	kind := KindAuto
	if trigger == TriggerBookmark {
		kind = KindBookmark
	}
	var parentID *string
	if h.HeadID != "" {
		id := h.HeadID
		parentID = &id
	}

	cp := Checkpoint{
		ID:          newCheckpointID(),
		ContentHash: contentHash,
		SidecarHash: sidecarHash,
		Timestamp:   now.Format(time.RFC3339),
		ParentID:    parentID,
		Type:        kind,
		Label:       label,
		Stats:       computeStats(markdown, parent),
		Trigger:     trigger,
	}
	h.Checkpoints = append(h.Checkpoints, cp)
	h.HeadID = cp.ID

	applyRetention(&h, config)

	if err := m.saveHistory(h); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.last[fileKey] = lastSeen{time: now, contentHash: contentHash}
	m.mu.Unlock()

	return &cp, nil
}

// ForceCreate always appends a checkpoint, bypassing the gating algorithm;
// used by the restore and draft-apply paths (spec §4.5).
func (m *Manager) ForceCreate(fileKey, markdown, sidecar string, trigger Trigger, label string) (*Checkpoint, error) {
	contentHash := objectstore.HashText(markdown)
	sidecarHash := objectstore.HashText(sidecar)

	h, err := m.loadHistory(fileKey)
	if err != nil {
		return nil, err
	}
	var parent *Checkpoint
	if h.HeadID != "" {
		if c, ok := findCheckpoint(h, h.HeadID); ok {
			parent = &c
		}
	}

	if _, err := m.objects.WriteText(markdown); err != nil {
		return nil, err
	}
	if _, err := m.objects.WriteText(sidecar); err != nil {
		return nil, err
	}

	kind := KindAuto
	if trigger == TriggerBookmark {
		kind = KindBookmark
	}
	var parentID *string
	if h.HeadID != "" {
		id := h.HeadID
		parentID = &id
	}

	now := time.Now().UTC()
	cp := Checkpoint{
		ID:          newCheckpointID(),
		ContentHash: contentHash,
		SidecarHash: sidecarHash,
		Timestamp:   now.Format(time.RFC3339),
		ParentID:    parentID,
		Type:        kind,
		Label:       label,
		Stats:       computeStats(markdown, parent),
		Trigger:     trigger,
	}
	h.Checkpoints = append(h.Checkpoints, cp)
	h.HeadID = cp.ID

	m.mu.Lock()
	config := m.config
	m.mu.Unlock()
	applyRetention(&h, config)

	if err := m.saveHistory(h); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.last[fileKey] = lastSeen{time: now, contentHash: contentHash}
	m.mu.Unlock()

	return &cp, nil
}

// applyRetention removes aged-out and over-cap auto-checkpoints in place,
// preserving bookmarks unconditionally (spec §4.5).
func applyRetention(h *History, config Config) {
	if config.RetentionDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -config.RetentionDays)
		kept := h.Checkpoints[:0]
		for _, c := range h.Checkpoints {
			if c.Type == KindBookmark {
				kept = append(kept, c)
				continue
			}
			ts, err := time.Parse(time.RFC3339, c.Timestamp)
			if err == nil && ts.Before(cutoff) {
				continue
			}
			kept = append(kept, c)
		}
		h.Checkpoints = kept
	}

	if config.MaxCheckpointsPerFile > 0 {
		autoIdx := make([]int, 0, len(h.Checkpoints))
		for i, c := range h.Checkpoints {
			if c.Type == KindAuto {
				autoIdx = append(autoIdx, i)
			}
		}
		if len(autoIdx) > config.MaxCheckpointsPerFile {
			sort.Slice(autoIdx, func(a, b int) bool {
				return h.Checkpoints[autoIdx[a]].Timestamp < h.Checkpoints[autoIdx[b]].Timestamp
			})
			excess := len(autoIdx) - config.MaxCheckpointsPerFile
			drop := map[int]bool{}
			for _, idx := range autoIdx[:excess] {
				drop[idx] = true
			}
			kept := h.Checkpoints[:0]
			for i, c := range h.Checkpoints {
				if !drop[i] {
					kept = append(kept, c)
				}
			}
			h.Checkpoints = kept
		}
	}

	if h.HeadID != "" {
		if _, ok := findCheckpoint(*h, h.HeadID); !ok {
			h.HeadID = newestID(h.Checkpoints)
		}
	}
}

func newestID(checkpoints []Checkpoint) string {
	if len(checkpoints) == 0 {
		return ""
	}
	best := checkpoints[0]
	for _, c := range checkpoints[1:] {
		if c.Timestamp > best.Timestamp {
			best = c
		}
	}
	return best.ID
}

// List returns fileKey's checkpoints newest first. Checkpoints sharing a
// (second-precision) timestamp are ordered latest-appended first.
func (m *Manager) List(fileKey string) ([]Checkpoint, error) {
	h, err := m.loadHistory(fileKey)
	if err != nil {
		return nil, err
	}
	out := make([]Checkpoint, len(h.Checkpoints))
	for i, c := range h.Checkpoints {
		out[len(out)-1-i] = c
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	return out, nil
}

// HeadID returns fileKey's current head checkpoint id, or "" if none.
func (m *Manager) HeadID(fileKey string) (string, error) {
	h, err := m.loadHistory(fileKey)
	if err != nil {
		return "", err
	}
	return h.HeadID, nil
}

// Content retrieves one checkpoint's Markdown and Sidecar blobs.
func (m *Manager) Content(fileKey, id string) (*Content, error) {
	h, err := m.loadHistory(fileKey)
	if err != nil {
		return nil, err
	}
	cp, ok := findCheckpoint(h, id)
	if !ok {
		return nil, xerrors.NewNotFoundError("checkpoint not found", id, "", nil)
	}
	markdown, err := m.objects.ReadText(cp.ContentHash)
	if err != nil {
		return nil, err
	}
	sidecar, err := m.objects.ReadText(cp.SidecarHash)
	if err != nil {
		return nil, err
	}
	return &Content{Markdown: markdown, Sidecar: sidecar}, nil
}

// Restore reads id's content and appends a new checkpoint with trigger
// "restore", labeled from the source's label or timestamp (spec §4.5).
func (m *Manager) Restore(fileKey, id string) (*Content, error) {
	h, err := m.loadHistory(fileKey)
	if err != nil {
		return nil, err
	}
	cp, ok := findCheckpoint(h, id)
	if !ok {
		return nil, xerrors.NewNotFoundError("checkpoint not found", id, "", nil)
	}
	markdown, err := m.objects.ReadText(cp.ContentHash)
	if err != nil {
		return nil, err
	}
	sidecar, err := m.objects.ReadText(cp.SidecarHash)
	if err != nil {
		return nil, err
	}

	source := cp.Label
	if source == "" {
		source = cp.Timestamp
	}
	label := fmt.Sprintf("Restored from: %s", source)
	if _, err := m.ForceCreate(fileKey, markdown, sidecar, TriggerRestore, label); err != nil {
		return nil, err
	}
	return &Content{Markdown: markdown, Sidecar: sidecar}, nil
}

// Label converts an auto-checkpoint into a bookmark.
func (m *Manager) Label(fileKey, id, label string) (bool, error) {
	h, err := m.loadHistory(fileKey)
	if err != nil {
		return false, err
	}
	found := false
	for i := range h.Checkpoints {
		if h.Checkpoints[i].ID == id {
			h.Checkpoints[i].Type = KindBookmark
			h.Checkpoints[i].Label = label
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}
	return true, m.saveHistory(h)
}

// Unlabel converts a bookmark back into a plain auto-checkpoint.
func (m *Manager) Unlabel(fileKey, id string) (bool, error) {
	h, err := m.loadHistory(fileKey)
	if err != nil {
		return false, err
	}
	found := false
	for i := range h.Checkpoints {
		if h.Checkpoints[i].ID == id {
			h.Checkpoints[i].Type = KindAuto
			h.Checkpoints[i].Label = ""
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}
	return true, m.saveHistory(h)
}

// Delete removes a checkpoint, re-parenting its child to its parent and
// advancing head if the deleted node was head (spec §4.5).
func (m *Manager) Delete(fileKey, id string) (bool, error) {
	h, err := m.loadHistory(fileKey)
	if err != nil {
		return false, err
	}

	target, ok := findCheckpoint(h, id)
	if !ok {
		return false, nil
	}

	kept := make([]Checkpoint, 0, len(h.Checkpoints))
	for _, c := range h.Checkpoints {
		if c.ID == id {
			continue
		}
		if c.ParentID != nil && *c.ParentID == id {
			c.ParentID = target.ParentID
		}
		kept = append(kept, c)
	}
	h.Checkpoints = kept

	if h.HeadID == id {
		h.HeadID = newestID(h.Checkpoints)
	}

	return true, m.saveHistory(h)
}

// Compare retrieves two checkpoints' content side by side.
func (m *Manager) Compare(fileKey, a, b string) (*Content, *Content, error) {
	ca, err := m.Content(fileKey, a)
	if err != nil {
		return nil, nil, err
	}
	cb, err := m.Content(fileKey, b)
	if err != nil {
		return nil, nil, err
	}
	return ca, cb, nil
}

// AllReferencedHashes returns the union of every content_hash and
// sidecar_hash across every history file, for GC liveness.
func (m *Manager) AllReferencedHashes() (map[string]struct{}, error) {
	live := map[string]struct{}{}
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return live, nil
		}
		return nil, xerrors.NewIoError("cannot list checkpoint histories", m.root, "", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.root, e.Name())) //nolint:gosec // enumerated from our own directory
		if err != nil {
			m.logger.Warn("checkpoint.all_referenced_hashes.read_failed", "file", e.Name(), "err", err)
			continue
		}
		var h History
		if err := json.Unmarshal(data, &h); err != nil {
			m.logger.Warn("checkpoint.all_referenced_hashes.parse_failed", "file", e.Name(), "err", err)
			continue
		}
		for _, c := range h.Checkpoints {
			live[c.ContentHash] = struct{}{}
			live[c.SidecarHash] = struct{}{}
		}
	}
	return live, nil
}
