// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package workspace implements the Workspace Coordinator (spec §4.7): the
// top-level object that owns one workspace root's ".midlight" state and
// ties together the Object Store, Image Store, Recovery Manager, Checkpoint
// Manager, and Draft Manager behind the load/save/gc operations the CLI and
// editor actually call.
package workspace

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	xerrors "github.com/midlightapp/midlight/internal/errors"
	"github.com/midlightapp/midlight/pkg/checkpoint"
	"github.com/midlightapp/midlight/pkg/docmodel"
	"github.com/midlightapp/midlight/pkg/draft"
	"github.com/midlightapp/midlight/pkg/imagestore"
	"github.com/midlightapp/midlight/pkg/objectstore"
	"github.com/midlightapp/midlight/pkg/recovery"
	"github.com/midlightapp/midlight/pkg/serializer"
)

// dirName is the hidden directory holding all workspace state, mirroring
// the teacher's ".cie" convention (spec §3).
const dirName = ".midlight"

// LoadResult is what Load reports back to the caller (spec §4.7).
type LoadResult struct {
	Doc              docmodel.Doc
	Sidecar          serializer.Sidecar
	Existed          bool
	HasRecovery      bool
	RecoveryTime     time.Time
}

// SaveResult is what Save reports back to the caller (spec §4.7).
type SaveResult struct {
	Success          bool
	CheckpointCreated *checkpoint.Checkpoint
}

// GCResult summarizes the bytes freed by one RunGC pass.
type GCResult struct {
	ObjectBytesFreed int64
	ImageBytesFreed  int64
}

// Workspace coordinates every subsystem rooted at one ".midlight"
// directory (spec §4.7).
type Workspace struct {
	root     string // the project directory containing ".midlight"
	midlight string // root + "/.midlight"
	logger   *slog.Logger

	Objects    *objectstore.Store
	Images     *imagestore.Store
	Recovery   *recovery.Manager
	Checkpoints *checkpoint.Manager
	Drafts     *draft.Manager

	mu     sync.Mutex
	config Config
}

var (
	registryMu sync.Mutex
	registry   = map[string]*Workspace{}
)

// Open returns the Workspace for root, constructing and initializing one
// the first time root is seen and reusing it afterward, so every caller in
// a process shares one set of in-memory WAL tasks and gating state for a
// given project directory (spec §4.7).
func Open(root string, logger *slog.Logger) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, xerrors.NewIoError("cannot resolve workspace path", root, "", err)
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if w, ok := registry[abs]; ok {
		return w, nil
	}

	w, err := newWorkspace(abs, logger)
	if err != nil {
		return nil, err
	}
	if err := w.Init(); err != nil {
		return nil, err
	}
	registry[abs] = w
	return w, nil
}

// Clear stops every cached Workspace's WAL timers and drops the registry
// (spec §9, SPEC_FULL.md §10). Used to reset state between tests and by
// any host process that needs a clean shutdown of all open workspaces.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, w := range registry {
		w.Recovery.StopAllWAL()
	}
	registry = map[string]*Workspace{}
}

func newWorkspace(root string, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}
	midlight := filepath.Join(root, dirName)
	w := &Workspace{
		root:     root,
		midlight: midlight,
		logger:   logger,
		Objects:  objectstore.New(filepath.Join(midlight, "objects"), logger),
		Images:   imagestore.New(filepath.Join(midlight, "images"), logger),
		Recovery: recovery.New(filepath.Join(midlight, "recovery"), 5*time.Second, logger),
	}
	return w, nil
}

// Init creates every ".midlight" subdirectory and initializes every
// subcomponent, loading (or writing, on first run) config.json. Safe to
// call more than once.
func (w *Workspace) Init() error {
	if err := os.MkdirAll(w.midlight, 0o750); err != nil {
		return xerrors.NewIoError("cannot create workspace directory", w.midlight, "check filesystem permissions", err)
	}
	if err := os.MkdirAll(filepath.Join(w.midlight, "sidecars"), 0o750); err != nil {
		return xerrors.NewIoError("cannot create sidecars directory", filepath.Join(w.midlight, "sidecars"), "check filesystem permissions", err)
	}

	cfg, err := loadOrInitConfig(w.midlight)
	if err != nil {
		return err
	}

	if err := w.Objects.Init(); err != nil {
		return err
	}
	if err := w.Images.Init(); err != nil {
		return err
	}

	w.Recovery = recovery.New(filepath.Join(w.midlight, "recovery"), time.Duration(cfg.Recovery.WALIntervalMs)*time.Millisecond, w.logger)
	if err := w.Recovery.Init(); err != nil {
		return err
	}

	w.Checkpoints = checkpoint.New(filepath.Join(w.midlight, "checkpoints"), w.Objects, toCheckpointConfig(cfg.Versioning), w.logger)
	if err := w.Checkpoints.Init(); err != nil {
		return err
	}

	w.Drafts = draft.New(filepath.Join(w.midlight, "drafts"), w.Objects)
	if err := w.Drafts.Init(); err != nil {
		return err
	}

	w.mu.Lock()
	w.config = cfg
	w.mu.Unlock()
	return nil
}

func toCheckpointConfig(v VersioningConfig) checkpoint.Config {
	return checkpoint.Config{
		Enabled:               v.Enabled,
		CheckpointIntervalMs:  v.CheckpointIntervalMs,
		MinChangeChars:        v.MinChangeChars,
		MaxCheckpointsPerFile: v.MaxCheckpointsPerFile,
		RetentionDays:         v.RetentionDays,
	}
}

// Config returns the workspace's current configuration.
func (w *Workspace) Config() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.config
}

// UpdateConfig persists a new configuration and propagates the versioning
// settings to the Checkpoint Manager immediately (spec §4.7).
func (w *Workspace) UpdateConfig(cfg Config) error {
	if err := saveConfig(w.midlight, cfg); err != nil {
		return err
	}
	w.Checkpoints.UpdateConfig(toCheckpointConfig(cfg.Versioning))
	w.mu.Lock()
	w.config = cfg
	w.mu.Unlock()
	return nil
}

func fileKey(filePath string) string {
	return filepath.ToSlash(filePath)
}

func safeKey(key string) string {
	s := strings.ReplaceAll(key, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return strings.TrimSuffix(s, ".md")
}

func (w *Workspace) sidecarPath(key string) string {
	return filepath.Join(w.midlight, "sidecars", safeKey(key)+".json")
}

func (w *Workspace) resolvePath(filePath string) string {
	if filepath.IsAbs(filePath) {
		return filePath
	}
	return filepath.Join(w.root, filePath)
}

func (w *Workspace) loadSidecar(key string) (serializer.Sidecar, bool, error) {
	path := w.sidecarPath(key)
	data, err := os.ReadFile(path) //nolint:gosec // path derived from safeKey
	if err != nil {
		if os.IsNotExist(err) {
			return serializer.NewSidecar(), false, nil
		}
		return serializer.Sidecar{}, false, xerrors.NewIoError("cannot read sidecar", path, "", err)
	}
	var sc serializer.Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return serializer.Sidecar{}, false, xerrors.NewInvalidFormatError("corrupt sidecar", path, "the sidecar may need manual repair or deletion", err)
	}
	return sc, true, nil
}

func (w *Workspace) saveSidecar(key string, sc serializer.Sidecar) error {
	path := w.sidecarPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return xerrors.NewIoError("cannot create sidecars directory", filepath.Dir(path), "check filesystem permissions", err)
	}
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return xerrors.NewInternalError("cannot encode sidecar", "", "", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "sidecar-*.tmp")
	if err != nil {
		return xerrors.NewIoError("cannot create temp sidecar file", path, "check filesystem permissions and free space", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return xerrors.NewIoError("cannot write sidecar", path, "", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return xerrors.NewIoError("cannot close temp sidecar file", tmpPath, "", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return xerrors.NewIoError("cannot finalize sidecar", path, "check filesystem permissions", err)
	}
	return nil
}

// Load reads filePath's Markdown (empty string if absent), loads its
// Sidecar (a fresh default if absent), deserializes the two into a Doc,
// and reports whether a WAL exists for it and, if so, its timestamp
// (spec §4.7).
func (w *Workspace) Load(filePath string) (*LoadResult, error) {
	key := fileKey(filePath)
	abs := w.resolvePath(filePath)

	markdown := ""
	existed := false
	data, err := os.ReadFile(abs) //nolint:gosec // caller-supplied project-relative path
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, xerrors.NewIoError("cannot read document", abs, "", err)
		}
	} else {
		markdown = string(data)
		existed = true
	}

	sc, _, err := w.loadSidecar(key)
	if err != nil {
		return nil, err
	}

	doc, err := serializer.Deserialize(markdown, sc, w.Images)
	if err != nil {
		return nil, err
	}

	result := &LoadResult{Doc: doc, Sidecar: sc, Existed: existed}
	if ts, ok := w.Recovery.RecoveryTimestamp(key); ok {
		result.HasRecovery = true
		result.RecoveryTime = ts
	}
	return result, nil
}

// LoadFromRecovery returns the WAL content for filePath deserialized into
// a Doc, without touching the on-disk document or clearing the WAL. The
// caller applies it and then calls Save or DiscardRecovery (spec §4.3).
func (w *Workspace) LoadFromRecovery(filePath string) (*LoadResult, error) {
	key := fileKey(filePath)
	content, ok := w.Recovery.RecoveryContent(key)
	if !ok {
		return nil, xerrors.NewNotFoundError("no recovery content for file", key, "", nil)
	}
	sc, _, err := w.loadSidecar(key)
	if err != nil {
		return nil, err
	}
	doc, err := serializer.Deserialize(content, sc, w.Images)
	if err != nil {
		return nil, err
	}
	result := &LoadResult{Doc: doc, Sidecar: sc, Existed: true, HasRecovery: true}
	if ts, ok := w.Recovery.RecoveryTimestamp(key); ok {
		result.RecoveryTime = ts
	}
	return result, nil
}

// DiscardRecovery deletes filePath's WAL without applying it.
func (w *Workspace) DiscardRecovery(filePath string) error {
	return w.Recovery.DiscardRecovery(fileKey(filePath))
}

// Save serializes tree back to Markdown (preserving user-entered Sidecar
// metadata such as Tags/Created), writes both the Markdown file and its
// Sidecar atomically, clears the file's WAL, and asks the Checkpoint
// Manager whether this save warrants a new checkpoint (spec §4.7).
func (w *Workspace) Save(filePath string, tree docmodel.Doc, trigger checkpoint.Trigger) (*SaveResult, error) {
	key := fileKey(filePath)
	abs := w.resolvePath(filePath)

	existingSidecar, _, err := w.loadSidecar(key)
	if err != nil {
		return nil, err
	}

	markdown, sc, err := serializer.Serialize(tree, w.Images, existingSidecar.Meta)
	if err != nil {
		return nil, err
	}
	if sc.Meta.Created == "" {
		sc.Meta.Created = time.Now().UTC().Format(time.RFC3339)
	}
	sc.Meta.Modified = time.Now().UTC().Format(time.RFC3339)

	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return nil, xerrors.NewIoError("cannot create document directory", filepath.Dir(abs), "check filesystem permissions", err)
	}
	if err := atomicWriteFile(abs, []byte(markdown)); err != nil {
		return nil, err
	}
	if err := w.saveSidecar(key, sc); err != nil {
		return nil, err
	}

	if err := w.Recovery.ClearWAL(key); err != nil {
		return nil, err
	}

	sidecarJSON, err := json.Marshal(sc)
	if err != nil {
		return nil, xerrors.NewInternalError("cannot encode sidecar for checkpoint", "", "", err)
	}

	cp, err := w.Checkpoints.MaybeCreate(key, markdown, string(sidecarJSON), trigger, "")
	if err != nil {
		return nil, err
	}
	return &SaveResult{Success: true, CheckpointCreated: cp}, nil
}

// ApplyDraft writes a draft's current head content back over the main
// document and records a main-line checkpoint for it (spec §4.6). Unlike a
// hand-rolled CLI write, this goes through the same atomic writer as Save
// and refreshes the document's sidecar to match the applied content, so a
// subsequent Load never deserializes new Markdown against a stale sidecar.
func (w *Workspace) ApplyDraft(filePath, draftID string) (*SaveResult, error) {
	key := fileKey(filePath)
	abs := w.resolvePath(filePath)

	content, err := w.Drafts.Apply(key, draftID)
	if err != nil {
		return nil, err
	}

	var sc serializer.Sidecar
	if err := json.Unmarshal([]byte(content.Sidecar), &sc); err != nil {
		return nil, xerrors.NewInvalidFormatError("cannot decode draft sidecar", draftID, "", err)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return nil, xerrors.NewIoError("cannot create document directory", filepath.Dir(abs), "check filesystem permissions", err)
	}
	if err := atomicWriteFile(abs, []byte(content.Markdown)); err != nil {
		return nil, err
	}
	if err := w.saveSidecar(key, sc); err != nil {
		return nil, err
	}
	if err := w.Recovery.ClearWAL(key); err != nil {
		return nil, err
	}

	cp, err := w.Checkpoints.ForceCreate(key, content.Markdown, content.Sidecar, checkpoint.TriggerDraftApply, "")
	if err != nil {
		return nil, err
	}
	return &SaveResult{Success: true, CheckpointCreated: cp}, nil
}

func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "doc-*.tmp")
	if err != nil {
		return xerrors.NewIoError("cannot create temp document file", dir, "check filesystem permissions", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return xerrors.NewIoError("cannot write document", path, "", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return xerrors.NewIoError("cannot close temp document file", tmpPath, "", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return xerrors.NewIoError("cannot finalize document", path, "check filesystem permissions", err)
	}
	return nil
}

// RunGC computes the union of every blob hash and image ref still
// referenced by a live checkpoint, draft, or sidecar, then sweeps the
// Object Store and Image Store of everything else. WAL files, history
// files, and sidecars are never touched by GC (spec §4.2, invariant I2).
func (w *Workspace) RunGC() (*GCResult, error) {
	liveHashes, err := w.Checkpoints.AllReferencedHashes()
	if err != nil {
		return nil, err
	}
	draftHashes, err := w.Drafts.AllReferencedHashes()
	if err != nil {
		return nil, err
	}
	for h := range draftHashes {
		liveHashes[h] = struct{}{}
	}

	liveImages, err := w.liveImageRefs()
	if err != nil {
		return nil, err
	}

	freedObjects, err := w.Objects.GC(liveHashes)
	if err != nil {
		return nil, err
	}
	freedImages, err := w.Images.GC(liveImages)
	if err != nil {
		return nil, err
	}

	return &GCResult{ObjectBytesFreed: freedObjects, ImageBytesFreed: freedImages}, nil
}

// liveImageRefs walks every sidecar on disk and unions their Images maps'
// keys, since a sidecar's "images" entries are the only record of which
// "@img:" refs a document still uses (spec §4.2).
func (w *Workspace) liveImageRefs() (map[string]struct{}, error) {
	live := map[string]struct{}{}
	dir := filepath.Join(w.midlight, "sidecars")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return live, nil
		}
		return nil, xerrors.NewIoError("cannot list sidecars", dir, "", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name())) //nolint:gosec // enumerated from our own directory
		if err != nil {
			w.logger.Warn("workspace.gc.sidecar_unreadable", "file", e.Name(), "err", err)
			continue
		}
		var sc serializer.Sidecar
		if err := json.Unmarshal(data, &sc); err != nil {
			w.logger.Warn("workspace.gc.sidecar_corrupt", "file", e.Name(), "err", err)
			continue
		}
		for ref := range sc.Images {
			live[ref] = struct{}{}
		}
	}
	return live, nil
}
