// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midlightapp/midlight/pkg/checkpoint"
	"github.com/midlightapp/midlight/pkg/docmodel"
	"github.com/midlightapp/midlight/pkg/serializer"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	root := t.TempDir()
	w, err := newWorkspace(root, nil)
	require.NoError(t, err)
	require.NoError(t, w.Init())
	return w
}

func TestInit_CreatesSubdirectories(t *testing.T) {
	w := newTestWorkspace(t)
	for _, d := range []string{"objects", "images", "checkpoints", "drafts", "recovery", "sidecars"} {
		_, err := os.Stat(filepath.Join(w.midlight, d))
		assert.NoError(t, err, "expected %s to exist", d)
	}
	assert.Equal(t, DefaultConfig(), w.Config())
}

func TestInit_IsIdempotent(t *testing.T) {
	w := newTestWorkspace(t)
	require.NoError(t, w.Init())
	require.NoError(t, w.Init())
}

func TestLoad_MissingFileReturnsEmptyDocument(t *testing.T) {
	w := newTestWorkspace(t)
	result, err := w.Load("note.md")
	require.NoError(t, err)
	assert.False(t, result.Existed)
	assert.False(t, result.HasRecovery)
	require.Len(t, result.Doc.Blocks, 1)
	assert.Equal(t, docmodel.Paragraph, result.Doc.Blocks[0].Kind)
}

func simpleDoc(text string) docmodel.Doc {
	return docmodel.Doc{Blocks: []docmodel.Block{
		{Kind: docmodel.Paragraph, Content: []docmodel.Text{{Value: text}}},
	}}
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	w := newTestWorkspace(t)

	res, err := w.Save("note.md", simpleDoc("hello world"), checkpoint.TriggerInterval)
	require.NoError(t, err)
	assert.True(t, res.Success)

	loaded, err := w.Load("note.md")
	require.NoError(t, err)
	assert.True(t, loaded.Existed)
	require.Len(t, loaded.Doc.Blocks, 1)
	assert.Equal(t, "hello world", loaded.Doc.Blocks[0].PlainText())
}

func TestSave_ClearsRecoveryWAL(t *testing.T) {
	w := newTestWorkspace(t)
	require.NoError(t, w.Recovery.UpdateWALNow("note.md", "stray edit"))
	assert.True(t, w.Recovery.HasRecovery("note.md"))

	_, err := w.Save("note.md", simpleDoc("saved"), checkpoint.TriggerInterval)
	require.NoError(t, err)

	assert.False(t, w.Recovery.HasRecovery("note.md"), "save must clear the WAL (invariant P2)")
}

func TestSave_CreatesCheckpoint(t *testing.T) {
	w := newTestWorkspace(t)
	res, err := w.Save("note.md", simpleDoc("first version"), checkpoint.TriggerInterval)
	require.NoError(t, err)
	require.NotNil(t, res.CheckpointCreated)

	list, err := w.Checkpoints.List("note.md")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSave_PreservesUserMetaAcrossSaves(t *testing.T) {
	w := newTestWorkspace(t)
	_, err := w.Save("note.md", simpleDoc("v1"), checkpoint.TriggerInterval)
	require.NoError(t, err)

	sc, ok, err := w.loadSidecar("note.md")
	require.NoError(t, err)
	require.True(t, ok)
	created := sc.Meta.Created
	require.NotEmpty(t, created)

	_, err = w.Save("note.md", simpleDoc("v2"), checkpoint.TriggerInterval)
	require.NoError(t, err)

	sc2, ok, err := w.loadSidecar("note.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, created, sc2.Meta.Created, "created timestamp must not change on subsequent saves")
}

func TestLoadFromRecoveryAndDiscard(t *testing.T) {
	w := newTestWorkspace(t)
	_, err := w.Save("note.md", simpleDoc("saved"), checkpoint.TriggerInterval)
	require.NoError(t, err)

	require.NoError(t, w.Recovery.UpdateWALNow("note.md", "unsaved edit"))

	result, err := w.LoadFromRecovery("note.md")
	require.NoError(t, err)
	assert.True(t, result.HasRecovery)
	assert.Equal(t, "unsaved edit", result.Doc.Blocks[0].PlainText())

	require.NoError(t, w.DiscardRecovery("note.md"))
	assert.False(t, w.Recovery.HasRecovery("note.md"))
}

func TestRunGC_RemovesUnreferencedBlobsAndImages(t *testing.T) {
	w := newTestWorkspace(t)

	_, err := w.Save("keep.md", simpleDoc("kept content"), checkpoint.TriggerInterval)
	require.NoError(t, err)

	orphanHash, err := w.Objects.WriteText("orphaned blob nobody references")
	require.NoError(t, err)
	assert.True(t, w.Objects.Exists(orphanHash))

	result, err := w.RunGC()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.ObjectBytesFreed, int64(1))
	assert.False(t, w.Objects.Exists(orphanHash))

	live, err := w.Checkpoints.AllReferencedHashes()
	require.NoError(t, err)
	for h := range live {
		assert.True(t, w.Objects.Exists(h), "a checkpoint-referenced blob must survive GC")
	}
}

func TestUpdateConfig_PropagatesToCheckpointManager(t *testing.T) {
	w := newTestWorkspace(t)
	cfg := w.Config()
	cfg.Versioning.CheckpointIntervalMs = 0
	cfg.Versioning.MinChangeChars = 1000
	require.NoError(t, w.UpdateConfig(cfg))

	_, err := w.Save("note.md", simpleDoc("short"), checkpoint.TriggerInterval)
	require.NoError(t, err)
	res, err := w.Save("note.md", simpleDoc("short, then a much longer paragraph that grows the note by well over fifty characters"), checkpoint.TriggerInterval)
	require.NoError(t, err)
	assert.Nil(t, res.CheckpointCreated, "small edit should be gated out by the raised min_change_chars")
}

func TestOpen_ReturnsSameInstanceForSameRoot(t *testing.T) {
	Clear()
	root := t.TempDir()

	w1, err := Open(root, nil)
	require.NoError(t, err)
	w2, err := Open(root, nil)
	require.NoError(t, err)
	assert.Same(t, w1, w2)
	Clear()
}

func TestClear_StopsWALTimersAndDropsRegistry(t *testing.T) {
	Clear()
	root := t.TempDir()

	w, err := Open(root, nil)
	require.NoError(t, err)
	require.NoError(t, w.Recovery.UpdateWALNow("note.md", "stray edit"))
	w.Recovery.StartWAL("note.md", func() string { return "still editing" })

	Clear()

	w2, err := Open(root, nil)
	require.NoError(t, err)
	assert.NotSame(t, w, w2, "Clear must drop the registry so Open creates a fresh instance")
	Clear()
}

func TestApplyDraft_WritesDocumentAndRefreshesSidecar(t *testing.T) {
	w := newTestWorkspace(t)

	_, err := w.Save("note.md", simpleDoc("original"), checkpoint.TriggerInterval)
	require.NoError(t, err)

	head, err := w.Checkpoints.HeadID("note.md")
	require.NoError(t, err)
	headContent, err := w.Checkpoints.Content("note.md", head)
	require.NoError(t, err)

	d, err := w.Drafts.Create("note.md", "edit", head, headContent.Markdown, headContent.Sidecar)
	require.NoError(t, err)

	editedMarkdown, editedSidecar, err := serializer.Serialize(simpleDoc("draft edited version"), w.Images, serializer.Meta{})
	require.NoError(t, err)
	editedSidecarJSON, err := json.Marshal(editedSidecar)
	require.NoError(t, err)
	_, err = w.Drafts.SaveContent("note.md", d.ID, editedMarkdown, string(editedSidecarJSON))
	require.NoError(t, err)

	res, err := w.ApplyDraft("note.md", d.ID)
	require.NoError(t, err)
	require.NotNil(t, res.CheckpointCreated)

	onDisk, err := os.ReadFile(filepath.Join(w.root, "note.md"))
	require.NoError(t, err)
	assert.Equal(t, editedMarkdown, string(onDisk), "applying a draft must write its content with the atomic writer")

	sc, ok, err := w.loadSidecar("note.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, editedSidecar.Meta.WordCount, sc.Meta.WordCount, "sidecar must be refreshed to match the applied draft content, not left stale")
}
