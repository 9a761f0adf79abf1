// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package draft

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midlightapp/midlight/pkg/objectstore"
)

func setupManager(t *testing.T) (*Manager, *objectstore.Store) {
	t.Helper()
	root := t.TempDir()
	store := objectstore.New(filepath.Join(root, "objects"), nil)
	require.NoError(t, store.Init())

	m := New(filepath.Join(root, "drafts"), store)
	require.NoError(t, m.Init())
	return m, store
}

func TestCreate_SeedsFirstCheckpoint(t *testing.T) {
	m, store := setupManager(t)

	d, err := m.Create("note.md", "experiment", "cp-abc123", "draft content", "{}")
	require.NoError(t, err)
	require.Len(t, d.Checkpoints, 1)
	assert.Equal(t, StatusActive, d.Status)
	assert.Equal(t, "cp-abc123", d.SourceCheckpointID)
	assert.True(t, store.Exists(d.Checkpoints[0].ContentHash))
}

func TestSaveContent_SkipsIdenticalContent(t *testing.T) {
	m, _ := setupManager(t)
	d, err := m.Create("note.md", "experiment", "cp-abc123", "v1", "{}")
	require.NoError(t, err)

	cp, err := m.SaveContent("note.md", d.ID, "v1", "{}")
	require.NoError(t, err)
	assert.Nil(t, cp, "identical content must not append a new draft checkpoint")

	cp, err = m.SaveContent("note.md", d.ID, "v2", "{}")
	require.NoError(t, err)
	require.NotNil(t, cp)

	got, err := m.Get("note.md", d.ID)
	require.NoError(t, err)
	assert.Len(t, got.Checkpoints, 2)
}

func TestSaveContent_CapsChainAt20(t *testing.T) {
	m, _ := setupManager(t)
	d, err := m.Create("note.md", "experiment", "cp-abc123", "v0", "{}")
	require.NoError(t, err)

	for i := 1; i <= 25; i++ {
		_, err := m.SaveContent("note.md", d.ID, contentFor(i), "{}")
		require.NoError(t, err)
	}

	got, err := m.Get("note.md", d.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got.Checkpoints), 20)
}

func contentFor(i int) string {
	out := "v"
	for ; i > 0; i-- {
		out += "x"
	}
	return out
}

func TestApply_TransitionsToMergedAndReturnsHeadContent(t *testing.T) {
	m, _ := setupManager(t)
	d, err := m.Create("note.md", "experiment", "cp-abc123", "v1", "{}")
	require.NoError(t, err)
	_, err = m.SaveContent("note.md", d.ID, "v2", "{}")
	require.NoError(t, err)

	content, err := m.Apply("note.md", d.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", content.Markdown)

	got, err := m.Get("note.md", d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusMerged, got.Status)
}

func TestDiscard_ArchivesWithoutDeletingFile(t *testing.T) {
	m, _ := setupManager(t)
	d, err := m.Create("note.md", "experiment", "cp-abc123", "v1", "{}")
	require.NoError(t, err)

	require.NoError(t, m.Discard("note.md", d.ID))

	got, err := m.Get("note.md", d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, got.Status)
}

func TestDelete_RemovesDraftFile(t *testing.T) {
	m, _ := setupManager(t)
	d, err := m.Create("note.md", "experiment", "cp-abc123", "v1", "{}")
	require.NoError(t, err)

	require.NoError(t, m.Delete("note.md", d.ID))

	_, err = m.Get("note.md", d.ID)
	require.Error(t, err)
}

func TestAllReferencedHashes_IncludesDraftBlobs(t *testing.T) {
	m, _ := setupManager(t)
	d, err := m.Create("note.md", "experiment", "cp-abc123", "v1", "{}")
	require.NoError(t, err)

	live, err := m.AllReferencedHashes()
	require.NoError(t, err)
	assert.Contains(t, live, d.Checkpoints[0].ContentHash)
	assert.Contains(t, live, d.Checkpoints[0].SidecarHash)
}

func TestList_ReturnsAllDraftsForFileKey(t *testing.T) {
	m, _ := setupManager(t)
	_, err := m.Create("note.md", "first", "cp-1", "v1", "{}")
	require.NoError(t, err)
	_, err = m.Create("note.md", "second", "cp-2", "v1", "{}")
	require.NoError(t, err)

	list, err := m.List("note.md")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
