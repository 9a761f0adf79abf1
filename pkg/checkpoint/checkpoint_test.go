// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package checkpoint

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midlightapp/midlight/pkg/objectstore"
)

func setupManager(t *testing.T, config Config) (*Manager, *objectstore.Store) {
	t.Helper()
	root := t.TempDir()
	objRoot := filepath.Join(root, "objects")
	store := objectstore.New(objRoot, nil)
	require.NoError(t, store.Init())

	m := New(filepath.Join(root, "checkpoints"), store, config, nil)
	require.NoError(t, m.Init())
	return m, store
}

func permissiveConfig() Config {
	return Config{Enabled: true, CheckpointIntervalMs: 0, MinChangeChars: 0, MaxCheckpointsPerFile: 1000, RetentionDays: 0}
}

func TestMaybeCreate_WritesBothBlobs(t *testing.T) {
	m, store := setupManager(t, permissiveConfig())

	cp, err := m.MaybeCreate("note.md", "hello world", `{"version":1}`, TriggerInterval, "")
	require.NoError(t, err)
	require.NotNil(t, cp)

	assert.True(t, store.Exists(cp.ContentHash))
	assert.True(t, store.Exists(cp.SidecarHash))
}

func TestMaybeCreate_SkipsNoChange(t *testing.T) {
	m, _ := setupManager(t, permissiveConfig())

	cp1, err := m.MaybeCreate("note.md", "v1", "{}", TriggerInterval, "")
	require.NoError(t, err)
	require.NotNil(t, cp1)

	cp2, err := m.MaybeCreate("note.md", "v1", "{}", TriggerInterval, "")
	require.NoError(t, err)
	assert.Nil(t, cp2)

	cp3, err := m.MaybeCreate("note.md", "v2", "{}", TriggerInterval, "")
	require.NoError(t, err)
	require.NotNil(t, cp3)

	list, err := m.List("note.md")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestMaybeCreate_SkipsTooSoon(t *testing.T) {
	m, _ := setupManager(t, Config{Enabled: true, CheckpointIntervalMs: 60_000, MaxCheckpointsPerFile: 1000})

	cp1, err := m.MaybeCreate("note.md", "v1", "{}", TriggerInterval, "")
	require.NoError(t, err)
	require.NotNil(t, cp1)

	cp2, err := m.MaybeCreate("note.md", "v2", "{}", TriggerInterval, "")
	require.NoError(t, err)
	assert.Nil(t, cp2, "second save within the interval should be skipped")
}

func TestMaybeCreate_BookmarkBypassesGating(t *testing.T) {
	m, _ := setupManager(t, Config{Enabled: true, CheckpointIntervalMs: 60_000, MaxCheckpointsPerFile: 1000})

	cp1, err := m.MaybeCreate("note.md", "v1", "{}", TriggerInterval, "")
	require.NoError(t, err)
	require.NotNil(t, cp1)

	cp2, err := m.MaybeCreate("note.md", "v1", "{}", TriggerBookmark, "important")
	require.NoError(t, err)
	require.NotNil(t, cp2, "bookmark trigger must bypass the no-change and too-soon gates")
	assert.Equal(t, KindBookmark, cp2.Type)
}

func TestRetention_KeepsBookmarksAndCapsAuto(t *testing.T) {
	m, _ := setupManager(t, Config{Enabled: true, MaxCheckpointsPerFile: 2})

	cp, err := m.MaybeCreate("note.md", "v0", "{}", TriggerBookmark, "important")
	require.NoError(t, err)
	require.NotNil(t, cp)

	for i := 1; i <= 5; i++ {
		_, err := m.MaybeCreate("note.md", fmtContent(i), "{}", TriggerInterval, "")
		require.NoError(t, err)
	}

	list, err := m.List("note.md")
	require.NoError(t, err)

	var bookmarks, autos int
	for _, c := range list {
		if c.Type == KindBookmark {
			bookmarks++
			assert.Equal(t, "important", c.Label)
		} else {
			autos++
		}
	}
	assert.Equal(t, 1, bookmarks)
	assert.LessOrEqual(t, autos, 2)
}

func fmtContent(i int) string {
	return "version-" + string(rune('0'+i))
}

func TestRestore_ReparentsAndAppendsRestoreCheckpoint(t *testing.T) {
	m, _ := setupManager(t, permissiveConfig())

	a, err := m.MaybeCreate("note.md", "A", "{}", TriggerInterval, "")
	require.NoError(t, err)
	b, err := m.MaybeCreate("note.md", "B", "{}", TriggerInterval, "")
	require.NoError(t, err)
	c, err := m.MaybeCreate("note.md", "C", "{}", TriggerInterval, "")
	require.NoError(t, err)
	require.NotNil(t, a)
	require.NotNil(t, b)
	require.NotNil(t, c)

	ok, err := m.Delete("note.md", b.ID)
	require.NoError(t, err)
	require.True(t, ok)

	list, err := m.List("note.md")
	require.NoError(t, err)
	var reloadedC *Checkpoint
	for i := range list {
		if list[i].ID == c.ID {
			reloadedC = &list[i]
		}
	}
	require.NotNil(t, reloadedC)
	require.NotNil(t, reloadedC.ParentID)
	assert.Equal(t, a.ID, *reloadedC.ParentID, "C's parent must become A after B is deleted")

	content, err := m.Restore("note.md", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", content.Markdown)

	list, err = m.List("note.md")
	require.NoError(t, err)
	require.Len(t, list, 3, "A, C (reparented), and the new restore checkpoint")
	assert.Equal(t, TriggerRestore, list[0].Trigger)
	assert.Equal(t, "A", mustContent(t, m, "note.md", list[0].ID).Markdown)
}

func mustContent(t *testing.T, m *Manager, fileKey, id string) *Content {
	t.Helper()
	c, err := m.Content(fileKey, id)
	require.NoError(t, err)
	return c
}

func TestDelete_HeadAdvancesToNewestRemaining(t *testing.T) {
	m, _ := setupManager(t, permissiveConfig())

	a, err := m.MaybeCreate("note.md", "A", "{}", TriggerInterval, "")
	require.NoError(t, err)
	b, err := m.MaybeCreate("note.md", "B", "{}", TriggerInterval, "")
	require.NoError(t, err)
	require.NotNil(t, a)
	require.NotNil(t, b)

	head, err := m.HeadID("note.md")
	require.NoError(t, err)
	assert.Equal(t, b.ID, head)

	ok, err := m.Delete("note.md", b.ID)
	require.NoError(t, err)
	require.True(t, ok)

	head, err = m.HeadID("note.md")
	require.NoError(t, err)
	assert.Equal(t, a.ID, head)
}

func TestAllReferencedHashes_CoversEveryHistory(t *testing.T) {
	m, _ := setupManager(t, permissiveConfig())

	cp1, err := m.MaybeCreate("a.md", "A content", "{}", TriggerInterval, "")
	require.NoError(t, err)
	cp2, err := m.MaybeCreate("b.md", "B content", "{}", TriggerInterval, "")
	require.NoError(t, err)

	live, err := m.AllReferencedHashes()
	require.NoError(t, err)
	assert.Contains(t, live, cp1.ContentHash)
	assert.Contains(t, live, cp1.SidecarHash)
	assert.Contains(t, live, cp2.ContentHash)
	assert.Contains(t, live, cp2.SidecarHash)
}

func TestLabelAndUnlabel(t *testing.T) {
	m, _ := setupManager(t, permissiveConfig())

	cp, err := m.MaybeCreate("note.md", "v1", "{}", TriggerInterval, "")
	require.NoError(t, err)

	ok, err := m.Label("note.md", cp.ID, "milestone")
	require.NoError(t, err)
	assert.True(t, ok)

	list, _ := m.List("note.md")
	assert.Equal(t, KindBookmark, list[0].Type)

	ok, err = m.Unlabel("note.md", cp.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	list, _ = m.List("note.md")
	assert.Equal(t, KindAuto, list[0].Type)
}

func TestList_OrderedNewestFirst(t *testing.T) {
	m, _ := setupManager(t, permissiveConfig())

	_, err := m.MaybeCreate("note.md", "v1", "{}", TriggerInterval, "")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = m.MaybeCreate("note.md", "v2", "{}", TriggerInterval, "")
	require.NoError(t, err)

	list, err := m.List("note.md")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.GreaterOrEqual(t, list[0].Timestamp, list[1].Timestamp)
}
