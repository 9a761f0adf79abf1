// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package recovery

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupManager(t *testing.T) *Manager {
	t.Helper()
	m := New(t.TempDir(), 20*time.Millisecond, nil)
	require.NoError(t, m.Init())
	t.Cleanup(m.StopAllWAL)
	return m
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStartWAL_WritesOnChange(t *testing.T) {
	m := setupManager(t)
	var content atomic.Value
	content.Store("v1")

	m.StartWAL("note.md", func() string { return content.Load().(string) })
	waitFor(t, func() bool { return m.HasRecovery("note.md") })

	got, ok := m.RecoveryContent("note.md")
	require.True(t, ok)
	assert.Equal(t, "v1", got)

	content.Store("v2")
	waitFor(t, func() bool {
		got, _ := m.RecoveryContent("note.md")
		return got == "v2"
	})
}

func TestClearWAL_RemovesFile(t *testing.T) {
	m := setupManager(t)
	require.NoError(t, m.UpdateWALNow("note.md", "content"))
	assert.True(t, m.HasRecovery("note.md"))

	require.NoError(t, m.ClearWAL("note.md"))
	assert.False(t, m.HasRecovery("note.md"))
}

func TestClearWAL_MissingFileIsNotError(t *testing.T) {
	m := setupManager(t)
	require.NoError(t, m.ClearWAL("never-existed.md"))
}

func TestStopWAL_PreventsFurtherWrites(t *testing.T) {
	m := setupManager(t)
	var content atomic.Value
	content.Store("v1")
	m.StartWAL("note.md", func() string { return content.Load().(string) })
	waitFor(t, func() bool { return m.HasRecovery("note.md") })

	m.StopWAL("note.md")
	require.NoError(t, m.ClearWAL("note.md"))

	content.Store("v2")
	time.Sleep(60 * time.Millisecond)
	assert.False(t, m.HasRecovery("note.md"))
}

func TestCheckForRecovery_EnumeratesPending(t *testing.T) {
	m := setupManager(t)
	require.NoError(t, m.UpdateWALNow("a.md", "a-content"))
	require.NoError(t, m.UpdateWALNow("nested/b.md", "b-content"))

	entries, err := m.CheckForRecovery()
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestHasUniqueRecovery(t *testing.T) {
	m := setupManager(t)
	require.NoError(t, m.UpdateWALNow("note.md", "saved"))
	assert.False(t, m.HasUniqueRecovery("note.md", "saved"))
	assert.True(t, m.HasUniqueRecovery("note.md", "different"))
	assert.False(t, m.HasUniqueRecovery("missing.md", "anything"))
}

func TestApplyRecovery_DoesNotDeleteWAL(t *testing.T) {
	m := setupManager(t)
	require.NoError(t, m.UpdateWALNow("note.md", "content"))

	content, ok := m.ApplyRecovery("note.md")
	require.True(t, ok)
	assert.Equal(t, "content", content)
	assert.True(t, m.HasRecovery("note.md"))
}

func TestStartWAL_ReplacesExistingTask(t *testing.T) {
	m := setupManager(t)
	var calls atomic.Int32
	m.StartWAL("note.md", func() string {
		calls.Add(1)
		return "first"
	})
	waitFor(t, func() bool { return calls.Load() > 0 })

	m.StartWAL("note.md", func() string { return "second" })
	waitFor(t, func() bool {
		got, _ := m.RecoveryContent("note.md")
		return got == "second"
	})
}
