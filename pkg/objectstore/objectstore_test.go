// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package objectstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupStore creates a Store rooted at a fresh temp directory and
// initializes it. The caller owns nothing extra to clean up.
func setupStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir(), nil)
	require.NoError(t, s.Init())
	return s
}

func TestWriteRead_RoundTrips(t *testing.T) {
	s := setupStore(t)

	hash, err := s.Write([]byte("hello midlight"))
	require.NoError(t, err)
	assert.Len(t, hash, 64)

	got, err := s.Read(hash)
	require.NoError(t, err)
	assert.Equal(t, "hello midlight", string(got))
}

func TestWrite_IsIdempotent(t *testing.T) {
	s := setupStore(t)

	hash1, err := s.Write([]byte("same bytes"))
	require.NoError(t, err)
	hash2, err := s.Write([]byte("same bytes"))
	require.NoError(t, err)
	assert.Equal(t, hash1, hash2)

	count, err := s.ObjectCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestWrite_DoesNotRewriteExistingFile(t *testing.T) {
	s := setupStore(t)

	hash, err := s.Write([]byte("first"))
	require.NoError(t, err)

	path := filepath.Join(s.root, hash[:2], hash[2:])
	info1, err := os.Stat(path)
	require.NoError(t, err)

	_, err = s.Write([]byte("first"))
	require.NoError(t, err)

	info2, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info1.ModTime(), info2.ModTime())
}

func TestRead_MissingHashReturnsNotFound(t *testing.T) {
	s := setupStore(t)
	_, err := s.Read("0000000000000000000000000000000000000000000000000000000000000000")
	require.Error(t, err)
}

func TestExists(t *testing.T) {
	s := setupStore(t)
	hash, err := s.Write([]byte("x"))
	require.NoError(t, err)
	assert.True(t, s.Exists(hash))
	assert.False(t, s.Exists("deadbeef"))
}

func TestEnumerate_ListsEveryObject(t *testing.T) {
	s := setupStore(t)
	h1, err := s.Write([]byte("a"))
	require.NoError(t, err)
	h2, err := s.Write([]byte("b"))
	require.NoError(t, err)

	hashes, err := s.Enumerate()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{h1, h2}, hashes)
}

func TestGC_RemovesUnreferencedObjects(t *testing.T) {
	s := setupStore(t)
	live, err := s.Write([]byte("keep me"))
	require.NoError(t, err)
	dead, err := s.Write([]byte("delete me"))
	require.NoError(t, err)

	freed, err := s.GC(map[string]struct{}{live: {}})
	require.NoError(t, err)
	assert.Greater(t, freed, int64(0))

	assert.True(t, s.Exists(live))
	assert.False(t, s.Exists(dead))
}

func TestGC_EmptyLiveSetRemovesEverything(t *testing.T) {
	s := setupStore(t)
	_, err := s.Write([]byte("anything"))
	require.NoError(t, err)

	count, err := s.ObjectCount()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	_, err = s.GC(map[string]struct{}{})
	require.NoError(t, err)

	count, err = s.ObjectCount()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestHash_IsStableSHA256(t *testing.T) {
	h := HashText("hello")
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", h)
}
