// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package imagestore

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tinyPNGBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNk+A8AAQUBAScY42YAAAAASUVORK5CYII="

func setupStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir(), nil)
	require.NoError(t, s.Init())
	return s
}

func TestStoreDataURL_RejectsMalformed(t *testing.T) {
	s := setupStore(t)
	_, _, err := s.StoreDataURL("not-a-data-url", "")
	require.Error(t, err)
}

func TestStoreDataURL_Dedup(t *testing.T) {
	s := setupStore(t)
	dataURL := "data:image/png;base64," + tinyPNGBase64

	ref1, info1, err := s.StoreDataURL(dataURL, "a.png")
	require.NoError(t, err)
	ref2, info2, err := s.StoreDataURL(dataURL, "b.png")
	require.NoError(t, err)

	assert.Equal(t, ref1, ref2)
	assert.Equal(t, info1.Filename, info2.Filename)

	refs, err := s.AllRefs()
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func TestStoreBuffer_ThenReadBackAsDataURL(t *testing.T) {
	s := setupStore(t)
	raw, err := base64.StdEncoding.DecodeString(tinyPNGBase64)
	require.NoError(t, err)

	ref, _, err := s.StoreBuffer(raw, "image/png", "test.png")
	require.NoError(t, err)

	dataURL, err := s.DataURL(ref)
	require.NoError(t, err)
	assert.Contains(t, dataURL, "data:image/png;base64,")

	gotBytes, mime, err := s.Buffer(ref)
	require.NoError(t, err)
	assert.Equal(t, raw, gotBytes)
	assert.Equal(t, "image/png", mime)
}

func TestExists_FalseForUnknownRef(t *testing.T) {
	s := setupStore(t)
	assert.False(t, s.Exists("@img:0000000000000000"))
}

func TestGC_RemovesUnreferencedImages(t *testing.T) {
	s := setupStore(t)
	raw, err := base64.StdEncoding.DecodeString(tinyPNGBase64)
	require.NoError(t, err)
	ref, _, err := s.StoreBuffer(raw, "image/png", "")
	require.NoError(t, err)

	freed, err := s.GC(map[string]struct{}{})
	require.NoError(t, err)
	assert.Greater(t, freed, int64(0))
	assert.False(t, s.Exists(ref))
}

func TestGC_KeepsLiveRefs(t *testing.T) {
	s := setupStore(t)
	raw, err := base64.StdEncoding.DecodeString(tinyPNGBase64)
	require.NoError(t, err)
	ref, _, err := s.StoreBuffer(raw, "image/png", "")
	require.NoError(t, err)

	_, err = s.GC(map[string]struct{}{ref: {}})
	require.NoError(t, err)
	assert.True(t, s.Exists(ref))
}

func TestCopyTo_WritesFile(t *testing.T) {
	s := setupStore(t)
	raw, err := base64.StdEncoding.DecodeString(tinyPNGBase64)
	require.NoError(t, err)
	ref, _, err := s.StoreBuffer(raw, "image/png", "")
	require.NoError(t, err)

	dest := t.TempDir() + "/out.png"
	ok, err := s.CopyTo(ref, dest)
	require.NoError(t, err)
	assert.True(t, ok)
}
