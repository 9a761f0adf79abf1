// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midlightapp/midlight/pkg/docmodel"
)

func TestParseInline_BarePlainTextSpanKeepsStyleMark(t *testing.T) {
	runs := parseInline(`<span style="color:red">plain text</span>`)
	require.Len(t, runs, 1)
	assert.Equal(t, "plain text", runs[0].text.Value)
	require.Len(t, runs[0].text.Marks, 1)
	assert.Equal(t, docmodel.TextStyle, runs[0].text.Marks[0].Kind)
	assert.Equal(t, "red", runs[0].text.Marks[0].Color)
}

func TestParseInline_SpanWithMultipleDeclarationsPopsAllMarksOnClose(t *testing.T) {
	runs := parseInline(`<span style="color:red;font-family:Arial">styled</span>after`)
	require.Len(t, runs, 2)

	assert.Equal(t, "styled", runs[0].text.Value)
	assert.Len(t, runs[0].text.Marks, 2)

	assert.Equal(t, "after", runs[1].text.Value)
	assert.Empty(t, runs[1].text.Marks, "marks from a closed span must not leak onto later text")
}

func TestParseInline_NestedSpansPopIndependently(t *testing.T) {
	runs := parseInline(`<span style="color:red">a<span style="font-family:Arial;font-size:12px">b</span>c</span>d`)
	require.Len(t, runs, 4)

	assert.Equal(t, "a", runs[0].text.Value)
	assert.Len(t, runs[0].text.Marks, 1)

	assert.Equal(t, "b", runs[1].text.Value)
	assert.Len(t, runs[1].text.Marks, 3) // outer color + inner font-family + font-size

	assert.Equal(t, "c", runs[2].text.Value)
	assert.Len(t, runs[2].text.Marks, 1) // back to just the outer span's mark

	assert.Equal(t, "d", runs[3].text.Value)
	assert.Empty(t, runs[3].text.Marks)
}
