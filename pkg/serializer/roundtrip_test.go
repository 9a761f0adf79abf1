// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package serializer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midlightapp/midlight/pkg/docmodel"
)

func TestSerialize_SimpleDocument(t *testing.T) {
	doc := docmodel.Doc{Blocks: []docmodel.Block{
		{Kind: docmodel.Heading, Level: 1, Content: []docmodel.Text{{Value: "My Doc"}}},
		{Kind: docmodel.Paragraph, Content: []docmodel.Text{
			{Value: "hello "},
			{Value: "bold", Marks: []docmodel.Mark{{Kind: docmodel.Bold}}},
			{Value: " and "},
			{Value: "italic", Marks: []docmodel.Mark{{Kind: docmodel.Italic}}},
		}},
	}}

	md, sc, err := Serialize(doc, nil, Meta{})
	require.NoError(t, err)

	assert.Contains(t, md, "# My Doc")
	assert.Contains(t, md, "**bold**")
	assert.Contains(t, md, "*italic*")
	assert.Equal(t, 2, strings.Count(md, "<!-- @mid:"))
	assert.Equal(t, "My Doc", sc.Meta.Title)
	assert.Greater(t, sc.Meta.WordCount, 0)
}

func TestRoundTrip_SimpleDocument(t *testing.T) {
	doc := docmodel.Doc{Blocks: []docmodel.Block{
		{Kind: docmodel.Heading, Level: 1, Content: []docmodel.Text{{Value: "My Doc"}}},
		{Kind: docmodel.Paragraph, Content: []docmodel.Text{
			{Value: "hello "},
			{Value: "bold", Marks: []docmodel.Mark{{Kind: docmodel.Bold}}},
			{Value: " and "},
			{Value: "italic", Marks: []docmodel.Mark{{Kind: docmodel.Italic}}},
		}},
	}}

	md, sc, err := Serialize(doc, nil, Meta{})
	require.NoError(t, err)

	got, err := Deserialize(md, sc, nil)
	require.NoError(t, err)

	require.Len(t, got.Blocks, 2)

	heading := got.Blocks[0]
	assert.Equal(t, docmodel.Heading, heading.Kind)
	assert.Equal(t, 1, heading.Level)
	assert.Equal(t, "My Doc", heading.PlainText())

	para := got.Blocks[1]
	assert.Equal(t, docmodel.Paragraph, para.Kind)
	assert.Equal(t, "hello bold and italic", para.PlainText())

	var sawBold, sawItalic bool
	for _, run := range para.Content {
		if run.Value == "bold" {
			sawBold = hasMark(run.Marks, docmodel.Bold)
		}
		if run.Value == "italic" {
			sawItalic = hasMark(run.Marks, docmodel.Italic)
		}
	}
	assert.True(t, sawBold, "expected 'bold' run to carry the Bold mark")
	assert.True(t, sawItalic, "expected 'italic' run to carry the Italic mark")
}

func TestRoundTrip_EmptyDocument(t *testing.T) {
	md, sc, err := Serialize(docmodel.Doc{}, nil, Meta{})
	require.NoError(t, err)
	assert.Equal(t, "", md)

	got, err := Deserialize(md, sc, nil)
	require.NoError(t, err)
	require.Len(t, got.Blocks, 1)
	assert.Equal(t, docmodel.Paragraph, got.Blocks[0].Kind)
	assert.Empty(t, got.Blocks[0].PlainText())
}

func TestRoundTrip_CodeBlock(t *testing.T) {
	doc := docmodel.Doc{Blocks: []docmodel.Block{
		{Kind: docmodel.CodeBlock, Language: "go", Code: "func main() {}\n\nvar x int"},
	}}

	md, sc, err := Serialize(doc, nil, Meta{})
	require.NoError(t, err)
	assert.Contains(t, md, "```go")

	got, err := Deserialize(md, sc, nil)
	require.NoError(t, err)
	require.Len(t, got.Blocks, 1)
	assert.Equal(t, docmodel.CodeBlock, got.Blocks[0].Kind)
	assert.Equal(t, "go", got.Blocks[0].Language)
	assert.Equal(t, "func main() {}\n\nvar x int", got.Blocks[0].Code)
}

func TestRoundTrip_Blockquote(t *testing.T) {
	doc := docmodel.Doc{Blocks: []docmodel.Block{
		{Kind: docmodel.Blockquote, Children: []docmodel.Block{
			{Kind: docmodel.Paragraph, Content: []docmodel.Text{{Value: "quoted text"}}},
		}},
	}}

	md, sc, err := Serialize(doc, nil, Meta{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(md, "> "))

	got, err := Deserialize(md, sc, nil)
	require.NoError(t, err)
	require.Len(t, got.Blocks, 1)
	require.Equal(t, docmodel.Blockquote, got.Blocks[0].Kind)
	require.Len(t, got.Blocks[0].Children, 1)
	assert.Equal(t, "quoted text", got.Blocks[0].Children[0].PlainText())
}

func TestRoundTrip_BulletList(t *testing.T) {
	doc := docmodel.Doc{Blocks: []docmodel.Block{
		{Kind: docmodel.BulletList, Children: []docmodel.Block{
			{Kind: docmodel.ListItem, Content: []docmodel.Text{{Value: "first"}}},
			{Kind: docmodel.ListItem, Content: []docmodel.Text{{Value: "second"}}},
		}},
	}}

	md, sc, err := Serialize(doc, nil, Meta{})
	require.NoError(t, err)
	assert.Contains(t, md, "- ")

	got, err := Deserialize(md, sc, nil)
	require.NoError(t, err)
	require.Len(t, got.Blocks, 1)
	require.Equal(t, docmodel.BulletList, got.Blocks[0].Kind)
	require.Len(t, got.Blocks[0].Children, 2)
	assert.Equal(t, "first", got.Blocks[0].Children[0].PlainText())
	assert.Equal(t, "second", got.Blocks[0].Children[1].PlainText())
}

func TestRoundTrip_NonNativeMarkUsesSidecarSpan(t *testing.T) {
	doc := docmodel.Doc{Blocks: []docmodel.Block{
		{Kind: docmodel.Paragraph, Content: []docmodel.Text{
			{Value: "highlighted", Marks: []docmodel.Mark{{Kind: docmodel.Highlight, Color: "yellow"}}},
		}},
	}}

	md, sc, err := Serialize(doc, nil, Meta{})
	require.NoError(t, err)
	require.Len(t, sc.Spans, 1)

	got, err := Deserialize(md, sc, nil)
	require.NoError(t, err)
	require.Len(t, got.Blocks, 1)
	require.Len(t, got.Blocks[0].Content, 1)
	assert.True(t, hasMark(got.Blocks[0].Content[0].Marks, docmodel.Highlight))
}
