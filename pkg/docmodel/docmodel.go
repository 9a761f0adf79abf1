// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package docmodel defines the rich-text document tree produced and
// consumed by the editor and round-tripped by pkg/serializer. It is
// intentionally a closed set of tagged unions rather than an open/dynamic
// tree: every Block has one Kind and the fields that apply to it, per the
// "explicit schemas, not open records" design note in spec.md §9.
package docmodel

// BlockKind enumerates the block-level node types spec §4.4 requires the
// serializer to support.
type BlockKind string

const (
	Paragraph      BlockKind = "paragraph"
	Heading        BlockKind = "heading"
	BulletList     BlockKind = "bulletList"
	OrderedList    BlockKind = "orderedList"
	ListItem       BlockKind = "listItem"
	Blockquote     BlockKind = "blockquote"
	CodeBlock      BlockKind = "codeBlock"
	HorizontalRule BlockKind = "horizontalRule"
	Image          BlockKind = "image"
)

// Align is block-level paragraph/heading/image alignment.
type Align string

const (
	AlignLeft    Align = "left"
	AlignCenter  Align = "center"
	AlignRight   Align = "right"
	AlignJustify Align = "justify"
)

// MarkKind enumerates the inline mark types spec §4.4 requires.
type MarkKind string

const (
	Bold         MarkKind = "bold"
	Italic       MarkKind = "italic"
	Code         MarkKind = "code"
	Link         MarkKind = "link"
	Underline    MarkKind = "underline"
	Strike       MarkKind = "strike"
	Highlight    MarkKind = "highlight"
	TextStyle    MarkKind = "textStyle"
	FontSize     MarkKind = "fontSize"
	Superscript  MarkKind = "superscript"
	Subscript    MarkKind = "subscript"
)

// Mark is one inline formatting annotation on a run of text.
type Mark struct {
	Kind MarkKind `json:"kind"`

	// Link
	Href  string `json:"href,omitempty"`
	Title string `json:"title,omitempty"`

	// Highlight / TextStyle color, TextStyle font family
	Color      string `json:"color,omitempty"`
	FontFamily string `json:"fontFamily,omitempty"`

	// FontSize, in CSS units (e.g. "14px")
	Size string `json:"size,omitempty"`
}

// Text is a run of plain text carrying zero or more marks.
type Text struct {
	Value string
	Marks []Mark
}

// Block is one node of the document tree. Only the fields relevant to Kind
// are populated; this mirrors the teacher's per-entity struct style
// (pkg/ingestion/manifest.go's FileManifestEntry) applied to a tagged union
// instead of a flat record.
type Block struct {
	Kind BlockKind

	// BlockID is assigned fresh on every serialize (spec §3); it is not a
	// stable identity across saves.
	BlockID string

	// Paragraph, Heading
	Align   Align
	Content []Text

	// Heading
	Level int // 1..6

	// BulletList, OrderedList, Blockquote: nested blocks
	Children []Block

	// CodeBlock
	Language string
	Code     string

	// Image
	Src          string
	Alt          string
	Width        int
	Height       int
	Float        string // "", "left", "right"
	OriginalName string
}

// Doc is the root of a document tree.
type Doc struct {
	Blocks []Block
}

// PlainText concatenates the Text content of a block's Content, ignoring
// marks, used for title/word-count derivation.
func (b Block) PlainText() string {
	var out string
	for _, t := range b.Content {
		out += t.Value
	}
	return out
}
