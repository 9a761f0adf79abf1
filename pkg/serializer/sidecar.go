// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package serializer

import "github.com/midlightapp/midlight/pkg/docmodel"

// SidecarVersion is the current Sidecar JSON schema version (spec §6).
const SidecarVersion = 1

// Sidecar carries everything the Markdown form of a document cannot
// represent without losing fidelity: metadata, block-level formatting,
// inline spans for marks with no native Markdown syntax, and image
// back-references used by GC liveness (spec §3, §6).
type Sidecar struct {
	Version int                  `json:"version"`
	Meta    Meta                 `json:"meta"`
	Blocks  map[string]BlockMeta `json:"blocks"`
	Spans   map[string][]Span    `json:"spans"`
	Images  map[string]ImageMeta `json:"images"`
}

// Meta is the Sidecar's document-level metadata.
type Meta struct {
	Title        string   `json:"title"`
	Created      string   `json:"created,omitempty"`
	Modified     string   `json:"modified,omitempty"`
	WordCount    int      `json:"word_count"`
	ReadingTime  int      `json:"reading_time"`
	Tags         []string `json:"tags,omitempty"`
}

// BlockMeta is out-of-band, block-level formatting keyed by block id.
type BlockMeta struct {
	Align  docmodel.Align `json:"align,omitempty"`
	Width  int            `json:"width,omitempty"`
	Height int            `json:"height,omitempty"`
	Float  string         `json:"float,omitempty"`
}

// Span is one inline mark range over a block's rendered Markdown text,
// using UTF-16 code-unit offsets per spec §4.4.
type Span struct {
	Start int              `json:"start"`
	End   int              `json:"end"`
	Marks []docmodel.Mark  `json:"marks"`
}

// ImageMeta is the Sidecar's back-reference for one interned image,
// keyed by its "@img:<hash16>" ref. Its presence in a live Sidecar is what
// keeps the image alive across GC (invariant I2).
type ImageMeta struct {
	File         string `json:"file"`
	OriginalName string `json:"originalName,omitempty"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mimeType"`
}

// NewSidecar returns an empty, version-stamped Sidecar.
func NewSidecar() Sidecar {
	return Sidecar{
		Version: SidecarVersion,
		Blocks:  map[string]BlockMeta{},
		Spans:   map[string][]Span{},
		Images:  map[string]ImageMeta{},
	}
}
