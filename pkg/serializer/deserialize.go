// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package serializer

import (
	"regexp"
	"strings"

	"github.com/midlightapp/midlight/pkg/docmodel"
	"github.com/midlightapp/midlight/pkg/imagestore"
)

var (
	headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	imagePattern   = regexp.MustCompile(`^!\[([^\]]*)\]\(([^)]*)\)$`)
	fencePattern   = regexp.MustCompile("^```([a-zA-Z0-9_+-]*)$")
	orderedPattern = regexp.MustCompile(`^(\d+)\.\s(.*)$`)
	bulletPattern  = regexp.MustCompile(`^-\s(.*)$`)
)

// Deserialize rebuilds a docmodel.Doc from Markdown text and its Sidecar,
// per spec §4.4. Empty input produces a single empty paragraph, per spec
// §4.4's empty-input rule. Unknown block ids or mark kinds referenced by
// the Sidecar are silently dropped rather than erroring, since the
// Markdown itself remains the source of truth for document structure.
func Deserialize(markdown string, sidecar Sidecar, imgStore *imagestore.Store) (docmodel.Doc, error) {
	if strings.TrimSpace(markdown) == "" {
		return docmodel.Doc{Blocks: []docmodel.Block{{Kind: docmodel.Paragraph, Content: nil}}}, nil
	}

	chunks := splitBlocks(markdown)
	blocks := make([]docmodel.Block, 0, len(chunks))
	for _, chunk := range chunks {
		b, err := parseTopChunk(chunk, sidecar, imgStore)
		if err != nil {
			return docmodel.Doc{}, err
		}
		blocks = append(blocks, b)
	}
	return docmodel.Doc{Blocks: blocks}, nil
}

// splitBlocks breaks Markdown into top-level block chunks on blank lines,
// treating lines between a pair of fenced-code markers as non-splitting.
func splitBlocks(md string) []string {
	lines := strings.Split(md, "\n")
	var chunks []string
	var cur []string
	inFence := false

	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, "\n"))
			cur = nil
		}
	}
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if fencePattern.MatchString(trimmed) || trimmed == "```" {
			inFence = !inFence
			cur = append(cur, l)
			continue
		}
		if !inFence && trimmed == "" {
			flush()
			continue
		}
		cur = append(cur, l)
	}
	flush()
	return chunks
}

// extractAnchor strips a leading block-id anchor comment, if present.
func extractAnchor(lines []string) (id string, rest []string) {
	if len(lines) == 0 {
		return "", lines
	}
	if m := anchorPattern.FindStringSubmatch(strings.TrimSpace(lines[0])); m != nil {
		return m[1], lines[1:]
	}
	return "", lines
}

func isBlockquoteChunk(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if !strings.HasPrefix(l, ">") {
			return false
		}
	}
	return true
}

func stripBlockquotePrefix(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		switch {
		case strings.HasPrefix(l, "> "):
			out[i] = l[2:]
		case strings.HasPrefix(l, ">"):
			out[i] = l[1:]
		default:
			out[i] = l
		}
	}
	return out
}

func isListChunk(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if bulletPattern.MatchString(l) || orderedPattern.MatchString(l) {
			return true
		}
		return false
	}
	return false
}

// parseTopChunk parses one blank-line-delimited chunk into a Block.
func parseTopChunk(chunk string, sidecar Sidecar, imgStore *imagestore.Store) (docmodel.Block, error) {
	lines := strings.Split(chunk, "\n")

	if isBlockquoteChunk(lines) {
		inner := strings.Join(stripBlockquotePrefix(lines), "\n")
		innerChunks := splitBlocks(inner)
		children := make([]docmodel.Block, 0, len(innerChunks))
		for _, ic := range innerChunks {
			cb, err := parseTopChunk(ic, sidecar, imgStore)
			if err != nil {
				return docmodel.Block{}, err
			}
			children = append(children, cb)
		}
		return docmodel.Block{Kind: docmodel.Blockquote, Children: children}, nil
	}

	if isListChunk(lines) {
		return parseListChunk(lines, sidecar, imgStore)
	}

	id, rest := extractAnchor(lines)
	return parseLeafBlock(id, rest, sidecar, imgStore)
}

// parseListChunk splits a run of "- item" / "1. item" lines (with indented
// continuations) into list items and parses each as its own leaf block.
func parseListChunk(lines []string, sidecar Sidecar, imgStore *imagestore.Store) (docmodel.Block, error) {
	kind := docmodel.BulletList
	type item struct{ raw []string }
	var items []item

	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			if len(items) > 0 {
				items[len(items)-1].raw = append(items[len(items)-1].raw, "")
			}
			continue
		}
		if m := bulletPattern.FindStringSubmatch(l); m != nil {
			items = append(items, item{raw: []string{m[1]}})
			continue
		}
		if m := orderedPattern.FindStringSubmatch(l); m != nil {
			kind = docmodel.OrderedList
			items = append(items, item{raw: []string{m[2]}})
			continue
		}
		// Continuation line: strip up to two leading spaces of indent.
		cont := strings.TrimPrefix(l, "  ")
		if len(items) > 0 {
			items[len(items)-1].raw = append(items[len(items)-1].raw, cont)
		}
	}

	children := make([]docmodel.Block, 0, len(items))
	for _, it := range items {
		id, rest := extractAnchor(it.raw)
		child, err := parseLeafBlock(id, rest, sidecar, imgStore)
		if err != nil {
			return docmodel.Block{}, err
		}
		child.Kind = docmodel.ListItem
		children = append(children, child)
	}
	return docmodel.Block{Kind: kind, Children: children}, nil
}

// parseLeafBlock parses a single (optionally anchored) block body: heading,
// code block, horizontal rule, image, or paragraph/list-item text.
func parseLeafBlock(id string, rest []string, sidecar Sidecar, imgStore *imagestore.Store) (docmodel.Block, error) {
	body := strings.Join(rest, "\n")
	trimmedBody := strings.TrimSpace(body)

	if trimmedBody == "---" {
		return docmodel.Block{Kind: docmodel.HorizontalRule}, nil
	}

	if m := imagePattern.FindStringSubmatch(trimmedBody); m != nil {
		b := docmodel.Block{Kind: docmodel.Image, Alt: m[1], Src: m[2]}
		applyImageMeta(&b, id, sidecar, imgStore)
		return b, nil
	}

	if len(rest) > 0 {
		if m := fencePattern.FindStringSubmatch(strings.TrimSpace(rest[0])); m != nil {
			lang := m[1]
			codeLines := rest[1:]
			if n := len(codeLines); n > 0 && strings.TrimSpace(codeLines[n-1]) == "```" {
				codeLines = codeLines[:n-1]
			}
			return docmodel.Block{Kind: docmodel.CodeBlock, Language: lang, Code: strings.Join(codeLines, "\n")}, nil
		}
	}

	if len(rest) > 0 {
		if m := headingPattern.FindStringSubmatch(rest[0]); m != nil {
			b := docmodel.Block{Kind: docmodel.Heading, Level: len(m[1])}
			b.Content = parseAndApplySpans(m[2], id, sidecar)
			applyBlockMeta(&b, id, sidecar)
			return b, nil
		}
	}

	textLine := ""
	if len(rest) > 0 {
		textLine = rest[0]
	}
	b := docmodel.Block{Kind: docmodel.Paragraph}
	b.Content = parseAndApplySpans(textLine, id, sidecar)
	applyBlockMeta(&b, id, sidecar)
	return b, nil
}

func parseAndApplySpans(text string, id string, sidecar Sidecar) []docmodel.Text {
	runs := parseInline(text)
	if runs == nil {
		return nil
	}
	return applySpans(runs, sidecar.Spans[id])
}

func applyBlockMeta(b *docmodel.Block, id string, sidecar Sidecar) {
	if id == "" {
		return
	}
	if meta, ok := sidecar.Blocks[id]; ok {
		b.Align = meta.Align
	}
}

func applyImageMeta(b *docmodel.Block, id string, sidecar Sidecar, imgStore *imagestore.Store) {
	if id != "" {
		if meta, ok := sidecar.Blocks[id]; ok {
			b.Width = meta.Width
			b.Height = meta.Height
			b.Float = meta.Float
			b.Align = meta.Align
		}
	}
	if img, ok := sidecar.Images[b.Src]; ok {
		b.OriginalName = img.OriginalName
	} else if imgStore != nil {
		if info, err := imgStore.Info(b.Src); err == nil {
			b.OriginalName = info.OriginalName
		}
	}
}
