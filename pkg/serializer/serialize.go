// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package serializer

import (
	"fmt"
	"strings"

	"github.com/midlightapp/midlight/pkg/docmodel"
	"github.com/midlightapp/midlight/pkg/imagestore"
)

// Serialize renders doc to Markdown and a companion Sidecar, per spec §4.4.
// existingMeta seeds Meta fields the document tree itself cannot supply
// (Created, Modified, Tags), which are carried over unchanged;
// Title/WordCount/ReadingTime are recomputed.
// An empty document serializes to the empty string, per spec §4.4's
// empty-document rule.
func Serialize(doc docmodel.Doc, imgStore *imagestore.Store, existingMeta Meta) (string, Sidecar, error) {
	sc := NewSidecar()
	sc.Meta = existingMeta

	if len(doc.Blocks) == 0 {
		sc.Meta.Title = existingMeta.Title
		sc.Meta.WordCount = 0
		sc.Meta.ReadingTime = 0
		return "", sc, nil
	}

	md, err := serializeBlocks(doc.Blocks, &sc, imgStore)
	if err != nil {
		return "", Sidecar{}, err
	}

	sc.Meta.Title = deriveTitle(doc, existingMeta.Title)
	plain := stripAnchors(md)
	words := len(strings.Fields(plain))
	sc.Meta.WordCount = words
	sc.Meta.ReadingTime = readingTimeMinutes(words)

	return md, sc, nil
}

func readingTimeMinutes(words int) int {
	if words == 0 {
		return 0
	}
	const wordsPerMinute = 200
	minutes := (words + wordsPerMinute - 1) / wordsPerMinute
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

func deriveTitle(doc docmodel.Doc, fallback string) string {
	for _, b := range doc.Blocks {
		if b.Kind == docmodel.Heading {
			if t := strings.TrimSpace(b.PlainText()); t != "" {
				return t
			}
		}
	}
	return fallback
}

func stripAnchors(md string) string {
	lines := strings.Split(md, "\n")
	var out []string
	for _, l := range lines {
		if anchorPattern.MatchString(strings.TrimSpace(l)) {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

func serializeBlocks(blocks []docmodel.Block, sc *Sidecar, imgStore *imagestore.Store) (string, error) {
	var parts []string
	for _, b := range blocks {
		part, err := serializeTopBlock(b, sc, imgStore)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "\n\n"), nil
}

// serializeTopBlock renders one block with a fresh anchor. Blockquotes and
// lists get no anchor line of their own; each of their children carries one.
func serializeTopBlock(b docmodel.Block, sc *Sidecar, imgStore *imagestore.Store) (string, error) {
	id := newBlockID(b.Kind)

	switch b.Kind {
	case docmodel.Paragraph, docmodel.ListItem:
		text, spans := serializeInline(b.Content)
		if len(spans) > 0 {
			sc.Spans[id] = spans
		}
		if b.Align != "" && b.Align != docmodel.AlignLeft {
			sc.Blocks[id] = BlockMeta{Align: b.Align}
		}
		out := anchorLine(id) + "\n" + text
		if len(b.Children) > 0 {
			nested, err := serializeBlocks(b.Children, sc, imgStore)
			if err != nil {
				return "", err
			}
			out += "\n" + indentContinuation(nested, "  ")
		}
		return out, nil

	case docmodel.Heading:
		text, spans := serializeInline(b.Content)
		if len(spans) > 0 {
			sc.Spans[id] = spans
		}
		if b.Align != "" && b.Align != docmodel.AlignLeft {
			sc.Blocks[id] = BlockMeta{Align: b.Align}
		}
		level := b.Level
		if level < 1 || level > 6 {
			level = 1
		}
		return anchorLine(id) + "\n" + strings.Repeat("#", level) + " " + text, nil

	case docmodel.CodeBlock:
		return anchorLine(id) + "\n```" + b.Language + "\n" + b.Code + "\n```", nil

	case docmodel.HorizontalRule:
		return anchorLine(id) + "\n---", nil

	case docmodel.Image:
		ref, info, err := internImage(b, imgStore)
		if err != nil {
			return "", err
		}
		meta := BlockMeta{}
		if b.Width > 0 {
			meta.Width = b.Width
		}
		if b.Height > 0 {
			meta.Height = b.Height
		}
		if b.Float != "" {
			meta.Float = b.Float
		}
		if b.Align != "" && b.Align != docmodel.AlignLeft {
			meta.Align = b.Align
		}
		if meta != (BlockMeta{}) {
			sc.Blocks[id] = meta
		}
		sc.Images[ref] = ImageMeta{
			File:         info.Filename,
			OriginalName: info.OriginalName,
			Size:         info.SizeBytes,
			MimeType:     info.MimeType,
		}
		return anchorLine(id) + "\n" + fmt.Sprintf("![%s](%s)", b.Alt, ref), nil

	case docmodel.Blockquote:
		inner, err := serializeBlocks(b.Children, sc, imgStore)
		if err != nil {
			return "", err
		}
		return prefixLines(inner, "> "), nil

	case docmodel.BulletList, docmodel.OrderedList:
		var lines []string
		for i, child := range b.Children {
			rendered, err := serializeTopBlock(child, sc, imgStore)
			if err != nil {
				return "", err
			}
			prefix := "- "
			if b.Kind == docmodel.OrderedList {
				prefix = fmt.Sprintf("%d. ", i+1)
			}
			lines = append(lines, indentContinuation(rendered, prefix))
		}
		return strings.Join(lines, "\n"), nil

	default:
		text, _ := serializeInline(b.Content)
		return anchorLine(id) + "\n" + text, nil
	}
}

// internImage stores an inline data: URL image into imgStore (deduplicated
// by content hash) and returns its "@img:<hash>" ref. A Src already in
// "@img:" form is passed through unchanged when imgStore holds that image;
// otherwise it is handed to StoreDataURL like any other Src, which rejects
// it as a malformed data URL.
func internImage(b docmodel.Block, imgStore *imagestore.Store) (string, imagestore.Info, error) {
	if strings.HasPrefix(b.Src, "@img:") {
		if info, err := imgStore.Info(b.Src); err == nil {
			return b.Src, info, nil
		}
	}
	ref, info, err := imgStore.StoreDataURL(b.Src, b.OriginalName)
	if err != nil {
		return "", imagestore.Info{}, err
	}
	return ref, info, nil
}

// indentContinuation prefixes s's first line with prefix and every
// subsequent line with enough spaces to align under it.
func indentContinuation(s, prefix string) string {
	lines := strings.Split(s, "\n")
	pad := strings.Repeat(" ", len([]rune(prefix)))
	for i, l := range lines {
		if i == 0 {
			lines[i] = prefix + l
		} else if l == "" {
			lines[i] = l
		} else {
			lines[i] = pad + l
		}
	}
	return strings.Join(lines, "\n")
}

// prefixLines prefixes every line of s with prefix (blockquote rendering).
func prefixLines(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l == "" {
			lines[i] = strings.TrimRight(prefix, " ")
			continue
		}
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
