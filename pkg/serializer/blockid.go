// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package serializer

import (
	"crypto/rand"
	"fmt"
	"regexp"

	"github.com/midlightapp/midlight/pkg/docmodel"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// anchorPattern matches an HTML comment block-id anchor on its own line,
// e.g. "<!-- @mid:p-a1b2c3 -->".
var anchorPattern = regexp.MustCompile(`^<!--\s*@mid:([a-z]+-[0-9a-z]{6})\s*-->$`)

// randomBase36 returns n random lowercase base36 characters. Block ids are
// freshly generated on every serialize (spec §3); stability across saves is
// not required or attempted.
func randomBase36(n int) string {
	buf := make([]byte, n)
	out := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to a
		// fixed pattern rather than panicking mid-serialize.
		for i := range out {
			out[i] = base36Alphabet[0]
		}
		return string(out)
	}
	for i, b := range buf {
		out[i] = base36Alphabet[int(b)%len(base36Alphabet)]
	}
	return string(out)
}

// blockIDKind maps a Block's Kind to the short prefix token used in its id.
func blockIDKind(kind docmodel.BlockKind) string {
	switch kind {
	case docmodel.Paragraph:
		return "p"
	case docmodel.Heading:
		return "h"
	case docmodel.BulletList, docmodel.OrderedList, docmodel.ListItem:
		return "list"
	case docmodel.Blockquote:
		return "bq"
	case docmodel.CodeBlock:
		return "code"
	case docmodel.Image:
		return "img"
	default:
		return "p"
	}
}

// newBlockID returns a fresh "<kind>-<6base36>" id for kind.
func newBlockID(kind docmodel.BlockKind) string {
	return fmt.Sprintf("%s-%s", blockIDKind(kind), randomBase36(6))
}

// anchorLine renders the HTML comment anchor for a block id.
func anchorLine(id string) string {
	return "<!-- @mid:" + id + " -->"
}
