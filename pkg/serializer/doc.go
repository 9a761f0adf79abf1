// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package serializer implements the lossy-but-stable round trip between a
// docmodel.Doc tree and its on-disk (Markdown text, Sidecar JSON) pair
// (spec.md §4.4). Each emitted block gets a fresh "<!-- @mid:<id> -->"
// anchor; marks with a native Markdown form (bold, italic, code, link) are
// rendered inline, and marks without one (underline, strike, highlight,
// textStyle, fontSize, sub/superscript) are recorded as Sidecar Spans keyed
// by block id with UTF-16 offsets over the block's final Markdown text.
//
// Open Question (spec.md §9): the deserializer re-applies Sidecar spans to
// parsed text runs by raw source-range overlap rather than exact
// post-strip character offsets, so a span that straddles a native mark's
// delimiters may attach to a slightly different run than the one it was
// recorded against. This is a known, documented approximation, not a bug.
package serializer
