// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package serializer

import (
	"regexp"
	"strings"
	"unicode/utf16"

	"github.com/midlightapp/midlight/pkg/docmodel"
)

// utf16Len returns the number of UTF-16 code units s would occupy, the unit
// spec §4.4 mandates for span offsets.
func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

func hasMark(marks []docmodel.Mark, kind docmodel.MarkKind) bool {
	for _, m := range marks {
		if m.Kind == kind {
			return true
		}
	}
	return false
}

func nonNativeMarks(marks []docmodel.Mark) []docmodel.Mark {
	var out []docmodel.Mark
	for _, m := range marks {
		switch m.Kind {
		case docmodel.Bold, docmodel.Italic, docmodel.Code, docmodel.Link:
			continue
		default:
			out = append(out, m)
		}
	}
	return out
}

// renderNative wraps run's plain text in the native Markdown syntax for its
// bold/italic/code/link marks, per spec §4.4 ("bold+italic -> ***...***").
func renderNative(run docmodel.Text) string {
	text := escapeMarkdownLiteral(run.Value)
	if hasMark(run.Marks, docmodel.Code) {
		return "`" + run.Value + "`" // code spans are not escaped further
	}
	bold := hasMark(run.Marks, docmodel.Bold)
	italic := hasMark(run.Marks, docmodel.Italic)
	switch {
	case bold && italic:
		text = "***" + text + "***"
	case bold:
		text = "**" + text + "**"
	case italic:
		text = "*" + text + "*"
	}
	for _, m := range run.Marks {
		if m.Kind == docmodel.Link {
			if m.Title != "" {
				text = "[" + text + "](" + m.Href + ` "` + m.Title + `")`
			} else {
				text = "[" + text + "](" + m.Href + ")"
			}
		}
	}
	return text
}

// escapeMarkdownLiteral escapes characters that would otherwise be
// misread as Markdown syntax inside a run of otherwise-plain text.
func escapeMarkdownLiteral(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`*`, `\*`,
		"`", "\\`",
		`[`, `\[`,
		`]`, `\]`,
	)
	return replacer.Replace(s)
}

// serializeInline renders a block's text runs to Markdown and collects the
// Spans needed for marks with no native representation (underline, strike,
// highlight, textStyle, fontSize, sub/superscript).
func serializeInline(texts []docmodel.Text) (string, []Span) {
	var b strings.Builder
	var spans []Span
	utf16Pos := 0
	for _, run := range texts {
		rendered := renderNative(run)
		extra := nonNativeMarks(run.Marks)
		if len(extra) > 0 {
			start := utf16Pos
			end := start + utf16Len(rendered)
			spans = append(spans, Span{Start: start, End: end, Marks: extra})
		}
		b.WriteString(rendered)
		utf16Pos += utf16Len(rendered)
	}
	return b.String(), spans
}

var (
	boldItalicPattern = regexp.MustCompile(`^\*\*\*(.+?)\*\*\*`)
	boldPattern       = regexp.MustCompile(`^\*\*(.+?)\*\*`)
	italicPattern     = regexp.MustCompile(`^\*(.+?)\*`)
	codePattern       = regexp.MustCompile("^`([^`]+)`")
	linkPattern       = regexp.MustCompile(`^\[([^\]]*)\]\(([^)\s]+)(?:\s+"([^"]*)")?\)`)
	spanOpenPattern   = regexp.MustCompile(`(?i)^<span\s+style="([^"]*)"[^>]*>`)
	spanClosePattern  = regexp.MustCompile(`(?i)^</span>`)
)

// run is one inline text node produced while parsing raw Markdown, together
// with the [rawStart, rawEnd) UTF-16 range of raw source it was parsed
// from — used to approximately re-apply Sidecar spans (see package doc).
type run struct {
	text     docmodel.Text
	rawStart int
	rawEnd   int
}

// parseInline parses raw Markdown inline content into text runs, matching
// native Markdown marks and legacy "<span style=...>" tags with balanced
// nesting (depth-tracked, so "</span>" always closes its own "<span>").
func parseInline(raw string) []run {
	var runs []run
	var plain strings.Builder
	plainStart := 0
	utf16Pos := 0

	var styleStack []docmodel.Mark
	// spanDepth[i] is the number of marks the i-th still-open <span> pushed
	// onto styleStack, so </span> pops exactly its own span's marks even
	// when a single <span style="..."> carries multiple CSS declarations.
	var spanDepth []int

	flushPlain := func() {
		if plain.Len() == 0 {
			return
		}
		val := plain.String()
		var marks []docmodel.Mark
		if len(styleStack) > 0 {
			marks = append(marks, styleStack...)
		}
		runs = append(runs, run{text: docmodel.Text{Value: val, Marks: marks}, rawStart: plainStart, rawEnd: utf16Pos})
		plain.Reset()
	}

	rest := raw
	for len(rest) > 0 {
		if m := boldItalicPattern.FindStringSubmatch(rest); m != nil {
			flushPlain()
			start := utf16Pos
			marks := append([]docmodel.Mark{{Kind: docmodel.Bold}, {Kind: docmodel.Italic}}, styleStack...)
			inner := unescapeMarkdownLiteral(m[1])
			runs = append(runs, run{text: docmodel.Text{Value: inner, Marks: marks}, rawStart: start, rawEnd: start + utf16Len(m[0])})
			rest = rest[len(m[0]):]
			utf16Pos += utf16Len(m[0])
			plainStart = utf16Pos
			continue
		}
		if m := boldPattern.FindStringSubmatch(rest); m != nil {
			flushPlain()
			start := utf16Pos
			marks := append([]docmodel.Mark{{Kind: docmodel.Bold}}, styleStack...)
			inner := unescapeMarkdownLiteral(m[1])
			runs = append(runs, run{text: docmodel.Text{Value: inner, Marks: marks}, rawStart: start, rawEnd: start + utf16Len(m[0])})
			rest = rest[len(m[0]):]
			utf16Pos += utf16Len(m[0])
			plainStart = utf16Pos
			continue
		}
		if m := italicPattern.FindStringSubmatch(rest); m != nil {
			flushPlain()
			start := utf16Pos
			marks := append([]docmodel.Mark{{Kind: docmodel.Italic}}, styleStack...)
			inner := unescapeMarkdownLiteral(m[1])
			runs = append(runs, run{text: docmodel.Text{Value: inner, Marks: marks}, rawStart: start, rawEnd: start + utf16Len(m[0])})
			rest = rest[len(m[0]):]
			utf16Pos += utf16Len(m[0])
			plainStart = utf16Pos
			continue
		}
		if m := codePattern.FindStringSubmatch(rest); m != nil {
			flushPlain()
			start := utf16Pos
			marks := append([]docmodel.Mark{{Kind: docmodel.Code}}, styleStack...)
			runs = append(runs, run{text: docmodel.Text{Value: m[1], Marks: marks}, rawStart: start, rawEnd: start + utf16Len(m[0])})
			rest = rest[len(m[0]):]
			utf16Pos += utf16Len(m[0])
			plainStart = utf16Pos
			continue
		}
		if m := linkPattern.FindStringSubmatch(rest); m != nil {
			flushPlain()
			start := utf16Pos
			marks := append([]docmodel.Mark{{Kind: docmodel.Link, Href: m[2], Title: m[3]}}, styleStack...)
			inner := unescapeMarkdownLiteral(m[1])
			runs = append(runs, run{text: docmodel.Text{Value: inner, Marks: marks}, rawStart: start, rawEnd: start + utf16Len(m[0])})
			rest = rest[len(m[0]):]
			utf16Pos += utf16Len(m[0])
			plainStart = utf16Pos
			continue
		}
		if m := spanOpenPattern.FindStringSubmatch(rest); m != nil {
			flushPlain()
			pushed := stylesToMarks(m[1])
			styleStack = append(styleStack, pushed...)
			spanDepth = append(spanDepth, len(pushed))
			rest = rest[len(m[0]):]
			utf16Pos += utf16Len(m[0])
			plainStart = utf16Pos
			continue
		}
		if m := spanClosePattern.FindString(rest); m != "" && len(spanDepth) > 0 {
			flushPlain()
			// Pop exactly the marks pushed by the innermost still-open span.
			styleStack, spanDepth = popLastSpanMarks(styleStack, spanDepth)
			rest = rest[len(m):]
			utf16Pos += utf16Len(m)
			plainStart = utf16Pos
			continue
		}

		// No special syntax matched at this position: consume one rune.
		r := []rune(rest)[0]
		plain.WriteRune(r)
		consumed := string(r)
		rest = rest[len(consumed):]
		utf16Pos += utf16Len(consumed)
	}
	flushPlain()

	if len(runs) == 0 {
		return nil
	}
	return runs
}

// popLastSpanMarks removes all marks contributed by the most recently
// opened (innermost) <span>, which may have pushed more than one mark when
// its style attribute carried multiple CSS declarations.
func popLastSpanMarks(stack []docmodel.Mark, depth []int) ([]docmodel.Mark, []int) {
	if len(depth) == 0 {
		return stack, depth
	}
	n := depth[len(depth)-1]
	depth = depth[:len(depth)-1]
	stack = stack[:len(stack)-n]
	return stack, depth
}

// stylesToMarks parses a "color: red; font-family: Arial" style attribute
// into Marks, recognizing color, background-color (highlight), font-family,
// and font-size.
func stylesToMarks(style string) []docmodel.Mark {
	var marks []docmodel.Mark
	for _, decl := range strings.Split(style, ";") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		parts := strings.SplitN(decl, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		val := strings.TrimSpace(parts[1])
		switch key {
		case "color":
			marks = append(marks, docmodel.Mark{Kind: docmodel.TextStyle, Color: val})
		case "background-color":
			marks = append(marks, docmodel.Mark{Kind: docmodel.Highlight, Color: val})
		case "font-family":
			marks = append(marks, docmodel.Mark{Kind: docmodel.TextStyle, FontFamily: val})
		case "font-size":
			marks = append(marks, docmodel.Mark{Kind: docmodel.FontSize, Size: val})
		}
	}
	return marks
}

// unescapeMarkdownLiteral reverses escapeMarkdownLiteral for inner content
// captured out of native mark syntax.
func unescapeMarkdownLiteral(s string) string {
	replacer := strings.NewReplacer(
		`\*`, `*`,
		"\\`", "`",
		`\[`, `[`,
		`\]`, `]`,
		`\\`, `\`,
	)
	return replacer.Replace(s)
}

// applySpans merges Sidecar span marks into the runs whose raw range
// overlaps each span, deduplicating by mark kind. Since rawStart/rawEnd
// track the *consumed* source range rather than the exact post-strip
// character position, this is deliberately approximate for spans that
// straddle a native mark boundary — see spec.md §9's Open Question and
// this package's doc comment.
func applySpans(runs []run, spans []Span) []docmodel.Text {
	texts := make([]docmodel.Text, len(runs))
	for i, r := range runs {
		texts[i] = r.text
	}
	for _, span := range spans {
		var known []docmodel.Mark
		for _, mk := range span.Marks {
			switch mk.Kind {
			case docmodel.Bold, docmodel.Italic, docmodel.Code, docmodel.Link,
				docmodel.Underline, docmodel.Strike, docmodel.Highlight, docmodel.TextStyle,
				docmodel.FontSize, docmodel.Superscript, docmodel.Subscript:
				known = append(known, mk)
			}
		}
		for i, r := range runs {
			if r.rawEnd <= span.Start || r.rawStart >= span.End {
				continue
			}
			texts[i].Marks = dedupMarks(append(texts[i].Marks, known...))
		}
	}
	return texts
}

func dedupMarks(marks []docmodel.Mark) []docmodel.Mark {
	seen := map[docmodel.MarkKind]bool{}
	var out []docmodel.Mark
	for _, m := range marks {
		if seen[m.Kind] {
			continue
		}
		seen[m.Kind] = true
		out = append(out, m)
	}
	return out
}
