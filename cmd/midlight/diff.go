// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"strings"

	"github.com/midlightapp/midlight/internal/ui"
)

// printLineDiff renders a unified-style line diff of a and b using a
// standard-library longest-common-subsequence backtrace. There is no
// SPEC_FULL.md component whose domain is general text diffing (the
// checkpoint/draft content is opaque Markdown, not a structured format a
// third-party diff library targets), so this is deliberately hand-rolled
// rather than left unimplemented.
func printLineDiff(a, b string) {
	linesA := strings.Split(a, "\n")
	linesB := strings.Split(b, "\n")

	lcs := longestCommonSubsequence(linesA, linesB)

	i, j, k := 0, 0, 0
	for i < len(linesA) || j < len(linesB) {
		if k < len(lcs) && i < len(linesA) && j < len(linesB) && linesA[i] == lcs[k] && linesB[j] == lcs[k] {
			fmt.Printf("  %s\n", linesA[i])
			i++
			j++
			k++
			continue
		}
		if i < len(linesA) && (k >= len(lcs) || linesA[i] != lcs[k]) {
			fmt.Println(ui.DimText("- ") + linesA[i])
			i++
			continue
		}
		if j < len(linesB) && (k >= len(lcs) || linesB[j] != lcs[k]) {
			fmt.Println(ui.Label("+ ") + linesB[j])
			j++
			continue
		}
	}
}

// longestCommonSubsequence returns the LCS of a and b via the standard
// O(len(a)*len(b)) dynamic-programming table and backtrace.
func longestCommonSubsequence(a, b []string) []string {
	n, m := len(a), len(b)
	table := make([][]int, n+1)
	for i := range table {
		table[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				table[i][j] = table[i+1][j+1] + 1
			} else if table[i+1][j] >= table[i][j+1] {
				table[i][j] = table[i+1][j]
			} else {
				table[i][j] = table[i][j+1]
			}
		}
	}

	var out []string
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case table[i+1][j] >= table[i][j+1]:
			i++
		default:
			j++
		}
	}
	return out
}
