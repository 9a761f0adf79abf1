// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides the CLI's colored, human-readable output helpers.
// Color is auto-disabled when stdout is not a terminal, when --no-color is
// passed, or when NO_COLOR is set in the environment.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	subHeader    = color.New(color.FgCyan)
	labelColor   = color.New(color.Bold)
	dimColor     = color.New(color.Faint)
	warnColor    = color.New(color.FgYellow, color.Bold)
	errColor     = color.New(color.FgRed, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
	countColor   = color.New(color.FgMagenta)
)

// DisableColor turns off all color output, e.g. for --no-color or a non-tty
// stdout. Safe to call multiple times.
func DisableColor() {
	color.NoColor = true
}

// AutoDetect disables color when stdout is not a terminal or NO_COLOR is
// set, matching the teacher's CLI-output convention. Call once at startup
// before any --no-color flag override is applied.
func AutoDetect() {
	if os.Getenv("NO_COLOR") != "" {
		DisableColor()
		return
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		DisableColor()
	}
}

// Header prints a bold cyan section header line.
func Header(s string) {
	headerColor.Println(s)
}

// SubHeader prints a cyan, non-bold sub-section label.
func SubHeader(s string) {
	subHeader.Println(s)
}

// Label formats a bold field label, e.g. for "Label: value" rows.
func Label(s string) string {
	return labelColor.Sprint(s)
}

// DimText formats text in a faint, low-emphasis style (paths, timestamps).
func DimText(s string) string {
	return dimColor.Sprint(s)
}

// CountText formats a numeric count, highlighted for scanability.
func CountText(n int) string {
	return countColor.Sprint(n)
}

// Warning prints a yellow warning line to stderr.
func Warning(s string) {
	fmt.Fprintln(os.Stderr, warnColor.Sprint("warning: ")+s)
}

// Warningf prints a formatted yellow warning line to stderr.
func Warningf(format string, args ...interface{}) {
	Warning(fmt.Sprintf(format, args...))
}

// Info prints a plain informational line to stderr.
func Info(s string) {
	fmt.Fprintln(os.Stderr, s)
}

// Success prints a green success line to stdout.
func Success(s string) {
	fmt.Println(successColor.Sprint("✓ ") + s)
}

// Errorf prints a formatted red error line to stderr without exiting.
func Errorf(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, errColor.Sprint("error: ")+fmt.Sprintf(format, args...))
}
