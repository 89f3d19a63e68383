// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux renders streamed chat answers in the terminal: SSE
// processing, hash chain verification, and the styled output helpers
// the ask and health commands print with.
package ux

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Signal palette. Answers stay unstyled; color marks the frame around
// them (section titles, verdicts, citation metadata).
var (
	colorAccent  = lipgloss.Color("#5FD7FF") // section titles, spinner
	colorOK      = lipgloss.Color("#5FD787") // healthy verdicts
	colorCaution = lipgloss.Color("#FFAF5F") // degraded states, failed integrity
	colorFault   = lipgloss.Color("#FF5F5F") // errors
	colorDim     = lipgloss.Color("#6C7A86") // session hints, hashes, gutters
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	okStyle      = lipgloss.NewStyle().Foreground(colorOK)
	cautionStyle = lipgloss.NewStyle().Foreground(colorCaution)
	faultStyle   = lipgloss.NewStyle().Foreground(colorFault)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	accentStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
)

// Status glyphs used by the verdict helpers.
const (
	glyphOK      = "✓"
	glyphCaution = "⚠"
	glyphFault   = "✗"
)

// Title prints a bold section heading, such as the Sources footer
// after an answer. Suppressed in machine mode.
func Title(text string) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	fmt.Println(titleStyle.Render(text))
}

// Success prints a positive verdict line.
func Success(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(os.Stdout, "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Printf("%s %s\n", glyphOK, text)
	default:
		fmt.Printf("%s %s\n", okStyle.Render(glyphOK), okStyle.Render(text))
	}
}

// Warning prints a caution line, e.g. a failed integrity check or a
// degraded health report. Machine mode routes it to stderr so piped
// answer text stays clean.
func Warning(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(os.Stderr, "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Printf("%s %s\n", glyphCaution, text)
	default:
		fmt.Printf("%s %s\n", cautionStyle.Render(glyphCaution), cautionStyle.Render(text))
	}
}

// Error prints a failure line. Machine mode routes it to stderr.
func Error(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", text)
	case PersonalityMinimal:
		fmt.Printf("%s %s\n", glyphFault, text)
	default:
		fmt.Printf("%s %s\n", faultStyle.Render(glyphFault), faultStyle.Render(text))
	}
}

// Info prints a detail line under the current section with a dim
// gutter, used for citations and health fields.
func Info(text string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", dimStyle.Render("│"), text)
}

// Muted prints low-priority text such as session resume hints and
// integrity digests. Suppressed in machine mode.
func Muted(text string) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	fmt.Println(dimStyle.Render(text))
}
