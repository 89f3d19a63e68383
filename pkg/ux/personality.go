// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"
)

// PersonalityLevel selects how much decoration the CLI emits around a
// streamed answer.
type PersonalityLevel string

const (
	// PersonalityFull renders spinners, colors, and section titles.
	PersonalityFull PersonalityLevel = "full"

	// PersonalityStandard renders colors and titles without the spinner
	// flourishes.
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal renders status glyphs with uncolored text.
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine emits line-oriented plain text (STATUS:,
	// ANSWER:, OK:, ...) for piping into scripts. Spinners, colors,
	// and titles are suppressed.
	PersonalityMachine PersonalityLevel = "machine"
)

// Personality is the active output configuration.
type Personality struct {
	Level PersonalityLevel
}

var (
	personalityMu sync.RWMutex
	personality   = Personality{Level: PersonalityStandard}
)

// GetPersonality returns the active output configuration.
func GetPersonality() Personality {
	personalityMu.RLock()
	defer personalityMu.RUnlock()
	return personality
}

// SetPersonality replaces the active output configuration.
func SetPersonality(p Personality) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	personality = p
}

// SetPersonalityLevel replaces just the level.
func SetPersonalityLevel(level PersonalityLevel) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	personality.Level = level
}

// ParsePersonalityLevel maps a flag or env value to a level.
// Unrecognized values fall back to standard.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full":
		return PersonalityFull
	case "standard", "std":
		return PersonalityStandard
	case "minimal", "min":
		return PersonalityMinimal
	case "machine", "plain", "quiet":
		return PersonalityMachine
	default:
		return PersonalityStandard
	}
}

// InitPersonality picks the level for this invocation. The
// SPEEDBOAT_PERSONALITY env var wins; otherwise a terminal gets the
// full treatment and redirected output gets machine mode, so piping
// `speedboat ask` into another tool needs no extra flag.
func InitPersonality() {
	if env := os.Getenv("SPEEDBOAT_PERSONALITY"); env != "" {
		SetPersonalityLevel(ParsePersonalityLevel(env))
		return
	}
	if !stdoutIsTerminal() {
		SetPersonalityLevel(PersonalityMachine)
		return
	}
	SetPersonalityLevel(PersonalityFull)
}

func stdoutIsTerminal() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
