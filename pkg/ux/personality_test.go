// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import "testing"

func restorePersonality(t *testing.T) {
	t.Helper()
	orig := GetPersonality()
	t.Cleanup(func() { SetPersonality(orig) })
}

func TestSetPersonalityLevel_RoundTrips(t *testing.T) {
	restorePersonality(t)

	for _, level := range []PersonalityLevel{
		PersonalityFull, PersonalityStandard, PersonalityMinimal, PersonalityMachine,
	} {
		SetPersonalityLevel(level)
		if got := GetPersonality().Level; got != level {
			t.Errorf("level %q: got %q", level, got)
		}
	}
}

func TestParsePersonalityLevel(t *testing.T) {
	cases := map[string]PersonalityLevel{
		"full":     PersonalityFull,
		"FULL":     PersonalityFull,
		"standard": PersonalityStandard,
		"std":      PersonalityStandard,
		"minimal":  PersonalityMinimal,
		"min":      PersonalityMinimal,
		"machine":  PersonalityMachine,
		"plain":    PersonalityMachine,
		"quiet":    PersonalityMachine,
		" machine": PersonalityMachine,
	}
	for input, want := range cases {
		if got := ParsePersonalityLevel(input); got != want {
			t.Errorf("%q: got %q, want %q", input, got, want)
		}
	}
}

func TestParsePersonalityLevel_UnknownFallsBackToStandard(t *testing.T) {
	for _, input := range []string{"", "loud", "nautical"} {
		if got := ParsePersonalityLevel(input); got != PersonalityStandard {
			t.Errorf("%q: got %q, want standard", input, got)
		}
	}
}

func TestInitPersonality_EnvOverride(t *testing.T) {
	restorePersonality(t)
	t.Setenv("SPEEDBOAT_PERSONALITY", "minimal")

	InitPersonality()
	if got := GetPersonality().Level; got != PersonalityMinimal {
		t.Errorf("got %q, want minimal", got)
	}
}

// Test binaries run with stdout redirected, so without the env
// override InitPersonality must land on machine mode.
func TestInitPersonality_NonTerminalIsMachine(t *testing.T) {
	restorePersonality(t)
	t.Setenv("SPEEDBOAT_PERSONALITY", "")

	InitPersonality()
	if got := GetPersonality().Level; got != PersonalityMachine {
		t.Errorf("got %q, want machine", got)
	}
}
