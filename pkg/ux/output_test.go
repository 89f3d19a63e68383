// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

func captureStdout(t *testing.T, f func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = orig

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

func captureStderr(t *testing.T, f func()) string {
	t.Helper()
	orig := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stderr = w

	f()

	w.Close()
	os.Stderr = orig

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

func TestSuccess_MachineModePrefix(t *testing.T) {
	restorePersonality(t)
	SetPersonalityLevel(PersonalityMachine)

	out := captureStdout(t, func() { Success("orchestrator healthy") })
	if out != "OK: orchestrator healthy\n" {
		t.Errorf("got %q", out)
	}
}

// Machine mode keeps diagnostics off stdout so piped answers stay
// clean.
func TestWarningAndError_MachineModeGoToStderr(t *testing.T) {
	restorePersonality(t)
	SetPersonalityLevel(PersonalityMachine)

	var errOut string
	stdOut := captureStdout(t, func() {
		errOut = captureStderr(t, func() {
			Warning("integrity check failed")
			Error("stream interrupted")
		})
	})

	if stdOut != "" {
		t.Errorf("stdout should be empty, got %q", stdOut)
	}
	if !strings.Contains(errOut, "WARN: integrity check failed") {
		t.Errorf("missing WARN line: %q", errOut)
	}
	if !strings.Contains(errOut, "ERROR: stream interrupted") {
		t.Errorf("missing ERROR line: %q", errOut)
	}
}

func TestTitleAndMuted_SuppressedInMachineMode(t *testing.T) {
	restorePersonality(t)
	SetPersonalityLevel(PersonalityMachine)

	out := captureStdout(t, func() {
		Title("Sources")
		Muted("Session: abc")
	})
	if out != "" {
		t.Errorf("expected no output, got %q", out)
	}
}

func TestInfo_MachineModeIsPlainText(t *testing.T) {
	restorePersonality(t)
	SetPersonalityLevel(PersonalityMachine)

	out := captureStdout(t, func() { Info("docs/auth/oauth.md (0.90)") })
	if out != "docs/auth/oauth.md (0.90)\n" {
		t.Errorf("got %q", out)
	}
}

func TestInfo_StandardModeHasGutter(t *testing.T) {
	restorePersonality(t)
	SetPersonalityLevel(PersonalityStandard)

	out := captureStdout(t, func() { Info("docs/auth/oauth.md") })
	if !strings.Contains(out, "│") {
		t.Errorf("missing gutter: %q", out)
	}
	if !strings.Contains(out, "docs/auth/oauth.md") {
		t.Errorf("missing text: %q", out)
	}
}

func TestMinimalMode_UsesGlyphsWithoutEscapes(t *testing.T) {
	restorePersonality(t)
	SetPersonalityLevel(PersonalityMinimal)

	out := captureStdout(t, func() {
		Success("done")
		Warning("slow")
		Error("failed")
	})

	for _, glyph := range []string{glyphOK, glyphCaution, glyphFault} {
		if !strings.Contains(out, glyph) {
			t.Errorf("missing glyph %q in %q", glyph, out)
		}
	}
}

func TestStandardMode_IncludesMessageText(t *testing.T) {
	restorePersonality(t)
	SetPersonalityLevel(PersonalityStandard)

	out := captureStdout(t, func() {
		Title("Sources")
		Success("verified")
		Muted("hint")
	})

	for _, want := range []string{"Sources", "verified", "hint"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}
