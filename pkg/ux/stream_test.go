// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

// =============================================================================
// Test Helpers
// =============================================================================

// buildSSE serializes events the way the server writes them, hash chain
// included, so processor tests exercise real wire bytes.
func buildSSE(t *testing.T, events []StreamEvent) string {
	t.Helper()

	computer := NewSHA256HashComputer()
	var buf strings.Builder
	prevHash := ""

	for i, event := range events {
		event.Id = fmt.Sprintf("event-%d", i)
		event.CreatedAt = int64(1735657200000 + i)
		event.PrevHash = prevHash
		event.Hash = ""
		event.Hash = computer.ComputeEventHash(event)
		prevHash = event.Hash

		data, err := json.Marshal(event)
		if err != nil {
			t.Fatalf("marshal event %d: %v", i, err)
		}
		fmt.Fprintf(&buf, "event: %s\ndata: %s\n\n", event.Type, data)
	}
	return buf.String()
}

func answerStream(t *testing.T) string {
	t.Helper()
	return buildSSE(t, []StreamEvent{
		{Type: StreamEventStatus, Stage: "retrieving", Message: "Searching knowledge base"},
		{Type: StreamEventSources, Sources: []SourceInfo{{Id: "s1", Filepath: "docs/auth.md", Source: "github", Score: 0.9}}, Count: 1},
		{Type: StreamEventStatus, Stage: "generating", Message: "Generating answer"},
		{Type: StreamEventToken, Accumulated: "OAuth ", Delta: "OAuth "},
		{Type: StreamEventToken, Accumulated: "OAuth explained.", Delta: "explained."},
		{Type: StreamEventComplete, Message: "OAuth explained.", Suggestions: []string{"How do refresh tokens work?"}, SessionID: "session-1"},
	})
}

// =============================================================================
// Process Tests
// =============================================================================

func TestStreamProcessor_AssemblesAnswer(t *testing.T) {
	var out bytes.Buffer
	proc := NewStreamProcessorWithWriter(&out, PersonalityMachine)

	result, err := proc.Process(strings.NewReader(answerStream(t)))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.Answer != "OAuth explained." {
		t.Errorf("expected assembled answer, got %q", result.Answer)
	}
	if result.SessionID != "session-1" {
		t.Errorf("expected session-1, got %q", result.SessionID)
	}
	if len(result.Sources) != 1 || result.Sources[0].Filepath != "docs/auth.md" {
		t.Errorf("unexpected sources: %+v", result.Sources)
	}
	if len(result.Suggestions) != 1 {
		t.Errorf("expected 1 suggestion, got %d", len(result.Suggestions))
	}
}

func TestStreamProcessor_CollectsEventsForVerification(t *testing.T) {
	var out bytes.Buffer
	proc := NewStreamProcessorWithWriter(&out, PersonalityMachine)

	result, err := proc.Process(strings.NewReader(answerStream(t)))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.TotalEvents != 6 {
		t.Fatalf("expected 6 events, got %d", result.TotalEvents)
	}
	if result.ChainHash != result.Events[5].Hash {
		t.Error("ChainHash should be the last event's hash")
	}

	verification := NewFullChainVerifier().Verify(result.Events)
	if !verification.Valid {
		t.Errorf("server-built chain should verify: %s", verification.ErrorMessage)
	}
}

func TestStreamProcessor_MachineModeOutput(t *testing.T) {
	var out bytes.Buffer
	proc := NewStreamProcessorWithWriter(&out, PersonalityMachine)

	if _, err := proc.Process(strings.NewReader(answerStream(t))); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	output := out.String()
	if !strings.Contains(output, "STATUS: Searching knowledge base") {
		t.Errorf("expected status line, got %q", output)
	}
	if !strings.Contains(output, "ANSWER: OAuth explained.") {
		t.Errorf("expected buffered answer line, got %q", output)
	}
}

func TestStreamProcessor_StreamsTokensInStandardMode(t *testing.T) {
	var out bytes.Buffer
	proc := NewStreamProcessorWithWriter(&out, PersonalityStandard)

	if _, err := proc.Process(strings.NewReader(answerStream(t))); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !strings.Contains(out.String(), "OAuth explained.") {
		t.Errorf("expected streamed tokens in output, got %q", out.String())
	}
}

func TestStreamProcessor_SkipsKeepAliveComments(t *testing.T) {
	stream := ": ping\n\n" + answerStream(t) // keepalive before first event

	var out bytes.Buffer
	proc := NewStreamProcessorWithWriter(&out, PersonalityMachine)
	result, err := proc.Process(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.TotalEvents != 6 {
		t.Errorf("keepalives must not appear as events, got %d", result.TotalEvents)
	}
}

func TestStreamProcessor_ErrorEvent(t *testing.T) {
	stream := buildSSE(t, []StreamEvent{
		{Type: StreamEventStatus, Stage: "retrieving", Message: "Searching knowledge base"},
		{Type: StreamEventError, Error: "stream interrupted"},
	})

	var out bytes.Buffer
	proc := NewStreamProcessorWithWriter(&out, PersonalityMachine)
	_, err := proc.Process(strings.NewReader(stream))
	if err == nil {
		t.Fatal("expected error from error event")
	}
	if err.Error() != "stream interrupted" {
		t.Errorf("expected server error message, got %q", err.Error())
	}
}

func TestStreamProcessor_FallbackAnswerOnCompleteOnly(t *testing.T) {
	// Degraded answers carry no token events, only the complete message.
	stream := buildSSE(t, []StreamEvent{
		{Type: StreamEventStatus, Stage: "retrieving", Message: "Searching knowledge base"},
		{Type: StreamEventComplete, Message: "The assistant is busy right now.", SessionID: "session-2"},
	})

	var out bytes.Buffer
	proc := NewStreamProcessorWithWriter(&out, PersonalityMachine)
	result, err := proc.Process(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.Answer != "The assistant is busy right now." {
		t.Errorf("expected fallback answer, got %q", result.Answer)
	}
}

func TestStreamProcessor_MalformedPayloadFails(t *testing.T) {
	stream := "event: token\ndata: {not json}\n\n"

	var out bytes.Buffer
	proc := NewStreamProcessorWithWriter(&out, PersonalityMachine)
	if _, err := proc.Process(strings.NewReader(stream)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestStreamProcessor_TruncatedStreamReturnsPartial(t *testing.T) {
	full := answerStream(t)
	// Cut the stream after the first token event block.
	blocks := strings.SplitAfter(full, "\n\n")
	truncated := strings.Join(blocks[:4], "")

	var out bytes.Buffer
	proc := NewStreamProcessorWithWriter(&out, PersonalityMachine)
	result, err := proc.Process(strings.NewReader(truncated))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.Answer != "OAuth " {
		t.Errorf("expected partial answer, got %q", result.Answer)
	}
	if result.SessionID != "" {
		t.Errorf("no complete event means no session, got %q", result.SessionID)
	}
}
