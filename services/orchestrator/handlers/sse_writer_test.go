// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseSSE splits a raw SSE body into typed events, skipping comment
// blocks (keepalives).
func parseSSE(t *testing.T, body string) []datatypes.StreamEvent {
	t.Helper()

	var events []datatypes.StreamEvent
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" || strings.HasPrefix(block, ":") {
			continue
		}

		var eventType, data string
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				eventType = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
		require.NotEmpty(t, eventType, "block without event line: %q", block)
		require.NotEmpty(t, data, "block without data line: %q", block)

		var event datatypes.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(data), &event))
		assert.Equal(t, eventType, string(event.Type), "event line must match payload type")
		events = append(events, event)
	}
	return events
}

// verifyChain recomputes every event hash and checks the links.
func verifyChain(t *testing.T, events []datatypes.StreamEvent) {
	t.Helper()

	prev := ""
	for i, event := range events {
		assert.Equal(t, prev, event.PrevHash, "event %d prev_hash", i)

		clone := event
		clone.Hash = ""
		assert.Equal(t, computeEventHash(clone), event.Hash, "event %d hash", i)
		prev = event.Hash
	}
}

// nonFlushingWriter implements http.ResponseWriter without
// http.Flusher.
type nonFlushingWriter struct{ header http.Header }

func (w nonFlushingWriter) Header() http.Header       { return w.header }
func (w nonFlushingWriter) Write(b []byte) (int, error) { return len(b), nil }
func (w nonFlushingWriter) WriteHeader(int)           {}

func TestSSEWriter_RequiresFlusher(t *testing.T) {
	_, err := NewSSEWriter(nonFlushingWriter{header: http.Header{}})
	assert.Error(t, err)
}

func TestSSEWriter_WireFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteStatus(datatypes.StageRetrieving, "Searching knowledge base"))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: status\ndata: "), "body: %q", body)
	assert.True(t, strings.HasSuffix(body, "\n\n"))
}

func TestSSEWriter_PopulatesMetadata(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteToken("Hello", "Hello"))

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].Id)
	assert.NotZero(t, events[0].CreatedAt)
	assert.NotEmpty(t, events[0].Hash)
	assert.Empty(t, events[0].PrevHash, "first event has no predecessor")
}

func TestSSEWriter_HashChainLinks(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	sources := []datatypes.SourceCitation{
		{Id: "doc-1", Filepath: "docs/auth.md", Source: datatypes.SourceGithub, Authority: datatypes.AuthorityPrimary, Score: 0.9},
	}

	require.NoError(t, w.WriteStatus(datatypes.StageRetrieving, "Searching knowledge base"))
	require.NoError(t, w.WriteSources(sources))
	require.NoError(t, w.WriteStatus(datatypes.StageGenerating, "Generating answer"))
	require.NoError(t, w.WriteToken("OAuth", "OAuth"))
	require.NoError(t, w.WriteToken("OAuth is", " is"))
	require.NoError(t, w.WriteComplete("OAuth is an authorization framework.", sources, []string{"What else relates to this topic?"}, "sess-1"))

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 6)
	verifyChain(t, events)
}

func TestSSEWriter_KeepAliveSkipsChain(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteStatus(datatypes.StageRetrieving, "Searching knowledge base"))
	require.NoError(t, w.WriteKeepAlive())
	require.NoError(t, w.WriteToken("a", "a"))

	body := rec.Body.String()
	assert.Contains(t, body, ": ping\n\n")

	// The chain must still verify with the comment interleaved.
	events := parseSSE(t, body)
	require.Len(t, events, 2)
	verifyChain(t, events)
}

func TestSSEWriter_ErrorEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteError("stream interrupted"))

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, datatypes.StreamEventError, events[0].Type)
	assert.Equal(t, "stream interrupted", events[0].Error)
}

func TestSetSSEHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSSEHeaders(rec)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}
