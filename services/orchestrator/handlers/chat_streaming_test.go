// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/datatypes"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Setup
// =============================================================================

func newStreamingRouter(chunks []string, docs []datatypes.Document) *gin.Engine {
	router := gin.New()
	streaming := NewStreamingChatHandler(newHandlerOrchestrator(chunks, docs))
	router.POST("/api/chat/stream", streaming.HandleChatStream)
	return router
}

// eventsByType filters the parsed stream to one event type.
func eventsByType(events []datatypes.StreamEvent, eventType datatypes.StreamEventType) []datatypes.StreamEvent {
	var matched []datatypes.StreamEvent
	for _, event := range events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

// =============================================================================
// HandleChatStream Tests
// =============================================================================

func TestHandleChatStream_EventOrder(t *testing.T) {
	t.Setenv(insecureMemoryEnv, "true")

	router := newStreamingRouter([]string{"OAuth ", "explained."}, testDocs())
	w := performRequest(router, "POST", "/api/chat/stream", datatypes.ChatRequest{Message: "what is oauth"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := parseSSE(t, w.Body.String())
	require.GreaterOrEqual(t, len(events), 5)

	// First event announces retrieval, before any sources or tokens.
	assert.Equal(t, datatypes.StreamEventStatus, events[0].Type)
	assert.Equal(t, datatypes.StageRetrieving, events[0].Stage)

	var sawSources, sawGenerating, sawToken bool
	for _, event := range events {
		switch event.Type {
		case datatypes.StreamEventSources:
			assert.False(t, sawToken, "sources must precede tokens")
			sawSources = true
		case datatypes.StreamEventStatus:
			if event.Stage == datatypes.StageGenerating {
				assert.False(t, sawToken, "generating status must precede tokens")
				sawGenerating = true
			}
		case datatypes.StreamEventToken:
			sawToken = true
		}
	}
	assert.True(t, sawSources)
	assert.True(t, sawGenerating)
	assert.True(t, sawToken)

	// Stream ends with the complete event.
	last := events[len(events)-1]
	assert.Equal(t, datatypes.StreamEventComplete, last.Type)
	assert.NotEmpty(t, last.SessionId)
}

func TestHandleChatStream_TokensAccumulate(t *testing.T) {
	t.Setenv(insecureMemoryEnv, "true")

	router := newStreamingRouter([]string{"OAuth ", "explained."}, testDocs())
	w := performRequest(router, "POST", "/api/chat/stream", datatypes.ChatRequest{Message: "what is oauth"})
	require.Equal(t, http.StatusOK, w.Code)

	events := parseSSE(t, w.Body.String())
	tokens := eventsByType(events, datatypes.StreamEventToken)
	require.Len(t, tokens, 2)
	assert.Equal(t, "OAuth ", tokens[0].Delta)
	assert.Equal(t, "OAuth ", tokens[0].Accumulated)
	assert.Equal(t, "explained.", tokens[1].Delta)
	assert.Equal(t, "OAuth explained.", tokens[1].Accumulated)

	last := events[len(events)-1]
	require.Equal(t, datatypes.StreamEventComplete, last.Type)
	assert.Equal(t, tokens[1].Accumulated, last.Message)
}

func TestHandleChatStream_HashChain(t *testing.T) {
	t.Setenv(insecureMemoryEnv, "true")

	router := newStreamingRouter([]string{"OAuth ", "explained."}, testDocs())
	w := performRequest(router, "POST", "/api/chat/stream", datatypes.ChatRequest{Message: "what is oauth"})
	require.Equal(t, http.StatusOK, w.Code)

	events := parseSSE(t, w.Body.String())
	verifyChain(t, events)
}

func TestHandleChatStream_SourcesCited(t *testing.T) {
	t.Setenv(insecureMemoryEnv, "true")

	router := newStreamingRouter([]string{"answer"}, testDocs())
	w := performRequest(router, "POST", "/api/chat/stream", datatypes.ChatRequest{Message: "what is oauth"})
	require.Equal(t, http.StatusOK, w.Code)

	events := parseSSE(t, w.Body.String())
	sources := eventsByType(events, datatypes.StreamEventSources)
	require.Len(t, sources, 1)
	require.Len(t, sources[0].Sources, 1)
	assert.Equal(t, "docs/auth/oauth.md", sources[0].Sources[0].Filepath)
}

func TestHandleChatStream_PreservesSessionId(t *testing.T) {
	t.Setenv(insecureMemoryEnv, "true")

	sessionID := "550e8400-e29b-41d4-a716-446655440000"
	router := newStreamingRouter([]string{"hi"}, nil)
	w := performRequest(router, "POST", "/api/chat/stream", datatypes.ChatRequest{
		Message:   "hello",
		SessionId: sessionID,
	})
	require.Equal(t, http.StatusOK, w.Code)

	events := parseSSE(t, w.Body.String())
	last := events[len(events)-1]
	require.Equal(t, datatypes.StreamEventComplete, last.Type)
	assert.Equal(t, sessionID, last.SessionId)
}

func TestHandleChatStream_InvalidBody(t *testing.T) {
	router := newStreamingRouter([]string{"hi"}, nil)

	req, _ := http.NewRequest("POST", "/api/chat/stream", bytes.NewBufferString("{broken"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION", resp.Error.Code)
}

func TestHandleChatStream_EmptyMessageRejected(t *testing.T) {
	router := newStreamingRouter([]string{"hi"}, nil)
	w := performRequest(router, "POST", "/api/chat/stream", datatypes.ChatRequest{Message: ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
