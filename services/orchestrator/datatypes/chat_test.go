// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"strings"
	"testing"
)

// =============================================================================
// ChatRequest Validation Tests
// =============================================================================

func TestChatRequest_Validate_Success(t *testing.T) {
	req := &ChatRequest{
		Message: "How does the ingestion pipeline work?",
	}

	if err := req.Validate(); err != nil {
		t.Errorf("expected valid request, got error: %v", err)
	}
}

func TestChatRequest_Validate_MissingMessage(t *testing.T) {
	req := &ChatRequest{}

	if err := req.Validate(); err == nil {
		t.Error("expected error for missing message, got nil")
	}
}

func TestChatRequest_Validate_MessageTooLarge(t *testing.T) {
	req := &ChatRequest{
		Message: strings.Repeat("a", MaxMessageContentBytes+1),
	}

	if err := req.Validate(); err == nil {
		t.Errorf("expected error for message over %d bytes, got nil", MaxMessageContentBytes)
	}
}

func TestChatRequest_Validate_MessageExactlyMaxBytes(t *testing.T) {
	req := &ChatRequest{
		Message: strings.Repeat("a", MaxMessageContentBytes),
	}

	if err := req.Validate(); err != nil {
		t.Errorf("expected valid request at exactly %d bytes, got error: %v",
			MaxMessageContentBytes, err)
	}
}

func TestChatRequest_Validate_MaxBytesCountsBytesNotRunes(t *testing.T) {
	// Multi-byte runes: each is 3 bytes in UTF-8 so a third of the
	// byte limit in runes already exceeds the limit.
	req := &ChatRequest{
		Message: strings.Repeat("世", MaxMessageContentBytes/3+1),
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for multi-byte message over the byte limit, got nil")
	}
}

func TestChatRequest_Validate_InvalidSessionId(t *testing.T) {
	req := &ChatRequest{
		Message:   "Hello",
		SessionId: "not-a-uuid",
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for invalid session_id, got nil")
	}
}

func TestChatRequest_Validate_ValidSessionId(t *testing.T) {
	req := &ChatRequest{
		Message:   "Hello",
		SessionId: "550e8400-e29b-41d4-a716-446655440000",
	}

	if err := req.Validate(); err != nil {
		t.Errorf("expected valid request, got error: %v", err)
	}
}

func TestChatRequest_Validate_MaxSourcesTooHigh(t *testing.T) {
	req := &ChatRequest{
		Message:    "Hello",
		MaxSources: MaxSourcesPerRequest + 1,
	}

	if err := req.Validate(); err == nil {
		t.Errorf("expected error for max_sources over %d, got nil", MaxSourcesPerRequest)
	}
}

func TestChatRequest_Validate_NegativeMaxSources(t *testing.T) {
	req := &ChatRequest{
		Message:    "Hello",
		MaxSources: -1,
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for negative max_sources, got nil")
	}
}

// =============================================================================
// Session Derivation Tests
// =============================================================================

func TestDeriveSession_GeneratesMissingIds(t *testing.T) {
	req := &ChatRequest{Message: "Hello"}

	s := DeriveSession(req)

	if s.SessionId == "" {
		t.Error("expected generated session_id, got empty")
	}
	if s.ConversationId == "" {
		t.Error("expected generated conversation_id, got empty")
	}
	if s.RunId == "" {
		t.Error("expected generated run_id, got empty")
	}
}

func TestDeriveSession_PreservesClientIds(t *testing.T) {
	req := &ChatRequest{
		Message:        "Hello",
		SessionId:      "550e8400-e29b-41d4-a716-446655440000",
		ConversationId: "650e8400-e29b-41d4-a716-446655440000",
		UserId:         "user-42",
	}

	s := DeriveSession(req)

	if s.SessionId != req.SessionId {
		t.Errorf("expected session_id %q preserved, got %q", req.SessionId, s.SessionId)
	}
	if s.ConversationId != req.ConversationId {
		t.Errorf("expected conversation_id %q preserved, got %q", req.ConversationId, s.ConversationId)
	}
	if s.UserId != "user-42" {
		t.Errorf("expected user_id preserved, got %q", s.UserId)
	}
}

func TestDeriveSession_RunIdAlwaysFresh(t *testing.T) {
	req := &ChatRequest{
		Message:   "Hello",
		SessionId: "550e8400-e29b-41d4-a716-446655440000",
	}

	first := DeriveSession(req)
	second := DeriveSession(req)

	if first.RunId == second.RunId {
		t.Error("expected a fresh run_id per derivation, got duplicates")
	}
}

// =============================================================================
// Response Envelope Tests
// =============================================================================

func TestNewChatResponse_SetsFields(t *testing.T) {
	sources := []SourceCitation{{Id: "doc-1", Filepath: "pkg/a.go"}}

	resp := NewChatResponse("answer", "conv-1", sources)

	if !resp.Success {
		t.Error("expected success=true")
	}
	if resp.Message != "answer" {
		t.Errorf("expected message %q, got %q", "answer", resp.Message)
	}
	if resp.ConversationId != "conv-1" {
		t.Errorf("expected conversation_id %q, got %q", "conv-1", resp.ConversationId)
	}
	if len(resp.Sources) != 1 {
		t.Errorf("expected 1 source, got %d", len(resp.Sources))
	}
	if resp.Timestamp == 0 {
		t.Error("expected timestamp to be set")
	}
}

func TestNewErrorResponse_SetsFields(t *testing.T) {
	resp := NewErrorResponse("RATE_LIMITED", "too many requests", true)

	if resp.Success {
		t.Error("expected success=false")
	}
	if resp.Error.Code != "RATE_LIMITED" {
		t.Errorf("expected code RATE_LIMITED, got %q", resp.Error.Code)
	}
	if !resp.Error.Retryable {
		t.Error("expected retryable=true")
	}
}
