// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains request and response types for the chat endpoints.
// For the streaming event union, see stream.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single chat message.
	// Checked in bytes (not runes) to bound memory use on large payloads.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxSourcesPerRequest caps how many documents a client may ask for.
	MaxSourcesPerRequest = 20

	// DefaultMaxSources is used when the client does not specify a limit.
	DefaultMaxSources = 8
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed
// MaxMessageContentBytes. Byte length, not rune count.
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxMessageContentBytes
}

// =============================================================================
// Chat Request Types
// =============================================================================

// ChatRequest represents a chat request body for both the JSON and the
// streaming endpoint.
//
// # Description
//
// ChatRequest carries the user's message plus optional correlation
// identifiers. When SessionId or ConversationId are omitted the
// orchestrator generates fresh ones; RunId is always generated
// server-side, never accepted from the client.
//
// # Fields
//
//   - Message: Required. The user's query. Limited to 32KB.
//   - SessionId: Optional. Existing session to continue (UUID v4).
//   - ConversationId: Optional. Conversation the turn belongs to (UUID v4).
//   - UserId: Optional. Opaque user identifier for memory scoping.
//   - MaxSources: Optional. Upper bound on cited documents (0-20).
//     Zero means "use the classifier's choice".
//
// # Validation
//
// Uses go-playground/validator:
//   - Message: required, max 32768 bytes per the maxbytes validator
//   - SessionId/ConversationId: must be UUID v4 when present
//   - MaxSources: 0-20
type ChatRequest struct {
	Message        string `json:"message" validate:"required,maxbytes"`
	SessionId      string `json:"session_id,omitempty" validate:"omitempty,uuid4"`
	ConversationId string `json:"conversation_id,omitempty" validate:"omitempty,uuid4"`
	UserId         string `json:"user_id,omitempty" validate:"omitempty,max=128"`
	MaxSources     int    `json:"max_sources,omitempty" validate:"gte=0,lte=20"`
}

// Validate validates the ChatRequest fields.
//
// This method should be called after binding the JSON request.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// =============================================================================
// Session Identity
// =============================================================================

// Session correlates one chat turn to memory and logs.
//
// SessionId and ConversationId are preserved from the request when
// present; RunId is freshly generated for every request. The Session
// lives for the request plus any asynchronous memory write-back.
type Session struct {
	SessionId      string `json:"session_id"`
	ConversationId string `json:"conversation_id"`
	RunId          string `json:"run_id"`
	UserId         string `json:"user_id,omitempty"`
}

// DeriveSession builds the Session for a request, generating any
// identifier the client did not supply.
func DeriveSession(req *ChatRequest) Session {
	s := Session{
		SessionId:      req.SessionId,
		ConversationId: req.ConversationId,
		RunId:          uuid.New().String(),
		UserId:         req.UserId,
	}
	if s.SessionId == "" {
		s.SessionId = uuid.New().String()
	}
	if s.ConversationId == "" {
		s.ConversationId = uuid.New().String()
	}
	return s
}

// =============================================================================
// Chat Response Types
// =============================================================================

// ChatResponse is the non-streaming response envelope.
//
// # Fields
//
//   - Success: Always true for a completed turn; a valid request never
//     yields Success=false from the orchestrator itself.
//   - Message: The generated (or fallback) answer. Never empty.
//   - ConversationId: Echo for conversation continuity.
//   - Sources: Citations for the documents that grounded the answer.
//   - Suggestions: Follow-up question suggestions.
//   - RelatedTopics: Topics derived from the cited sources.
//   - Timestamp: Unix milliseconds when the response was assembled.
type ChatResponse struct {
	Success        bool             `json:"success"`
	Message        string           `json:"message"`
	ConversationId string           `json:"conversation_id"`
	Sources        []SourceCitation `json:"sources,omitempty"`
	Suggestions    []string         `json:"suggestions,omitempty"`
	RelatedTopics  []string         `json:"related_topics,omitempty"`
	Timestamp      int64            `json:"timestamp"`
}

// NewChatResponse creates a ChatResponse with the timestamp set.
func NewChatResponse(message, conversationId string, sources []SourceCitation) *ChatResponse {
	return &ChatResponse{
		Success:        true,
		Message:        message,
		ConversationId: conversationId,
		Sources:        sources,
		Timestamp:      time.Now().UnixMilli(),
	}
}

// ErrorBody is the error payload for admission and validation failures.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ErrorResponse is the envelope returned for 4xx/5xx responses.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// NewErrorResponse creates an ErrorResponse for the given code.
func NewErrorResponse(code, message string, retryable bool) *ErrorResponse {
	return &ErrorResponse{
		Success: false,
		Error: ErrorBody{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}
