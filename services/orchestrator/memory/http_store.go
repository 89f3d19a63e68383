// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/datatypes"
)

var memoryTracer = otel.Tracer("speedboat.orchestrator.memory")

// =============================================================================
// Errors
// =============================================================================

// MemoryError represents a failure reported by the memory service.
type MemoryError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

// Error implements the error interface.
func (e *MemoryError) Error() string {
	return fmt.Sprintf("memory service error (status %d): %s", e.StatusCode, e.Message)
}

// IsMemoryError checks if an error is a MemoryError.
func IsMemoryError(err error) (*MemoryError, bool) {
	var memErr *MemoryError
	if errors.As(err, &memErr) {
		return memErr, true
	}
	return nil, false
}

// =============================================================================
// HTTP Store
// =============================================================================

// HTTPStore is a Store backed by the JSON-over-HTTP memory service.
//
// # Description
//
// HTTPStore talks to two endpoints:
//
//	POST {base}/memory/context  -> MemoryContext for a conversation
//	POST {base}/memory/add      -> persist one exchange
//
// Timeouts come from the caller via context; the embedded http.Client
// timeout is only a last-resort bound against leaked requests.
//
// Thread Safety: Safe for concurrent use.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStore creates a store for the memory service at baseURL.
func NewHTTPStore(baseURL string) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// contextRequest is the wire request for context retrieval.
type contextRequest struct {
	ConversationId string `json:"conversation_id"`
	SessionId      string `json:"session_id"`
}

// GetConversationContext implements Store.
func (s *HTTPStore) GetConversationContext(ctx context.Context, conversationID, sessionID string) (*datatypes.MemoryContext, error) {
	ctx, span := memoryTracer.Start(ctx, "HTTPStore.GetConversationContext")
	defer span.End()
	span.SetAttributes(attribute.String("memory.conversation_id", conversationID))

	body, err := s.post(ctx, "/memory/context", &contextRequest{
		ConversationId: conversationID,
		SessionId:      sessionID,
	})
	if err != nil {
		return nil, err
	}

	var memCtx datatypes.MemoryContext
	if err := json.Unmarshal(body, &memCtx); err != nil {
		return nil, fmt.Errorf("failed to parse memory context: %w", err)
	}

	span.SetAttributes(attribute.Int("memory.items_count", len(memCtx.RelevantMemories)))
	return &memCtx, nil
}

// Add implements Store.
func (s *HTTPStore) Add(ctx context.Context, req *datatypes.MemoryWriteRequest) error {
	ctx, span := memoryTracer.Start(ctx, "HTTPStore.Add")
	defer span.End()
	span.SetAttributes(attribute.String("memory.session_id", req.SessionId))

	_, err := s.post(ctx, "/memory/add", req)
	return err
}

// post performs one JSON POST and returns the response body. Non-2xx
// statuses map to MemoryError with retryability from the status code.
func (s *HTTPStore) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal memory request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+path, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &MemoryError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Retryable:  isRetryableStatusCode(resp.StatusCode),
		}
	}
	return body, nil
}

// isRetryableStatusCode reports whether a retry may succeed.
//
// Retryable codes: 502 Bad Gateway, 503 Service Unavailable,
// 504 Gateway Timeout.
func isRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

var _ Store = (*HTTPStore)(nil)
