// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter defines the contract for writing Server-Sent Events to HTTP
// responses.
//
// # Description
//
// SSEWriter abstracts SSE event serialization and writing, enabling
// testability and separation from HTTP response mechanics.
// Implementations handle the SSE wire format
// (event: type\ndata: json\n\n) internally and serialize every event
// through one encoder, so all variants share metadata handling.
//
// Each event is automatically assigned:
//   - Id: UUID v4 for ordering and deduplication
//   - CreatedAt: Unix timestamp in milliseconds
//   - Hash: SHA-256 hash of event content for integrity
//   - PrevHash: Hash of previous event for chain verification
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple
// goroutines. Streaming handlers emit events and keepalives from
// different goroutines.
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders before writing.
type SSEWriter interface {
	// WriteEvent writes a single event, populating Id, CreatedAt,
	// Hash, and PrevHash before serialization.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteStatus writes a status event for a pipeline stage.
	WriteStatus(stage, message string) error

	// WriteSources writes the retrieved source citations.
	WriteSources(sources []datatypes.SourceCitation) error

	// WriteToken writes one token event. Accumulated must extend the
	// previous token event's accumulated text.
	WriteToken(accumulated, delta string) error

	// WriteComplete writes the terminal complete event.
	WriteComplete(message string, sources []datatypes.SourceCitation, suggestions []string, sessionID string) error

	// WriteError writes an error event. The message must already be
	// sanitized for client display.
	WriteError(errMsg string) error

	// WriteKeepAlive sends an SSE comment (": ping\n\n") to keep the
	// connection alive during long operations. Comments are ignored
	// by clients but reset load balancer idle timers. Does not update
	// the hash chain.
	WriteKeepAlive() error
}

// =============================================================================
// Implementation
// =============================================================================

// sseWriter implements SSEWriter over an http.ResponseWriter.
//
// # Description
//
// Events are written as:
//
//	event: {type}
//	data: {json}
//
// The writer maintains a hash chain for integrity verification: each
// event's Hash is SHA-256 over its content fields, and PrevHash links
// to the previous event. Clients can verify the chain to detect
// dropped or reordered events.
//
// # Thread Safety
//
// Thread-safe via mutex; chain integrity holds across concurrent
// writes.
type sseWriter struct {
	writer   http.ResponseWriter
	flusher  http.Flusher
	prevHash string
	mu       sync.Mutex
}

// NewSSEWriter creates an SSEWriter for the given ResponseWriter.
//
// # Inputs
//
//   - w: HTTP ResponseWriter. Must implement http.Flusher.
//
// # Outputs
//
//   - SSEWriter: Ready to write events.
//   - error: Non-nil if the ResponseWriter does not support flushing.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &sseWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

// WriteEvent writes a single SSE event to the response.
//
// Populates event metadata, computes the chain hash, serializes to
// JSON, and flushes immediately.
func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()
	event.PrevHash = w.prevHash

	// Hash is computed with the field still empty.
	event.Hash = computeEventHash(event)
	w.prevHash = event.Hash

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// computeEventHash computes the SHA-256 content hash for the chain.
//
// # Description
//
// Hashes metadata (Id, Type, CreatedAt, PrevHash) plus every variant
// content field, with sources serialized to JSON for consistent
// hashing. The Hash field itself must be empty when called.
func computeEventHash(event datatypes.StreamEvent) string {
	sourcesJSON := ""
	if len(event.Sources) > 0 {
		if data, err := json.Marshal(event.Sources); err == nil {
			sourcesJSON = string(data)
		}
	}

	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s|%s|%s|%s",
		event.Id,
		event.Type,
		event.CreatedAt,
		event.PrevHash,
		event.Stage,
		event.Message,
		event.Accumulated,
		event.Delta,
		event.Error,
		event.SessionId,
		sourcesJSON+"|"+strings.Join(event.Suggestions, ","),
	)

	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

func (w *sseWriter) WriteStatus(stage, message string) error {
	return w.WriteEvent(datatypes.NewStatusEvent(stage, message))
}

func (w *sseWriter) WriteSources(sources []datatypes.SourceCitation) error {
	return w.WriteEvent(datatypes.NewSourcesEvent(sources))
}

func (w *sseWriter) WriteToken(accumulated, delta string) error {
	return w.WriteEvent(datatypes.NewTokenEvent(accumulated, delta))
}

func (w *sseWriter) WriteComplete(message string, sources []datatypes.SourceCitation, suggestions []string, sessionID string) error {
	return w.WriteEvent(datatypes.NewCompleteEvent(message, sources, suggestions, sessionID))
}

func (w *sseWriter) WriteError(errMsg string) error {
	return w.WriteEvent(datatypes.NewErrorEvent(errMsg))
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// SSE comment format: colon followed by text, then double newline.
	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures HTTP response headers for SSE streaming.
//
// Sets Content-Type: text/event-stream, disables caching and proxy
// buffering. Must be called before any response body is written.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ SSEWriter = (*sseWriter)(nil)
