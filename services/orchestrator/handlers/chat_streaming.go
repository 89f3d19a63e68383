// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/datatypes"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/observability"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/services"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// heartbeatInterval is the interval for sending keepalive pings.
	// Set to 15s to stay well under typical LB timeouts (60s for ALB/Nginx).
	heartbeatInterval = 15 * time.Second
)

// =============================================================================
// Interface Definition
// =============================================================================

// StreamingChatHandler defines the contract for handling streaming chat
// HTTP requests.
//
// # Description
//
// StreamingChatHandler abstracts the SSE chat endpoint, enabling
// different implementations and facilitating testing via mocks.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple
// goroutines. HTTP handlers are called concurrently by the Gin
// framework.
//
// # Assumptions
//
//   - All dependencies are properly initialized before handler use
//   - Gin context is valid and not nil
type StreamingChatHandler interface {
	// HandleChatStream processes chat requests with SSE streaming.
	//
	// # Description
	//
	// Handles POST /api/chat/stream requests. Runs the orchestration
	// pipeline and streams progress via Server-Sent Events.
	//
	// # Outputs
	//
	// SSE stream with events:
	//   - status: Stage transitions (retrieving, generating)
	//   - sources: Citations once retrieval completes
	//   - token: Accumulated answer plus the latest delta
	//   - complete: Final answer with suggestions and session ID
	//   - error: Emitted only when streaming fails mid-flight
	//
	// HTTP Status (before streaming starts):
	//   - 400 Bad Request: Invalid request body or validation failure
	//   - 500 Internal Server Error: SSE setup failure
	//
	// # Assumptions
	//
	//   - Client supports SSE
	HandleChatStream(c *gin.Context)
}

// =============================================================================
// Struct Definition
// =============================================================================

// streamingChatHandler implements StreamingChatHandler for production use.
//
// # Description
//
// streamingChatHandler coordinates between the HTTP layer and the
// orchestrator. It performs HTTP-related tasks and delegates the
// pipeline to the injected orchestrator:
//   - Request parsing and validation
//   - SSE header configuration
//   - Stream event emission via the hash-chained writer
//   - Token accumulation in locked memory
//   - Error handling and cleanup
//
// # Thread Safety
//
// Thread-safe. All fields are read-only after construction. No shared
// mutable state between requests.
type streamingChatHandler struct {
	orchestrator *services.ChatOrchestrator
	tracer       trace.Tracer
}

// NewStreamingChatHandler creates a StreamingChatHandler with the
// provided orchestrator. Panics on nil orchestrator (programming
// error).
func NewStreamingChatHandler(orch *services.ChatOrchestrator) StreamingChatHandler {
	if orch == nil {
		panic("NewStreamingChatHandler: orchestrator must not be nil")
	}
	return &streamingChatHandler{
		orchestrator: orch,
		tracer:       otel.Tracer("speedboat.orchestrator.handlers.chat_streaming"),
	}
}

// =============================================================================
// Handler Methods
// =============================================================================

// HandleChatStream processes chat requests with SSE streaming.
//
// # Description
//
// The flow is:
//  1. Parse and validate the request body
//  2. Set SSE headers and create the hash-chained writer
//  3. Start the heartbeat goroutine
//  4. Run the orchestrator with an SSE-backed emitter
//  5. Emit the complete event with session ID and suggestions
//
// Tokens are additionally accumulated in locked memory so the final
// answer hash can be checked against the orchestrator result.
func (h *streamingChatHandler) HandleChatStream(c *gin.Context) {
	startTime := time.Now()
	endpoint := observability.EndpointChatStream

	ctx, span := h.tracer.Start(c.Request.Context(), "HandleChatStream")
	defer span.End()

	// Track active stream (for metrics)
	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	success := false
	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			duration := time.Since(startTime).Seconds()
			m.RecordRequest(endpoint, success)
			m.RecordStreamDuration(endpoint, duration, success)
		}
	}()

	// Step 1: Parse and validate the request body
	var req datatypes.ChatRequest
	if err := c.BindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		slog.Error("Failed to parse streaming chat request", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, datatypes.NewErrorResponse("VALIDATION", "invalid request body", false))
		return
	}

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		slog.Error("Streaming request validation failed", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, datatypes.NewErrorResponse("VALIDATION", err.Error(), false))
		return
	}

	span.SetAttributes(
		attribute.String("request.session_id", req.SessionId),
		attribute.Int("request.message_bytes", len(req.Message)),
	)

	// Step 2: Set SSE headers and create writer
	SetSSEHeaders(c.Writer)
	sseWriter, err := NewSSEWriter(c.Writer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "SSE setup failed")
		slog.Error("Failed to create SSE writer", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		c.JSON(http.StatusInternalServerError, datatypes.NewErrorResponse("INTERNAL", "streaming not supported", false))
		return
	}

	// Step 3: Start heartbeat goroutine to prevent connection timeouts
	heartbeatDone := make(chan struct{})
	go h.runHeartbeat(ctx, sseWriter, endpoint, heartbeatDone)

	// Step 4: Create accumulator for answer integrity hashing
	accumulator, accErr := NewTokenAccumulator()
	if accErr != nil {
		slog.Warn("failed to create token accumulator, continuing without answer hash", "error", accErr)
	}
	defer func() {
		if accumulator != nil {
			accumulator.Destroy()
		}
	}()

	// Step 5: Run the orchestrator with an SSE-backed emitter
	emitter := &sseEmitter{writer: sseWriter, accumulator: accumulator}
	result, procErr := h.orchestrator.Process(ctx, &req, emitter)

	// Stop heartbeat
	close(heartbeatDone)

	if procErr != nil {
		span.RecordError(procErr)
		span.SetStatus(codes.Error, "streaming failed")
		slog.Error("Streaming chat failed", "error", procErr)

		if errors.Is(procErr, context.Canceled) {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeClientDisconnect)
				m.RecordClientDisconnect(endpoint)
			}
			// Client is gone, nothing left to write.
			return
		}
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		_ = sseWriter.WriteError("stream interrupted")
		return
	}

	// Record time to first token
	if ttft, ok := emitter.firstTokenLatency(startTime); ok {
		span.SetAttributes(attribute.Float64("stream.time_to_first_token_seconds", ttft))
		if m := observability.DefaultMetrics; m != nil {
			m.RecordTimeToFirstToken(endpoint, ttft)
		}
	}

	span.SetAttributes(
		attribute.String("chat.run_id", result.Session.RunId),
		attribute.Int("chat.sources_count", len(result.Citations)),
		attribute.Int("chat.degradations", len(result.Degradations)),
	)
	recordDegradations(result.Degradations)

	// Step 6: Verify the accumulated answer and log the integrity hash.
	// Fallback answers bypass the accumulator, so only compare when
	// tokens actually flowed through it.
	if accumulator != nil && emitter.tokenCount() > 0 {
		answer, answerHash, finalizeErr := accumulator.Finalize()
		switch {
		case finalizeErr != nil:
			slog.Warn("failed to finalize token accumulator", "error", finalizeErr)
		case answer != result.Message:
			slog.Warn("accumulated answer diverged from orchestrator result",
				"runId", result.Session.RunId,
			)
		default:
			slog.Debug("answer integrity hash computed",
				"runId", result.Session.RunId,
				"hash", answerHash,
			)
		}
	}

	// Step 7: Emit complete event with session ID
	if err := sseWriter.WriteComplete(result.Message, result.Citations, result.Suggestions, result.Session.SessionId); err != nil {
		span.RecordError(err)
		slog.Error("Failed to write complete event", "error", err)
		return
	}

	success = true
	span.SetStatus(codes.Ok, "stream completed")
}

// runHeartbeat sends keepalive pings until done is closed or the
// request context ends. Keepalives are comments on the wire and do not
// participate in the event hash chain.
func (h *streamingChatHandler) runHeartbeat(ctx context.Context, w SSEWriter, endpoint observability.Endpoint, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.WriteKeepAlive(); err != nil {
				slog.Debug("keepalive write failed, client likely disconnected", "error", err)
				return
			}
			if m := observability.DefaultMetrics; m != nil {
				m.RecordKeepAlive(endpoint)
			}
		}
	}
}

// =============================================================================
// SSE Emitter
// =============================================================================

// sseEmitter adapts the SSE writer to the orchestrator's progress
// interface. It records first-token time for metrics and feeds deltas
// into the token accumulator.
//
// Thread Safety: Safe for concurrent use; the orchestrator emits from
// its streaming goroutine.
type sseEmitter struct {
	writer      SSEWriter
	accumulator TokenAccumulator

	mu         sync.Mutex
	tokens     int
	firstToken time.Time
}

var _ services.Emitter = (*sseEmitter)(nil)

func (e *sseEmitter) Stage(stage, message string) error {
	return e.writer.WriteStatus(stage, message)
}

func (e *sseEmitter) Sources(citations []datatypes.SourceCitation) error {
	return e.writer.WriteSources(citations)
}

func (e *sseEmitter) Token(total, delta string) error {
	e.mu.Lock()
	if e.tokens == 0 {
		e.firstToken = time.Now()
	}
	e.tokens++
	e.mu.Unlock()

	if e.accumulator != nil {
		if err := e.accumulator.Write(delta); err != nil {
			slog.Debug("token accumulator write failed", "error", err)
		}
	}
	return e.writer.WriteToken(total, delta)
}

// tokenCount reports how many token events were emitted.
func (e *sseEmitter) tokenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tokens
}

// firstTokenLatency returns the seconds from start to the first token,
// and whether any token was emitted at all.
func (e *sseEmitter) firstTokenLatency(start time.Time) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tokens == 0 {
		return 0, false
	}
	return e.firstToken.Sub(start).Seconds(), true
}
