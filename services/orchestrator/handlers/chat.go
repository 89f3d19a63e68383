// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/datatypes"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/observability"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/services"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var chatTracer = otel.Tracer("speedboat.orchestrator.handlers")

// HandleChat processes non-streaming chat requests.
//
// # Description
//
// Handles POST /api/chat. Runs the full orchestration pipeline and
// returns the complete answer in one JSON response. Per-stage timings
// are surfaced as response headers so clients can observe degradation
// without parsing the body.
//
// # Outputs
//
// Response headers:
//   - X-Session-Id, X-Run-Id: Session identity for this turn.
//   - X-Memory-Time, X-Search-Time, X-Generation-Time, X-Total-Time:
//     Per-stage durations in milliseconds.
//
// HTTP Status:
//   - 200 OK: Answer produced, possibly from fallback content.
//   - 400 Bad Request: Invalid request body or validation failure.
func HandleChat(orch *services.ChatOrchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := observability.EndpointChat

		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var req datatypes.ChatRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid request body")
			slog.Error("Failed to parse chat request", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeValidation)
			}
			c.JSON(http.StatusBadRequest, datatypes.NewErrorResponse("VALIDATION", "invalid request body", false))
			return
		}

		if err := req.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "validation failed")
			slog.Error("Chat request validation failed", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeValidation)
			}
			c.JSON(http.StatusBadRequest, datatypes.NewErrorResponse("VALIDATION", err.Error(), false))
			return
		}

		result, err := orch.Process(ctx, &req, services.NopEmitter{})
		if err != nil {
			// Process only errors on client disconnect.
			span.RecordError(err)
			span.SetStatus(codes.Error, "client disconnected")
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeClientDisconnect)
				m.RecordRequest(endpoint, false)
			}
			return
		}

		span.SetAttributes(
			attribute.String("chat.run_id", result.Session.RunId),
			attribute.Int("chat.sources_count", len(result.Citations)),
			attribute.Int("chat.degradations", len(result.Degradations)),
		)

		recordDegradations(result.Degradations)

		c.Header("X-Session-Id", result.Session.SessionId)
		c.Header("X-Run-Id", result.Session.RunId)
		c.Header("X-Memory-Time", formatMillis(result.Timings.Memory))
		c.Header("X-Search-Time", formatMillis(result.Timings.Search))
		c.Header("X-Generation-Time", formatMillis(result.Timings.Generation))
		c.Header("X-Total-Time", formatMillis(result.Timings.Total))

		resp := datatypes.NewChatResponse(result.Message, result.Session.ConversationId, result.Citations)
		resp.Suggestions = result.Suggestions
		resp.RelatedTopics = result.RelatedTopics

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(endpoint, true)
		}
		span.SetStatus(codes.Ok, "chat completed")
		c.JSON(http.StatusOK, resp)
	}
}

// formatMillis renders a duration as integer milliseconds for headers.
func formatMillis(d time.Duration) string {
	return fmt.Sprintf("%d", d.Milliseconds())
}

// recordDegradations feeds the per-dependency fallback counters from
// the orchestrator's degradation list. Entries look like
// "memory:timeout" or "generation:quota-fallback".
func recordDegradations(degradations []string) {
	m := observability.DefaultMetrics
	if m == nil {
		return
	}
	for _, d := range degradations {
		dependency, cause, ok := strings.Cut(d, ":")
		if !ok {
			cause = "unknown"
		}
		m.RecordDependencyFallback(dependency, cause)
	}
}
