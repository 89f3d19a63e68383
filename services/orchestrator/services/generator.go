// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/afoxnyc3/speedboat-agent/services/llm"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/datatypes"
)

var generatorTracer = otel.Tracer("speedboat.orchestrator.generator")

// =============================================================================
// Configuration
// =============================================================================

const (
	// MaxStreamDuration is the hard ceiling on one generation call.
	MaxStreamDuration = 45 * time.Second

	// StallWarningAfter is the gap between token chunks that triggers
	// a stall warning. The warning does not abort the stream; only the
	// hard ceiling does.
	StallWarningAfter = 5 * time.Second

	// CitationLimit caps how many sources are cited per answer.
	CitationLimit = 5

	// CitationPreviewLen is the excerpt length for each citation.
	CitationPreviewLen = 150
)

// Generation stages reported through onStage.
type Stage string

const (
	StageGeneratingTokens Stage = "generating"
	StageComplete         Stage = "complete"
	StageTimeoutFallback  Stage = "timeout-fallback"
	StageDegradedFallback Stage = "quota-fallback"
	StageGenericFallback  Stage = "generic-fallback"
)

// degradedSubstrings mark authentication and quota failures from the
// generation backend.
var degradedSubstrings = []string{"401", "429", "quota", "billing", "api key"}

// =============================================================================
// Generator
// =============================================================================

// StreamInput carries one generation request.
type StreamInput struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	Documents    []datatypes.Document
}

// GenResult is the outcome of one generation call.
type GenResult struct {
	Content   string
	Citations []datatypes.SourceCitation

	// Fallback is empty for genuine content, otherwise the stage name
	// of the fallback template that produced Content.
	Fallback Stage

	FirstTokenLatency time.Duration
	Duration          time.Duration
	TokenChunks       int
}

// Generator streams answers from the LLM backend with bounded time
// and graceful fallbacks.
type Generator struct {
	client llm.LLMClient
	logger *slog.Logger

	maxDuration time.Duration
	stallAfter  time.Duration
}

// NewGenerator creates a Generator over the given backend.
func NewGenerator(client llm.LLMClient, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		client:      client,
		logger:      logger,
		maxDuration: MaxStreamDuration,
		stallAfter:  StallWarningAfter,
	}
}

// Stream runs one generation call.
//
// # Description
//
// Tokens stream to onToken as (accumulated, delta) pairs; accumulated
// is strictly prefix-extending. Stage transitions go to onStage. On
// backend failure the result carries a fallback template instead of an
// error: the timeout template lists the retrieved sources and asks the
// user to retry, the degraded template explains offline mode for
// auth/quota failures, and anything else gets a generic apology. The
// returned content is never empty.
//
// The only error return is the caller's own cancellation (client
// disconnect), where producing fallback content is pointless.
//
// # Inputs
//
//   - ctx: Request context. Cancellation aborts the stream.
//   - in: Prompts, temperature, and the retrieved documents.
//   - onToken: Called per chunk with accumulated text and the delta.
//     A non-nil error aborts the stream.
//   - onStage: Called on stage transitions. May be nil.
//
// # Outputs
//
//   - *GenResult: Content, citations, and timing metadata.
//   - error: Non-nil only when ctx was cancelled by the caller.
func (g *Generator) Stream(ctx context.Context, in StreamInput, onToken func(total, delta string) error, onStage func(Stage)) (*GenResult, error) {
	ctx, span := generatorTracer.Start(ctx, "Generator.Stream")
	defer span.End()

	if onStage == nil {
		onStage = func(Stage) {}
	}

	genCtx, cancel := context.WithTimeout(ctx, g.maxDuration)
	defer cancel()

	citations := BuildCitations(in.Documents, CitationPreviewLen)
	start := time.Now()

	onStage(StageGeneratingTokens)

	var (
		mu          sync.Mutex
		accumulated strings.Builder
		chunks      int
		firstToken  time.Duration
	)

	// Stall watchdog: warns when no chunk arrives within the
	// threshold. Reset on every chunk, stopped when streaming ends.
	lastChunk := make(chan struct{}, 1)
	watchdogDone := make(chan struct{})
	go g.runStallWatchdog(genCtx, lastChunk, watchdogDone)

	messages := []llm.Message{
		{Role: "system", Content: in.SystemPrompt},
		{Role: "user", Content: in.UserPrompt},
	}
	temp := in.Temperature
	params := llm.GenerationParams{Temperature: &temp}

	streamErr := g.client.ChatStream(genCtx, messages, params, func(ev llm.StreamEvent) error {
		if ev.Done || ev.Content == "" {
			return nil
		}
		mu.Lock()
		if chunks == 0 {
			firstToken = time.Since(start)
		}
		chunks++
		accumulated.WriteString(ev.Content)
		total := accumulated.String()
		mu.Unlock()

		select {
		case lastChunk <- struct{}{}:
		default:
		}
		return onToken(total, ev.Content)
	})
	close(watchdogDone)

	result := &GenResult{
		Content:           accumulated.String(),
		Citations:         citations,
		FirstTokenLatency: firstToken,
		Duration:          time.Since(start),
		TokenChunks:       chunks,
	}
	span.SetAttributes(
		attribute.Int("generation.token_chunks", chunks),
		attribute.Float64("generation.first_token_seconds", firstToken.Seconds()),
	)

	if streamErr == nil && result.Content != "" {
		onStage(StageComplete)
		return result, nil
	}
	if streamErr == nil {
		// Backend completed without emitting anything usable.
		streamErr = errors.New("generation produced no content")
	}

	// Caller cancellation: the client is gone, no fallback to send.
	if ctx.Err() != nil && genCtx.Err() != context.DeadlineExceeded {
		return nil, ctx.Err()
	}

	stage := classifyFailure(streamErr, genCtx.Err())
	g.logger.Warn("generation failed, emitting fallback",
		"stage", string(stage),
		"error", streamErr,
		"duration", result.Duration)

	result.Content = fallbackMessage(stage, in.Documents)
	result.Fallback = stage
	onStage(stage)
	return result, nil
}

// runStallWatchdog warns when the gap between chunks exceeds the
// threshold. One warning per stall, re-armed by the next chunk.
func (g *Generator) runStallWatchdog(ctx context.Context, chunkArrived <-chan struct{}, done <-chan struct{}) {
	timer := time.NewTimer(g.stallAfter)
	defer timer.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-chunkArrived:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(g.stallAfter)
		case <-timer.C:
			g.logger.Warn("token stream stalled",
				"threshold", g.stallAfter)
			// Re-arm only after the next chunk.
		}
	}
}

// classifyFailure maps a stream error to its fallback stage.
func classifyFailure(streamErr, ctxErr error) Stage {
	if errors.Is(ctxErr, context.DeadlineExceeded) || errors.Is(streamErr, context.DeadlineExceeded) {
		return StageTimeoutFallback
	}
	lower := strings.ToLower(streamErr.Error())
	for _, marker := range degradedSubstrings {
		if strings.Contains(lower, marker) {
			return StageDegradedFallback
		}
	}
	return StageGenericFallback
}

// fallbackMessage renders the template for a failure stage. Every
// template embeds the retrieved source paths so the user still gets
// the found context.
func fallbackMessage(stage Stage, docs []datatypes.Document) string {
	var b strings.Builder

	switch stage {
	case StageTimeoutFallback:
		b.WriteString("The answer took too long to generate and was cut off.\n")
	case StageDegradedFallback:
		b.WriteString("The generation backend is unavailable (authentication or quota issue), so the service is running in degraded mode.\n")
	default:
		b.WriteString("Something went wrong while generating the answer.\n")
	}

	if len(docs) > 0 {
		b.WriteString("\nThese sources matched your question:\n")
		for i, doc := range docs {
			if i >= CitationLimit {
				break
			}
			fmt.Fprintf(&b, "- %s (%s)\n", doc.Filepath, doc.Source)
		}
	}

	switch stage {
	case StageTimeoutFallback:
		b.WriteString("\nPlease retry; a shorter or more specific question usually completes in time.")
	case StageDegradedFallback:
		b.WriteString("\nThe sources above are still valid. Full answers will resume once the backend is restored.")
	default:
		b.WriteString("\nPlease try again in a moment.")
	}

	return b.String()
}

// =============================================================================
// Citations
// =============================================================================

// BuildCitations converts the top documents into client citations.
//
// # Description
//
// Deterministic: the first CitationLimit documents in ranked order,
// each with an excerpt truncated to previewLen plus an ellipsis
// marker, and an authority tier from the score policy. Scores above
// 0.8 are primary and above 0.6 authoritative; below that the tier
// falls back to a per-source default (github is authoritative, web is
// community, anything else supplementary).
func BuildCitations(docs []datatypes.Document, previewLen int) []datatypes.SourceCitation {
	limit := len(docs)
	if limit > CitationLimit {
		limit = CitationLimit
	}

	citations := make([]datatypes.SourceCitation, 0, limit)
	for _, doc := range docs[:limit] {
		citations = append(citations, datatypes.SourceCitation{
			Id:        doc.Id,
			Filepath:  doc.Filepath,
			Source:    doc.Source,
			Excerpt:   truncate(doc.Content, previewLen),
			Authority: authorityTier(doc),
			Score:     doc.Score,
		})
	}
	return citations
}

// authorityTier applies the score tier policy.
func authorityTier(doc datatypes.Document) string {
	switch {
	case doc.Score > 0.8:
		return datatypes.AuthorityPrimary
	case doc.Score > 0.6:
		return datatypes.AuthorityAuthoritative
	}
	switch doc.Source {
	case datatypes.SourceGithub:
		return datatypes.AuthorityAuthoritative
	case datatypes.SourceWeb:
		return datatypes.AuthorityCommunity
	default:
		return datatypes.AuthoritySupplementary
	}
}
