// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services provides the business logic for the orchestrator.
//
// This package contains service structs that encapsulate business logic,
// separating it from HTTP handlers. Services are responsible for:
//   - Coordinating calls to external services (memory, search, LLM)
//   - Degrading gracefully when a dependency fails
//   - Managing timeouts and error handling
//
// Services are designed to be:
//   - Testable: Dependencies are injected via constructors
//   - Composable: Services can call other services
//   - Traceable: All methods accept context for distributed tracing
package services

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/breaker"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/classifier"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/datatypes"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/memory"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/search"
)

// orchestratorTracer is the OpenTelemetry tracer for ChatOrchestrator
// operations.
var orchestratorTracer = otel.Tracer("speedboat.orchestrator.services.chat")

// =============================================================================
// Configuration
// =============================================================================

const (
	// MemoryFetchTimeout bounds the conversational memory fetch.
	MemoryFetchTimeout = 2 * time.Second

	// SearchTimeout bounds the document search.
	SearchTimeout = 3 * time.Second

	// WriteBackTimeout bounds the fire-and-forget memory persistence.
	WriteBackTimeout = 500 * time.Millisecond
)

// =============================================================================
// Emitter
// =============================================================================

// Emitter receives pipeline progress for streaming responses.
//
// # Description
//
// The streaming handler implements Emitter over its SSE writer; the
// JSON handler uses NopEmitter. A non-nil error from any method aborts
// the turn (the client is gone).
type Emitter interface {
	Stage(stage, message string) error
	Sources(citations []datatypes.SourceCitation) error
	Token(total, delta string) error
}

// NopEmitter discards all progress events.
type NopEmitter struct{}

func (NopEmitter) Stage(string, string) error               { return nil }
func (NopEmitter) Sources([]datatypes.SourceCitation) error { return nil }
func (NopEmitter) Token(string, string) error               { return nil }

var _ Emitter = NopEmitter{}

// =============================================================================
// Results
// =============================================================================

// Timings holds the per-stage durations surfaced as response headers.
type Timings struct {
	Memory     time.Duration
	Search     time.Duration
	Generation time.Duration
	Total      time.Duration
}

// Result is the outcome of one orchestrated chat turn.
type Result struct {
	Message       string
	Citations     []datatypes.SourceCitation
	Suggestions   []string
	RelatedTopics []string
	Session       datatypes.Session
	Profile       classifier.Profile
	Fallback      Stage
	Timings       Timings

	// Degradations names the dependencies that fell back this turn.
	Degradations []string
}

// =============================================================================
// ChatOrchestrator
// =============================================================================

// ChatOrchestrator coordinates one chat turn end to end.
//
// # Description
//
// Process runs the full pipeline: classify the query, fetch memory and
// search documents concurrently under independent timeouts, assemble
// the prompt, stream the generation, and persist the exchange in the
// background. Every dependency failure resolves to fallback content;
// a valid request never returns an error.
//
// Thread Safety: Safe for concurrent use.
type ChatOrchestrator struct {
	memory    memory.Store
	search    search.Service
	breaker   *breaker.Breaker
	generator *Generator
	logger    *slog.Logger
}

// NewChatOrchestrator creates a ChatOrchestrator with its injected
// dependencies.
func NewChatOrchestrator(memStore memory.Store, searchSvc search.Service, brk *breaker.Breaker, gen *Generator, logger *slog.Logger) *ChatOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatOrchestrator{
		memory:    memStore,
		search:    searchSvc,
		breaker:   brk,
		generator: gen,
		logger:    logger,
	}
}

// Process runs one chat turn.
//
// # Inputs
//
//   - ctx: Request context. Cancellation aborts generation but not the
//     background write-back.
//   - req: Validated chat request.
//   - emitter: Progress sink for streaming; use NopEmitter otherwise.
//
// # Outputs
//
//   - *Result: Always non-nil with non-empty Message, unless the
//     client disconnected.
//   - error: Non-nil only on client disconnect (context cancellation).
func (o *ChatOrchestrator) Process(ctx context.Context, req *datatypes.ChatRequest, emitter Emitter) (*Result, error) {
	ctx, span := orchestratorTracer.Start(ctx, "ChatOrchestrator.Process")
	defer span.End()

	start := time.Now()

	// Step 1: Derive session identity and classify the query.
	session := datatypes.DeriveSession(req)
	profile := classifier.Classify(req.Message)
	span.SetAttributes(
		attribute.String("chat.run_id", session.RunId),
		attribute.String("chat.complexity", string(profile.Complexity)),
	)

	sourceLimit := profile.SourceCount
	if req.MaxSources > 0 && req.MaxSources < sourceLimit {
		sourceLimit = req.MaxSources
	}

	if err := emitter.Stage(datatypes.StageRetrieving, "Searching knowledge base"); err != nil {
		return nil, err
	}

	// Step 2: Memory fetch and document search run concurrently under
	// independent timeouts. Either may degrade without failing the turn.
	var (
		wg            sync.WaitGroup
		memCtx        *datatypes.MemoryContext
		memOutcome    BoundedOutcome
		searchResp    *search.Response
		searchOutcome BoundedOutcome
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		memCtx, memOutcome = o.fetchMemory(ctx, session)
	}()
	go func() {
		defer wg.Done()
		searchResp, searchOutcome = RunBounded(ctx, "search", SearchTimeout,
			search.OfflineResponse(req.Message),
			func(ctx context.Context) (*search.Response, error) {
				return o.search.Search(ctx, search.Request{
					Query:          req.Message,
					Limit:          sourceLimit,
					EmbeddingModel: profile.EmbeddingModel,
				})
			})
	}()
	wg.Wait()

	if searchOutcome.Degraded {
		o.logger.Warn("document search degraded to offline response",
			"run_id", session.RunId,
			"cause", searchOutcome.Cause,
			"error", searchOutcome.Err)
	}

	docs := searchResp.Results
	citations := BuildCitations(docs, CitationPreviewLen)
	if err := emitter.Sources(citations); err != nil {
		return nil, err
	}

	// Step 3: Assemble the generation prompt.
	systemPrompt := BuildSystemPrompt(memCtx, docs)

	// Step 4: Stream the generation with the profile temperature.
	if err := emitter.Stage(datatypes.StageGenerating, "Generating answer"); err != nil {
		return nil, err
	}

	genResult, err := o.generator.Stream(ctx, StreamInput{
		SystemPrompt: systemPrompt,
		UserPrompt:   req.Message,
		Temperature:  profile.Temperature,
		Documents:    docs,
	}, emitter.Token, nil)
	if err != nil {
		return nil, err
	}

	// Step 5: Fire-and-forget persistence of the exchange. Detached
	// from the request context so a client disconnect cannot cancel it.
	o.writeBack(ctx, session, req.Message, genResult.Content)

	// Step 6: Assemble the result with per-stage timings.
	result := &Result{
		Message:       genResult.Content,
		Citations:     genResult.Citations,
		Suggestions:   buildSuggestions(genResult.Citations),
		RelatedTopics: buildRelatedTopics(genResult.Citations),
		Session:       session,
		Profile:       profile,
		Fallback:      genResult.Fallback,
		Timings: Timings{
			Memory:     memOutcome.Duration,
			Search:     searchOutcome.Duration,
			Generation: genResult.Duration,
			Total:      time.Since(start),
		},
	}
	if memOutcome.Degraded {
		result.Degradations = append(result.Degradations, "memory:"+memOutcome.Cause)
	}
	if searchOutcome.Degraded {
		result.Degradations = append(result.Degradations, "search:"+searchOutcome.Cause)
	}
	if genResult.Fallback != "" {
		result.Degradations = append(result.Degradations, "generation:"+string(genResult.Fallback))
	}
	return result, nil
}

// fetchMemory retrieves conversational context behind the circuit
// breaker. Open breaker skips the call entirely; failure or timeout
// records a breaker failure and falls back to the default context.
func (o *ChatOrchestrator) fetchMemory(ctx context.Context, session datatypes.Session) (*datatypes.MemoryContext, BoundedOutcome) {
	if !o.breaker.ShouldAttempt() {
		o.logger.Debug("memory circuit open, using default context",
			"run_id", session.RunId)
		return memory.DefaultContext(), SkippedOutcome("memory")
	}

	memCtx, outcome := RunBounded(ctx, "memory", MemoryFetchTimeout,
		memory.DefaultContext(),
		func(ctx context.Context) (*datatypes.MemoryContext, error) {
			return o.memory.GetConversationContext(ctx, session.ConversationId, session.SessionId)
		})

	if outcome.Degraded {
		tripped := o.breaker.RecordFailure()
		o.logger.Warn("memory fetch degraded to default context",
			"run_id", session.RunId,
			"cause", outcome.Cause,
			"breaker_tripped", tripped,
			"error", outcome.Err)
	} else {
		o.breaker.RecordSuccess()
	}
	return memCtx, outcome
}

// writeBack persists the exchange in a detached goroutine.
func (o *ChatOrchestrator) writeBack(ctx context.Context, session datatypes.Session, userMessage, agentResponse string) {
	detached := context.WithoutCancel(ctx)
	go func() {
		writeCtx, cancel := context.WithTimeout(detached, WriteBackTimeout)
		defer cancel()

		err := o.memory.Add(writeCtx, &datatypes.MemoryWriteRequest{
			SessionId:      session.SessionId,
			ConversationId: session.ConversationId,
			UserId:         session.UserId,
			UserMessage:    userMessage,
			AgentResponse:  agentResponse,
		})
		if err != nil {
			o.logger.Warn("memory write-back failed",
				"run_id", session.RunId,
				"error", err)
		}
	}()
}

// buildSuggestions derives follow-up questions from the top citations.
// Deterministic: same citations, same suggestions.
func buildSuggestions(citations []datatypes.SourceCitation) []string {
	suggestions := make([]string, 0, 3)
	seen := map[string]bool{}
	for _, c := range citations {
		if len(suggestions) >= 2 {
			break
		}
		name := path.Base(c.Filepath)
		if name == "" || name == "." || seen[name] {
			continue
		}
		seen[name] = true
		suggestions = append(suggestions, fmt.Sprintf("Can you explain %s in more detail?", name))
	}
	if len(citations) > 0 {
		suggestions = append(suggestions, "What else relates to this topic?")
	}
	return suggestions
}

// buildRelatedTopics extracts distinct source directories from the
// citations.
func buildRelatedTopics(citations []datatypes.SourceCitation) []string {
	topics := make([]string, 0, 3)
	seen := map[string]bool{}
	for _, c := range citations {
		dir := path.Dir(c.Filepath)
		if dir == "" || dir == "." || seen[dir] {
			continue
		}
		seen[dir] = true
		topics = append(topics, dir)
		if len(topics) >= 3 {
			break
		}
	}
	return topics
}
