// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains the streaming event union emitted over SSE and
// the citation type carried by sources and complete events.
package datatypes

// =============================================================================
// Stream Event Types
// =============================================================================

// StreamEventType identifies the variant of a StreamEvent.
type StreamEventType string

const (
	// StreamEventStatus reports an orchestration stage change.
	StreamEventStatus StreamEventType = "status"

	// StreamEventSources carries the retrieved documents.
	StreamEventSources StreamEventType = "sources"

	// StreamEventToken carries one token delta plus the accumulated text.
	StreamEventToken StreamEventType = "token"

	// StreamEventComplete carries the final answer and suggestions.
	StreamEventComplete StreamEventType = "complete"

	// StreamEventError reports a terminal stream failure.
	StreamEventError StreamEventType = "error"
)

// Stage names used in status events. Emitted in pipeline order.
const (
	StageRetrieving = "retrieving"
	StageGenerating = "generating"
)

// StreamEvent is the wire representation of orchestrator progress.
//
// # Description
//
// StreamEvent is a tagged union: Type selects the variant and only the
// fields relevant to that variant are populated. Construct events with
// the New*Event builders below rather than by hand so each variant
// carries exactly its own fields; serialization happens in one place,
// the SSE writer.
//
// Variants:
//   - status:   Stage, Message
//   - sources:  Sources, Count
//   - token:    Accumulated, Delta
//   - complete: Message, Sources, Suggestions, SessionId
//   - error:    Error
//
// Every written event is additionally assigned:
//   - Id: UUID v4 for ordering and deduplication
//   - CreatedAt: Unix timestamp in milliseconds
//   - Hash: SHA-256 hash of event content for integrity
//   - PrevHash: Hash of previous event for chain verification
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	Id        string          `json:"id,omitempty"`
	CreatedAt int64           `json:"created_at,omitempty"`
	Hash      string          `json:"hash,omitempty"`
	PrevHash  string          `json:"prev_hash,omitempty"`

	// status
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`

	// sources (Sources also used by complete)
	Sources []SourceCitation `json:"sources,omitempty"`
	Count   int              `json:"count,omitempty"`

	// token
	Accumulated string `json:"accumulated,omitempty"`
	Delta       string `json:"delta,omitempty"`

	// complete
	Suggestions []string `json:"suggestions,omitempty"`
	SessionId   string   `json:"session_id,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// =============================================================================
// Event Builders
// =============================================================================

// NewStatusEvent builds a status event for the given stage.
func NewStatusEvent(stage, message string) StreamEvent {
	return StreamEvent{
		Type:    StreamEventStatus,
		Stage:   stage,
		Message: message,
	}
}

// NewSourcesEvent builds a sources event. Count always matches
// len(sources) so clients need not count themselves.
func NewSourcesEvent(sources []SourceCitation) StreamEvent {
	return StreamEvent{
		Type:    StreamEventSources,
		Sources: sources,
		Count:   len(sources),
	}
}

// NewTokenEvent builds a token event. Accumulated must be a prefix
// extension of the previous token event's accumulated text.
func NewTokenEvent(accumulated, delta string) StreamEvent {
	return StreamEvent{
		Type:        StreamEventToken,
		Accumulated: accumulated,
		Delta:       delta,
	}
}

// NewCompleteEvent builds the terminal complete event.
func NewCompleteEvent(message string, sources []SourceCitation, suggestions []string, sessionId string) StreamEvent {
	return StreamEvent{
		Type:        StreamEventComplete,
		Message:     message,
		Sources:     sources,
		Suggestions: suggestions,
		SessionId:   sessionId,
	}
}

// NewErrorEvent builds an error event. The message must already be
// sanitized for client display.
func NewErrorEvent(errMsg string) StreamEvent {
	return StreamEvent{
		Type:  StreamEventError,
		Error: errMsg,
	}
}

// =============================================================================
// Source Citations
// =============================================================================

// Authority labels assigned to citations by the score tier policy.
const (
	AuthorityPrimary       = "primary"
	AuthorityAuthoritative = "authoritative"
	AuthoritySupplementary = "supplementary"
	AuthorityCommunity     = "community"
)

// SourceCitation is one cited document as shown to the client.
//
// # Fields
//
//   - Id: Document identifier from the search service.
//   - Filepath: Path of the source file the chunk came from.
//   - Source: Origin of the document ("github", "web", "local").
//   - Excerpt: Content preview, truncated to a fixed length with an
//     ellipsis marker when the original is longer.
//   - Authority: Score tier label (primary/authoritative/supplementary/
//     community).
//   - Score: Relevance score from the search service.
type SourceCitation struct {
	Id        string  `json:"id"`
	Filepath  string  `json:"filepath"`
	Source    string  `json:"source"`
	Excerpt   string  `json:"excerpt"`
	Authority string  `json:"authority"`
	Score     float64 `json:"score"`
}
