// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

// StreamEventType represents the type of streaming event
type StreamEventType string

const (
	StreamEventStatus   StreamEventType = "status"
	StreamEventSources  StreamEventType = "sources"
	StreamEventToken    StreamEventType = "token"
	StreamEventComplete StreamEventType = "complete"
	StreamEventError    StreamEventType = "error"
)

// SourceInfo is one cited source attached to an answer.
type SourceInfo struct {
	Id        string  `json:"id"`
	Filepath  string  `json:"filepath"`
	Source    string  `json:"source"`
	Excerpt   string  `json:"excerpt"`
	Authority string  `json:"authority"`
	Score     float64 `json:"score"`
}

// StreamEvent is the client-side view of one server-sent event.
//
// # Description
//
// Mirrors the orchestrator's wire schema. Type selects the variant and
// only the fields for that variant are populated:
//
//   - status:   Stage, Message
//   - sources:  Sources, Count
//   - token:    Accumulated, Delta
//   - complete: Message, Sources, Suggestions, SessionID
//   - error:    Error
//
// Every event additionally carries Id, CreatedAt, Hash, and PrevHash.
// Hash is SHA-256 over the event content and PrevHash links to the
// previous event, forming a tamper-evident chain the client can verify
// after the stream ends.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	Id        string          `json:"id,omitempty"`
	CreatedAt int64           `json:"created_at,omitempty"`
	Hash      string          `json:"hash,omitempty"`
	PrevHash  string          `json:"prev_hash,omitempty"`

	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`

	Sources []SourceInfo `json:"sources,omitempty"`
	Count   int          `json:"count,omitempty"`

	Accumulated string `json:"accumulated,omitempty"`
	Delta       string `json:"delta,omitempty"`

	Suggestions []string `json:"suggestions,omitempty"`
	SessionID   string   `json:"session_id,omitempty"`

	Error string `json:"error,omitempty"`
}

// StreamResult contains the complete result of processing a stream
type StreamResult struct {
	Answer      string
	Sources     []SourceInfo
	Suggestions []string
	SessionID   string

	// Events holds every chained event in arrival order for
	// post-stream integrity verification. Keepalive comments are not
	// events and never appear here.
	Events []StreamEvent

	// ChainHash is the hash of the final event, fingerprinting the
	// whole stream.
	ChainHash string

	// ContentHash is the SHA-256 of the final answer text.
	ContentHash string

	TotalEvents int
}
