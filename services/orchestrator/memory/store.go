// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package memory provides the client to the external conversational
// memory service.
package memory

import (
	"context"

	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/datatypes"
)

// Store retrieves and persists conversational memory.
//
// # Description
//
// GetConversationContext returns the memory relevant to the given
// conversation and session. Add persists one completed exchange; it is
// called fire-and-forget after the response is sent.
//
// Implementations must respect context cancellation on every call.
// Callers own the degradation policy: the orchestrator gates fetches
// behind the circuit breaker and substitutes DefaultContext on
// failure, the client itself just reports errors.
type Store interface {
	GetConversationContext(ctx context.Context, conversationID, sessionID string) (*datatypes.MemoryContext, error)
	Add(ctx context.Context, req *datatypes.MemoryWriteRequest) error
}

// DefaultContext returns the neutral context used when memory is
// unavailable or the circuit breaker is open. Fresh maps/slices per
// call so callers can mutate their copy.
func DefaultContext() *datatypes.MemoryContext {
	return &datatypes.MemoryContext{
		RelevantMemories:  []datatypes.MemoryItem{},
		EntityMentions:    []string{},
		TopicContinuity:   []string{},
		UserPreferences:   map[string]string{},
		ConversationStage: datatypes.StageExploration,
	}
}
