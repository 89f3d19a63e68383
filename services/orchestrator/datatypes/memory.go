// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains the conversational memory types exchanged with the
// memory service.
package datatypes

// =============================================================================
// Conversation Stages
// =============================================================================

// Conversation stages reported by the memory service. Exploration is
// the stage assumed when the service is unavailable.
const (
	StageExploration     = "exploration"
	StageImplementation  = "implementation"
	StageTroubleshooting = "troubleshooting"
)

// =============================================================================
// Memory Types
// =============================================================================

// MemoryItem is one retrieved memory with its relevance score.
type MemoryItem struct {
	Id        string  `json:"id"`
	Content   string  `json:"content"`
	Relevance float64 `json:"relevance"`
	CreatedAt int64   `json:"created_at,omitempty"`
}

// MemoryContext is the conversational context returned by the memory
// service for a session. Empty TopicContinuity with the exploration
// stage is the neutral context used when retrieval fails or times out.
type MemoryContext struct {
	RelevantMemories  []MemoryItem      `json:"relevant_memories"`
	EntityMentions    []string          `json:"entity_mentions"`
	TopicContinuity   []string          `json:"topic_continuity"`
	UserPreferences   map[string]string `json:"user_preferences"`
	ConversationStage string            `json:"conversation_stage"`
}

// MemoryWriteRequest is the payload persisted after a completed
// exchange so future turns can recall it.
type MemoryWriteRequest struct {
	SessionId      string `json:"session_id"`
	ConversationId string `json:"conversation_id,omitempty"`
	UserId         string `json:"user_id,omitempty"`
	UserMessage    string `json:"user_message"`
	AgentResponse  string `json:"agent_response"`
}
