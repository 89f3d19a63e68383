// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/datatypes"
)

// digestContentLimit bounds each document's contribution to the
// prompt. Full chunks would blow the context budget on complex
// queries with 12 sources.
const digestContentLimit = 600

// maxMemoryLines bounds how many retrieved memories reach the system
// prompt.
const maxMemoryLines = 5

// BuildSystemPrompt renders the system prompt from conversational
// memory and the retrieved document digest.
//
// # Description
//
// The prompt carries three blocks: assistant instructions tuned by
// conversation stage, the user's known preferences and mentioned
// entities, and a compact digest of the top search results with their
// filepaths so the model can cite them. Deterministic for identical
// inputs.
func BuildSystemPrompt(memCtx *datatypes.MemoryContext, docs []datatypes.Document) string {
	var b strings.Builder

	b.WriteString("You are Speedboat, an assistant answering questions about an indexed codebase.\n")
	b.WriteString("Ground every claim in the provided context and cite files by path.\n")
	b.WriteString("If the context does not cover the question, say so instead of guessing.\n")

	switch memCtx.ConversationStage {
	case datatypes.StageImplementation:
		b.WriteString("The user is implementing: prefer concrete code-level guidance.\n")
	case datatypes.StageTroubleshooting:
		b.WriteString("The user is debugging: focus on causes and verification steps.\n")
	default:
		b.WriteString("The user is exploring: favor overviews before detail.\n")
	}

	if len(memCtx.UserPreferences) > 0 {
		b.WriteString("\nUser preferences:\n")
		for _, key := range sortedKeys(memCtx.UserPreferences) {
			fmt.Fprintf(&b, "- %s: %s\n", key, memCtx.UserPreferences[key])
		}
	}

	if len(memCtx.EntityMentions) > 0 {
		fmt.Fprintf(&b, "\nPreviously discussed: %s\n", strings.Join(memCtx.EntityMentions, ", "))
	}

	if len(memCtx.RelevantMemories) > 0 {
		b.WriteString("\nRelevant conversation memory:\n")
		for i, item := range memCtx.RelevantMemories {
			if i >= maxMemoryLines {
				break
			}
			fmt.Fprintf(&b, "- %s\n", item.Content)
		}
	}

	if len(docs) > 0 {
		b.WriteString("\nRetrieved context:\n")
		for i, doc := range docs {
			fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i+1, doc.Filepath, doc.Source, truncate(doc.Content, digestContentLimit))
		}
	}

	return b.String()
}

// sortedKeys returns map keys in stable order so prompt output is
// reproducible.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncate cuts s at no more than limit bytes, backing up to a rune
// boundary so multi-byte characters are never split, and appends an
// ellipsis marker when anything was dropped.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
