// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/datatypes"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/memory"
)

func TestBuildSystemPrompt_StageInstructions(t *testing.T) {
	tests := []struct {
		stage    string
		expected string
	}{
		{datatypes.StageExploration, "exploring"},
		{datatypes.StageImplementation, "implementing"},
		{datatypes.StageTroubleshooting, "debugging"},
	}

	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			memCtx := memory.DefaultContext()
			memCtx.ConversationStage = tt.stage

			prompt := BuildSystemPrompt(memCtx, nil)
			assert.Contains(t, prompt, tt.expected)
		})
	}
}

func TestBuildSystemPrompt_IncludesDocumentDigest(t *testing.T) {
	prompt := BuildSystemPrompt(memory.DefaultContext(), testDocs())

	assert.Contains(t, prompt, "pkg/a.go")
	assert.Contains(t, prompt, "alpha content")
	assert.Contains(t, prompt, "[1]")
	assert.Contains(t, prompt, "[2]")
}

func TestBuildSystemPrompt_TruncatesLongDocuments(t *testing.T) {
	docs := []datatypes.Document{{
		Content:  strings.Repeat("z", digestContentLimit+500),
		Filepath: "big.go",
	}}

	prompt := BuildSystemPrompt(memory.DefaultContext(), docs)
	assert.Contains(t, prompt, strings.Repeat("z", digestContentLimit)+"...")
	assert.NotContains(t, prompt, strings.Repeat("z", digestContentLimit+1))
}

func TestBuildSystemPrompt_PreferencesInStableOrder(t *testing.T) {
	memCtx := memory.DefaultContext()
	memCtx.UserPreferences = map[string]string{
		"verbosity": "terse",
		"language":  "go",
		"style":     "examples-first",
	}

	first := BuildSystemPrompt(memCtx, nil)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, BuildSystemPrompt(memCtx, nil))
	}

	// Keys appear alphabetically.
	assert.Less(t, strings.Index(first, "language"), strings.Index(first, "style"))
	assert.Less(t, strings.Index(first, "style"), strings.Index(first, "verbosity"))
}

func TestBuildSystemPrompt_CapsMemoryLines(t *testing.T) {
	memCtx := memory.DefaultContext()
	for i := 0; i < 10; i++ {
		memCtx.RelevantMemories = append(memCtx.RelevantMemories, datatypes.MemoryItem{
			Content: "memory line",
		})
	}

	prompt := BuildSystemPrompt(memCtx, nil)
	assert.Equal(t, maxMemoryLines, strings.Count(prompt, "memory line"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab...", truncate("abcd", 2))
}

// The cut must land on a rune boundary so a multi-byte character at
// the limit is dropped whole, never split into invalid bytes.
func TestTruncate_NeverSplitsRunes(t *testing.T) {
	s := "héllo wörld"
	for limit := 1; limit < len(s); limit++ {
		out := truncate(s, limit)
		assert.True(t, utf8.ValidString(out), "limit %d produced invalid UTF-8: %q", limit, out)
		assert.LessOrEqual(t, len(out), limit+3)
	}

	// A document ending mid-rune at the limit keeps the prior rune.
	assert.Equal(t, "é...", truncate("é日本", 3))
}
