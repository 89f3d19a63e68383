// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Table of representative queries per bucket.
func TestClassify_Buckets(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		expected Complexity
	}{
		{"what is lead-in", "What is a circuit breaker?", ComplexitySimple},
		{"who is lead-in", "Who is the maintainer of this repo?", ComplexitySimple},
		{"where is lead-in", "Where is the config loaded?", ComplexitySimple},
		{"when lead-in", "When does the cache expire?", ComplexitySimple},
		{"define lead-in", "Define idempotency", ComplexitySimple},
		{"explain lead-in", "Explain the retry policy", ComplexitySimple},
		{"architecture keyword", "Describe the architecture of the ingest service", ComplexityComplex},
		{"comparison keyword", "Give me a comparison of badger and bolt", ComplexityComplex},
		{"in detail keyword", "Walk through the handshake in detail", ComplexityComplex},
		{"comprehensive keyword", "I need a comprehensive review of the API", ComplexityComplex},
		{"plain question", "How do I rotate the API key?", ComplexityMedium},
		{"imperative", "Show me the deployment steps", ComplexityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.message)
			assert.Equal(t, tt.expected, got.Complexity)
		})
	}
}

// Complex must win when a message matches both pattern sets.
func TestClassify_ComplexOverridesSimple(t *testing.T) {
	got := Classify("Explain the architecture of the orchestrator")
	assert.Equal(t, ComplexityComplex, got.Complexity)
}

// Long messages are complex regardless of phrasing.
func TestClassify_LengthThreshold(t *testing.T) {
	long := "what is " + strings.Repeat("x", complexLengthThreshold)
	assert.Equal(t, ComplexityComplex, Classify(long).Complexity)

	short := "what is x"
	assert.Equal(t, ComplexitySimple, Classify(short).Complexity)
}

// Lead-ins only count at the start of the message.
func TestClassify_LeadInAnchoredAtStart(t *testing.T) {
	got := Classify("Please explain the retry policy")
	assert.Equal(t, ComplexityMedium, got.Complexity)
}

func TestClassify_CaseInsensitive(t *testing.T) {
	assert.Equal(t, ComplexitySimple, Classify("WHAT IS gRPC?").Complexity)
	assert.Equal(t, ComplexityComplex, Classify("ARCHITECTURE overview please").Complexity)
}

// Profile parameters per bucket.
func TestClassify_ProfileParameters(t *testing.T) {
	simple := Classify("What is a mutex?")
	assert.Equal(t, 4, simple.SourceCount)
	assert.InDelta(t, 0.3, simple.Temperature, 0.001)
	assert.Equal(t, EmbeddingSmall, simple.EmbeddingModel)

	medium := Classify("How do I tune the worker pool?")
	assert.Equal(t, 8, medium.SourceCount)
	assert.InDelta(t, 0.7, medium.Temperature, 0.001)
	assert.Equal(t, EmbeddingLarge, medium.EmbeddingModel)

	complexQ := Classify("Compare the two storage backends")
	assert.Equal(t, 12, complexQ.SourceCount)
	assert.InDelta(t, 0.9, complexQ.Temperature, 0.001)
	assert.Equal(t, EmbeddingLarge, complexQ.EmbeddingModel)
}

// Identical input always yields identical output.
func TestClassify_Deterministic(t *testing.T) {
	msg := "How does hybrid search rank results?"
	first := Classify(msg)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(msg))
	}
}

func TestProfileFor_UnknownBucketDefaultsToMedium(t *testing.T) {
	got := ProfileFor(Complexity("bogus"))
	assert.Equal(t, ComplexityMedium, got.Complexity)
}
