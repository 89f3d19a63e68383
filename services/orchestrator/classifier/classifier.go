// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package classifier assigns a complexity profile to incoming queries.
//
// The profile drives the cost and latency knobs downstream: how many
// documents to retrieve, the generation temperature, and which
// embedding model the search service should use. Classification is a
// pure function of the message text so the mapping stays testable and
// reproducible.
package classifier

import (
	"regexp"
	"strings"
)

// =============================================================================
// Complexity Profiles
// =============================================================================

// Complexity is the classified bucket for a query.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Embedding model identifiers passed to the search service.
const (
	EmbeddingSmall = "text-embedding-3-small"
	EmbeddingLarge = "text-embedding-3-large"
)

// complexLengthThreshold is the character count above which a query is
// treated as complex regardless of phrasing.
const complexLengthThreshold = 100

// Profile holds the retrieval and generation parameters for a bucket.
type Profile struct {
	Complexity     Complexity `json:"complexity"`
	SourceCount    int        `json:"source_count"`
	Temperature    float32    `json:"temperature"`
	EmbeddingModel string     `json:"embedding_model"`
}

// profiles maps each bucket to its fixed parameter triple.
var profiles = map[Complexity]Profile{
	ComplexitySimple: {
		Complexity:     ComplexitySimple,
		SourceCount:    4,
		Temperature:    0.3,
		EmbeddingModel: EmbeddingSmall,
	},
	ComplexityMedium: {
		Complexity:     ComplexityMedium,
		SourceCount:    8,
		Temperature:    0.7,
		EmbeddingModel: EmbeddingLarge,
	},
	ComplexityComplex: {
		Complexity:     ComplexityComplex,
		SourceCount:    12,
		Temperature:    0.9,
		EmbeddingModel: EmbeddingLarge,
	},
}

// =============================================================================
// Pattern Tables
// =============================================================================

// simplePatterns match factual lookup lead-ins. Anchored at the start
// of the message so "explain" buried mid-sentence does not count.
var simplePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*what\s+is\b`),
	regexp.MustCompile(`^\s*who\s+is\b`),
	regexp.MustCompile(`^\s*where\s+is\b`),
	regexp.MustCompile(`^\s*when\b`),
	regexp.MustCompile(`^\s*define\b`),
	regexp.MustCompile(`^\s*explain\b`),
}

// complexPatterns match analytical or comparative phrasing anywhere in
// the message.
var complexPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\barchitecture\b`),
	regexp.MustCompile(`\bcompare\b`),
	regexp.MustCompile(`\bcomparison\b`),
	regexp.MustCompile(`\bversus\b`),
	regexp.MustCompile(`\bvs\.?\b`),
	regexp.MustCompile(`\bdifference(s)?\s+between\b`),
	regexp.MustCompile(`\bin\s+detail\b`),
	regexp.MustCompile(`\bcomprehensive\b`),
	regexp.MustCompile(`\btrade-?offs?\b`),
	regexp.MustCompile(`\bdesign\s+decisions?\b`),
}

// =============================================================================
// Classification
// =============================================================================

// Classify maps a user message to its complexity profile.
//
// # Description
//
// The simple and complex checks run independently and complex wins when
// both match: a long message opening with "explain" still needs the
// full retrieval budget. Messages matching neither set fall into the
// medium bucket. Deterministic for identical input.
//
// # Inputs
//
//   - message: The raw user message. Case is ignored.
//
// # Outputs
//
//   - Profile: The bucket's fixed {sourceCount, temperature,
//     embeddingModel} triple.
func Classify(message string) Profile {
	lower := strings.ToLower(message)

	if isComplex(lower) {
		return profiles[ComplexityComplex]
	}
	if isSimple(lower) {
		return profiles[ComplexitySimple]
	}
	return profiles[ComplexityMedium]
}

// ProfileFor returns the fixed profile for a bucket. Unknown buckets
// map to medium.
func ProfileFor(c Complexity) Profile {
	if p, ok := profiles[c]; ok {
		return p
	}
	return profiles[ComplexityMedium]
}

func isSimple(lower string) bool {
	for _, p := range simplePatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

func isComplex(lower string) bool {
	if len(lower) > complexLengthThreshold {
		return true
	}
	for _, p := range complexPatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}
