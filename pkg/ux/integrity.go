// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file defines integrity verification types for hash chain validation.
// The hash chain provides tamper-evident logging for streaming conversations.
//
// Hash Chain Design:
//
//	Each StreamEvent has a Hash computed from its content and a PrevHash
//	linking to the previous event. This creates a chain similar to blockchain:
//
//	Event[0] → Event[1] → Event[2] → ... → Event[N]
//	  Hash₀     Hash₁     Hash₂           HashN
//	    ↑         ↑         ↑               ↑
//	    └─────────┴─────────┴───────────────┘
//	           Each PrevHash links to previous Hash
//
// If any event is modified, its hash changes, breaking the chain.
package ux

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// secureHashEqual performs constant-time comparison of two hash strings.
// This prevents timing attacks where an attacker could determine how many
// leading characters of a hash are correct by measuring response times.
func secureHashEqual(a, b string) bool {
	// subtle.ConstantTimeCompare returns 1 if equal, 0 if not
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// =============================================================================
// Interfaces
// =============================================================================

// ChainVerifier verifies the integrity of a hash chain.
//
// # Description
//
// Abstracts the verification of event chains, allowing different
// verification strategies (quick PrevHash check vs full recompute).
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type ChainVerifier interface {
	// Verify checks the integrity of a sequence of stream events.
	//
	// # Inputs
	//
	//   - events: Ordered list of stream events from the session
	//
	// # Outputs
	//
	//   - *ChainVerificationResult: Detailed verification results
	//
	// # Assumptions
	//
	//   - Events are in chronological order
	//   - First event has empty PrevHash
	Verify(events []StreamEvent) *ChainVerificationResult
}

// HashComputer computes cryptographic hashes.
//
// # Description
//
// Abstracts hash computation for testability and algorithm flexibility.
// The event hash format must match the server's exactly or every chain
// verification will fail.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type HashComputer interface {
	// ComputeEventHash computes the content hash for a stream event.
	// The event's Hash field is ignored; all other fields participate.
	ComputeEventHash(event StreamEvent) string

	// ComputeContentHash computes a simple hash of content.
	ComputeContentHash(content string) string
}

// =============================================================================
// Structs
// =============================================================================

// ChainVerificationResult contains detailed results from chain verification.
//
// # Fields
//
//   - Valid: Whether the entire chain is valid
//   - ChainLength: Number of events verified
//   - FinalHash: The hash of the last event in the chain
//   - InvalidEventIndex: Index of first invalid event (-1 if all valid)
//   - ExpectedHash: What the hash should have been (if invalid)
//   - ActualHash: What the hash actually was (if invalid)
//   - ErrorMessage: Human-readable error description
//
// # Thread Safety
//
// Immutable after creation. Safe for concurrent read access.
type ChainVerificationResult struct {
	Valid             bool   `json:"valid"`
	ChainLength       int    `json:"chain_length"`
	FinalHash         string `json:"final_hash,omitempty"`
	InvalidEventIndex int    `json:"invalid_event_index"`
	ExpectedHash      string `json:"expected_hash,omitempty"`
	ActualHash        string `json:"actual_hash,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
}

// IntegrityInfo surfaces hash chain verification results to users,
// showing that the conversation is protected by a tamper-evident chain.
//
// Hashes are safe to display. They cannot be reversed to reveal
// content; they serve as fingerprints proving it was not modified.
type IntegrityInfo struct {
	ChainHash         string `json:"chain_hash"`
	ContentHash       string `json:"content_hash"`
	ChainLength       int    `json:"chain_length"`
	IntegrityVerified bool   `json:"integrity_verified"`
	VerificationError string `json:"verification_error,omitempty"`
	VerifiedAt        int64  `json:"verified_at,omitempty"`
}

// fullChainVerifier verifies chains by recomputing all hashes.
type fullChainVerifier struct {
	hashComputer HashComputer
}

// sha256HashComputer is the production HashComputer.
type sha256HashComputer struct{}

// =============================================================================
// Constructor Functions
// =============================================================================

// NewIntegrityInfo creates an IntegrityInfo from a completed stream
// result and a verification outcome.
func NewIntegrityInfo(result *StreamResult, verification *ChainVerificationResult) *IntegrityInfo {
	info := &IntegrityInfo{
		ChainHash:   result.ChainHash,
		ContentHash: result.ContentHash,
		ChainLength: result.TotalEvents,
		VerifiedAt:  time.Now().UnixMilli(),
	}
	if verification != nil {
		info.IntegrityVerified = verification.Valid
		info.VerificationError = verification.ErrorMessage
	}
	return info
}

// NewFullChainVerifier creates a verifier that recomputes all hashes.
//
// # Description
//
// Creates a comprehensive verifier that recomputes each event's hash
// and verifies both hash correctness and chain links. Slower than a
// link-only check (O(n) hash computations) but catches content edits,
// not just reordering.
func NewFullChainVerifier() ChainVerifier {
	return &fullChainVerifier{
		hashComputer: NewSHA256HashComputer(),
	}
}

// NewSHA256HashComputer creates a hash computer using SHA-256.
func NewSHA256HashComputer() HashComputer {
	return &sha256HashComputer{}
}

// =============================================================================
// HashComputer Implementation
// =============================================================================

// ComputeEventHash implements HashComputer.
//
// The input layout pipes together metadata (Id, Type, CreatedAt,
// PrevHash) and every variant content field, with sources serialized
// to JSON. This mirrors the server's computation byte for byte.
func (c *sha256HashComputer) ComputeEventHash(event StreamEvent) string {
	sourcesJSON := ""
	if len(event.Sources) > 0 {
		if data, err := json.Marshal(event.Sources); err == nil {
			sourcesJSON = string(data)
		}
	}

	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s|%s|%s|%s",
		event.Id,
		event.Type,
		event.CreatedAt,
		event.PrevHash,
		event.Stage,
		event.Message,
		event.Accumulated,
		event.Delta,
		event.Error,
		event.SessionID,
		sourcesJSON+"|"+strings.Join(event.Suggestions, ","),
	)

	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

// ComputeContentHash implements HashComputer.
func (c *sha256HashComputer) ComputeContentHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// =============================================================================
// ChainVerifier Implementation
// =============================================================================

// Verify implements ChainVerifier.
//
// Checks three properties per event: the PrevHash matches the previous
// event's Hash, the first event's PrevHash is empty, and the recomputed
// content hash matches the carried Hash. Stops at the first failure.
func (v *fullChainVerifier) Verify(events []StreamEvent) *ChainVerificationResult {
	result := &ChainVerificationResult{
		Valid:             true,
		ChainLength:       len(events),
		InvalidEventIndex: -1,
	}
	if len(events) == 0 {
		return result
	}

	prevHash := ""
	for i, event := range events {
		if !secureHashEqual(event.PrevHash, prevHash) {
			result.Valid = false
			result.InvalidEventIndex = i
			result.ExpectedHash = prevHash
			result.ActualHash = event.PrevHash
			result.ErrorMessage = fmt.Sprintf("event %d: broken chain link", i)
			return result
		}

		computed := v.hashComputer.ComputeEventHash(event)
		if !secureHashEqual(event.Hash, computed) {
			result.Valid = false
			result.InvalidEventIndex = i
			result.ExpectedHash = computed
			result.ActualHash = event.Hash
			result.ErrorMessage = fmt.Sprintf("event %d: content hash mismatch", i)
			return result
		}

		prevHash = event.Hash
	}

	result.FinalHash = prevHash
	return result
}

// =============================================================================
// IntegrityInfo Methods
// =============================================================================

// FormatForDisplay returns a formatted string for UI display.
//
// # Examples
//
//	info := &IntegrityInfo{ChainLength: 47, IntegrityVerified: true}
//	fmt.Println(info.FormatForDisplay())
//	// "✓ Verified | Chain: 47 events | Hash: a3f2c8d9...e7f8a9b0"
func (i *IntegrityInfo) FormatForDisplay() string {
	status := "✓ Verified"
	if !i.IntegrityVerified {
		status = "✗ FAILED"
	}

	hashDisplay := truncateHash(i.ChainHash)
	if i.ChainHash == "" {
		hashDisplay = "N/A"
	}

	return fmt.Sprintf("%s | Chain: %d events | Hash: %s",
		status, i.ChainLength, hashDisplay)
}

// truncateHash shortens a 64-char hash to "first8...last8" for display.
func truncateHash(hash string) string {
	if len(hash) <= 19 {
		return hash
	}
	return hash[:8] + "..." + hash[len(hash)-8:]
}

// =============================================================================
// Compile-time Interface Checks
// =============================================================================

var (
	_ ChainVerifier = (*fullChainVerifier)(nil)
	_ HashComputer  = (*sha256HashComputer)(nil)
)
