// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ratelimit implements a sliding-window request limiter keyed
// by client IP, with per-route policies and a pluggable counter store.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store counts requests in a sliding window.
//
// # Description
//
// Slide performs one atomic prune-count-record-expire sequence: drop
// timestamps older than now-window, count what remains, and record now
// as a new entry ONLY when the pruned count is below maxRequests. The
// key expires one window after its newest entry. The returned count
// EXCLUDES the current request, so a count of maxRequests or more
// means the request was rejected and nothing was written; rejected
// requests never consume budget or extend the lockout.
//
// Implementations must make the sequence atomic with respect to
// concurrent calls for the same key so bursts are not undercounted.
type Store interface {
	Slide(ctx context.Context, key string, window time.Duration, now time.Time, maxRequests int) (count int, err error)
}

// =============================================================================
// In-Memory Store
// =============================================================================

// MemoryStore is a mutex-guarded in-memory Store for tests and
// single-process deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]time.Time),
	}
}

// Slide implements Store.
func (s *MemoryStore) Slide(_ context.Context, key string, window time.Duration, now time.Time, maxRequests int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	kept := s.entries[key][:0]
	for _, ts := range s.entries[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	count := len(kept)
	if count < maxRequests {
		kept = append(kept, now)
	}
	if len(kept) == 0 {
		delete(s.entries, key)
		return count, nil
	}
	s.entries[key] = kept
	return count, nil
}

// Len reports the number of tracked keys. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ Store = (*MemoryStore)(nil)
