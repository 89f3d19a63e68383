// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ratelimit

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// keyPrefix namespaces limiter entries so the database can be shared
// with other subsystems.
const keyPrefix = "rl:"

// slideRetries bounds transaction retries on write conflicts.
const slideRetries = 5

// BadgerStore is a Store backed by an embedded BadgerDB instance.
//
// # Description
//
// Each client key maps to one value holding the encoded timestamp list
// of requests inside the window. The whole prune-count-record-expire
// sequence runs inside a single db.Update transaction, which Badger
// executes with serializable isolation, so concurrent requests from
// the same client cannot undercount each other. The entry carries a
// TTL of one window so idle clients age out without a sweeper.
//
// Thread Safety: Safe for concurrent use.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an opened database. The caller owns the
// database lifecycle and must call Close on it at shutdown.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Slide implements Store.
func (s *BadgerStore) Slide(ctx context.Context, key string, window time.Duration, now time.Time, maxRequests int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	storageKey := []byte(keyPrefix + key)
	cutoff := now.Add(-window).UnixNano()

	// Concurrent requests from the same client conflict on the shared
	// key; retry a few times before reporting the error to the caller.
	var count int
	var err error
	for attempt := 0; attempt < slideRetries; attempt++ {
		count, err = s.slideOnce(storageKey, key, window, cutoff, now, maxRequests)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	return count, err
}

func (s *BadgerStore) slideOnce(storageKey []byte, key string, window time.Duration, cutoff int64, now time.Time, maxRequests int) (int, error) {
	var count int
	err := s.db.Update(func(txn *badger.Txn) error {
		var stamps []int64

		item, err := txn.Get(storageKey)
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				stamps = decodeTimestamps(val)
				return nil
			}); err != nil {
				return fmt.Errorf("read window for %s: %w", key, err)
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// First request in the window.
		default:
			return fmt.Errorf("get window for %s: %w", key, err)
		}

		kept := stamps[:0]
		for _, ts := range stamps {
			if ts > cutoff {
				kept = append(kept, ts)
			}
		}
		count = len(kept)
		if count >= maxRequests {
			// Over budget: do not record, so the window drains while
			// the client is rejected.
			return nil
		}
		kept = append(kept, now.UnixNano())

		entry := badger.NewEntry(storageKey, encodeTimestamps(kept)).WithTTL(window)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// encodeTimestamps packs unix-nano timestamps as fixed-width big
// endian values. Fixed width keeps decode allocation-free and simple.
func encodeTimestamps(stamps []int64) []byte {
	buf := make([]byte, 8*len(stamps))
	for i, ts := range stamps {
		binary.BigEndian.PutUint64(buf[i*8:], uint64(ts))
	}
	return buf
}

func decodeTimestamps(buf []byte) []int64 {
	stamps := make([]int64, 0, len(buf)/8)
	for i := 0; i+8 <= len(buf); i += 8 {
		stamps = append(stamps, int64(binary.BigEndian.Uint64(buf[i:])))
	}
	return stamps
}

var _ Store = (*BadgerStore)(nil)
