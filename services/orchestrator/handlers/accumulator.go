// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// SecureBufferSize is the size of the mlocked buffer for token
	// accumulation. 512 KB holds long answers with room to spare
	// (~131,000 tokens at 4 bytes/token).
	SecureBufferSize = 512 * 1024

	// MinMlockLimitKB is the minimum mlock limit required in
	// kilobytes.
	MinMlockLimitKB = 512

	// insecureMemoryEnv overrides the mlock requirement. Set to
	// "true" to accept plain heap storage for streamed answers.
	insecureMemoryEnv = "SPEEDBOAT_INSECURE_MEMORY"
)

var (
	memguardInitOnce sync.Once

	// mlockSufficient and currentMlockLimitKB are set during init.
	mlockSufficient     bool
	currentMlockLimitKB int64
)

// =============================================================================
// Interface
// =============================================================================

// TokenAccumulator accumulates streamed tokens until write-back.
//
// # Description
//
// TokenAccumulator abstracts token storage during LLM streaming,
// allowing secure (mlocked) and insecure implementations depending on
// system capabilities. Tokens are hashed incrementally as they arrive,
// so the answer hash never depends on re-reading the buffer.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
//
// # Limitations
//
//   - Buffer size is fixed (cannot grow dynamically)
//   - Cannot be reused after Finalize() or Destroy()
type TokenAccumulator interface {
	// Write appends a token and updates the incremental hash.
	Write(token string) error

	// Finalize returns the accumulated answer and its SHA-256 hash
	// (hex encoded), then wipes the buffer. Single use.
	Finalize() (answer string, hashHex string, err error)

	// Destroy wipes the buffer without returning data. Idempotent,
	// for error paths.
	Destroy()

	// ID identifies this accumulator instance for logging.
	ID() string

	// CreatedAt reports when the accumulator was created.
	CreatedAt() time.Time
}

// =============================================================================
// Secure Implementation
// =============================================================================

// secureTokenAccumulator stores tokens in an mlocked memguard buffer
// so answer text cannot be swapped to disk before write-back.
//
// Thread Safety: Safe for concurrent use.
type secureTokenAccumulator struct {
	id        string
	createdAt time.Time
	mu        sync.Mutex
	buffer    *memguard.LockedBuffer
	offset    int
	hasher    hash.Hash
	destroyed bool
}

// NewTokenAccumulator creates the best accumulator the system
// supports.
//
// # Description
//
// On first call, initializes memguard and checks the RLIMIT_MEMLOCK
// resource limit. With a sufficient limit the accumulator uses an
// mlocked buffer. With an insufficient limit the constructor fails,
// unless SPEEDBOAT_INSECURE_MEMORY=true opts into the plain-heap
// fallback.
//
// # Outputs
//
//   - TokenAccumulator: Ready for Write calls. Caller must Destroy.
//   - error: Non-nil when mlock is insufficient and the insecure
//     fallback was not enabled.
func NewTokenAccumulator() (TokenAccumulator, error) {
	initMemguard()

	if !mlockSufficient {
		if os.Getenv(insecureMemoryEnv) == "true" {
			slog.Warn("Using insecure memory accumulator due to mlock limits",
				"current_limit_kb", currentMlockLimitKB,
				"required_kb", MinMlockLimitKB)
			return newInsecureTokenAccumulator(), nil
		}
		return nil, fmt.Errorf(
			"mlock limit insufficient: have %d KB, need %d KB. "+
				"Raise the limit or set %s=true",
			currentMlockLimitKB, MinMlockLimitKB, insecureMemoryEnv)
	}

	buf := memguard.NewBuffer(SecureBufferSize)
	if buf == nil {
		return nil, fmt.Errorf("failed to allocate secure buffer of %d bytes", SecureBufferSize)
	}
	buf.Melt()

	return &secureTokenAccumulator{
		id:        uuid.New().String(),
		createdAt: time.Now(),
		buffer:    buf,
		hasher:    sha256.New(),
	}, nil
}

// Write implements TokenAccumulator.
func (a *secureTokenAccumulator) Write(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("accumulator %s already destroyed", a.id)
	}

	tokenBytes := []byte(token)
	if a.offset+len(tokenBytes) > a.buffer.Size() {
		return fmt.Errorf("accumulator %s overflow: %d bytes exceeds %d byte buffer",
			a.id, a.offset+len(tokenBytes), a.buffer.Size())
	}

	copy(a.buffer.Bytes()[a.offset:], tokenBytes)
	a.offset += len(tokenBytes)
	a.hasher.Write(tokenBytes)
	return nil
}

// Finalize implements TokenAccumulator.
func (a *secureTokenAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("accumulator %s already destroyed", a.id)
	}

	answer := string(a.buffer.Bytes()[:a.offset])
	hashHex := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()

	slog.Debug("Finalized token accumulator",
		"accumulator_id", a.id,
		"answer_len", len(answer))
	return answer, hashHex, nil
}

// Destroy implements TokenAccumulator.
func (a *secureTokenAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return
	}
	a.wipe()
}

func (a *secureTokenAccumulator) wipe() {
	a.buffer.Destroy()
	a.destroyed = true
}

func (a *secureTokenAccumulator) ID() string           { return a.id }
func (a *secureTokenAccumulator) CreatedAt() time.Time { return a.createdAt }

// =============================================================================
// Insecure Fallback Implementation
// =============================================================================

// insecureTokenAccumulator stores tokens in plain heap memory. Used
// only when mlock limits are insufficient and the operator opted in
// via SPEEDBOAT_INSECURE_MEMORY=true.
type insecureTokenAccumulator struct {
	id        string
	createdAt time.Time
	mu        sync.Mutex
	data      []byte
	hasher    hash.Hash
	destroyed bool
}

func newInsecureTokenAccumulator() TokenAccumulator {
	return &insecureTokenAccumulator{
		id:        uuid.New().String(),
		createdAt: time.Now(),
		data:      make([]byte, 0, 4096),
		hasher:    sha256.New(),
	}
}

func (a *insecureTokenAccumulator) Write(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("accumulator %s already destroyed", a.id)
	}

	tokenBytes := []byte(token)
	if len(a.data)+len(tokenBytes) > SecureBufferSize {
		return fmt.Errorf("accumulator %s overflow: %d bytes exceeds %d byte cap",
			a.id, len(a.data)+len(tokenBytes), SecureBufferSize)
	}

	a.data = append(a.data, tokenBytes...)
	a.hasher.Write(tokenBytes)
	return nil
}

func (a *insecureTokenAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("accumulator %s already destroyed", a.id)
	}

	answer := string(a.data)
	hashHex := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()
	return answer, hashHex, nil
}

func (a *insecureTokenAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return
	}
	a.wipe()
}

// wipe zeroes the slice before release. Best effort: the GC may have
// already copied the backing array.
func (a *insecureTokenAccumulator) wipe() {
	for i := range a.data {
		a.data[i] = 0
	}
	a.data = nil
	a.destroyed = true
}

func (a *insecureTokenAccumulator) ID() string           { return a.id }
func (a *insecureTokenAccumulator) CreatedAt() time.Time { return a.createdAt }

// =============================================================================
// Memguard Initialization
// =============================================================================

// initMemguard initializes memguard once and records mlock status.
func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		if mlockSufficient {
			slog.Info("Secure memory initialized",
				"mlock_limit_kb", currentMlockLimitKB,
				"required_kb", MinMlockLimitKB)
		} else {
			slog.Error("mlock limit insufficient for secure memory",
				"current_limit_kb", currentMlockLimitKB,
				"required_kb", MinMlockLimitKB,
				"env_override", insecureMemoryEnv+"=true")
		}
	})
}

// checkMlockLimit queries RLIMIT_MEMLOCK and compares it against the
// minimum needed for one secure buffer. Returns the limit in KB, -1
// when unlimited.
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}

	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}

	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinMlockLimitKB, limitKB
}

// PurgeAllSecureMemory wipes every memguard buffer. Shutdown hook.
func PurgeAllSecureMemory() {
	memguard.Purge()
}

var (
	_ TokenAccumulator = (*secureTokenAccumulator)(nil)
	_ TokenAccumulator = (*insecureTokenAccumulator)(nil)
)
