// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package breaker implements the circuit breaker guarding the memory
// subsystem.
//
// The breaker has two states. Closed passes calls through; Open skips
// them until a cooldown deadline, after which the next call is
// attempted directly. There is no half-open probe state: the memory
// path already degrades to a safe default, so an occasional wasted
// attempt after cooldown costs one timeout at most.
package breaker

import (
	"sync"
	"time"
)

// =============================================================================
// States
// =============================================================================

// State represents the state of the circuit breaker.
type State int

const (
	// StateClosed allows calls through normally.
	StateClosed State = iota

	// StateOpen skips calls until the cooldown deadline passes.
	StateOpen
)

// String returns the human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures the circuit breaker behavior.
type Config struct {
	// MaxFailures is the number of consecutive failures before opening.
	// Default: 3
	MaxFailures int

	// Cooldown is how long the breaker stays open after tripping.
	// Default: 60s
	Cooldown time.Duration

	// Now supplies the current time. Defaults to time.Now; injected in
	// tests to step through the cooldown without sleeping.
	Now func() time.Time

	// OnStateChange, when set, is called after every state transition.
	// The call happens outside the breaker lock, so the callback may
	// use the breaker freely.
	OnStateChange func(from, to State)
}

// DefaultConfig returns the default breaker configuration.
func DefaultConfig() Config {
	return Config{
		MaxFailures: 3,
		Cooldown:    60 * time.Second,
	}
}

// =============================================================================
// Breaker
// =============================================================================

// Snapshot is a point-in-time view of the breaker for health reporting.
type Snapshot struct {
	State        string    `json:"state"`
	Failures     int       `json:"failures"`
	OpenUntil    time.Time `json:"open_until,omitempty"`
	LastTripTime time.Time `json:"last_trip_time,omitempty"`
}

// Breaker is a two-state circuit breaker.
//
// Thread Safety: Safe for concurrent use.
type Breaker struct {
	config Config

	state     State
	failures  int
	openUntil time.Time
	lastTrip  time.Time

	mu sync.Mutex
}

// New creates a breaker in the closed state. Zero config fields fall
// back to the defaults.
func New(config Config) *Breaker {
	def := DefaultConfig()
	if config.MaxFailures <= 0 {
		config.MaxFailures = def.MaxFailures
	}
	if config.Cooldown <= 0 {
		config.Cooldown = def.Cooldown
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Breaker{
		config: config,
		state:  StateClosed,
	}
}

// ShouldAttempt reports whether the guarded call should be made.
//
// Open with an expired cooldown closes the breaker and resets the
// failure count, so the caller's next failure starts a fresh streak.
//
// Thread Safety: Safe for concurrent use.
func (b *Breaker) ShouldAttempt() bool {
	b.mu.Lock()

	if b.state == StateClosed {
		b.mu.Unlock()
		return true
	}

	if b.config.Now().Before(b.openUntil) {
		b.mu.Unlock()
		return false
	}

	b.state = StateClosed
	b.failures = 0
	b.mu.Unlock()

	b.notify(StateOpen, StateClosed)
	return true
}

// RecordSuccess resets the consecutive failure count.
//
// Thread Safety: Safe for concurrent use.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	reopened := b.state == StateOpen
	b.failures = 0
	b.state = StateClosed
	b.mu.Unlock()

	if reopened {
		b.notify(StateOpen, StateClosed)
	}
}

// RecordFailure counts one failure and trips the breaker when the
// streak reaches MaxFailures. Tripping resets the counter; the next
// streak starts fresh after the cooldown.
//
// Outputs:
//   - bool: True if this failure tripped the breaker open.
//
// Thread Safety: Safe for concurrent use.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()

	b.failures++
	if b.state == StateClosed && b.failures >= b.config.MaxFailures {
		now := b.config.Now()
		b.state = StateOpen
		b.failures = 0
		b.openUntil = now.Add(b.config.Cooldown)
		b.lastTrip = now
		b.mu.Unlock()

		b.notify(StateClosed, StateOpen)
		return true
	}
	b.mu.Unlock()
	return false
}

func (b *Breaker) notify(from, to State) {
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}

// Snapshot returns the current breaker state for health endpoints.
//
// Thread Safety: Safe for concurrent use.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		State:    b.state.String(),
		Failures: b.failures,
	}
	if b.state == StateOpen {
		snap.OpenUntil = b.openUntil
	}
	if !b.lastTrip.IsZero() {
		snap.LastTripTime = b.lastTrip
	}
	return snap
}
