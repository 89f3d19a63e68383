// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"errors"
	"time"
)

// Degradation causes recorded in BoundedOutcome.
const (
	CauseNone    = ""
	CauseTimeout = "timeout"
	CauseError   = "error"
	CauseSkipped = "skipped"
)

// BoundedOutcome describes how a bounded operation resolved.
type BoundedOutcome struct {
	Name     string
	Duration time.Duration
	Degraded bool
	Cause    string
	Err      error
}

// RunBounded races op against a timeout and substitutes fallback on
// any failure.
//
// # Description
//
// The operation runs under a child context carrying the timeout, so a
// well-behaved op returns shortly after expiry. RunBounded never
// returns an error: failure is expressed as the fallback value plus a
// degraded outcome, which keeps every caller on the "always produce a
// result" path. The outcome records the cause and the underlying error
// for logging and metrics.
//
// # Inputs
//
//   - ctx: Parent context; its cancellation also bounds the op.
//   - name: Operation name for the outcome and tracing.
//   - timeout: Budget for the operation.
//   - fallback: Value returned when the op fails or times out.
//   - op: The operation. Must honor context cancellation.
//
// # Outputs
//
//   - T: The op's value, or fallback on failure.
//   - BoundedOutcome: Duration plus degradation cause.
func RunBounded[T any](ctx context.Context, name string, timeout time.Duration, fallback T, op func(ctx context.Context) (T, error)) (T, BoundedOutcome) {
	start := time.Now()

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type opResult struct {
		value T
		err   error
	}
	// Buffered so a late op can finish without a receiver.
	done := make(chan opResult, 1)
	go func() {
		value, err := op(opCtx)
		done <- opResult{value: value, err: err}
	}()

	outcome := BoundedOutcome{Name: name}

	var err error
	select {
	case res := <-done:
		outcome.Duration = time.Since(start)
		if res.err == nil {
			return res.value, outcome
		}
		err = res.err
	case <-opCtx.Done():
		outcome.Duration = time.Since(start)
		err = opCtx.Err()
	}

	outcome.Degraded = true
	outcome.Err = err
	if errors.Is(err, context.DeadlineExceeded) {
		outcome.Cause = CauseTimeout
	} else {
		outcome.Cause = CauseError
	}
	return fallback, outcome
}

// SkippedOutcome records an operation that was never attempted, such
// as a memory fetch behind an open circuit breaker.
func SkippedOutcome(name string) BoundedOutcome {
	return BoundedOutcome{
		Name:     name,
		Degraded: true,
		Cause:    CauseSkipped,
	}
}
