// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// =============================================================================
// Policies
// =============================================================================

// Policy is the request budget for one route class.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

// Route names used in the policy table.
const (
	RouteChat        = "chat"
	RouteSearch      = "search"
	RouteLightweight = "lightweight"
)

// DefaultPolicies returns the per-route budgets. The chat route is the
// most expensive per request, so it carries the tightest budget.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		RouteChat:        {MaxRequests: 20, Window: 60 * time.Second},
		RouteSearch:      {MaxRequests: 30, Window: 60 * time.Second},
		RouteLightweight: {MaxRequests: 60, Window: 60 * time.Second},
	}
}

// defaultPolicy applies to routes not present in the table.
var defaultPolicy = Policy{MaxRequests: 30, Window: 60 * time.Second}

// =============================================================================
// Decisions
// =============================================================================

// Decision reason codes.
const (
	ReasonOK       = "ok"
	ReasonLimited  = "limited"
	ReasonBypass   = "bypass"
	ReasonFailOpen = "fail-open"
)

// Decision is the admission verdict for one request.
type Decision struct {
	Allowed           bool
	Remaining         int
	RetryAfterSeconds int
	Reason            string
}

// =============================================================================
// Limiter
// =============================================================================

// Limiter applies sliding-window budgets per client key and route.
//
// # Description
//
// Private, loopback, and link-local client addresses bypass counting:
// internal health probes and sidecar traffic must never consume user
// budgets. On any store error the limiter fails open, because chat
// availability outranks strict quota enforcement; the failure is
// logged and surfaced in the Decision reason so the middleware can
// count it.
//
// Thread Safety: Safe for concurrent use when the Store is.
type Limiter struct {
	store    Store
	policies map[string]Policy
	logger   *slog.Logger

	// now is injected in tests to control the window clock.
	now func() time.Time
}

// NewLimiter creates a Limiter over the given store. A nil policies
// map falls back to DefaultPolicies.
func NewLimiter(store Store, policies map[string]Policy, logger *slog.Logger) *Limiter {
	if policies == nil {
		policies = DefaultPolicies()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		store:    store,
		policies: policies,
		logger:   logger,
		now:      time.Now,
	}
}

// Check admits or rejects one request from clientKey on the given
// route.
//
// # Inputs
//
//   - ctx: Request context; cancellation aborts the store call.
//   - clientKey: Client IP as reported by the HTTP layer.
//   - route: Route class used to pick the Policy.
//
// # Outputs
//
//   - Decision: Verdict with remaining budget. RetryAfterSeconds is
//     set only on rejection, as ceil(window seconds).
func (l *Limiter) Check(ctx context.Context, clientKey, route string) Decision {
	policy, ok := l.policies[route]
	if !ok {
		policy = defaultPolicy
	}

	if isTrustedClient(clientKey) {
		return Decision{
			Allowed:   true,
			Remaining: policy.MaxRequests,
			Reason:    ReasonBypass,
		}
	}

	count, err := l.store.Slide(ctx, route+":"+clientKey, policy.Window, l.now(), policy.MaxRequests)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, failing open",
			"client", clientKey,
			"route", route,
			"error", err)
		return Decision{
			Allowed:   true,
			Remaining: policy.MaxRequests,
			Reason:    ReasonFailOpen,
		}
	}

	// count excludes the current request, which the store recorded only
	// when the budget had room.
	if count >= policy.MaxRequests {
		return Decision{
			Allowed:           false,
			Remaining:         0,
			RetryAfterSeconds: retryAfterSeconds(policy.Window),
			Reason:            ReasonLimited,
		}
	}

	return Decision{
		Allowed:   true,
		Remaining: policy.MaxRequests - count - 1,
		Reason:    ReasonOK,
	}
}

// retryAfterSeconds rounds the window up to whole seconds.
func retryAfterSeconds(window time.Duration) int {
	secs := int(window / time.Second)
	if window%time.Second != 0 {
		secs++
	}
	return secs
}

// isTrustedClient reports whether the client address is private,
// loopback, or link-local. Unparseable addresses are not trusted.
func isTrustedClient(clientKey string) bool {
	ip := net.ParseIP(clientKey)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}
