// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the orchestrator service.
//
// # Admission Flow
//
// The rate limit middleware derives a client key from the request,
// consults the sliding window limiter for the route's policy, and
// either passes the request through or rejects it with 429.
//
//	Request
//	   │
//	   ▼
//	RateLimitMiddleware
//	   │
//	   ├─► limiter.Check(ctx, route, clientIP)
//	   │
//	   ├─► Allowed: set X-RateLimit-Remaining, continue
//	   │
//	   └─► Denied: set Retry-After, respond 429, abort
//
// Trusted clients (loopback, private, link-local) bypass the budget.
// Store failures fail open so the limiter never takes the service
// down with it.
package middleware

import (
	"net/http"
	"strconv"

	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/datatypes"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/observability"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimit returns middleware enforcing the named route's request
// budget.
//
// # Description
//
// Each request is checked against the limiter before the handler
// runs. The X-RateLimit-Remaining header is set on every response so
// clients can pace themselves. Rejected requests get 429 with a
// Retry-After header and a retryable error body.
//
// # Inputs
//
//   - limiter: Shared limiter instance. Must not be nil.
//   - route: Route name used for policy lookup and metrics labels.
//
// # Limitations
//
//   - Client identity is the IP reported by gin's ClientIP, which
//     honors trusted proxy headers. Misconfigured proxies collapse all
//     clients into one budget.
func RateLimit(limiter *ratelimit.Limiter, route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := limiter.Check(c.Request.Context(), c.ClientIP(), route)

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRateLimitDecision(route, decision.Reason)
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(decision.RetryAfterSeconds))
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.Endpoint(route), observability.ErrorCodeRateLimited)
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				datatypes.NewErrorResponse("RATE_LIMITED", "too many requests, slow down", true))
			return
		}

		c.Next()
	}
}
