// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"time"

	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/breaker"
	"github.com/gin-gonic/gin"
)

// HealthResponse is the payload for GET /api/health.
type HealthResponse struct {
	Status    string        `json:"status"`
	Timestamp int64         `json:"timestamp"`
	Breaker   BreakerHealth `json:"memory_breaker"`
	RateStore string        `json:"rate_limit_store"`
}

// BreakerHealth summarizes the memory circuit breaker state.
type BreakerHealth struct {
	State     string `json:"state"`
	Failures  int    `json:"failures"`
	OpenUntil int64  `json:"open_until,omitempty"`
}

// HandleHealth reports service liveness plus the state of the
// degradation machinery. The service is "degraded" rather than
// unhealthy while the memory breaker is open: requests still succeed
// with neutral context.
func HandleHealth(brk *breaker.Breaker, rateStore string) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UnixMilli(),
			RateStore: rateStore,
		}

		if brk != nil {
			snap := brk.Snapshot()
			resp.Breaker = BreakerHealth{
				State:    snap.State,
				Failures: snap.Failures,
			}
			if snap.State == breaker.StateOpen.String() {
				resp.Status = "degraded"
				resp.Breaker.OpenUntil = snap.OpenUntil.UnixMilli()
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}
