// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/datatypes"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(policies map[string]ratelimit.Policy, route string, handled *int) *gin.Engine {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), policies, nil)

	r := gin.New()
	r.POST("/chat", RateLimit(limiter, route), func(c *gin.Context) {
		if handled != nil {
			*handled++
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func doRequest(r *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_AllowsUnderBudget(t *testing.T) {
	r := newTestRouter(map[string]ratelimit.Policy{
		ratelimit.RouteChat: {MaxRequests: 3, Window: time.Minute},
	}, ratelimit.RouteChat, nil)

	for i := 0; i < 3; i++ {
		w := doRequest(r, "8.8.8.8:1234")
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}
}

func TestRateLimit_RemainingHeaderDecrements(t *testing.T) {
	r := newTestRouter(map[string]ratelimit.Policy{
		ratelimit.RouteChat: {MaxRequests: 3, Window: time.Minute},
	}, ratelimit.RouteChat, nil)

	w := doRequest(r, "8.8.8.8:1234")
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Remaining"))

	w = doRequest(r, "8.8.8.8:1234")
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_RejectsOverBudget(t *testing.T) {
	handled := 0
	r := newTestRouter(map[string]ratelimit.Policy{
		ratelimit.RouteChat: {MaxRequests: 2, Window: time.Minute},
	}, ratelimit.RouteChat, &handled)

	doRequest(r, "8.8.8.8:1234")
	doRequest(r, "8.8.8.8:1234")

	w := doRequest(r, "8.8.8.8:1234")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	// The handler must not run for rejected requests.
	assert.Equal(t, 2, handled)

	var resp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "RATE_LIMITED", resp.Error.Code)
	assert.True(t, resp.Error.Retryable)
}

func TestRateLimit_LoopbackBypassesBudget(t *testing.T) {
	r := newTestRouter(map[string]ratelimit.Policy{
		ratelimit.RouteChat: {MaxRequests: 1, Window: time.Minute},
	}, ratelimit.RouteChat, nil)

	for i := 0; i < 10; i++ {
		w := doRequest(r, "127.0.0.1:1234")
		assert.Equal(t, http.StatusOK, w.Code, "loopback request %d", i+1)
	}
}

func TestRateLimit_ClientsHaveIndependentBudgets(t *testing.T) {
	r := newTestRouter(map[string]ratelimit.Policy{
		ratelimit.RouteChat: {MaxRequests: 1, Window: time.Minute},
	}, ratelimit.RouteChat, nil)

	require.Equal(t, http.StatusOK, doRequest(r, "8.8.8.8:1234").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(r, "8.8.8.8:1234").Code)

	// A different public client still has its own budget.
	assert.Equal(t, http.StatusOK, doRequest(r, "9.9.9.9:1234").Code)
}

func TestRateLimit_UnknownRouteUsesDefaultPolicy(t *testing.T) {
	r := newTestRouter(map[string]ratelimit.Policy{}, "nonexistent", nil)

	w := doRequest(r, "8.8.8.8:1234")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
}
