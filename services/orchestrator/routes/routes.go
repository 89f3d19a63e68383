// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/breaker"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/handlers"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/middleware"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/ratelimit"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps holds the shared components the routes are wired to.
type Deps struct {
	Orchestrator *services.ChatOrchestrator
	Limiter      *ratelimit.Limiter
	Breaker      *breaker.Breaker

	// RateStore names the limiter's backing store for the health
	// payload ("memory" or "badger").
	RateStore string
}

// SetupRoutes registers the API surface on the router.
//
// Chat endpoints share the chat budget; health runs under the
// lightweight budget so probes stay cheap but bounded.
func SetupRoutes(router *gin.Engine, deps Deps) {
	streaming := handlers.NewStreamingChatHandler(deps.Orchestrator)

	api := router.Group("/api")
	{
		api.POST("/chat",
			middleware.RateLimit(deps.Limiter, ratelimit.RouteChat),
			handlers.HandleChat(deps.Orchestrator))
		api.POST("/chat/stream",
			middleware.RateLimit(deps.Limiter, ratelimit.RouteChat),
			streaming.HandleChatStream)
		api.GET("/health",
			middleware.RateLimit(deps.Limiter, ratelimit.RouteLightweight),
			handlers.HandleHealth(deps.Breaker, deps.RateStore))
		api.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}
