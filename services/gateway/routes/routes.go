// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yggdrasillabs/yggdrasil/pkg/extensions"
	"github.com/yggdrasillabs/yggdrasil/services/gateway/handlers"
	"github.com/yggdrasillabs/yggdrasil/services/gateway/middleware"
	"github.com/yggdrasillabs/yggdrasil/services/ledger"
	"github.com/yggdrasillabs/yggdrasil/services/llm"
	"github.com/yggdrasillabs/yggdrasil/services/pipeline"
	"github.com/yggdrasillabs/yggdrasil/services/similarity"
	"github.com/yggdrasillabs/yggdrasil/services/watcher"
)

// Deps bundles everything the routes need.
type Deps struct {
	Pipeline   *pipeline.Pipeline
	Ledger     *ledger.Ledger
	Watcher    *watcher.Watcher
	Registry   *llm.Registry
	Similarity *similarity.Index
	Auth       extensions.AuthProvider
	Issuer     extensions.TokenIssuer
	Limiter    *middleware.RateLimiter
}

// SetupRoutes registers every endpoint. Health, metrics, and token issuance
// are public; the query pipeline and the admin surface sit behind auth and
// rate limiting.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/yggdrasil/health", handlers.HandleHealth(deps.Ledger, deps.Registry))
	if deps.Issuer != nil {
		router.POST("/auth/token", handlers.HandleToken(deps.Issuer))
	}

	authed := router.Group("/")
	authed.Use(middleware.Auth(deps.Auth))
	if deps.Limiter != nil {
		authed.Use(deps.Limiter.Middleware())
	}

	yggdrasil := authed.Group("/yggdrasil")
	{
		yggdrasil.POST("/query", handlers.HandleQuery(deps.Pipeline))
		yggdrasil.POST("/query/thinking", handlers.HandleQueryThinking(deps.Pipeline))
		yggdrasil.POST("/query/stream", handlers.HandleQueryStream(deps.Pipeline))
	}

	v1 := authed.Group("/v1")
	{
		nodes := v1.Group("/nodes")
		{
			nodes.GET("/similar", handlers.HandleSimilarNodes(deps.Similarity))
			nodes.GET("/:id", handlers.HandleGetNode(deps.Ledger))
			nodes.GET("/:id/audit", handlers.HandleGetNodeAudit(deps.Ledger))
		}
		v1.GET("/alerts", handlers.HandleListAlerts(deps.Ledger, deps.Watcher))
		v1.GET("/deliberations/:id/attribution", handlers.HandleDeliberationAttribution(deps.Ledger))
		checkpoints := v1.Group("/checkpoints")
		{
			checkpoints.POST("", handlers.HandleCreateCheckpoint(deps.Ledger))
			checkpoints.POST("/:id/rollback", handlers.HandleRollback(deps.Ledger))
		}
		watcherGroup := v1.Group("/watcher")
		{
			watcherGroup.GET("/stats", handlers.HandleWatcherStats(deps.Watcher))
			watcherGroup.POST("/scan", handlers.HandleWatcherScan(deps.Watcher))
		}
	}
}
