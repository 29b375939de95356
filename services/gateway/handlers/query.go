// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the gateway's HTTP handlers: the query
// pipeline endpoints, streaming, health, auth, and the admin surface over
// the ledger and watcher.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yggdrasillabs/yggdrasil/pkg/extensions"
	"github.com/yggdrasillabs/yggdrasil/pkg/types"
	"github.com/yggdrasillabs/yggdrasil/services/gateway/datatypes"
	"github.com/yggdrasillabs/yggdrasil/services/gateway/observability"
	"github.com/yggdrasillabs/yggdrasil/services/pipeline"
)

// buildRequest maps the HTTP body onto a pipeline request.
func buildRequest(body datatypes.QueryRequest) pipeline.Request {
	opts := pipeline.DefaultOptions()
	opts.ReturnTrace = body.IncludeTrace
	if body.Options != nil {
		if body.Options.RequireMimirAnchor != nil {
			opts.RequireMimirAnchor = *body.Options.RequireMimirAnchor
		}
		if body.Options.RequireConsensus != nil {
			opts.RequireConsensus = *body.Options.RequireConsensus
		}
		if body.Options.MaxTimeMs > 0 {
			opts.MaxTimeMs = body.Options.MaxTimeMs
		}
		if body.Options.ReturnTrace != nil {
			opts.ReturnTrace = *body.Options.ReturnTrace
		}
	}
	return pipeline.Request{
		RequestID: uuid.NewString(),
		Query:     body.Query,
		UserID:    body.UserID,
		SessionID: body.SessionID,
		Options:   opts,
	}
}

// statusFor maps a response onto the boundary error taxonomy: domain
// refusals stay 200, deadline expiry is 408.
func statusFor(resp *types.YggdrasilResponse) int {
	if resp.RefusalReason == types.RefusalTimeout {
		return http.StatusRequestTimeout
	}
	return http.StatusOK
}

func observe(endpoint string, resp *types.YggdrasilResponse, started time.Time) {
	outcome := "verified"
	if !resp.IsVerified {
		outcome = "refused"
		observability.ObserveRefusal(string(resp.RefusalReason))
	}
	observability.ObserveOutcome(endpoint, outcome, time.Since(started).Seconds())
}

// HandleQuery serves POST /yggdrasil/query.
func HandleQuery(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body datatypes.QueryRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		started := time.Now()
		resp, err := p.Process(c.Request.Context(), buildRequest(body), nil)
		if err != nil {
			observability.ObserveOutcome("query", "error", time.Since(started).Seconds())
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "internal error"})
			return
		}

		observe("query", resp, started)
		c.JSON(statusFor(resp), resp)
	}
}

// HandleQueryThinking serves POST /yggdrasil/query/thinking.
func HandleQueryThinking(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body datatypes.QueryRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		started := time.Now()
		resp, thinking, err := p.ProcessWithThinking(c.Request.Context(), buildRequest(body))
		if err != nil {
			observability.ObserveOutcome("query_thinking", "error", time.Since(started).Seconds())
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "internal error"})
			return
		}

		observe("query_thinking", resp, started)
		c.JSON(statusFor(resp), datatypes.ThinkingResponse{
			YggdrasilResponse: *resp,
			Thinking:          thinking,
		})
	}
}

// HandleToken serves POST /auth/token, issuing local JWTs.
func HandleToken(issuer extensions.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body datatypes.TokenRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		token, err := issuer.Issue(body.UserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "token issuance failed"})
			return
		}
		c.JSON(http.StatusOK, datatypes.TokenResponse{Token: token})
	}
}
