// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the gateway: bearer-token
// authentication and per-client rate limiting.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yggdrasillabs/yggdrasil/pkg/extensions"
	"github.com/yggdrasillabs/yggdrasil/services/gateway/datatypes"
)

// authInfoKey is the gin-context key for the authenticated identity.
const authInfoKey = "yggdrasil_auth_info"

// GetAuthInfo returns the authenticated identity, or nil for
// unauthenticated requests.
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	v, ok := c.Get(authInfoKey)
	if !ok {
		return nil
	}
	info, _ := v.(*extensions.AuthInfo)
	return info
}

// Auth validates the Authorization bearer token with the configured
// provider and stores the resulting identity in the request context.
// Requests without a valid token are rejected with 401.
func Auth(provider extensions.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				datatypes.ErrorResponse{Error: "missing bearer token"})
			return
		}

		info, err := provider.Validate(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				datatypes.ErrorResponse{Error: "invalid token"})
			return
		}

		c.Set(authInfoKey, info)
		c.Next()
	}
}
