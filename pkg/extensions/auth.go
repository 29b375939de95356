// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the pluggable authentication contract for the
// Yggdrasil gateway. The open source default is a no-op provider that
// authenticates everything as a local user; deployments supply a JWT
// provider keyed from the environment.
package extensions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned when authentication fails. Implementations
// should wrap it with additional context.
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo contains identity information returned after successful
// authentication. UserID is the only required field.
type AuthInfo struct {
	UserID string
	Email  string
	Roles  []string
}

// HasRole checks if the user has a specific role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates authentication tokens and returns user identity.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type AuthProvider interface {
	// Validate checks a bearer token and returns the caller's identity, or
	// an error wrapping ErrUnauthorized.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// TokenIssuer mints tokens for callers that authenticate by other means.
// The gateway's /auth/token endpoint uses it for local deployments.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// =============================================================================
// No-op Provider
// =============================================================================

// NopAuthProvider authenticates every request as "local-user" with admin
// privileges. It keeps single-user deployments working without any identity
// infrastructure.
type NopAuthProvider struct{}

// Validate always succeeds.
func (NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{UserID: "local-user", Roles: []string{"admin"}}, nil
}

// =============================================================================
// JWT Provider
// =============================================================================

// JWTClaims are the signed claims carried by a Yggdrasil token.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthProvider validates and issues HS256 tokens signed with a shared
// secret.
type JWTAuthProvider struct {
	secret []byte
	expiry time.Duration
}

// NewJWTAuthProvider builds a provider from the shared secret and token
// lifetime. The secret must be non-empty.
func NewJWTAuthProvider(secret string, expiry time.Duration) (*JWTAuthProvider, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("JWT secret must not be empty")
	}
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &JWTAuthProvider{secret: []byte(secret), expiry: expiry}, nil
}

// Issue signs a token for the given user.
func (p *JWTAuthProvider) Issue(userID string) (string, error) {
	claims := JWTClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(p.expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

// Validate parses and verifies a token, returning the caller's identity.
func (p *JWTAuthProvider) Validate(_ context.Context, tokenStr string) (*AuthInfo, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", ErrUnauthorized)
	}
	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims: %w", ErrUnauthorized)
	}
	return &AuthInfo{UserID: claims.UserID, Roles: claims.Roles}, nil
}

var (
	_ AuthProvider = (*JWTAuthProvider)(nil)
	_ TokenIssuer  = (*JWTAuthProvider)(nil)
	_ AuthProvider = NopAuthProvider{}
)
