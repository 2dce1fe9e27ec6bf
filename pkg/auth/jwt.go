/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package auth implements the two-token credential scheme workers use: a
// short-lived access token presented on every request and a long-lived
// refresh token that is rotated, with the superseded one revoked, on each
// refresh. Revocations live in the ephemeral store keyed by the raw token
// string, so a revoked token stays dead for its whole natural lifetime.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/Aschie4589/QuantumHiveServer/pkg/config"
	"github.com/Aschie4589/QuantumHiveServer/pkg/ephemeral"
	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	blacklistPrefix = "blacklist:"
)

// Claims is the JWT payload. Subject carries the username, Type separates
// access from refresh tokens and ID keeps two tokens minted in the same
// second from being byte-identical.
type Claims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret     []byte
	store      ephemeral.Store
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewAuthenticator(store ephemeral.Store) (*Authenticator, error) {
	secret := config.GetJwtSecret()
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is not configured")
	}
	return &Authenticator{
		secret:     []byte(secret),
		store:      store,
		accessTTL:  time.Duration(config.GetAccessTokenExpireMinute()) * time.Minute,
		refreshTTL: time.Duration(config.GetRefreshTokenExpireHour()) * time.Hour,
		now:        time.Now,
	}, nil
}

// IssuePair mints a fresh access plus refresh token for a user.
func (a *Authenticator) IssuePair(username string) (string, string, error) {
	access, err := a.issue(username, TokenTypeAccess, a.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err := a.issue(username, TokenTypeRefresh, a.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (a *Authenticator) issue(username, tokenType string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify checks the revocation list and the signature, then enforces the
// expected token type. The revocation check comes first so a revoked token
// never reaches the parser.
func (a *Authenticator) Verify(ctx context.Context, raw, wantType string) (*Claims, error) {
	revoked, err := a.store.Exists(ctx, blacklistPrefix+raw)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, hiveerrors.NewTokenRevoked("the token has been revoked")
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, hiveerrors.NewTokenExpired("the token has expired")
		}
		return nil, hiveerrors.NewUnauthorized("invalid token")
	}
	if claims.Type != wantType {
		return nil, hiveerrors.NewBadRequest("invalid token type")
	}
	return claims, nil
}

// Rotate exchanges a valid refresh token for a fresh pair and revokes the
// old one, so every refresh token can be redeemed once.
func (a *Authenticator) Rotate(ctx context.Context, refresh string) (string, string, error) {
	claims, err := a.Verify(ctx, refresh, TokenTypeRefresh)
	if err != nil {
		return "", "", err
	}
	if err = a.Revoke(ctx, refresh); err != nil {
		return "", "", err
	}
	return a.IssuePair(claims.Subject)
}

// Revoke blacklists a token for the refresh lifetime, after which it would
// have expired on its own anyway.
func (a *Authenticator) Revoke(ctx context.Context, raw string) error {
	return a.store.SetEx(ctx, blacklistPrefix+raw, "revoked", a.refreshTTL)
}
