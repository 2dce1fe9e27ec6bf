/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Aschie4589/QuantumHiveServer/pkg/auth"
	dbclient "github.com/Aschie4589/QuantumHiveServer/pkg/database/client"
	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "

	currentUserKey = "hive/current-user"
)

// Authenticate validates the bearer access token and stashes the user row in
// the request context. Requests without credentials fail with 400, requests
// with bad credentials with 401.
func (h *Handler) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(authorizationHeader)
		if raw == "" {
			AbortWithApiError(c, hiveerrors.NewAuthMissing("the Authorization header is missing"))
			return
		}
		if !strings.HasPrefix(raw, bearerPrefix) {
			AbortWithApiError(c, hiveerrors.NewAuthMissing("the Authorization header is not a bearer token"))
			return
		}
		claims, err := h.authn.Verify(c.Request.Context(), strings.TrimPrefix(raw, bearerPrefix), auth.TokenTypeAccess)
		if err != nil {
			AbortWithApiError(c, err)
			return
		}
		user, err := h.db.GetUserByUsername(c.Request.Context(), claims.Subject)
		if err != nil {
			if hiveerrors.IsNotFound(err) {
				err = hiveerrors.NewUserNotRegistered(claims.Subject)
			}
			AbortWithApiError(c, err)
			return
		}
		c.Set(currentUserKey, user)
		c.Next()
	}
}

// RequireAdmin gates an endpoint to admin users. Must run after Authenticate.
func (h *Handler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil || user.Role != dbclient.RoleAdmin {
			AbortWithApiError(c, hiveerrors.NewForbidden("this operation requires the admin role"))
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *dbclient.User {
	val, ok := c.Get(currentUserKey)
	if !ok {
		return nil
	}
	user, ok := val.(*dbclient.User)
	if !ok {
		return nil
	}
	return user
}
