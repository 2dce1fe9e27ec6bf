/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/Aschie4589/QuantumHiveServer/pkg/auth"
	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
)

const refreshHeader = "refresh"

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Login exchanges form credentials for a token pair. The response never
// distinguishes a missing user from a wrong password.
func (h *Handler) Login(c *gin.Context) {
	handle(c, func(c *gin.Context) (*tokenPairResponse, error) {
		username := c.PostForm("username")
		password := c.PostForm("password")
		if username == "" || password == "" {
			return nil, hiveerrors.NewBadRequest("username and password are required")
		}
		user, err := h.db.GetUserByUsername(c.Request.Context(), username)
		if err != nil {
			if hiveerrors.IsNotFound(err) {
				return nil, hiveerrors.NewUnauthorized("invalid credentials")
			}
			return nil, err
		}
		if !auth.VerifyPassword(password, user.PasswordHash) {
			return nil, hiveerrors.NewUnauthorized("invalid credentials")
		}
		access, refresh, err := h.authn.IssuePair(user.Username)
		if err != nil {
			return nil, hiveerrors.NewInternalError(err.Error())
		}
		klog.InfoS("user logged in", "username", user.Username, "client", c.ClientIP())
		return &tokenPairResponse{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
	})
}

// Refresh rotates a refresh token into a fresh pair. The redeemed token is
// revoked, so presenting it twice fails with 401.
func (h *Handler) Refresh(c *gin.Context) {
	handle(c, func(c *gin.Context) (*tokenPairResponse, error) {
		refresh := c.GetHeader(refreshHeader)
		if refresh == "" {
			return nil, hiveerrors.NewAuthMissing("the refresh header is missing")
		}
		access, rotated, err := h.authn.Rotate(c.Request.Context(), refresh)
		if err != nil {
			return nil, err
		}
		return &tokenPairResponse{AccessToken: access, RefreshToken: rotated, TokenType: "bearer"}, nil
	})
}

type authStatusResponse struct {
	Status string `json:"status"`
	User   string `json:"user"`
}

// AuthStatus echoes the authenticated identity. Used by workers as a cheap
// credential check before starting a work loop.
func (h *Handler) AuthStatus(c *gin.Context) {
	handle(c, func(c *gin.Context) (*authStatusResponse, error) {
		user := currentUser(c)
		if user == nil {
			return nil, hiveerrors.NewInternalError("no identity in the request context")
		}
		return &authStatusResponse{Status: "Server is running", User: user.Username}, nil
	})
}
