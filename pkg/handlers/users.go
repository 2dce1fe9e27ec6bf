/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"net/mail"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/Aschie4589/QuantumHiveServer/pkg/auth"
	dbclient "github.com/Aschie4589/QuantumHiveServer/pkg/database/client"
	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
	"github.com/Aschie4589/QuantumHiveServer/pkg/utils/json"
)

const minPasswordLength = 8

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse is the public view of a user row; the password hash never
// leaves the server.
type userResponse struct {
	Id        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(user *dbclient.User) *userResponse {
	return &userResponse{
		Id:        user.Id,
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}

// Signup registers a new user account. The only unauthenticated POST
// endpoint; fresh accounts always get the user role.
func (h *Handler) Signup(c *gin.Context) {
	handle(c, func(c *gin.Context) (*userResponse, error) {
		var req signupRequest
		body, err := c.GetRawData()
		if err != nil {
			return nil, hiveerrors.NewBadRequest(err.Error())
		}
		if err = json.UnmarshalWithCheck(body, &req); err != nil {
			return nil, hiveerrors.NewBadRequest(err.Error())
		}
		if req.Username == "" {
			return nil, hiveerrors.NewBadRequest("username is required")
		}
		if _, err = mail.ParseAddress(req.Email); err != nil {
			return nil, hiveerrors.NewBadRequest("email is missing or malformed")
		}
		if len(req.Password) < minPasswordLength {
			return nil, hiveerrors.NewBadRequest("password must be at least 8 characters")
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			return nil, hiveerrors.NewInternalError(err.Error())
		}
		user := &dbclient.User{
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: hash,
			Role:         dbclient.RoleUser,
		}
		if err = h.db.CreateUser(c.Request.Context(), user); err != nil {
			return nil, err
		}
		klog.InfoS("registered user", "username", user.Username)
		return toUserResponse(user), nil
	})
}

// GetUser returns the public record of a user by username. Admin only.
func (h *Handler) GetUser(c *gin.Context) {
	handle(c, func(c *gin.Context) (*userResponse, error) {
		username := c.Query("username")
		if username == "" {
			return nil, hiveerrors.NewBadRequest("username is required")
		}
		user, err := h.db.GetUserByUsername(c.Request.Context(), username)
		if err != nil {
			return nil, err
		}
		return toUserResponse(user), nil
	})
}
