/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package handlers exposes the HTTP surface of the coordinator. Handlers
// authenticate the bearer token, authorize per endpoint and delegate every
// mutation to the owning manager; none of them touch the database tables of
// the core entities directly.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/Aschie4589/QuantumHiveServer/pkg/auth"
	"github.com/Aschie4589/QuantumHiveServer/pkg/channelmanager"
	dbclient "github.com/Aschie4589/QuantumHiveServer/pkg/database/client"
	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
	"github.com/Aschie4589/QuantumHiveServer/pkg/jobmanager"
	"github.com/Aschie4589/QuantumHiveServer/pkg/token"
	"github.com/Aschie4589/QuantumHiveServer/pkg/uploader"
)

const JsonContentType = "application/json"

type Handler struct {
	db        dbclient.Interface
	authn     *auth.Authenticator
	tokens    *token.Manager
	jobs      *jobmanager.Manager
	channels  *channelmanager.Manager
	assembler *uploader.Assembler
}

// NewHandler bundles the managers behind the HTTP surface.
func NewHandler(db dbclient.Interface, authn *auth.Authenticator, tokens *token.Manager,
	jobs *jobmanager.Manager, channels *channelmanager.Manager, assembler *uploader.Assembler) *Handler {
	return &Handler{
		db:        db,
		authn:     authn,
		tokens:    tokens,
		jobs:      jobs,
		channels:  channels,
		assembler: assembler,
	}
}

// ApiError is the unified wire shape of a failed request.
type ApiError struct {
	HttpCode     int    `json:"-"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (err *ApiError) Error() string {
	return err.ErrorMessage
}

// AbortWithApiError converts err into the unified error response and aborts
// the request. A NoWork reason becomes a bare 204 with no body. Errors
// without a hive reason become an opaque 500; the detail goes to the logs.
func AbortWithApiError(c *gin.Context, err error) {
	_ = c.Error(err)
	rsp := convertToErrResponse(err)
	if rsp.HttpCode == http.StatusNoContent {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.AbortWithStatusJSON(rsp.HttpCode, rsp)
}

func convertToErrResponse(err error) ApiError {
	var result *ApiError
	if errors.As(err, &result) {
		return *result
	}
	var statusErr *hiveerrors.StatusError
	if !errors.As(err, &statusErr) {
		klog.ErrorS(err, "request failed without a hive reason")
		statusErr = hiveerrors.NewInternalError("please contact the administrator")
	}
	return ApiError{
		HttpCode:     int(statusErr.Status().Code),
		ErrorCode:    string(statusErr.Status().Reason),
		ErrorMessage: statusErr.Error(),
	}
}

type handleFunc[T any] func(*gin.Context) (T, error)

// handle adapts a typed handler function to gin: errors go through the
// unified error response, everything else is replied as JSON.
func handle[T any](c *gin.Context, fn handleFunc[T]) {
	rsp, err := fn(c)
	if err != nil {
		AbortWithApiError(c, err)
		return
	}
	code := http.StatusOK
	if c.Writer.Status() > 0 {
		code = c.Writer.Status()
	}
	switch rspType := any(rsp).(type) {
	case []byte:
		c.Data(code, JsonContentType, rspType)
	case string:
		c.Data(code, JsonContentType, []byte(rspType))
	default:
		c.JSON(code, rspType)
	}
}

// Logger is the access-log middleware.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		klog.InfoS("request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client", c.ClientIP())
	}
}
