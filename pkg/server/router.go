/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aschie4589/QuantumHiveServer/pkg/config"
	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
	"github.com/Aschie4589/QuantumHiveServer/pkg/handlers"
)

const readyProbeTimeout = 5 * time.Second

// InitRoutes builds the gin engine: the endpoint table plus the operational
// probes and the metrics scrape target.
func (s *Server) InitRoutes(h *handlers.Handler) *gin.Engine {
	engine := gin.New()
	engine.Use(handlers.Logger(), gin.Recovery())
	engine.NoRoute(func(c *gin.Context) {
		handlers.AbortWithApiError(c, hiveerrors.NewNotFoundWithMessage(c.Request.RequestURI+" not found"))
	})

	engine.GET("/healthz", s.healthz)
	engine.GET("/readyz", s.readyz)
	if config.IsMetricsEnable() {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	handlers.InitRouters(engine, h)
	return engine
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// readyz reports whether both stores answer within the probe window.
func (s *Server) readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyProbeTimeout)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unreachable"})
		return
	}
	if err := s.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "ephemeral store unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
