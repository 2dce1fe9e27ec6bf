/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"github.com/gin-gonic/gin"
)

// InitRouters registers the coordinator endpoint table on the engine.
func InitRouters(engine *gin.Engine, h *Handler) {
	users := engine.Group("/users")
	users.POST("/signup", h.Signup)
	users.GET("/get", h.Authenticate(), h.RequireAdmin(), h.GetUser)

	authGroup := engine.Group("/auth")
	authGroup.POST("/login", h.Login)
	authGroup.POST("/refresh", h.Refresh)
	authGroup.GET("/status", h.Authenticate(), h.AuthStatus)

	channels := engine.Group("/channels", h.Authenticate())
	channels.GET("/list", h.ListChannels)
	channels.POST("/create", h.RequireAdmin(), h.CreateChannel)
	channels.POST("/update-minimization-attempts", h.RequireAdmin(), h.SetMinimizationAttempts)

	jobs := engine.Group("/jobs", h.Authenticate())
	jobs.POST("/create", h.RequireAdmin(), h.CreateJob)
	jobs.GET("/request", h.RequestJob)
	jobs.POST("/ping", h.PingJob)
	jobs.GET("/status", h.JobStatus)
	jobs.POST("/pause", h.PauseJob)
	jobs.POST("/resume", h.ResumeJob)
	jobs.POST("/cancel", h.CancelJob)
	jobs.POST("/complete", h.CompleteJob)
	jobs.POST("/update-iterations", h.UpdateIterations)
	jobs.POST("/update-entropy", h.UpdateEntropy)

	files := engine.Group("/files", h.Authenticate())
	files.POST("/request-upload", h.RequestUpload)
	files.POST("/upload/:token", h.UploadChunk)
	files.POST("/request-download", h.RequestDownload)
	files.GET("/download/:token", h.DownloadFile)
}
