/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	dbclient "github.com/Aschie4589/QuantumHiveServer/pkg/database/client"
	"github.com/Aschie4589/QuantumHiveServer/pkg/database/utils"
	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
	"github.com/Aschie4589/QuantumHiveServer/pkg/jobmanager"
	"github.com/Aschie4589/QuantumHiveServer/pkg/utils/json"
)

type createJobRequest struct {
	JobType       string                 `json:"job_type"`
	InputData     map[string]interface{} `json:"input_data,omitempty"`
	KrausOperator string                 `json:"kraus_operator,omitempty"`
	Vector        string                 `json:"vector,omitempty"`
	ChannelId     int64                  `json:"channel_id,omitempty"`
	Priority      int                    `json:"priority,omitempty"`
}

type createJobResponse struct {
	JobId int64 `json:"job_id"`
}

// CreateJob inserts a standalone job. Admin only; channel-bound jobs are
// normally created by the control loop instead.
func (h *Handler) CreateJob(c *gin.Context) {
	handle(c, func(c *gin.Context) (*createJobResponse, error) {
		var req createJobRequest
		body, err := c.GetRawData()
		if err != nil {
			return nil, hiveerrors.NewBadRequest(err.Error())
		}
		if err = json.UnmarshalWithCheck(body, &req); err != nil {
			return nil, hiveerrors.NewBadRequest(err.Error())
		}
		job, err := h.jobs.Create(c.Request.Context(), jobmanager.CreateParams{
			JobType:   req.JobType,
			InputData: req.InputData,
			KrausId:   req.KrausOperator,
			VectorId:  req.Vector,
			ChannelId: req.ChannelId,
			Priority:  req.Priority,
		})
		if err != nil {
			return nil, err
		}
		return &createJobResponse{JobId: job.Id}, nil
	})
}

type jobRequestResponse struct {
	JobId     int64  `json:"job_id"`
	JobType   string `json:"job_type"`
	JobData   any    `json:"job_data"`
	JobStatus string `json:"job_status"`
	KrausId   string `json:"kraus_id,omitempty"`
	VectorId  string `json:"vector_id,omitempty"`
	ChannelId int64  `json:"channel_id,omitempty"`
}

// RequestJob leases the next dispatchable job to the calling worker. Replies
// 204 when the queue is empty.
func (h *Handler) RequestJob(c *gin.Context) {
	handle(c, func(c *gin.Context) (*jobRequestResponse, error) {
		user := currentUser(c)
		job, err := h.jobs.Assign(c.Request.Context(), user.Username)
		if err != nil {
			return nil, err
		}
		rsp := &jobRequestResponse{
			JobId:     job.Id,
			JobType:   job.JobType,
			JobStatus: job.Status,
			KrausId:   utils.ParseNullString(job.KrausOperator),
			VectorId:  utils.ParseNullString(job.Vector),
			ChannelId: utils.ParseNullInt64(job.ChannelId),
		}
		if len(job.InputData) > 0 {
			var data map[string]interface{}
			if err = json.Unmarshal(job.InputData, &data); err == nil {
				rsp.JobData = data
			}
		}
		return rsp, nil
	})
}

type pongResponse struct {
	Message string `json:"message"`
}

// PingJob refreshes the lease of a running job. A worker whose job was
// reclaimed gets a 400 and should request fresh work.
func (h *Handler) PingJob(c *gin.Context) {
	handle(c, func(c *gin.Context) (*pongResponse, error) {
		jobId, err := formInt64(c, "job_id")
		if err != nil {
			return nil, err
		}
		user := currentUser(c)
		if err = h.jobs.Ping(c.Request.Context(), jobId, user.Username); err != nil {
			return nil, err
		}
		return &pongResponse{Message: "pong"}, nil
	})
}

type jobStatusResponse struct {
	JobId     int64  `json:"job_id"`
	JobStatus string `json:"job_status"`
}

// JobStatus returns the current status of a job the caller owns.
func (h *Handler) JobStatus(c *gin.Context) {
	handle(c, func(c *gin.Context) (*jobStatusResponse, error) {
		jobId, err := strconv.ParseInt(c.Query("job_id"), 10, 64)
		if err != nil {
			return nil, hiveerrors.NewBadRequest("job_id is missing or not a number")
		}
		job, err := h.ownedJob(c, jobId)
		if err != nil {
			return nil, err
		}
		return &jobStatusResponse{JobId: job.Id, JobStatus: job.Status}, nil
	})
}

// PauseJob holds a running job the caller owns.
func (h *Handler) PauseJob(c *gin.Context) {
	h.lifecycle(c, h.jobs.Pause)
}

// ResumeJob returns a paused job the caller owns to running.
func (h *Handler) ResumeJob(c *gin.Context) {
	h.lifecycle(c, h.jobs.Resume)
}

// CancelJob terminally cancels a job the caller owns; the sweeper later
// synthesizes a replacement.
func (h *Handler) CancelJob(c *gin.Context) {
	h.lifecycle(c, h.jobs.Cancel)
}

// CompleteJob finishes a running job the caller owns and hands it to the
// control loop.
func (h *Handler) CompleteJob(c *gin.Context) {
	h.lifecycle(c, h.jobs.Complete)
}

// UpdateIterations records worker-reported iteration progress.
func (h *Handler) UpdateIterations(c *gin.Context) {
	handle(c, func(c *gin.Context) (*resultResponse, error) {
		jobId, err := formInt64(c, "job_id")
		if err != nil {
			return nil, err
		}
		iterations, err := formInt(c, "num_iterations")
		if err != nil {
			return nil, err
		}
		if iterations < 0 {
			return nil, hiveerrors.NewBadRequest("num_iterations must not be negative")
		}
		if _, err = h.ownedJob(c, jobId); err != nil {
			return nil, err
		}
		if err = h.jobs.UpdateIterations(c.Request.Context(), jobId, iterations); err != nil {
			return nil, err
		}
		return successResult, nil
	})
}

// UpdateEntropy records the worker's current objective value.
func (h *Handler) UpdateEntropy(c *gin.Context) {
	handle(c, func(c *gin.Context) (*resultResponse, error) {
		jobId, err := formInt64(c, "job_id")
		if err != nil {
			return nil, err
		}
		entropy, err := strconv.ParseFloat(c.PostForm("entropy"), 64)
		if err != nil {
			return nil, hiveerrors.NewBadRequest("entropy is missing or not a number")
		}
		if entropy < 0 {
			return nil, hiveerrors.NewBadRequest("entropy must not be negative")
		}
		if _, err = h.ownedJob(c, jobId); err != nil {
			return nil, err
		}
		if err = h.jobs.UpdateEntropy(c.Request.Context(), jobId, entropy); err != nil {
			return nil, err
		}
		return successResult, nil
	})
}

// lifecycle runs one owner-gated job transition taken from a form job_id.
func (h *Handler) lifecycle(c *gin.Context, op func(ctx context.Context, id int64) error) {
	handle(c, func(c *gin.Context) (*resultResponse, error) {
		jobId, err := formInt64(c, "job_id")
		if err != nil {
			return nil, err
		}
		if _, err = h.ownedJob(c, jobId); err != nil {
			return nil, err
		}
		if err = op(c.Request.Context(), jobId); err != nil {
			return nil, err
		}
		return successResult, nil
	})
}

// ownedJob loads a job and checks the caller leased it. Admins may operate
// on any job.
func (h *Handler) ownedJob(c *gin.Context, jobId int64) (*dbclient.Job, error) {
	job, err := h.jobs.Get(c.Request.Context(), jobId)
	if err != nil {
		return nil, err
	}
	user := currentUser(c)
	if user.Role == dbclient.RoleAdmin {
		return job, nil
	}
	worker := utils.ParseNullString(job.WorkerId)
	if worker == "" {
		return nil, hiveerrors.NewNotFoundWithMessage(fmt.Sprintf("job %d is not assigned to any worker", jobId))
	}
	if worker != user.Username {
		return nil, hiveerrors.NewForbidden("the job is leased to another worker")
	}
	return job, nil
}
