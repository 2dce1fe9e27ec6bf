/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	dbclient "github.com/Aschie4589/QuantumHiveServer/pkg/database/client"
	"github.com/Aschie4589/QuantumHiveServer/pkg/database/utils"
	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
)

type resultResponse struct {
	Result string `json:"result"`
}

var successResult = &resultResponse{Result: "success"}

type channelResponse struct {
	Id                   int64   `json:"id"`
	Status               string  `json:"status"`
	KrausId              string  `json:"kraus_id,omitempty"`
	BestMoe              float64 `json:"best_moe"`
	BestVectorId         string  `json:"best_vector_id,omitempty"`
	MinimizationAttempts int     `json:"minimization_attempts"`
	RunsSpawned          int     `json:"runs_spawned"`
	RunsCompleted        int     `json:"runs_completed"`
	InputDim             int     `json:"input_dim"`
	OutputDim            int     `json:"output_dim"`
	NumKraus             int     `json:"num_kraus"`
}

func toChannelResponse(ch *dbclient.Channel) *channelResponse {
	return &channelResponse{
		Id:                   ch.Id,
		Status:               ch.Status,
		KrausId:              utils.ParseNullString(ch.KrausId),
		BestMoe:              ch.BestMoe,
		BestVectorId:         utils.ParseNullString(ch.BestVectorId),
		MinimizationAttempts: ch.MinimizationAttempts,
		RunsSpawned:          ch.RunsSpawned,
		RunsCompleted:        ch.RunsCompleted,
		InputDim:             ch.InputDim,
		OutputDim:            ch.OutputDim,
		NumKraus:             ch.NumKraus,
	}
}

// CreateChannel registers a new channel objective. Admin only; the control
// loop starts expanding it on its next tick.
func (h *Handler) CreateChannel(c *gin.Context) {
	handle(c, func(c *gin.Context) (*resultResponse, error) {
		inputDim, err := formInt(c, "input_dim")
		if err != nil {
			return nil, err
		}
		outputDim, err := formInt(c, "output_dim")
		if err != nil {
			return nil, err
		}
		numKraus, err := formInt(c, "num_kraus")
		if err != nil {
			return nil, err
		}
		method := c.PostForm("method")
		if _, err = h.channels.CreateChannel(c.Request.Context(), inputDim, outputDim, numKraus, method); err != nil {
			return nil, err
		}
		return successResult, nil
	})
}

// ListChannels enumerates every channel, oldest first.
func (h *Handler) ListChannels(c *gin.Context) {
	handle(c, func(c *gin.Context) ([]*channelResponse, error) {
		channels, err := h.channels.ListChannels(c.Request.Context())
		if err != nil {
			return nil, err
		}
		rsp := make([]*channelResponse, 0, len(channels))
		for _, ch := range channels {
			rsp = append(rsp, toChannelResponse(ch))
		}
		return rsp, nil
	})
}

// SetMinimizationAttempts adjusts a channel's attempt budget. Admin only.
func (h *Handler) SetMinimizationAttempts(c *gin.Context) {
	handle(c, func(c *gin.Context) (*resultResponse, error) {
		channelId, err := formInt64(c, "channel_id")
		if err != nil {
			return nil, err
		}
		attempts, err := formInt(c, "attempts")
		if err != nil {
			return nil, err
		}
		if err = h.channels.SetAttempts(c.Request.Context(), channelId, attempts); err != nil {
			return nil, err
		}
		return successResult, nil
	})
}

func formInt(c *gin.Context, field string) (int, error) {
	val, err := strconv.Atoi(c.PostForm(field))
	if err != nil {
		return 0, hiveerrors.NewBadRequest(field + " is missing or not a number")
	}
	return val, nil
}

func formInt64(c *gin.Context, field string) (int64, error) {
	val, err := strconv.ParseInt(c.PostForm(field), 10, 64)
	if err != nil {
		return 0, hiveerrors.NewBadRequest(field + " is missing or not a number")
	}
	return val, nil
}
