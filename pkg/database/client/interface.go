/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"time"

	sqrl "github.com/Masterminds/squirrel"
)

type Interface interface {
	UserInterface
	ChannelInterface
	JobInterface
	FileInterface
	Ping(ctx context.Context) error
}

type UserInterface interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserById(ctx context.Context, id int64) (*User, error)
}

type ChannelInterface interface {
	InsertChannel(ctx context.Context, channel *Channel) (int64, error)
	GetChannel(ctx context.Context, id int64) (*Channel, error)
	SelectChannels(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Channel, error)
	CountChannels(ctx context.Context, query sqrl.Sqlizer) (int, error)
	UpdateChannelStatus(ctx context.Context, id int64, from []string, to string) (bool, error)
	SetChannelKraus(ctx context.Context, id int64, krausId string) error
	SetChannelAttempts(ctx context.Context, id int64, attempts int) error
	IncrementRunsSpawned(ctx context.Context, id int64) error
	IncrementRunsCompleted(ctx context.Context, id int64) (int, int, error)
	UpdateBestResult(ctx context.Context, id int64, entropy float64, vectorId string) (bool, error)
}

type JobInterface interface {
	InsertJob(ctx context.Context, job *Job) (int64, error)
	GetJob(ctx context.Context, id int64) (*Job, error)
	SelectJobs(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Job, error)
	CountJobs(ctx context.Context, query sqrl.Sqlizer) (int, error)
	SelectPendingJobIds(ctx context.Context) ([]int64, error)
	LeaseJob(ctx context.Context, id int64, workerId string) (bool, error)
	PingJob(ctx context.Context, id int64, workerId string) (bool, error)
	TransitionJob(ctx context.Context, id int64, from []string, to string) (bool, error)
	CompleteJob(ctx context.Context, id int64) (bool, error)
	RestartJob(ctx context.Context, id int64, from []string, staleBefore *time.Time) (bool, error)
	SetJobIterations(ctx context.Context, id int64, iterations int) error
	SetJobEntropy(ctx context.Context, id int64, entropy float64) error
	SetJobArtifact(ctx context.Context, id int64, fileType, fileId string) error
	SetJobReplaced(ctx context.Context, canceledId, replacementId int64) (bool, error)
}

type FileInterface interface {
	CreateFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, id string) (*File, error)
}
