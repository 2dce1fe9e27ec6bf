/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/lib/pq"
)

const (
	TUser    = "users"
	TChannel = "channels"
	TJob     = "jobs"
	TFile    = "files"

	DESC = "desc"
	ASC  = "asc"
)

// Channel statuses. Transitions are monotone created -> generating ->
// minimizing -> completed; paused is an orthogonal hold.
const (
	ChannelStatusCreated    = "created"
	ChannelStatusGenerating = "generating"
	ChannelStatusMinimizing = "minimizing"
	ChannelStatusPaused     = "paused"
	ChannelStatusCompleted  = "completed"
)

// Job statuses.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCanceled  = "canceled"
	JobStatusPaused    = "paused"
)

// Job types.
const (
	JobTypeGenerateKraus  = "generate_kraus"
	JobTypeGenerateVector = "generate_vector"
	JobTypeMinimize       = "minimize"
)

// File types.
const (
	FileTypeKraus  = "kraus"
	FileTypeVector = "vector"
)

// MoeUnset is the sentinel recorded before any valid entropy sample arrives.
const MoeUnset = -1.0

type User struct {
	Id           int64     `db:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Username     string    `db:"username" gorm:"column:username;uniqueIndex;size:64"`
	Email        string    `db:"email" gorm:"column:email;uniqueIndex;size:254"`
	PasswordHash string    `db:"password_hash" gorm:"column:password_hash"`
	Role         string    `db:"role" gorm:"column:role;default:user"`
	CreatedAt    time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (User) TableName() string {
	return TUser
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Channel struct {
	Id                   int64          `db:"id" gorm:"column:id;primaryKey;autoIncrement"`
	KrausId              sql.NullString `db:"kraus_id" gorm:"column:kraus_id;size:8"`
	BestMoe              float64        `db:"best_moe" gorm:"column:best_moe;default:-1"`
	BestVectorId         sql.NullString `db:"best_vector_id" gorm:"column:best_vector_id;size:8"`
	MinimizationAttempts int            `db:"minimization_attempts" gorm:"column:minimization_attempts;default:100"`
	RunsSpawned          int            `db:"runs_spawned" gorm:"column:runs_spawned;default:0"`
	RunsCompleted        int            `db:"runs_completed" gorm:"column:runs_completed;default:0"`
	InputDim             int            `db:"input_dim" gorm:"column:input_dim"`
	OutputDim            int            `db:"output_dim" gorm:"column:output_dim"`
	NumKraus             int            `db:"num_kraus" gorm:"column:num_kraus"`
	Method               sql.NullString `db:"method" gorm:"column:method"`
	Status               string         `db:"status" gorm:"column:status;index"`
	CreationTime         pq.NullTime    `db:"creation_time" gorm:"column:creation_time"`
	UpdateTime           pq.NullTime    `db:"update_time" gorm:"column:update_time"`
}

func (Channel) TableName() string {
	return TChannel
}

type Job struct {
	Id            int64          `db:"id" gorm:"column:id;primaryKey;autoIncrement"`
	JobType       string         `db:"job_type" gorm:"column:job_type"`
	Status        string         `db:"status" gorm:"column:status;index"`
	InputData     []byte         `db:"input_data" gorm:"column:input_data;type:jsonb"`
	KrausOperator sql.NullString `db:"kraus_operator" gorm:"column:kraus_operator;size:8"`
	Vector        sql.NullString `db:"vector" gorm:"column:vector;size:8"`
	Entropy       float64        `db:"entropy" gorm:"column:entropy;default:-1"`
	NumIterations int            `db:"num_iterations" gorm:"column:num_iterations;default:0"`
	TimeCreated   pq.NullTime    `db:"time_created" gorm:"column:time_created"`
	TimeStarted   pq.NullTime    `db:"time_started" gorm:"column:time_started"`
	TimeFinished  pq.NullTime    `db:"time_finished" gorm:"column:time_finished"`
	LastUpdate    pq.NullTime    `db:"last_update" gorm:"column:last_update;index"`
	WorkerId      sql.NullString `db:"worker_id" gorm:"column:worker_id"`
	ChannelId     sql.NullInt64  `db:"channel_id" gorm:"column:channel_id;index"`
	Priority      int            `db:"priority" gorm:"column:priority;default:1"`
	ReplacedBy    sql.NullInt64  `db:"replaced_by" gorm:"column:replaced_by"`
}

func (Job) TableName() string {
	return TJob
}

type File struct {
	Id        string    `db:"id" gorm:"column:id;primaryKey;size:8"`
	Type      string    `db:"type" gorm:"column:type"`
	FullPath  string    `db:"full_path" gorm:"column:full_path;uniqueIndex"`
	Checksum  string    `db:"checksum" gorm:"column:checksum"`
	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (File) TableName() string {
	return TFile
}

// generateCommand builds a named insert command from the db tags of obj,
// skipping the column named by ignoreTag.
func generateCommand(obj interface{}, format, ignoreTag string) string {
	t := reflect.TypeOf(obj)
	columns := make([]string, 0, t.NumField())
	values := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("db")
		if tag == ignoreTag {
			continue
		}
		columns = append(columns, tag)
		values = append(values, fmt.Sprintf(":%s", tag))
	}
	cmd := fmt.Sprintf(format, strings.Join(columns, ", "), strings.Join(values, ", "))
	return cmd
}
