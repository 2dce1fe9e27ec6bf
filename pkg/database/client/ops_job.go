/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
)

var (
	insertJobFormat = `INSERT INTO ` + TJob + ` (%s) VALUES (%s) RETURNING id`
	getJobCmd       = fmt.Sprintf(`SELECT * FROM %s WHERE id = $1 LIMIT 1`, TJob)
	pendingIdsCmd   = fmt.Sprintf(`SELECT id FROM %s WHERE status = '%s' ORDER BY priority DESC, time_created ASC`,
		TJob, JobStatusPending)
	leaseJobCmd = fmt.Sprintf(`UPDATE %s SET status = '%s', worker_id = $2, time_started = now(), last_update = now()
		WHERE id = $1 AND status = '%s'`, TJob, JobStatusRunning, JobStatusPending)
	pingJobCmd = fmt.Sprintf(`UPDATE %s SET last_update = now()
		WHERE id = $1 AND worker_id = $2 AND status = '%s'`, TJob, JobStatusRunning)
	completeJobCmd = fmt.Sprintf(`UPDATE %s SET status = '%s', time_finished = now(), last_update = now()
		WHERE id = $1 AND status = '%s'`, TJob, JobStatusCompleted, JobStatusRunning)
	setIterationsCmd = fmt.Sprintf(`UPDATE %s SET num_iterations = $2, last_update = now() WHERE id = $1`, TJob)
	setEntropyCmd    = fmt.Sprintf(`UPDATE %s SET entropy = $2, last_update = now() WHERE id = $1`, TJob)
	setReplacedCmd   = fmt.Sprintf(`UPDATE %s SET replaced_by = $2, last_update = now()
		WHERE id = $1 AND status = '%s' AND replaced_by IS NULL`, TJob, JobStatusCanceled)
)

// InsertJob inserts a job row and returns the generated id.
func (c *Client) InsertJob(ctx context.Context, job *Job) (int64, error) {
	if job == nil {
		return 0, hiveerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	rows, err := db.NamedQueryContext(ctx2, generateCommand(*job, insertJobFormat, "id"), job)
	if err != nil {
		klog.ErrorS(err, "failed to insert job", "type", job.JobType)
		return 0, err
	}
	defer rows.Close()
	var id int64
	if !rows.Next() {
		return 0, hiveerrors.NewInternalError("insert job returned no id")
	}
	if err = rows.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// GetJob retrieves a job row by id.
func (c *Client) GetJob(ctx context.Context, id int64) (*Job, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	var job Job
	err = db.GetContext(ctx2, &job, getJobCmd, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hiveerrors.NewNotFound(hiveerrors.JobKind, fmt.Sprintf("%d", id))
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// SelectJobs retrieves job rows based on query conditions.
func (c *Client) SelectJobs(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Job, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	builder := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Select("*").From(TJob)
	if query != nil {
		builder = builder.Where(query)
	}
	for _, order := range orderBy {
		builder = builder.OrderBy(order)
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	if offset > 0 {
		builder = builder.Offset(uint64(offset))
	}
	cmd, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select jobs query: %v", err)
	}

	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()
	var jobs []*Job
	if err = db.SelectContext(ctx2, &jobs, cmd, args...); err != nil {
		return nil, fmt.Errorf("failed to select jobs from db: %v", err)
	}
	return jobs, nil
}

// CountJobs counts job rows based on query conditions.
func (c *Client) CountJobs(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	builder := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Select("COUNT(*)").From(TJob)
	if query != nil {
		builder = builder.Where(query)
	}
	cmd, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count jobs query: %v", err)
	}

	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()
	var count int
	if err = db.GetContext(ctx2, &count, cmd, args...); err != nil {
		return 0, fmt.Errorf("failed to count jobs from db: %v", err)
	}
	return count, nil
}

// SelectPendingJobIds lists ids of pending jobs in dispatch order.
func (c *Client) SelectPendingJobIds(ctx context.Context) ([]int64, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	var ids []int64
	if err = db.SelectContext(ctx2, &ids, pendingIdsCmd); err != nil {
		return nil, err
	}
	return ids, nil
}

// LeaseJob hands a pending job to a worker. The status condition makes the
// lease exclusive: of two concurrent attempts only one sees an affected row.
func (c *Client) LeaseJob(ctx context.Context, id int64, workerId string) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	result, err := db.ExecContext(ctx2, leaseJobCmd, id, workerId)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// PingJob refreshes the liveness timestamp of a running job. Returns false
// when the job is not running or is owned by another worker.
func (c *Client) PingJob(ctx context.Context, id int64, workerId string) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	result, err := db.ExecContext(ctx2, pingJobCmd, id, workerId)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// TransitionJob moves a job from one of the expected statuses to the target
// status. Returns false when the row was not in an expected status.
func (c *Client) TransitionJob(ctx context.Context, id int64, from []string, to string) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	builder := sqrl.Update(TJob).PlaceholderFormat(sqrl.Dollar).
		Set("status", to).
		Set("last_update", sqrl.Expr("now()")).
		Where(sqrl.Eq{"id": id})
	if len(from) > 0 {
		builder = builder.Where(sqrl.Eq{"status": from})
	}
	cmd, args, err := builder.ToSql()
	if err != nil {
		return false, err
	}

	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()
	result, err := db.ExecContext(ctx2, cmd, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CompleteJob finishes a running job and stamps time_finished.
func (c *Client) CompleteJob(ctx context.Context, id int64) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	result, err := db.ExecContext(ctx2, completeJobCmd, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RestartJob returns a job to the pending pool, clearing its worker binding
// and start time. When staleBefore is set the row must additionally not have
// been updated since that instant.
func (c *Client) RestartJob(ctx context.Context, id int64, from []string, staleBefore *time.Time) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	builder := sqrl.Update(TJob).PlaceholderFormat(sqrl.Dollar).
		Set("status", JobStatusPending).
		Set("worker_id", nil).
		Set("time_started", nil).
		Set("last_update", sqrl.Expr("now()")).
		Where(sqrl.Eq{"id": id})
	if len(from) > 0 {
		builder = builder.Where(sqrl.Eq{"status": from})
	}
	if staleBefore != nil {
		builder = builder.Where(sqrl.Lt{"last_update": *staleBefore})
	}
	cmd, args, err := builder.ToSql()
	if err != nil {
		return false, err
	}

	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()
	result, err := db.ExecContext(ctx2, cmd, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SetJobIterations records the iteration counter reported by the worker.
func (c *Client) SetJobIterations(ctx context.Context, id int64, iterations int) error {
	return c.execOnJob(ctx, setIterationsCmd, id, iterations)
}

// SetJobEntropy records the current objective value reported by the worker.
func (c *Client) SetJobEntropy(ctx context.Context, id int64, entropy float64) error {
	return c.execOnJob(ctx, setEntropyCmd, id, entropy)
}

// SetJobArtifact attaches an assembled artifact to the job, on the column
// matching the artifact type.
func (c *Client) SetJobArtifact(ctx context.Context, id int64, fileType, fileId string) error {
	var column string
	switch fileType {
	case FileTypeKraus:
		column = "kraus_operator"
	case FileTypeVector:
		column = "vector"
	default:
		return hiveerrors.NewBadRequest(fmt.Sprintf("unknown file type %q", fileType))
	}
	cmd := fmt.Sprintf(`UPDATE %s SET %s = $2, last_update = now() WHERE id = $1`, TJob, column)
	return c.execOnJob(ctx, cmd, id, fileId)
}

// SetJobReplaced links a canceled job to its replacement. The null condition
// makes the link single shot, so a canceled job spawns at most one successor.
func (c *Client) SetJobReplaced(ctx context.Context, canceledId, replacementId int64) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	result, err := db.ExecContext(ctx2, setReplacedCmd, canceledId, replacementId)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (c *Client) execOnJob(ctx context.Context, cmd string, id int64, arg interface{}) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	result, err := db.ExecContext(ctx2, cmd, id, arg)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return hiveerrors.NewNotFound(hiveerrors.JobKind, fmt.Sprintf("%d", id))
	}
	return nil
}
