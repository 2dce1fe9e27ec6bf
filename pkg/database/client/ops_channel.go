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

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
)

var (
	insertChannelFormat = `INSERT INTO ` + TChannel + ` (%s) VALUES (%s) RETURNING id`
	getChannelCmd       = fmt.Sprintf(`SELECT * FROM %s WHERE id = $1 LIMIT 1`, TChannel)
	setChannelKrausCmd  = fmt.Sprintf(`UPDATE %s SET kraus_id = $2, update_time = now() WHERE id = $1`, TChannel)
	setAttemptsCmd      = fmt.Sprintf(`UPDATE %s SET minimization_attempts = $2, update_time = now()
		WHERE id = $1 AND runs_spawned <= $2`, TChannel)
	incrSpawnedCmd = fmt.Sprintf(`UPDATE %s SET runs_spawned = runs_spawned + 1, update_time = now()
		WHERE id = $1 AND runs_spawned < minimization_attempts`, TChannel)
	incrCompletedCmd = fmt.Sprintf(`UPDATE %s SET runs_completed = runs_completed + 1, update_time = now()
		WHERE id = $1 AND runs_completed < minimization_attempts
		RETURNING runs_completed, minimization_attempts`, TChannel)
	updateBestCmd = fmt.Sprintf(`UPDATE %s SET best_moe = $2, best_vector_id = $3, update_time = now()
		WHERE id = $1 AND (best_moe < 0 OR $2 < best_moe)`, TChannel)
)

// InsertChannel inserts a channel row and returns the generated id.
func (c *Client) InsertChannel(ctx context.Context, channel *Channel) (int64, error) {
	if channel == nil {
		return 0, hiveerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	rows, err := db.NamedQueryContext(ctx2, generateCommand(*channel, insertChannelFormat, "id"), channel)
	if err != nil {
		klog.ErrorS(err, "failed to insert channel")
		return 0, err
	}
	defer rows.Close()
	var id int64
	if !rows.Next() {
		return 0, hiveerrors.NewInternalError("insert channel returned no id")
	}
	if err = rows.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// GetChannel retrieves a channel row by id.
func (c *Client) GetChannel(ctx context.Context, id int64) (*Channel, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	var channel Channel
	err = db.GetContext(ctx2, &channel, getChannelCmd, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hiveerrors.NewNotFound(hiveerrors.ChannelKind, fmt.Sprintf("%d", id))
	}
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

// SelectChannels retrieves channel rows based on query conditions.
func (c *Client) SelectChannels(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Channel, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	builder := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Select("*").From(TChannel)
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
		return nil, fmt.Errorf("failed to build select channels query: %v", err)
	}

	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()
	var channels []*Channel
	if err = db.SelectContext(ctx2, &channels, cmd, args...); err != nil {
		return nil, fmt.Errorf("failed to select channels from db: %v", err)
	}
	return channels, nil
}

// CountChannels counts channel rows based on query conditions.
func (c *Client) CountChannels(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	builder := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Select("COUNT(*)").From(TChannel)
	if query != nil {
		builder = builder.Where(query)
	}
	cmd, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count channels query: %v", err)
	}

	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()
	var count int
	if err = db.GetContext(ctx2, &count, cmd, args...); err != nil {
		return 0, fmt.Errorf("failed to count channels from db: %v", err)
	}
	return count, nil
}

// UpdateChannelStatus moves a channel from one of the expected statuses to the
// target status. Returns false when the row was not in an expected status.
func (c *Client) UpdateChannelStatus(ctx context.Context, id int64, from []string, to string) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	builder := sqrl.Update(TChannel).PlaceholderFormat(sqrl.Dollar).
		Set("status", to).
		Set("update_time", sqrl.Expr("now()")).
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

// SetChannelKraus records the Kraus artifact id on the channel.
func (c *Client) SetChannelKraus(ctx context.Context, id int64, krausId string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	result, err := db.ExecContext(ctx2, setChannelKrausCmd, id, krausId)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return hiveerrors.NewNotFound(hiveerrors.ChannelKind, fmt.Sprintf("%d", id))
	}
	return nil
}

// SetChannelAttempts updates minimization_attempts. The new value must not be
// below the runs already spawned.
func (c *Client) SetChannelAttempts(ctx context.Context, id int64, attempts int) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	result, err := db.ExecContext(ctx2, setAttemptsCmd, id, attempts)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return hiveerrors.NewBadState(
			fmt.Sprintf("cannot set minimization_attempts of channel %d to %d", id, attempts))
	}
	return nil
}

// IncrementRunsSpawned advances runs_spawned by one, bounded by
// minimization_attempts.
func (c *Client) IncrementRunsSpawned(ctx context.Context, id int64) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	result, err := db.ExecContext(ctx2, incrSpawnedCmd, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return hiveerrors.NewBadState(fmt.Sprintf("channel %d reached its attempt budget", id))
	}
	return nil
}

// IncrementRunsCompleted advances runs_completed by one and returns the new
// count together with the attempt budget.
func (c *Client) IncrementRunsCompleted(ctx context.Context, id int64) (int, int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, 0, err
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	var completed, attempts int
	err = db.QueryRowxContext(ctx2, incrCompletedCmd, id).Scan(&completed, &attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, hiveerrors.NewBadState(fmt.Sprintf("channel %d reached its attempt budget", id))
	}
	if err != nil {
		return 0, 0, err
	}
	return completed, attempts, nil
}

// UpdateBestResult records a better objective value. The condition keeps
// best_moe non-increasing once it is non-negative. Returns true when the row
// was updated.
func (c *Client) UpdateBestResult(ctx context.Context, id int64, entropy float64, vectorId string) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	result, err := db.ExecContext(ctx2, updateBestCmd, id, entropy, vectorId)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
