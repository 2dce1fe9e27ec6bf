/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package jobmanager owns the job lifecycle: creation, dispatch through the
// ephemeral queue, worker leasing and liveness, completion and the periodic
// sweep that reclaims abandoned work. The database is authoritative for job
// status; the queue is an advisory hint that Sync can always rebuild.
package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"k8s.io/klog/v2"

	dbclient "github.com/Aschie4589/QuantumHiveServer/pkg/database/client"
	"github.com/Aschie4589/QuantumHiveServer/pkg/database/utils"
	"github.com/Aschie4589/QuantumHiveServer/pkg/ephemeral"
	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
	"github.com/Aschie4589/QuantumHiveServer/pkg/metrics"
	"github.com/Aschie4589/QuantumHiveServer/pkg/notification/channel"
	"github.com/Aschie4589/QuantumHiveServer/pkg/utils/json"
)

const (
	queueKey = "job_queue"
	inboxKey = "to_process"
)

type Manager struct {
	db       dbclient.Interface
	store    ephemeral.Store
	notifier channel.Channel

	// now is swappable so the sweeper tests can move time.
	now func() time.Time
}

// NewManager wires the job manager to its stores. The notifier may be nil
// when no alert channel is configured. Callers should run Sync once after
// construction to repair the queue from whatever the store holds.
func NewManager(db dbclient.Interface, store ephemeral.Store, notifier channel.Channel) *Manager {
	return &Manager{db: db, store: store, notifier: notifier, now: time.Now}
}

// CreateParams describes a job to create. ChannelId zero means the job is
// not bound to a channel; Priority zero takes the default.
type CreateParams struct {
	JobType   string
	InputData map[string]interface{}
	KrausId   string
	VectorId  string
	ChannelId int64
	Priority  int
}

// Create validates the parameters, inserts a pending row and enqueues it for
// dispatch. A minimize job must carry both input artifacts at creation.
func (m *Manager) Create(ctx context.Context, params CreateParams) (*dbclient.Job, error) {
	switch params.JobType {
	case dbclient.JobTypeGenerateKraus, dbclient.JobTypeGenerateVector:
	case dbclient.JobTypeMinimize:
		if params.KrausId == "" || params.VectorId == "" {
			return nil, hiveerrors.NewBadRequest("a minimize job requires both a kraus operator and a vector")
		}
	default:
		return nil, hiveerrors.NewBadRequest(fmt.Sprintf("unknown job type %q", params.JobType))
	}

	now := m.now()
	job := &dbclient.Job{
		JobType:     params.JobType,
		Status:      dbclient.JobStatusPending,
		Entropy:     dbclient.MoeUnset,
		Priority:    params.Priority,
		TimeCreated: utils.NullTime(now),
		LastUpdate:  utils.NullTime(now),
	}
	if job.Priority == 0 {
		job.Priority = 1
	}
	if len(params.InputData) > 0 {
		job.InputData = json.MarshalSilently(params.InputData)
	}
	if params.KrausId != "" {
		job.KrausOperator = utils.NullString(params.KrausId)
	}
	if params.VectorId != "" {
		job.Vector = utils.NullString(params.VectorId)
	}
	if params.ChannelId > 0 {
		job.ChannelId = utils.NullInt64(params.ChannelId)
	}

	id, err := m.db.InsertJob(ctx, job)
	if err != nil {
		return nil, err
	}
	job.Id = id
	if err = m.enqueue(ctx, id); err != nil {
		klog.ErrorS(err, "created job could not be enqueued, sync will repair", "job", id)
	}
	metrics.JobsCreated.WithLabelValues(job.JobType).Inc()
	klog.InfoS("created job", "job", id, "type", job.JobType, "channel", job.ChannelId.Int64)
	return job, nil
}

// Assign leases the next dispatchable job to a worker. The conditional
// status update is the lease point: of any number of concurrent calls for
// the same queue entry, at most one wins. Stale queue hints are skipped and
// trigger a resync.
func (m *Manager) Assign(ctx context.Context, workerId string) (*dbclient.Job, error) {
	for {
		entry, err := m.store.LPop(ctx, queueKey)
		if errors.Is(err, ephemeral.ErrNotFound) {
			return nil, hiveerrors.NewNoWork()
		}
		if err != nil {
			return nil, err
		}
		id, convErr := strconv.ParseInt(entry, 10, 64)
		if convErr != nil {
			klog.ErrorS(convErr, "dropping malformed dispatch queue entry", "entry", entry)
			continue
		}

		leased, err := m.db.LeaseJob(ctx, id, workerId)
		if err != nil {
			return nil, err
		}
		if !leased {
			if _, err = m.db.GetJob(ctx, id); err != nil {
				if hiveerrors.IsNotFound(err) {
					klog.InfoS("queued job is missing from the store", "job", id)
					continue
				}
				return nil, err
			}
			klog.InfoS("queued job is no longer pending, resyncing the queue", "job", id)
			if err = m.Sync(ctx); err != nil {
				klog.ErrorS(err, "failed to sync the dispatch queue")
			}
			continue
		}

		job, err := m.db.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		metrics.JobsLeased.Inc()
		klog.InfoS("leased job", "job", id, "type", job.JobType, "worker", workerId)
		return job, nil
	}
}

// Ping refreshes the lease of a running job. Fails when the job is not
// running or is owned by another worker, so a worker whose job was already
// reclaimed cannot extend the old lease.
func (m *Manager) Ping(ctx context.Context, jobId int64, workerId string) error {
	ok, err := m.db.PingJob(ctx, jobId, workerId)
	if err != nil {
		return err
	}
	if !ok {
		return hiveerrors.NewBadState(fmt.Sprintf("job %d is not running for worker %s", jobId, workerId))
	}
	return nil
}

// Get returns a job row by id.
func (m *Manager) Get(ctx context.Context, id int64) (*dbclient.Job, error) {
	return m.db.GetJob(ctx, id)
}

// Pause holds a running job.
func (m *Manager) Pause(ctx context.Context, id int64) error {
	return m.transition(ctx, id, []string{dbclient.JobStatusRunning}, dbclient.JobStatusPaused)
}

// Resume returns a paused job to running.
func (m *Manager) Resume(ctx context.Context, id int64) error {
	return m.transition(ctx, id, []string{dbclient.JobStatusPaused}, dbclient.JobStatusRunning)
}

// Cancel terminally cancels a running or paused job. The sweeper later
// synthesizes a fresh replacement row.
func (m *Manager) Cancel(ctx context.Context, id int64) error {
	return m.transition(ctx, id,
		[]string{dbclient.JobStatusRunning, dbclient.JobStatusPaused}, dbclient.JobStatusCanceled)
}

func (m *Manager) transition(ctx context.Context, id int64, from []string, to string) error {
	ok, err := m.db.TransitionJob(ctx, id, from, to)
	if err != nil {
		return err
	}
	if !ok {
		return hiveerrors.NewBadState(fmt.Sprintf("job %d cannot move to %s from its current status", id, to))
	}
	return nil
}

// Complete finishes a running job and hands it to the channel control loop
// through the completion inbox. Generator jobs must have published their
// artifact first.
func (m *Manager) Complete(ctx context.Context, id int64) error {
	job, err := m.db.GetJob(ctx, id)
	if err != nil {
		return err
	}
	switch job.JobType {
	case dbclient.JobTypeGenerateKraus:
		if utils.ParseNullString(job.KrausOperator) == "" {
			return hiveerrors.NewBadRequest("the kraus operator file has not been uploaded")
		}
	case dbclient.JobTypeGenerateVector:
		if utils.ParseNullString(job.Vector) == "" {
			return hiveerrors.NewBadRequest("the vector file has not been uploaded")
		}
	}

	done, err := m.db.CompleteJob(ctx, id)
	if err != nil {
		return err
	}
	if !done {
		return hiveerrors.NewBadState(fmt.Sprintf("job %d is not running", id))
	}
	if err = m.store.RPush(ctx, inboxKey, strconv.FormatInt(id, 10)); err != nil {
		klog.ErrorS(err, "completed job could not be queued for channel processing", "job", id)
		return err
	}
	metrics.JobsCompleted.WithLabelValues(job.JobType).Inc()
	klog.InfoS("completed job", "job", id, "type", job.JobType)
	return nil
}

// UpdateIterations records worker-reported progress.
func (m *Manager) UpdateIterations(ctx context.Context, id int64, iterations int) error {
	return m.db.SetJobIterations(ctx, id, iterations)
}

// UpdateEntropy records the worker's current objective value.
func (m *Manager) UpdateEntropy(ctx context.Context, id int64, entropy float64) error {
	return m.db.SetJobEntropy(ctx, id, entropy)
}

// Restart forces a job back to pending and re-enqueues it.
func (m *Manager) Restart(ctx context.Context, id int64) error {
	ok, err := m.db.RestartJob(ctx, id, nil, nil)
	if err != nil {
		return err
	}
	if !ok {
		return hiveerrors.NewNotFound(hiveerrors.JobKind, fmt.Sprintf("%d", id))
	}
	return m.enqueue(ctx, id)
}

// Withdraw cancels a job that never left pending and removes its dispatch
// entry. The self link in replaced_by keeps the row out of the cancellation
// replay.
func (m *Manager) Withdraw(ctx context.Context, id int64) error {
	ok, err := m.db.TransitionJob(ctx, id, []string{dbclient.JobStatusPending}, dbclient.JobStatusCanceled)
	if err != nil {
		return err
	}
	if !ok {
		return hiveerrors.NewBadState(fmt.Sprintf("job %d is no longer pending", id))
	}
	if _, err = m.db.SetJobReplaced(ctx, id, id); err != nil {
		return err
	}
	if _, err = m.store.LRem(ctx, queueKey, 0, strconv.FormatInt(id, 10)); err != nil {
		klog.ErrorS(err, "withdrawn job entry left in queue, sync will repair", "job", id)
	}
	return nil
}

// PopCompleted removes and returns the oldest entry of the completion
// inbox. Returns ephemeral.ErrNotFound when the inbox is empty. Entries are
// consumed exactly here, so a failed consumer does not see them again.
func (m *Manager) PopCompleted(ctx context.Context) (int64, error) {
	entry, err := m.store.LPop(ctx, inboxKey)
	if err != nil {
		return 0, err
	}
	id, convErr := strconv.ParseInt(entry, 10, 64)
	if convErr != nil {
		klog.ErrorS(convErr, "dropping malformed completion inbox entry", "entry", entry)
		return 0, ephemeral.ErrNotFound
	}
	return id, nil
}

/// Sync reconciles the dispatch queue against the store: every pending row
// must appear exactly once, every other entry goes. Safe to run while
// dispatch is active because dispatch re-checks status under the lease.
func (m *Manager) Sync(ctx context.Context) error {
	pending, err := m.db.SelectPendingJobIds(ctx)
	if err != nil {
		return err
	}
	pendingSet := make(map[int64]struct{}, len(pending))
	for _, id := range pending {
		pendingSet[id] = struct{}{}
	}

	entries, err := m.store.LRange(ctx, queueKey, 0, -1)
	if err != nil {
		return err
	}
	occurrences := make(map[string]int, len(entries))
	for _, entry := range entries {
		occurrences[entry]++
	}

	queued := make(map[int64]struct{}, len(occurrences))
	for entry, count := range occurrences {
		id, convErr := strconv.ParseInt(entry, 10, 64)
		if convErr != nil {
			if _, err = m.store.LRem(ctx, queueKey, 0, entry); err != nil {
				return err
			}
			continue
		}
		if _, ok := pendingSet[id]; !ok {
			if _, err = m.store.LRem(ctx, queueKey, 0, entry); err != nil {
				return err
			}
			continue
		}
		if count > 1 {
			if _, err = m.store.LRem(ctx, queueKey, int64(count-1), entry); err != nil {
				return err
			}
		}
		queued[id] = struct{}{}
	}

	for _, id := range pending {
		if _, ok := queued[id]; ok {
			continue
		}
		if err = m.enqueue(ctx, id); err != nil {
			return err
		}
	}

	if depth, err := m.store.LLen(ctx, queueKey); err == nil {
		metrics.QueueDepth.Set(float64(depth))
	}
	return nil
}

func (m *Manager) enqueue(ctx context.Context, id int64) error {
	return m.store.RPush(ctx, queueKey, strconv.FormatInt(id, 10))
}
