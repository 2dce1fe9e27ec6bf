/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package channelmanager runs the control loop that turns channels into job
// graphs. Each tick advances channel states and spawns work, drains the
// completion inbox, then folds fresh entropy samples into every active
// channel's best result. Channel status only moves forward: created,
// generating, minimizing, completed.
package channelmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	"github.com/Aschie4589/QuantumHiveServer/pkg/config"
	dbclient "github.com/Aschie4589/QuantumHiveServer/pkg/database/client"
	"github.com/Aschie4589/QuantumHiveServer/pkg/database/utils"
	"github.com/Aschie4589/QuantumHiveServer/pkg/ephemeral"
	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
	"github.com/Aschie4589/QuantumHiveServer/pkg/jobmanager"
	"github.com/Aschie4589/QuantumHiveServer/pkg/metrics"
	"github.com/Aschie4589/QuantumHiveServer/pkg/notification/channel"
	"github.com/Aschie4589/QuantumHiveServer/pkg/notification/model"
	channelutil "github.com/Aschie4589/QuantumHiveServer/pkg/utils/channel"
)

type Manager struct {
	db       dbclient.Interface
	jobs     *jobmanager.Manager
	notifier channel.Channel
	tomb     *channelutil.Tomb
	interval time.Duration
	maxJobs  int

	now func() time.Time
}

// NewManager wires the channel manager. The notifier may be nil when no
// alert channel is configured.
func NewManager(db dbclient.Interface, jobs *jobmanager.Manager, notifier channel.Channel) *Manager {
	return &Manager{
		db:       db,
		jobs:     jobs,
		notifier: notifier,
		tomb:     channelutil.NewTomb(),
		interval: time.Duration(config.GetSchedulerIntervalSecond()) * time.Second,
		maxJobs:  config.GetChannelMaxJobs(),
		now:      time.Now,
	}
}

// CreateChannel registers a channel for entropy minimization. The control
// loop picks it up on the next tick.
func (m *Manager) CreateChannel(ctx context.Context, inputDim, outputDim, numKraus int, method string) (*dbclient.Channel, error) {
	if inputDim < 1 || outputDim < 1 {
		return nil, hiveerrors.NewBadRequest("channel dimensions must be positive")
	}
	if numKraus < 1 {
		return nil, hiveerrors.NewBadRequest("a channel needs at least one kraus operator")
	}
	now := m.now()
	ch := &dbclient.Channel{
		BestMoe:              dbclient.MoeUnset,
		MinimizationAttempts: config.GetMinimizationAttempts(),
		InputDim:             inputDim,
		OutputDim:            outputDim,
		NumKraus:             numKraus,
		Status:               dbclient.ChannelStatusCreated,
		CreationTime:         utils.NullTime(now),
		UpdateTime:           utils.NullTime(now),
	}
	if method != "" {
		ch.Method = utils.NullString(method)
	}
	id, err := m.db.InsertChannel(ctx, ch)
	if err != nil {
		return nil, err
	}
	ch.Id = id
	klog.InfoS("created channel", "channel", id,
		"inputDim", inputDim, "outputDim", outputDim, "numKraus", numKraus)
	return ch, nil
}

// ListChannels returns every channel, oldest first.
func (m *Manager) ListChannels(ctx context.Context) ([]*dbclient.Channel, error) {
	return m.db.SelectChannels(ctx, nil, []string{"id " + dbclient.ASC}, 0, 0)
}

// SetAttempts adjusts a channel's minimization budget. The store rejects a
// budget below what has already been spawned.
func (m *Manager) SetAttempts(ctx context.Context, id int64, attempts int) error {
	if attempts < 1 {
		return hiveerrors.NewBadRequest("minimization attempts must be positive")
	}
	return m.db.SetChannelAttempts(ctx, id, attempts)
}

// Start launches the control loop.
func (m *Manager) Start() {
	go func() {
		defer m.tomb.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		klog.InfoS("channel control loop started", "interval", m.interval)
		for {
			select {
			case <-m.tomb.Stopping():
				return
			case <-ticker.C:
				m.Tick(context.Background())
			}
		}
	}()
}

// Stop terminates the control loop and waits for the tick in flight.
func (m *Manager) Stop() {
	m.tomb.Stop()
	klog.InfoS("channel control loop stopped")
}

// Tick runs one control pass. Each phase logs and moves on when a single
// channel or job misbehaves, so one bad row cannot stall the farm.
func (m *Manager) Tick(ctx context.Context) {
	if err := m.scheduleJobs(ctx); err != nil {
		klog.ErrorS(err, "failed to schedule channel jobs")
	}
	if err := m.drainCompleted(ctx); err != nil {
		klog.ErrorS(err, "failed to drain completed jobs")
	}
	if err := m.refreshBest(ctx); err != nil {
		klog.ErrorS(err, "failed to refresh best results")
	}
}

func (m *Manager) scheduleJobs(ctx context.Context) error {
	channels, err := m.db.SelectChannels(ctx, nil, nil, 0, 0)
	if err != nil {
		return err
	}
	counts := make(map[string]int)
	for _, ch := range channels {
		counts[ch.Status]++
		switch ch.Status {
		case dbclient.ChannelStatusCreated:
			m.startGeneration(ctx, ch)
		case dbclient.ChannelStatusMinimizing:
			m.spawnMinimizationRuns(ctx, ch)
		}
	}
	for _, status := range []string{
		dbclient.ChannelStatusCreated, dbclient.ChannelStatusGenerating,
		dbclient.ChannelStatusMinimizing, dbclient.ChannelStatusPaused,
		dbclient.ChannelStatusCompleted,
	} {
		metrics.ChannelsByStatus.WithLabelValues(status).Set(float64(counts[status]))
	}
	return nil
}

// startGeneration spawns the kraus generation job and moves the channel to
// generating. A channel that fails either step stays in created and is
// retried next tick.
func (m *Manager) startGeneration(ctx context.Context, ch *dbclient.Channel) {
	job, err := m.jobs.Create(ctx, jobmanager.CreateParams{
		JobType: dbclient.JobTypeGenerateKraus,
		InputData: map[string]interface{}{
			"input_dimension":  ch.InputDim,
			"output_dimension": ch.OutputDim,
			"number_kraus":     ch.NumKraus,
			"channel_id":       ch.Id,
		},
		ChannelId: ch.Id,
	})
	if err != nil {
		klog.ErrorS(err, "failed to create kraus generation job", "channel", ch.Id)
		return
	}
	moved, err := m.db.UpdateChannelStatus(ctx, ch.Id,
		[]string{dbclient.ChannelStatusCreated}, dbclient.ChannelStatusGenerating)
	if err != nil || !moved {
		klog.ErrorS(err, "failed to move channel to generating, withdrawing job",
			"channel", ch.Id, "job", job.Id)
		if werr := m.jobs.Withdraw(ctx, job.Id); werr != nil {
			klog.ErrorS(werr, "failed to withdraw kraus generation job", "job", job.Id)
		}
		return
	}
	klog.InfoS("channel generating kraus operators", "channel", ch.Id, "job", job.Id)
}

// spawnMinimizationRuns keeps a bounded number of vector generation jobs in
// flight until the attempt budget is fully spawned. Each run is counted as
// it spawns so the budget holds across ticks.
func (m *Manager) spawnMinimizationRuns(ctx context.Context, ch *dbclient.Channel) {
	toSpawn := ch.MinimizationAttempts - ch.RunsSpawned
	if slots := m.maxJobs - (ch.RunsSpawned - ch.RunsCompleted); slots < toSpawn {
		toSpawn = slots
	}
	for i := 0; i < toSpawn; i++ {
		job, err := m.jobs.Create(ctx, jobmanager.CreateParams{
			JobType: dbclient.JobTypeGenerateVector,
			InputData: map[string]interface{}{
				"input_dimension": ch.InputDim,
				"channel_id":      ch.Id,
			},
			ChannelId: ch.Id,
		})
		if err != nil {
			klog.ErrorS(err, "failed to create vector generation job", "channel", ch.Id)
			return
		}
		if err = m.db.IncrementRunsSpawned(ctx, ch.Id); err != nil {
			klog.ErrorS(err, "spawned run not counted against the budget",
				"channel", ch.Id, "job", job.Id)
			return
		}
	}
	if toSpawn > 0 {
		klog.InfoS("spawned minimization runs", "channel", ch.Id, "count", toSpawn)
	}
}

// drainCompleted consumes the completion inbox in arrival order. Entries are
// consumed exactly once; one that fails to process is logged and dropped
// rather than blocking those behind it.
func (m *Manager) drainCompleted(ctx context.Context) error {
	for {
		id, err := m.jobs.PopCompleted(ctx)
		if errors.Is(err, ephemeral.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err = m.processCompleted(ctx, id); err != nil {
			klog.ErrorS(err, "failed to process completed job", "job", id)
		}
	}
}

func (m *Manager) processCompleted(ctx context.Context, id int64) error {
	job, err := m.jobs.Get(ctx, id)
	if err != nil {
		return err
	}
	if !job.ChannelId.Valid {
		klog.V(4).InfoS("completed job is not bound to a channel", "job", id)
		return nil
	}
	channelId := job.ChannelId.Int64
	switch job.JobType {
	case dbclient.JobTypeGenerateKraus:
		return m.finishGeneration(ctx, channelId, job)
	case dbclient.JobTypeGenerateVector:
		return m.startMinimization(ctx, channelId, job)
	case dbclient.JobTypeMinimize:
		return m.finishMinimization(ctx, channelId)
	default:
		return hiveerrors.NewBadRequest(fmt.Sprintf("unknown job type %q", job.JobType))
	}
}

// finishGeneration publishes the generated kraus operator on the channel and
// opens the minimization phase. When the artifact cannot be recorded the
// channel falls back to created so generation is rescheduled.
func (m *Manager) finishGeneration(ctx context.Context, channelId int64, job *dbclient.Job) error {
	krausId := utils.ParseNullString(job.KrausOperator)
	if krausId == "" {
		return hiveerrors.NewBadState(fmt.Sprintf("job %d completed without a kraus operator", job.Id))
	}
	if err := m.db.SetChannelKraus(ctx, channelId, krausId); err != nil {
		klog.ErrorS(err, "failed to record kraus operator, rescheduling generation", "channel", channelId)
		if _, rerr := m.db.UpdateChannelStatus(ctx, channelId,
			[]string{dbclient.ChannelStatusGenerating}, dbclient.ChannelStatusCreated); rerr != nil {
			klog.ErrorS(rerr, "failed to reset channel for regeneration", "channel", channelId)
		}
		return err
	}
	moved, err := m.db.UpdateChannelStatus(ctx, channelId,
		[]string{dbclient.ChannelStatusGenerating}, dbclient.ChannelStatusMinimizing)
	if err != nil {
		return err
	}
	if !moved {
		klog.InfoS("channel was not generating, leaving status untouched", "channel", channelId)
		return nil
	}
	klog.InfoS("channel entered minimization", "channel", channelId, "kraus", krausId)
	return nil
}

// startMinimization pairs a freshly generated vector with the channel's
// kraus operator in a minimize job. The run was already counted when its
// vector job spawned.
func (m *Manager) startMinimization(ctx context.Context, channelId int64, job *dbclient.Job) error {
	vectorId := utils.ParseNullString(job.Vector)
	if vectorId == "" {
		return hiveerrors.NewBadState(fmt.Sprintf("job %d completed without a vector", job.Id))
	}
	ch, err := m.db.GetChannel(ctx, channelId)
	if err != nil {
		return err
	}
	krausId := utils.ParseNullString(ch.KrausId)
	if krausId == "" {
		return hiveerrors.NewBadState(fmt.Sprintf("channel %d has no kraus operator to minimize against", channelId))
	}
	_, err = m.jobs.Create(ctx, jobmanager.CreateParams{
		JobType: dbclient.JobTypeMinimize,
		InputData: map[string]interface{}{
			"input_dimension":  ch.InputDim,
			"output_dimension": ch.OutputDim,
			"number_kraus":     ch.NumKraus,
			"channel_id":       channelId,
		},
		KrausId:   krausId,
		VectorId:  vectorId,
		ChannelId: channelId,
	})
	return err
}

// finishMinimization counts the run and closes the channel once the attempt
// budget is fully consumed.
func (m *Manager) finishMinimization(ctx context.Context, channelId int64) error {
	completed, attempts, err := m.db.IncrementRunsCompleted(ctx, channelId)
	if err != nil {
		return err
	}
	if completed >= attempts {
		moved, err := m.db.UpdateChannelStatus(ctx, channelId,
			[]string{dbclient.ChannelStatusMinimizing}, dbclient.ChannelStatusCompleted)
		if err != nil {
			return err
		}
		if moved {
			klog.InfoS("channel completed minimization", "channel", channelId, "runs", completed)
			m.notifyCompleted(ctx, channelId, completed)
		}
	}
	return nil
}

func (m *Manager) notifyCompleted(ctx context.Context, channelId int64, runs int) {
	if m.notifier == nil {
		return
	}
	receivers := config.GetSmtpReceivers()
	if len(receivers) == 0 {
		return
	}
	ch, err := m.db.GetChannel(ctx, channelId)
	if err != nil {
		klog.ErrorS(err, "failed to load channel for completion notice", "channel", channelId)
		return
	}
	msg := &model.Message{
		Email: &model.EmailMessage{
			To:    receivers,
			Title: fmt.Sprintf("QuantumHive channel %d completed", channelId),
			Content: fmt.Sprintf("Channel %d finished %d minimization runs.\nBest entropy: %g (vector %s)\n",
				channelId, runs, ch.BestMoe, utils.ParseNullString(ch.BestVectorId)),
		},
	}
	if err = m.notifier.Send(ctx, msg); err != nil {
		klog.ErrorS(err, "failed to send channel completion notice", "channel", channelId)
	}
}

// refreshBest folds fresh entropy samples into each active channel's best
// result. The store guard keeps the best value monotone, so rescanning the
// same jobs every tick is harmless.
func (m *Manager) refreshBest(ctx context.Context) error {
	channels, err := m.db.SelectChannels(ctx, sqrl.Eq{"status": []string{
		dbclient.ChannelStatusMinimizing, dbclient.ChannelStatusCompleted,
	}}, nil, 0, 0)
	if err != nil {
		return err
	}
	for _, ch := range channels {
		if err := m.refreshChannelBest(ctx, ch); err != nil {
			klog.ErrorS(err, "failed to refresh best result", "channel", ch.Id)
		}
	}
	return nil
}

func (m *Manager) refreshChannelBest(ctx context.Context, ch *dbclient.Channel) error {
	query := sqrl.And{
		sqrl.Eq{"channel_id": ch.Id},
		sqrl.Eq{"job_type": dbclient.JobTypeMinimize},
		sqrl.Eq{"status": dbclient.JobStatusCompleted},
		sqrl.GtOrEq{"entropy": 0},
	}
	jobs, err := m.db.SelectJobs(ctx, query, nil, 0, 0)
	if err != nil {
		return err
	}
	best := ch.BestMoe
	bestVector := ""
	for _, job := range jobs {
		vectorId := utils.ParseNullString(job.Vector)
		if vectorId == "" {
			continue
		}
		if best < 0 || job.Entropy < best {
			best = job.Entropy
			bestVector = vectorId
		}
	}
	if bestVector == "" {
		return nil
	}
	improved, err := m.db.UpdateBestResult(ctx, ch.Id, best, bestVector)
	if err != nil {
		return err
	}
	if improved {
		klog.InfoS("channel best entropy improved", "channel", ch.Id,
			"entropy", best, "vector", bestVector)
	}
	return nil
}
