/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package jobmanager

import (
	"context"
	"fmt"
	"strings"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	"github.com/Aschie4589/QuantumHiveServer/pkg/config"
	dbclient "github.com/Aschie4589/QuantumHiveServer/pkg/database/client"
	"github.com/Aschie4589/QuantumHiveServer/pkg/database/utils"
	"github.com/Aschie4589/QuantumHiveServer/pkg/metrics"
	"github.com/Aschie4589/QuantumHiveServer/pkg/notification/model"
)

const (
	causePingExpired = "ping_expired"
	causeRunningTTL  = "running_ttl"
	causePausedTTL   = "paused_ttl"
)

type sweepReport struct {
	restarted []string
	replayed  []string
}

func (r *sweepReport) empty() bool {
	return len(r.restarted) == 0 && len(r.replayed) == 0
}

// Sweep reclaims work that workers abandoned: running jobs whose lease went
// silent past the ping TTL, running and paused jobs that outlived their
// absolute TTLs, and canceled jobs not yet replayed. Every restart is
// rechecked by the conditional store update, so a sweep racing a live worker
// loses cleanly.
func (m *Manager) Sweep(ctx context.Context) error {
	now := m.now()
	pingTTL := time.Duration(config.GetJobPingTTLSecond()) * time.Second
	runningTTL := time.Duration(config.GetJobRunningTTLSecond()) * time.Second
	pausedTTL := time.Duration(config.GetJobPausedTTLSecond()) * time.Second

	report := &sweepReport{}
	if err := m.sweepRunning(ctx, now, pingTTL, runningTTL, report); err != nil {
		return err
	}
	if err := m.sweepPaused(ctx, now, pausedTTL, report); err != nil {
		return err
	}
	if err := m.replayCanceled(ctx, report); err != nil {
		return err
	}
	if !report.empty() {
		m.notifySweep(ctx, report)
	}
	return nil
}

func (m *Manager) sweepRunning(ctx context.Context, now time.Time, pingTTL, runningTTL time.Duration, report *sweepReport) error {
	jobs, err := m.db.SelectJobs(ctx, sqrl.Eq{"status": dbclient.JobStatusRunning}, nil, 0, 0)
	if err != nil {
		return err
	}
	staleBefore := now.Add(-pingTTL)
	for _, job := range jobs {
		switch {
		case job.LastUpdate.Valid && job.LastUpdate.Time.Before(staleBefore):
			m.restartSwept(ctx, job, []string{dbclient.JobStatusRunning}, &staleBefore, causePingExpired, report)
		case job.TimeStarted.Valid && now.Sub(job.TimeStarted.Time) > runningTTL:
			m.restartSwept(ctx, job, []string{dbclient.JobStatusRunning}, nil, causeRunningTTL, report)
		}
	}
	return nil
}

func (m *Manager) sweepPaused(ctx context.Context, now time.Time, pausedTTL time.Duration, report *sweepReport) error {
	jobs, err := m.db.SelectJobs(ctx, sqrl.Eq{"status": dbclient.JobStatusPaused}, nil, 0, 0)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if job.TimeStarted.Valid && now.Sub(job.TimeStarted.Time) > pausedTTL {
			m.restartSwept(ctx, job, []string{dbclient.JobStatusPaused}, nil, causePausedTTL, report)
		}
	}
	return nil
}

func (m *Manager) restartSwept(ctx context.Context, job *dbclient.Job, from []string, staleBefore *time.Time, cause string, report *sweepReport) {
	ok, err := m.db.RestartJob(ctx, job.Id, from, staleBefore)
	if err != nil {
		klog.ErrorS(err, "failed to restart job", "job", job.Id, "cause", cause)
		return
	}
	if !ok {
		// The row moved on since the select; nothing to reclaim.
		return
	}
	if err = m.enqueue(ctx, job.Id); err != nil {
		klog.ErrorS(err, "restarted job could not be enqueued, sync will repair", "job", job.Id)
	}
	metrics.JobsRestarted.WithLabelValues(cause).Inc()
	klog.InfoS("restarted job", "job", job.Id, "type", job.JobType,
		"cause", cause, "worker", utils.ParseNullString(job.WorkerId))
	report.restarted = append(report.restarted, fmt.Sprintf("job %d (%s): %s", job.Id, job.JobType, cause))
}

// replayCanceled synthesizes a fresh pending job for every canceled row that
// has no replacement yet. The replaced_by link is written at most once, so a
// canceled job is replayed exactly once even across concurrent sweeps.
func (m *Manager) replayCanceled(ctx context.Context, report *sweepReport) error {
	query := sqrl.And{
		sqrl.Eq{"status": dbclient.JobStatusCanceled},
		sqrl.Eq{"replaced_by": nil},
	}
	jobs, err := m.db.SelectJobs(ctx, query, nil, 0, 0)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if err := m.replayJob(ctx, job, report); err != nil {
			klog.ErrorS(err, "failed to replay canceled job", "job", job.Id)
		}
	}
	return nil
}

func (m *Manager) replayJob(ctx context.Context, job *dbclient.Job, report *sweepReport) error {
	now := m.now()
	replacement := &dbclient.Job{
		JobType:       job.JobType,
		Status:        dbclient.JobStatusPending,
		InputData:     job.InputData,
		KrausOperator: job.KrausOperator,
		Vector:        job.Vector,
		Entropy:       dbclient.MoeUnset,
		ChannelId:     job.ChannelId,
		Priority:      job.Priority,
		TimeCreated:   utils.NullTime(now),
		LastUpdate:    utils.NullTime(now),
	}
	newId, err := m.db.InsertJob(ctx, replacement)
	if err != nil {
		return err
	}
	linked, err := m.db.SetJobReplaced(ctx, job.Id, newId)
	if err != nil {
		return err
	}
	if !linked {
		// A concurrent sweep linked a replacement first.
		return m.Withdraw(ctx, newId)
	}
	if err = m.enqueue(ctx, newId); err != nil {
		klog.ErrorS(err, "replacement job could not be enqueued, sync will repair", "job", newId)
	}
	metrics.JobsReplayed.Inc()
	klog.InfoS("replayed canceled job", "job", job.Id, "replacement", newId)
	report.replayed = append(report.replayed, fmt.Sprintf("job %d replaced by job %d", job.Id, newId))
	return nil
}

func (m *Manager) notifySweep(ctx context.Context, report *sweepReport) {
	if m.notifier == nil {
		return
	}
	receivers := config.GetSmtpReceivers()
	if len(receivers) == 0 {
		return
	}
	var body strings.Builder
	if len(report.restarted) > 0 {
		fmt.Fprintf(&body, "Restarted %d job(s):\n", len(report.restarted))
		for _, line := range report.restarted {
			body.WriteString("  " + line + "\n")
		}
	}
	if len(report.replayed) > 0 {
		fmt.Fprintf(&body, "Replayed %d canceled job(s):\n", len(report.replayed))
		for _, line := range report.replayed {
			body.WriteString("  " + line + "\n")
		}
	}
	msg := &model.Message{
		Email: &model.EmailMessage{
			To:      receivers,
			Title:   "QuantumHive job sweep report",
			Content: body.String(),
		},
	}
	if err := m.notifier.Send(ctx, msg); err != nil {
		klog.ErrorS(err, "failed to send sweep notification")
	}
}
