/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hive_jobs_created_total",
		Help: "Jobs created, by job type",
	}, []string{"job_type"})
	JobsLeased = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hive_jobs_leased_total",
		Help: "Jobs leased to workers",
	})
	JobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hive_jobs_completed_total",
		Help: "Jobs completed, by job type",
	}, []string{"job_type"})
	JobsRestarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hive_jobs_restarted_total",
		Help: "Jobs returned to pending, by cause",
	}, []string{"cause"})
	JobsReplayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hive_jobs_replayed_total",
		Help: "Fresh jobs synthesized from canceled rows",
	})
	ChunksReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hive_upload_chunks_received_total",
		Help: "Upload chunks accepted",
	})
	FilesAssembled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hive_files_assembled_total",
		Help: "Chunked uploads assembled into files",
	})
	TokensMinted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hive_transfer_tokens_minted_total",
		Help: "Transfer tokens minted, by kind",
	}, []string{"kind"})
	ChannelsByStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hive_channels",
		Help: "Channels by status",
	}, []string{"status"})
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hive_dispatch_queue_depth",
		Help: "Length of the dispatch queue at the last control tick",
	})
)

func init() {
	prometheus.MustRegister(JobsCreated)
	prometheus.MustRegister(JobsLeased)
	prometheus.MustRegister(JobsCompleted)
	prometheus.MustRegister(JobsRestarted)
	prometheus.MustRegister(JobsReplayed)
	prometheus.MustRegister(ChunksReceived)
	prometheus.MustRegister(FilesAssembled)
	prometheus.MustRegister(TokensMinted)
	prometheus.MustRegister(ChannelsByStatus)
	prometheus.MustRegister(QueueDepth)
}
