/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package server wires the coordinator together: stores, managers, the
// control loop, the sweep schedule and the HTTP surface, plus the graceful
// teardown of all of them.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"k8s.io/klog/v2"

	"github.com/Aschie4589/QuantumHiveServer/pkg/auth"
	"github.com/Aschie4589/QuantumHiveServer/pkg/channelmanager"
	"github.com/Aschie4589/QuantumHiveServer/pkg/config"
	dbclient "github.com/Aschie4589/QuantumHiveServer/pkg/database/client"
	"github.com/Aschie4589/QuantumHiveServer/pkg/ephemeral"
	"github.com/Aschie4589/QuantumHiveServer/pkg/handlers"
	"github.com/Aschie4589/QuantumHiveServer/pkg/jobmanager"
	hiveklog "github.com/Aschie4589/QuantumHiveServer/pkg/klog"
	notifychannel "github.com/Aschie4589/QuantumHiveServer/pkg/notification/channel"
	"github.com/Aschie4589/QuantumHiveServer/pkg/notification/model"
	"github.com/Aschie4589/QuantumHiveServer/pkg/options"
	"github.com/Aschie4589/QuantumHiveServer/pkg/storage/s3"
	"github.com/Aschie4589/QuantumHiveServer/pkg/token"
	"github.com/Aschie4589/QuantumHiveServer/pkg/uploader"
	"github.com/Aschie4589/QuantumHiveServer/pkg/utils/backoff"
)

const (
	connectMaxElapsed  = time.Minute
	connectMaxInterval = 10 * time.Second
)

type Server struct {
	opts       *options.Options
	db         dbclient.Interface
	dbClient   *dbclient.Client
	store      ephemeral.Store
	jobs       *jobmanager.Manager
	channels   *channelmanager.Manager
	cron       *cron.Cron
	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	isInited   bool
}

// NewServer parses flags, loads configuration and connects every dependency.
func NewServer() (*Server, error) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	s := &Server{opts: &options.Options{}, ctx: ctx, cancel: cancel}
	if err := s.init(); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *Server) init() error {
	gin.SetMode(gin.ReleaseMode)
	var err error
	if err = s.opts.InitFlags(); err != nil {
		klog.ErrorS(err, "failed to parse flags")
		return err
	}
	if err = hiveklog.Init(s.opts.LogfilePath, s.opts.LogFileSize); err != nil {
		klog.ErrorS(err, "failed to init logs")
		return err
	}
	if err = config.LoadConfig(s.opts.Config); err != nil {
		klog.ErrorS(err, "failed to load config", "path", s.opts.Config)
		return err
	}

	// Both stores come up with retries so the coordinator survives a slow
	// database or redis at boot.
	if err = backoff.Retry(func() error {
		s.dbClient, err = dbclient.NewClient()
		return err
	}, connectMaxElapsed, connectMaxInterval); err != nil {
		klog.ErrorS(err, "failed to connect the database")
		return err
	}
	s.db = s.dbClient
	if err = backoff.Retry(func() error {
		s.store, err = ephemeral.NewRedisStore()
		return err
	}, connectMaxElapsed, connectMaxInterval); err != nil {
		klog.ErrorS(err, "failed to connect the ephemeral store")
		return err
	}

	notifiers, err := notifychannel.InitChannels(s.ctx, notifychannel.FromConfig())
	if err != nil {
		klog.ErrorS(err, "failed to init notification channels")
		return err
	}
	notifier := notifiers[model.ChannelEmail]

	authn, err := auth.NewAuthenticator(s.store)
	if err != nil {
		klog.ErrorS(err, "failed to init the authenticator")
		return err
	}
	tokens := token.NewManager(s.store)

	var archiver s3.Interface
	if config.IsS3Enable() {
		if archiver = s3.NewClient(s.ctx); archiver != nil {
			if err = archiver.EnsureBucket(s.ctx); err != nil {
				klog.ErrorS(err, "failed to ensure the archive bucket, archival disabled")
				archiver = nil
			}
		}
	}

	s.jobs = jobmanager.NewManager(s.db, s.store, notifier)
	if err = s.jobs.Sync(s.ctx); err != nil {
		klog.ErrorS(err, "failed to sync the dispatch queue at startup")
		return err
	}
	s.channels = channelmanager.NewManager(s.db, s.jobs, notifier)

	assembler, err := uploader.NewAssembler(s.db, tokens, archiver)
	if err != nil {
		klog.ErrorS(err, "failed to init the upload assembler")
		return err
	}

	s.cron = cron.New()
	if _, err = s.cron.AddFunc(config.GetSweepSchedule(), s.sweep); err != nil {
		klog.ErrorS(err, "failed to schedule the job sweeper", "schedule", config.GetSweepSchedule())
		return err
	}

	handler := handlers.NewHandler(s.db, authn, tokens, s.jobs, s.channels, assembler)
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.GetServerAddress(), config.GetServerPort()),
		Handler: s.InitRoutes(handler),
	}
	s.isInited = true
	return nil
}

// sweep is one scheduled maintenance pass: reclaim abandoned work, then
// repair the dispatch queue.
func (s *Server) sweep() {
	if err := s.jobs.Sweep(s.ctx); err != nil {
		klog.ErrorS(err, "job sweep failed")
	}
	if err := s.jobs.Sync(s.ctx); err != nil {
		klog.ErrorS(err, "dispatch queue sync failed")
	}
}

// Run starts the control loop, the sweeper and the HTTP listener, then
// blocks until a termination signal arrives.
func (s *Server) Run() error {
	if !s.isInited {
		return fmt.Errorf("the server is not initialized")
	}
	gin.EnableJsonDecoderDisallowUnknownFields()

	s.channels.Start()
	s.cron.Start()
	go func() {
		klog.InfoS("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			klog.ErrorS(err, "http server failed")
			s.cancel()
		}
	}()

	<-s.ctx.Done()
	s.Stop()
	return nil
}

// Stop drains the HTTP server, then shuts down the background work and both
// stores.
func (s *Server) Stop() {
	klog.InfoS("shutting down")
	drain := time.Duration(config.GetServerDrainTimeoutSecond()) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		klog.ErrorS(err, "failed to drain the http server")
	}

	cronCtx := s.cron.Stop()
	<-cronCtx.Done()
	s.channels.Stop()

	if err := s.store.Close(); err != nil {
		klog.ErrorS(err, "failed to close the ephemeral store")
	}
	s.dbClient.Close()
	klog.InfoS("shutdown complete")
	klog.Flush()
}
