/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
	"k8s.io/klog/v2"

	"github.com/Aschie4589/QuantumHiveServer/pkg/config"
	"github.com/Aschie4589/QuantumHiveServer/pkg/database/utils"
	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
)

// Client manages both sqlx and gorm handles over the same database. The sqlx
// handle serves the hot job/channel paths, the gorm handle serves user and
// file CRUD plus schema migration.
type Client struct {
	db              *sqlx.DB
	gorm            *gorm.DB
	*utils.DBConfig
}

// NewClient connects both handles and pings the database. Callers own the
// returned client; there is no package-level instance.
func NewClient() (*Client, error) {
	cfg := &utils.DBConfig{
		DBName:         config.GetDBName(),
		Username:       config.GetDBUser(),
		Password:       config.GetDBPassword(),
		Host:           config.GetDBHost(),
		Port:           config.GetDBPort(),
		SSLMode:        config.GetDBSslMode(),
		MaxOpenConns:   config.GetDBMaxOpenConns(),
		MaxIdleConns:   config.GetDBMaxIdleConns(),
		MaxLifetime:    time.Duration(config.GetDBMaxLifetimeSecond()) * time.Second,
		MaxIdleTime:    time.Duration(config.GetDBMaxIdleTimeSecond()) * time.Second,
		ConnectTimeout: config.GetDBConnectTimeoutSecond(),
		RequestTimeout: time.Duration(config.GetDBRequestTimeoutSecond()) * time.Second,
	}
	if err := checkParams(cfg); err != nil {
		return nil, err
	}
	db, err := utils.Connect(cfg, utils.PgDriver)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %v", err)
	}
	gormDb, err := utils.ConnectGorm(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{db: db, gorm: gormDb, DBConfig: cfg}
	if config.IsDBAutoMigrate() {
		if err = c.Migrate(); err != nil {
			return nil, err
		}
	}
	klog.Infof("init db-client successfully! conn-timeout: %d(s), request-timeout: %s",
		cfg.ConnectTimeout, cfg.RequestTimeout)
	return c, nil
}

// Migrate creates or updates the users, channels, jobs and files tables.
func (c *Client) Migrate() error {
	return c.gorm.AutoMigrate(&User{}, &Channel{}, &Job{}, &File{})
}

// Close performs the Close operation.
func (c *Client) Close() {
	err := c.db.Close()
	if err != nil {
		klog.ErrorS(err, "failed to close db connection")
	}
}

// Ping verifies the database is reachable. Used by the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	if c.db == nil {
		return hiveerrors.NewInternalError("The client of db has not been initialized")
	}
	return c.db.PingContext(ctx)
}

// getDB retrieves DB for internal use.
func (c *Client) getDB() (*sqlx.DB, error) {
	if c.db == nil {
		return nil, hiveerrors.NewInternalError("The client of db has not been initialized")
	}
	return c.db.Unsafe(), nil
}

// GetGormDB retrieves the gorm handle for internal use.
func (c *Client) GetGormDB() (*gorm.DB, error) {
	if c.gorm == nil {
		return nil, hiveerrors.NewInternalError("The gorm client has not been initialized")
	}
	return c.gorm, nil
}

// requestCtx derives a context bounded by the configured request timeout.
func (c *Client) requestCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// checkParams checks Params and returns the result.
func checkParams(cfg *utils.DBConfig) error {
	var errs []error
	if cfg.DBName == "" {
		errs = append(errs, fmt.Errorf("dbname not found"))
	}
	if cfg.Username == "" {
		errs = append(errs, fmt.Errorf("username not found"))
	}
	if cfg.Password == "" {
		errs = append(errs, fmt.Errorf("password not found"))
	}
	if cfg.Host == "" {
		errs = append(errs, fmt.Errorf("host not found"))
	}
	if cfg.SSLMode == "" {
		errs = append(errs, fmt.Errorf("ssl_mode not found"))
	}
	if cfg.Port == 0 {
		errs = append(errs, fmt.Errorf("port not found"))
	}
	return errors.Join(errs...)
}
