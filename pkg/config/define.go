/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package config

const (
	// server
	serverPrefix             = "server."
	serverAddress            = serverPrefix + "address"
	serverPort               = serverPrefix + "port"
	serverDrainTimeoutSecond = serverPrefix + "drain_timeout_second"

	// database
	dbPrefix               = "database."
	dbSecretPath           = dbPrefix + "secret_path"
	dbHost                 = dbPrefix + "host"
	dbPort                 = dbPrefix + "port"
	dbName                 = dbPrefix + "dbname"
	dbUser                 = dbPrefix + "user"
	dbPassword             = "password"
	dbSslMode              = dbPrefix + "ssl_mode"
	dbMaxOpenConns         = dbPrefix + "max_open_conns"
	dbMaxIdleConns         = dbPrefix + "max_idle_conns"
	dbMaxLifetime          = dbPrefix + "max_lifetime_second"
	dbMaxIdleTimeSecond    = dbPrefix + "max_idle_time_second"
	dbConnectTimeoutSecond = dbPrefix + "connect_timeout_second"
	dbRequestTimeoutSecond = dbPrefix + "request_timeout_second"
	dbAutoMigrate          = dbPrefix + "auto_migrate"

	// redis
	redisPrefix     = "redis."
	redisAddress    = redisPrefix + "address"
	redisDB         = redisPrefix + "db"
	redisSecretPath = redisPrefix + "secret_path"
	redisPassword   = "password"

	// auth
	authPrefix              = "auth."
	authSecretPath          = authPrefix + "secret_path"
	authJwtSecret           = authPrefix + "jwt_secret"
	authJwtSecretItem       = "jwt_secret"
	accessTokenExpireMinute = authPrefix + "access_token_expire_minute"
	refreshTokenExpireHour  = authPrefix + "refresh_token_expire_hour"

	// storage
	storagePrefix   = "storage."
	storageSavePath = storagePrefix + "save_path"
	storageTmpPath  = storagePrefix + "tmp_path"

	// file transfer
	transferPrefix           = "transfer."
	uploadTokenTTLSecond     = transferPrefix + "upload_token_ttl_second"
	downloadTokenTTLSecond   = transferPrefix + "download_token_ttl_second"
	transferMaxChunkMegabyte = transferPrefix + "max_chunk_megabyte"

	// scheduler
	schedulerPrefix               = "scheduler."
	schedulerIntervalSecond       = schedulerPrefix + "interval_second"
	schedulerChannelMaxJobs       = schedulerPrefix + "channel_max_jobs"
	schedulerMinimizationAttempts = schedulerPrefix + "minimization_attempts"
	schedulerSweepSchedule        = schedulerPrefix + "sweep_schedule"
	jobPingTTLSecond              = schedulerPrefix + "ping_ttl_second"
	jobPausedTTLSecond            = schedulerPrefix + "paused_ttl_second"
	jobRunningTTLSecond           = schedulerPrefix + "running_ttl_second"

	// smtp
	smtpPrefix     = "smtp."
	smtpEnable     = smtpPrefix + "enable"
	smtpHost       = smtpPrefix + "host"
	smtpPort       = smtpPrefix + "port"
	smtpUser       = smtpPrefix + "user"
	smtpPassword   = "password"
	smtpSecretPath = smtpPrefix + "secret_path"
	smtpFrom       = smtpPrefix + "from"
	smtpReceivers  = smtpPrefix + "receivers"
	smtpUseTLS     = smtpPrefix + "use_tls"

	// s3 archival
	s3Prefix        = "s3."
	s3Enable        = s3Prefix + "enable"
	s3AccessKey     = "access_key"
	s3SecretKey     = "secret_key"
	s3SecretPath    = s3Prefix + "secret_path"
	s3Bucket        = s3Prefix + "bucket"
	s3Endpoint      = s3Prefix + "endpoint"
	s3Region        = s3Prefix + "region"
	s3KeyPrefix     = s3Prefix + "key_prefix"
	s3TimeoutSecond = s3Prefix + "timeout_second"

	// metrics
	metricsPrefix = "metrics."
	metricsEnable = metricsPrefix + "enable"
)
