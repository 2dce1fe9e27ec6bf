/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package config

import (
	"slices"
	"testing"

	"gotest.tools/assert"
)

func load() error {
	path := "./test.yaml"
	if err := LoadConfig(path); err != nil {
		return err
	}
	return nil
}

func TestConfig(t *testing.T) {
	err := load()
	assert.NilError(t, err)

	assert.Equal(t, GetServerPort(), 8000)
	assert.Equal(t, GetServerAddress(), "127.0.0.1")
	assert.Equal(t, GetServerDrainTimeoutSecond(), 5)

	assert.Equal(t, GetDBHost(), "localhost")
	assert.Equal(t, GetDBPort(), 5432)
	assert.Equal(t, GetDBName(), "quantumhive")
	assert.Equal(t, GetDBUser(), "hive")
	assert.Equal(t, GetDBPassword(), "hivepass")
	assert.Equal(t, GetDBRequestTimeoutSecond(), 20)
	assert.Equal(t, GetDBMaxOpenConns(), 100)

	assert.Equal(t, GetRedisAddress(), "localhost:6379")
	assert.Equal(t, GetRedisDB(), 1)

	assert.Equal(t, GetJwtSecret(), "test-signing-key")
	assert.Equal(t, GetAccessTokenExpireMinute(), 60)
	assert.Equal(t, GetRefreshTokenExpireHour(), 720)

	assert.Equal(t, GetStorageSavePath(), "/tmp/quantumhive/files")
	assert.Equal(t, GetStorageTmpPath(), "/tmp/quantumhive/tmp")

	assert.Equal(t, GetSchedulerIntervalSecond(), 5)
	assert.Equal(t, GetChannelMaxJobs(), 5)
	assert.Equal(t, GetSweepSchedule(), "@every 1m")
	assert.Equal(t, GetJobPingTTLSecond(), 300)
	assert.Equal(t, GetJobPausedTTLSecond(), 86400)
	assert.Equal(t, GetJobRunningTTLSecond(), 2592000)

	assert.Equal(t, GetUploadTokenTTLSecond(), 300)
	assert.Equal(t, GetDownloadTokenTTLSecond(), 300)

	assert.Equal(t, IsSmtpEnable(), false)
	assert.Equal(t, slices.Equal(GetSmtpReceivers(), []string{"ops@example.com", "qa@example.com"}), true)

	assert.Equal(t, IsS3Enable(), false)
	assert.Equal(t, IsMetricsEnable(), true)
}
