/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

func SetValue(key, value string) {
	viper.Set(key, value)
}

func LoadConfig(path string) error {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	return viper.ReadInConfig()
}

func getString(key, defaultValue string) string {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetString(key)
}

func getBool(key string, defaultValue bool) bool {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetBool(key)
}

func getInt(key string, defaultValue int) int {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetInt(key)
}

func getFloat(key string, defaultValue float64) float64 {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetFloat64(key)
}

func getStrings(key string) []string {
	val := viper.GetString(key)
	return removeBlank(strings.Split(val, ","))
}

func removeBlank(slice []string) []string {
	var result []string
	for _, val := range slice {
		if trim := strings.TrimSpace(val); trim != "" {
			result = append(result, trim)
		}
	}
	return result
}

func getFromFile(configPath, item string) string {
	path := getString(configPath, "")
	data, err := os.ReadFile(filepath.Join(path, item))
	if err != nil {
		return ""
	}
	key := string(data)
	return strings.TrimRight(key, "\r\n")
}

func GetServerAddress() string {
	return getString(serverAddress, "")
}

func GetServerPort() int {
	return getInt(serverPort, 8000)
}

func GetServerDrainTimeoutSecond() int {
	return getInt(serverDrainTimeoutSecond, 10)
}

func GetDBHost() string {
	return getString(dbHost, "localhost")
}

func GetDBPort() int {
	return getInt(dbPort, 5432)
}

func GetDBName() string {
	return getString(dbName, "quantumhive")
}

func GetDBUser() string {
	return getString(dbUser, "quantumhive")
}

// GetDBPassword prefers the host-provided secret file and falls back to the
// inline config value for local development.
func GetDBPassword() string {
	if passwd := getFromFile(dbSecretPath, dbPassword); passwd != "" {
		return passwd
	}
	return getString(dbPrefix+dbPassword, "")
}

func GetDBSslMode() string {
	return getString(dbSslMode, "disable")
}

func GetDBMaxOpenConns() int {
	return getInt(dbMaxOpenConns, 100)
}

func GetDBMaxIdleConns() int {
	return getInt(dbMaxIdleConns, 10)
}

func GetDBMaxLifetimeSecond() int {
	return getInt(dbMaxLifetime, 600)
}

func GetDBMaxIdleTimeSecond() int {
	return getInt(dbMaxIdleTimeSecond, 60)
}

func GetDBConnectTimeoutSecond() int {
	return getInt(dbConnectTimeoutSecond, 10)
}

func GetDBRequestTimeoutSecond() int {
	return getInt(dbRequestTimeoutSecond, 20)
}

func IsDBAutoMigrate() bool {
	return getBool(dbAutoMigrate, true)
}

func GetRedisAddress() string {
	return getString(redisAddress, "localhost:6379")
}

func GetRedisDB() int {
	return getInt(redisDB, 0)
}

func GetRedisPassword() string {
	if passwd := getFromFile(redisSecretPath, redisPassword); passwd != "" {
		return passwd
	}
	return getString(redisPrefix+redisPassword, "")
}

// GetJwtSecret prefers the host-provided secret file; the inline key exists
// for local development only.
func GetJwtSecret() string {
	if secret := getFromFile(authSecretPath, authJwtSecretItem); secret != "" {
		return secret
	}
	return getString(authJwtSecret, "")
}

func GetAccessTokenExpireMinute() int {
	return getInt(accessTokenExpireMinute, 60)
}

func GetRefreshTokenExpireHour() int {
	return getInt(refreshTokenExpireHour, 720)
}

func GetStorageSavePath() string {
	return getString(storageSavePath, "/var/lib/quantumhive/files")
}

func GetStorageTmpPath() string {
	return getString(storageTmpPath, "/var/lib/quantumhive/tmp")
}

func GetUploadTokenTTLSecond() int {
	return getInt(uploadTokenTTLSecond, 300)
}

func GetDownloadTokenTTLSecond() int {
	return getInt(downloadTokenTTLSecond, 300)
}

func GetTransferMaxChunkMegabyte() int {
	return getInt(transferMaxChunkMegabyte, 256)
}

func GetSchedulerIntervalSecond() int {
	return getInt(schedulerIntervalSecond, 5)
}

func GetChannelMaxJobs() int {
	return getInt(schedulerChannelMaxJobs, 5)
}

func GetMinimizationAttempts() int {
	return getInt(schedulerMinimizationAttempts, 100)
}

func GetSweepSchedule() string {
	return getString(schedulerSweepSchedule, "@every 1m")
}

func GetJobPingTTLSecond() int {
	return getInt(jobPingTTLSecond, 300)
}

func GetJobPausedTTLSecond() int {
	return getInt(jobPausedTTLSecond, 86400)
}

func GetJobRunningTTLSecond() int {
	return getInt(jobRunningTTLSecond, 2592000)
}

func IsSmtpEnable() bool {
	return getBool(smtpEnable, false)
}

func GetSmtpHost() string {
	return getString(smtpHost, "")
}

func GetSmtpPort() int {
	return getInt(smtpPort, 587)
}

func GetSmtpUser() string {
	return getString(smtpUser, "")
}

func GetSmtpPassword() string {
	if passwd := getFromFile(smtpSecretPath, smtpPassword); passwd != "" {
		return passwd
	}
	return getString(smtpPrefix+smtpPassword, "")
}

func GetSmtpFrom() string {
	return getString(smtpFrom, "")
}

func GetSmtpReceivers() []string {
	return getStrings(smtpReceivers)
}

func IsSmtpUseTLS() bool {
	return getBool(smtpUseTLS, false)
}

func IsS3Enable() bool {
	return getBool(s3Enable, false)
}

func GetS3AccessKey() string {
	if ak := getString(s3Prefix+s3AccessKey, ""); ak != "" {
		return ak
	}
	return getFromFile(s3SecretPath, s3AccessKey)
}

func GetS3SecretKey() string {
	if sk := getString(s3Prefix+s3SecretKey, ""); sk != "" {
		return sk
	}
	return getFromFile(s3SecretPath, s3SecretKey)
}

func GetS3Bucket() string {
	return getString(s3Bucket, "")
}

func GetS3Endpoint() string {
	return getString(s3Endpoint, "")
}

func GetS3Region() string {
	return getString(s3Region, "us-east-1")
}

func GetS3KeyPrefix() string {
	return getString(s3KeyPrefix, "artifacts")
}

func GetS3TimeoutSecond() int {
	return getInt(s3TimeoutSecond, 60)
}

func IsMetricsEnable() bool {
	return getBool(metricsEnable, true)
}
