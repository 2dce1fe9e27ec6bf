/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package channel

import (
	"context"

	"github.com/Aschie4589/QuantumHiveServer/pkg/config"
	"github.com/Aschie4589/QuantumHiveServer/pkg/notification/model"
)

type Config struct {
	Email *EmailConfig `json:"email,omitempty" yaml:"email"`
}

type EmailConfig struct {
	SMTPHost string `json:"smtp_host" yaml:"smtp_host"`
	SMTPPort int    `json:"smtp_port" yaml:"smtp_port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	From     string `json:"from" yaml:"from"`
	UseTLS   bool   `json:"use_tls" yaml:"use_tls"`
}

// FromConfig assembles the channel configuration from the server config.
// Returns nil when no channel is enabled.
func FromConfig() *Config {
	if !config.IsSmtpEnable() {
		return nil
	}
	return &Config{
		Email: &EmailConfig{
			SMTPHost: config.GetSmtpHost(),
			SMTPPort: config.GetSmtpPort(),
			Username: config.GetSmtpUser(),
			Password: config.GetSmtpPassword(),
			From:     config.GetSmtpFrom(),
			UseTLS:   config.IsSmtpUseTLS(),
		},
	}
}

type Channel interface {
	Init(cfg Config) error
	Name() string
	Send(ctx context.Context, message *model.Message) error
}

// InitChannels initializes all notification channels from the configuration.
func InitChannels(ctx context.Context, conf *Config) (map[string]Channel, error) {
	channels := make(map[string]Channel)
	if conf == nil {
		return channels, nil
	}
	if conf.Email != nil {
		emailChannel := &EmailChannel{}
		if err := emailChannel.Init(*conf); err != nil {
			return nil, err
		}
		channels[emailChannel.Name()] = emailChannel
	}
	return channels, nil
}
