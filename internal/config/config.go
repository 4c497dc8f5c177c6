// Package config loads runtime configuration from the environment.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the desktop backend.
type Config struct {
	ListenAddr string `envconfig:"POS_ADDR" default:"127.0.0.1:8090"`
	DataDir    string `envconfig:"POS_DATA_DIR" default:"./data"`

	LogLevel string `envconfig:"POS_LOG_LEVEL" default:"INFO"`

	SyncInterval time.Duration `envconfig:"POS_SYNC_INTERVAL" default:"30s"`
	ProbeURL     string        `envconfig:"POS_PROBE_URL" default:"https://www.google.com/generate_204"`
	ProbeTimeout time.Duration `envconfig:"POS_PROBE_TIMEOUT" default:"5s"`
	PushTimeout  time.Duration `envconfig:"POS_PUSH_TIMEOUT" default:"15s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
