package queue

import (
	"fmt"
	"time"

	"github.com/telsalud/notefmt/internal/common"
)

// Config holds the resolved queue and worker pool settings
type Config struct {
	QueueName         string
	PollInterval      time.Duration
	Concurrency       int
	VisibilityTimeout time.Duration
	MaxAttempts       int
	BaseDelay         time.Duration
	QueueRetention    time.Duration
}

// DefaultConfig returns queue settings used when no configuration is supplied
func DefaultConfig() Config {
	return Config{
		QueueName:         "format-jobs",
		PollInterval:      time.Second,
		Concurrency:       2,
		VisibilityTimeout: 5 * time.Minute,
		MaxAttempts:       3,
		BaseDelay:         30 * time.Second,
		QueueRetention:    24 * time.Hour,
	}
}

// ConfigFromCommon parses the TOML-level queue settings into durations
func ConfigFromCommon(qc *common.QueueConfig, rc *common.RetentionConfig) (Config, error) {
	cfg := DefaultConfig()

	if qc.QueueName != "" {
		cfg.QueueName = qc.QueueName
	}
	if qc.Concurrency > 0 {
		cfg.Concurrency = qc.Concurrency
	}
	if qc.MaxAttempts > 0 {
		cfg.MaxAttempts = qc.MaxAttempts
	}

	var err error
	if qc.PollInterval != "" {
		if cfg.PollInterval, err = time.ParseDuration(qc.PollInterval); err != nil {
			return cfg, fmt.Errorf("invalid queue poll_interval %q: %w", qc.PollInterval, err)
		}
	}
	if qc.VisibilityTimeout != "" {
		if cfg.VisibilityTimeout, err = time.ParseDuration(qc.VisibilityTimeout); err != nil {
			return cfg, fmt.Errorf("invalid queue visibility_timeout %q: %w", qc.VisibilityTimeout, err)
		}
	}
	if qc.BaseDelay != "" {
		if cfg.BaseDelay, err = time.ParseDuration(qc.BaseDelay); err != nil {
			return cfg, fmt.Errorf("invalid queue base_delay %q: %w", qc.BaseDelay, err)
		}
	}
	if rc != nil && rc.QueueWindow != "" {
		if cfg.QueueRetention, err = time.ParseDuration(rc.QueueWindow); err != nil {
			return cfg, fmt.Errorf("invalid retention queue_window %q: %w", rc.QueueWindow, err)
		}
	}

	return cfg, nil
}
