package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config is the root application configuration
type Config struct {
	Environment string          `toml:"environment"`
	Role        string          `toml:"role"`
	Server      ServerConfig    `toml:"server"`
	Queue       QueueConfig     `toml:"queue"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Formatter   FormatterConfig `toml:"formatter"`
	Events      EventsConfig    `toml:"events"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Retention   RetentionConfig `toml:"retention"`
}

// Deployment roles. A worker-role process runs the pool without the realtime
// notifier subscription; the server role carries both.
const (
	RoleServer = "server"
	RoleWorker = "worker"
)

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type QueueConfig struct {
	QueueName         string `toml:"name"`
	PollInterval      string `toml:"poll_interval"`
	Concurrency       int    `toml:"concurrency"`
	VisibilityTimeout string `toml:"visibility_timeout"`
	MaxAttempts       int    `toml:"max_attempts"`
	BaseDelay         string `toml:"base_delay"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`
	Output []string `toml:"output"`
}

// FormatterConfig selects and configures the formatting provider.
// Provider is one of: dummy, claude, gemini.
type FormatterConfig struct {
	Provider   string       `toml:"provider"`
	RetryDelay string       `toml:"retry_delay"`
	Timeout    string       `toml:"timeout"`
	Claude     ClaudeConfig `toml:"claude"`
	Gemini     GeminiConfig `toml:"gemini"`
}

type ClaudeConfig struct {
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
}

type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

type EventsConfig struct {
	// NotifierDisabled turns off the relay-to-websocket subscription even in
	// server deployments. The subscription is always off for role=worker and
	// environment=test.
	NotifierDisabled bool `toml:"notifier_disabled"`
}

type WebSocketConfig struct {
	// ThrottleInterval rate-limits outbound broadcasts, e.g. "100ms".
	// Empty disables throttling.
	ThrottleInterval string `toml:"throttle_interval"`
}

type RetentionConfig struct {
	// QueueWindow bounds how long terminal queue messages are kept
	QueueWindow string `toml:"queue_window"`
	// JobWindow bounds how long terminal job rows are kept
	JobWindow string `toml:"job_window"`
	// Sweep is the janitor cron schedule
	Sweep string `toml:"sweep"`
}

// NewDefaultConfig returns the configuration defaults applied before any file,
// environment, or CLI override.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Role:        RoleServer,
		Server: ServerConfig{
			Host: "localhost",
			Port: 8085,
		},
		Queue: QueueConfig{
			QueueName:         "format-jobs",
			PollInterval:      "1s",
			Concurrency:       2,
			VisibilityTimeout: "5m",
			MaxAttempts:       3,
			BaseDelay:         "30s",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/notefmt",
				ResetOnStartup: false,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"console"},
		},
		Formatter: FormatterConfig{
			Provider:   "dummy",
			RetryDelay: "2s",
			Timeout:    "45s",
			Claude: ClaudeConfig{
				Model:     "claude-sonnet-4-20250514",
				MaxTokens: 4096,
			},
			Gemini: GeminiConfig{
				Model: "gemini-2.0-flash",
			},
		},
		Events: EventsConfig{
			NotifierDisabled: false,
		},
		WebSocket: WebSocketConfig{
			ThrottleInterval: "",
		},
		Retention: RetentionConfig{
			QueueWindow: "24h",
			JobWindow:   "720h",
			Sweep:       "@every 10m",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := ValidateSweepSchedule(config.Retention.Sweep); err != nil {
		return nil, fmt.Errorf("invalid retention sweep schedule %q: %w", config.Retention.Sweep, err)
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("NOTEFMT_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}
	if role := os.Getenv("NOTEFMT_ROLE"); role != "" {
		config.Role = role
	}

	// Server
	if port := os.Getenv("NOTEFMT_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("NOTEFMT_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Queue
	if pollInterval := os.Getenv("NOTEFMT_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("NOTEFMT_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if visibilityTimeout := os.Getenv("NOTEFMT_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}
	if maxAttempts := os.Getenv("NOTEFMT_QUEUE_MAX_ATTEMPTS"); maxAttempts != "" {
		if ma, err := strconv.Atoi(maxAttempts); err == nil {
			config.Queue.MaxAttempts = ma
		}
	}
	if baseDelay := os.Getenv("NOTEFMT_QUEUE_BASE_DELAY"); baseDelay != "" {
		config.Queue.BaseDelay = baseDelay
	}
	if queueName := os.Getenv("NOTEFMT_QUEUE_NAME"); queueName != "" {
		config.Queue.QueueName = queueName
	}

	// Storage
	if badgerPath := os.Getenv("NOTEFMT_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging
	if level := os.Getenv("NOTEFMT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("NOTEFMT_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Formatter
	if provider := os.Getenv("NOTEFMT_FORMATTER_PROVIDER"); provider != "" {
		config.Formatter.Provider = provider
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.Formatter.Claude.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Formatter.Gemini.APIKey = key
	}

	// Events
	if disabled := os.Getenv("NOTEFMT_EVENTS_NOTIFIER_DISABLED"); disabled != "" {
		if d, err := strconv.ParseBool(disabled); err == nil {
			config.Events.NotifierDisabled = d
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ValidateSweepSchedule checks a cron schedule expression using the same
// parser the janitor runs with.
func ValidateSweepSchedule(schedule string) error {
	if schedule == "" {
		return fmt.Errorf("schedule cannot be empty")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// IsProduction reports whether the config targets a production environment
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// IsTest reports whether the config targets a test environment
func (c *Config) IsTest() bool {
	return strings.EqualFold(c.Environment, "test")
}
