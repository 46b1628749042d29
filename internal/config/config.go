// Package config provides environment-variable-first configuration loading
// with an optional YAML file underneath.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Queue backends.
const (
	QueueBackendSQS    = "sqs"
	QueueBackendAsynq  = "asynq"
	QueueBackendMemory = "memory"
)

// Defaults.
const (
	DefaultModelID              = "anthropic.claude-haiku-4-5-20251001-v1:0"
	DefaultModelMaxTokens       = 1024
	DefaultModelTimeout         = 30 * time.Second
	DefaultMaxRepliesPerMessage = 2
	DefaultMaxThreadMessages    = 40
	DefaultTranscriptLimit      = 10
)

// Config holds the complete application configuration.
type Config struct {
	TableName    string             `yaml:"table_name"`
	Queue        QueueConfig        `yaml:"queue"`
	Model        ModelConfig        `yaml:"model"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// QueueConfig selects and addresses the background work-list.
type QueueConfig struct {
	Backend  string `yaml:"backend"`
	URL      string `yaml:"url"`
	RedisURL string `yaml:"redis_url"`
}

// ModelConfig configures the language-model collaborator.
type ModelConfig struct {
	ID        string        `yaml:"id"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// OrchestratorConfig bounds automatic persona replies.
type OrchestratorConfig struct {
	MaxRepliesPerMessage int `yaml:"max_replies_per_message"`
	MaxThreadMessages    int `yaml:"max_thread_messages"`
	TranscriptLimit      int `yaml:"transcript_limit"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables over defaults. When
// DEADNET_CONFIG names a file, it is applied between the two.
func Load() (*Config, error) {
	if path := os.Getenv("DEADNET_CONFIG"); path != "" {
		return LoadFromFile(path)
	}
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvVars()

	return cfg, nil
}

// Validate reports configuration that cannot start a component.
func (c *Config) Validate() error {
	if c.TableName == "" {
		return fmt.Errorf("table name is required (TABLE_NAME)")
	}
	switch c.Queue.Backend {
	case QueueBackendSQS:
		if c.Queue.URL == "" {
			return fmt.Errorf("queue url is required for the sqs backend (TASK_QUEUE_URL)")
		}
	case QueueBackendAsynq:
		if c.Queue.RedisURL == "" {
			return fmt.Errorf("redis url is required for the asynq backend (REDIS_URL)")
		}
	case QueueBackendMemory:
	default:
		return fmt.Errorf("unknown queue backend %q", c.Queue.Backend)
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.Queue.Backend = QueueBackendSQS
	c.Model.ID = DefaultModelID
	c.Model.MaxTokens = DefaultModelMaxTokens
	c.Model.Timeout = DefaultModelTimeout
	c.Orchestrator.MaxRepliesPerMessage = DefaultMaxRepliesPerMessage
	c.Orchestrator.MaxThreadMessages = DefaultMaxThreadMessages
	c.Orchestrator.TranscriptLimit = DefaultTranscriptLimit
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty, parseable values override existing ones.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("TABLE_NAME"); v != "" {
		c.TableName = v
	}

	if v := os.Getenv("QUEUE_BACKEND"); v != "" {
		c.Queue.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("TASK_QUEUE_URL"); v != "" {
		c.Queue.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Queue.RedisURL = v
	}

	if v := os.Getenv("MODEL_ID"); v != "" {
		c.Model.ID = v
	}
	if v := os.Getenv("MODEL_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Model.MaxTokens = n
		}
	}
	if v := os.Getenv("MODEL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Model.Timeout = d
		}
	}

	if v := os.Getenv("MAX_REPLIES_PER_MESSAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Orchestrator.MaxRepliesPerMessage = n
		}
	}
	if v := os.Getenv("MAX_THREAD_MESSAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Orchestrator.MaxThreadMessages = n
		}
	}
	if v := os.Getenv("TRANSCRIPT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Orchestrator.TranscriptLimit = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}
