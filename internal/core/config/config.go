// Package config defines the application configuration and its loader.
package config

import (
	"fmt"
	"time"

	"github.com/vietddude/todosync/internal/infra/redis"
	"github.com/vietddude/todosync/internal/infra/storage/postgres"
)

// AppConfig is the full application configuration.
type AppConfig struct {
	Server   ServerConfig    `yaml:"server"`
	Logging  LoggingConfig   `yaml:"logging"`
	Storage  string          `yaml:"storage"` // "postgres" or "memory"
	Database postgres.Config `yaml:"database"`
	Redis    redis.Config    `yaml:"redis"`
	Sources  []SourceConfig  `yaml:"sources"`
}

// ServerConfig holds the health/metrics HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig holds the log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// EndpointConfig is one ranked RPC endpoint of a source.
type EndpointConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	Rank int    `yaml:"rank"`
}

// SourceConfig configures one synchronized event source.
type SourceConfig struct {
	ID             string           `yaml:"id"`
	Contract       string           `yaml:"contract"`
	StartBlock     uint64           `yaml:"start_block"`
	Confirmations  uint64           `yaml:"confirmations"`
	RecoveryWindow uint64           `yaml:"recovery_window"` // blocks, 0 = unbounded
	MaxLogRange    uint64           `yaml:"max_log_range"`
	PollInterval   time.Duration    `yaml:"poll_interval"`
	StallThreshold time.Duration    `yaml:"stall_threshold"`
	FailThreshold  int              `yaml:"fail_threshold"`
	Cooldown       time.Duration    `yaml:"cooldown"`
	RequestTimeout time.Duration    `yaml:"request_timeout"`
	Endpoints      []EndpointConfig `yaml:"endpoints"`
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Storage == "" {
		c.Storage = "postgres"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = 2
	}

	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Confirmations == 0 {
			s.Confirmations = 12
		}
		if s.MaxLogRange == 0 {
			s.MaxLogRange = 1000
		}
		if s.PollInterval == 0 {
			s.PollInterval = 10 * time.Second
		}
		if s.StallThreshold == 0 {
			s.StallThreshold = 5 * time.Minute
		}
		if s.FailThreshold == 0 {
			s.FailThreshold = 3
		}
		if s.Cooldown == 0 {
			s.Cooldown = 30 * time.Second
		}
		if s.RequestTimeout == 0 {
			s.RequestTimeout = 15 * time.Second
		}
	}
}

// Validate rejects configurations the syncer cannot run with.
func (c *AppConfig) Validate() error {
	if c.Storage != "postgres" && c.Storage != "memory" {
		return fmt.Errorf("storage must be postgres or memory, got %q", c.Storage)
	}
	if c.Storage == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("database.url is required with postgres storage")
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}

	seen := make(map[string]bool)
	for _, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("source id is required")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate source id %q", s.ID)
		}
		seen[s.ID] = true

		if s.Contract == "" {
			return fmt.Errorf("source %s: contract address is required", s.ID)
		}
		if len(s.Endpoints) == 0 {
			return fmt.Errorf("source %s: at least one endpoint is required", s.ID)
		}
		for _, ep := range s.Endpoints {
			if ep.URL == "" {
				return fmt.Errorf("source %s: endpoint %q has no url", s.ID, ep.Name)
			}
		}
	}
	return nil
}
