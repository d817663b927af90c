// Package config provides configuration structures for the scout agent.
package config

import (
	"fmt"
	"time"
)

// Config represents the runtime configuration.
type Config struct {
	// Server settings
	Address         string        `yaml:"address" json:"address"`
	Database        string        `yaml:"database" json:"database"`
	LogLevel        string        `yaml:"log_level" json:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Agent budgets
	Agent AgentConfig `yaml:"agent" json:"agent"`

	// SQL validation
	Validator ValidatorConfig `yaml:"validator" json:"validator"`

	// Connection pool configuration
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool" json:"connection_pool"`

	// LLM provider configuration
	LLM LLMConfig `yaml:"llm" json:"llm"`

	// Query history service
	History HistoryConfig `yaml:"history" json:"history"`

	// Authentication configuration
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// AgentConfig bounds a single run.
type AgentConfig struct {
	MaxIterations   int           `yaml:"max_iterations" json:"max_iterations"`
	MaxStepAttempts int           `yaml:"max_step_attempts" json:"max_step_attempts"`
	QueryTimeout    time.Duration `yaml:"query_timeout" json:"query_timeout"`
	MaxRows         int           `yaml:"max_rows" json:"max_rows"`
}

// ValidatorConfig configures the SQL validator.
type ValidatorConfig struct {
	MaxStatementLength int `yaml:"max_statement_length" json:"max_statement_length"`
	RowCeiling         int `yaml:"row_ceiling" json:"row_ceiling"`
}

// ConnectionPoolConfig configures the connection pool.
type ConnectionPoolConfig struct {
	BaseConnections   int           `yaml:"base_connections" json:"base_connections"`
	OverflowLimit     int           `yaml:"overflow_limit" json:"overflow_limit"`
	AcquireTimeout    time.Duration `yaml:"acquire_timeout" json:"acquire_timeout"`
	ConnMaxLifetime   time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime   time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	HealthCheckPeriod time.Duration `yaml:"health_check_period" json:"health_check_period"`
}

// LLMConfig configures the chat model used for planning.
type LLMConfig struct {
	Provider string `yaml:"provider" json:"provider"` // openai, ollama
	Model    string `yaml:"model" json:"model"`
	BaseURL  string `yaml:"base_url" json:"base_url"`
	APIKey   string `yaml:"api_key" json:"api_key"`
}

// HistoryConfig configures the optional query-history service.
type HistoryConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	URL     string        `yaml:"url" json:"url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// AuthConfig represents authentication configuration.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Type    string `yaml:"type" json:"type"` // bearer, jwt

	// Bearer token auth: token -> username
	Tokens map[string]string `yaml:"tokens" json:"tokens"`

	// JWT auth
	JWT JWTAuthConfig `yaml:"jwt" json:"jwt"`
}

// JWTAuthConfig represents JWT authentication configuration.
type JWTAuthConfig struct {
	Secret   string `yaml:"secret" json:"secret"`
	Issuer   string `yaml:"issuer" json:"issuer"`
	Audience string `yaml:"audience" json:"audience"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	if c.Database == "" {
		c.Database = ":memory:"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}

	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 10
	}
	if c.Agent.MaxStepAttempts <= 0 {
		c.Agent.MaxStepAttempts = 3
	}
	if c.Agent.QueryTimeout <= 0 {
		c.Agent.QueryTimeout = 30 * time.Second
	}
	if c.Agent.MaxRows <= 0 {
		c.Agent.MaxRows = 10000
	}

	if c.Validator.MaxStatementLength <= 0 {
		c.Validator.MaxStatementLength = 10000
	}
	if c.Validator.RowCeiling <= 0 {
		c.Validator.RowCeiling = 10000
	}

	if c.ConnectionPool.BaseConnections <= 0 {
		c.ConnectionPool.BaseConnections = 5
	}
	if c.ConnectionPool.OverflowLimit < 0 {
		c.ConnectionPool.OverflowLimit = 0
	}
	if c.ConnectionPool.AcquireTimeout <= 0 {
		c.ConnectionPool.AcquireTimeout = 5 * time.Second
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	switch c.LLM.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unsupported llm provider: %s", c.LLM.Provider)
	}

	if c.History.Enabled && c.History.URL == "" {
		return fmt.Errorf("history url is required when history is enabled")
	}
	if c.History.Timeout <= 0 {
		c.History.Timeout = 5 * time.Second
	}

	if c.Auth.Enabled {
		switch c.Auth.Type {
		case "bearer":
			if len(c.Auth.Tokens) == 0 {
				return fmt.Errorf("bearer auth requires tokens")
			}
		case "jwt":
			if c.Auth.JWT.Secret == "" {
				return fmt.Errorf("jwt auth requires a secret")
			}
		default:
			return fmt.Errorf("unsupported auth type: %s", c.Auth.Type)
		}
	}

	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:         "0.0.0.0:8080",
		Database:        ":memory:",
		LogLevel:        "info",
		ShutdownTimeout: 30 * time.Second,
		Agent: AgentConfig{
			MaxIterations:   10,
			MaxStepAttempts: 3,
			QueryTimeout:    30 * time.Second,
			MaxRows:         10000,
		},
		Validator: ValidatorConfig{
			MaxStatementLength: 10000,
			RowCeiling:         10000,
		},
		ConnectionPool: ConnectionPoolConfig{
			BaseConnections:   5,
			OverflowLimit:     5,
			AcquireTimeout:    5 * time.Second,
			ConnMaxLifetime:   30 * time.Minute,
			ConnMaxIdleTime:   10 * time.Minute,
			HealthCheckPeriod: time.Minute,
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o",
		},
		History: HistoryConfig{
			Enabled: false,
			Timeout: 5 * time.Second,
		},
		Auth: AuthConfig{
			Enabled: false,
			Type:    "bearer",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
		},
	}
}
