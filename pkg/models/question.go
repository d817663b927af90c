// Package models contains the core data types shared across the agent runtime.
package models

import (
	"time"

	"github.com/google/uuid"
)

// RunConfig holds the per-run execution budgets and target data source.
type RunConfig struct {
	// Database is the target catalog/schema the question is about.
	Database string `json:"database"`
	// MaxIterations bounds the number of replanning cycles for the run.
	MaxIterations int `json:"max_iterations"`
	// MaxStepAttempts bounds tool invocations inside a single step.
	MaxStepAttempts int `json:"max_step_attempts"`
	// QueryTimeout is the hard per-statement execution timeout.
	QueryTimeout time.Duration `json:"query_timeout"`
	// MaxRows caps the number of rows any query may return.
	MaxRows int `json:"max_rows"`
}

// Defaults applied when a budget is unset or nonsensical.
const (
	DefaultMaxIterations   = 10
	DefaultMaxStepAttempts = 3
	DefaultQueryTimeout    = 30 * time.Second
	DefaultMaxRows         = 10000
)

// Normalize fills unset budgets with defaults.
func (c RunConfig) Normalize() RunConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.MaxStepAttempts <= 0 {
		c.MaxStepAttempts = DefaultMaxStepAttempts
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.MaxRows <= 0 {
		c.MaxRows = DefaultMaxRows
	}
	return c
}

// Question is the immutable input of a run: the user's text plus the
// run configuration. Created once per run and never mutated.
type Question struct {
	RunID     string    `json:"run_id"`
	Text      string    `json:"text"`
	Config    RunConfig `json:"config"`
	CreatedAt time.Time `json:"created_at"`
}

// NewQuestion creates a Question with a fresh run ID and normalized budgets.
func NewQuestion(text string, cfg RunConfig) *Question {
	return &Question{
		RunID:     uuid.NewString(),
		Text:      text,
		Config:    cfg.Normalize(),
		CreatedAt: time.Now().UTC(),
	}
}
