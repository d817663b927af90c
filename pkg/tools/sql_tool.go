package tools

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	pkgerrors "github.com/TFMV/scout/pkg/errors"
	"github.com/TFMV/scout/pkg/infrastructure/metrics"
	"github.com/TFMV/scout/pkg/infrastructure/pool"
	"github.com/TFMV/scout/pkg/validator"
)

// ExecuteSQLTool validates and runs a read-only SQL statement on a
// leased connection. Every statement passes through the validator; the
// lease is released on all paths, including query failure.
type ExecuteSQLTool struct {
	validator *validator.Validator
	pool      pool.ConnectionPool
	collector metrics.Collector
	logger    zerolog.Logger
	maxRows   int
}

// NewExecuteSQLTool creates the execute_sql tool.
func NewExecuteSQLTool(v *validator.Validator, p pool.ConnectionPool, collector metrics.Collector, logger zerolog.Logger, maxRows int) *ExecuteSQLTool {
	if collector == nil {
		collector = &metrics.NoOpCollector{}
	}
	if maxRows <= 0 {
		maxRows = v.RowCeiling()
	}
	return &ExecuteSQLTool{
		validator: v,
		pool:      p,
		collector: collector,
		logger:    logger,
		maxRows:   maxRows,
	}
}

func (t *ExecuteSQLTool) Name() string { return "execute_sql" }

func (t *ExecuteSQLTool) Description() string {
	return "Execute a single read-only SELECT statement against the database and return the rows."
}

func (t *ExecuteSQLTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sql": map[string]any{
				"type":        "string",
				"description": "A single SELECT or WITH statement.",
			},
		},
		"required": []string{"sql"},
	}
}

// Invoke validates the statement, acquires a lease and executes it.
func (t *ExecuteSQLTool) Invoke(ctx context.Context, args map[string]any) (*Result, error) {
	stmt, err := stringArg(args, "sql")
	if err != nil {
		return nil, err
	}

	verdict := t.validator.Validate(stmt)
	t.collector.RecordValidation(verdict.Allowed)
	if !verdict.Allowed {
		t.logger.Warn().
			Str("sql", stmt).
			Str("reason", verdict.Reason()).
			Msg("Statement rejected by validator")
		return nil, pkgerrors.New(pkgerrors.CodeSQLRejected, verdict.Reason()).
			WithDetail("sql", stmt)
	}

	owner := "execute_sql"
	if step, ok := args["step_id"].(string); ok && step != "" {
		owner = step
	}

	lease, err := t.pool.Acquire(ctx, owner)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	// A per-run cap may tighten the configured one, never widen it.
	maxRows := t.maxRows
	if n := intArg(args, "max_rows"); n > 0 && n < maxRows {
		maxRows = n
	}

	rs, err := lease.Query(ctx, verdict.NormalizedSQL, maxRows)
	if err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("%d row(s)", rs.RowCount)
	if rs.Truncated {
		summary += " (truncated)"
	}
	return &Result{
		Summary: summary,
		SQL:     verdict.NormalizedSQL,
		Data:    rs,
	}, nil
}
