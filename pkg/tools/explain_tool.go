package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	pkgerrors "github.com/TFMV/scout/pkg/errors"
	"github.com/TFMV/scout/pkg/infrastructure/pool"
	"github.com/TFMV/scout/pkg/validator"
)

// ExplainTool returns the query plan for a statement without running
// it. The statement must pass the same validation as execute_sql; the
// EXPLAIN prefix is added only after the verdict.
type ExplainTool struct {
	validator *validator.Validator
	pool      pool.ConnectionPool
	logger    zerolog.Logger
}

// NewExplainTool creates the explain_query tool.
func NewExplainTool(v *validator.Validator, p pool.ConnectionPool, logger zerolog.Logger) *ExplainTool {
	return &ExplainTool{validator: v, pool: p, logger: logger}
}

func (t *ExplainTool) Name() string { return "explain_query" }

func (t *ExplainTool) Description() string {
	return "Show the query plan for a SELECT statement without executing it."
}

func (t *ExplainTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sql": map[string]any{
				"type":        "string",
				"description": "A single SELECT or WITH statement to explain.",
			},
		},
		"required": []string{"sql"},
	}
}

func (t *ExplainTool) Invoke(ctx context.Context, args map[string]any) (*Result, error) {
	stmt, err := stringArg(args, "sql")
	if err != nil {
		return nil, err
	}

	verdict := t.validator.Validate(stmt)
	if !verdict.Allowed {
		return nil, pkgerrors.New(pkgerrors.CodeSQLRejected, verdict.Reason()).
			WithDetail("sql", stmt)
	}

	lease, err := t.pool.Acquire(ctx, "explain_query")
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	rs, err := lease.Query(ctx, "EXPLAIN "+verdict.NormalizedSQL, 0)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "plan for: %s\n", verdict.NormalizedSQL)
	for _, row := range rs.Rows {
		for _, v := range row {
			if s, ok := v.(string); ok && s != "" {
				b.WriteString(s)
				b.WriteByte('\n')
			}
		}
	}
	return &Result{Summary: b.String(), SQL: verdict.NormalizedSQL}, nil
}
