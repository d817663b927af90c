package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/TFMV/scout/pkg/knowledge"
)

// SchemaTool exposes table metadata to the agent. With no arguments it
// lists every table; with a table argument it describes that table.
type SchemaTool struct {
	repo *knowledge.SchemaRepository
}

// NewSchemaTool creates the get_table_schema tool.
func NewSchemaTool(repo *knowledge.SchemaRepository) *SchemaTool {
	return &SchemaTool{repo: repo}
}

func (t *SchemaTool) Name() string { return "get_table_schema" }

func (t *SchemaTool) Description() string {
	return "List the available tables, or describe the columns of one table."
}

func (t *SchemaTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"table": map[string]any{
				"type":        "string",
				"description": "Optional table name, bare or schema-qualified.",
			},
		},
	}
}

func (t *SchemaTool) Invoke(ctx context.Context, args map[string]any) (*Result, error) {
	if table, ok := args["table"].(string); ok && strings.TrimSpace(table) != "" {
		ts, err := t.repo.DescribeTable(ctx, table)
		if err != nil {
			return nil, err
		}
		return &Result{Summary: ts.Render()}, nil
	}

	tables, err := t.repo.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{
		Summary: fmt.Sprintf("%d table(s): %s", len(tables), strings.Join(tables, ", ")),
	}, nil
}
