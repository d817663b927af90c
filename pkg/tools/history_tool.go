package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	pkgerrors "github.com/TFMV/scout/pkg/errors"
	"github.com/TFMV/scout/pkg/knowledge"
)

// HistoryTool searches previously answered questions. The history
// service is advisory, so an unreachable service degrades to an empty
// result instead of failing the step.
type HistoryTool struct {
	client knowledge.HistoryClient
	logger zerolog.Logger
	limit  int
}

// NewHistoryTool creates the search_query_history tool.
func NewHistoryTool(client knowledge.HistoryClient, logger zerolog.Logger) *HistoryTool {
	return &HistoryTool{client: client, logger: logger, limit: 5}
}

func (t *HistoryTool) Name() string { return "search_query_history" }

func (t *HistoryTool) Description() string {
	return "Search previously answered questions for similar questions and the SQL that answered them."
}

func (t *HistoryTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{
				"type":        "string",
				"description": "The question to search for.",
			},
		},
		"required": []string{"question"},
	}
}

func (t *HistoryTool) Invoke(ctx context.Context, args map[string]any) (*Result, error) {
	question, err := stringArg(args, "question")
	if err != nil {
		return nil, err
	}

	entries, err := t.client.Search(ctx, question, t.limit)
	if err != nil {
		if pkgerrors.GetCode(err) == pkgerrors.CodeServiceUnavailable {
			t.logger.Warn().Err(err).Msg("Query history unavailable, continuing without it")
			return &Result{Summary: "query history is currently unavailable"}, nil
		}
		return nil, err
	}

	if len(entries) == 0 {
		return &Result{Summary: "no similar past questions found"}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d similar past question(s):\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "- Q: %s\n  A: %s\n", e.Question, e.Answer)
		if e.SQL != "" {
			fmt.Fprintf(&b, "  SQL: %s\n", e.SQL)
		}
	}
	return &Result{Summary: b.String()}, nil
}
