package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQuestionAppliesDefaults(t *testing.T) {
	q := NewQuestion("how many users signed up last week", RunConfig{Database: "analytics"})

	assert.NotEmpty(t, q.RunID)
	assert.Equal(t, "analytics", q.Config.Database)
	assert.Equal(t, DefaultMaxIterations, q.Config.MaxIterations)
	assert.Equal(t, DefaultMaxStepAttempts, q.Config.MaxStepAttempts)
	assert.Equal(t, DefaultQueryTimeout, q.Config.QueryTimeout)
	assert.Equal(t, DefaultMaxRows, q.Config.MaxRows)
}

func TestNewQuestionKeepsExplicitBudgets(t *testing.T) {
	cfg := RunConfig{MaxIterations: 3, MaxStepAttempts: 1, QueryTimeout: time.Second, MaxRows: 50}
	q := NewQuestion("q", cfg)
	assert.Equal(t, 3, q.Config.MaxIterations)
	assert.Equal(t, 1, q.Config.MaxStepAttempts)
	assert.Equal(t, time.Second, q.Config.QueryTimeout)
	assert.Equal(t, 50, q.Config.MaxRows)
}

func TestPlanNextPendingOrder(t *testing.T) {
	p := NewPlan([]string{"list tables", "inspect schema", "run query"})

	first := p.NextPending()
	require.NotNil(t, first)
	assert.Equal(t, "list tables", first.Description)

	first.Status = StepDone
	second := p.NextPending()
	require.NotNil(t, second)
	assert.Equal(t, "inspect schema", second.Description)
}

func TestPlanReplaceTailKeepsCompleted(t *testing.T) {
	p := NewPlan([]string{"a", "b", "c"})
	p.Steps[0].Status = StepDone
	p.Steps[1].Status = StepFailed

	p.ReplaceTail([]string{"b corrected"})

	require.Len(t, p.Steps, 3)
	assert.Equal(t, "a", p.Steps[0].Description)
	assert.Equal(t, StepDone, p.Steps[0].Status)
	assert.Equal(t, "b", p.Steps[1].Description)
	assert.Equal(t, StepFailed, p.Steps[1].Status)
	assert.Equal(t, "b corrected", p.Steps[2].Description)
	assert.Equal(t, StepPending, p.Steps[2].Status)
}

func TestTraceAppendOnly(t *testing.T) {
	tr := &Trace{}
	s1 := NewStep("first")
	s2 := NewStep("second")

	tr.Append(s1, Observation{Tool: "get_table_schema", Success: true, Summary: "3 tables"})
	assert.Equal(t, 1, tr.Len())
	tr.Append(s2, Observation{Tool: "execute_sql", Success: false, ErrorCode: "SQL_REJECTED"})
	assert.Equal(t, 2, tr.Len())

	entries := tr.Entries()
	assert.Equal(t, "first", entries[0].Step.Description)
	assert.Equal(t, "second", entries[1].Step.Description)

	// Mutating the copy must not affect the trace.
	entries[0].Observation.Summary = "tampered"
	assert.Equal(t, "3 tables", tr.Entries()[0].Observation.Summary)
}

func TestTraceLastSQL(t *testing.T) {
	tr := &Trace{}
	tr.Append(NewStep("a"), Observation{Tool: "execute_sql", Success: false, SQL: "SELECT broken"})
	tr.Append(NewStep("b"), Observation{
		Tool:    "execute_sql",
		Success: true,
		SQL:     "SELECT COUNT(*) FROM t LIMIT 10000",
		Result:  &ResultSet{Columns: []string{"count"}, Rows: [][]any{{int64(42)}}, RowCount: 1},
	})
	tr.Append(NewStep("c"), Observation{Tool: "get_table_schema", Success: true})

	sql, rs := tr.LastSQL()
	assert.Equal(t, "SELECT COUNT(*) FROM t LIMIT 10000", sql)
	require.NotNil(t, rs)
	assert.Equal(t, 1, rs.RowCount)
}

func TestTraceRenderBounded(t *testing.T) {
	tr := &Trace{}
	for i := 0; i < 20; i++ {
		tr.Append(NewStep("inspect a fairly long table name to pad the rendering"),
			Observation{Tool: "get_table_schema", Success: true, Summary: strings.Repeat("x", 200)})
	}

	full := tr.Render(0)
	bounded := tr.Render(1000)
	assert.Greater(t, len(full), 1000)
	assert.LessOrEqual(t, len(bounded), 1000)
	assert.Contains(t, bounded, "elided")
	// Rendering never shortens the trace itself.
	assert.Equal(t, 20, tr.Len())
}
