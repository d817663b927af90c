package agent

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/TFMV/scout/pkg/errors"
	"github.com/TFMV/scout/pkg/models"
	"github.com/TFMV/scout/pkg/tools"
)

func TestExecuteStepSuccess(t *testing.T) {
	selector := &stubSelector{
		selectFn: func(context.Context, *models.Question, *models.Step, []models.Observation, *models.Trace, []tools.Capability) (*ToolCall, error) {
			return &ToolCall{Tool: "execute_sql", Arguments: map[string]any{"sql": "SELECT COUNT(*) FROM users"}}, nil
		},
	}
	e := NewExecutor(newTestRegistry(t), selector, zerolog.Nop())

	q := models.NewQuestion("count users", models.RunConfig{})
	step := models.NewStep("count the users")
	obs := e.ExecuteStep(context.Background(), q, step, &models.Trace{})

	assert.True(t, obs.Success)
	assert.Equal(t, models.StepDone, step.Status)
	assert.Equal(t, "execute_sql", obs.Tool)
	assert.Contains(t, obs.SQL, "LIMIT 10000")
	require.NotNil(t, obs.Result)
	assert.Equal(t, int64(3), obs.Result.Rows[0][0])
}

// The question's row budget travels with the invocation and caps the
// result below the tool's configured ceiling.
func TestExecuteStepAppliesRowBudget(t *testing.T) {
	selector := &stubSelector{
		selectFn: func(context.Context, *models.Question, *models.Step, []models.Observation, *models.Trace, []tools.Capability) (*ToolCall, error) {
			return &ToolCall{Tool: "execute_sql", Arguments: map[string]any{"sql": "SELECT name FROM users ORDER BY id"}}, nil
		},
	}
	e := NewExecutor(newTestRegistry(t), selector, zerolog.Nop())

	q := models.NewQuestion("list users", models.RunConfig{MaxRows: 2})
	step := models.NewStep("list the users")
	obs := e.ExecuteStep(context.Background(), q, step, &models.Trace{})

	assert.True(t, obs.Success)
	require.NotNil(t, obs.Result)
	assert.Equal(t, 2, obs.Result.RowCount)
	assert.True(t, obs.Result.Truncated)
}

func TestExecuteStepAttemptCap(t *testing.T) {
	attempts := 0
	selector := &stubSelector{
		selectFn: func(context.Context, *models.Question, *models.Step, []models.Observation, *models.Trace, []tools.Capability) (*ToolCall, error) {
			attempts++
			return &ToolCall{Tool: "execute_sql", Arguments: map[string]any{"sql": "DROP TABLE users"}}, nil
		},
	}
	e := NewExecutor(newTestRegistry(t), selector, zerolog.Nop())

	q := models.NewQuestion("q", models.RunConfig{MaxStepAttempts: 3})
	step := models.NewStep("drop things")
	obs := e.ExecuteStep(context.Background(), q, step, &models.Trace{})

	assert.False(t, obs.Success)
	assert.Equal(t, models.StepFailed, step.Status)
	assert.Equal(t, pkgerrors.CodeSQLRejected, obs.ErrorCode)
	assert.Equal(t, 3, attempts)
}

// A retry must see the previous attempt's rejection so it can adjust
// the statement instead of re-issuing it.
func TestExecuteStepRetrySeesRejection(t *testing.T) {
	var seen [][]models.Observation
	selector := &stubSelector{
		selectFn: func(_ context.Context, _ *models.Question, _ *models.Step, prior []models.Observation, _ *models.Trace, _ []tools.Capability) (*ToolCall, error) {
			seen = append(seen, prior)
			if len(prior) == 0 {
				return &ToolCall{Tool: "execute_sql", Arguments: map[string]any{"sql": "DELETE FROM users"}}, nil
			}
			return &ToolCall{Tool: "execute_sql", Arguments: map[string]any{"sql": "SELECT COUNT(*) FROM users"}}, nil
		},
	}
	e := NewExecutor(newTestRegistry(t), selector, zerolog.Nop())

	q := models.NewQuestion("count users", models.RunConfig{MaxStepAttempts: 3})
	step := models.NewStep("count the users")
	obs := e.ExecuteStep(context.Background(), q, step, &models.Trace{})

	assert.True(t, obs.Success)
	assert.Equal(t, models.StepDone, step.Status)

	require.Len(t, seen, 2)
	assert.Empty(t, seen[0])
	require.Len(t, seen[1], 1)
	assert.Equal(t, pkgerrors.CodeSQLRejected, seen[1][0].ErrorCode)
	assert.Equal(t, "DELETE FROM users", seen[1][0].SQL)
}

func TestExecuteStepSelectorFailure(t *testing.T) {
	selector := &stubSelector{
		selectFn: func(context.Context, *models.Question, *models.Step, []models.Observation, *models.Trace, []tools.Capability) (*ToolCall, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStepFailed, "no tool fits")
		},
	}
	e := NewExecutor(newTestRegistry(t), selector, zerolog.Nop())

	q := models.NewQuestion("q", models.RunConfig{MaxStepAttempts: 2})
	step := models.NewStep("impossible step")
	obs := e.ExecuteStep(context.Background(), q, step, &models.Trace{})

	assert.False(t, obs.Success)
	assert.Equal(t, models.StepFailed, step.Status)
	assert.Equal(t, pkgerrors.CodeStepFailed, obs.ErrorCode)
}

func TestExecuteStepUnknownTool(t *testing.T) {
	selector := &stubSelector{
		selectFn: func(context.Context, *models.Question, *models.Step, []models.Observation, *models.Trace, []tools.Capability) (*ToolCall, error) {
			return &ToolCall{Tool: "does_not_exist"}, nil
		},
	}
	e := NewExecutor(newTestRegistry(t), selector, zerolog.Nop())

	q := models.NewQuestion("q", models.RunConfig{MaxStepAttempts: 1})
	step := models.NewStep("call a ghost tool")
	obs := e.ExecuteStep(context.Background(), q, step, &models.Trace{})

	assert.False(t, obs.Success)
	assert.Equal(t, pkgerrors.CodeInvalidRequest, obs.ErrorCode)
}
