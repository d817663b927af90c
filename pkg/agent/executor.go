package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	pkgerrors "github.com/TFMV/scout/pkg/errors"
	"github.com/TFMV/scout/pkg/models"
	"github.com/TFMV/scout/pkg/tools"
)

// Executor runs one plan step at a time through the tool registry. A
// step gets a bounded number of tool attempts; failures are converted
// into observations so the replanner can react, never into errors that
// abort the run.
type Executor struct {
	registry *tools.Registry
	selector ToolSelector
	logger   zerolog.Logger

	retryBackoff time.Duration
}

// NewExecutor creates an executor.
func NewExecutor(registry *tools.Registry, selector ToolSelector, logger zerolog.Logger) *Executor {
	return &Executor{
		registry:     registry,
		selector:     selector,
		logger:       logger,
		retryBackoff: 200 * time.Millisecond,
	}
}

// ExecuteStep runs the step to completion or exhaustion of its attempt
// budget, marks the step's status, and returns the final observation.
func (e *Executor) ExecuteStep(ctx context.Context, question *models.Question, step *models.Step, trace *models.Trace) models.Observation {
	step.Status = models.StepExecuting
	attempts := question.Config.MaxStepAttempts
	if attempts <= 0 {
		attempts = models.DefaultMaxStepAttempts
	}

	var obs models.Observation
	var prior []models.Observation
	for attempt := 1; attempt <= attempts; attempt++ {
		obs = e.attempt(ctx, question, step, prior, trace)
		if obs.Success {
			step.Status = models.StepDone
			return obs
		}
		prior = append(prior, obs)

		e.logger.Warn().
			Str("run_id", question.RunID).
			Str("step", step.Description).
			Int("attempt", attempt).
			Str("error_code", obs.ErrorCode).
			Msg("Step attempt failed")

		if ctx.Err() != nil {
			break
		}
		if attempt < attempts && obs.ErrorCode == pkgerrors.CodePoolExhausted {
			// Contention is transient; give leases a moment to return.
			select {
			case <-ctx.Done():
			case <-time.After(e.retryBackoff * time.Duration(attempt)):
			}
		}
	}

	step.Status = models.StepFailed
	return obs
}

func (e *Executor) attempt(ctx context.Context, question *models.Question, step *models.Step, prior []models.Observation, trace *models.Trace) models.Observation {
	start := time.Now()

	call, err := e.selector.Select(ctx, question, step, prior, trace, e.registry.Capabilities())
	if err != nil {
		return models.Observation{
			Tool:      "",
			Success:   false,
			Summary:   "failed to choose a tool for this step",
			ErrorCode: pkgerrors.GetCode(err),
			Error:     err.Error(),
			Duration:  time.Since(start),
		}
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	args["step_id"] = step.ID
	if question.Config.MaxRows > 0 {
		args["max_rows"] = question.Config.MaxRows
	}

	invokeCtx := ctx
	if question.Config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, question.Config.QueryTimeout)
		defer cancel()
	}

	result, err := e.registry.Invoke(invokeCtx, call.Tool, args)
	obs := models.Observation{
		Tool:     call.Tool,
		Duration: time.Since(start),
	}
	if err != nil {
		obs.Success = false
		obs.Summary = fmt.Sprintf("tool %s failed", call.Tool)
		obs.ErrorCode = pkgerrors.GetCode(err)
		obs.Error = err.Error()
		if sql, ok := args["sql"].(string); ok {
			obs.SQL = sql
		}
		return obs
	}

	obs.Success = true
	obs.Summary = result.Summary
	obs.SQL = result.SQL
	obs.Result = result.Data
	return obs
}
