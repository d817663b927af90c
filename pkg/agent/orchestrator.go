package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/scout/pkg/infrastructure/metrics"
	"github.com/TFMV/scout/pkg/knowledge"
	"github.com/TFMV/scout/pkg/models"
)

// State is the orchestrator's position in the run lifecycle.
type State string

const (
	StatePlanning   State = "PLANNING"
	StateExecuting  State = "EXECUTING"
	StateReplanning State = "REPLANNING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// Orchestrator drives a question through planning, execution and
// replanning until it finishes, fails, or exhausts its iteration
// budget. Run never returns an error: every failure mode is expressed
// as a Response status.
type Orchestrator struct {
	planner   Planner
	replanner Replanner
	executor  *Executor
	history   knowledge.HistoryClient
	logger    zerolog.Logger
	collector metrics.Collector
}

// NewOrchestrator creates an orchestrator. The history client may be
// nil, in which case finished runs are not recorded.
func NewOrchestrator(planner Planner, replanner Replanner, executor *Executor, history knowledge.HistoryClient, logger zerolog.Logger, collector metrics.Collector) *Orchestrator {
	if collector == nil {
		collector = &metrics.NoOpCollector{}
	}
	return &Orchestrator{
		planner:   planner,
		replanner: replanner,
		executor:  executor,
		history:   history,
		logger:    logger,
		collector: collector,
	}
}

// Run answers the question. The returned response always carries the
// run ID and a terminal status.
func (o *Orchestrator) Run(ctx context.Context, question *models.Question) *models.Response {
	start := time.Now()
	logger := o.logger.With().Str("run_id", question.RunID).Logger()

	resp := o.run(ctx, logger, question)
	resp.RunID = question.RunID

	o.collector.RecordRun(string(resp.Status), resp.Iterations, time.Since(start))
	logger.Info().
		Str("status", string(resp.Status)).
		Int("iterations", resp.Iterations).
		Dur("duration", time.Since(start)).
		Msg("Run finished")

	if o.history != nil && resp.Status == models.StatusSuccess {
		// Best effort; a down history service never affects the answer.
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = o.history.Record(recordCtx, knowledge.HistoryEntry{
			RunID:      question.RunID,
			Question:   question.Text,
			Answer:     resp.Answer,
			SQL:        resp.SQL,
			AnsweredAt: time.Now().UTC(),
		})
	}
	return resp
}

func (o *Orchestrator) run(ctx context.Context, logger zerolog.Logger, question *models.Question) *models.Response {
	trace := &models.Trace{}
	iterations := 0
	maxIterations := question.Config.MaxIterations
	if maxIterations <= 0 {
		maxIterations = models.DefaultMaxIterations
	}

	logger.Info().Str("question", question.Text).Msg("Run started")

	capabilities := o.executor.registry.Capabilities()
	plan, err := o.planner.Plan(ctx, question, capabilities)
	if err != nil {
		logger.Error().Err(err).Msg("Planning failed")
		return &models.Response{
			Status: models.StatusFailed,
			Answer: "I could not produce a plan for this question.",
		}
	}
	if plan == nil || len(plan.Steps) == 0 {
		logger.Error().Msg("Planner returned an empty plan")
		return &models.Response{
			Status: models.StatusFailed,
			Answer: "I could not produce a plan for this question.",
		}
	}
	state := StateExecuting
	logger.Debug().Str("state", string(state)).Int("steps", len(plan.Steps)).Msg("Plan ready")

	var answer string
	for {
		if ctx.Err() != nil {
			return o.partial(trace, iterations, "the run was canceled before completing")
		}

		step := plan.NextPending()
		if step == nil {
			// The replanner said CONTINUE with nothing left to do.
			logger.Warn().Msg("No pending steps remain without a FINISH decision")
			return o.partial(trace, iterations, "")
		}

		obs := o.executor.ExecuteStep(ctx, question, step, trace)
		trace.Append(step, obs)

		state = StateReplanning
		iterations++
		if iterations > maxIterations {
			logger.Warn().Int("iterations", maxIterations).Msg("Iteration budget exhausted")
			return o.partial(trace, maxIterations,
				fmt.Sprintf("the iteration budget of %d was exhausted", maxIterations))
		}

		decision, err := o.replanner.Replan(ctx, question, plan, trace)
		if err != nil {
			logger.Error().Err(err).Msg("Replanning failed")
			return o.partial(trace, iterations, "")
		}

		switch decision.Kind {
		case DecisionContinue:
			state = StateExecuting
		case DecisionReplan:
			if len(decision.Steps) == 0 {
				logger.Warn().Msg("REPLAN decision carried no steps")
				return o.partial(trace, iterations, "")
			}
			plan.ReplaceTail(decision.Steps)
			state = StateExecuting
			logger.Debug().Int("steps", len(decision.Steps)).Msg("Plan tail replaced")
		case DecisionFinish:
			answer = decision.Answer
			state = StateDone
		default:
			logger.Warn().Str("kind", string(decision.Kind)).Msg("Malformed replanner decision")
			return o.partial(trace, iterations, "")
		}

		if state == StateDone {
			break
		}
	}

	sql, result := trace.LastSQL()
	return &models.Response{
		Status:     models.StatusSuccess,
		Answer:     answer,
		SQL:        sql,
		Result:     result,
		Iterations: iterations,
	}
}

// partial builds the best answer available from the trace when the run
// cannot reach a FINISH decision.
func (o *Orchestrator) partial(trace *models.Trace, iterations int, reason string) *models.Response {
	if reason == "" {
		reason = "the run ended before a complete answer was reached"
	}

	answer := fmt.Sprintf("Partial result: %s.", reason)
	sql, result := trace.LastSQL()
	if last := trace.Last(); last != nil && last.Observation.Success && last.Observation.Summary != "" {
		answer += " Latest finding: " + last.Observation.Summary
	}

	return &models.Response{
		Status:     models.StatusPartial,
		Answer:     answer,
		SQL:        sql,
		Result:     result,
		Iterations: iterations,
	}
}
