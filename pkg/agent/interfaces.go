// Package agent implements the plan/execute/replan loop that turns a
// natural-language question into an answer backed by SQL results.
package agent

import (
	"context"

	"github.com/TFMV/scout/pkg/models"
	"github.com/TFMV/scout/pkg/tools"
)

// Planner produces the initial plan for a question.
type Planner interface {
	Plan(ctx context.Context, question *models.Question, capabilities []tools.Capability) (*models.Plan, error)
}

// DecisionKind is the replanner's verdict after a step.
type DecisionKind string

const (
	// DecisionContinue keeps executing the current plan.
	DecisionContinue DecisionKind = "CONTINUE"
	// DecisionReplan replaces the remaining steps with a new tail.
	DecisionReplan DecisionKind = "REPLAN"
	// DecisionFinish ends the run with a final answer.
	DecisionFinish DecisionKind = "FINISH"
)

// Decision is the replanner's output. Steps is set for REPLAN, Answer
// for FINISH.
type Decision struct {
	Kind   DecisionKind `json:"kind"`
	Steps  []string     `json:"steps,omitempty"`
	Answer string       `json:"answer,omitempty"`
}

// Replanner inspects the trace after each executed step and decides how
// the run proceeds.
type Replanner interface {
	Replan(ctx context.Context, question *models.Question, plan *models.Plan, trace *models.Trace) (*Decision, error)
}

// ToolCall names a tool and its arguments.
type ToolCall struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// ToolSelector maps a plan step onto a concrete tool invocation. prior
// holds the step's earlier failed attempts, oldest first, so a retry
// after a rejection can adjust its arguments instead of repeating them.
type ToolSelector interface {
	Select(ctx context.Context, question *models.Question, step *models.Step, prior []models.Observation, trace *models.Trace, capabilities []tools.Capability) (*ToolCall, error)
}
