package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// StepStatus tracks the lifecycle of a single plan step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepExecuting StepStatus = "executing"
	StepDone      StepStatus = "done"
	StepFailed    StepStatus = "failed"
)

// Step is one atomic natural-language sub-task within a Plan.
type Step struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
}

// NewStep creates a pending step with a fresh ID.
func NewStep(description string) *Step {
	return &Step{
		ID:          uuid.NewString(),
		Description: description,
		Status:      StepPending,
	}
}

// Plan is an ordered sequence of steps produced by the planner. On a
// replan the remaining tail is wholesale-replaced; a plan is never
// mutated step-by-step.
type Plan struct {
	Steps []*Step `json:"steps"`
}

// NewPlan creates a plan from step descriptions. A plan is never empty
// at creation; callers must reject zero-step planner output first.
func NewPlan(descriptions []string) *Plan {
	steps := make([]*Step, 0, len(descriptions))
	for _, d := range descriptions {
		steps = append(steps, NewStep(d))
	}
	return &Plan{Steps: steps}
}

// NextPending returns the first step still awaiting execution, or nil.
func (p *Plan) NextPending() *Step {
	for _, s := range p.Steps {
		if s.Status == StepPending {
			return s
		}
	}
	return nil
}

// HasPending reports whether any step still awaits execution.
func (p *Plan) HasPending() bool {
	return p.NextPending() != nil
}

// Completed returns the steps that already reached a terminal status.
func (p *Plan) Completed() []*Step {
	var done []*Step
	for _, s := range p.Steps {
		if s.Status == StepDone || s.Status == StepFailed {
			done = append(done, s)
		}
	}
	return done
}

// ReplaceTail swaps every non-terminal step for a fresh tail built from
// the given descriptions. Completed steps are retained verbatim.
func (p *Plan) ReplaceTail(descriptions []string) {
	kept := p.Completed()
	steps := make([]*Step, 0, len(kept)+len(descriptions))
	steps = append(steps, kept...)
	for _, d := range descriptions {
		steps = append(steps, NewStep(d))
	}
	p.Steps = steps
}

// String renders the plan as a numbered list for planner context.
func (p *Plan) String() string {
	var b strings.Builder
	for i, s := range p.Steps {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, s.Status, s.Description)
	}
	return b.String()
}
