package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"

	pkgerrors "github.com/TFMV/scout/pkg/errors"
	"github.com/TFMV/scout/pkg/models"
	"github.com/TFMV/scout/pkg/tools"
)

// traceRenderLimit bounds the trace rendering handed to the model so
// long runs do not blow the context window.
const traceRenderLimit = 8192

const plannerSystemPrompt = `You are a data analyst planning how to answer a question using SQL.
Break the question into a short ordered list of concrete sub-tasks.
Each sub-task must be achievable with one of the available tools.
Start by discovering the schema unless the question names exact tables and columns.
Only plan read-only work; never plan to modify data.`

const replannerSystemPrompt = `You are reviewing an in-progress analysis run.
Given the question, the plan and what has happened so far, decide what to do next:
- FINISH with a final answer when the gathered results already answer the question.
- REPLAN with replacement steps when the remaining plan no longer fits what was learned
  (for example a failed query that needs a different approach).
- CONTINUE when the current plan is still right and steps remain.
Answers must come from executed query results, never from your own knowledge.`

const selectorSystemPrompt = `You map one analysis sub-task onto a single tool call.
Choose the tool and arguments that accomplish exactly this sub-task.
SQL must be a single read-only SELECT or WITH statement.`

// LLMPlanner implements Planner, Replanner and ToolSelector on one
// chat model via structured function calls.
type LLMPlanner struct {
	model  llms.Model
	logger zerolog.Logger
}

// NewLLMPlanner creates an LLM-backed planner.
func NewLLMPlanner(model llms.Model, logger zerolog.Logger) *LLMPlanner {
	return &LLMPlanner{model: model, logger: logger}
}

var (
	_ Planner      = (*LLMPlanner)(nil)
	_ Replanner    = (*LLMPlanner)(nil)
	_ ToolSelector = (*LLMPlanner)(nil)
)

// Plan asks the model for an ordered step list.
func (p *LLMPlanner) Plan(ctx context.Context, question *models.Question, capabilities []tools.Capability) (*models.Plan, error) {
	proposePlan := llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        "propose_plan",
			Description: "Submit the ordered list of sub-tasks that will answer the question.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"steps": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Sub-task descriptions in execution order.",
					},
				},
				"required": []string{"steps"},
			},
		},
	}

	prompt := fmt.Sprintf("Question: %s\n\nAvailable tools:\n%s",
		question.Text, renderCapabilities(capabilities))

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, plannerSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := p.model.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{proposePlan}))
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodePlanningFailed, "planner model call failed")
	}

	var payload struct {
		Steps []string `json:"steps"`
	}
	if err := decodeToolCall(resp, "propose_plan", &payload); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodePlanningFailed, "planner returned no usable plan")
	}

	steps := trimSteps(payload.Steps)
	if len(steps) == 0 {
		return nil, pkgerrors.ErrEmptyPlan
	}

	p.logger.Debug().Int("steps", len(steps)).Msg("Planner produced plan")
	return models.NewPlan(steps), nil
}

// Replan asks the model for a CONTINUE/REPLAN/FINISH decision.
func (p *LLMPlanner) Replan(ctx context.Context, question *models.Question, plan *models.Plan, trace *models.Trace) (*Decision, error) {
	proposeDecision := llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        "propose_decision",
			Description: "Decide how the run proceeds.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"kind": map[string]any{
						"type": "string",
						"enum": []string{"CONTINUE", "REPLAN", "FINISH"},
					},
					"steps": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Replacement sub-tasks, required for REPLAN.",
					},
					"answer": map[string]any{
						"type":        "string",
						"description": "Final answer, required for FINISH.",
					},
				},
				"required": []string{"kind"},
			},
		},
	}

	prompt := fmt.Sprintf("Question: %s\n\nPlan:\n%s\nExecution so far:\n%s",
		question.Text, plan.String(), trace.Render(traceRenderLimit))

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, replannerSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := p.model.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{proposeDecision}))
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeStepFailed, "replanner model call failed")
	}

	var decision Decision
	if err := decodeToolCall(resp, "propose_decision", &decision); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeStepFailed, "replanner returned no usable decision")
	}
	decision.Steps = trimSteps(decision.Steps)

	p.logger.Debug().Str("kind", string(decision.Kind)).Msg("Replanner decision")
	return &decision, nil
}

// Select asks the model which tool call accomplishes the step.
func (p *LLMPlanner) Select(ctx context.Context, question *models.Question, step *models.Step, prior []models.Observation, trace *models.Trace, capabilities []tools.Capability) (*ToolCall, error) {
	selectTool := llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        "select_tool",
			Description: "Choose the tool call for this sub-task.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"tool": map[string]any{
						"type": "string",
					},
					"arguments": map[string]any{
						"type":        "object",
						"description": "Arguments matching the tool's input schema.",
					},
				},
				"required": []string{"tool"},
			},
		},
	}

	prompt := fmt.Sprintf("Question: %s\n\nCurrent sub-task: %s\n\nAvailable tools:\n%s\nExecution so far:\n%s",
		question.Text, step.Description, renderCapabilities(capabilities), trace.Render(traceRenderLimit))
	if len(prior) > 0 {
		prompt += "\nEarlier attempts at this sub-task failed; do not repeat them unchanged:\n"
		for i, obs := range prior {
			prompt += fmt.Sprintf("attempt %d: [%s] %s", i+1, obs.ErrorCode, obs.Error)
			if obs.SQL != "" {
				prompt += "\n  sql: " + obs.SQL
			}
			prompt += "\n"
		}
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, selectorSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := p.model.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{selectTool}))
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeStepFailed, "tool selection model call failed")
	}

	var call ToolCall
	if err := decodeToolCall(resp, "select_tool", &call); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeStepFailed, "model selected no usable tool")
	}
	if call.Tool == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStepFailed, "model selected no tool")
	}
	return &call, nil
}

// decodeToolCall finds the named function call in the model response
// and unmarshals its arguments into out.
func decodeToolCall(resp *llms.ContentResponse, name string, out any) error {
	if resp == nil || len(resp.Choices) == 0 {
		return fmt.Errorf("model returned no choices")
	}
	for _, tc := range resp.Choices[0].ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != name {
			continue
		}
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), out); err != nil {
			return fmt.Errorf("failed to parse %s arguments: %w", name, err)
		}
		return nil
	}
	return fmt.Errorf("model did not call %s", name)
}

func renderCapabilities(capabilities []tools.Capability) string {
	var b strings.Builder
	for _, c := range capabilities {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
	}
	return b.String()
}

func trimSteps(steps []string) []string {
	out := steps[:0]
	for _, s := range steps {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
