// Package tools defines the invocation contract between the agent and
// its capabilities, plus the built-in tool set.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	pkgerrors "github.com/TFMV/scout/pkg/errors"
	"github.com/TFMV/scout/pkg/infrastructure/metrics"
	"github.com/TFMV/scout/pkg/models"
)

// Tool is one capability the agent can invoke. Implementations must be
// safe for concurrent use and must return errors rather than panic; the
// registry converts a panic that escapes anyway into an INTERNAL error.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Invoke(ctx context.Context, args map[string]any) (*Result, error)
}

// Result is the successful outcome of a tool invocation.
type Result struct {
	Summary string
	SQL     string
	Data    *models.ResultSet
}

// Capability describes a registered tool for planner context.
type Capability struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Registry holds the registered tools and mediates every invocation.
type Registry struct {
	tools     map[string]Tool
	logger    zerolog.Logger
	collector metrics.Collector
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger, collector metrics.Collector) *Registry {
	if collector == nil {
		collector = &metrics.NoOpCollector{}
	}
	return &Registry{
		tools:     make(map[string]Tool),
		logger:    logger,
		collector: collector,
	}
}

// Register adds a tool. Registering the same name twice replaces the
// earlier tool.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Capabilities lists the registered tools sorted by name.
func (r *Registry) Capabilities() []Capability {
	caps := make([]Capability, 0, len(r.tools))
	for _, t := range r.tools {
		caps = append(caps, Capability{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i].Name < caps[j].Name })
	return caps
}

// RenderCapabilities formats the tool set for an LLM prompt.
func (r *Registry) RenderCapabilities() string {
	var b strings.Builder
	for _, c := range r.Capabilities() {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
	}
	return b.String()
}

// Invoke runs the named tool, shielding the caller from panics and
// recording the invocation.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (result *Result, err error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidRequest,
			fmt.Sprintf("unknown tool %q", name))
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("tool", name).
				Interface("panic", rec).
				Msg("Tool panicked")
			result = nil
			err = pkgerrors.New(pkgerrors.CodeInternal,
				fmt.Sprintf("tool %s panicked: %v", name, rec))
		}
		r.collector.RecordToolInvocation(name, time.Since(start), err == nil)
	}()

	r.logger.Debug().Str("tool", name).Msg("Invoking tool")
	return tool.Invoke(ctx, args)
}

// stringArg extracts a required string argument.
// intArg reads an optional integer argument, accepting the float64
// that JSON decoding produces. Returns 0 when absent or malformed.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeInvalidRequest,
			fmt.Sprintf("missing required argument %q", key))
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", pkgerrors.New(pkgerrors.CodeInvalidRequest,
			fmt.Sprintf("argument %q must be a non-empty string", key))
	}
	return s, nil
}
