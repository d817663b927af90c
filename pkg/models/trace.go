package models

import (
	"fmt"
	"strings"
	"time"
)

// Observation is the recorded outcome of executing a step through a
// tool. Immutable once appended to the trace.
type Observation struct {
	Tool      string        `json:"tool"`
	Success   bool          `json:"success"`
	Summary   string        `json:"summary"`
	SQL       string        `json:"sql,omitempty"`
	Result    *ResultSet    `json:"result,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// TraceEntry pairs an executed step with its observation.
type TraceEntry struct {
	Step        *Step       `json:"step"`
	Observation Observation `json:"observation"`
}

// Trace is the append-only ordered history of step/observation pairs
// for a run. It is owned by a single run and never truncated; only the
// rendering handed to the planner is bounded.
type Trace struct {
	entries []TraceEntry
}

// Append records an executed step and its observation.
func (t *Trace) Append(step *Step, obs Observation) {
	t.entries = append(t.entries, TraceEntry{Step: step, Observation: obs})
}

// Len returns the number of recorded entries.
func (t *Trace) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the recorded entries in execution order.
func (t *Trace) Entries() []TraceEntry {
	out := make([]TraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Last returns the most recent entry, or nil when the trace is empty.
func (t *Trace) Last() *TraceEntry {
	if len(t.entries) == 0 {
		return nil
	}
	e := t.entries[len(t.entries)-1]
	return &e
}

// LastSQL returns the SQL text of the most recent successful SQL
// observation along with its result set, if any.
func (t *Trace) LastSQL() (string, *ResultSet) {
	for i := len(t.entries) - 1; i >= 0; i-- {
		obs := t.entries[i].Observation
		if obs.Success && obs.SQL != "" {
			return obs.SQL, obs.Result
		}
	}
	return "", nil
}

// Render produces the presentation of the trace handed to the planner
// and replanner. When the rendering would exceed maxBytes the oldest
// entries are elided; the trace itself is untouched.
func (t *Trace) Render(maxBytes int) string {
	var parts []string
	for i, e := range t.entries {
		status := "ok"
		if !e.Observation.Success {
			status = "failed"
			if e.Observation.ErrorCode != "" {
				status = fmt.Sprintf("failed (%s)", e.Observation.ErrorCode)
			}
		}
		part := fmt.Sprintf("step %d: %s\ntool: %s [%s]\n%s",
			i+1, e.Step.Description, e.Observation.Tool, status, e.Observation.Summary)
		if !e.Observation.Success && e.Observation.Error != "" {
			part += "\nerror: " + e.Observation.Error
		}
		parts = append(parts, part)
	}

	rendered := strings.Join(parts, "\n\n")
	if maxBytes <= 0 || len(rendered) <= maxBytes {
		return rendered
	}

	// Drop oldest entries until the rendering fits.
	for len(parts) > 1 {
		parts = parts[1:]
		rendered = "(earlier steps elided)\n\n" + strings.Join(parts, "\n\n")
		if len(rendered) <= maxBytes {
			return rendered
		}
	}
	if len(rendered) > maxBytes {
		rendered = rendered[:maxBytes]
	}
	return rendered
}
