package models

// RunStatus is the terminal status of a run.
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusPartial RunStatus = "partial"
	StatusFailed  RunStatus = "failed"
)

// ResultSet is a plain tabular payload: column names plus row values.
type ResultSet struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
}

// Response is the terminal artifact of a run. Every run produces one;
// the runtime never surfaces an unhandled fault to the caller.
type Response struct {
	RunID      string     `json:"run_id"`
	Status     RunStatus  `json:"status"`
	Answer     string     `json:"answer"`
	Result     *ResultSet `json:"result,omitempty"`
	SQL        string     `json:"sql,omitempty"`
	Iterations int        `json:"iterations"`
}
