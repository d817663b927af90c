// Package errors provides standardized error types for the agent runtime.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the agent runtime and its infrastructure.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodePlanningFailed     = "PLANNING_FAILED"
	CodeStepFailed         = "STEP_FAILED"
	CodeSQLRejected        = "SQL_REJECTED"
	CodePoolExhausted      = "POOL_EXHAUSTED"
	CodeBudgetExhausted    = "BUDGET_EXHAUSTED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeQueryFailed        = "QUERY_FAILED"
	CodeConnectionFailed   = "CONNECTION_FAILED"
	CodeDeadlineExceeded   = "DEADLINE_EXCEEDED"
	CodeCanceled           = "CANCELED"
	CodeUnavailable        = "UNAVAILABLE"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInternal           = "INTERNAL_ERROR"
)

// AgentError represents a runtime error with code, message, and optional details.
type AgentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AgentError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by code.
func (e *AgentError) Is(target error) bool {
	t, ok := target.(*AgentError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail adds a single detail to the error.
func (e *AgentError) WithDetail(key string, value interface{}) *AgentError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Common errors.
var (
	ErrEmptyPlan          = &AgentError{Code: CodePlanningFailed, Message: "planner produced an empty plan"}
	ErrPoolExhausted      = &AgentError{Code: CodePoolExhausted, Message: "connection pool exhausted"}
	ErrPoolClosed         = &AgentError{Code: CodeUnavailable, Message: "connection pool is closed"}
	ErrQueryTimeout       = &AgentError{Code: CodeDeadlineExceeded, Message: "query execution timeout"}
	ErrHistoryUnavailable = &AgentError{Code: CodeServiceUnavailable, Message: "query history service unavailable"}
	ErrToolNotFound       = &AgentError{Code: CodeInvalidRequest, Message: "tool not found"}
)

// New creates a new AgentError with the given code and message.
func New(code, message string) *AgentError {
	return &AgentError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AgentError.
func Wrap(err error, code, message string) *AgentError {
	if err == nil {
		return nil
	}
	return &AgentError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...interface{}) *AgentError {
	if err == nil {
		return nil
	}
	return &AgentError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsRetryable reports whether the error is worth retrying within a step.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodePoolExhausted, CodeDeadlineExceeded, CodeConnectionFailed, CodeUnavailable:
		return true
	}
	return false
}

// IsSQLRejected checks if an error is a validator denial.
func IsSQLRejected(err error) bool {
	return GetCode(err) == CodeSQLRejected
}

// IsPoolExhausted checks if an error is a pool capacity failure.
func IsPoolExhausted(err error) bool {
	return GetCode(err) == CodePoolExhausted
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Code
	}
	return CodeInternal
}

// GetMessage extracts the error message from an error.
func GetMessage(err error) string {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Message
	}
	return err.Error()
}
