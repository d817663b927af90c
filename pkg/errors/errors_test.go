package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(CodeSQLRejected, "statement denied")
	require.NotNil(t, err)
	assert.Equal(t, CodeSQLRejected, err.Code)
	assert.Equal(t, "SQL_REJECTED: statement denied", err.Error())
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, CodeConnectionFailed, "failed to reach data source")

	require.NotNil(t, err)
	assert.Equal(t, CodeConnectionFailed, err.Code)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeInternal, "should vanish"))
	assert.Nil(t, Wrapf(nil, CodeInternal, "should vanish %d", 1))
}

func TestIsComparesByCode(t *testing.T) {
	err := Wrap(fmt.Errorf("busy"), CodePoolExhausted, "no lease available")
	assert.True(t, errors.Is(err, ErrPoolExhausted))
	assert.False(t, errors.Is(err, ErrPoolClosed))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeSQLRejected, GetCode(New(CodeSQLRejected, "denied")))
	assert.Equal(t, CodeInternal, GetCode(fmt.Errorf("plain error")))

	wrapped := fmt.Errorf("outer: %w", New(CodeQueryFailed, "boom"))
	assert.Equal(t, CodeQueryFailed, GetCode(wrapped))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrPoolExhausted))
	assert.True(t, IsRetryable(ErrQueryTimeout))
	assert.False(t, IsRetryable(New(CodeSQLRejected, "denied")))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
}

func TestWithDetail(t *testing.T) {
	err := New(CodeSQLRejected, "denied").
		WithDetail("rule", "multi_statement").
		WithDetail("sql", "SELECT 1; DROP TABLE t")

	assert.Equal(t, "multi_statement", err.Details["rule"])
	assert.Len(t, err.Details, 2)
}
