package tools

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/TFMV/scout/pkg/errors"
	"github.com/TFMV/scout/pkg/infrastructure/pool"
	"github.com/TFMV/scout/pkg/knowledge"
	"github.com/TFMV/scout/pkg/validator"
)

func newTestPool(t *testing.T) pool.ConnectionPool {
	t.Helper()
	logger := zerolog.New(zerolog.NewTestWriter(t))
	p, err := pool.New(pool.Config{DSN: ":memory:"}, logger, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	lease, err := p.Acquire(context.Background(), "setup")
	require.NoError(t, err)
	defer lease.Release()
	_, err = lease.Query(context.Background(),
		"CREATE TABLE users (id INTEGER, name VARCHAR)", 0)
	require.NoError(t, err)
	_, err = lease.Query(context.Background(),
		"INSERT INTO users VALUES (1, 'ada'), (2, 'grace'), (3, 'edsger')", 0)
	require.NoError(t, err)

	return p
}

func TestExecuteSQLTool(t *testing.T) {
	p := newTestPool(t)
	tool := NewExecuteSQLTool(validator.New(), p, nil, zerolog.Nop(), 0)

	result, err := tool.Invoke(context.Background(), map[string]any{
		"sql": "SELECT name FROM users ORDER BY id",
	})
	require.NoError(t, err)
	assert.Equal(t, "3 row(s)", result.Summary)
	assert.Contains(t, result.SQL, "LIMIT 10000")
	require.NotNil(t, result.Data)
	assert.Equal(t, 3, result.Data.RowCount)
	assert.Equal(t, "ada", result.Data.Rows[0][0])
}

func TestExecuteSQLToolTightenedRowCap(t *testing.T) {
	p := newTestPool(t)
	tool := NewExecuteSQLTool(validator.New(), p, nil, zerolog.Nop(), 0)

	result, err := tool.Invoke(context.Background(), map[string]any{
		"sql":      "SELECT name FROM users ORDER BY id",
		"max_rows": 2,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Data)
	assert.Equal(t, 2, result.Data.RowCount)
	assert.True(t, result.Data.Truncated)

	// A cap wider than the configured one is ignored.
	result, err = tool.Invoke(context.Background(), map[string]any{
		"sql":      "SELECT name FROM users ORDER BY id",
		"max_rows": float64(20000),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Data.RowCount)
	assert.False(t, result.Data.Truncated)
}

func TestExecuteSQLToolRejectsWrites(t *testing.T) {
	p := newTestPool(t)
	tool := NewExecuteSQLTool(validator.New(), p, nil, zerolog.Nop(), 0)

	_, err := tool.Invoke(context.Background(), map[string]any{
		"sql": "DELETE FROM users",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsSQLRejected(err))

	// The table must be untouched.
	result, err := tool.Invoke(context.Background(), map[string]any{
		"sql": "SELECT COUNT(*) FROM users",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Data.Rows[0][0])
}

func TestExecuteSQLToolReleasesLeaseOnFailure(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	p, err := pool.New(pool.Config{DSN: ":memory:", BaseConnections: 1}, logger, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	tool := NewExecuteSQLTool(validator.New(), p, nil, zerolog.Nop(), 0)

	// Query fails (missing table) but the lease must come back.
	for i := 0; i < 3; i++ {
		_, err := tool.Invoke(context.Background(), map[string]any{
			"sql": "SELECT * FROM does_not_exist",
		})
		require.Error(t, err)
		assert.Equal(t, pkgerrors.CodeQueryFailed, pkgerrors.GetCode(err))
	}
	assert.Equal(t, 0, p.Stats().ActiveLeases)
}

func TestSchemaTool(t *testing.T) {
	p := newTestPool(t)
	repo := knowledge.NewSchemaRepository(p, zerolog.Nop())
	tool := NewSchemaTool(repo)

	result, err := tool.Invoke(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "main.users")

	result, err = tool.Invoke(context.Background(), map[string]any{"table": "users"})
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "name")
}

func TestExplainTool(t *testing.T) {
	p := newTestPool(t)
	tool := NewExplainTool(validator.New(), p, zerolog.Nop())

	result, err := tool.Invoke(context.Background(), map[string]any{
		"sql": "SELECT COUNT(*) FROM users",
	})
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "plan for:")

	_, err = tool.Invoke(context.Background(), map[string]any{
		"sql": "DROP TABLE users",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsSQLRejected(err))
}

type panickyTool struct{}

func (panickyTool) Name() string                { return "panicky" }
func (panickyTool) Description() string         { return "panics" }
func (panickyTool) InputSchema() map[string]any { return map[string]any{} }
func (panickyTool) Invoke(context.Context, map[string]any) (*Result, error) {
	panic("boom")
}

func TestRegistryRecoversPanic(t *testing.T) {
	reg := NewRegistry(zerolog.Nop(), nil)
	reg.Register(panickyTool{})

	result, err := reg.Invoke(context.Background(), "panicky", nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, pkgerrors.CodeInternal, pkgerrors.GetCode(err))
	assert.Contains(t, err.Error(), "boom")
}

func TestRegistryUnknownTool(t *testing.T) {
	reg := NewRegistry(zerolog.Nop(), nil)

	_, err := reg.Invoke(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInvalidRequest, pkgerrors.GetCode(err))
}

func TestRegistryCapabilitiesSorted(t *testing.T) {
	p := newTestPool(t)
	reg := NewRegistry(zerolog.Nop(), nil)
	reg.Register(NewExecuteSQLTool(validator.New(), p, nil, zerolog.Nop(), 0))
	reg.Register(NewExplainTool(validator.New(), p, zerolog.Nop()))
	reg.Register(NewSchemaTool(knowledge.NewSchemaRepository(p, zerolog.Nop())))

	caps := reg.Capabilities()
	require.Len(t, caps, 3)
	assert.Equal(t, "execute_sql", caps[0].Name)
	assert.Equal(t, "explain_query", caps[1].Name)
	assert.Equal(t, "get_table_schema", caps[2].Name)

	rendered := reg.RenderCapabilities()
	assert.Contains(t, rendered, "execute_sql")
}

type stubHistoryClient struct {
	searchFn func(ctx context.Context, question string, limit int) ([]knowledge.HistoryEntry, error)
}

func (s *stubHistoryClient) Search(ctx context.Context, question string, limit int) ([]knowledge.HistoryEntry, error) {
	return s.searchFn(ctx, question, limit)
}

func (s *stubHistoryClient) Record(ctx context.Context, entry knowledge.HistoryEntry) error {
	return nil
}

func TestHistoryToolDegradesWhenUnavailable(t *testing.T) {
	client := &stubHistoryClient{
		searchFn: func(context.Context, string, int) ([]knowledge.HistoryEntry, error) {
			return nil, pkgerrors.New(pkgerrors.CodeServiceUnavailable, "history down")
		},
	}
	tool := NewHistoryTool(client, zerolog.Nop())

	result, err := tool.Invoke(context.Background(), map[string]any{"question": "top customers"})
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "unavailable")
}

func TestHistoryToolRendersMatches(t *testing.T) {
	client := &stubHistoryClient{
		searchFn: func(context.Context, string, int) ([]knowledge.HistoryEntry, error) {
			return []knowledge.HistoryEntry{
				{Question: "total revenue", Answer: "1.2M", SQL: "SELECT SUM(amount) FROM orders LIMIT 10000"},
			}, nil
		},
	}
	tool := NewHistoryTool(client, zerolog.Nop())

	result, err := tool.Invoke(context.Background(), map[string]any{"question": "revenue"})
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "total revenue")
	assert.Contains(t, result.Summary, "SELECT SUM(amount)")
}
