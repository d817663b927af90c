package knowledge

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/TFMV/scout/pkg/errors"
	"github.com/TFMV/scout/pkg/infrastructure/pool"
)

func newTestRepo(t *testing.T) *SchemaRepository {
	t.Helper()
	logger := zerolog.New(zerolog.NewTestWriter(t))
	p, err := pool.New(pool.Config{DSN: ":memory:"}, logger, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	lease, err := p.Acquire(context.Background(), "setup")
	require.NoError(t, err)
	defer lease.Release()
	_, err = lease.Query(context.Background(),
		"CREATE TABLE orders (id INTEGER NOT NULL, amount DOUBLE, placed_at TIMESTAMP)", 0)
	require.NoError(t, err)

	return NewSchemaRepository(p, logger)
}

func TestListTables(t *testing.T) {
	repo := newTestRepo(t)

	tables, err := repo.ListTables(context.Background())
	require.NoError(t, err)
	assert.Contains(t, tables, "main.orders")
}

func TestDescribeTable(t *testing.T) {
	repo := newTestRepo(t)

	ts, err := repo.DescribeTable(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, "main", ts.Schema)
	assert.Equal(t, "orders", ts.Name)
	require.Len(t, ts.Columns, 3)
	assert.Equal(t, "id", ts.Columns[0].Name)
	assert.False(t, ts.Columns[0].Nullable)
	assert.True(t, ts.Columns[1].Nullable)

	rendered := ts.Render()
	assert.Contains(t, rendered, "main.orders")
	assert.Contains(t, rendered, "placed_at")
}

func TestDescribeTableCached(t *testing.T) {
	repo := newTestRepo(t)

	first, err := repo.DescribeTable(context.Background(), "orders")
	require.NoError(t, err)
	require.Equal(t, 1, repo.cache.Size())

	second, err := repo.DescribeTable(context.Background(), "main.orders")
	require.NoError(t, err)
	assert.Same(t, first, second, "qualified and bare names share one cache entry")
}

func TestDescribeTableNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.DescribeTable(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInvalidRequest, pkgerrors.GetCode(err))
}
