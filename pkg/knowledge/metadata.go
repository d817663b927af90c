// Package knowledge gives the agent read access to database metadata
// and to previously answered questions.
package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	pkgerrors "github.com/TFMV/scout/pkg/errors"
	"github.com/TFMV/scout/pkg/infrastructure/pool"
)

// Column describes one column of a table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// TableSchema describes one table.
type TableSchema struct {
	Schema  string   `json:"schema"`
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Render formats the schema for planner context.
func (t *TableSchema) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "table %s.%s:\n", t.Schema, t.Name)
	for _, c := range t.Columns {
		null := "not null"
		if c.Nullable {
			null = "nullable"
		}
		fmt.Fprintf(&b, "  %s %s %s\n", c.Name, c.Type, null)
	}
	return b.String()
}

// SchemaRepository reads table metadata through the connection pool.
// Described tables are cached briefly to keep replanning cycles from
// re-querying information_schema.
type SchemaRepository struct {
	pool   pool.ConnectionPool
	cache  *SchemaCache
	logger zerolog.Logger
}

// NewSchemaRepository creates a schema repository.
func NewSchemaRepository(p pool.ConnectionPool, logger zerolog.Logger) *SchemaRepository {
	return &SchemaRepository{
		pool:   p,
		cache:  NewSchemaCache(100, time.Minute),
		logger: logger,
	}
}

// ListTables returns every user table as schema-qualified names.
func (r *SchemaRepository) ListTables(ctx context.Context) ([]string, error) {
	lease, err := r.pool.Acquire(ctx, "metadata")
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	rs, err := lease.Query(ctx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
		ORDER BY table_schema, table_name
	`, 0)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to list tables")
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeQueryFailed, "failed to list tables")
	}

	tables := make([]string, 0, rs.RowCount)
	for _, row := range rs.Rows {
		schema, _ := row[0].(string)
		name, _ := row[1].(string)
		tables = append(tables, schema+"."+name)
	}
	return tables, nil
}

// DescribeTable returns the columns of one table. The name may be bare
// or schema-qualified.
func (r *SchemaRepository) DescribeTable(ctx context.Context, table string) (*TableSchema, error) {
	schema := "main"
	name := table
	if i := strings.IndexByte(table, '.'); i >= 0 {
		schema = table[:i]
		name = table[i+1:]
	}

	key := schema + "." + name
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	lease, err := r.pool.Acquire(ctx, "metadata")
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	rs, err := lease.Query(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`, 0, schema, name)
	if err != nil {
		r.logger.Error().Err(err).Str("table", table).Msg("Failed to describe table")
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeQueryFailed, "failed to describe table")
	}
	if rs.RowCount == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidRequest,
			fmt.Sprintf("table %q not found", table))
	}

	ts := &TableSchema{Schema: schema, Name: name}
	for _, row := range rs.Rows {
		colName, _ := row[0].(string)
		colType, _ := row[1].(string)
		nullable, _ := row[2].(string)
		ts.Columns = append(ts.Columns, Column{
			Name:     colName,
			Type:     colType,
			Nullable: strings.EqualFold(nullable, "YES"),
		})
	}
	r.cache.Put(key, ts)
	return ts, nil
}
