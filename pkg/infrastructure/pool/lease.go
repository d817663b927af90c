package pool

import (
	"context"
	"database/sql"
	"sync"
	"time"

	pkgerrors "github.com/TFMV/scout/pkg/errors"
	"github.com/TFMV/scout/pkg/models"
)

// Lease is exclusive use of one pooled connection. A lease belongs to
// the owner that acquired it and is not shared across goroutines.
type Lease struct {
	ID         string
	OwnerID    string
	AcquiredAt time.Time

	conn *sql.Conn
	pool *connectionPool

	releaseOnce sync.Once
}

// Query executes a statement on the leased connection under the pool's
// per-statement timeout, fetching at most maxRows rows. The lease stays
// held afterwards; queries on a released lease fail with CONNECTION_FAILED.
func (l *Lease) Query(ctx context.Context, query string, maxRows int, args ...any) (*models.ResultSet, error) {
	queryCtx, cancel := context.WithTimeout(ctx, l.pool.config.StatementTimeout)
	defer cancel()

	start := time.Now()
	rows, err := l.conn.QueryContext(queryCtx, query, args...)
	if err != nil {
		l.pool.collector.RecordQueryExecution(time.Since(start), false)
		if queryCtx.Err() == context.DeadlineExceeded {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeDeadlineExceeded,
				"statement exceeded the query timeout").
				WithDetail("timeout", l.pool.config.StatementTimeout.String())
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeQueryFailed, "query execution failed")
	}
	defer rows.Close()

	rs, err := resultSetFromRows(rows, maxRows)
	duration := time.Since(start)
	l.pool.collector.RecordQueryExecution(duration, err == nil)
	if err != nil {
		return nil, err
	}

	l.pool.logger.Debug().
		Str("lease", l.ID).
		Int("rows", rs.RowCount).
		Bool("truncated", rs.Truncated).
		Dur("duration", duration).
		Msg("Query executed")

	return rs, nil
}

// Release returns the connection to the pool. Safe to call more than
// once; only the first call has effect.
func (l *Lease) Release() {
	l.releaseOnce.Do(func() {
		l.pool.release(l)
	})
}
