// Package pool provides bounded database connection leasing for DuckDB.
//
// Capacity is base connections plus a fixed overflow, enforced with a
// weighted semaphore. A caller that cannot obtain a lease within the
// acquire timeout receives a retryable POOL_EXHAUSTED error instead of
// queueing indefinitely.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	pkgerrors "github.com/TFMV/scout/pkg/errors"
	"github.com/TFMV/scout/pkg/infrastructure/metrics"
	"github.com/TFMV/scout/pkg/models"
)

// Config represents pool configuration.
type Config struct {
	DSN               string        `json:"dsn"`
	BaseConnections   int           `json:"base_connections"`
	OverflowLimit     int           `json:"overflow_limit"`
	AcquireTimeout    time.Duration `json:"acquire_timeout"`
	StatementTimeout  time.Duration `json:"statement_timeout"`
	ConnMaxLifetime   time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime   time.Duration `json:"conn_max_idle_time"`
	HealthCheckPeriod time.Duration `json:"health_check_period"`
	ConnectionTimeout time.Duration `json:"connection_timeout"`
}

// Stats represents connection pool statistics.
type Stats struct {
	Capacity          int           `json:"capacity"`
	ActiveLeases      int           `json:"active_leases"`
	OpenConnections   int           `json:"open_connections"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	ExhaustedCount    int64         `json:"exhausted_count"`
	LastHealthCheck   time.Time     `json:"last_health_check"`
	HealthCheckStatus string        `json:"health_check_status"`
}

// ConnectionPool hands out bounded connection leases.
type ConnectionPool interface {
	// Acquire obtains a lease for the given owner, waiting at most the
	// configured acquire timeout.
	Acquire(ctx context.Context, ownerID string) (*Lease, error)
	// Stats returns pool statistics.
	Stats() Stats
	// HealthCheck performs a health check on the pool.
	HealthCheck(ctx context.Context) error
	// Close closes the connection pool.
	Close() error
}

type connectionPool struct {
	db     *sql.DB
	config Config
	logger zerolog.Logger
	sem    *semaphore.Weighted

	closed atomic.Bool

	lastHealthCheck atomic.Int64 // Unix timestamp
	healthStatus    atomic.Value // string

	ctx    context.Context
	cancel context.CancelFunc

	activeLeases   atomic.Int64
	waitCount      atomic.Int64
	waitDuration   atomic.Int64
	exhaustedCount atomic.Int64

	collector metrics.Collector
}

// New creates a new connection pool.
func New(cfg Config, logger zerolog.Logger, collector metrics.Collector) (ConnectionPool, error) {
	if cfg.DSN == "" {
		cfg.DSN = ":memory:"
	}
	if cfg.BaseConnections <= 0 {
		cfg.BaseConnections = 5
	}
	if cfg.OverflowLimit < 0 {
		cfg.OverflowLimit = 0
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = 30 * time.Second
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.ConnMaxIdleTime <= 0 {
		cfg.ConnMaxIdleTime = 10 * time.Minute
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 30 * time.Second
	}
	if collector == nil {
		collector = &metrics.NoOpCollector{}
	}

	capacity := cfg.BaseConnections + cfg.OverflowLimit

	logger.Info().
		Str("dsn", maskDSN(cfg.DSN)).
		Int("base", cfg.BaseConnections).
		Int("overflow", cfg.OverflowLimit).
		Dur("acquire_timeout", cfg.AcquireTimeout).
		Dur("statement_timeout", cfg.StatementTimeout).
		Msg("Creating DuckDB connection pool")

	db, err := sql.Open("duckdb", cfg.DSN)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to open database")
	}

	db.SetMaxOpenConns(capacity)
	db.SetMaxIdleConns(cfg.BaseConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithCancel(context.Background())

	pool := &connectionPool{
		db:        db,
		config:    cfg,
		logger:    logger,
		sem:       semaphore.NewWeighted(int64(capacity)),
		ctx:       ctx,
		cancel:    cancel,
		collector: collector,
	}
	pool.healthStatus.Store("unknown")

	connCtx, connCancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer connCancel()

	if err := pool.HealthCheck(connCtx); err != nil {
		db.Close()
		cancel()
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "initial health check failed")
	}

	if cfg.HealthCheckPeriod > 0 {
		go pool.healthCheckRoutine(ctx)
	}

	return pool, nil
}

// Acquire obtains a lease, blocking up to the acquire timeout for a
// free slot. The returned lease must be released exactly once; Release
// is idempotent so deferred double-release is safe.
func (p *connectionPool) Acquire(ctx context.Context, ownerID string) (*Lease, error) {
	if p.closed.Load() {
		return nil, pkgerrors.ErrPoolClosed
	}

	start := time.Now()
	p.waitCount.Add(1)

	acquireCtx, cancel := context.WithTimeout(ctx, p.config.AcquireTimeout)
	defer cancel()

	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		wait := time.Since(start)
		p.waitDuration.Add(int64(wait))

		if ctx.Err() != nil {
			return nil, pkgerrors.Wrap(ctx.Err(), pkgerrors.CodeCanceled, "acquire canceled")
		}
		p.exhaustedCount.Add(1)
		p.collector.IncrementPoolExhaustion()
		p.logger.Warn().
			Str("owner", ownerID).
			Dur("waited", wait).
			Int64("active", p.activeLeases.Load()).
			Msg("Connection pool exhausted")
		return nil, pkgerrors.Wrap(err, pkgerrors.CodePoolExhausted,
			"no connection available within acquire timeout").
			WithDetail("owner", ownerID).
			WithDetail("waited", wait.String())
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to open connection")
	}

	wait := time.Since(start)
	p.waitDuration.Add(int64(wait))
	active := p.activeLeases.Add(1)
	p.collector.RecordLeaseAcquisition(wait)
	p.collector.UpdateActiveLeases(int(active))

	lease := &Lease{
		ID:         newLeaseID(),
		OwnerID:    ownerID,
		AcquiredAt: time.Now(),
		conn:       conn,
		pool:       p,
	}

	p.logger.Debug().
		Str("lease", lease.ID).
		Str("owner", ownerID).
		Dur("waited", wait).
		Msg("Connection lease acquired")

	return lease, nil
}

func (p *connectionPool) release(lease *Lease) {
	if err := lease.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		p.logger.Error().Err(err).Str("lease", lease.ID).Msg("Failed to return connection")
	}
	p.sem.Release(1)
	active := p.activeLeases.Add(-1)
	p.collector.UpdateActiveLeases(int(active))

	p.logger.Debug().
		Str("lease", lease.ID).
		Str("owner", lease.OwnerID).
		Dur("held", time.Since(lease.AcquiredAt)).
		Msg("Connection lease released")
}

// Stats returns pool statistics.
func (p *connectionPool) Stats() Stats {
	dbStats := p.db.Stats()
	return Stats{
		Capacity:          p.config.BaseConnections + p.config.OverflowLimit,
		ActiveLeases:      int(p.activeLeases.Load()),
		OpenConnections:   dbStats.OpenConnections,
		Idle:              dbStats.Idle,
		WaitCount:         p.waitCount.Load(),
		WaitDuration:      time.Duration(p.waitDuration.Load()),
		ExhaustedCount:    p.exhaustedCount.Load(),
		LastHealthCheck:   time.Unix(p.lastHealthCheck.Load(), 0),
		HealthCheckStatus: p.getHealthStatus(),
	}
}

// HealthCheck performs a health check on the pool.
func (p *connectionPool) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return pkgerrors.ErrPoolClosed
	}

	if err := p.db.PingContext(ctx); err != nil {
		p.updateHealthStatus("unhealthy", err.Error())
		return pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "health check ping failed")
	}

	var result int
	err := p.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	if err != nil || result != 1 {
		p.updateHealthStatus("unhealthy", "query test failed")
		return pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "health check query failed")
	}

	p.updateHealthStatus("healthy", "")
	return nil
}

// Close closes the connection pool.
func (p *connectionPool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	p.logger.Info().Msg("Closing DuckDB connection pool")
	p.cancel()

	if err := p.db.Close(); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to close database")
	}
	return nil
}

// healthCheckRoutine performs periodic health checks until ctx is cancelled.
func (p *connectionPool) healthCheckRoutine(ctx context.Context) {
	ticker := time.NewTicker(p.config.HealthCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := p.HealthCheck(probeCtx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error().Err(err).Msg("Periodic health check failed")
			}
			cancel()
		}
	}
}

func (p *connectionPool) updateHealthStatus(status, detail string) {
	p.lastHealthCheck.Store(time.Now().Unix())
	p.healthStatus.Store(status)

	if status == "unhealthy" && detail != "" {
		p.logger.Warn().
			Str("status", status).
			Str("detail", detail).
			Msg("Connection pool health status changed")
	}
}

func (p *connectionPool) getHealthStatus() string {
	if v := p.healthStatus.Load(); v != nil {
		return v.(string)
	}
	return "unknown"
}

var leaseCounter atomic.Uint64

func newLeaseID() string {
	n := leaseCounter.Add(1)
	return "lease-" + time.Now().Format("20060102T150405") + "-" + itoa(n)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// maskDSN hides sensitive information but keeps enough of the string to
// be recognisable in logs. ":memory:" is returned verbatim; URL-like
// DSNs get user-password and sensitive query params redacted; plain
// paths keep their first and last three runes.
func maskDSN(dsn string) string {
	if dsn == "" || dsn == ":memory:" {
		return dsn
	}

	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		if u.User != nil {
			if _, has := u.User.Password(); has {
				u.User = url.UserPassword(u.User.Username(), "****")
			}
		}
		q := u.Query()
		for key := range q {
			lower := strings.ToLower(key)
			if strings.Contains(lower, "token") || strings.Contains(lower, "secret") ||
				strings.Contains(lower, "password") || strings.Contains(lower, "key") {
				q.Set(key, "****")
			}
		}
		u.RawQuery = q.Encode()
		return u.String()
	}

	runes := []rune(dsn)
	if len(runes) <= 6 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:3]) + strings.Repeat("*", len(runes)-6) + string(runes[len(runes)-3:])
}

// ensure interface compliance
var _ ConnectionPool = (*connectionPool)(nil)

// resultSetFromRows drains rows into a ResultSet, stopping at maxRows
// and flagging truncation when more rows were available.
func resultSetFromRows(rows *sql.Rows, maxRows int) (*models.ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeQueryFailed, "failed to read columns")
	}

	rs := &models.ResultSet{Columns: cols}
	for rows.Next() {
		if maxRows > 0 && rs.RowCount >= maxRows {
			rs.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeQueryFailed, "failed to scan row")
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, values)
		rs.RowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeQueryFailed, "row iteration failed")
	}
	return rs, nil
}
