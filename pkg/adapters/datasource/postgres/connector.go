package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nodepool/pkg/adapters/datasource"
	"github.com/ekaya-inc/nodepool/pkg/apperrors"
	"github.com/ekaya-inc/nodepool/pkg/logging"
)

// Kind is the registry key of this adapter.
const Kind = "pgxpool"

// Connector is a fixed-size pgxpool implementation of datasource.PoolConnector.
type Connector struct {
	mu           sync.RWMutex
	pool         *pgxpool.Pool // nil after Close
	logWriter    io.Writer
	loginTimeout atomic.Int64 // time.Duration
	logger       *zap.Logger
}

// NewConnector builds the pool synchronously. Min and max pool size are both
// settings.Pool.Size. No connection is required to succeed here; pgxpool dials
// lazily and in the background.
func NewConnector(ctx context.Context, settings datasource.Settings, logger *zap.Logger) (*Connector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := settings.Pool.Validate(); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(settings.ConnString())
	if err != nil {
		logger.Error("failed to parse connection string",
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("%w: failed to parse connection string: %s", apperrors.ErrConfig, logging.SanitizeError(err))
	}

	c := &Connector{logger: logger}
	c.loginTimeout.Store(int64(poolConfig.ConnConfig.ConnectTimeout))

	poolConfig.MaxConns = int32(settings.Pool.MaxConns())
	poolConfig.MinConns = int32(settings.Pool.MinConns())
	poolConfig.BeforeConnect = func(_ context.Context, cc *pgx.ConnConfig) error {
		cc.ConnectTimeout = c.LoginTimeout()
		return nil
	}
	poolConfig.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   tracelog.LoggerFunc(c.trace),
		LogLevel: tracelog.LogLevelInfo,
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("failed to create pool",
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	c.pool = pool

	logger.Debug("created pgx pool",
		zap.String("connString", logging.SanitizeConnectionString(settings.ConnString())),
		zap.Int32("maxConns", poolConfig.MaxConns),
		zap.Int32("minConns", poolConfig.MinConns),
	)
	return c, nil
}

// Factory adapts NewConnector to datasource.ConnectorFactory.
func Factory(ctx context.Context, settings datasource.Settings, logger *zap.Logger) (datasource.PoolConnector, error) {
	c, err := NewConnector(ctx, settings, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connector) current() (*pgxpool.Pool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pool == nil {
		return nil, fmt.Errorf("%w: pgx pool closed", apperrors.ErrNotInitialized)
	}
	return c.pool, nil
}

// Acquire leases a connection. Errors from pgxpool are returned unmodified.
func (c *Connector) Acquire(ctx context.Context) (datasource.Conn, error) {
	pool, err := c.current()
	if err != nil {
		return nil, err
	}
	pc, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: pc}, nil
}

// Close closes the pool and drops it; later Acquire calls fail with
// apperrors.ErrNotInitialized. pgxpool.Close waits for leased connections to
// be released.
func (c *Connector) Close() error {
	c.mu.Lock()
	pool := c.pool
	c.pool = nil
	c.mu.Unlock()

	if pool == nil {
		return fmt.Errorf("%w: pgx pool closed", apperrors.ErrNotInitialized)
	}
	pool.Close()
	return nil
}

func (c *Connector) LogWriter() io.Writer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logWriter
}

func (c *Connector) SetLogWriter(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logWriter = w
}

func (c *Connector) LoginTimeout() time.Duration {
	return time.Duration(c.loginTimeout.Load())
}

// SetLoginTimeout applies to connections dialed from now on.
func (c *Connector) SetLoginTimeout(d time.Duration) {
	c.loginTimeout.Store(int64(d))
}

// Unwrap returns the *pgxpool.Pool, or nil after Close.
func (c *Connector) Unwrap() any {
	pool, err := c.current()
	if err != nil {
		return nil
	}
	return pool
}

func (c *Connector) GetType() string {
	return Kind
}

// trace forwards pgx tracer events to the current log writer.
func (c *Connector) trace(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	w := c.LogWriter()
	if w == nil {
		return
	}
	if sql, ok := data["sql"].(string); ok {
		data["sql"] = logging.SanitizeQuery(sql)
	}
	delete(data, "args")
	if _, err := fmt.Fprintf(w, "%s %s %s %v\n", time.Now().UTC().Format(time.RFC3339), level, msg, data); err != nil {
		c.logger.Debug("failed to write pool log", zap.Error(err))
	}
}

// Conn wraps a *pgxpool.Conn lease.
type Conn struct {
	conn *pgxpool.Conn
	once sync.Once
}

func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) datasource.Row {
	return row{c.conn.QueryRow(ctx, query, args...)}
}

func (c *Conn) Release() {
	c.once.Do(c.conn.Release)
}

// Raw returns the pgx connection for callers that need the full pgx API.
// It must not be used after Release.
func (c *Conn) Raw() *pgxpool.Conn {
	return c.conn
}

type row struct {
	pgx.Row
}

func (r row) Scan(dest ...any) error {
	err := r.Row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNoRows
	}
	return err
}

// Ensure Connector implements PoolConnector at compile time.
var _ datasource.PoolConnector = (*Connector)(nil)
