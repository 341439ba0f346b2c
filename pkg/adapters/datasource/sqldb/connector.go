package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nodepool/pkg/adapters/datasource"
	"github.com/ekaya-inc/nodepool/pkg/apperrors"
	"github.com/ekaya-inc/nodepool/pkg/logging"
)

// Kind is the registry key of this adapter.
const Kind = "sqldb"

// DefaultDriver is used when PoolConfig.Driver is empty.
const DefaultDriver = "pgx"

// Connector is a fixed-size *sql.DB implementation of datasource.PoolConnector.
// database/sql has no lower bound, so only the upper bound (open and idle) is
// applied: connections are dialed on demand and then kept idle up to Size.
//
// The login timeout bounds dialing only. Waiting for a free connection is
// bounded by the caller's context alone.
type Connector struct {
	mu           sync.RWMutex
	db           *sql.DB // nil after Close
	driver       string
	logWriter    io.Writer
	loginTimeout atomic.Int64 // time.Duration
	logger       *zap.Logger
}

// NewConnector opens the *sql.DB with the configured driver. No connection is
// dialed here, so an unreachable node is only reported on first acquisition.
// The default "pgx" driver is opened through pgx/v5/stdlib with a BeforeConnect
// hook; any other registered driver is wrapped in a deadline-applying connector.
func NewConnector(ctx context.Context, settings datasource.Settings, logger *zap.Logger) (*Connector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := settings.Pool.Validate(); err != nil {
		return nil, err
	}

	driverName := settings.Pool.Driver
	if driverName == "" {
		driverName = DefaultDriver
	}

	c := &Connector{driver: driverName, logger: logger}

	var db *sql.DB
	var err error
	if driverName == DefaultDriver {
		db, err = c.openPgx(settings.ConnString())
	} else {
		db, err = c.openNamed(driverName, settings.ConnString())
	}
	if err != nil {
		logger.Error("failed to open database",
			zap.String("driver", driverName),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("%w: open %s: %s", apperrors.ErrConfig, driverName, logging.SanitizeError(err))
	}
	db.SetMaxOpenConns(settings.Pool.MaxConns())
	db.SetMaxIdleConns(settings.Pool.MaxConns())
	c.db = db

	logger.Debug("opened database/sql pool",
		zap.String("driver", driverName),
		zap.String("connString", logging.SanitizeConnectionString(settings.ConnString())),
		zap.Int("maxConns", settings.Pool.MaxConns()),
	)
	return c, nil
}

func (c *Connector) openPgx(connString string) (*sql.DB, error) {
	connConfig, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	c.loginTimeout.Store(int64(connConfig.ConnectTimeout))

	return stdlib.OpenDB(*connConfig, stdlib.OptionBeforeConnect(func(_ context.Context, cc *pgx.ConnConfig) error {
		cc.ConnectTimeout = c.LoginTimeout()
		return nil
	})), nil
}

func (c *Connector) openNamed(driverName, connString string) (*sql.DB, error) {
	// sql.Open resolves the registered driver without dialing.
	resolved, err := sql.Open(driverName, connString)
	if err != nil {
		return nil, err
	}
	drv := resolved.Driver()
	_ = resolved.Close()

	var inner driver.Connector = dsnConnector{dsn: connString, driver: drv}
	if dc, ok := drv.(driver.DriverContext); ok {
		if inner, err = dc.OpenConnector(connString); err != nil {
			return nil, err
		}
	}
	return sql.OpenDB(&timeoutConnector{inner: inner, timeout: c.LoginTimeout}), nil
}

// Factory adapts NewConnector to datasource.ConnectorFactory.
func Factory(ctx context.Context, settings datasource.Settings, logger *zap.Logger) (datasource.PoolConnector, error) {
	c, err := NewConnector(ctx, settings, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connector) current() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, fmt.Errorf("%w: sql pool closed", apperrors.ErrNotInitialized)
	}
	return c.db, nil
}

// Acquire leases a connection, blocking until one is free or ctx is done.
// Errors from database/sql are returned unmodified.
func (c *Connector) Acquire(ctx context.Context) (datasource.Conn, error) {
	db, err := c.current()
	if err != nil {
		return nil, err
	}

	sc, err := db.Conn(ctx)
	if err != nil {
		c.logf("acquire failed: %s", logging.SanitizeError(err))
		return nil, err
	}
	return &Conn{conn: sc, owner: c}, nil
}

// Close closes the *sql.DB and drops it; later Acquire calls fail with
// apperrors.ErrNotInitialized.
func (c *Connector) Close() error {
	c.mu.Lock()
	db := c.db
	c.db = nil
	c.mu.Unlock()

	if db == nil {
		return fmt.Errorf("%w: sql pool closed", apperrors.ErrNotInitialized)
	}
	stats := db.Stats()
	c.logf("closing pool: open=%d inUse=%d idle=%d waitCount=%d",
		stats.OpenConnections, stats.InUse, stats.Idle, stats.WaitCount)
	return db.Close()
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

// Unwrap returns the *sql.DB, or nil after Close.
func (c *Connector) Unwrap() any {
	db, err := c.current()
	if err != nil {
		return nil
	}
	return db
}

func (c *Connector) GetType() string {
	return Kind
}

// Driver returns the database/sql driver name in use.
func (c *Connector) Driver() string {
	return c.driver
}

func (c *Connector) logf(format string, args ...any) {
	w := c.LogWriter()
	if w == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if _, err := fmt.Fprintf(w, "%s %s %s\n", time.Now().UTC().Format(time.RFC3339), c.driver, msg); err != nil {
		c.logger.Debug("failed to write pool log", zap.Error(err))
	}
}

// Conn wraps a *sql.Conn lease.
type Conn struct {
	conn  *sql.Conn
	owner *Connector
	once  sync.Once
}

func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) datasource.Row {
	return row{c.conn.QueryRowContext(ctx, query, args...)}
}

// Release returns the connection to the *sql.DB.
func (c *Conn) Release() {
	c.once.Do(func() {
		if err := c.conn.Close(); err != nil {
			c.owner.logf("release failed: %s", logging.SanitizeError(err))
			c.owner.logger.Warn("failed to release connection", zap.Error(err))
		}
	})
}

// Raw returns the *sql.Conn for callers that need the full database/sql API.
// It must not be used after Release.
func (c *Conn) Raw() *sql.Conn {
	return c.conn
}

type row struct {
	*sql.Row
}

func (r row) Scan(dest ...any) error {
	err := r.Row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrNoRows
	}
	return err
}

// timeoutConnector bounds each dial of a named driver by the current login timeout.
type timeoutConnector struct {
	inner   driver.Connector
	timeout func() time.Duration
}

func (t *timeoutConnector) Connect(ctx context.Context) (driver.Conn, error) {
	if d := t.timeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return t.inner.Connect(ctx)
}

func (t *timeoutConnector) Driver() driver.Driver {
	return t.inner.Driver()
}

// dsnConnector adapts a driver without driver.DriverContext. Its dial cannot be
// interrupted, so the deadline only applies to drivers that honor ctx.
type dsnConnector struct {
	dsn    string
	driver driver.Driver
}

func (d dsnConnector) Connect(ctx context.Context) (driver.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.driver.Open(d.dsn)
}

func (d dsnConnector) Driver() driver.Driver {
	return d.driver
}

// Ensure Connector implements PoolConnector at compile time.
var _ datasource.PoolConnector = (*Connector)(nil)
