package datasource

import (
	"context"
	"io"
	"time"
)

// PoolConnector is an interface that abstracts connection pool operations
// across different pool implementations (pgxpool, database/sql, ...).
// Implementations must be safe for concurrent Acquire calls; the data source
// adds no locking of its own.
type PoolConnector interface {
	// Acquire leases a connection, blocking until a slot is free or ctx is done.
	Acquire(ctx context.Context) (Conn, error)

	// Close releases every physical connection held by the pool.
	Close() error

	// LogWriter returns the sink pool events are written to (nil when unset).
	LogWriter() io.Writer

	// SetLogWriter replaces the sink pool events are written to.
	SetLogWriter(w io.Writer)

	// LoginTimeout returns the bound applied when establishing a connection.
	LoginTimeout() time.Duration

	// SetLoginTimeout changes the bound applied when establishing a connection.
	// Zero means no bound beyond the caller's context.
	SetLoginTimeout(d time.Duration)

	// Unwrap returns the concrete pool (e.g. *pgxpool.Pool or *sql.DB).
	Unwrap() any

	// GetType returns the adapter kind for logging/stats
	GetType() string
}

// Conn is a connection leased from a pool. The caller owns it until Release.
type Conn interface {
	// QueryRow runs a query expected to return at most one row.
	QueryRow(ctx context.Context, query string, args ...any) Row

	// Release returns the connection to its pool. Calling it more than once is a no-op.
	Release()
}

// Row is the result of Conn.QueryRow.
// Scan returns apperrors.ErrNoRows when the query produced no row.
type Row interface {
	Scan(dest ...any) error
}
