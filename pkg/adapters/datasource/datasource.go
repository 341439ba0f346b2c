package datasource

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nodepool/pkg/apperrors"
	"github.com/ekaya-inc/nodepool/pkg/logging"
)

type poolState int

const (
	stateUninitialized poolState = iota
	stateReady
	stateClosed
)

func (s poolState) String() string {
	switch s {
	case stateReady:
		return "ready"
	case stateClosed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// poolSlot is published once by New and replaced once by Close.
type poolSlot struct {
	state     poolState
	connector PoolConnector
}

// PooledDataSource is a pooled handle to exactly one database on one node.
//
// Limitation: one base per process. Create one PooledDataSource per node at
// startup and share it; it must not be used after Close.
//
// All operations delegate to the PoolConnector built by the adapter factory.
// A zero PooledDataSource is valid but uninitialized: every operation returns
// apperrors.ErrNotInitialized.
type PooledDataSource struct {
	id          uuid.UUID
	target      ConnectionTarget
	credentials Credentials
	pool        PoolConfig
	slot        atomic.Pointer[poolSlot]
	logger      *zap.Logger
}

// New validates opts, builds the target string and runs factory to create the
// underlying pool before returning. Configuration problems match
// apperrors.ErrConfig; in that case factory is never called.
func New(ctx context.Context, opts Options, factory ConnectorFactory, logger *zap.Logger) (*PooledDataSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := opts.Pool.Validate(); err != nil {
		return nil, err
	}
	target, err := NewConnectionTarget(opts.Host, opts.Port, opts.BaseName)
	if err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: no pool factory", apperrors.ErrConfig)
	}

	ds := &PooledDataSource{
		id:          uuid.New(),
		target:      target,
		credentials: opts.Credentials,
		pool:        opts.Pool,
	}
	ds.logger = logger.With(
		zap.String("dataSourceID", ds.id.String()),
		zap.String("nodeID", target.NodeID()),
	)

	settings := Settings{
		Target:      target,
		Credentials: opts.Credentials,
		Pool:        opts.Pool,
		SSLMode:     opts.SSLMode,
	}
	connector, err := factory(ctx, settings, ds.logger)
	if err != nil {
		ds.logger.Error("failed to set up pool",
			zap.String("target", target.URL()),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("set up pool for %s: %w", target.NodeID(), err)
	}
	if connector == nil {
		return nil, fmt.Errorf("set up pool for %s: factory returned no pool", target.NodeID())
	}

	ds.slot.Store(&poolSlot{state: stateReady, connector: connector})

	ds.logger.Info("data source ready",
		zap.String("type", connector.GetType()),
		zap.String("baseName", target.BaseName()),
		zap.String("username", opts.Credentials.Username),
		zap.Int("poolSize", opts.Pool.Size),
	)
	return ds, nil
}

// connector is the single precondition check every operation goes through.
func (ds *PooledDataSource) connector() (PoolConnector, error) {
	s := ds.slot.Load()
	if s == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrNotInitialized, stateUninitialized)
	}
	if s.state != stateReady {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrNotInitialized, s.state)
	}
	return s.connector, nil
}

// Conn leases a connection from the pool. The caller must Release it on every path.
func (ds *PooledDataSource) Conn(ctx context.Context) (Conn, error) {
	c, err := ds.connector()
	if err != nil {
		return nil, err
	}
	return c.Acquire(ctx)
}

// ConnAs ignores user and password and behaves exactly like Conn: every
// connection of a data source uses the identity it was built with.
func (ds *PooledDataSource) ConnAs(ctx context.Context, user, password string) (Conn, error) {
	return ds.Conn(ctx)
}

// Close releases every pooled connection. Afterwards every operation, including
// a second Close, returns apperrors.ErrNotInitialized.
func (ds *PooledDataSource) Close() error {
	prev := ds.slot.Swap(&poolSlot{state: stateClosed})
	if prev == nil || prev.state != stateReady {
		state := stateUninitialized
		if prev != nil {
			state = prev.state
		}
		return fmt.Errorf("%w: %s", apperrors.ErrNotInitialized, state)
	}

	if err := prev.connector.Close(); err != nil {
		ds.logger.Error("failed to close pool", zap.String("error", logging.SanitizeError(err)))
		return err
	}
	ds.logger.Info("data source closed")
	return nil
}

// LogWriter returns the pool's log sink.
func (ds *PooledDataSource) LogWriter() (io.Writer, error) {
	c, err := ds.connector()
	if err != nil {
		return nil, err
	}
	return c.LogWriter(), nil
}

// SetLogWriter replaces the pool's log sink.
func (ds *PooledDataSource) SetLogWriter(w io.Writer) error {
	c, err := ds.connector()
	if err != nil {
		return err
	}
	c.SetLogWriter(w)
	return nil
}

// LoginTimeout returns the pool's connection establishment bound.
func (ds *PooledDataSource) LoginTimeout() (time.Duration, error) {
	c, err := ds.connector()
	if err != nil {
		return 0, err
	}
	return c.LoginTimeout(), nil
}

// SetLoginTimeout changes the pool's connection establishment bound.
func (ds *PooledDataSource) SetLoginTimeout(d time.Duration) error {
	c, err := ds.connector()
	if err != nil {
		return err
	}
	c.SetLoginTimeout(d)
	return nil
}

// Unwrap returns the concrete pool behind the data source.
func (ds *PooledDataSource) Unwrap() (any, error) {
	c, err := ds.connector()
	if err != nil {
		return nil, err
	}
	return c.Unwrap(), nil
}

// Logger returns the logger the data source reports through, carrying its
// dataSourceID and nodeID fields.
func (ds *PooledDataSource) Logger() (*zap.Logger, error) {
	if _, err := ds.connector(); err != nil {
		return nil, err
	}
	return ds.logger, nil
}

// UnwrapAs returns the concrete pool as T, or apperrors.ErrNotWrapper when the
// pool is of another type.
func UnwrapAs[T any](ds *PooledDataSource) (T, error) {
	var zero T
	raw, err := ds.Unwrap()
	if err != nil {
		return zero, err
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%w: have %T", apperrors.ErrNotWrapper, raw)
	}
	return v, nil
}

// IsWrapperFor reports whether the concrete pool is a T.
func IsWrapperFor[T any](ds *PooledDataSource) (bool, error) {
	raw, err := ds.Unwrap()
	if err != nil {
		return false, err
	}
	_, ok := raw.(T)
	return ok, nil
}

// ID returns the instance identifier used in log fields.
func (ds *PooledDataSource) ID() uuid.UUID { return ds.id }

// NodeID returns host:port of the node.
func (ds *PooledDataSource) NodeID() string { return ds.target.NodeID() }

// TargetURL returns the assembled target string.
func (ds *PooledDataSource) TargetURL() string { return ds.target.URL() }

// Target returns the validated connection target.
func (ds *PooledDataSource) Target() ConnectionTarget { return ds.target }

// PoolConfig returns the configured pool bounds.
func (ds *PooledDataSource) PoolConfig() PoolConfig { return ds.pool }

// String describes the data source for diagnostics. Display only.
func (ds *PooledDataSource) String() string {
	return fmt.Sprintf(
		"Username: %s\nConnected to node: %s\nBase name: %s\nPool size: %d",
		ds.credentials.Username,
		ds.target.NodeID(),
		ds.target.BaseName(),
		ds.pool.MaxConns(),
	)
}
