package datasource

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/nodepool/pkg/apperrors"
)

// fakePool stands in for a concrete pool in unit tests.
type fakePool struct{}

// fakeConnector is a bounded in-memory PoolConnector. Each lease holds one slot
// of a buffered channel, so acquisitions beyond the size block like a real pool.
type fakeConnector struct {
	slots chan struct{}

	// row returned by every QueryRow: nil means "no row"
	row        *bool
	queryErr   error
	acquireErr error
	closeErr   error

	mu           sync.Mutex
	logWriter    io.Writer
	loginTimeout time.Duration
	queries      []string

	acquired atomic.Int32
	released atomic.Int32
	closed   atomic.Bool
}

func newFakeConnector(size int) *fakeConnector {
	return &fakeConnector{slots: make(chan struct{}, size)}
}

func (f *fakeConnector) withRow(v bool) *fakeConnector {
	f.row = &v
	return f
}

func (f *fakeConnector) Acquire(ctx context.Context) (Conn, error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	select {
	case f.slots <- struct{}{}:
		f.acquired.Add(1)
		return &fakeConn{owner: f}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConnector) Close() error {
	f.closed.Store(true)
	return f.closeErr
}

func (f *fakeConnector) LogWriter() io.Writer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logWriter
}

func (f *fakeConnector) SetLogWriter(w io.Writer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logWriter = w
}

func (f *fakeConnector) LoginTimeout() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginTimeout
}

func (f *fakeConnector) SetLoginTimeout(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginTimeout = d
}

func (f *fakeConnector) Unwrap() any { return &fakePool{} }

func (f *fakeConnector) GetType() string { return "fake" }

func (f *fakeConnector) inUse() int { return len(f.slots) }

func (f *fakeConnector) recordQuery(q string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
}

type fakeConn struct {
	owner *fakeConnector
	once  sync.Once
}

func (c *fakeConn) QueryRow(ctx context.Context, query string, args ...any) Row {
	c.owner.recordQuery(query)
	return fakeRow{owner: c.owner}
}

func (c *fakeConn) Release() {
	c.once.Do(func() {
		c.owner.released.Add(1)
		<-c.owner.slots
	})
}

type fakeRow struct {
	owner *fakeConnector
}

func (r fakeRow) Scan(dest ...any) error {
	if r.owner.queryErr != nil {
		return r.owner.queryErr
	}
	if r.owner.row == nil {
		return apperrors.ErrNoRows
	}
	*(dest[0].(*bool)) = *r.owner.row
	return nil
}

func fakeFactory(c *fakeConnector) ConnectorFactory {
	return func(ctx context.Context, settings Settings, _ *zap.Logger) (PoolConnector, error) {
		return c, nil
	}
}
