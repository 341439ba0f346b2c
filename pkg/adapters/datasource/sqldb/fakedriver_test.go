package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// fakeDriver is a minimal database/sql driver answering every query with one
// boolean row (or none). Each test registers its own instance by name.
type fakeDriver struct {
	mu     sync.Mutex
	row    *bool
	err    error
	opened []string
}

func registerFakeDriver(name string, row *bool, err error) *fakeDriver {
	d := &fakeDriver{row: row, err: err}
	sql.Register(name, d)
	return d
}

func (d *fakeDriver) Open(name string) (driver.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = append(d.opened, name)
	return &fakeConn{driver: d}, nil
}

func (d *fakeDriver) dsns() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.opened...)
}

type fakeConn struct {
	driver *fakeDriver
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("fake driver: prepare not supported")
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Begin() (driver.Tx, error) {
	return nil, errors.New("fake driver: transactions not supported")
}

func (c *fakeConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if c.driver.err != nil {
		return nil, c.driver.err
	}
	return &fakeRows{row: c.driver.row}, nil
}

type fakeRows struct {
	row  *bool
	done bool
}

func (r *fakeRows) Columns() []string { return []string{"pg_is_in_recovery"} }

func (r *fakeRows) Close() error { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.done || r.row == nil {
		return io.EOF
	}
	r.done = true
	dest[0] = *r.row
	return nil
}

var (
	_ driver.Driver         = (*fakeDriver)(nil)
	_ driver.QueryerContext = (*fakeConn)(nil)
)

// slowDriver dials through driver.DriverContext and never completes a dial
// before ctx is done, like a node that drops SYN packets.
type slowDriver struct {
	dials atomic.Int32
}

func (d *slowDriver) Open(name string) (driver.Conn, error) {
	return nil, errors.New("fake driver: use OpenConnector")
}

func (d *slowDriver) OpenConnector(name string) (driver.Connector, error) {
	return slowConnector{driver: d}, nil
}

type slowConnector struct {
	driver *slowDriver
}

func (c slowConnector) Connect(ctx context.Context) (driver.Conn, error) {
	c.driver.dials.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c slowConnector) Driver() driver.Driver { return c.driver }

var _ driver.DriverContext = (*slowDriver)(nil)

func registerSlowDriver(name string) *slowDriver {
	d := &slowDriver{}
	sql.Register(name, d)
	return d
}
