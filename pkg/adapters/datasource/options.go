package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/nodepool/pkg/apperrors"
)

// Credentials is the single identity every pooled connection uses.
type Credentials struct {
	Username string
	Password string
}

// String never includes the password.
func (c Credentials) String() string {
	return c.Username
}

// PoolConfig holds pool bounds. The pool is fixed-size: min and max are both Size.
type PoolConfig struct {
	Size   int
	Driver string // database/sql driver name; ignored by adapters that bring their own driver
}

// MinConns returns the lower pool bound.
func (p PoolConfig) MinConns() int { return p.Size }

// MaxConns returns the upper pool bound.
func (p PoolConfig) MaxConns() int { return p.Size }

// Validate ensures both bounds are at least one.
func (p PoolConfig) Validate() error {
	if p.Size < 1 {
		return fmt.Errorf("%w: pool size must be greater than 0, got %d", apperrors.ErrConfig, p.Size)
	}
	return nil
}

// Options describe the node a data source connects to.
type Options struct {
	Host        string
	Port        int
	BaseName    string
	Credentials Credentials
	Pool        PoolConfig
	SSLMode     string // "disable", "require", "verify-ca", "verify-full"; empty leaves the driver default
}

// Settings is what a ConnectorFactory receives: validated target plus everything
// needed to configure a concrete pool.
type Settings struct {
	Target      ConnectionTarget
	Credentials Credentials
	Pool        PoolConfig
	SSLMode     string
}

// ConnString returns the driver connection string for these settings.
func (s Settings) ConnString() string {
	return s.Target.ConnString(s.Credentials, s.SSLMode)
}

// ConnectorFactory builds the concrete pool for validated settings.
// It runs synchronously inside New.
type ConnectorFactory func(ctx context.Context, settings Settings, logger *zap.Logger) (PoolConnector, error)
