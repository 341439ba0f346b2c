package datasource

import (
	"context"
	"errors"

	"github.com/ekaya-inc/nodepool/pkg/apperrors"
)

// isInRecoveryQuery returns false on a primary and true on a standby.
const isInRecoveryQuery = "SELECT pg_is_in_recovery()"

// Role is the replication role of a node.
type Role int

const (
	RoleReplica Role = iota
	RolePrimary
)

func (r Role) String() string {
	if r == RolePrimary {
		return "master"
	}
	return "slave"
}

// IsReplica reports whether the node is in recovery (a standby).
//
// When the probe returns no row the node is treated as a replica, so callers
// that branch on the result never assume an unknown node is writable. Any
// acquisition or query error is returned unmodified, together with true.
func (ds *PooledDataSource) IsReplica(ctx context.Context) (bool, error) {
	conn, err := ds.Conn(ctx)
	if err != nil {
		return true, err
	}
	defer conn.Release()

	inRecovery := true
	if err := conn.QueryRow(ctx, isInRecoveryQuery).Scan(&inRecovery); err != nil {
		if errors.Is(err, apperrors.ErrNoRows) {
			return true, nil
		}
		return true, err
	}
	return inRecovery, nil
}

// Role probes the node and returns its replication role.
func (ds *PooledDataSource) Role(ctx context.Context) (Role, error) {
	replica, err := ds.IsReplica(ctx)
	if err != nil {
		return RoleReplica, err
	}
	if replica {
		return RoleReplica, nil
	}
	return RolePrimary, nil
}
