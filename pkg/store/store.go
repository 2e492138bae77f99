package store

import (
	"time"

	"github.com/nkefor/cutover/pkg/types"
)

// Store is the audit trail for deployments and rollbacks. Deployment records
// are written on every phase transition; the phase log inside each record is
// append-only.
type Store interface {
	// Deployments
	SaveDeployment(deployment *types.Deployment) error
	GetDeployment(id string) (*types.Deployment, error)
	ListDeployments(service string, limit int) ([]*types.Deployment, error)

	// Rollbacks
	SaveRollback(record *types.RollbackRecord) error
	ListRollbacks(service string, limit int) ([]*types.RollbackRecord, error)

	// RollbacksSince counts rollback executions for a service after the
	// given time. Used to detect repeated rollback loops.
	RollbacksSince(service string, since time.Time) (int, error)

	// Utility
	Close() error
}
