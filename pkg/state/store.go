// Package state provides durable deploy state for the convergence engine:
// the last-applied fingerprint per service and the history of deploy runs.
package state

import (
	"context"
	"time"

	"github.com/rzbill/berth/pkg/types"
)

// AppliedSpec records the spec fingerprint a service was last converged to.
type AppliedSpec struct {
	Service     string    `json:"service"`
	Fingerprint string    `json:"fingerprint"`
	Image       string    `json:"image"`
	RunID       string    `json:"run_id"`
	AppliedAt   time.Time `json:"applied_at"`
}

// Store is the interface for deploy state persistence.
type Store interface {
	// GetApplied returns a service's last-applied spec record, if any.
	GetApplied(ctx context.Context, service string) (*AppliedSpec, bool, error)

	// PutApplied records a service's applied spec fingerprint.
	PutApplied(ctx context.Context, rec *AppliedSpec) error

	// AppendRun appends a deploy run record to the history.
	AppendRun(ctx context.Context, report *types.DeployReport) error

	// LastRun returns the most recent deploy run record, if any.
	LastRun(ctx context.Context) (*types.DeployReport, bool, error)

	// Close releases the backing resources.
	Close() error
}
