// Package runner provides interfaces and implementations for converging
// service containers to their declared specs.
package runner

import (
	"context"

	"github.com/rzbill/berth/pkg/types"
)

// Controller defines the interface for a service controller. A controller
// exclusively owns the running/stopped state of the containers it manages;
// no other component mutates container state.
type Controller interface {
	// Converge brings the named service's container to the running state
	// described by spec. env is the fully resolved environment (literals
	// plus secrets). Convergence is destroy-and-recreate: when the spec's
	// fingerprint differs from the last applied one, the existing
	// container is stopped and removed, never patched in place.
	Converge(ctx context.Context, spec *types.ServiceSpec, env map[string]string) (types.ServiceState, error)

	// Status reports the observed state of the named service's container.
	Status(ctx context.Context, service string) (types.ServiceState, error)

	// Logs returns up to tail lines of recent container output, used by
	// log-scanning health checks.
	Logs(ctx context.Context, service string, tail int) (string, error)
}
