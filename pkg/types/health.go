package types

// ServiceState is the observed runtime state of a service's container.
// Only the service controller mutates container state.
type ServiceState string

const (
	// ServiceStateAbsent means no container with the service's name exists.
	ServiceStateAbsent ServiceState = "absent"

	// ServiceStateStopped means the container exists but is not running.
	ServiceStateStopped ServiceState = "stopped"

	// ServiceStateRunning means the container is running.
	ServiceStateRunning ServiceState = "running"

	// ServiceStateUnhealthy means the container is running but its probe
	// has not confirmed readiness.
	ServiceStateUnhealthy ServiceState = "running-unhealthy"
)

// HealthStatus classifies a single probe attempt.
type HealthStatus string

const (
	// HealthReady means the service answered its readiness condition.
	HealthReady HealthStatus = "ready"

	// HealthBooting means the service is still starting; keep waiting.
	HealthBooting HealthStatus = "booting"

	// HealthDegraded means the service answered but is not yet usable;
	// keep waiting.
	HealthDegraded HealthStatus = "degraded"

	// HealthFatal means the failure is permanent under the current
	// configuration; retrying cannot help.
	HealthFatal HealthStatus = "failed-fatal"
)

// IsTerminal reports whether the status ends the polling loop.
func (s HealthStatus) IsTerminal() bool {
	return s == HealthReady || s == HealthFatal
}

// HealthCheckResult is the outcome of a waitReady call.
type HealthCheckResult struct {
	Status   HealthStatus
	Detail   string
	Attempts int
}
