// Package orchestrator drives a full deploy run: secrets, rendered
// configuration, container convergence, readiness probing and post-deploy
// bootstrap actions, strictly in stack order. A failure stops the run and
// marks the remaining services skipped; every stage is idempotent so
// recovery is a plain re-run.
package orchestrator

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rzbill/berth/pkg/log"
	"github.com/rzbill/berth/pkg/probe"
	"github.com/rzbill/berth/pkg/render"
	"github.com/rzbill/berth/pkg/runner"
	"github.com/rzbill/berth/pkg/secret"
	"github.com/rzbill/berth/pkg/state"
	"github.com/rzbill/berth/pkg/types"
)

// SysctlEnsurer raises host kernel parameters to declared minimums.
type SysctlEnsurer interface {
	Ensure(reqs []types.SysctlRequirement) error
}

// Orchestrator coordinates the per-service deploy stages.
type Orchestrator struct {
	secrets    secret.Store
	state      state.Store
	controller runner.Controller
	renderer   *render.Renderer
	sysctls    SysctlEnsurer
	envDir     string
	httpClient *http.Client
	probeOpts  *probe.Options
	logger     log.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithSysctls sets the kernel parameter manager. Without one, declared
// sysctl requirements are not enforced.
func WithSysctls(s SysctlEnsurer) Option {
	return func(o *Orchestrator) { o.sysctls = s }
}

// WithHTTPClient sets the client used for post-deploy actions.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) { o.httpClient = c }
}

// WithProbeOptions overrides the probe retry budget for every service,
// regardless of what the spec declares. Used by tests.
func WithProbeOptions(opts probe.Options) Option {
	return func(o *Orchestrator) { o.probeOpts = &opts }
}

// New creates an orchestrator over the given stores and controller. envDir
// is where per-service scoped env files are written.
func New(secrets secret.Store, st state.Store, controller runner.Controller, renderer *render.Renderer, envDir string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		secrets:    secrets,
		state:      st,
		controller: controller,
		renderer:   renderer,
		envDir:     envDir,
		logger:     log.GetDefaultLogger().WithComponent("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Deploy converges every service in the stack, in declaration order. The
// first failure stops the run; the failed service's result carries the
// stage and error, and every remaining service is reported skipped. The
// report is appended to the run history even when the run fails.
func (o *Orchestrator) Deploy(ctx context.Context, stack *types.Stack) (*types.DeployReport, error) {
	report := &types.DeployReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	o.logger.Info("Starting deploy",
		log.Str("stack", stack.Name),
		log.Str("run_id", report.RunID),
		log.Int("services", len(stack.Services)))

	failedAt := -1
	for i := range stack.Services {
		spec := &stack.Services[i]

		if failedAt >= 0 {
			report.Results = append(report.Results, types.ServiceResult{
				Service: spec.Name,
				Outcome: types.OutcomeSkipped,
				Message: "earlier service " + stack.Services[failedAt].Name + " failed",
			})
			continue
		}

		result := o.deployService(ctx, spec, report.RunID)
		report.Results = append(report.Results, result)
		if result.Outcome == types.OutcomeFailed {
			o.logger.Error("Service deploy failed, skipping remaining services",
				log.Str("service", spec.Name),
				log.Str("stage", string(result.Stage)),
				log.Str("error", result.Message))
			failedAt = i
		}
	}

	report.FinishedAt = time.Now().UTC()

	if err := o.state.AppendRun(ctx, report); err != nil {
		o.logger.Warn("Failed to record deploy run", log.Err(err))
	}

	return report, nil
}

// Status reports the observed container state and last-applied record for
// every service in the stack.
func (o *Orchestrator) Status(ctx context.Context, stack *types.Stack) ([]ServiceStatus, error) {
	statuses := make([]ServiceStatus, 0, len(stack.Services))
	for i := range stack.Services {
		spec := &stack.Services[i]
		st, err := o.controller.Status(ctx, spec.Name)
		if err != nil {
			return nil, err
		}
		status := ServiceStatus{Service: spec.Name, Image: spec.Image, State: st}
		if applied, ok, err := o.state.GetApplied(ctx, spec.Name); err != nil {
			return nil, err
		} else if ok {
			status.Applied = applied
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// ServiceStatus is one row of a status report.
type ServiceStatus struct {
	Service string
	Image   string
	State   types.ServiceState
	Applied *state.AppliedSpec
}
