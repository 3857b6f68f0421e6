package types

import (
	"time"
)

// Stage names one step of a service's convergence.
type Stage string

const (
	StageSecrets    Stage = "secrets"
	StageRender     Stage = "render"
	StageConverge   Stage = "converge"
	StageHealth     Stage = "health"
	StagePostDeploy Stage = "post-deploy"
)

// Outcome is the final disposition of one service within a deploy run.
type Outcome string

const (
	// OutcomeSuccess means every stage completed.
	OutcomeSuccess Outcome = "success"

	// OutcomeFailed means a stage failed; Stage and Message say which.
	OutcomeFailed Outcome = "failed"

	// OutcomeSkipped means an earlier service failed and this one was
	// never attempted.
	OutcomeSkipped Outcome = "skipped"
)

// ServiceResult reports what happened to one service.
type ServiceResult struct {
	Service  string        `json:"service" yaml:"service"`
	Outcome  Outcome       `json:"outcome" yaml:"outcome"`
	Stage    Stage         `json:"stage,omitempty" yaml:"stage,omitempty"`
	State    ServiceState  `json:"state,omitempty" yaml:"state,omitempty"`
	Message  string        `json:"message,omitempty" yaml:"message,omitempty"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// DeployReport is the structured result of one deploy run, suitable for
// driving exit codes and log output.
type DeployReport struct {
	RunID      string          `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time       `json:"finished_at" yaml:"finished_at"`
	Results    []ServiceResult `json:"results" yaml:"results"`
}

// Failed reports whether any service failed.
func (r *DeployReport) Failed() bool {
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			return true
		}
	}
	return false
}

// Result returns the result for a named service, or nil.
func (r *DeployReport) Result(service string) *ServiceResult {
	for i := range r.Results {
		if r.Results[i].Service == service {
			return &r.Results[i]
		}
	}
	return nil
}
