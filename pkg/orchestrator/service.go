package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rzbill/berth/pkg/log"
	"github.com/rzbill/berth/pkg/probe"
	"github.com/rzbill/berth/pkg/render"
	"github.com/rzbill/berth/pkg/runner"
	"github.com/rzbill/berth/pkg/secret"
	"github.com/rzbill/berth/pkg/state"
	"github.com/rzbill/berth/pkg/types"
)

// deployService runs every stage for one service and returns its result.
func (o *Orchestrator) deployService(ctx context.Context, spec *types.ServiceSpec, runID string) types.ServiceResult {
	started := time.Now()
	logger := o.logger.With(log.Str("service", spec.Name))

	fail := func(stage types.Stage, err error) types.ServiceResult {
		return types.ServiceResult{
			Service:  spec.Name,
			Outcome:  types.OutcomeFailed,
			Stage:    stage,
			Message:  err.Error(),
			Duration: time.Since(started),
		}
	}

	secrets, err := o.ensureSecrets(spec)
	if err != nil {
		return fail(types.StageSecrets, err)
	}

	if err := o.renderConfigs(spec, secrets, logger); err != nil {
		return fail(types.StageRender, err)
	}

	env := resolveEnv(spec, secrets)

	st, err := o.converge(ctx, spec, env, runID)
	if err != nil {
		return fail(types.StageConverge, err)
	}

	if spec.Health != nil {
		if err := o.waitReady(ctx, spec, secrets, logger); err != nil {
			return fail(types.StageHealth, err)
		}
	}

	if len(spec.PostDeploy) > 0 {
		if err := o.runPostDeploy(ctx, spec, secrets, logger); err != nil {
			return fail(types.StagePostDeploy, err)
		}
	}

	logger.Info("Service deployed", log.Duration("took", time.Since(started)))
	return types.ServiceResult{
		Service:  spec.Name,
		Outcome:  types.OutcomeSuccess,
		State:    st,
		Duration: time.Since(started),
	}
}

// ensureSecrets guarantees every declared secret exists and refreshes the
// service's scoped env file. Returns the resolved secret values.
func (o *Orchestrator) ensureSecrets(spec *types.ServiceSpec) (map[string]string, error) {
	secrets := make(map[string]string, len(spec.Secrets))
	keys := make([]string, 0, len(spec.Secrets))

	for _, req := range spec.Secrets {
		gen, err := secret.Named(req.Generator)
		if err != nil {
			return nil, types.NewValidationError("service %s: %v", spec.Name, err)
		}
		value, err := o.secrets.Ensure(req.Key, gen)
		if err != nil {
			return nil, err
		}
		secrets[req.Key] = value
		keys = append(keys, req.Key)
	}

	if len(keys) > 0 && o.envDir != "" {
		path := filepath.Join(o.envDir, spec.Name+".env")
		if err := secret.WriteScopedEnvFile(o.secrets, path, keys); err != nil {
			return nil, err
		}
	}
	return secrets, nil
}

// renderConfigs renders every declared config file and writes the ones
// whose content changed.
func (o *Orchestrator) renderConfigs(spec *types.ServiceSpec, secrets map[string]string, logger log.Logger) error {
	for _, cfg := range spec.Configs {
		vars := mergeVars(spec.Env, secrets, cfg.Vars)
		rendered, err := o.renderer.Render(cfg, vars)
		if err != nil {
			return err
		}
		result, err := render.Write(rendered)
		if err != nil {
			return err
		}
		logger.Debug("Config rendered",
			log.Str("target", rendered.Target),
			log.Str("result", string(result)))
	}
	return nil
}

// converge brings the container to the declared state and records the
// applied fingerprint.
func (o *Orchestrator) converge(ctx context.Context, spec *types.ServiceSpec, env map[string]string, runID string) (types.ServiceState, error) {
	if o.sysctls != nil && len(spec.Sysctls) > 0 {
		if err := o.sysctls.Ensure(spec.Sysctls); err != nil {
			return types.ServiceStateAbsent, err
		}
	}

	st, err := o.controller.Converge(ctx, spec, env)
	if err != nil {
		return st, err
	}

	rec := &state.AppliedSpec{
		Service:     spec.Name,
		Fingerprint: runner.Fingerprint(spec, env),
		Image:       spec.Image,
		RunID:       runID,
		AppliedAt:   time.Now().UTC(),
	}
	if err := o.state.PutApplied(ctx, rec); err != nil {
		return st, err
	}
	return st, nil
}

// waitReady polls the service's health check until it is ready, fails
// fatally, or the retry budget runs out.
func (o *Orchestrator) waitReady(ctx context.Context, spec *types.ServiceSpec, secrets map[string]string, logger log.Logger) error {
	hc := spec.Health

	checker, err := o.buildChecker(spec, secrets)
	if err != nil {
		return err
	}

	rules := hc.Rules
	if len(rules) == 0 {
		rules = probe.DefaultHTTPRules()
	}
	classifier := probe.NewClassifier(rules, types.HealthBooting)

	opts := probe.DefaultOptions()
	if hc.Attempts > 0 {
		opts.MaxAttempts = hc.Attempts
	}
	if hc.Interval > 0 {
		opts.Interval = hc.Interval
	}
	if o.probeOpts != nil {
		opts = *o.probeOpts
	}
	opts.Logger = logger

	result := probe.WaitReady(ctx, checker, classifier, opts)
	switch result.Status {
	case types.HealthReady:
		logger.Info("Service ready", log.Int("attempts", result.Attempts))
		return nil
	case types.HealthFatal:
		return &types.HealthFatalError{
			Service:  spec.Name,
			Attempts: result.Attempts,
			Detail:   result.Detail,
		}
	default:
		return &types.HealthTimeoutError{
			Service:  spec.Name,
			Attempts: result.Attempts,
			Last:     result.Status,
			Detail:   result.Detail,
		}
	}
}

func (o *Orchestrator) buildChecker(spec *types.ServiceSpec, secrets map[string]string) (probe.Checker, error) {
	hc := spec.Health
	switch hc.Type {
	case "http":
		password := ""
		if hc.PasswordFromSecret != "" {
			var err error
			password, err = o.secretValue(hc.PasswordFromSecret, secrets)
			if err != nil {
				return nil, err
			}
		}
		return &probe.HTTPChecker{
			URL:      hc.URL,
			Username: hc.Username,
			Password: password,
			Insecure: hc.Insecure,
			Client:   o.httpClient,
		}, nil
	case "log":
		return &probe.LogChecker{Controller: o.controller, Service: spec.Name}, nil
	default:
		return nil, types.NewValidationError("service %s: unknown health check type %q", spec.Name, hc.Type)
	}
}

// secretValue looks up a secret first among the service's own resolved
// secrets, then in the store, so a check may reference a secret ensured by
// an earlier service.
func (o *Orchestrator) secretValue(key string, secrets map[string]string) (string, error) {
	if v, ok := secrets[key]; ok {
		return v, nil
	}
	v, ok, err := o.secrets.Get(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("secret %s not found", key)
	}
	return v, nil
}

// resolveEnv builds the container environment: literals first, secrets on
// top.
func resolveEnv(spec *types.ServiceSpec, secrets map[string]string) map[string]string {
	env := make(map[string]string, len(spec.Env)+len(secrets))
	for k, v := range spec.Env {
		env[k] = v
	}
	for k, v := range secrets {
		env[k] = v
	}
	return env
}

// mergeVars layers template variable sources, later maps winning.
func mergeVars(maps ...map[string]string) map[string]string {
	merged := map[string]string{}
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}
