package orchestrator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rzbill/berth/pkg/log"
	"github.com/rzbill/berth/pkg/probe"
	"github.com/rzbill/berth/pkg/render"
	"github.com/rzbill/berth/pkg/secret"
	"github.com/rzbill/berth/pkg/state"
	"github.com/rzbill/berth/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeController records converge calls and fails on demand.
type fakeController struct {
	converged []string
	failOn    map[string]error
	states    map[string]types.ServiceState
	logs      map[string]string
	lastEnv   map[string]map[string]string
}

func newFakeController() *fakeController {
	return &fakeController{
		failOn:  map[string]error{},
		states:  map[string]types.ServiceState{},
		logs:    map[string]string{},
		lastEnv: map[string]map[string]string{},
	}
}

func (f *fakeController) Converge(ctx context.Context, spec *types.ServiceSpec, env map[string]string) (types.ServiceState, error) {
	f.converged = append(f.converged, spec.Name)
	f.lastEnv[spec.Name] = env
	if err := f.failOn[spec.Name]; err != nil {
		return types.ServiceStateAbsent, err
	}
	f.states[spec.Name] = types.ServiceStateRunning
	return types.ServiceStateRunning, nil
}

func (f *fakeController) Status(ctx context.Context, service string) (types.ServiceState, error) {
	st, ok := f.states[service]
	if !ok {
		return types.ServiceStateAbsent, nil
	}
	return st, nil
}

func (f *fakeController) Logs(ctx context.Context, service string, tail int) (string, error) {
	return f.logs[service], nil
}

type fakeSysctls struct {
	ensured []types.SysctlRequirement
	err     error
}

func (f *fakeSysctls) Ensure(reqs []types.SysctlRequirement) error {
	f.ensured = append(f.ensured, reqs...)
	return f.err
}

type fixture struct {
	orch       *Orchestrator
	controller *fakeController
	secrets    *secret.MemoryStore
	state      *state.MemoryStore
	sysctls    *fakeSysctls
	envDir     string
	tmplDir    string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		controller: newFakeController(),
		secrets:    secret.NewMemoryStore(),
		state:      state.NewMemoryStore(),
		sysctls:    &fakeSysctls{},
		envDir:     filepath.Join(dir, "env"),
		tmplDir:    filepath.Join(dir, "templates"),
	}
	require.NoError(t, os.MkdirAll(f.envDir, 0o755))
	require.NoError(t, os.MkdirAll(f.tmplDir, 0o755))

	all := append([]Option{
		WithLogger(log.NewTestLogger()),
		WithSysctls(f.sysctls),
	}, opts...)

	f.orch = New(f.secrets, f.state, f.controller, render.NewRenderer(f.tmplDir), f.envDir, all...)
	return f
}

func simpleStack(names ...string) *types.Stack {
	stack := &types.Stack{Name: "elk"}
	for _, n := range names {
		stack.Services = append(stack.Services, types.ServiceSpec{
			Name:  n,
			Image: "example/" + n + ":1.0",
		})
	}
	return stack
}

func TestDeployAllSucceed(t *testing.T) {
	f := newFixture(t)
	stack := simpleStack("search", "ingest", "dashboards")

	report, err := f.orch.Deploy(context.Background(), stack)
	require.NoError(t, err)

	require.Len(t, report.Results, 3)
	for _, res := range report.Results {
		assert.Equal(t, types.OutcomeSuccess, res.Outcome, res.Service)
		assert.Equal(t, types.ServiceStateRunning, res.State)
	}
	assert.False(t, report.Failed())
	assert.Equal(t, []string{"search", "ingest", "dashboards"}, f.controller.converged)
	assert.NotEmpty(t, report.RunID)

	// Applied fingerprints recorded per service.
	for _, n := range []string{"search", "ingest", "dashboards"} {
		rec, ok, err := f.state.GetApplied(context.Background(), n)
		require.NoError(t, err)
		require.True(t, ok, n)
		assert.Equal(t, report.RunID, rec.RunID)
		assert.NotEmpty(t, rec.Fingerprint)
	}

	// The run landed in the history.
	last, ok, err := f.state.LastRun(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, report.RunID, last.RunID)
}

func TestDeployFailFast(t *testing.T) {
	f := newFixture(t)
	f.controller.failOn["ingest"] = types.NewContainerRuntimeError("ingest", "create container", errors.New("port already allocated"))

	stack := simpleStack("search", "ingest", "dashboards")
	report, err := f.orch.Deploy(context.Background(), stack)
	require.NoError(t, err)

	require.Len(t, report.Results, 3)
	assert.Equal(t, types.OutcomeSuccess, report.Result("search").Outcome)

	failed := report.Result("ingest")
	assert.Equal(t, types.OutcomeFailed, failed.Outcome)
	assert.Equal(t, types.StageConverge, failed.Stage)
	assert.Contains(t, failed.Message, "port already allocated")

	skipped := report.Result("dashboards")
	assert.Equal(t, types.OutcomeSkipped, skipped.Outcome)
	assert.Contains(t, skipped.Message, "ingest")

	// No stage ran for the skipped service.
	assert.Equal(t, []string{"search", "ingest"}, f.controller.converged)
	assert.True(t, report.Failed())
}

func TestDeployEnsuresSecretsAndEnvFile(t *testing.T) {
	f := newFixture(t)
	stack := simpleStack("search")
	stack.Services[0].Env = map[string]string{"discovery.type": "single-node"}
	stack.Services[0].Secrets = []types.SecretRequirement{
		{Key: "ELASTIC_PASSWORD", Generator: "hex16"},
	}

	report, err := f.orch.Deploy(context.Background(), stack)
	require.NoError(t, err)
	assert.False(t, report.Failed())

	value, ok, err := f.secrets.Get("ELASTIC_PASSWORD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, value, 32)

	// The container env carries both the literal and the secret.
	env := f.controller.lastEnv["search"]
	assert.Equal(t, "single-node", env["discovery.type"])
	assert.Equal(t, value, env["ELASTIC_PASSWORD"])

	// Scoped env file written for the service.
	scoped, err := secret.ReadScopedEnvFile(filepath.Join(f.envDir, "search.env"))
	require.NoError(t, err)
	assert.Equal(t, value, scoped["ELASTIC_PASSWORD"])

	// Re-deploy keeps the secret stable.
	_, err = f.orch.Deploy(context.Background(), stack)
	require.NoError(t, err)
	again, _, err := f.secrets.Get("ELASTIC_PASSWORD")
	require.NoError(t, err)
	assert.Equal(t, value, again)
}

func TestDeployRendersConfigs(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(f.tmplDir, "elasticsearch.yml"),
		[]byte("cluster.name: {{.CLUSTER_NAME}}\n"), 0o644))

	target := filepath.Join(t.TempDir(), "conf", "elasticsearch.yml")
	stack := simpleStack("search")
	stack.Services[0].Configs = []types.ConfigFile{
		{
			Template: "elasticsearch.yml",
			Target:   target,
			Vars:     map[string]string{"CLUSTER_NAME": "elk"},
		},
	}

	report, err := f.orch.Deploy(context.Background(), stack)
	require.NoError(t, err)
	assert.False(t, report.Failed())

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "cluster.name: elk\n", string(content))
}

func TestDeployRenderFailureIsFatalForService(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(f.tmplDir, "out.conf"),
		[]byte("password={{.PASSWORD}}\n"), 0o644))

	stack := simpleStack("search", "dashboards")
	stack.Services[0].Configs = []types.ConfigFile{
		{Template: "out.conf", Target: filepath.Join(t.TempDir(), "out.conf")},
	}

	report, err := f.orch.Deploy(context.Background(), stack)
	require.NoError(t, err)

	failed := report.Result("search")
	assert.Equal(t, types.OutcomeFailed, failed.Outcome)
	assert.Equal(t, types.StageRender, failed.Stage)
	assert.Equal(t, types.OutcomeSkipped, report.Result("dashboards").Outcome)

	// Converge never ran for the failed service.
	assert.Empty(t, f.controller.converged)
}

func TestDeployAppliesSysctls(t *testing.T) {
	f := newFixture(t)
	stack := simpleStack("search")
	stack.Services[0].Sysctls = []types.SysctlRequirement{
		{Key: "vm.max_map_count", Value: 262144},
	}

	report, err := f.orch.Deploy(context.Background(), stack)
	require.NoError(t, err)
	assert.False(t, report.Failed())
	require.Len(t, f.sysctls.ensured, 1)
	assert.Equal(t, "vm.max_map_count", f.sysctls.ensured[0].Key)
}

func TestDeployHealthReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"green"}`))
	}))
	defer server.Close()

	f := newFixture(t, WithProbeOptions(probe.Options{MaxAttempts: 3, Interval: time.Millisecond}))
	stack := simpleStack("search")
	stack.Services[0].Health = &types.HealthCheck{
		Type: "http",
		URL:  server.URL,
		Rules: []types.ClassifyRule{
			{Contains: `"status":"green"`, Status: types.HealthReady},
		},
	}

	report, err := f.orch.Deploy(context.Background(), stack)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSuccess, report.Result("search").Outcome)
}

func TestDeployHealthFatalShortCircuits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("license expired"))
	}))
	defer server.Close()

	f := newFixture(t, WithProbeOptions(probe.Options{MaxAttempts: 50, Interval: time.Millisecond}))
	stack := simpleStack("search", "dashboards")
	stack.Services[0].Health = &types.HealthCheck{
		Type: "http",
		URL:  server.URL,
		Rules: []types.ClassifyRule{
			{Contains: "license expired", Status: types.HealthFatal},
		},
	}

	report, err := f.orch.Deploy(context.Background(), stack)
	require.NoError(t, err)

	failed := report.Result("search")
	assert.Equal(t, types.OutcomeFailed, failed.Outcome)
	assert.Equal(t, types.StageHealth, failed.Stage)
	// Fatal diagnostics surface verbatim, after a single attempt.
	assert.Contains(t, failed.Message, "license expired")
	assert.Contains(t, failed.Message, "1 attempt")
	assert.Equal(t, types.OutcomeSkipped, report.Result("dashboards").Outcome)
}

func TestDeployHealthTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := newFixture(t, WithProbeOptions(probe.Options{MaxAttempts: 3, Interval: time.Millisecond}))
	stack := simpleStack("search")
	stack.Services[0].Health = &types.HealthCheck{Type: "http", URL: server.URL}

	report, err := f.orch.Deploy(context.Background(), stack)
	require.NoError(t, err)

	failed := report.Result("search")
	assert.Equal(t, types.OutcomeFailed, failed.Outcome)
	assert.Equal(t, types.StageHealth, failed.Stage)
	assert.Contains(t, failed.Message, "not ready after 3 attempts")
}

func TestDeployLogHealthCheck(t *testing.T) {
	f := newFixture(t, WithProbeOptions(probe.Options{MaxAttempts: 2, Interval: time.Millisecond}))
	f.controller.logs["shipper"] = "pipeline started\nConnection to backoff(elasticsearch) established"

	stack := simpleStack("shipper")
	stack.Services[0].Health = &types.HealthCheck{
		Type: "log",
		Rules: []types.ClassifyRule{
			{Contains: "established", Status: types.HealthReady},
		},
	}

	report, err := f.orch.Deploy(context.Background(), stack)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSuccess, report.Result("shipper").Outcome)
}

func TestDeployPostDeployActions(t *testing.T) {
	var gotBody string
	var gotAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _, gotAuth = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := newFixture(t)
	stack := simpleStack("search")
	stack.Services[0].Secrets = []types.SecretRequirement{
		{Key: "KIBANA_PASSWORD", Generator: "hex16"},
	}
	stack.Services[0].PostDeploy = []types.HTTPAction{
		{
			Name:               "set-kibana-password",
			Method:             http.MethodPost,
			URL:                server.URL + "/_security/user/kibana_system/_password",
			Body:               `{"password": "{{.KIBANA_PASSWORD}}"}`,
			Username:           "elastic",
			PasswordFromSecret: "KIBANA_PASSWORD",
		},
	}

	report, err := f.orch.Deploy(context.Background(), stack)
	require.NoError(t, err)
	assert.False(t, report.Failed())

	value, _, err := f.secrets.Get("KIBANA_PASSWORD")
	require.NoError(t, err)
	assert.Contains(t, gotBody, value)
	assert.True(t, gotAuth)
}

func TestDeployPostDeployUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("security features disabled"))
	}))
	defer server.Close()

	f := newFixture(t)
	stack := simpleStack("search")
	stack.Services[0].PostDeploy = []types.HTTPAction{
		{
			Name:         "install-pipeline",
			Method:       http.MethodPut,
			URL:          server.URL + "/_ingest/pipeline/logs",
			ExpectStatus: []int{200, 201},
		},
	}

	report, err := f.orch.Deploy(context.Background(), stack)
	require.NoError(t, err)

	failed := report.Result("search")
	assert.Equal(t, types.OutcomeFailed, failed.Outcome)
	assert.Equal(t, types.StagePostDeploy, failed.Stage)
	assert.Contains(t, failed.Message, "install-pipeline")
	assert.Contains(t, failed.Message, "403")
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	stack := simpleStack("search", "dashboards")

	_, err := f.orch.Deploy(context.Background(), stack)
	require.NoError(t, err)

	statuses, err := f.orch.Status(context.Background(), stack)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	assert.Equal(t, "search", statuses[0].Service)
	assert.Equal(t, types.ServiceStateRunning, statuses[0].State)
	require.NotNil(t, statuses[0].Applied)
	assert.NotEmpty(t, statuses[0].Applied.Fingerprint)
}
