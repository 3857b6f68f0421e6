package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rzbill/berth/internal/config"
	"github.com/rzbill/berth/pkg/log"
	"github.com/rzbill/berth/pkg/orchestrator"
	"github.com/rzbill/berth/pkg/render"
	"github.com/rzbill/berth/pkg/runner/docker"
	"github.com/rzbill/berth/pkg/secret"
	"github.com/rzbill/berth/pkg/state"
	"github.com/rzbill/berth/pkg/sysctl"
	"github.com/rzbill/berth/pkg/types"
)

// runtime bundles everything a command needs to act on the host.
type runtime struct {
	cfg        *config.Config
	secrets    *secret.FileStore
	state      state.Store
	controller *docker.Controller
	orch       *orchestrator.Orchestrator
}

// newRuntime wires the stores, the Docker controller and the orchestrator
// from the loaded configuration.
func newRuntime(cfg *config.Config) (*runtime, error) {
	logger := log.GetDefaultLogger()

	secrets, err := secret.OpenFileStore(cfg.SecretsFile(), logger)
	if err != nil {
		return nil, err
	}

	st, err := state.NewBadgerStore(cfg.StateDir(), logger)
	if err != nil {
		return nil, err
	}

	controller, err := docker.NewControllerWithConfig(logger, &docker.Config{
		APIVersion:                cfg.Docker.APIVersion,
		FallbackAPIVersion:        cfg.Docker.FallbackAPIVersion,
		NegotiationTimeoutSeconds: cfg.Docker.NegotiationTimeoutSeconds,
		StopTimeout:               time.Duration(cfg.Docker.StopTimeoutSeconds) * time.Second,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	orch := orchestrator.New(
		secrets,
		st,
		controller,
		render.NewRenderer(cfg.TemplatesDir),
		cfg.EnvDir(),
		orchestrator.WithLogger(logger.WithComponent("orchestrator")),
		orchestrator.WithSysctls(sysctl.NewManager(
			sysctl.WithPersistFile(cfg.Sysctl.PersistFile),
			sysctl.WithLogger(logger.WithComponent("sysctl")),
		)),
	)

	return &runtime{
		cfg:        cfg,
		secrets:    secrets,
		state:      st,
		controller: controller,
		orch:       orch,
	}, nil
}

// Close releases the runtime's stores.
func (r *runtime) Close() {
	if err := r.state.Close(); err != nil {
		log.GetDefaultLogger().Warn("Failed to close state store", log.Err(err))
	}
}

// loadStack reads and validates the stack file.
func loadStack(path string) (*types.Stack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stack file %s: %w", path, err)
	}
	return types.ParseStack(data)
}
