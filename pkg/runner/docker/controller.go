// Package docker provides a Docker-based implementation of the service
// controller interface.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	imageTypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	units "github.com/docker/go-units"
	"github.com/rzbill/berth/pkg/log"
	"github.com/rzbill/berth/pkg/runner"
	"github.com/rzbill/berth/pkg/types"
)

// Labels stamped on every container the controller manages.
const (
	labelManaged     = "berth.managed"
	labelService     = "berth.service"
	labelFingerprint = "berth.fingerprint"
)

// Config holds Docker controller configuration options
type Config struct {
	// APIVersion is the Docker API version to use
	// If empty, auto-negotiation will be used
	APIVersion string

	// FallbackAPIVersion is used when auto-negotiation fails
	// Default is "1.43" which is widely compatible
	FallbackAPIVersion string

	// Timeout for API version negotiation in seconds
	NegotiationTimeoutSeconds int

	// StopTimeout is how long a container gets to shut down cleanly
	// before being killed.
	StopTimeout time.Duration
}

// DefaultConfig returns the default Docker controller configuration
func DefaultConfig() *Config {
	return &Config{
		APIVersion:                "",     // Empty means use auto-negotiation
		FallbackAPIVersion:        "1.43", // Fallback to a widely compatible version
		NegotiationTimeoutSeconds: 3,
		StopTimeout:               30 * time.Second,
	}
}

// Validate that Controller implements the runner.Controller interface
var _ runner.Controller = &Controller{}

// Controller implements the runner.Controller interface for Docker.
type Controller struct {
	client *client.Client
	logger log.Logger
	config *Config
}

// NewController creates a new Docker controller with default configuration.
func NewController(logger log.Logger) (*Controller, error) {
	return NewControllerWithConfig(logger, DefaultConfig())
}

// NewControllerWithConfig creates a new Docker controller with specific configuration.
func NewControllerWithConfig(logger log.Logger, config *Config) (*Controller, error) {
	if logger == nil {
		logger = log.GetDefaultLogger().WithComponent("docker-controller")
	}
	if config == nil {
		config = DefaultConfig()
	}

	cli, err := createClientWithVersionHandling(logger, config)
	if err != nil {
		return nil, err
	}

	return &Controller{
		client: cli,
		logger: logger,
		config: config,
	}, nil
}

// createClientWithVersionHandling creates a Docker client with appropriate API version handling
func createClientWithVersionHandling(logger log.Logger, config *Config) (*client.Client, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	// If a specific API version is configured, use it
	if config.APIVersion != "" {
		logger.Info("Using specified Docker API version",
			log.Str("api_version", config.APIVersion))

		dockerClient, err = client.NewClientWithOpts(
			client.FromEnv,
			client.WithVersion(config.APIVersion),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Docker client with version %s: %w", config.APIVersion, err)
		}

		return dockerClient, nil
	}

	// Otherwise negotiate the API version with a bounded timeout
	negotiationTimeout := time.Duration(config.NegotiationTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), negotiationTimeout)
	defer cancel()

	dockerClient.NegotiateAPIVersion(ctx)
	clientVersion := dockerClient.ClientVersion()
	logger.Debug("Using negotiated Docker API version", log.Str("api_version", clientVersion))

	if err := verifyClientCompatibility(dockerClient, clientVersion, config.FallbackAPIVersion, logger); err != nil {
		return nil, err
	}

	return dockerClient, nil
}

// verifyClientCompatibility checks if the Docker client is compatible with the server
// and falls back to a compatible version if needed
func verifyClientCompatibility(dockerClient *client.Client, clientVersion, fallbackVersion string, logger log.Logger) error {
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer pingCancel()

	_, err := dockerClient.Ping(pingCtx)

	if err != nil && strings.Contains(err.Error(), "client version") &&
		strings.Contains(err.Error(), "too new") {
		logger.Warn("Docker API version mismatch, falling back to compatibility version",
			log.Str("current_version", clientVersion),
			log.Str("fallback_version", fallbackVersion),
			log.Err(err))

		newClient, err := client.NewClientWithOpts(
			client.FromEnv,
			client.WithVersion(fallbackVersion),
		)
		if err != nil {
			return fmt.Errorf("failed to create Docker client with fallback version %s: %w",
				fallbackVersion, err)
		}

		*dockerClient = *newClient
	} else if err != nil {
		// A non-version error here usually means the daemon is down; the
		// first real operation will surface it as a ContainerRuntimeError.
		logger.Warn("Docker ping error (continuing anyway)", log.Err(err))
	}

	return nil
}

// Converge brings the named service's container to the state described by
// spec. The sequence is: inspect by name, compare fingerprints, stop and
// remove on any difference, ensure volumes and networks, create and start.
// Every step tolerates re-runs.
func (c *Controller) Converge(ctx context.Context, spec *types.ServiceSpec, env map[string]string) (types.ServiceState, error) {
	fingerprint := runner.Fingerprint(spec, env)

	insp, found, err := c.inspect(ctx, spec.Name)
	if err != nil {
		return types.ServiceStateAbsent, types.NewContainerRuntimeError(spec.Name, "inspect", err)
	}

	if found {
		applied := insp.Config.Labels[labelFingerprint]
		if applied == fingerprint {
			if insp.State.Running {
				c.logger.Debug("Container already converged",
					log.Str("service", spec.Name),
					log.Str("fingerprint", fingerprint))
				return types.ServiceStateRunning, nil
			}

			// Same spec, container merely stopped: start it again.
			if err := c.client.ContainerStart(ctx, insp.ID, container.StartOptions{}); err != nil {
				return types.ServiceStateStopped, types.NewContainerRuntimeError(spec.Name, "start", err)
			}
			c.logger.Info("Started existing container", log.Str("service", spec.Name))
			return types.ServiceStateRunning, nil
		}

		// Spec changed: clean-slate semantics, never patch in place.
		c.logger.Info("Spec fingerprint changed, recreating container",
			log.Str("service", spec.Name),
			log.Str("applied", applied),
			log.Str("desired", fingerprint))
		if err := c.removeContainer(ctx, insp.ID, insp.State.Running); err != nil {
			return types.ServiceStateStopped, types.NewContainerRuntimeError(spec.Name, "remove", err)
		}
	}

	for _, vol := range spec.Volumes {
		if vol.IsBind() {
			continue
		}
		if err := c.ensureVolume(ctx, vol.Source); err != nil {
			return types.ServiceStateAbsent, types.NewContainerRuntimeError(spec.Name, "volume-create", err)
		}
	}

	for _, netName := range spec.Networks {
		if err := c.ensureNetwork(ctx, netName); err != nil {
			return types.ServiceStateAbsent, types.NewContainerRuntimeError(spec.Name, "network-create", err)
		}
	}

	if err := c.pullImage(ctx, spec.Image); err != nil {
		return types.ServiceStateAbsent, types.NewContainerRuntimeError(spec.Name, "pull", err)
	}

	containerConfig, hostConfig, netConfig := c.specToContainerConfig(spec, env, fingerprint)

	resp, err := c.client.ContainerCreate(ctx, containerConfig, hostConfig, netConfig, nil, spec.Name)
	if err != nil {
		return types.ServiceStateAbsent, types.NewContainerRuntimeError(spec.Name, "create", err)
	}

	// Attach any additional networks before start; the first one rides
	// along in the create request.
	for i, netName := range spec.Networks {
		if i == 0 {
			continue
		}
		if err := c.client.NetworkConnect(ctx, netName, resp.ID, nil); err != nil {
			return types.ServiceStateStopped, types.NewContainerRuntimeError(spec.Name, "network-connect", err)
		}
	}

	if err := c.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return types.ServiceStateStopped, types.NewContainerRuntimeError(spec.Name, "start", err)
	}

	c.logger.Info("Created and started container",
		log.Str("service", spec.Name),
		log.Str("container_id", resp.ID),
		log.Str("fingerprint", fingerprint))

	return types.ServiceStateRunning, nil
}

// Status reports the observed state of the named service's container.
func (c *Controller) Status(ctx context.Context, service string) (types.ServiceState, error) {
	insp, found, err := c.inspect(ctx, service)
	if err != nil {
		return types.ServiceStateAbsent, types.NewContainerRuntimeError(service, "inspect", err)
	}
	if !found {
		return types.ServiceStateAbsent, nil
	}
	if !insp.State.Running {
		return types.ServiceStateStopped, nil
	}
	if insp.State.Health != nil && insp.State.Health.Status == "unhealthy" {
		return types.ServiceStateUnhealthy, nil
	}
	return types.ServiceStateRunning, nil
}

// Logs returns up to tail lines of recent container output. Docker
// multiplexes stdout and stderr on one stream, so the result is
// demultiplexed into plain text.
func (c *Controller) Logs(ctx context.Context, service string, tail int) (string, error) {
	tailStr := "all"
	if tail > 0 {
		tailStr = strconv.Itoa(tail)
	}

	reader, err := c.client.ContainerLogs(ctx, service, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tailStr,
	})
	if err != nil {
		return "", types.NewContainerRuntimeError(service, "logs", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, reader); err != nil && err != io.EOF {
		return "", types.NewContainerRuntimeError(service, "logs", err)
	}

	return buf.String(), nil
}

// inspect looks up a container by service name.
func (c *Controller) inspect(ctx context.Context, service string) (container.InspectResponse, bool, error) {
	insp, err := c.client.ContainerInspect(ctx, service)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return container.InspectResponse{}, false, nil
		}
		return container.InspectResponse{}, false, err
	}

	// A same-named container we did not create is an operator conflict,
	// not something to silently adopt or destroy.
	if insp.Config == nil || insp.Config.Labels[labelManaged] != "true" {
		return container.InspectResponse{}, false,
			fmt.Errorf("container %s exists but is not managed by berth", service)
	}

	return insp, true, nil
}

// removeContainer stops (when running) and removes a container.
func (c *Controller) removeContainer(ctx context.Context, containerID string, running bool) error {
	if running {
		timeoutSeconds := int(c.config.StopTimeout.Seconds())
		if err := c.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeoutSeconds}); err != nil {
			return fmt.Errorf("failed to stop container: %w", err)
		}
	}
	if err := c.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// ensureVolume creates a named volume if absent. Creation is idempotent and
// never destroys existing volume data.
func (c *Controller) ensureVolume(ctx context.Context, name string) error {
	_, err := c.client.VolumeCreate(ctx, volume.CreateOptions{Name: name})
	return err
}

// ensureNetwork creates a bridge network if absent.
func (c *Controller) ensureNetwork(ctx context.Context, name string) error {
	_, err := c.client.NetworkInspect(ctx, name, network.InspectOptions{})
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return err
	}

	_, err = c.client.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"})
	return err
}

// pullImage pulls an image from the registry if it doesn't exist locally
func (c *Controller) pullImage(ctx context.Context, image string) error {
	_, _, err := c.client.ImageInspectWithRaw(ctx, image)
	if err == nil {
		// Image exists locally
		return nil
	}

	c.logger.Info("Pulling Docker image", log.Str("image", image))

	reader, err := c.client.ImagePull(ctx, image, imageTypes.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	// Read the output to complete the pull
	_, err = io.Copy(io.Discard, reader)
	return err
}

// specToContainerConfig converts a service spec to Docker container configs.
func (c *Controller) specToContainerConfig(spec *types.ServiceSpec, env map[string]string, fingerprint string) (*container.Config, *container.HostConfig, *network.NetworkingConfig) {
	exposed, bindings := portMaps(spec.Ports)

	containerConfig := &container.Config{
		Image: spec.Image,
		Cmd:   spec.Command,
		Env:   formatEnvVars(env),
		Labels: map[string]string{
			labelManaged:     "true",
			labelService:     spec.Name,
			labelFingerprint: fingerprint,
		},
		ExposedPorts: exposed,
	}

	hostConfig := &container.HostConfig{
		Mounts:        specMounts(spec.Volumes),
		PortBindings:  bindings,
		CapAdd:        spec.CapAdd,
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}
	for _, u := range spec.Ulimits {
		hostConfig.Ulimits = append(hostConfig.Ulimits, &units.Ulimit{
			Name: u.Name,
			Soft: u.Soft,
			Hard: u.Hard,
		})
	}

	var netConfig *network.NetworkingConfig
	if len(spec.Networks) > 0 {
		netConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Networks[0]: {},
			},
		}
	}

	return containerConfig, hostConfig, netConfig
}

// specMounts converts declared volume mounts to Docker mounts, preserving
// declaration order.
func specMounts(volumes []types.VolumeMount) []mount.Mount {
	mounts := make([]mount.Mount, 0, len(volumes))
	for _, v := range volumes {
		mountType := mount.TypeVolume
		if v.IsBind() {
			mountType = mount.TypeBind
		}
		mounts = append(mounts, mount.Mount{
			Type:     mountType,
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}
	return mounts
}

// portMaps builds the exposed-port set and host bindings for the spec's
// published ports.
func portMaps(ports []types.PortBinding) (nat.PortSet, nat.PortMap) {
	if len(ports) == 0 {
		return nil, nil
	}

	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range ports {
		proto := p.Protocol
		if proto == "" {
			proto = "tcp"
		}
		port := nat.Port(fmt.Sprintf("%d/%s", p.ContainerPort, proto))
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{
			HostIP:   p.HostIP,
			HostPort: strconv.Itoa(p.HostPort),
		})
	}
	return exposed, bindings
}

// formatEnvVars formats a map of environment variables into a sorted slice
// of "key=value" strings.
func formatEnvVars(env map[string]string) []string {
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	// Map iteration order is random; sort so container config is stable.
	sort.Strings(result)
	return result
}
