package types

import (
	"strings"
	"time"
)

// ServiceSpec is the YAML specification for one deployable service.
// Specs are immutable after the stack file is loaded; the controller
// derives everything it applies from this structure.
type ServiceSpec struct {
	// Human-readable name for the service, also the container name (required)
	Name string `json:"name" yaml:"name"`

	// Container image reference, repository plus immutable tag (required)
	Image string `json:"image" yaml:"image"`

	// Command overrides the image CMD
	Command []string `json:"command,omitempty" yaml:"command,omitempty"`

	// Networks to attach the container to (created on demand)
	Networks []string `json:"networks,omitempty" yaml:"networks,omitempty"`

	// Volume mounts, in declaration order
	Volumes []VolumeMount `json:"volumes,omitempty" yaml:"volumes,omitempty"`

	// Published ports
	Ports []PortBinding `json:"ports,omitempty" yaml:"ports,omitempty"`

	// Literal environment variables
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Secrets required by this service. Each is ensured in the master
	// store before deploy and exported into the service's scoped env file.
	Secrets []SecretRequirement `json:"secrets,omitempty" yaml:"secrets,omitempty"`

	// Linux capabilities to add
	CapAdd []string `json:"cap_add,omitempty" yaml:"cap_add,omitempty"`

	// Process ulimits
	Ulimits []Ulimit `json:"ulimits,omitempty" yaml:"ulimits,omitempty"`

	// Kernel tunables that must hold before the service starts
	Sysctls []SysctlRequirement `json:"sysctls,omitempty" yaml:"sysctls,omitempty"`

	// Configuration files rendered from templates before deploy
	Configs []ConfigFile `json:"configs,omitempty" yaml:"configs,omitempty"`

	// Readiness probe definition
	Health *HealthCheck `json:"health,omitempty" yaml:"health,omitempty"`

	// HTTP bootstrap requests executed once the service is ready
	PostDeploy []HTTPAction `json:"post_deploy,omitempty" yaml:"post_deploy,omitempty"`
}

// VolumeMount describes one mount. A source containing a path separator is
// bind-mounted from the host; anything else names a managed volume that is
// created if absent.
type VolumeMount struct {
	Source   string `json:"source" yaml:"source"`
	Target   string `json:"target" yaml:"target"`
	ReadOnly bool   `json:"read_only,omitempty" yaml:"read_only,omitempty"`
}

// IsBind reports whether the mount is a host-path bind mount.
func (m VolumeMount) IsBind() bool {
	return strings.Contains(m.Source, "/")
}

// PortBinding publishes a container port on the host.
type PortBinding struct {
	HostIP        string `json:"host_ip,omitempty" yaml:"host_ip,omitempty"`
	HostPort      int    `json:"host_port" yaml:"host_port"`
	ContainerPort int    `json:"container_port" yaml:"container_port"`
	Protocol      string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
}

// Ulimit sets a process resource limit inside the container.
type Ulimit struct {
	Name string `json:"name" yaml:"name"`
	Soft int64  `json:"soft" yaml:"soft"`
	Hard int64  `json:"hard" yaml:"hard"`
}

// SysctlRequirement pins a host kernel parameter to a minimum value.
type SysctlRequirement struct {
	Key   string `json:"key" yaml:"key"`
	Value int64  `json:"value" yaml:"value"`
}

// SecretRequirement names a secret the service needs and how to generate it
// on first use. Generator names are registered in the secret package.
type SecretRequirement struct {
	Key       string `json:"key" yaml:"key"`
	Generator string `json:"generator,omitempty" yaml:"generator,omitempty"`
}

// ConfigFile maps a template to a rendered file the service mounts.
type ConfigFile struct {
	// Template is the template path relative to the templates directory.
	Template string `json:"template" yaml:"template"`

	// Target is the absolute destination path for the rendered file.
	Target string `json:"target" yaml:"target"`

	// Ownership and permissions required by the consuming container.
	UID  int    `json:"uid,omitempty" yaml:"uid,omitempty"`
	GID  int    `json:"gid,omitempty" yaml:"gid,omitempty"`
	Mode uint32 `json:"mode,omitempty" yaml:"mode,omitempty"`

	// Vars are extra template variables beyond the service's secrets.
	Vars map[string]string `json:"vars,omitempty" yaml:"vars,omitempty"`
}

// HealthCheck describes how readiness is probed and how raw probe output is
// classified.
type HealthCheck struct {
	// Type selects the checker: "http" polls URL, "log" scans container logs.
	Type string `json:"type" yaml:"type"`

	// URL for HTTP checks.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Insecure skips TLS verification, for services bootstrapped with
	// self-signed certificates.
	Insecure bool `json:"insecure,omitempty" yaml:"insecure,omitempty"`

	// Basic-auth credentials for HTTP checks; the password names a secret key.
	Username           string `json:"username,omitempty" yaml:"username,omitempty"`
	PasswordFromSecret string `json:"password_from_secret,omitempty" yaml:"password_from_secret,omitempty"`

	// Rules classify raw probe output, evaluated in order; first match wins.
	Rules []ClassifyRule `json:"rules,omitempty" yaml:"rules,omitempty"`

	// Attempts bounds the polling loop; Interval is the fixed sleep between
	// attempts.
	Attempts int           `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Interval time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
}

// ClassifyRule maps a substring of raw probe output to a health status.
type ClassifyRule struct {
	Contains string       `json:"contains" yaml:"contains"`
	Status   HealthStatus `json:"status" yaml:"status"`
}

// HTTPAction is an idempotent bootstrap request executed after the service
// reports ready, e.g. setting a service-account password or installing an
// ingest pipeline.
type HTTPAction struct {
	Name   string `json:"name" yaml:"name"`
	Method string `json:"method" yaml:"method"`
	URL    string `json:"url" yaml:"url"`

	// Body is a template rendered with the service's variables and secrets.
	Body        string `json:"body,omitempty" yaml:"body,omitempty"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`

	// Basic-auth credentials; the password names a secret key.
	Username           string `json:"username,omitempty" yaml:"username,omitempty"`
	PasswordFromSecret string `json:"password_from_secret,omitempty" yaml:"password_from_secret,omitempty"`

	// ExpectStatus lists the HTTP statuses treated as success. Empty means
	// any 2xx.
	ExpectStatus []int `json:"expect_status,omitempty" yaml:"expect_status,omitempty"`
}

// Validate checks that the spec is well-formed.
func (s *ServiceSpec) Validate() error {
	if s.Name == "" {
		return NewValidationError("service name is required")
	}
	if s.Image == "" {
		return NewValidationError("service %s: image is required", s.Name)
	}
	if !strings.Contains(s.Image, ":") {
		return NewValidationError("service %s: image %q must carry an explicit tag", s.Name, s.Image)
	}
	for _, m := range s.Volumes {
		if m.Source == "" || m.Target == "" {
			return NewValidationError("service %s: volume mounts need source and target", s.Name)
		}
		if !strings.HasPrefix(m.Target, "/") {
			return NewValidationError("service %s: mount target %q must be absolute", s.Name, m.Target)
		}
	}
	for _, p := range s.Ports {
		if p.HostPort <= 0 || p.HostPort > 65535 || p.ContainerPort <= 0 || p.ContainerPort > 65535 {
			return NewValidationError("service %s: port binding %d:%d out of range", s.Name, p.HostPort, p.ContainerPort)
		}
	}
	for _, sec := range s.Secrets {
		if sec.Key == "" {
			return NewValidationError("service %s: secret requirement without a key", s.Name)
		}
	}
	for _, c := range s.Configs {
		if c.Template == "" || c.Target == "" {
			return NewValidationError("service %s: config files need template and target", s.Name)
		}
	}
	if s.Health != nil {
		if err := s.Health.Validate(s.Name); err != nil {
			return err
		}
	}
	for _, a := range s.PostDeploy {
		if a.Name == "" || a.Method == "" || a.URL == "" {
			return NewValidationError("service %s: post-deploy actions need name, method and url", s.Name)
		}
	}
	return nil
}

// Validate checks that the health check definition is well-formed.
func (h *HealthCheck) Validate(service string) error {
	switch h.Type {
	case "http", "log":
	default:
		return NewValidationError("service %s: unknown health check type %q", service, h.Type)
	}
	if h.Type == "http" && h.URL == "" {
		return NewValidationError("service %s: http health check requires url", service)
	}
	if h.Type == "log" && len(h.Rules) == 0 {
		return NewValidationError("service %s: log health check requires classify rules", service)
	}
	for _, r := range h.Rules {
		switch r.Status {
		case HealthReady, HealthBooting, HealthDegraded, HealthFatal:
		default:
			return NewValidationError("service %s: classify rule %q has unknown status %q", service, r.Contains, r.Status)
		}
	}
	return nil
}
