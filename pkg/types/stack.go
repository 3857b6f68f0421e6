package types

import (
	"gopkg.in/yaml.v3"
)

// Stack is the declarative description of a whole deployment: an ordered
// list of services. Order is dependency order; services are converged
// strictly in sequence.
type Stack struct {
	// Name of the stack, used for logging and state scoping.
	Name string `json:"name" yaml:"name"`

	// Services in deploy order.
	Services []ServiceSpec `json:"services" yaml:"services"`
}

// ParseStack decodes and validates a stack file.
func ParseStack(data []byte) (*Stack, error) {
	var stack Stack
	if err := yaml.Unmarshal(data, &stack); err != nil {
		return nil, NewValidationError("invalid stack file: %v", err)
	}
	if err := stack.Validate(); err != nil {
		return nil, err
	}
	return &stack, nil
}

// Validate checks stack-level invariants and every service spec.
func (s *Stack) Validate() error {
	if s.Name == "" {
		return NewValidationError("stack name is required")
	}
	if len(s.Services) == 0 {
		return NewValidationError("stack %s declares no services", s.Name)
	}
	seen := make(map[string]bool, len(s.Services))
	for i := range s.Services {
		svc := &s.Services[i]
		if seen[svc.Name] {
			return NewValidationError("stack %s: duplicate service name %q", s.Name, svc.Name)
		}
		seen[svc.Name] = true
		if err := svc.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Service returns the named service spec, or nil.
func (s *Stack) Service(name string) *ServiceSpec {
	for i := range s.Services {
		if s.Services[i].Name == name {
			return &s.Services[i]
		}
	}
	return nil
}
