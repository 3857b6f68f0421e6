package probe

import (
	"strings"

	"github.com/rzbill/berth/pkg/types"
)

// Classifier maps raw probe output to a health status through an ordered
// list of substring rules. The first matching rule wins; unmatched output
// falls back to the default status.
type Classifier struct {
	rules    []types.ClassifyRule
	fallback types.HealthStatus
}

// NewClassifier creates a classifier from an ordered rule list.
func NewClassifier(rules []types.ClassifyRule, fallback types.HealthStatus) *Classifier {
	if fallback == "" {
		fallback = types.HealthBooting
	}
	return &Classifier{rules: rules, fallback: fallback}
}

// Classify returns the status for the raw output and the diagnostic that
// produced it. For matched rules the detail is the raw output itself, so
// fatal diagnostics reach the caller verbatim.
func (c *Classifier) Classify(raw string) (types.HealthStatus, string) {
	for _, rule := range c.rules {
		if strings.Contains(raw, rule.Contains) {
			return rule.Status, raw
		}
	}
	return c.fallback, raw
}

// DefaultHTTPRules classify a plain status-code probe: any 2xx is ready,
// everything else keeps waiting. Services layer their own rules on top,
// e.g. matching a cluster-health JSON field or a fatal certificate error.
func DefaultHTTPRules() []types.ClassifyRule {
	return []types.ClassifyRule{
		{Contains: "status=200", Status: types.HealthReady},
		{Contains: "status=2", Status: types.HealthReady},
	}
}
