package runner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/rzbill/berth/pkg/types"
)

// fingerprintDoc is the canonical encoding hashed into a spec fingerprint.
// Field order and sorted maps keep the encoding stable, so equal effective
// configurations always hash identically.
type fingerprintDoc struct {
	Image    string              `json:"image"`
	Command  []string            `json:"command,omitempty"`
	Networks []string            `json:"networks,omitempty"`
	Volumes  []types.VolumeMount `json:"volumes,omitempty"`
	Ports    []types.PortBinding `json:"ports,omitempty"`
	Env      [][2]string         `json:"env,omitempty"`
	CapAdd   []string            `json:"cap_add,omitempty"`
	Ulimits  []types.Ulimit      `json:"ulimits,omitempty"`
}

// Fingerprint summarizes a service's effective configuration: image, mounts,
// ports, networks, capabilities, ulimits and the resolved environment.
// Anything that changes the fingerprint forces a destroy-and-recreate on the
// next converge.
func Fingerprint(spec *types.ServiceSpec, env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, env[k]})
	}

	doc := fingerprintDoc{
		Image:    spec.Image,
		Command:  spec.Command,
		Networks: spec.Networks,
		Volumes:  spec.Volumes,
		Ports:    spec.Ports,
		Env:      pairs,
		CapAdd:   spec.CapAdd,
		Ulimits:  spec.Ulimits,
	}

	// Marshaling a struct of strings and slices cannot fail.
	data, _ := json.Marshal(doc)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
