// Package sysctl ensures host kernel parameters meet the minimums a
// service declares, e.g. vm.max_map_count for Elasticsearch. Values are
// raised in place through /proc/sys and persisted to a sysctl.d drop-in
// so they survive reboots. A value already at or above the requirement is
// left untouched.
package sysctl

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rzbill/berth/pkg/log"
	"github.com/rzbill/berth/pkg/types"
)

const (
	defaultProcRoot    = "/proc/sys"
	defaultPersistFile = "/etc/sysctl.d/90-berth.conf"
)

// Manager applies sysctl requirements.
type Manager struct {
	procRoot    string
	persistFile string
	logger      log.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithProcRoot overrides the /proc/sys root, for tests.
func WithProcRoot(root string) ManagerOption {
	return func(m *Manager) { m.procRoot = root }
}

// WithPersistFile overrides the sysctl.d drop-in path.
func WithPersistFile(path string) ManagerOption {
	return func(m *Manager) { m.persistFile = path }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a sysctl manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		procRoot:    defaultProcRoot,
		persistFile: defaultPersistFile,
		logger:      log.GetDefaultLogger().WithComponent("sysctl"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// keyPath maps a dotted sysctl key to its /proc/sys file.
func (m *Manager) keyPath(key string) string {
	return filepath.Join(m.procRoot, strings.ReplaceAll(key, ".", "/"))
}

// Current returns the current value of a sysctl key.
func (m *Manager) Current(key string) (int64, error) {
	raw, err := os.ReadFile(m.keyPath(key))
	if err != nil {
		return 0, types.NewPersistenceError("read sysctl", key, err)
	}
	value, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, types.NewPersistenceError("parse sysctl", key, err)
	}
	return value, nil
}

// Ensure raises each required key to at least its declared value and
// persists the requirement. Keys already at or above the requirement are
// not written, so repeated runs are no-ops.
func (m *Manager) Ensure(reqs []types.SysctlRequirement) error {
	changed := false
	for _, req := range reqs {
		current, err := m.Current(req.Key)
		if err != nil {
			return err
		}
		if current >= req.Value {
			m.logger.Debug("Sysctl already satisfied",
				log.Str("key", req.Key),
				log.Int("current", int(current)),
				log.Int("required", int(req.Value)))
			continue
		}
		if err := m.set(req.Key, req.Value); err != nil {
			return err
		}
		m.logger.Info("Raised sysctl",
			log.Str("key", req.Key),
			log.Int("from", int(current)),
			log.Int("to", int(req.Value)))
		changed = true
	}
	if changed {
		return m.persist(reqs)
	}
	return nil
}

func (m *Manager) set(key string, value int64) error {
	path := m.keyPath(key)
	if err := os.WriteFile(path, []byte(strconv.FormatInt(value, 10)), 0o644); err != nil {
		return types.NewPersistenceError("write sysctl", key, err)
	}
	return nil
}

// persist merges the requirements into the drop-in file so the values
// survive reboot. Existing entries for other keys are preserved.
func (m *Manager) persist(reqs []types.SysctlRequirement) error {
	entries := map[string]int64{}

	if raw, err := os.ReadFile(m.persistFile); err == nil {
		for _, line := range strings.Split(string(raw), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, val, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
			if err != nil {
				continue
			}
			entries[strings.TrimSpace(key)] = parsed
		}
	}

	for _, req := range reqs {
		if existing, ok := entries[req.Key]; !ok || existing < req.Value {
			entries[req.Key] = req.Value
		}
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("# Managed by berth. Kernel minimums required by deployed services.\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s = %d\n", k, entries[k])
	}

	if err := os.MkdirAll(filepath.Dir(m.persistFile), 0o755); err != nil {
		return types.NewPersistenceError("create sysctl.d", m.persistFile, err)
	}
	if err := os.WriteFile(m.persistFile, []byte(b.String()), 0o644); err != nil {
		return types.NewPersistenceError("persist sysctl", m.persistFile, err)
	}
	return nil
}
