package secret

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rzbill/berth/pkg/types"
)

// WriteScopedEnvFile writes a per-service KEY=value env file containing
// only the named keys, in the given order. Unlike the master secrets file,
// scoped env files are regenerated on every run and may be overwritten.
func WriteScopedEnvFile(store Store, path string, keys []string) error {
	var buf bytes.Buffer
	for _, key := range keys {
		value, ok, err := store.Get(key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("secret %s not present in store", key)
		}
		fmt.Fprintf(&buf, "%s=%s\n", key, value)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return types.NewPersistenceError("mkdir", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return types.NewPersistenceError("write", path, err)
	}

	return nil
}

// ReadScopedEnvFile parses a KEY=value env file into a map.
func ReadScopedEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewPersistenceError("read", path, err)
	}

	env := make(map[string]string)
	for _, line := range bytes.Split(data, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 || trimmed[0] == '#' {
			continue
		}
		idx := bytes.IndexByte(trimmed, '=')
		if idx <= 0 {
			continue
		}
		env[string(trimmed[:idx])] = string(trimmed[idx+1:])
	}
	return env, nil
}
