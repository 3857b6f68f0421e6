package secret

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteScopedEnvFile(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Ensure("ELASTIC_PASSWORD", func() (string, error) { return "espw", nil })
	require.NoError(t, err)
	_, err = store.Ensure("KIBANA_PASSWORD", func() (string, error) { return "kbpw", nil })
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "env", "kibana.env")
	err = WriteScopedEnvFile(store, path, []string{"KIBANA_PASSWORD", "ELASTIC_PASSWORD"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "KIBANA_PASSWORD=kbpw\nELASTIC_PASSWORD=espw\n", string(data))
}

func TestWriteScopedEnvFileOverwrites(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Ensure("KEY", func() (string, error) { return "v1", nil })
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "svc.env")
	require.NoError(t, os.WriteFile(path, []byte("KEY=stale\nOTHER=gone\n"), 0o600))

	// Scoped env files are regenerated each run, unlike the master file.
	require.NoError(t, WriteScopedEnvFile(store, path, []string{"KEY"}))

	env, err := ReadScopedEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"KEY": "v1"}, env)
}

func TestWriteScopedEnvFileMissingSecret(t *testing.T) {
	store := NewMemoryStore()
	path := filepath.Join(t.TempDir(), "svc.env")

	err := WriteScopedEnvFile(store, path, []string{"ABSENT"})
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no partial env file should be written")
}

func TestGenerators(t *testing.T) {
	tests := []struct {
		name    string
		genName string
		length  int
		pattern string
		wantErr bool
	}{
		{"default is hex16", "", 32, "^[0-9a-f]+$", false},
		{"hex16", "hex16", 32, "^[0-9a-f]+$", false},
		{"hex32", "hex32", 64, "^[0-9a-f]+$", false},
		{"alnum24", "alnum24", 24, "^[0-9a-zA-Z]+$", false},
		{"alnum32", "alnum32", 32, "^[0-9a-zA-Z]+$", false},
		{"unknown", "base64", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := Named(tt.genName)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			value, err := gen()
			require.NoError(t, err)
			assert.Len(t, value, tt.length)
			assert.Regexp(t, tt.pattern, value)
		})
	}
}
