package sysctl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rzbill/berth/pkg/log"
	"github.com/rzbill/berth/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	procRoot := filepath.Join(dir, "proc")
	persist := filepath.Join(dir, "sysctl.d", "90-berth.conf")

	require.NoError(t, os.MkdirAll(filepath.Join(procRoot, "vm"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(procRoot, "vm", "max_map_count"), []byte("65530\n"), 0o644))

	m := NewManager(
		WithProcRoot(procRoot),
		WithPersistFile(persist),
		WithLogger(log.NewTestLogger()),
	)
	return m, dir
}

func TestEnsureRaisesLowValue(t *testing.T) {
	m, dir := testManager(t)

	err := m.Ensure([]types.SysctlRequirement{{Key: "vm.max_map_count", Value: 262144}})
	require.NoError(t, err)

	current, err := m.Current("vm.max_map_count")
	require.NoError(t, err)
	assert.Equal(t, int64(262144), current)

	persisted, err := os.ReadFile(filepath.Join(dir, "sysctl.d", "90-berth.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(persisted), "vm.max_map_count = 262144")
}

func TestEnsureNoopWhenSatisfied(t *testing.T) {
	m, dir := testManager(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "proc", "vm", "max_map_count"), []byte("524288\n"), 0o644))

	err := m.Ensure([]types.SysctlRequirement{{Key: "vm.max_map_count", Value: 262144}})
	require.NoError(t, err)

	// Value above the requirement is left alone and nothing is persisted.
	current, err := m.Current("vm.max_map_count")
	require.NoError(t, err)
	assert.Equal(t, int64(524288), current)

	_, err = os.Stat(filepath.Join(dir, "sysctl.d", "90-berth.conf"))
	assert.True(t, os.IsNotExist(err))
}

func TestEnsurePreservesForeignEntries(t *testing.T) {
	m, dir := testManager(t)

	persist := filepath.Join(dir, "sysctl.d", "90-berth.conf")
	require.NoError(t, os.MkdirAll(filepath.Dir(persist), 0o755))
	require.NoError(t, os.WriteFile(persist, []byte("fs.file-max = 100000\n"), 0o644))

	err := m.Ensure([]types.SysctlRequirement{{Key: "vm.max_map_count", Value: 262144}})
	require.NoError(t, err)

	persisted, err := os.ReadFile(persist)
	require.NoError(t, err)
	assert.Contains(t, string(persisted), "fs.file-max = 100000")
	assert.Contains(t, string(persisted), "vm.max_map_count = 262144")
}

func TestEnsureUnknownKey(t *testing.T) {
	m, _ := testManager(t)

	err := m.Ensure([]types.SysctlRequirement{{Key: "vm.nonexistent", Value: 1}})
	require.Error(t, err)
	assert.True(t, types.IsPersistenceError(err))
}
