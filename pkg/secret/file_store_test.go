package secret

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rzbill/berth/pkg/log"
	"github.com/rzbill/berth/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stack.env")
	store, err := OpenFileStore(path, log.NewTestLogger())
	require.NoError(t, err)
	return store, path
}

func TestEnsureGeneratesOnce(t *testing.T) {
	store, _ := newTestStore(t)

	calls := 0
	gen := func() (string, error) {
		calls++
		return "first-value", nil
	}

	value, err := store.Ensure("ELASTIC_PASSWORD", gen)
	require.NoError(t, err)
	assert.Equal(t, "first-value", value)

	// A second Ensure with a different generator must return the original
	// value and never invoke the new generator.
	again, err := store.Ensure("ELASTIC_PASSWORD", func() (string, error) {
		t.Fatal("generator invoked for existing secret")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "first-value", again)
	assert.Equal(t, 1, calls)
}

func TestEnsureHexScenario(t *testing.T) {
	store, _ := newTestStore(t)

	value, err := store.Ensure("ELASTIC_PASSWORD", Hex(16))
	require.NoError(t, err)
	assert.Len(t, value, 32)
	assert.Regexp(t, "^[0-9a-f]{32}$", value)

	again, err := store.Ensure("ELASTIC_PASSWORD", Alphanumeric(24))
	require.NoError(t, err)
	assert.Equal(t, value, again)
}

func TestEnsureSurvivesReopen(t *testing.T) {
	store, path := newTestStore(t)

	value, err := store.Ensure("KIBANA_PASSWORD", Hex(16))
	require.NoError(t, err)

	reopened, err := OpenFileStore(path, log.NewTestLogger())
	require.NoError(t, err)

	got, ok, err := reopened.Get("KIBANA_PASSWORD")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, value, got)
}

func TestMasterFileIsAppendOnly(t *testing.T) {
	store, path := newTestStore(t)

	_, err := store.Ensure("FIRST", func() (string, error) { return "one", nil })
	require.NoError(t, err)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = store.Ensure("SECOND", func() (string, error) { return "two", nil })
	require.NoError(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)

	// Existing bytes are preserved exactly; new keys are appended.
	assert.Equal(t, string(before), string(after[:len(before)]))
	assert.Equal(t, "FIRST=\"one\"\nSECOND=\"two\"\n", string(after))
}

func TestSetValueWithQuotesSurvivesReopen(t *testing.T) {
	store, path := newTestStore(t)

	const value = `ab"cd\ef`
	require.NoError(t, store.Set("API_KEY", value))

	got, ok, err := store.Get("API_KEY")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, value, got)

	// The escaping done at write time must be undone on load, so the value
	// comes back identical after a reopen.
	reopened, err := OpenFileStore(path, log.NewTestLogger())
	require.NoError(t, err)

	got, ok, err = reopened.Get("API_KEY")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, value, got)
}

func TestSetRejectsExistingKey(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Set("TOKEN", "abc"))
	err := store.Set("TOKEN", "def")
	assert.Error(t, err)

	got, ok, err := store.Get("TOKEN")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", got)
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.env")
	content := "# comment\nGOOD=\"value\"\nmalformed line\nBARE=unquoted\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store, err := OpenFileStore(path, log.NewTestLogger())
	require.NoError(t, err)

	got, ok, err := store.Get("GOOD")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value", got)

	_, ok, err = store.Get("BARE")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenFileStoreCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "secrets", "stack.env")
	store, err := OpenFileStore(path, log.NewTestLogger())
	require.NoError(t, err)

	_, err = store.Ensure("KEY", Hex(16))
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestPersistenceErrorOnUnwritableDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o500))
	defer os.Chmod(dir, 0o700)

	store, err := OpenFileStore(filepath.Join(dir, "stack.env"), log.NewTestLogger())
	require.NoError(t, err)

	_, err = store.Ensure("KEY", Hex(16))
	require.Error(t, err)
	assert.True(t, types.IsPersistenceError(err))
}
