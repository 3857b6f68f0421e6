package secret

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rzbill/berth/pkg/log"
	"github.com/rzbill/berth/pkg/types"
)

// FileStore persists secrets in a newline-delimited KEY="value" file.
// The file is append-only for new keys; existing lines are never rewritten,
// so values survive any number of re-runs byte for byte.
type FileStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
	logger log.Logger
}

// OpenFileStore loads (or creates) the master secrets file at path.
func OpenFileStore(path string, logger log.Logger) (*FileStore, error) {
	if logger == nil {
		logger = log.GetDefaultLogger().WithComponent("secret-store")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, types.NewPersistenceError("mkdir", filepath.Dir(path), err)
	}

	s := &FileStore{
		path:   path,
		values: make(map[string]string),
		logger: logger,
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

// load reads all existing KEY="value" lines into memory.
func (s *FileStore) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return types.NewPersistenceError("open", s.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := parseLine(line)
		if !ok {
			s.logger.Warn("Skipping malformed secrets line", log.Str("path", s.path))
			continue
		}
		// First occurrence wins; the file is append-only and existing
		// keys are never re-appended by normal operation.
		if _, exists := s.values[key]; !exists {
			s.values[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return types.NewPersistenceError("read", s.path, err)
	}

	return nil
}

// parseLine splits a KEY="value" assignment. Values are written with %q,
// so quotes and backslashes inside them are escaped; Unquote is the exact
// inverse and restores the original bytes.
func parseLine(line string) (key, value string, ok bool) {
	idx := strings.Index(line, "=")
	if idx <= 0 {
		return "", "", false
	}
	key = line[:idx]
	raw := line[idx+1:]
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return "", "", false
	}
	value, err := strconv.Unquote(raw)
	if err != nil {
		return "", "", false
	}
	return key, value, true
}

// Ensure returns the stored value for name, generating and appending it
// first if absent.
func (s *FileStore) Ensure(name string, gen Generator) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value, ok := s.values[name]; ok {
		return value, nil
	}

	value, err := gen()
	if err != nil {
		return "", fmt.Errorf("failed to generate secret %s: %w", name, err)
	}

	if err := s.append(name, value); err != nil {
		return "", err
	}

	s.values[name] = value
	s.logger.Info("Generated new secret", log.Str("name", name))
	return value, nil
}

// append durably adds one KEY="value" line to the master file.
func (s *FileStore) append(name, value string) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return types.NewPersistenceError("open", s.path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s=%q\n", name, value); err != nil {
		return types.NewPersistenceError("append", s.path, err)
	}
	if err := f.Sync(); err != nil {
		return types.NewPersistenceError("sync", s.path, err)
	}

	return nil
}

// Set stores an operator-provided value for a new name. Existing names are
// rejected rather than overwritten; the master file is append-only.
func (s *FileStore) Set(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[name]; ok {
		return fmt.Errorf("secret %s already exists and is immutable", name)
	}

	if err := s.append(name, value); err != nil {
		return err
	}

	s.values[name] = value
	return nil
}

// Get returns the stored value and whether it exists.
func (s *FileStore) Get(name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.values[name]
	return value, ok, nil
}

// Keys returns all stored secret names, sorted.
func (s *FileStore) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Path returns the master file location.
func (s *FileStore) Path() string {
	return s.path
}
