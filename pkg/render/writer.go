package render

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/rzbill/berth/pkg/types"
)

// WriteResult reports what a Write call did to the destination.
type WriteResult string

const (
	// ResultWritten means the destination was created or its content changed.
	ResultWritten WriteResult = "written"

	// ResultUnchanged means the destination already held the rendered
	// content and nothing was touched.
	ResultUnchanged WriteResult = "unchanged"
)

// Write materializes a rendered config at its target path. When the
// destination already holds identical bytes the call is a no-op, which
// avoids ownership churn and spurious restarts of containers that mount
// the file.
func Write(cfg *types.RenderedConfig) (WriteResult, error) {
	existing, err := os.ReadFile(cfg.Target)
	if err == nil && bytes.Equal(existing, cfg.Content) {
		return ResultUnchanged, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return "", types.NewPersistenceError("read", cfg.Target, err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Target), 0o755); err != nil {
		return "", types.NewPersistenceError("mkdir", filepath.Dir(cfg.Target), err)
	}

	if err := os.WriteFile(cfg.Target, cfg.Content, cfg.Mode); err != nil {
		return "", types.NewPersistenceError("write", cfg.Target, err)
	}

	// WriteFile honors umask; enforce the declared mode explicitly.
	if err := os.Chmod(cfg.Target, cfg.Mode); err != nil {
		return "", types.NewPersistenceError("chmod", cfg.Target, err)
	}

	if cfg.UID != 0 || cfg.GID != 0 {
		if err := os.Chown(cfg.Target, cfg.UID, cfg.GID); err != nil {
			return "", types.NewPersistenceError("chown", cfg.Target, err)
		}
	}

	return ResultWritten, nil
}
