// Package render materializes per-service configuration artifacts from
// templates and variable sets. Rendering is pure: identical inputs always
// produce identical bytes, which is what lets writes be skipped when the
// destination already matches.
package render

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"text/template"

	"github.com/rzbill/berth/pkg/types"
)

// Renderer renders templates from a directory on disk.
type Renderer struct {
	dir string
}

// NewRenderer creates a renderer rooted at the given templates directory.
func NewRenderer(dir string) *Renderer {
	return &Renderer{dir: dir}
}

// Render applies the variables to the config's template and returns the
// materialized artifact. A referenced variable that is absent, or any
// variable with an empty value, is a RenderError: configs with blank
// credentials must never reach disk.
func (r *Renderer) Render(cfg types.ConfigFile, vars map[string]string) (*types.RenderedConfig, error) {
	for name, value := range vars {
		if value == "" {
			return nil, types.NewRenderError(cfg.Template, name, "variable has an empty value")
		}
	}

	path := filepath.Join(r.dir, cfg.Template)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewRenderError(cfg.Template, "", "template not readable: "+err.Error())
	}

	content, err := Execute(cfg.Template, string(raw), vars)
	if err != nil {
		return nil, err
	}

	mode := fs.FileMode(cfg.Mode)
	if mode == 0 {
		mode = 0o644
	}

	return &types.RenderedConfig{
		Template: cfg.Template,
		Target:   cfg.Target,
		Content:  content,
		UID:      cfg.UID,
		GID:      cfg.GID,
		Mode:     mode,
	}, nil
}

// missingKeyRe extracts the variable name from text/template's missing-map-entry error.
var missingKeyRe = regexp.MustCompile(`map has no entry for key "([^"]+)"`)

// Execute renders template text against a variable map. Missing variables
// are an error, never an empty substitution.
func Execute(name, text string, vars map[string]string) ([]byte, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, types.NewRenderError(name, "", "invalid template: "+err.Error())
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		variable := ""
		if m := missingKeyRe.FindStringSubmatch(err.Error()); m != nil {
			variable = m[1]
		}
		return nil, types.NewRenderError(name, variable, "variable is not defined")
	}

	return buf.Bytes(), nil
}
