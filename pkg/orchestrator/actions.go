package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rzbill/berth/pkg/log"
	"github.com/rzbill/berth/pkg/render"
	"github.com/rzbill/berth/pkg/types"
)

// actionBodySample bounds how much of an action response is kept for error
// messages.
const actionBodySample = 1024

// runPostDeploy executes the service's bootstrap requests in order. Actions
// are expected to be idempotent on the target side (setting a password to
// the same value, PUT-ing the same pipeline), so a re-run after a partial
// failure replays them safely.
func (o *Orchestrator) runPostDeploy(ctx context.Context, spec *types.ServiceSpec, secrets map[string]string, logger log.Logger) error {
	client := o.httpClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	vars := mergeVars(spec.Env, secrets)

	for _, action := range spec.PostDeploy {
		if err := o.runAction(ctx, client, &action, vars, secrets); err != nil {
			return fmt.Errorf("action %s: %w", action.Name, err)
		}
		logger.Info("Post-deploy action applied", log.Str("action", action.Name))
	}
	return nil
}

func (o *Orchestrator) runAction(ctx context.Context, client *http.Client, action *types.HTTPAction, vars, secrets map[string]string) error {
	var body io.Reader
	if action.Body != "" {
		rendered, err := render.Execute(action.Name, action.Body, vars)
		if err != nil {
			return err
		}
		body = bytes.NewReader(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, action.Method, action.URL, body)
	if err != nil {
		return err
	}
	if action.ContentType != "" {
		req.Header.Set("Content-Type", action.ContentType)
	} else if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if action.Username != "" {
		password := ""
		if action.PasswordFromSecret != "" {
			password, err = o.secretValue(action.PasswordFromSecret, secrets)
			if err != nil {
				return err
			}
		}
		req.SetBasicAuth(action.Username, password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !statusExpected(resp.StatusCode, action.ExpectStatus) {
		sample, _ := io.ReadAll(io.LimitReader(resp.Body, actionBodySample))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(sample))
	}
	return nil
}

// statusExpected reports whether the response status satisfies the action.
// An empty expectation accepts any 2xx.
func statusExpected(status int, expected []int) bool {
	if len(expected) == 0 {
		return status >= 200 && status < 300
	}
	for _, e := range expected {
		if status == e {
			return true
		}
	}
	return false
}
