// Package probe polls service readiness conditions with bounded retries.
// Raw probe output is classified by an ordered rule table into ready,
// booting, degraded or failed-fatal; ready and fatal end the loop
// immediately, so a permanently broken configuration surfaces at once
// instead of burning the whole retry window.
package probe

import (
	"context"
	"time"

	"github.com/rzbill/berth/pkg/log"
	"github.com/rzbill/berth/pkg/types"
)

// Checker produces the raw output of a single probe attempt. Transport
// failures are returned as raw text too; classification decides whether
// they mean "still booting" or something worse.
type Checker interface {
	Check(ctx context.Context) string
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) string

// Check implements Checker.
func (f CheckerFunc) Check(ctx context.Context) string {
	return f(ctx)
}

// Options bound the polling loop.
type Options struct {
	MaxAttempts int
	Interval    time.Duration
	Logger      log.Logger
}

// DefaultOptions polls every five seconds for five minutes, the window the
// slowest service in a cold-start stack needs.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 60,
		Interval:    5 * time.Second,
	}
}

// WaitReady polls the checker until it classifies ready, classifies fatal,
// the attempt budget is exhausted, or the context is cancelled. The result
// always carries the number of attempts actually made and, for fatal
// results, the matched diagnostic verbatim.
func WaitReady(ctx context.Context, checker Checker, classifier *Classifier, opts Options) types.HealthCheckResult {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetDefaultLogger().WithComponent("health-probe")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultOptions().Interval
	}

	last := types.HealthCheckResult{Status: types.HealthBooting}

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		raw := checker.Check(ctx)
		status, detail := classifier.Classify(raw)

		last = types.HealthCheckResult{
			Status:   status,
			Detail:   detail,
			Attempts: attempt,
		}

		if status.IsTerminal() {
			return last
		}

		logger.Debug("Service not ready yet",
			log.Int("attempt", attempt),
			log.Str("status", string(status)),
			log.Str("detail", detail))

		if attempt == opts.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			last.Detail = "cancelled: " + ctx.Err().Error()
			return last
		case <-time.After(opts.Interval):
		}
	}

	return last
}
