package probe

import (
	"context"
	"fmt"

	"github.com/rzbill/berth/pkg/runner"
)

// logTailLines is how much recent container output a log check scans.
const logTailLines = 200

// LogChecker scans recent container log output. Services whose readiness
// only shows up in their logs (e.g. a log shipper confirming its output
// connection) classify against the tail of their own output.
type LogChecker struct {
	Controller runner.Controller
	Service    string
}

// Check implements the Checker interface.
func (l *LogChecker) Check(ctx context.Context) string {
	out, err := l.Controller.Logs(ctx, l.Service, logTailLines)
	if err != nil {
		return fmt.Sprintf("error=%v", err)
	}
	return out
}
