package cmd

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/rzbill/berth/pkg/cli/format"
	"github.com/rzbill/berth/pkg/orchestrator"
	"github.com/rzbill/berth/pkg/types"
)

// newTable returns a pterm table printer with the house header style.
func newTable() *pterm.TablePrinter {
	headerStyle := pterm.NewStyle(pterm.FgCyan, pterm.Bold)
	return pterm.DefaultTable.WithHasHeader(true).WithHeaderStyle(headerStyle)
}

// renderDeployReport prints the per-service outcome table for a deploy run.
func renderDeployReport(report *types.DeployReport) error {
	rows := [][]string{{"SERVICE", "OUTCOME", "STAGE", "STATE", "TOOK", "MESSAGE"}}

	for _, res := range report.Results {
		stage := string(res.Stage)
		if stage == "" {
			stage = "-"
		}
		state := string(res.State)
		if state == "" {
			state = "-"
		}
		message := res.Message
		if len(message) > 80 {
			message = message[:77] + "..."
		}
		rows = append(rows, []string{
			res.Service,
			format.PTermStatusLabel(string(res.Outcome)),
			stage,
			state,
			formatTook(res.Duration),
			message,
		})
	}

	if err := newTable().WithData(rows).Render(); err != nil {
		return err
	}

	took := report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond)
	fmt.Println(format.Dim("run %s finished in %s", report.RunID, took))
	return nil
}

// renderStatuses prints the observed state table for a stack.
func renderStatuses(statuses []orchestrator.ServiceStatus) error {
	rows := [][]string{{"SERVICE", "STATE", "IMAGE", "LAST APPLIED", "RUN"}}

	for _, s := range statuses {
		applied := "never"
		run := "-"
		if s.Applied != nil {
			applied = formatAge(s.Applied.AppliedAt)
			run = s.Applied.RunID
			if len(run) > 8 {
				run = run[:8]
			}
		}
		rows = append(rows, []string{
			s.Service,
			format.PTermStatusLabel(string(s.State)),
			s.Image,
			applied,
			run,
		})
	}

	return newTable().WithData(rows).Render()
}

func formatTook(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(10 * time.Millisecond).String()
}

// formatAge formats a time as a human-readable age string.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}

	duration := time.Since(t)
	switch {
	case duration < time.Minute:
		return "Just now"
	case duration < time.Hour:
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	case duration < 24*time.Hour:
		return fmt.Sprintf("%dh", int(duration.Hours()))
	case duration < 30*24*time.Hour:
		return fmt.Sprintf("%dd", int(duration.Hours()/24))
	default:
		return fmt.Sprintf("%dmo", int(duration.Hours()/24/30))
	}
}
