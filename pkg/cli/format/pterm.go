package format

import "github.com/pterm/pterm"

// PTermStatusLabel styles a service state or deploy outcome for pterm
// table cells.
func PTermStatusLabel(status string) string {
	switch status {
	case "running", "success", "ready":
		return pterm.NewStyle(pterm.FgGreen, pterm.Bold).Sprint(status)
	case "booting", "skipped", "stopped":
		return pterm.NewStyle(pterm.FgYellow, pterm.Bold).Sprint(status)
	case "failed", "degraded", "failed-fatal", "running-unhealthy":
		return pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint(status)
	default:
		return pterm.NewStyle(pterm.FgWhite).Sprint(status)
	}
}
