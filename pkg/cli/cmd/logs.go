package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/rzbill/berth/pkg/cli/format"
	"github.com/spf13/cobra"
)

// newLogsCmd creates the logs command.
func newLogsCmd() *cobra.Command {
	var tail int
	var noColor bool

	cmd := &cobra.Command{
		Use:   "logs <service>",
		Short: "Show recent output of a managed service container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			out, err := rt.controller.Logs(context.Background(), args[0], tail)
			if err != nil {
				return err
			}
			printLogs(args[0], out, noColor)
			return nil
		},
	}

	cmd.Flags().IntVarP(&tail, "tail", "n", 100, "number of log lines to show")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}

// printLogs writes the log lines with an error highlight, one service
// prefix per line.
func printLogs(service, out string, noColor bool) {
	nameColor := color.New(color.FgGreen, color.Bold)
	errorColor := color.New(color.FgRed)
	infoColor := color.New(color.FgWhite)
	if noColor || !format.IsColorEnabled() {
		nameColor.DisableColor()
		errorColor.DisableColor()
		infoColor.DisableColor()
	}

	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		lineColor := infoColor
		lower := strings.ToLower(line)
		if strings.Contains(lower, "error") || strings.Contains(lower, "fatal") {
			lineColor = errorColor
		}
		fmt.Printf("%s %s\n", nameColor.Sprintf("[%s]", service), lineColor.Sprint(line))
	}
}
