package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rzbill/berth/pkg/cli/format"
	"github.com/spf13/cobra"
)

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	var stackFile string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the observed state of every service in the stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if stackFile == "" {
				stackFile = cfg.StackFile
			}

			stack, err := loadStack(stackFile)
			if err != nil {
				return err
			}

			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := context.Background()
			statuses, err := rt.orch.Status(ctx, stack)
			if err != nil {
				return err
			}
			if err := renderStatuses(statuses); err != nil {
				return err
			}

			if last, ok, err := rt.state.LastRun(ctx); err != nil {
				return err
			} else if ok {
				outcome := "succeeded"
				if last.Failed() {
					outcome = "failed"
				}
				fmt.Println(format.Dim("last run %s %s at %s",
					last.RunID, outcome, last.FinishedAt.Local().Format(time.RFC3339)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&stackFile, "file", "f", "", "stack file (default from berthfile)")
	return cmd
}
