package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rzbill/berth/pkg/cli/format"
	"github.com/spf13/cobra"
)

// newDeployCmd creates the deploy command.
func newDeployCmd() *cobra.Command {
	var stackFile string

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Converge the stack onto this host",
		Long: `Deploy reads the stack file and converges every service, in order:
secrets are ensured, configuration is rendered, containers whose spec
changed are recreated, and each service is probed until ready before
the next one starts. The command exits non-zero if any service failed.`,
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

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			report, err := rt.orch.Deploy(ctx, stack)
			if err != nil {
				return err
			}

			if err := renderDeployReport(report); err != nil {
				return err
			}

			if report.Failed() {
				return fmt.Errorf("deploy %s", format.Error("failed"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&stackFile, "file", "f", "", "stack file (default from berthfile)")
	return cmd
}
