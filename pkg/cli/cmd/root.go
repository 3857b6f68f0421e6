// Package cmd implements the berth command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/rzbill/berth/internal/config"
	"github.com/rzbill/berth/pkg/log"
	"github.com/rzbill/berth/pkg/version"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "berth",
	Short: "Berth - Idempotent single-host stack deployment",
	Long: `Berth converges a declared service stack onto a Docker host:
secrets are generated once and kept, configuration files are rendered
and written only when changed, containers are recreated only when their
spec changed, and every service is probed until ready. Re-running a
deploy is always safe.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "berthfile path (default: ./berthfile.yaml, $HOME/.berth, /etc/berth)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newDeployCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newSecretCmd())
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the berthfile and applies log settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	opts := []log.LoggerOption{log.WithLevel(log.ParseLevel(level))}
	if cfg.Log.Format == "json" {
		opts = append(opts, log.WithFormatter(&log.JSONFormatter{}))
	}
	log.SetDefaultLogger(log.NewLogger(opts...))
	return cfg, nil
}
