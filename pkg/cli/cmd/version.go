package cmd

import (
	"fmt"

	"github.com/rzbill/berth/pkg/version"
	"github.com/spf13/cobra"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the Berth version information",
	Long:  `Display detailed version information about the Berth binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Current())
	},
}
