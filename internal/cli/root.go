package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "sentra",
	Short: "Runtime guard for AI applications",
	Long:  "Scans prompts and tool outputs through a layered detection pipeline: deterministic rules first, an ML ensemble second, and a policy table that turns evidence into allow/log/flag/block decisions.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "configs/sentra.yaml", "Path to config YAML")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
