// Command sniper watches a token feed, marks the first token of every
// name group and optionally fires an action when a group fills up.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wfce/gmgn-filter/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sniper",
	Short: "First-of-group filter for token feeds",
	Long: `sniper groups feed tokens by normalized symbol or name, marks the
earliest token of each group as FIRST and hides or flags the copies.
With auto-buy enabled it fires one action per group episode once enough
distinct tokens share a name inside the configured window.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.Path(), "config file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
