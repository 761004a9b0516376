package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wfce/gmgn-filter/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the config file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config after defaults and environment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.AutoBuy.WebhookToken != "" {
			cfg.AutoBuy.WebhookToken = "****"
		}
		return yaml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
	},
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil && !configInitForce {
			return fmt.Errorf("%s exists (use --force to overwrite)", configPath)
		}
		if err := config.Default().Save(configPath); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "wrote", configPath)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
