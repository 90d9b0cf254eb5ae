package commands

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/wrenware/packhost/hostcfg"
)

// ConfigCmd shows the merged host configuration.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the merged host configuration",
	Long: `Print the effective configuration after merging the system, user and
project config files with environment overrides.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := hostcfg.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: configuration is invalid: %v\n", err)
		}

		enc := toml.NewEncoder(cmd.OutOrStdout())
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode configuration: %w", err)
		}
		return nil
	},
}
