package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wrenware/packhost/cmd/packhost/commands"
	"github.com/wrenware/packhost/hostcfg"
	"github.com/wrenware/packhost/logger"
)

var rootCmd = &cobra.Command{
	Use:   "packhost",
	Short: "packhost - WASM plugin host and registry",
	Long: `packhost - Plugin discovery, dependency resolution and registration.

packhost scans the well-known plugin locations for WASM modules, extracts
their declared metadata, computes a dependency-safe load order, and binds
their data-type handlers into the registry.

Available commands:
  discover - Scan plugin locations and register discovered modules
  config   - Show the merged host configuration
  version  - Show version information

Examples:
  packhost discover              # Full discovery pass with registration
  packhost discover --dry-run    # Describe candidates without registering
  packhost config                # Show effective configuration`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := hostcfg.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := logger.Initialize(cfg.Log.JSON); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.AddCommand(commands.DiscoverCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
