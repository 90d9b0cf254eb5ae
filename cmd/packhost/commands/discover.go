package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wrenware/packhost/discovery"
	"github.com/wrenware/packhost/hostcfg"
	"github.com/wrenware/packhost/logger"
	"github.com/wrenware/packhost/plugin"
	"github.com/wrenware/packhost/registry"
	"github.com/wrenware/packhost/resolver"
	"github.com/wrenware/packhost/version"
)

// DiscoverCmd scans the well-known plugin locations and registers what it
// finds.
var DiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan plugin locations and register discovered modules",
	Long: `Scan the well-known plugin locations, extract metadata from every
candidate module, resolve a dependency-safe load order, and register handler
bindings for the modules that survive resolution.`,
	RunE: runDiscover,
}

func init() {
	DiscoverCmd.Flags().Bool("dry-run", false, "Describe candidates without registering anything")
	DiscoverCmd.Flags().Duration("timeout", 60*time.Second, "Abort the pass after this long")
	DiscoverCmd.Flags().StringSlice("path", nil, "Additional search paths (repeatable)")
	DiscoverCmd.Flags().Bool("watch", false, "Keep running and re-scan when the project config changes")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	extraPaths, _ := cmd.Flags().GetStringSlice("path")
	watch, _ := cmd.Flags().GetBool("watch")

	if err := runDiscoverPass(cmd, dryRun, timeout, extraPaths); err != nil {
		return err
	}
	if !watch {
		return nil
	}
	return watchAndRediscover(cmd, dryRun, timeout, extraPaths)
}

// watchAndRediscover blocks, re-running the discovery pass whenever the
// project configuration file changes, until interrupted.
func watchAndRediscover(cmd *cobra.Command, dryRun bool, timeout time.Duration, extraPaths []string) error {
	configPath := hostcfg.ProjectConfigPath()
	if configPath == "" {
		return fmt.Errorf("no project configuration file found to watch")
	}

	watcher, err := hostcfg.NewConfigWatcher(configPath)
	if err != nil {
		return fmt.Errorf("failed to watch configuration: %w", err)
	}
	defer watcher.Stop()

	passes := make(chan struct{}, 1)
	watcher.OnReload(func(cfg *hostcfg.Config) error {
		select {
		case passes <- struct{}{}:
		default:
		}
		return nil
	})
	watcher.Start()

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes\n", configPath)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-passes:
			if err := runDiscoverPass(cmd, dryRun, timeout, extraPaths); err != nil {
				logger.Errorw("Discovery pass failed", "error", err)
			}
		}
	}
}

func runDiscoverPass(cmd *cobra.Command, dryRun bool, timeout time.Duration, extraPaths []string) error {
	cfg, err := hostcfg.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	hostVersion := cfg.Host.Version
	if hostVersion == "" {
		hostVersion = version.Host()
	}

	log := logger.Named("discovery")
	extractor := plugin.NewExtractor(hostVersion, cfg.Plugin.LegacyHeuristics, log)

	svc := discovery.NewService(extractor, discovery.Options{
		ExtraPaths:   append(cfg.Plugin.Paths, extraPaths...),
		DenyPrefixes: cfg.Plugin.DenyPrefixes,
		Resolve:      resolver.Resolve,
	}, log)

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	defer svc.Close(context.Background())

	var manager *registry.Manager
	if !dryRun {
		manager = registry.NewManager(svc.Binder(), logger.Named("registry"))
		defer manager.Close()
		if err := registry.Initialize(manager); err != nil {
			return fmt.Errorf("failed to initialize legacy bridge: %w", err)
		}
	}

	result, err := svc.DiscoverAll(ctx, manager)
	if err != nil {
		return fmt.Errorf("discovery pass failed: %w", err)
	}

	printResult(cmd, result, manager)
	return nil
}

func printResult(cmd *cobra.Command, result *discovery.Result, manager *registry.Manager) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Discovered %d candidate module(s)\n", len(result.Descriptors))
	for _, d := range result.Descriptors {
		status := "ok"
		if !d.IsCompatible {
			status = "incompatible: " + d.IncompatibilityReason
		}
		fmt.Fprintf(out, "  %-40s %-12s %s\n", d.QualifiedName, d.Version.String(), status)
		for _, w := range d.Warnings {
			fmt.Fprintf(out, "    warning: %s\n", w)
		}
	}

	for _, issue := range result.ResolutionIssues {
		fmt.Fprintf(out, "resolution: %s\n", issue.String())
	}
	for _, issue := range result.DiscoveryIssues {
		fmt.Fprintf(out, "discovery: %s\n", issue.String())
	}
	for _, issue := range result.RegistrationIssues {
		fmt.Fprintf(out, "registration: %s\n", issue.String())
	}

	if manager != nil {
		fmt.Fprintf(out, "Registered %d module(s), %d data type(s) claimed\n",
			result.Registered, len(manager.SupportedTypes()))
	}
}
