// Package hostcfg carries the host configuration: where to look for plugin
// modules, which compatibility features are on, and how the host presents
// itself to them.
package hostcfg

import "fmt"

// Config represents the core host configuration
type Config struct {
	Host   HostConfig   `mapstructure:"host"`
	Log    LogConfig    `mapstructure:"log"`
	Plugin PluginConfig `mapstructure:"plugin"`
}

// HostConfig configures how the host identifies itself to plugins
type HostConfig struct {
	// Version overrides the build-time host version advertised to plugins
	// for compatibility checks. Empty uses the compiled-in version.
	Version string `mapstructure:"version"`
}

// LogConfig configures log output
type LogConfig struct {
	JSON bool `mapstructure:"json"` // JSON output instead of console encoding
}

// PluginConfig configures plugin discovery and loading
type PluginConfig struct {
	Paths            []string `mapstructure:"paths"`             // Extra search paths (e.g., ["~/.packhost/plugins", "./plugins"])
	DenyPrefixes     []string `mapstructure:"deny_prefixes"`     // File-name prefixes excluded from scanning
	LegacyHeuristics bool     `mapstructure:"legacy_heuristics"` // Recover handlers from undeclared export names (default: true)
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Host: {Version: %s}, Plugin: {Paths: %d, LegacyHeuristics: %t}}",
		c.Host.Version, len(c.Plugin.Paths), c.Plugin.LegacyHeuristics)
}
