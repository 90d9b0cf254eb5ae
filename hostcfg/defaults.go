package hostcfg

import "github.com/spf13/viper"

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Host defaults: empty version means use the compiled-in build version
	v.SetDefault("host.version", "")

	// Log defaults
	v.SetDefault("log.json", false)

	// Plugin defaults
	v.SetDefault("plugin.paths", []string{})
	v.SetDefault("plugin.deny_prefixes", []string{"wasi_", "wasm_", "libc"})
	v.SetDefault("plugin.legacy_heuristics", true)
}

// BindEnvVars explicitly binds selected configuration to environment variables
func BindEnvVars(v *viper.Viper) {
	v.BindEnv("host.version", "PACKHOST_HOST_VERSION")
	v.BindEnv("plugin.legacy_heuristics", "PACKHOST_PLUGIN_LEGACY_HEURISTICS")
}
