package hostcfg

import (
	"strings"

	"github.com/wrenware/packhost/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Host version override must be a plain version string when set
	if v := c.Host.Version; v != "" {
		if strings.ContainsAny(v, " \t") {
			return errors.Newf("host.version must not contain whitespace, got %q", v)
		}
	}

	// Plugin search paths must be non-empty strings
	for i, p := range c.Plugin.Paths {
		if strings.TrimSpace(p) == "" {
			return errors.Newf("plugin.paths[%d] is empty", i)
		}
	}

	// Deny prefixes are matched against file names; path separators make no sense
	for i, p := range c.Plugin.DenyPrefixes {
		if strings.ContainsRune(p, '/') {
			return errors.Newf("plugin.deny_prefixes[%d] must be a file-name prefix, got %q", i, p)
		}
	}

	return nil
}
