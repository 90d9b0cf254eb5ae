package discovery

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-getter"
	"go.uber.org/zap"

	"github.com/wrenware/packhost/errors"
)

// Fixed file-name patterns a plugin module may match, case-insensitive. The
// suffixed forms are conventions carried over from older plugin sets; they are
// all subsets of *.wasm and exist so intent survives in configuration and
// logs.
var FilePatterns = []string{
	"*.wasm",
	"*helper.wasm",
	"*plugin.wasm",
	"*wrapper.wasm",
	"*extension.wasm",
}

// Conventional plugin subdirectories probed beneath the host binary.
var ConventionalSubdirs = []string{"Plugins", "Extensions", "Helpers", "Wrappers"}

// DefaultDenyPrefixes excludes runtime support modules shipped next to the
// host from plugin scanning.
var DefaultDenyPrefixes = []string{"wasi_", "wasm_", "libc"}

// systemPluginDir is the system-wide plugin location.
const systemPluginDir = "/usr/local/share/packhost/plugins"

// WellKnownLocations builds the fixed, ordered scan list: the host binary's
// own directory, the conventional subdirectories beneath it, the per-user
// plugin directory, the system-wide directory, then any configured extra
// paths. Locations that cannot be determined are skipped with a log line;
// non-existent directories stay in the list and simply yield no candidates.
func WellKnownLocations(extra []string, logger *zap.SugaredLogger) []string {
	var locations []string

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		locations = append(locations, exeDir)
		for _, sub := range ConventionalSubdirs {
			locations = append(locations, filepath.Join(exeDir, sub))
		}
	} else {
		logger.Warnw("Cannot determine host binary directory", "error", err)
	}

	if userDir, err := os.UserConfigDir(); err == nil {
		locations = append(locations, filepath.Join(userDir, "packhost", "plugins"))
	} else {
		logger.Warnw("Cannot determine user plugin directory", "error", err)
	}

	locations = append(locations, systemPluginDir)

	for _, path := range extra {
		expanded, err := expandAndValidatePath(path)
		if err != nil {
			logger.Warnw("Invalid search path, skipping", "path", path, "error", err)
			continue
		}
		locations = append(locations, expanded)
	}

	return dedupe(locations)
}

// expandAndValidatePath safely expands and validates a path using go-getter.
// Handles ~, relative paths, and validates the result is a filesystem path.
func expandAndValidatePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "failed to get home directory")
		}
		path = filepath.Join(home, path[2:])
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "failed to get home directory")
		}
		return home, nil
	}

	pwd, err := os.Getwd()
	if err != nil {
		pwd = "."
	}

	detected, err := getter.Detect(path, pwd, getter.Detectors)
	if err != nil {
		return "", errors.Wrap(err, "invalid path")
	}

	u, err := url.Parse(detected)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse path")
	}

	if u.Scheme == "file" {
		return u.Path, nil
	}
	if u.Scheme == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", errors.Wrap(err, "failed to make absolute path")
		}
		return abs, nil
	}

	return "", errors.Newf("unsupported path scheme: %s (expected file:// or local path)", u.Scheme)
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := paths[:0]
	for _, p := range paths {
		clean := filepath.Clean(p)
		if !seen[clean] {
			seen[clean] = true
			out = append(out, clean)
		}
	}
	return out
}

// matchesAny reports whether a file name matches one of the glob patterns,
// case-insensitively.
func matchesAny(name string, patterns []string) bool {
	lower := strings.ToLower(name)
	for _, pattern := range patterns {
		if ok, err := filepath.Match(strings.ToLower(pattern), lower); err == nil && ok {
			return true
		}
	}
	return false
}

// denied reports whether a file name starts with a deny-listed prefix.
func denied(name string, prefixes []string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range prefixes {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}
