package plugin

import (
	"encoding/json"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/wrenware/packhost/errors"
	"github.com/wrenware/packhost/handler"
)

// Manifest is the declarative metadata block a module carries. The embedded
// form is JSON returned by the module's pk_manifest export; sidecar files
// next to the module may carry the same schema as TOML or YAML.
type Manifest struct {
	Name        string `json:"name" toml:"name" yaml:"name"`
	Version     string `json:"version" toml:"version" yaml:"version"`
	Description string `json:"description,omitempty" toml:"description,omitempty" yaml:"description,omitempty"`
	Author      string `json:"author,omitempty" toml:"author,omitempty" yaml:"author,omitempty"`
	Website     string `json:"website,omitempty" toml:"website,omitempty" yaml:"website,omitempty"`
	License     string `json:"license,omitempty" toml:"license,omitempty" yaml:"license,omitempty"`

	// Host compatibility, each a plain version string ("1.2.0"); empty =
	// unconstrained.
	MinHostVersion string `json:"min_host_version,omitempty" toml:"min_host_version,omitempty" yaml:"min_host_version,omitempty"`
	MaxHostVersion string `json:"max_host_version,omitempty" toml:"max_host_version,omitempty" yaml:"max_host_version,omitempty"`

	ResourceTypes []string `json:"resource_types,omitempty" toml:"resource_types,omitempty" yaml:"resource_types,omitempty"`
	Tags          []string `json:"tags,omitempty" toml:"tags,omitempty" yaml:"tags,omitempty"`
	Experimental  bool     `json:"experimental,omitempty" toml:"experimental,omitempty" yaml:"experimental,omitempty"`
	Deprecated    bool     `json:"deprecated,omitempty" toml:"deprecated,omitempty" yaml:"deprecated,omitempty"`

	Dependencies   []ManifestDependency     `json:"dependencies,omitempty" toml:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	ResourceCompat []ManifestResourceCompat `json:"resource_compat,omitempty" toml:"resource_compat,omitempty" yaml:"resource_compat,omitempty"`
}

// ManifestDependency declares one dependency on another plugin.
type ManifestDependency struct {
	Plugin   string `json:"plugin" toml:"plugin" yaml:"plugin"`
	Min      string `json:"min,omitempty" toml:"min,omitempty" yaml:"min,omitempty"`
	Max      string `json:"max,omitempty" toml:"max,omitempty" yaml:"max,omitempty"`
	Optional bool   `json:"optional,omitempty" toml:"optional,omitempty" yaml:"optional,omitempty"`
}

// ManifestResourceCompat declares supported resource versions for one type.
type ManifestResourceCompat struct {
	TypeID          string `json:"type_id" toml:"type_id" yaml:"type_id"`
	VersionRange    string `json:"version_range,omitempty" toml:"version_range,omitempty" yaml:"version_range,omitempty"`
	ReplacesDefault bool   `json:"replaces_default,omitempty" toml:"replaces_default,omitempty" yaml:"replaces_default,omitempty"`
	Priority        int    `json:"priority,omitempty" toml:"priority,omitempty" yaml:"priority,omitempty"`
}

// Sidecar manifest suffixes probed next to a module file, in order.
var sidecarSuffixes = []string{".manifest.toml", ".manifest.yaml"}

// ParseManifestJSON decodes the embedded manifest form.
func ParseManifestJSON(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "parse manifest json")
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadSidecarManifest probes for a sidecar manifest next to the module file
// and parses the first one found. Returns (nil, nil) when no sidecar exists.
func LoadSidecarManifest(modulePath string) (*Manifest, error) {
	for _, suffix := range sidecarSuffixes {
		sidecar := modulePath + suffix
		data, err := os.ReadFile(sidecar)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "read sidecar manifest %s", sidecar)
		}

		var m Manifest
		if suffix == ".manifest.toml" {
			err = toml.Unmarshal(data, &m)
		} else {
			err = yaml.Unmarshal(data, &m)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "parse sidecar manifest %s", sidecar)
		}
		if err := m.validate(); err != nil {
			return nil, errors.Wrapf(err, "sidecar manifest %s", sidecar)
		}
		return &m, nil
	}
	return nil, nil
}

func (m *Manifest) validate() error {
	if m.Name == "" {
		return errors.NewInvalidRequestError("manifest missing name")
	}
	if m.Version == "" {
		return errors.NewInvalidRequestError("manifest %q missing version", m.Name)
	}
	if _, err := ParseVersion(m.Version); err != nil {
		return errors.Wrapf(err, "manifest %q", m.Name)
	}
	return nil
}

// ModuleVersion returns the parsed module version. The manifest has already
// been validated, so a parse failure here degrades to the zero version.
func (m *Manifest) ModuleVersion() Version {
	v, err := ParseVersion(m.Version)
	if err != nil {
		return Version{}
	}
	return v
}

// CheckHostCompatibility evaluates the declared min/max host versions against
// the running host. It returns ok=false with a human-readable warning when the
// host falls outside the declared range, and an error only when the declared
// range itself cannot be parsed.
func (m *Manifest) CheckHostCompatibility(hostVersion string) (bool, string, error) {
	if m.MinHostVersion == "" && m.MaxHostVersion == "" {
		return true, "", nil
	}

	host, err := semver.NewVersion(hostVersion)
	if err != nil {
		return false, "", errors.Wrapf(err, "invalid host version %q", hostVersion)
	}

	expr := ""
	if m.MinHostVersion != "" {
		expr = ">= " + m.MinHostVersion
	}
	if m.MaxHostVersion != "" {
		if expr != "" {
			expr += ", "
		}
		expr += "<= " + m.MaxHostVersion
	}

	constraint, err := semver.NewConstraint(expr)
	if err != nil {
		return false, "", errors.Wrapf(err, "invalid host version range %q in manifest %q", expr, m.Name)
	}

	if !constraint.Check(host) {
		return false, errors.Newf("module %q declares host range %q, host is %s", m.Name, expr, hostVersion).Error(), nil
	}
	return true, "", nil
}

// declaredDependencies converts the manifest records to Descriptor form,
// skipping records whose version fields cannot be parsed. Each skipped record
// is reported as a warning string so extraction can degrade instead of fail.
func (m *Manifest) declaredDependencies() ([]Dependency, []string) {
	var deps []Dependency
	var warnings []string
	for _, d := range m.Dependencies {
		if d.Plugin == "" {
			warnings = append(warnings, "dependency record without plugin name skipped")
			continue
		}

		dep := Dependency{Name: d.Plugin, Optional: d.Optional}
		if d.Min != "" {
			min, err := ParseVersion(d.Min)
			if err != nil {
				warnings = append(warnings, errors.Wrapf(err, "dependency %q min", d.Plugin).Error())
				continue
			}
			dep.Min = min
		}
		if d.Max != "" {
			max, err := ParseVersion(d.Max)
			if err != nil {
				warnings = append(warnings, errors.Wrapf(err, "dependency %q max", d.Plugin).Error())
				continue
			}
			dep.Max = &max
		}
		deps = append(deps, dep)
	}
	return deps, warnings
}

// declaredResourceCompat converts resource-compat records, validating semver
// ranges and normalizing type identifiers. Bad records degrade to warnings.
func (m *Manifest) declaredResourceCompat() ([]ResourceCompat, []string) {
	var compat []ResourceCompat
	var warnings []string
	for _, rc := range m.ResourceCompat {
		if rc.TypeID == "" {
			warnings = append(warnings, "resource compat record without type_id skipped")
			continue
		}
		if rc.VersionRange != "" {
			if _, err := semver.NewConstraint(rc.VersionRange); err != nil {
				warnings = append(warnings, errors.Wrapf(err, "resource compat %q range", rc.TypeID).Error())
				continue
			}
		}
		compat = append(compat, ResourceCompat{
			TypeID:          handler.NormalizeTypeID(rc.TypeID),
			VersionRange:    rc.VersionRange,
			ReplacesDefault: rc.ReplacesDefault,
			Priority:        rc.Priority,
		})
	}
	return compat, warnings
}
