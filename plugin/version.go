package plugin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wrenware/packhost/errors"
)

// Version is a four-component module version (major.minor.build.revision).
// Container-ecosystem modules carry four components, one more than semver can
// express, so ordering is implemented here; semver constraints are still used
// where ranges are genuinely semver (host compatibility, see Manifest).
type Version struct {
	Major    int
	Minor    int
	Build    int
	Revision int
}

// ParseVersion parses "1", "1.2", "1.2.3" or "1.2.3.4". Missing components
// default to zero.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "v"))
	if s == "" {
		return Version{}, errors.NewInvalidRequestError("empty version string")
	}

	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return Version{}, errors.NewInvalidRequestError("version %q has more than four components", s)
	}

	var nums [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, errors.NewInvalidRequestError("version %q: bad component %q", s, p)
		}
		nums[i] = n
	}

	return Version{Major: nums[0], Minor: nums[1], Build: nums[2], Revision: nums[3]}, nil
}

// MustParseVersion parses s and panics on failure. For tests and constants.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1, 0 or 1 ordering v against other component by component.
func (v Version) Compare(other Version) int {
	pairs := [4][2]int{
		{v.Major, other.Major},
		{v.Minor, other.Minor},
		{v.Build, other.Build},
		{v.Revision, other.Revision},
	}
	for _, p := range pairs {
		if p[0] < p[1] {
			return -1
		}
		if p[0] > p[1] {
			return 1
		}
	}
	return 0
}

// Less reports whether v orders strictly before other.
func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

// AtLeast reports whether v >= other.
func (v Version) AtLeast(other Version) bool { return v.Compare(other) >= 0 }

// InRange reports whether v falls within [min, max]. A nil max means unbounded.
func (v Version) InRange(min Version, max *Version) bool {
	if v.Compare(min) < 0 {
		return false
	}
	if max != nil && v.Compare(*max) > 0 {
		return false
	}
	return true
}

// IsZero reports whether every component is zero.
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0 && v.Build == 0 && v.Revision == 0
}

// String renders all four components.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}
