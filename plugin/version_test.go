package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 1, Minor: 2, Build: 3, Revision: 4}, v)
}

func TestParseVersionShortForms(t *testing.T) {
	v, err := ParseVersion("2")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 2}, v)

	v, err = ParseVersion("1.5")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 1, Minor: 5}, v)

	v, err = ParseVersion("v3.1.0")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 3, Minor: 1}, v)
}

func TestParseVersionInvalid(t *testing.T) {
	for _, bad := range []string{"", "1.2.3.4.5", "1.x", "-1.0", "a.b"} {
		_, err := ParseVersion(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestVersionCompare(t *testing.T) {
	assert.Equal(t, 0, MustParseVersion("1.2.3.4").Compare(MustParseVersion("1.2.3.4")))
	assert.Equal(t, -1, MustParseVersion("1.2.3.4").Compare(MustParseVersion("1.2.3.5")))
	assert.Equal(t, 1, MustParseVersion("2.0").Compare(MustParseVersion("1.9.9.9")))

	assert.True(t, MustParseVersion("1.0").Less(MustParseVersion("1.0.0.1")))
	assert.True(t, MustParseVersion("1.0.0.1").AtLeast(MustParseVersion("1.0")))
}

func TestVersionInRange(t *testing.T) {
	min := MustParseVersion("1.0")
	max := MustParseVersion("2.0")

	assert.True(t, MustParseVersion("1.5").InRange(min, &max))
	assert.True(t, MustParseVersion("1.0").InRange(min, &max))
	assert.True(t, MustParseVersion("2.0").InRange(min, &max))
	assert.False(t, MustParseVersion("0.9").InRange(min, &max))
	assert.False(t, MustParseVersion("2.0.0.1").InRange(min, &max))

	// Nil max is unbounded above.
	assert.True(t, MustParseVersion("99.0").InRange(min, nil))
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "1.2.0.0", MustParseVersion("1.2").String())
	assert.True(t, Version{}.IsZero())
	assert.False(t, MustParseVersion("0.0.0.1").IsZero())
}
