package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrenware/packhost/plugin"
)

func desc(name, version string, deps ...plugin.Dependency) *plugin.Descriptor {
	return &plugin.Descriptor{
		Name:         name,
		Version:      plugin.MustParseVersion(version),
		IsCompatible: true,
		Dependencies: deps,
	}
}

func required(name, min string) plugin.Dependency {
	return plugin.Dependency{Name: name, Min: plugin.MustParseVersion(min)}
}

func optional(name string) plugin.Dependency {
	return plugin.Dependency{Name: name, Optional: true}
}

func names(descriptors []*plugin.Descriptor) []string {
	out := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, d.Name)
	}
	return out
}

func TestResolveEmptyInput(t *testing.T) {
	order, issues := Resolve(nil)
	assert.Empty(t, order)
	assert.Empty(t, issues)
}

func TestResolveDependencyFirstOrder(t *testing.T) {
	order, issues := Resolve([]*plugin.Descriptor{
		desc("app", "1.0", required("lib", "1.0")),
		desc("lib", "1.0", required("base", "1.0")),
		desc("base", "1.0"),
	})

	require.Empty(t, issues)
	assert.Equal(t, []string{"base", "lib", "app"}, names(order))
}

func TestResolveIndependentModulesKeepDiscoveryOrder(t *testing.T) {
	order, issues := Resolve([]*plugin.Descriptor{
		desc("alpha", "1.0"),
		desc("beta", "1.0"),
	})

	require.Empty(t, issues)
	assert.Equal(t, []string{"alpha", "beta"}, names(order))
}

func TestResolveMissingDependency(t *testing.T) {
	order, issues := Resolve([]*plugin.Descriptor{
		desc("app", "1.0", required("ghost", "1.0")),
	})

	assert.Empty(t, order)
	require.Len(t, issues, 1)
	assert.Equal(t, Missing, issues[0].Kind)
	assert.Equal(t, "app", issues[0].Plugin)
	assert.Equal(t, "ghost", issues[0].Dependency)
}

func TestResolveOptionalMissingDependencyIsFine(t *testing.T) {
	order, issues := Resolve([]*plugin.Descriptor{
		desc("app", "1.0", optional("ghost")),
	})

	assert.Empty(t, issues)
	assert.Equal(t, []string{"app"}, names(order))
}

func TestResolveVersionMismatch(t *testing.T) {
	order, issues := Resolve([]*plugin.Descriptor{
		desc("app", "1.0", required("lib", "2.0")),
		desc("lib", "1.5"),
	})

	assert.Equal(t, []string{"lib"}, names(order))
	require.Len(t, issues, 1)
	assert.Equal(t, VersionMismatch, issues[0].Kind)
}

func TestResolveDedupeKeepsNewest(t *testing.T) {
	order, issues := Resolve([]*plugin.Descriptor{
		desc("lib", "1.0"),
		desc("lib", "2.0"),
		desc("app", "1.0", required("lib", "1.5")),
	})

	require.Empty(t, issues)
	require.Len(t, order, 2)
	assert.Equal(t, "lib", order[0].Name)
	assert.Equal(t, plugin.MustParseVersion("2.0"), order[0].Version)
	assert.Equal(t, "app", order[1].Name)
}

func TestResolveCycleDropsParticipants(t *testing.T) {
	order, issues := Resolve([]*plugin.Descriptor{
		desc("a", "1.0", required("b", "1.0")),
		desc("b", "1.0", required("a", "1.0")),
	})

	assert.Empty(t, order)

	// The cycle is reported exactly once; the second participant is dropped
	// transitively without its own issue.
	circular := 0
	for _, issue := range issues {
		if issue.Kind == Circular {
			circular++
		}
	}
	assert.Equal(t, 1, circular)
}

func TestResolveCycleDoesNotAffectOthers(t *testing.T) {
	order, issues := Resolve([]*plugin.Descriptor{
		desc("a", "1.0", required("b", "1.0")),
		desc("b", "1.0", required("a", "1.0")),
		desc("standalone", "1.0"),
	})

	assert.Equal(t, []string{"standalone"}, names(order))
	assert.NotEmpty(t, issues)
}

func TestResolveTransitiveDropIsSilent(t *testing.T) {
	order, issues := Resolve([]*plugin.Descriptor{
		desc("app", "1.0", required("lib", "1.0")),
		desc("lib", "1.0", required("ghost", "1.0")),
	})

	assert.Empty(t, order)

	// Only lib gets an issue (missing ghost); app is dropped silently because
	// its dependency chain collapsed.
	require.Len(t, issues, 1)
	assert.Equal(t, "lib", issues[0].Plugin)
	assert.Equal(t, Missing, issues[0].Kind)
}

func TestResolveIncompatibleDescriptor(t *testing.T) {
	bad := &plugin.Descriptor{
		Name:                  "broken",
		IsCompatible:          false,
		IncompatibilityReason: "compile failed",
	}

	order, issues := Resolve([]*plugin.Descriptor{bad, desc("good", "1.0")})

	assert.Equal(t, []string{"good"}, names(order))
	require.Len(t, issues, 1)
	assert.Equal(t, Incompatible, issues[0].Kind)
	assert.Equal(t, "compile failed", issues[0].Description)
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	input := []*plugin.Descriptor{
		desc("b", "1.0"),
		desc("a", "1.0", required("b", "1.0")),
	}

	Resolve(input)
	assert.Equal(t, "b", input[0].Name)
	assert.Equal(t, "a", input[1].Name)
}
