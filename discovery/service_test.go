package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrenware/packhost/errors"
	"github.com/wrenware/packhost/internal/wasmtest"
	"github.com/wrenware/packhost/plugin"
	"github.com/wrenware/packhost/registry"
	"github.com/wrenware/packhost/resolver"
)

var emptyWasm = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func writeModule(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, emptyWasm, 0644))
	return path
}

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	extractor := plugin.NewExtractor("1.0.0", true, nil)
	svc := NewService(extractor, opts, nil)
	t.Cleanup(func() { svc.Close(context.Background()) })
	return svc
}

func TestDiscoverAllEmptyLocation(t *testing.T) {
	svc := newTestService(t, Options{Locations: []string{t.TempDir()}})

	result, err := svc.DiscoverAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Descriptors)
	assert.Empty(t, result.DiscoveryIssues)
	assert.Zero(t, result.Registered)
}

func TestDiscoverAllMissingLocationIsSilent(t *testing.T) {
	svc := newTestService(t, Options{
		Locations: []string{filepath.Join(t.TempDir(), "does-not-exist")},
	})

	result, err := svc.DiscoverAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Descriptors)
	assert.Empty(t, result.DiscoveryIssues)
}

func TestDiscoverAllDescribesCandidates(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "codec.wasm")
	writeModule(t, dir, "helper.wasm")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0644))

	svc := newTestService(t, Options{Locations: []string{dir}})

	result, err := svc.DiscoverAll(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Descriptors, 2)
	for _, d := range result.Descriptors {
		assert.True(t, d.IsCompatible)
	}
}

func TestDiscoverAllDenyList(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "codec.wasm")
	writeModule(t, dir, "wasi_snapshot.wasm")
	writeModule(t, dir, "wasm_runtime.wasm")

	svc := newTestService(t, Options{Locations: []string{dir}})

	result, err := svc.DiscoverAll(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Descriptors, 1)
	assert.Equal(t, "codec", result.Descriptors[0].Name)
}

func TestDiscoverAllBrokenModule(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "good.wasm")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.wasm"), []byte("not wasm"), 0644))

	svc := newTestService(t, Options{Locations: []string{dir}})

	result, err := svc.DiscoverAll(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Descriptors, 2)

	var broken *plugin.Descriptor
	for _, d := range result.Descriptors {
		if d.Name == "broken" {
			broken = d
		}
	}
	require.NotNil(t, broken)
	assert.False(t, broken.IsCompatible)
	assert.NotEmpty(t, broken.IncompatibilityReason)
	require.Len(t, result.DiscoveryIssues, 1)
	assert.Equal(t, "load", result.DiscoveryIssues[0].Stage)
}

func TestDiscoverAllWithManifests(t *testing.T) {
	dir := t.TempDir()
	appPath := writeModule(t, dir, "app.wasm")
	libPath := writeModule(t, dir, "lib.wasm")
	require.NoError(t, os.WriteFile(appPath+".manifest.toml", []byte(`
name = "app"
version = "1.0"

[[dependencies]]
plugin = "lib"
min = "1.0"
`), 0644))
	require.NoError(t, os.WriteFile(libPath+".manifest.toml", []byte(`
name = "lib"
version = "1.5"
`), 0644))

	svc := newTestService(t, Options{
		Locations: []string{dir},
		Resolve:   resolver.Resolve,
	})

	result, err := svc.DiscoverAll(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Descriptors, 2)
	assert.Empty(t, result.ResolutionIssues)
}

func TestDiscoverAllRegistersThroughBinder(t *testing.T) {
	dir := t.TempDir()

	// Modules without any handler surface cannot be bound; registration
	// records the failure and moves on.
	writeModule(t, dir, "codec.wasm")

	svc := newTestService(t, Options{
		Locations: []string{dir},
		Resolve:   resolver.Resolve,
	})
	manager := registry.NewManager(svc.Binder(), nil)
	defer manager.Close()

	result, err := svc.DiscoverAll(context.Background(), manager)
	require.NoError(t, err)
	assert.Zero(t, result.Registered)
	require.Len(t, result.RegistrationIssues, 1)
	assert.Contains(t, result.RegistrationIssues[0].Err.Error(), "no bindable handlers")
	assert.Equal(t, 0, manager.Count())
}

func TestDiscoverAllRegistersWorkingHandler(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "thumbs.wasm"),
		wasmtest.PluginModule(), 0644))

	svc := newTestService(t, Options{
		Locations: []string{dir},
		Resolve:   resolver.Resolve,
	})
	manager := registry.NewManager(svc.Binder(), nil)
	defer manager.Close()

	result, err := svc.DiscoverAll(context.Background(), manager)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Registered)
	assert.Empty(t, result.DiscoveryIssues)
	assert.Empty(t, result.ResolutionIssues)
	assert.Empty(t, result.RegistrationIssues)

	// The full path works: discovery bound the declared handler and a lookup
	// produces a factory whose handler actually decodes.
	factory, found := manager.Lookup(wasmtest.TypeID)
	require.True(t, found)

	out, err := factory.New().Decode(context.Background(), []byte("raw entry"))
	require.NoError(t, err)
	assert.Equal(t, wasmtest.DecodeOutput, out)
}

func TestBinderUnknownDescriptor(t *testing.T) {
	svc := newTestService(t, Options{Locations: []string{t.TempDir()}})

	_, err := svc.Binder().Bind(context.Background(),
		&plugin.Descriptor{Path: "/nowhere/mod.wasm", Name: "mod"})
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestDiscoverAllCancelled(t *testing.T) {
	svc := newTestService(t, Options{Locations: []string{t.TempDir()}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.DiscoverAll(ctx, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestServiceClose(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "codec.wasm")

	extractor := plugin.NewExtractor("1.0.0", true, nil)
	svc := NewService(extractor, Options{Locations: []string{dir}}, nil)

	_, err := svc.DiscoverAll(context.Background(), nil)
	require.NoError(t, err)

	counts := svc.LoadedCounts()
	assert.Equal(t, 1, counts[dir])

	require.NoError(t, svc.Close(context.Background()))
	require.NoError(t, svc.Close(context.Background()))
	assert.Empty(t, svc.LoadedCounts())

	// A disposed service refuses further passes.
	_, err = svc.DiscoverAll(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrClosed))
}
