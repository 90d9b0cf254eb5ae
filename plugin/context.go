package plugin

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wrenware/packhost/errors"
)

// Subdirectories probed, after the module's own directory, when resolving a
// module's dependent files.
var dependentSubdirs = []string{"Dependencies", "Lib", "References"}

// Context is an isolated, disposable load boundary. Every module loaded
// through one Context shares a single wazero runtime; Close drops the whole
// runtime, releasing all of them together. Loading is idempotent per
// normalized absolute path.
type Context struct {
	name    string
	runtime wazero.Runtime
	logger  *zap.SugaredLogger

	mu           sync.Mutex
	modules      map[string]*Module // normalized absolute path -> module
	instantiated map[string]bool    // wazero module names live in the runtime
	wasiReady    bool
	closed       bool
}

// Module is one loaded plugin file. Compilation is eager; instantiation is
// deferred until an export actually needs to run, so a module whose dependent
// files never resolve can still be described from its compiled form.
type Module struct {
	Path string

	owner    *Context
	compiled wazero.CompiledModule

	mu       sync.Mutex
	instance api.Module
	instErr  error
	tried    bool
	inflight chan struct{} // non-nil while one caller is instantiating
}

// NewContext creates an isolated load context.
func NewContext(name string, logger *zap.SugaredLogger) *Context {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Context{
		name:         name,
		runtime:      wazero.NewRuntime(context.Background()),
		logger:       logger,
		modules:      make(map[string]*Module),
		instantiated: make(map[string]bool),
	}
}

// Name returns the context's diagnostic name.
func (c *Context) Name() string { return c.name }

// Load reads and compiles the module at path. Repeat calls with the same
// (normalized) path return the cached module. A missing file surfaces as
// ErrNotFound; a malformed binary as a compile error. Both are plain errors,
// never panics.
func (c *Context) Load(ctx context.Context, path string) (*Module, error) {
	norm, err := normalizePath(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.Wrapf(errors.ErrClosed, "load context %s", c.name)
	}
	if mod, ok := c.modules[norm]; ok {
		return mod, nil
	}

	data, err := os.ReadFile(norm)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrNotFound, "module file %s", norm)
		}
		return nil, errors.Wrapf(err, "read module %s", norm)
	}

	compiled, err := c.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.Wrapf(err, "compile module %s", norm)
	}

	mod := &Module{Path: norm, owner: c, compiled: compiled}
	c.modules[norm] = mod
	c.logger.Debugw("Module compiled", "context", c.name, "path", norm)
	return mod, nil
}

// LoadedCount reports how many modules this context currently holds.
func (c *Context) LoadedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.modules)
}

// Close disposes the context and unloads every module it holds. Safe to call
// repeatedly.
func (c *Context) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.modules = make(map[string]*Module)
	c.instantiated = make(map[string]bool)

	if err := c.runtime.Close(ctx); err != nil {
		return errors.Wrapf(err, "close load context %s", c.name)
	}
	return nil
}

// Exports returns the names of the module's exported functions, available
// without instantiation.
func (m *Module) Exports() map[string]api.FunctionDefinition {
	return m.compiled.ExportedFunctions()
}

// HasExport reports whether the compiled module exports a function by name.
func (m *Module) HasExport(name string) bool {
	_, ok := m.compiled.ExportedFunctions()[name]
	return ok
}

// Instance returns the instantiated module, instantiating on first use.
// Concurrent first-use callers wait for the one in-flight instantiation
// instead of racing it. Dependent modules named by imports are resolved before
// instantiation; an import that cannot be resolved is left alone, and
// instantiation fails only if the runtime actually requires it.
func (m *Module) Instance(ctx context.Context) (api.Module, error) {
	return m.ensureInstance(ctx, map[string]bool{})
}

// ensureInstance carries the chain of module paths on the current resolution
// walk, so a genuinely cyclic import chain is detected without mistaking a
// concurrent caller for a cycle.
func (m *Module) ensureInstance(ctx context.Context, chain map[string]bool) (api.Module, error) {
	if chain[m.Path] {
		return nil, errors.Newf("import cycle involving %s", m.Path)
	}

	for {
		m.mu.Lock()
		if m.tried {
			inst, instErr := m.instance, m.instErr
			m.mu.Unlock()
			return inst, instErr
		}
		if m.inflight == nil {
			m.inflight = make(chan struct{})
			m.mu.Unlock()
			break
		}
		wait := m.inflight
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "instantiate module %s", m.Path)
		}
	}

	chain[m.Path] = true
	if err := m.owner.resolveImports(ctx, m, chain); err != nil {
		// Unresolved imports are not fatal here; instantiation below is
		// the arbiter of whether they were actually needed.
		m.owner.logger.Debugw("Import resolution incomplete",
			"module", m.Path, "error", err)
	}
	delete(chain, m.Path)

	inst, err := m.owner.instantiate(ctx, m.compiled, NameFromPath(m.Path))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tried = true
	close(m.inflight)
	m.inflight = nil
	if err != nil {
		m.instErr = errors.Wrapf(err, "instantiate module %s", m.Path)
		return nil, m.instErr
	}
	m.instance = inst
	return inst, nil
}

// resolveImports loads and instantiates the dependent modules an import
// section names, probing the module's own directory, the conventional
// dependent subdirectories, and finally the host's already-instantiated set
// (including WASI). Unresolved names are reported but never fatal.
func (c *Context) resolveImports(ctx context.Context, m *Module, chain map[string]bool) error {
	needed := make(map[string]bool)
	for _, def := range m.compiled.ImportedFunctions() {
		if modName, _, isImport := def.Import(); isImport {
			needed[modName] = true
		}
	}

	var unresolved []string
	for name := range needed {
		if err := c.resolveImport(ctx, m, name, chain); err != nil {
			unresolved = append(unresolved, name)
			c.logger.Debugw("Dependent module unresolved",
				"module", m.Path, "import", name, "error", err)
		}
	}

	if len(unresolved) > 0 {
		return errors.Newf("unresolved imports: %v", unresolved)
	}
	return nil
}

func (c *Context) resolveImport(ctx context.Context, m *Module, name string, chain map[string]bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.Wrap(errors.ErrClosed, "resolve import")
	}
	if c.instantiated[name] {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if name == wasi_snapshot_preview1.ModuleName {
		return c.instantiateWASI(ctx)
	}

	// Probe the module's directory, then the conventional subdirectories.
	dir := filepath.Dir(m.Path)
	candidates := []string{filepath.Join(dir, name+".wasm")}
	for _, sub := range dependentSubdirs {
		candidates = append(candidates, filepath.Join(dir, sub, name+".wasm"))
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		dep, err := c.Load(ctx, candidate)
		if err != nil {
			return errors.Wrapf(err, "dependent module %s", candidate)
		}
		if _, err := dep.ensureInstance(ctx, chain); err != nil {
			return err
		}
		return nil
	}

	return errors.Wrapf(errors.ErrNotFound, "dependent module %q", name)
}

func (c *Context) instantiateWASI(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wasiReady {
		return nil
	}
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, c.runtime); err != nil {
		return errors.Wrap(err, "instantiate WASI")
	}
	c.wasiReady = true
	c.instantiated[wasi_snapshot_preview1.ModuleName] = true
	return nil
}

func (c *Context) instantiate(ctx context.Context, compiled wazero.CompiledModule, name string) (api.Module, error) {
	inst, err := c.runtime.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.instantiated[name] = true
	c.mu.Unlock()
	return inst, nil
}

func normalizePath(path string) (string, error) {
	if path == "" {
		return "", errors.NewInvalidRequestError("empty module path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "normalize path %q", path)
	}
	return filepath.Clean(abs), nil
}
