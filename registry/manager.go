// Package registry maintains the live mapping from data-type identifiers to
// the handler factories plugins provide, plus the process-wide compatibility
// bridge legacy call sites still use.
package registry

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wrenware/packhost/errors"
	"github.com/wrenware/packhost/handler"
	"github.com/wrenware/packhost/plugin"
)

// Binder materializes handler factories for a discovered descriptor. The
// discovery service supplies a load-context-backed implementation; direct
// registrations bypass binding entirely.
type Binder interface {
	Bind(ctx context.Context, desc *plugin.Descriptor) (map[string]handler.Factory, error)
}

// BinderFunc adapts a function to the Binder interface.
type BinderFunc func(ctx context.Context, desc *plugin.Descriptor) (map[string]handler.Factory, error)

// Bind implements Binder.
func (f BinderFunc) Bind(ctx context.Context, desc *plugin.Descriptor) (map[string]handler.Factory, error) {
	return f(ctx, desc)
}

// Registered is one module's live registration. Owned exclusively by the
// Manager; it is marked inactive when unregistered or when the manager is
// disposed.
type Registered struct {
	ID           string
	Descriptor   *plugin.Descriptor
	Handlers     map[string]handler.Factory
	RegisteredAt time.Time
	Active       bool

	// synthetic marks registrations fabricated by the legacy bridge rather
	// than produced by discovery.
	synthetic bool
}

// Manager is the mutable registry binding data-type identifiers to handler
// factories. One mutex guards both maps; reads take it too. Registration
// volume is low and infrequent, so simplicity wins over read throughput.
type Manager struct {
	mu       sync.Mutex
	modules  map[string]*Registered      // module name -> registration
	handlers map[string]handler.Factory  // type id -> factory
	owners   map[string]string           // type id -> owning module name
	binder   Binder
	logger   *zap.SugaredLogger
	closed   bool
}

// NewManager creates a registration manager. binder may be nil, in which case
// only RegisterDirect works.
func NewManager(binder Binder, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{
		modules:  make(map[string]*Registered),
		handlers: make(map[string]handler.Factory),
		owners:   make(map[string]string),
		binder:   binder,
		logger:   logger,
	}
}

// Register binds a discovered descriptor's handlers into the registry.
// Idempotent per module name: re-registering an already-registered name
// returns true without rework. An identifier collision with another module is
// a hard error; the call fails, the previous owner keeps the identifier, and
// none of the failing module's claims are committed.
func (m *Manager) Register(ctx context.Context, desc *plugin.Descriptor) (bool, error) {
	if desc == nil {
		return false, errors.NewInvalidRequestError("nil descriptor")
	}
	if m.binder == nil {
		return false, errors.NewInvalidRequestError("manager has no binder; use RegisterDirect")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false, errors.Wrap(errors.ErrClosed, "register")
	}
	if _, exists := m.modules[desc.Name]; exists {
		m.mu.Unlock()
		return true, nil
	}
	m.mu.Unlock()

	// Binding may load module code; keep it outside the lock.
	factories, err := m.binder.Bind(ctx, desc)
	if err != nil {
		return false, errors.Wrapf(err, "bind handlers for %s", desc.Name)
	}

	if err := ctx.Err(); err != nil {
		return false, errors.Wrapf(err, "register %s", desc.Name)
	}

	return m.commit(desc, factories, false)
}

// RegisterDirect registers a descriptor with an explicit handler map,
// bypassing the binder. Used by in-process callers and the legacy bridge.
func (m *Manager) RegisterDirect(ctx context.Context, desc *plugin.Descriptor, factories map[string]handler.Factory) (bool, error) {
	if desc == nil {
		return false, errors.NewInvalidRequestError("nil descriptor")
	}
	if len(factories) == 0 {
		return false, errors.NewInvalidRequestError("no handlers supplied for %s", desc.Name)
	}
	if err := ctx.Err(); err != nil {
		return false, errors.Wrapf(err, "register %s", desc.Name)
	}
	return m.commit(desc, factories, true)
}

// commit claims identifiers all-or-nothing under the lock.
func (m *Manager) commit(desc *plugin.Descriptor, factories map[string]handler.Factory, synthetic bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, errors.Wrap(errors.ErrClosed, "register")
	}
	if _, exists := m.modules[desc.Name]; exists {
		return true, nil
	}

	normalized := make(map[string]handler.Factory, len(factories))
	for typeID, factory := range factories {
		id := handler.NormalizeTypeID(typeID)
		if id == "" || factory == nil {
			return false, errors.NewInvalidRequestError("module %s: empty identifier or nil factory", desc.Name)
		}
		if owner, claimed := m.owners[id]; claimed {
			return false, errors.NewConflictError(
				"identifier %s already claimed by %s; refusing %s", id, owner, desc.Name)
		}
		normalized[id] = factory
	}

	reg := &Registered{
		ID:           uuid.NewString(),
		Descriptor:   desc,
		Handlers:     normalized,
		RegisteredAt: time.Now().UTC(),
		Active:       true,
		synthetic:    synthetic,
	}
	m.modules[desc.Name] = reg
	for id, factory := range normalized {
		m.handlers[id] = factory
		m.owners[id] = desc.Name
	}

	m.logger.Infow("Module registered",
		"name", desc.Name,
		"version", desc.Version.String(),
		"types", len(normalized),
	)
	return true, nil
}

// Unregister removes a module and releases every identifier it owned. Safe on
// unknown names.
func (m *Manager) Unregister(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.modules[name]
	if !ok {
		return false
	}
	m.release(reg)
	delete(m.modules, name)
	m.logger.Infow("Module unregistered", "name", name)
	return true
}

// release must be called with the lock held.
func (m *Manager) release(reg *Registered) {
	for id := range reg.Handlers {
		if m.owners[id] == reg.Descriptor.Name {
			delete(m.handlers, id)
			delete(m.owners, id)
		}
	}
	reg.Active = false
}

// UnclaimType releases a single identifier claim. If the owning registration
// was synthetic (legacy bridge) and holds no other claims, the whole
// registration is removed. Returns false for unclaimed identifiers.
func (m *Manager) UnclaimType(typeID string) bool {
	id := handler.NormalizeTypeID(typeID)

	m.mu.Lock()
	defer m.mu.Unlock()

	owner, ok := m.owners[id]
	if !ok {
		return false
	}
	reg := m.modules[owner]
	delete(m.handlers, id)
	delete(m.owners, id)
	delete(reg.Handlers, id)
	if reg.synthetic && len(reg.Handlers) == 0 {
		reg.Active = false
		delete(m.modules, owner)
	}
	return true
}

// Lookup returns the factory claiming a data-type identifier.
func (m *Manager) Lookup(typeID string) (handler.Factory, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.handlers[handler.NormalizeTypeID(typeID)]
	return f, ok
}

// SupportedTypes lists every claimed identifier in sorted order.
func (m *Manager) SupportedTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.handlers))
	for id := range m.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsRegistered reports whether the given factory currently backs any claimed
// identifier. Factories of uncomparable dynamic types (slice or map fields on
// a value receiver) can never match and report false rather than panicking in
// the interface comparison below.
func (m *Manager) IsRegistered(f handler.Factory) bool {
	if f == nil || !reflect.TypeOf(f).Comparable() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, bound := range m.handlers {
		if bound == f {
			return true
		}
	}
	return false
}

// ListRegistered returns the live registrations sorted by module name.
func (m *Manager) ListRegistered() []*Registered {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Registered, 0, len(m.modules))
	for _, reg := range m.modules {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Descriptor.Name < out[j].Descriptor.Name
	})
	return out
}

// Count returns the number of registered modules.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.modules)
}

// Close disposes the manager: every registration is marked inactive, all
// identifier claims are released, both maps cleared. Repeat calls are no-ops.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for _, reg := range m.modules {
		reg.Active = false
	}
	m.modules = make(map[string]*Registered)
	m.handlers = make(map[string]handler.Factory)
	m.owners = make(map[string]string)
	return nil
}
