package registry

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/wrenware/packhost/errors"
	"github.com/wrenware/packhost/handler"
	"github.com/wrenware/packhost/logger"
	"github.com/wrenware/packhost/plugin"
)

// Legacy compatibility bridge. Old call sites register a handler for a type
// with a static call; the bridge translates that onto an explicitly
// constructed Manager supplied during initialization. Calls made before
// Initialize are rejected but cached, and replayed once a manager exists.

type pendingRegistration struct {
	typeID  string
	factory handler.Factory
}

var (
	bridgeMu      sync.Mutex
	bridgeManager *Manager
	bridgePending []pendingRegistration
)

// Initialize wires the bridge to a manager and replays every registration
// cached before initialization. Replays that cannot be applied (identifier
// meanwhile claimed) are logged, not failed.
func Initialize(m *Manager) error {
	if m == nil {
		return errors.NewInvalidRequestError("nil manager")
	}

	bridgeMu.Lock()
	defer bridgeMu.Unlock()

	bridgeManager = m
	for _, p := range bridgePending {
		if err := addLocked(p.typeID, p.factory); err != nil {
			logger.Warnw("Legacy registration replay failed",
				"type_id", p.typeID, "error", err)
		}
	}
	bridgePending = nil
	return nil
}

// Add registers a handler factory for one data-type identifier through the
// bridge. Before Initialize it returns ErrNotInitialized but caches the
// record for replay.
func Add(typeID string, factory handler.Factory) error {
	if typeID == "" || factory == nil {
		return errors.NewInvalidRequestError("empty identifier or nil factory")
	}

	bridgeMu.Lock()
	defer bridgeMu.Unlock()

	if bridgeManager == nil {
		bridgePending = append(bridgePending, pendingRegistration{typeID: typeID, factory: factory})
		return errors.Wrapf(errors.ErrNotInitialized, "legacy bridge; registration for %s cached", typeID)
	}
	return addLocked(typeID, factory)
}

// addLocked synthesizes a minimal descriptor from the factory's own package
// identity plus the claimed identifier, so legacy registrations share the
// registry with discovered modules. Caller holds bridgeMu.
func addLocked(typeID string, factory handler.Factory) error {
	id := handler.NormalizeTypeID(typeID)
	desc := &plugin.Descriptor{
		Name:          fmt.Sprintf("%s:%s", factoryIdentity(factory), id),
		QualifiedName: fmt.Sprintf("legacy/%s", id),
		IsCompatible:  true,
	}

	_, err := bridgeManager.RegisterDirect(context.Background(), desc,
		map[string]handler.Factory{id: factory})
	return err
}

// Remove releases a bridge-visible identifier claim.
func Remove(typeID string) bool {
	bridgeMu.Lock()
	defer bridgeMu.Unlock()

	if bridgeManager == nil {
		// Drop a matching pending record, if any.
		id := handler.NormalizeTypeID(typeID)
		for i, p := range bridgePending {
			if handler.NormalizeTypeID(p.typeID) == id {
				bridgePending = append(bridgePending[:i], bridgePending[i+1:]...)
				return true
			}
		}
		return false
	}
	return bridgeManager.UnclaimType(typeID)
}

// GetHandler looks an identifier up through the bridge.
func GetHandler(typeID string) (handler.Factory, bool) {
	bridgeMu.Lock()
	m := bridgeManager
	bridgeMu.Unlock()

	if m == nil {
		return nil, false
	}
	return m.Lookup(typeID)
}

// resetBridge clears all bridge state. Tests only.
func resetBridge() {
	bridgeMu.Lock()
	defer bridgeMu.Unlock()
	bridgeManager = nil
	bridgePending = nil
}

// factoryIdentity derives a module-like name from the factory's Go type.
func factoryIdentity(factory handler.Factory) string {
	t := reflect.TypeOf(factory)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if pkg := t.PkgPath(); pkg != "" {
		return pkg
	}
	return t.String()
}
