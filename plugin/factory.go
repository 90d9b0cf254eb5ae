package plugin

import (
	"context"

	"github.com/wrenware/packhost/errors"
	"github.com/wrenware/packhost/handler"
)

// wasmFactory adapts one module export into a handler.Factory. The module
// instance is shared between handler instances; wazero serializes nothing for
// us, but decode calls go through the module's own exported function which the
// registry invokes from one goroutine at a time per lookup site.
type wasmFactory struct {
	mod    *Module
	typeID string
	export string
}

// NewModuleFactory wraps a handler candidate from an instantiable module as a
// handler.Factory bound to that module's export.
func NewModuleFactory(mod *Module, cand HandlerCandidate) handler.Factory {
	return &wasmFactory{
		mod:    mod,
		typeID: handler.NormalizeTypeID(cand.TypeID),
		export: cand.Export,
	}
}

func (f *wasmFactory) ResourceTypes() []string {
	return []string{f.typeID}
}

func (f *wasmFactory) New() handler.Handler {
	return handler.Func(func(ctx context.Context, raw []byte) ([]byte, error) {
		inst, err := f.mod.Instance(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "handler %s for %s", f.export, f.typeID)
		}
		out, err := callBytes(ctx, inst, f.export, raw)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s", f.typeID)
		}
		return out, nil
	})
}
