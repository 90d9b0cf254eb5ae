package plugin

// Memory protocol for crossing the module boundary: strings and byte blobs
// travel as (ptr, len) pairs in linear memory, allocated with the module's
// wasm_alloc export and released with wasm_free. Return values are packed as
// (ptr << 32) | len in a u64.

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wrenware/packhost/errors"
)

const (
	exportAlloc = "wasm_alloc"
	exportFree  = "wasm_free"
)

// callNoArgs invokes a no-input export returning a packed (ptr<<32)|len u64
// and reads the result out of linear memory.
func callNoArgs(ctx context.Context, mod api.Module, fnName string) ([]byte, error) {
	freeFn := mod.ExportedFunction(exportFree)
	targetFn := mod.ExportedFunction(fnName)
	if freeFn == nil || targetFn == nil {
		return nil, errors.Newf("wasm: missing export %q", fnName)
	}

	results, err := targetFn.Call(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "wasm call %s", fnName)
	}

	return unpackResult(ctx, mod, freeFn, fnName, results[0])
}

// callBytes invokes a (ptr, len) export with an input blob and reads the
// packed result back out.
func callBytes(ctx context.Context, mod api.Module, fnName string, input []byte) ([]byte, error) {
	allocFn := mod.ExportedFunction(exportAlloc)
	freeFn := mod.ExportedFunction(exportFree)
	targetFn := mod.ExportedFunction(fnName)
	if allocFn == nil || freeFn == nil || targetFn == nil {
		return nil, errors.Newf("wasm: missing export %q", fnName)
	}

	inputSize := uint64(len(input))
	var inputPtr uint64
	if inputSize > 0 {
		allocated, err := allocFn.Call(ctx, inputSize)
		if err != nil {
			return nil, errors.Wrapf(err, "wasm alloc for %s (size=%d)", fnName, inputSize)
		}
		inputPtr = allocated[0]
		if inputPtr == 0 {
			return nil, errors.Newf("wasm alloc returned null for %s (size=%d)", fnName, inputSize)
		}

		if !mod.Memory().Write(uint32(inputPtr), input) {
			freeFn.Call(ctx, inputPtr, inputSize)
			return nil, errors.Newf("wasm %s memory write out of range at ptr=%d size=%d", fnName, inputPtr, inputSize)
		}
	}

	results, err := targetFn.Call(ctx, inputPtr, inputSize)
	if inputSize > 0 {
		if _, freeErr := freeFn.Call(ctx, inputPtr, inputSize); freeErr != nil && err == nil {
			return nil, errors.Wrapf(freeErr, "wasm %s failed to free input buffer at ptr=%d size=%d", fnName, inputPtr, inputSize)
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "wasm call %s", fnName)
	}

	return unpackResult(ctx, mod, freeFn, fnName, results[0])
}

func unpackResult(ctx context.Context, mod api.Module, freeFn api.Function, fnName string, packed uint64) ([]byte, error) {
	resultPtr := uint32(packed >> 32)
	resultLen := uint32(packed & 0xFFFFFFFF)

	if resultPtr == 0 || resultLen == 0 {
		return nil, errors.Newf("wasm %s returned null result (ptr=%d, len=%d)", fnName, resultPtr, resultLen)
	}

	resultBytes, ok := mod.Memory().Read(resultPtr, resultLen)
	if !ok {
		return nil, errors.Newf("wasm %s memory read out of range at ptr=%d len=%d", fnName, resultPtr, resultLen)
	}

	// Copy before freeing (memory invalidated after free)
	output := make([]byte, len(resultBytes))
	copy(output, resultBytes)

	if _, err := freeFn.Call(ctx, uint64(resultPtr), uint64(resultLen)); err != nil {
		return nil, errors.Wrapf(err, "wasm %s failed to free result buffer at ptr=%d size=%d", fnName, resultPtr, resultLen)
	}

	return output, nil
}
