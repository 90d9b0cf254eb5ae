// Package wasmtest assembles small WebAssembly binaries for tests that need a
// real instantiable plugin. The fixtures are built byte by byte from the wasm
// binary format, so no external toolchain is involved.
package wasmtest

const (
	// TypeID is the data-type identifier declared by the fixture's handler
	// listing.
	TypeID = "0xAAAA"
	// DecodeExport is the decode function the handler listing names.
	DecodeExport = "decode_thumb"
)

var (
	// ManifestJSON is what the fixture's pk_manifest export returns.
	ManifestJSON = []byte(`{"name":"thumbs","version":"1.0.2.7"}`)
	// HandlersJSON is what the fixture's pk_handlers export returns.
	HandlersJSON = []byte(`[{"type_id":"0xAAAA","export":"decode_thumb"}]`)
	// DecodeOutput is the fixed blob the decode export returns for any input.
	DecodeOutput = []byte("decoded")
)

// Linear memory layout of the plugin fixture. The data segments below place
// each blob at its offset; wasm_alloc hands out the scratch region for input.
const (
	manifestOffset = 512
	handlersOffset = 1024
	outputOffset   = 2048
	scratchOffset  = 4096
)

// PluginModule returns a module exporting the declarative registration
// surface (pk_manifest, pk_handlers), the shared-memory allocator pair
// (wasm_alloc, wasm_free) and one decode handler that returns DecodeOutput.
func PluginModule() []byte {
	// Function types: 0 alloc (i32)->i32, 1 free (i32,i32)->(),
	// 2 zero-arg packed return ()->i64, 3 decode (i32,i32)->i64.
	types := vec(
		[]byte{0x60, 0x01, 0x7f, 0x01, 0x7f},
		[]byte{0x60, 0x02, 0x7f, 0x7f, 0x00},
		[]byte{0x60, 0x00, 0x01, 0x7e},
		[]byte{0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7e},
	)
	funcs := vec([]byte{0}, []byte{1}, []byte{2}, []byte{2}, []byte{3})
	memory := vec([]byte{0x00, 0x01}) // one 64KiB page
	exports := vec(
		export("memory", 0x02, 0),
		export("wasm_alloc", 0x00, 0),
		export("wasm_free", 0x00, 1),
		export("pk_manifest", 0x00, 2),
		export("pk_handlers", 0x00, 3),
		export(DecodeExport, 0x00, 4),
	)
	code := vec(
		funcBody(append(append([]byte{0x41}, sleb128(scratchOffset)...), 0x0b)),
		funcBody([]byte{0x0b}),
		funcBody(packedReturn(manifestOffset, len(ManifestJSON))),
		funcBody(packedReturn(handlersOffset, len(HandlersJSON))),
		funcBody(packedReturn(outputOffset, len(DecodeOutput))),
	)
	data := vec(
		dataSegment(manifestOffset, ManifestJSON),
		dataSegment(handlersOffset, HandlersJSON),
		dataSegment(outputOffset, DecodeOutput),
	)

	out := header()
	out = append(out, section(1, types)...)
	out = append(out, section(3, funcs)...)
	out = append(out, section(5, memory)...)
	out = append(out, section(7, exports)...)
	out = append(out, section(10, code)...)
	out = append(out, section(11, data)...)
	return out
}

// ImporterModule returns a module that imports function "f" from the module
// named dep, and itself exports a no-op "f" so importers can chain.
func ImporterModule(dep string) []byte {
	types := vec([]byte{0x60, 0x00, 0x00})
	imports := vec(importFunc(dep, "f", 0))
	funcs := vec([]byte{0})
	exports := vec(export("f", 0x00, 1)) // index 0 is the import
	code := vec(funcBody([]byte{0x0b}))

	out := header()
	out = append(out, section(1, types)...)
	out = append(out, section(2, imports)...)
	out = append(out, section(3, funcs)...)
	out = append(out, section(7, exports)...)
	out = append(out, section(10, code)...)
	return out
}

// LeafModule returns a dependency-free module exporting a no-op "f".
func LeafModule() []byte {
	types := vec([]byte{0x60, 0x00, 0x00})
	funcs := vec([]byte{0})
	exports := vec(export("f", 0x00, 0))
	code := vec(funcBody([]byte{0x0b}))

	out := header()
	out = append(out, section(1, types)...)
	out = append(out, section(3, funcs)...)
	out = append(out, section(7, exports)...)
	out = append(out, section(10, code)...)
	return out
}

func header() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
}

func section(id byte, body []byte) []byte {
	out := append([]byte{id}, uleb128(uint64(len(body)))...)
	return append(out, body...)
}

// vec encodes a wasm vector: element count followed by the elements.
func vec(items ...[]byte) []byte {
	out := uleb128(uint64(len(items)))
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

func name(s string) []byte {
	return append(uleb128(uint64(len(s))), s...)
}

func export(field string, kind byte, index uint64) []byte {
	out := append(name(field), kind)
	return append(out, uleb128(index)...)
}

func importFunc(module, field string, typeIndex uint64) []byte {
	out := append(name(module), name(field)...)
	out = append(out, 0x00)
	return append(out, uleb128(typeIndex)...)
}

// funcBody wraps an expression (which must end with 0x0b) into a code entry
// with no locals.
func funcBody(expr []byte) []byte {
	body := append([]byte{0x00}, expr...)
	return append(uleb128(uint64(len(body))), body...)
}

// packedReturn emits an expression computing (offset << 32) | length as i64,
// the packed pointer convention the host unpacks.
func packedReturn(offset, length int) []byte {
	expr := append([]byte{0x42}, sleb128(int64(offset))...)
	expr = append(expr, 0x42, 0x20, 0x86) // i64.const 32; i64.shl
	expr = append(expr, 0x42)
	expr = append(expr, sleb128(int64(length))...)
	return append(expr, 0x84, 0x0b) // i64.or; end
}

// dataSegment encodes an active segment at the given memory offset.
func dataSegment(offset int, payload []byte) []byte {
	out := append([]byte{0x00, 0x41}, sleb128(int64(offset))...)
	out = append(out, 0x0b)
	out = append(out, uleb128(uint64(len(payload)))...)
	return append(out, payload...)
}

func uleb128(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb128(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
