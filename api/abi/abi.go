// Package abi names the entry points an OBJ parsing engine exports.
//
// Addresses and lengths are 32-bit on the WebAssembly side because wasm32
// uses a 32-bit linear memory. The shared library uses native pointers.
//
// Entry points (design-level signatures):
//
//	allocate(byteLength) -> address
//	parse(address, byteLength) -> handle          // 0 = rejected
//	vertexCount(handle) -> u32                    // vertices, not floats
//	vertexPositions(handle) -> address            // 3 x f32 per vertex
//	indexCount(handle) -> u32                     // triangles * 3
//	indices(handle) -> address                    // u32 per index
//	destroy(handle)
//
// Vertex and index buffers are 4-byte aligned.
package abi

// Symbols maps each entry point to the name the engine exports it under.
type Symbols struct {
	Allocate        string `yaml:"allocate"`
	Parse           string `yaml:"parse"`
	ParsePath       string `yaml:"parse_path"`
	VertexCount     string `yaml:"vertex_count"`
	VertexPositions string `yaml:"vertex_positions"`
	IndexCount      string `yaml:"index_count"`
	Indices         string `yaml:"indices"`
	Destroy         string `yaml:"destroy"`
}

// WasmSymbols are the wasm-bindgen export names of the engine module.
var WasmSymbols = Symbols{
	Allocate:        "__wbindgen_malloc",
	Parse:           "wasm_parse_obj",
	VertexCount:     "wasm_get_vertex_count",
	VertexPositions: "wasm_get_vertex_positions",
	IndexCount:      "wasm_get_index_count",
	Indices:         "wasm_get_indices",
	Destroy:         "wasm_destroy_handle",
}

// NativeSymbols are the C export names of the engine shared library. The
// library has no allocator export; the host stages input in pinned memory.
var NativeSymbols = Symbols{
	Parse:           "parse_obj",
	ParsePath:       "parse_obj_from_file_path",
	VertexCount:     "get_vertex_count",
	VertexPositions: "get_vertex_positions",
	IndexCount:      "get_index_count",
	Indices:         "get_indices",
	Destroy:         "destroy_handle",
}

// HostModule is the import module the wasm host provides to engines.
const HostModule = "host"

// Host functions an engine may import from HostModule.
//
//	log_message(level, ptr, length)  // 0 debug, 1 info, 2 warn, 3 error
const HostLogMessage = "log_message"

// Merge returns s with every empty field taken from defaults.
func (s Symbols) Merge(defaults Symbols) Symbols {
	pick := func(v, d string) string {
		if v != "" {
			return v
		}
		return d
	}
	return Symbols{
		Allocate:        pick(s.Allocate, defaults.Allocate),
		Parse:           pick(s.Parse, defaults.Parse),
		ParsePath:       pick(s.ParsePath, defaults.ParsePath),
		VertexCount:     pick(s.VertexCount, defaults.VertexCount),
		VertexPositions: pick(s.VertexPositions, defaults.VertexPositions),
		IndexCount:      pick(s.IndexCount, defaults.IndexCount),
		Indices:         pick(s.Indices, defaults.Indices),
		Destroy:         pick(s.Destroy, defaults.Destroy),
	}
}
