package wasm

import (
	"bytes"

	"github.com/tetratelabs/wazero/api"
)

// Memory wraps an engine's linear memory.
//
// wazero hands out slices that alias the live buffer. Those slices go stale
// when the engine grows its memory, so Memory only serves as a Region for
// the view cache and for short reads that copy immediately.
type Memory struct {
	mem api.Memory
}

// NewMemory creates a memory helper for a module instance.
func NewMemory(module api.Module) *Memory {
	return &Memory{mem: module.Memory()}
}

// Buffer returns the whole linear memory as it is right now.
func (m *Memory) Buffer() []byte {
	if m.mem == nil {
		return nil
	}
	buf, ok := m.mem.Read(0, m.mem.Size())
	if !ok {
		return nil
	}
	return buf
}

// ReadString reads up to length bytes as a string, stopping at a NUL byte.
func (m *Memory) ReadString(ptr uint32, length uint32) (string, bool) {
	if m.mem == nil {
		return "", false
	}
	buf, ok := m.mem.Read(ptr, length)
	if !ok {
		return "", false
	}
	if end := bytes.IndexByte(buf, 0); end >= 0 {
		buf = buf[:end]
	}
	return string(buf), true
}
