package memview

import (
	"github.com/woxQAQ/objparser-bridge/internal/engine"
)

// Memory implements engine.Memory over a view cache. Every call re-derives
// its view, so it is safe to use across foreign calls that grow memory.
type Memory struct {
	cache *Cache
}

// NewMemory creates an engine.Memory over region.
func NewMemory(region Region) *Memory {
	return &Memory{cache: NewCache(region)}
}

// Cache returns the underlying view cache.
func (m *Memory) Cache() *Cache {
	return m.cache
}

// Write copies data into linear memory at addr.
func (m *Memory) Write(addr engine.Address, data []byte) error {
	view := m.cache.ByteView()
	if addr > engine.Address(len(view)) || uint64(len(data)) > uint64(len(view))-uint64(addr) {
		return &OutOfBoundsError{Start: int(addr), Count: len(data), Len: len(view)}
	}
	copy(view[addr:], data)
	return nil
}

// Float32s copies n float32 values starting at byte address addr.
func (m *Memory) Float32s(addr engine.Address, n uint32) ([]float32, error) {
	start, err := slot(addr)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []float32{}, nil
	}
	return m.cache.FloatView().Copy(start, int(n))
}

// Uint32s copies n uint32 values starting at byte address addr.
func (m *Memory) Uint32s(addr engine.Address, n uint32) ([]uint32, error) {
	start, err := slot(addr)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []uint32{}, nil
	}
	return m.cache.Uint32View().Copy(start, int(n))
}

// slot converts a byte address into a 4-byte view index. The engine
// guarantees 4-byte alignment for the buffers read here.
func slot(addr engine.Address) (int, error) {
	if addr%4 != 0 {
		return 0, &AlignmentError{Address: uint64(addr), Align: 4}
	}
	return int(addr / 4), nil
}
