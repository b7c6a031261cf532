package enginetest

import (
	"context"
	"errors"
	"testing"

	"github.com/woxQAQ/objparser-bridge/internal/engine"
)

func TestEngineProtocol(t *testing.T) {
	e := New()
	ctx := context.Background()
	text := []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3")

	addr, err := e.Allocate(ctx, uint32(len(text)))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Memory().Write(addr, text); err != nil {
		t.Fatal(err)
	}

	before := len(e.mem)
	h, err := e.Parse(ctx, addr, uint32(len(text)))
	if err != nil {
		t.Fatal(err)
	}
	if h.IsNull() {
		t.Fatal("Parse returned a null handle")
	}
	if len(e.mem) <= before {
		t.Error("Parse should grow memory")
	}

	n, _ := e.VertexCount(ctx, h)
	ptr, _ := e.VertexPositions(ctx, h)
	positions, err := e.Memory().Float32s(ptr, n*3)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 9 || positions[3] != 1 || positions[7] != 1 {
		t.Errorf("positions = %v", positions)
	}

	if err := e.Destroy(ctx, h); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if err := e.Destroy(ctx, h); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("Second Destroy = %v, want %v", err, ErrUnknownHandle)
	}
	if e.DestroyCount(h) != 2 {
		t.Errorf("DestroyCount = %d, want 2", e.DestroyCount(h))
	}
	if _, err := e.VertexCount(ctx, h); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("VertexCount after destroy = %v, want %v", err, ErrUnknownHandle)
	}
}

func TestEngineFaults(t *testing.T) {
	e := New()
	ctx := context.Background()
	boom := errors.New("boom")

	e.FailOn(OpAllocate, boom)
	if _, err := e.Allocate(ctx, 4); err != boom {
		t.Errorf("Allocate = %v, want %v", err, boom)
	}

	e.PanicOn(OpAllocate, "trap")
	func() {
		defer func() {
			if r := recover(); r != "trap" {
				t.Errorf("recover() = %v, want trap", r)
			}
		}()
		e.Allocate(ctx, 4)
	}()

	e.Heal()
	if _, err := e.Allocate(ctx, 4); err != nil {
		t.Errorf("Allocate after Heal = %v", err)
	}

	if got := e.Calls(); len(got) != 3 {
		t.Errorf("Calls = %v, want 3 entries", got)
	}
}

func TestEngineAllocateGrows(t *testing.T) {
	e := New()
	addr, err := e.Allocate(context.Background(), 3*pageSize)
	if err != nil {
		t.Fatal(err)
	}
	if int(addr)+3*pageSize > len(e.mem) {
		t.Errorf("allocation [%d, %d) exceeds memory of %d bytes", addr, int(addr)+3*pageSize, len(e.mem))
	}
}

func TestBytesOnlyHidesPathParser(t *testing.T) {
	if _, ok := BytesOnly(New()).(engine.PathParser); ok {
		t.Error("BytesOnly should not expose ParsePath")
	}
}
