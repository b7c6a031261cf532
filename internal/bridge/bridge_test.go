package bridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/woxQAQ/objparser-bridge/internal/engine"
	"github.com/woxQAQ/objparser-bridge/internal/enginetest"
	"github.com/woxQAQ/objparser-bridge/internal/mesh"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

const triangleOBJ = "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3"

var errBoom = errors.New("boom")

func newTestBridge(t *testing.T) (*Bridge, *enginetest.Engine) {
	t.Helper()
	eng := enginetest.New()
	return New(eng, DefaultConfig(), zaptest.NewLogger(t)), eng
}

func equalFloats(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalUints(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseTriangle(t *testing.T) {
	b, eng := newTestBridge(t)
	ctx := context.Background()

	m, err := b.Parse(ctx, []byte(triangleOBJ))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m == nil {
		t.Fatal("Parse returned no mesh")
	}

	wantVertices := []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}
	if !equalFloats(m.Vertices, wantVertices) {
		t.Errorf("Vertices = %v, want %v", m.Vertices, wantVertices)
	}
	if !equalUints(m.Indices, []uint32{0, 1, 2}) {
		t.Errorf("Indices = %v, want [0 1 2]", m.Indices)
	}

	if eng.Destroyed() != 1 {
		t.Errorf("Destroyed = %d, want 1", eng.Destroyed())
	}
	if eng.Live() != 0 {
		t.Errorf("Live = %d, want 0", eng.Live())
	}
}

func TestParseCallOrder(t *testing.T) {
	b, eng := newTestBridge(t)

	if _, err := b.Parse(context.Background(), []byte(triangleOBJ)); err != nil {
		t.Fatal(err)
	}

	want := []enginetest.Op{
		enginetest.OpAllocate,
		enginetest.OpParse,
		enginetest.OpVertexCount,
		enginetest.OpVertexPositions,
		enginetest.OpIndexCount,
		enginetest.OpIndices,
		enginetest.OpDestroy,
	}
	got := eng.Calls()
	if len(got) != len(want) {
		t.Fatalf("Calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Calls[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestParseRejectedInput(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"comments only", "# exported by nothing\n"},
		{"malformed vertex", "v 1 2\n"},
		{"face before vertices", "f 1 2 3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, eng := newTestBridge(t)

			m, err := b.Parse(context.Background(), []byte(tt.data))
			if err != nil {
				t.Fatalf("Parse error = %v, want nil", err)
			}
			if m != nil {
				t.Errorf("Parse = %+v, want no mesh", m)
			}
			if eng.Destroyed() != 0 {
				t.Errorf("Destroyed = %d, want 0 for a rejected parse", eng.Destroyed())
			}
		})
	}
}

func TestParseFaultAfterVertexCopyStillDestroys(t *testing.T) {
	b, eng := newTestBridge(t)
	eng.FailOn(enginetest.OpIndexCount, errBoom)

	m, err := b.Parse(context.Background(), []byte(triangleOBJ))
	if !errors.Is(err, errBoom) {
		t.Fatalf("Parse error = %v, want %v", err, errBoom)
	}
	if m != nil {
		t.Error("Parse should not return a mesh on failure")
	}

	if eng.Destroyed() != 1 {
		t.Errorf("Destroyed = %d, want 1", eng.Destroyed())
	}
	if eng.Live() != 0 {
		t.Errorf("Live = %d, want 0", eng.Live())
	}

	calls := eng.Calls()
	if calls[len(calls)-1] != enginetest.OpDestroy {
		t.Errorf("Last call = %s, want destroy", calls[len(calls)-1])
	}
}

func TestParsePanicAfterVertexCopyStillDestroys(t *testing.T) {
	b, eng := newTestBridge(t)
	eng.PanicOn(enginetest.OpIndexCount, "engine trapped")

	func() {
		defer func() {
			if r := recover(); r != "engine trapped" {
				t.Errorf("recover() = %v, want engine trapped", r)
			}
		}()
		b.Parse(context.Background(), []byte(triangleOBJ))
		t.Error("Parse should have panicked")
	}()

	if eng.Destroyed() != 1 {
		t.Errorf("Destroyed = %d, want 1", eng.Destroyed())
	}
	if eng.Live() != 0 {
		t.Errorf("Live = %d, want 0", eng.Live())
	}

	// the lock must have been released
	eng.Heal()
	m, err := b.Parse(context.Background(), []byte(triangleOBJ))
	if err != nil || m == nil {
		t.Fatalf("Parse after recovered panic = %v, %v", m, err)
	}
}

func TestParseDestroyFailure(t *testing.T) {
	b, eng := newTestBridge(t)
	eng.FailOn(enginetest.OpDestroy, errBoom)

	m, err := b.Parse(context.Background(), []byte(triangleOBJ))
	if !errors.Is(err, errBoom) {
		t.Fatalf("Parse error = %v, want %v", err, errBoom)
	}
	if m != nil {
		t.Error("Parse should not return a mesh when destroy fails")
	}
	if eng.Destroyed() != 1 {
		t.Errorf("Destroyed = %d, want 1", eng.Destroyed())
	}
}

func TestParseExtractErrorWinsOverDestroyError(t *testing.T) {
	b, eng := newTestBridge(t)
	extractErr := errors.New("indices unavailable")
	eng.FailOn(enginetest.OpIndices, extractErr)
	eng.FailOn(enginetest.OpDestroy, errBoom)

	_, err := b.Parse(context.Background(), []byte(triangleOBJ))
	if !errors.Is(err, extractErr) {
		t.Errorf("Parse error = %v, want %v", err, extractErr)
	}
	if errors.Is(err, errBoom) {
		t.Error("Destroy error should only be logged")
	}
}

func TestParseEngineErrors(t *testing.T) {
	for _, op := range []enginetest.Op{enginetest.OpAllocate, enginetest.OpParse} {
		t.Run(string(op), func(t *testing.T) {
			b, eng := newTestBridge(t)
			eng.FailOn(op, errBoom)

			if _, err := b.Parse(context.Background(), []byte(triangleOBJ)); !errors.Is(err, errBoom) {
				t.Errorf("Parse error = %v, want %v", err, errBoom)
			}
			if eng.Destroyed() != 0 {
				t.Errorf("Destroyed = %d, want 0 when no handle was issued", eng.Destroyed())
			}
		})
	}
}

func TestParseIndicesWithinVertexRange(t *testing.T) {
	inputs := []string{
		triangleOBJ,
		"v 0 0 0\nv 1 0 0\nv 1 1 0\nv 0 1 0\nf 1 2 3 4",
		"v 0 0 0\nv 1 0 0\nv 0 1 0\nf -3 -2 -1",
		"v 0 0 0\nv 1 0 0\nv 1 1 0\nv 0 1 0\nv 0.5 2 0\nf 1/1/1 2/2/2 3/3/3 4/4/4 5/5/5\nf 1 3 5",
		"o cube\nv -1 -1 -1\nv 1 -1 -1\nv 1 1 -1\nv -1 1 -1\nv -1 -1 1\nv 1 -1 1\nv 1 1 1\nv -1 1 1\n" +
			"f 1 2 3 4\nf 5 8 7 6\nf 1 5 6 2\nf 2 6 7 3\nf 3 7 8 4\nf 5 1 4 8",
	}

	b, eng := newTestBridge(t)
	for _, in := range inputs {
		m, err := b.Parse(context.Background(), []byte(in))
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", in, err)
		}
		if m == nil {
			t.Fatalf("Parse(%q) returned no mesh", in)
		}
		if len(m.Indices)%3 != 0 {
			t.Errorf("Parse(%q): %d indices, not a multiple of 3", in, len(m.Indices))
		}
		for i, idx := range m.Indices {
			if int(idx) >= m.VertexCount() {
				t.Errorf("Parse(%q): index[%d] = %d, vertex count %d", in, i, idx, m.VertexCount())
			}
		}
	}

	if eng.Live() != 0 {
		t.Errorf("Live = %d, want 0", eng.Live())
	}
	if eng.Destroyed() != len(inputs) {
		t.Errorf("Destroyed = %d, want %d", eng.Destroyed(), len(inputs))
	}
}

func TestRoundTripThroughEngine(t *testing.T) {
	b, _ := newTestBridge(t)
	ctx := context.Background()

	original := mesh.New(
		[][3]float32{{0, 0, 0}, {1.5, 0, -2}, {0, 1, 0.25}, {3, 3, 3}},
		[]uint32{0, 1, 2, 2, 1, 3},
	)

	m, err := b.Parse(ctx, []byte(mesh.EncodeOBJ(original)))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.VertexCount() != original.VertexCount() {
		t.Errorf("VertexCount = %d, want %d", m.VertexCount(), original.VertexCount())
	}
	if !equalFloats(m.Vertices, original.Vertices) {
		t.Errorf("Vertices = %v, want %v", m.Vertices, original.Vertices)
	}
	if !equalUints(m.Indices, original.Indices) {
		t.Errorf("Indices = %v, want %v", m.Indices, original.Indices)
	}
}

func TestMeshSurvivesEngineReuse(t *testing.T) {
	b, eng := newTestBridge(t)
	ctx := context.Background()

	first, err := b.Parse(ctx, []byte(triangleOBJ))
	if err != nil {
		t.Fatal(err)
	}
	snapshot := append([]float32(nil), first.Vertices...)

	// more parses grow and rewrite engine memory
	for i := 0; i < 3; i++ {
		if _, err := b.Parse(ctx, []byte("v 9 9 9\nv 8 8 8\nv 7 7 7\nf 1 2 3")); err != nil {
			t.Fatal(err)
		}
	}

	if !equalFloats(first.Vertices, snapshot) {
		t.Errorf("Vertices changed after later parses: %v, want %v", first.Vertices, snapshot)
	}
	if eng.MemoryRebuilds() < 2 {
		t.Errorf("MemoryRebuilds = %d, want views rebuilt after growth", eng.MemoryRebuilds())
	}
}

func TestAcquireHandleLifecycle(t *testing.T) {
	b, eng := newTestBridge(t)
	ctx := context.Background()

	h, err := b.Acquire(ctx, []byte(triangleOBJ))
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if h == nil || h.Raw().IsNull() {
		t.Fatal("Acquire returned no handle")
	}

	m, err := h.Extract(ctx)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if m.TriangleCount() != 1 {
		t.Errorf("TriangleCount = %d, want 1", m.TriangleCount())
	}

	if err := h.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := h.Close(ctx); !errors.Is(err, ErrHandleReleased) {
		t.Errorf("Second Close = %v, want %v", err, ErrHandleReleased)
	}
	if _, err := h.Extract(ctx); !errors.Is(err, ErrHandleReleased) {
		t.Errorf("Extract after Close = %v, want %v", err, ErrHandleReleased)
	}

	if n := eng.DestroyCount(h.Raw()); n != 1 {
		t.Errorf("DestroyCount = %d, want 1", n)
	}
}

func TestAcquireRejectedInput(t *testing.T) {
	b, eng := newTestBridge(t)
	ctx := context.Background()

	h, err := b.Acquire(ctx, []byte("# nothing"))
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if h != nil {
		t.Fatalf("Acquire = %v, want nil handle", h.Raw())
	}

	// Close on the nil handle is a no-op
	if err := h.Close(ctx); err != nil {
		t.Errorf("Close on nil handle = %v", err)
	}
	if eng.Destroyed() != 0 {
		t.Errorf("Destroyed = %d, want 0", eng.Destroyed())
	}
}

func TestScopedHandleReleasedOnPanic(t *testing.T) {
	b, eng := newTestBridge(t)
	ctx := context.Background()

	var raw engine.Handle
	func() {
		defer func() { recover() }()

		h, err := b.Acquire(ctx, []byte(triangleOBJ))
		if err != nil {
			t.Fatal(err)
		}
		defer h.Close(ctx)
		raw = h.Raw()

		panic("consumer failed")
	}()

	if n := eng.DestroyCount(raw); n != 1 {
		t.Errorf("DestroyCount = %d, want 1", n)
	}
}

func TestStartWaitsForEngine(t *testing.T) {
	release := make(chan struct{})
	eng := enginetest.New()
	b := Start(context.Background(), func(ctx context.Context) (engine.Engine, error) {
		<-release
		return eng, nil
	}, DefaultConfig(), zaptest.NewLogger(t))

	type result struct {
		m   *mesh.Mesh
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := b.Parse(context.Background(), []byte(triangleOBJ))
		done <- result{m, err}
	}()

	select {
	case <-done:
		t.Fatal("Parse returned before the engine was ready")
	case <-b.Ready():
		t.Fatal("Bridge reported ready before the load finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)

	select {
	case r := <-done:
		if r.err != nil || r.m == nil {
			t.Fatalf("Parse = %v, %v", r.m, r.err)
		}
	case <-time.After(time.Second):
		t.Fatal("Parse did not proceed after the engine became ready")
	}

	select {
	case <-b.Ready():
	default:
		t.Error("Ready should be closed")
	}

	// later callers go straight through
	if _, err := b.Parse(context.Background(), []byte(triangleOBJ)); err != nil {
		t.Errorf("Parse after ready failed: %v", err)
	}
}

func TestStartWaitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	b := Start(context.Background(), func(ctx context.Context) (engine.Engine, error) {
		<-release
		return enginetest.New(), nil
	}, DefaultConfig(), zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := b.Parse(ctx, []byte(triangleOBJ)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Parse error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestStartLoadFailure(t *testing.T) {
	b := Start(context.Background(), func(ctx context.Context) (engine.Engine, error) {
		return nil, errBoom
	}, DefaultConfig(), zaptest.NewLogger(t))

	_, err := b.Parse(context.Background(), []byte(triangleOBJ))
	var loadErr *EngineLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Parse error = %v, want EngineLoadError", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("EngineLoadError should wrap %v", errBoom)
	}

	if err := b.Close(context.Background()); err != nil {
		t.Errorf("Close after failed load = %v, want nil", err)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triangle.obj")
	if err := os.WriteFile(path, []byte(triangleOBJ), 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("engine reads the path", func(t *testing.T) {
		eng := enginetest.New()
		b := New(eng, DefaultConfig(), zaptest.NewLogger(t))

		m, err := b.ParseFile(context.Background(), path)
		if err != nil || m == nil {
			t.Fatalf("ParseFile = %v, %v", m, err)
		}
		if calls := eng.Calls(); calls[0] != enginetest.OpParsePath {
			t.Errorf("First call = %s, want parse_path", calls[0])
		}
		if eng.Destroyed() != 1 {
			t.Errorf("Destroyed = %d, want 1", eng.Destroyed())
		}
	})

	t.Run("logs the file size", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		b := New(enginetest.New(), DefaultConfig(), zap.New(core))

		if _, err := b.ParseFile(context.Background(), path); err != nil {
			t.Fatalf("ParseFile failed: %v", err)
		}

		entries := logs.FilterMessage("OBJ parsed").All()
		if len(entries) != 1 {
			t.Fatalf("got %d parse entries, want 1", len(entries))
		}
		if got := entries[0].ContextMap()["size_bytes"]; got != int64(len(triangleOBJ)) {
			t.Errorf("size_bytes = %v, want %d", got, len(triangleOBJ))
		}
	})

	t.Run("host reads the file", func(t *testing.T) {
		eng := enginetest.New()
		b := New(enginetest.BytesOnly(eng), DefaultConfig(), zaptest.NewLogger(t))

		m, err := b.ParseFile(context.Background(), path)
		if err != nil || m == nil {
			t.Fatalf("ParseFile = %v, %v", m, err)
		}
		if calls := eng.Calls(); calls[0] != enginetest.OpAllocate {
			t.Errorf("First call = %s, want allocate", calls[0])
		}
	})

	t.Run("missing file on the host", func(t *testing.T) {
		b := New(enginetest.BytesOnly(enginetest.New()), DefaultConfig(), zaptest.NewLogger(t))

		_, err := b.ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing.obj"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("ParseFile error = %v, want not exist", err)
		}
	})
}

func TestCloseBridge(t *testing.T) {
	b, _ := newTestBridge(t)
	ctx := context.Background()

	if err := b.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := b.Close(ctx); err != nil {
		t.Errorf("Second Close = %v, want nil", err)
	}

	if _, err := b.Parse(ctx, []byte(triangleOBJ)); !errors.Is(err, ErrClosed) {
		t.Errorf("Parse after Close = %v, want %v", err, ErrClosed)
	}
	if _, err := b.Acquire(ctx, []byte(triangleOBJ)); !errors.Is(err, ErrClosed) {
		t.Errorf("Acquire after Close = %v, want %v", err, ErrClosed)
	}
}

func TestHandleOutlivesBridge(t *testing.T) {
	b, eng := newTestBridge(t)
	ctx := context.Background()

	h, err := b.Acquire(ctx, []byte(triangleOBJ))
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := b.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := h.Extract(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Extract after bridge Close = %v, want %v", err, ErrClosed)
	}
	if err := h.Close(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Handle Close after bridge Close = %v, want %v", err, ErrClosed)
	}
	if err := h.Close(ctx); !errors.Is(err, ErrHandleReleased) {
		t.Errorf("Second handle Close = %v, want %v", err, ErrHandleReleased)
	}
	if n := eng.DestroyCount(h.Raw()); n != 0 {
		t.Errorf("DestroyCount = %d, want 0", n)
	}
}

func TestConcurrentParsesAreSerialized(t *testing.T) {
	b, eng := newTestBridge(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := b.Parse(ctx, []byte(triangleOBJ))
			if err != nil {
				errs <- err
				return
			}
			if m == nil || m.TriangleCount() != 1 {
				errs <- errors.New("unexpected mesh")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if eng.Destroyed() != 16 {
		t.Errorf("Destroyed = %d, want 16", eng.Destroyed())
	}
}
