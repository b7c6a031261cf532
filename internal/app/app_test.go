package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/woxQAQ/objparser-bridge/internal/config"
	"github.com/woxQAQ/objparser-bridge/internal/wasm/wasmtest"
	"go.uber.org/zap/zaptest"
)

const stubManifest = `
name: stub
version: 0.1.0
kind: wasm
file: stub.wasm
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	root := t.TempDir()
	dir := filepath.Join(root, "stub")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(stubManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stub.wasm"), wasmtest.EngineModule(), 0o644); err != nil {
		t.Fatal(err)
	}

	return &config.Config{
		LogLevel:    "debug",
		EnginePaths: []string{root},
		Wasm:        config.WasmConfig{MemoryPages: 64, MaxInstances: 4},
		Bridge:      config.BridgeConfig{ValidateMesh: true, ReadyTimeout: 10 * time.Second},
		Preview:     config.PreviewConfig{Size: 16, Supersample: 1},
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func TestParseFile(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	ctx := context.Background()

	if a.Engine().Name() != "stub" {
		t.Errorf("Engine().Name() = %q, want stub", a.Engine().Name())
	}

	path := writeFile(t, "triangle.obj", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3")
	res, err := a.ParseFile(ctx, path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}

	s := res.Stats
	if !s.Accepted || s.Vertices != 3 || s.Triangles != 1 {
		t.Errorf("Stats = %+v, want 3 vertices and 1 triangle", s)
	}
	if s.Engine != "stub" || s.Kind != "wasm" || s.Source != path {
		t.Errorf("Stats identity = %q/%q/%q", s.Engine, s.Kind, s.Source)
	}

	out := filepath.Join(t.TempDir(), "triangle.webp")
	if err := a.WritePreview(out, res); err != nil {
		t.Fatalf("WritePreview failed: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("preview not written: %v", err)
	}
}

func TestParseFileRejected(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	path := writeFile(t, "comment.obj", "# no geometry")
	res, err := a.ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if res.Arrays != nil || res.Stats.Accepted {
		t.Errorf("rejected input produced %+v", res.Stats)
	}
	if err := a.WritePreview(filepath.Join(t.TempDir(), "x.webp"), res); err == nil {
		t.Error("WritePreview should fail without a mesh")
	}
}

func TestNewUnknownEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine = "missing"

	if _, err := New(context.Background(), cfg, zaptest.NewLogger(t)); err == nil {
		t.Fatal("New should fail for an unknown engine")
	}
}

func TestNewNoEngines(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnginePaths = []string{t.TempDir()}

	if _, err := New(context.Background(), cfg, zaptest.NewLogger(t)); err == nil {
		t.Fatal("New should fail when no engine can be selected")
	}
}
