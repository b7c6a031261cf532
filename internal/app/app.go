// Package app wires configuration, the engine catalog and the host adapters
// into one object the command line drives.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/woxQAQ/objparser-bridge/internal/catalog"
	"github.com/woxQAQ/objparser-bridge/internal/config"
	"github.com/woxQAQ/objparser-bridge/internal/engine"
	"github.com/woxQAQ/objparser-bridge/internal/preview"
	"github.com/woxQAQ/objparser-bridge/pkg/objparser"
	"go.uber.org/zap"
)

// App owns one selected engine.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	entry    *catalog.Entry
	parser   objparser.Parser
	renderer *preview.Renderer
}

// Result is one parsed file.
type Result struct {
	Stats  objparser.Stats
	Arrays *objparser.Arrays // nil when the engine rejected the input
}

// New discovers engines, selects the configured one and opens it.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	engines := catalog.NewManager(cfg.EnginePaths, logger)
	if err := engines.LoadAll(); err != nil {
		return nil, fmt.Errorf("failed to load engines: %w", err)
	}

	entry, err := engines.Select(cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("failed to select engine: %w", err)
	}

	parser, err := open(ctx, cfg, entry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine %s: %w", entry.Name(), err)
	}

	logger.Info("Engine selected",
		zap.String("name", entry.Name()),
		zap.String("version", entry.Version()),
		zap.String("kind", string(entry.Kind())),
		zap.String("path", entry.Path()),
	)

	return &App{
		cfg:    cfg,
		logger: logger,
		entry:  entry,
		parser: parser,
		renderer: preview.NewRenderer(preview.Options{
			Size:        cfg.Preview.Size,
			Supersample: cfg.Preview.Supersample,
		}, logger),
	}, nil
}

func open(ctx context.Context, cfg *config.Config, entry *catalog.Entry, logger *zap.Logger) (objparser.Parser, error) {
	switch entry.Kind() {
	case engine.KindWasm:
		return objparser.OpenWasm(ctx, objparser.WasmOptions{
			Path:           entry.Path(),
			Symbols:        entry.Symbols(),
			MemoryPages:    cfg.Wasm.MemoryPages,
			CacheDir:       cfg.Wasm.CacheDir,
			Debug:          cfg.Wasm.Debug,
			MaxInstances:   cfg.Wasm.MaxInstances,
			SkipValidation: !cfg.Bridge.ValidateMesh,
		}, logger)
	case engine.KindNative:
		return objparser.OpenNative(ctx, objparser.NativeOptions{
			Path:           entry.Path(),
			Symbols:        entry.Symbols(),
			SkipValidation: !cfg.Bridge.ValidateMesh,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported engine kind %q", entry.Kind())
	}
}

// Engine returns the selected catalog entry.
func (a *App) Engine() *catalog.Entry {
	return a.entry
}

// ParseFile waits up to bridge.ready_timeout for the engine, then parses
// the OBJ file at path.
func (a *App) ParseFile(ctx context.Context, path string) (*Result, error) {
	if err := a.waitReady(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	arrays, err := a.parser.ParseFileArrays(ctx, path)
	if err != nil {
		return nil, err
	}

	stats := objparser.NewStats(arrays)
	stats.Engine = a.entry.Name()
	stats.Kind = string(a.entry.Kind())
	stats.Source = path
	stats.Duration = time.Since(start)

	return &Result{Stats: stats, Arrays: arrays}, nil
}

func (a *App) waitReady(ctx context.Context) error {
	timeout := a.cfg.Bridge.ReadyTimeout
	if timeout <= 0 {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-a.parser.Ready():
		return nil
	case <-timer.C:
		return fmt.Errorf("engine %s not ready after %v", a.entry.Name(), timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WritePreview renders a parsed result into a WebP file.
func (a *App) WritePreview(path string, res *Result) error {
	if res.Arrays == nil {
		return fmt.Errorf("no mesh to render for %s", res.Stats.Source)
	}
	return a.renderer.WriteFile(path, res.Arrays.Mesh())
}

// Close releases the engine.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("Shutting down")

	if err := a.parser.Close(ctx); err != nil {
		a.logger.Error("Failed to close engine", zap.Error(err))
		return err
	}

	a.logger.Info("Shutdown complete")
	return nil
}
