package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/woxQAQ/objparser-bridge/internal/app"
	"github.com/woxQAQ/objparser-bridge/internal/config"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides the config")
	engineName := flag.String("engine", "", "Engine to use (default: first wasm, then native)")
	outDir := flag.String("out", "", "Directory to write re-encoded OBJ files to")
	previewDir := flag.String("preview", "", "Directory to write WebP previews to")
	asJSON := flag.Bool("json", false, "Print one JSON summary per file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] file.obj...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *engineName != "" {
		cfg.Engine = *engineName
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting objbridge",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to start", zap.Error(err))
	}

	failed := run(ctx, a, flag.Args(), options{
		outDir:     *outDir,
		previewDir: *previewDir,
		json:       *asJSON,
		styled:     !*asJSON && isTerminal(os.Stdout),
	}, logger)

	if err := a.Close(context.Background()); err != nil {
		logger.Error("Failed to close", zap.Error(err))
	}

	if failed > 0 {
		logger.Error("Some files failed", zap.Int("failed", failed))
		logger.Sync()
		os.Exit(1)
	}
}

type options struct {
	outDir     string
	previewDir string
	json       bool
	styled     bool
}

// run parses every file and returns how many failed.
func run(ctx context.Context, a *app.App, files []string, opts options, logger *zap.Logger) int {
	enc := json.NewEncoder(os.Stdout)
	failed := 0

	for _, path := range files {
		if ctx.Err() != nil {
			return failed + 1
		}

		res, err := a.ParseFile(ctx, path)
		if err != nil {
			logger.Error("Failed to parse", zap.String("file", path), zap.Error(err))
			failed++
			continue
		}

		if opts.json {
			if err := enc.Encode(res.Stats); err != nil {
				logger.Error("Failed to write summary", zap.Error(err))
			}
		} else {
			printSummary(os.Stdout, res.Stats, opts.styled)
		}

		if res.Arrays == nil {
			continue
		}

		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

		if opts.outDir != "" {
			out := filepath.Join(opts.outDir, base+".obj")
			if err := writeOBJ(out, res.Arrays.Obj()); err != nil {
				logger.Error("Failed to write OBJ", zap.String("file", out), zap.Error(err))
				failed++
			}
		}

		if opts.previewDir != "" {
			out := filepath.Join(opts.previewDir, base+".webp")
			if err := a.WritePreview(out, res); err != nil {
				logger.Error("Failed to write preview", zap.String("file", out), zap.Error(err))
				failed++
			}
		}
	}

	return failed
}

func writeOBJ(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(text), 0644)
}

// newLogger picks the development logger for debug and the production one
// otherwise. Both write to stderr.
func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}
