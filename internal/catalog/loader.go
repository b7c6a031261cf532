package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Loader discovers engines on disk.
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a new engine loader.
func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{
		logger: logger.With(zap.String("component", "engine-loader")),
	}
}

// LoadEntry reads a single engine directory.
func (l *Loader) LoadEntry(dir string) (*Entry, error) {
	l.logger.Debug("Loading engine manifest", zap.String("dir", dir))

	manifest, err := ParseManifest(dir)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Engine found",
		zap.String("name", manifest.Name),
		zap.String("version", manifest.Version),
		zap.String("kind", string(manifest.Kind)),
		zap.String("file", manifest.FilePath()),
	)

	return &Entry{
		Manifest: manifest,
		LoadedAt: time.Now(),
	}, nil
}

// DiscoverEngines scans every path for engine directories. A path may be an
// engine directory itself or hold engine directories one level down.
func (l *Loader) DiscoverEngines(paths []string) ([]*Entry, error) {
	var entries []*Entry
	var errs []error

	for _, basePath := range paths {
		l.logger.Debug("Scanning engine directory", zap.String("path", basePath))

		if _, err := os.Stat(filepath.Join(basePath, ManifestFile)); err == nil {
			entry, err := l.LoadEntry(basePath)
			if err != nil {
				l.logger.Error("Failed to load engine",
					zap.String("dir", basePath),
					zap.Error(err),
				)
				errs = append(errs, err)
				continue
			}
			entries = append(entries, entry)
			continue
		}

		dirEntries, err := os.ReadDir(basePath)
		if err != nil {
			if os.IsNotExist(err) {
				l.logger.Warn("Engine path does not exist", zap.String("path", basePath))
				continue
			}
			return nil, fmt.Errorf("failed to read directory '%s': %w", basePath, err)
		}

		for _, de := range dirEntries {
			if !de.IsDir() {
				continue
			}

			engineDir := filepath.Join(basePath, de.Name())

			entry, err := l.LoadEntry(engineDir)
			if err != nil {
				l.logger.Error("Failed to load engine",
					zap.String("dir", engineDir),
					zap.Error(err),
				)
				errs = append(errs, err)
				continue
			}

			entries = append(entries, entry)
		}
	}

	if len(entries) > 0 && len(errs) > 0 {
		l.logger.Warn("Some engines failed to load",
			zap.Int("loaded", len(entries)),
			zap.Int("failed", len(errs)),
		)
	}

	if len(entries) == 0 {
		return nil, &NoEnginesFoundError{Paths: paths}
	}

	return entries, nil
}
