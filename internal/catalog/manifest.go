package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/woxQAQ/objparser-bridge/api/abi"
	"github.com/woxQAQ/objparser-bridge/internal/engine"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the file name looked up in every engine directory.
const ManifestFile = "manifest.yaml"

// Manifest represents an engine's manifest.yaml.
//
//	name: objparser
//	version: 0.3.0
//	kind: wasm
//	file: objparser_bg.wasm
//	symbols:
//	  parse: wasm_parse_obj
type Manifest struct {
	Name        string      `yaml:"name"`
	Version     string      `yaml:"version"`
	Kind        engine.Kind `yaml:"kind"`
	File        string      `yaml:"file"`
	Symbols     abi.Symbols `yaml:"symbols"`
	Description string      `yaml:"description"`
	Author      string      `yaml:"author"`
	License     string      `yaml:"license"`

	// Internal fields
	dir string // Directory containing manifest
}

// ParseManifest reads and parses manifest.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Path: manifestPath,
			Err:  err,
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest fields.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "name",
			Message: "name is required",
		}
	}

	if m.Version == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "version",
			Message: "version is required",
		}
	}

	if m.Kind == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "kind",
			Message: "kind is required",
		}
	}

	if !m.Kind.Valid() {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "kind",
			Message: fmt.Sprintf("unsupported kind: %s (must be one of: wasm, native)", m.Kind),
		}
	}

	if m.File == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "file",
			Message: "file is required",
		}
	}

	if m.Kind == engine.KindNative && m.Symbols.Allocate != "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "symbols.allocate",
			Message: "native engines are given host-staged input and take no allocator",
		}
	}

	if _, err := os.Stat(m.FilePath()); os.IsNotExist(err) {
		return &EngineFileNotFoundError{
			ManifestPath: m.Path(),
			File:         m.File,
		}
	}

	return nil
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, ManifestFile)
}

// FilePath returns the path to the engine binary.
func (m *Manifest) FilePath() string {
	return filepath.Join(m.dir, m.File)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}

// ResolvedSymbols returns the manifest's symbol overrides on top of the
// defaults for its kind.
func (m *Manifest) ResolvedSymbols() abi.Symbols {
	if m.Kind == engine.KindNative {
		return m.Symbols.Merge(abi.NativeSymbols)
	}
	return m.Symbols.Merge(abi.WasmSymbols)
}
