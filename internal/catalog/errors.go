package catalog

import (
	"fmt"
)

// ManifestNotFoundError occurs when manifest.yaml is not found in a directory.
type ManifestNotFoundError struct {
	Path string
	Err  error
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("manifest not found at '%s': %v", e.Path, e.Err)
}

func (e *ManifestNotFoundError) Unwrap() error {
	return e.Err
}

// ManifestParseError occurs when manifest.yaml cannot be parsed as valid YAML.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("failed to parse manifest at '%s': %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// ManifestValidationError occurs when manifest.yaml fails validation.
type ManifestValidationError struct {
	Path    string
	Field   string
	Message string
}

func (e *ManifestValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest validation failed at '%s': %s (field: %s)",
			e.Path, e.Message, e.Field)
	}
	return fmt.Sprintf("manifest validation failed at '%s': %s", e.Path, e.Message)
}

// EngineFileNotFoundError occurs when the binary referenced in a manifest doesn't exist.
type EngineFileNotFoundError struct {
	ManifestPath string
	File         string
}

func (e *EngineFileNotFoundError) Error() string {
	return fmt.Sprintf("engine file '%s' not found (referenced in manifest '%s')",
		e.File, e.ManifestPath)
}

// EngineNotFoundError occurs when an engine is not in the registry.
type EngineNotFoundError struct {
	Name string
}

func (e *EngineNotFoundError) Error() string {
	return fmt.Sprintf("engine '%s' not found", e.Name)
}

// EngineAlreadyRegisteredError occurs when attempting to register a duplicate engine.
type EngineAlreadyRegisteredError struct {
	Name string
}

func (e *EngineAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("engine '%s' is already registered", e.Name)
}

// NoEnginesFoundError occurs when no engines are found in the configured paths.
type NoEnginesFoundError struct {
	Paths []string
}

func (e *NoEnginesFoundError) Error() string {
	return fmt.Sprintf("no engines found in paths: %v", e.Paths)
}
