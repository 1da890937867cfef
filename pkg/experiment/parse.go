// SPDX-License-Identifier: MPL-2.0

package experiment

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stabl-dev/stabl/pkg/cueutil"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	// FormatCUE is a CUE manifest (the default for unknown extensions).
	FormatCUE Format = "cue"
	// FormatTOML is a TOML manifest.
	FormatTOML Format = "toml"
	// FormatYAML is a YAML manifest.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON manifest.
	FormatJSON Format = "json"

	schemaDefinition = "#Experiment"
)

var (
	//go:embed experiment_schema.cue
	experimentSchema []byte

	// ErrUnsupportedFormat is returned when the manifest extension is not recognized.
	ErrUnsupportedFormat = errors.New("unsupported manifest format")
)

// Format is the serialization of a manifest file.
type Format string

// Schema returns the embedded CUE schema source.
func Schema() []byte {
	return bytes.Clone(experimentSchema)
}

// FormatFromPath picks the manifest format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		return FormatCUE, nil
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q (use .cue, .toml, .yaml, .yml or .json)", ErrUnsupportedFormat, ext)
	}
}

// ParseFile reads and parses a manifest from path.
func ParseFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest at %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse parses manifest content. The format is taken from the extension of
// filename, which is also used in error messages. Every format is unified
// with the #Experiment schema before the Go-side checks run.
func Parse(data []byte, filename string, opts ...cueutil.Option) (*Manifest, error) {
	format, err := FormatFromPath(filename)
	if err != nil {
		return nil, err
	}
	opts = append([]cueutil.Option{cueutil.WithFilename(filename)}, opts...)

	var result *cueutil.ParseResult[Manifest]
	// JSON is valid CUE, and compiling it keeps integers distinct from floats.
	if format == FormatCUE || format == FormatJSON {
		result, err = cueutil.ParseAndDecode[Manifest](experimentSchema, data, schemaDefinition, opts...)
	} else {
		var doc map[string]any
		if doc, err = decodeGeneric(format, data); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		result, err = cueutil.DecodeGo[Manifest](experimentSchema, data, doc, schemaDefinition, opts...)
	}
	if schemaErr := (*cueutil.SchemaError)(nil); errors.As(err, &schemaErr) {
		return nil, &InvalidManifestError{FieldErrors: schemaFieldErrors(schemaErr)}
	}
	if err != nil {
		return nil, err
	}

	m := result.Value
	if valid, errs := m.IsValid(); !valid {
		return nil, &InvalidManifestError{FieldErrors: errs}
	}
	return m, nil
}

// schemaFieldErrors reports schema violations the way the Go-side checks
// report theirs. Violations without a location keep the file name.
func schemaFieldErrors(e *cueutil.SchemaError) []error {
	out := make([]error, len(e.Fields))
	for i, f := range e.Fields {
		if f.Path == "" {
			out[i] = fmt.Errorf("%s: %w", e.FilePath, f)
			continue
		}
		out[i] = &InvalidParameterError{Field: f.Path, Reason: f.Message}
	}
	return out
}

func decodeGeneric(format Format, data []byte) (map[string]any, error) {
	doc := map[string]any{}
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid TOML: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return doc, nil
}
