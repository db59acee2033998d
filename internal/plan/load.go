package plan

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a plan file
type Format string

const (
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
	FormatJSONC Format = "jsonc"
)

// FormatFromPath picks the format from the file extension
func FormatFromPath(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonc":
		return FormatJSONC, nil
	default:
		return "", fmt.Errorf("unsupported plan file format: %s (use .yaml, .yml, .json, or .jsonc)", ext)
	}
}

// Load reads, parses and validates a plan file
func Load(path string) (*Plan, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	p, err := Parse(data, format)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Parse decodes a plan without validating it.
// JSON is decoded as YAML, after comments and trailing commas are stripped for JSONC.
func Parse(data []byte, format Format) (*Plan, error) {
	switch format {
	case FormatYAML, FormatJSON:
	case FormatJSONC:
		data = jsonc.ToJSON(data)
	default:
		return nil, fmt.Errorf("unsupported plan format: %s", format)
	}

	var p Plan
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse %s plan: %w", format, err)
	}
	return &p, nil
}
