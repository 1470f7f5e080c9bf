// Package seed loads the built-in smart-code templates
package seed

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/erp/platform/internal/domain/smartcode"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var embedded []byte

// File is the on-disk layout of a template seed
type File struct {
	Templates []smartcode.Template `yaml:"templates"`
}

// Parse decodes a YAML seed. Unknown keys are rejected.
func Parse(data []byte) ([]smartcode.Template, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse template seed: %w", err)
	}
	for i, t := range f.Templates {
		f.Templates[i] = t.Normalize()
		if err := f.Templates[i].Validate(); err != nil {
			return nil, fmt.Errorf("template %d (%s): %w", i, t.Prefix, err)
		}
	}
	return f.Templates, nil
}

// Embedded returns the built-in templates
func Embedded() ([]smartcode.Template, error) {
	return Parse(embedded)
}

// Load reads the seed at path, or the embedded seed when path is empty
func Load(path string) ([]smartcode.Template, error) {
	if path == "" {
		return Embedded()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template seed %s: %w", path, err)
	}
	return Parse(data)
}

// Registry builds a smart-code registry from the seed at path
func Registry(path string, logger *zap.Logger) (*smartcode.Registry, error) {
	templates, err := Load(path)
	if err != nil {
		return nil, err
	}
	reg, err := smartcode.NewRegistry(templates...)
	if err != nil {
		return nil, fmt.Errorf("failed to build smart code registry: %w", err)
	}
	if logger != nil {
		source := path
		if source == "" {
			source = "embedded"
		}
		logger.Info("Smart code templates seeded", zap.String("source", source), zap.Int("templates", reg.Len()))
	}
	return reg, nil
}
