package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// yamlProvider implements Source interface for YAML files.
type yamlProvider struct {
	path string
}

// NewYAMLProvider creates a new YAML file configuration source.
func NewYAMLProvider(path string) Source {
	return &yamlProvider{path: path}
}

// Load reads configuration from a YAML file. A missing file yields no keys.
func (y *yamlProvider) Load() (map[string]any, error) {
	data, err := readOptional(y.path)
	if err != nil || data == nil {
		return nil, err
	}
	var config map[string]any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML file: %w", err)
	}
	return filterNilValues(config), nil
}

func (y *yamlProvider) Type() SourceType {
	return SourceYAML
}

// tomlProvider implements Source interface for TOML files.
type tomlProvider struct {
	path string
}

// NewTOMLProvider creates a new TOML file configuration source.
func NewTOMLProvider(path string) Source {
	return &tomlProvider{path: path}
}

// Load reads configuration from a TOML file. A missing file yields no keys.
func (t *tomlProvider) Load() (map[string]any, error) {
	data, err := readOptional(t.path)
	if err != nil || data == nil {
		return nil, err
	}
	var config map[string]any
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse TOML file: %w", err)
	}
	return filterNilValues(config), nil
}

func (t *tomlProvider) Type() SourceType {
	return SourceTOML
}

// NewFileProvider picks a YAML or TOML source from the file extension.
func NewFileProvider(path string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYAMLProvider(path), nil
	case ".toml":
		return NewTOMLProvider(path), nil
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
}

// mapProvider serves an in-memory map. Tests and callers that assemble
// configuration programmatically use it.
type mapProvider struct {
	data map[string]any
	typ  SourceType
}

// NewMapProvider wraps data as a source of the given type.
func NewMapProvider(typ SourceType, data map[string]any) Source {
	return &mapProvider{data: data, typ: typ}
}

func (m *mapProvider) Load() (map[string]any, error) { return m.data, nil }
func (m *mapProvider) Type() SourceType               { return m.typ }

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}

// filterNilValues recursively removes nil values from a map
// This prevents koanf from overriding existing values with nil
func filterNilValues(m map[string]any) map[string]any {
	result := make(map[string]any)
	for k, v := range m {
		if v == nil {
			continue
		}
		if nestedMap, ok := v.(map[string]any); ok {
			filtered := filterNilValues(nestedMap)
			if len(filtered) > 0 {
				result[k] = filtered
			}
		} else {
			result[k] = v
		}
	}
	return result
}
