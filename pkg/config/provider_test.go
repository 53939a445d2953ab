package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProviderFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestYAMLProvider(t *testing.T) {
	t.Run("Should parse nested sections", func(t *testing.T) {
		path := writeProviderFile(t, "db.yaml", "redis:\n  url: redis://cache:6379\n  database: 3\n")
		src := NewYAMLProvider(path)
		data, err := src.Load()
		require.NoError(t, err)
		assert.Equal(t, SourceYAML, src.Type())
		redis, ok := data["redis"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "redis://cache:6379", redis["url"])
		assert.Equal(t, 3, redis["database"])
	})

	t.Run("Should drop null values and emptied sections", func(t *testing.T) {
		path := writeProviderFile(t, "db.yaml", "sqlite:\n  url: ~\nredis:\n  url: redis://x\n  database: null\n")
		data, err := NewYAMLProvider(path).Load()
		require.NoError(t, err)
		assert.NotContains(t, data, "sqlite")
		assert.Equal(t, map[string]any{"url": "redis://x"}, data["redis"])
	})

	t.Run("Should yield nothing for a missing file", func(t *testing.T) {
		data, err := NewYAMLProvider(filepath.Join(t.TempDir(), "absent.yaml")).Load()
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("Should report malformed YAML", func(t *testing.T) {
		path := writeProviderFile(t, "db.yaml", "redis: [unterminated\n")
		_, err := NewYAMLProvider(path).Load()
		assert.ErrorContains(t, err, "failed to parse YAML file")
	})
}

func TestTOMLProvider(t *testing.T) {
	t.Run("Should parse tables", func(t *testing.T) {
		path := writeProviderFile(t, "db.toml", "[influxdb]\nenabled = true\norg = \"acme\"\n")
		src := NewTOMLProvider(path)
		data, err := src.Load()
		require.NoError(t, err)
		assert.Equal(t, SourceTOML, src.Type())
		influx, ok := data["influxdb"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, influx["enabled"])
		assert.Equal(t, "acme", influx["org"])
	})

	t.Run("Should report malformed TOML", func(t *testing.T) {
		path := writeProviderFile(t, "db.toml", "[influxdb\n")
		_, err := NewTOMLProvider(path).Load()
		assert.ErrorContains(t, err, "failed to parse TOML file")
	})
}

func TestNewFileProvider_Extensions(t *testing.T) {
	t.Run("Should pick the provider from the extension", func(t *testing.T) {
		for ext, want := range map[string]SourceType{
			"a.yaml": SourceYAML,
			"a.YML":  SourceYAML,
			"a.toml": SourceTOML,
		} {
			src, err := NewFileProvider(ext)
			require.NoError(t, err, ext)
			assert.Equal(t, want, src.Type(), ext)
		}
	})
}

func TestMapProvider(t *testing.T) {
	t.Run("Should serve its map with the given type", func(t *testing.T) {
		data := map[string]any{"log": map[string]any{"level": "debug"}}
		src := NewMapProvider(SourceEnv, data)
		got, err := src.Load()
		require.NoError(t, err)
		assert.Equal(t, data, got)
		assert.Equal(t, SourceEnv, src.Type())
	})
}
