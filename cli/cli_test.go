package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/compozy/storage/pkg/config"
	"github.com/compozy/storage/pkg/logger"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := RootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestConfigValidate(t *testing.T) {
	t.Run("Should accept the defaults", func(t *testing.T) {
		out, err := execute(t, "config", "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "Configuration is valid (backends: sqlite)")
	})

	t.Run("Should accept a YAML file enabling Redis", func(t *testing.T) {
		path := writeConfigFile(t, "dbpool.yaml", `
redis:
  enabled: true
  url: redis://cache:6379
  max_connections: 8
`)
		out, err := execute(t, "--config", path, "config", "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "backends: sqlite, redis")
	})

	t.Run("Should reject a zero pool size from TOML", func(t *testing.T) {
		path := writeConfigFile(t, "dbpool.toml", `
[sqlite]
max_connections = 0
`)
		_, err := execute(t, "--config", path, "config", "validate")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_connections")
	})

	t.Run("Should reject an unknown file extension", func(t *testing.T) {
		path := writeConfigFile(t, "dbpool.ini", "x=1")
		_, err := execute(t, "--config", path, "config", "validate")
		assert.ErrorContains(t, err, "unsupported config file extension")
	})
}

func TestConfigShow(t *testing.T) {
	t.Run("Should redact the InfluxDB token in JSON output", func(t *testing.T) {
		path := writeConfigFile(t, "dbpool.yaml", `
influxdb:
  token: super-secret
  org: acme
  bucket: metrics
`)
		out, err := execute(t, "--config", path, "config", "show", "--format", "json")
		require.NoError(t, err)
		assert.NotContains(t, out, "super-secret")
		var doc struct {
			Config map[string]map[string]any `json:"config"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &doc))
		assert.Equal(t, "[REDACTED]", doc.Config["influxdb"]["token"])
		assert.Equal(t, "acme", doc.Config["influxdb"]["org"])
		assert.Equal(t, "30s", doc.Config["sqlite"]["acquire_timeout"])
	})

	t.Run("Should list sources in the table", func(t *testing.T) {
		path := writeConfigFile(t, "dbpool.yaml", "sqlite:\n  max_connections: 5\n")
		out, err := execute(t, "--config", path, "config", "show", "--sources")
		require.NoError(t, err)
		assert.Regexp(t, `sqlite\.max_connections\s+5\s+yaml`, out)
		assert.Regexp(t, `redis\.url\s+redis://localhost:6379\s+default`, out)
	})

	t.Run("Should render YAML", func(t *testing.T) {
		out, err := execute(t, "config", "show", "-f", "yaml")
		require.NoError(t, err)
		assert.Contains(t, out, "config:")
		assert.Contains(t, out, "max_connections: 10")
	})

	t.Run("Should reject an unknown format", func(t *testing.T) {
		_, err := execute(t, "config", "show", "-f", "xml")
		assert.EqualError(t, err, "unsupported format: xml")
	})
}

func TestHealth(t *testing.T) {
	t.Run("Should report the default SQLite pool as healthy", func(t *testing.T) {
		out, err := execute(t, "health", "--format", "json")
		require.NoError(t, err)
		var report struct {
			Healthy  bool `json:"healthy"`
			Backends []struct {
				Backend string `json:"backend"`
				State   string `json:"state"`
			} `json:"backends"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.True(t, report.Healthy)
		require.Len(t, report.Backends, 1)
		assert.Equal(t, "sqlite", report.Backends[0].Backend)
		assert.Equal(t, "ready", report.Backends[0].State)
	})

	t.Run("Should print a table including Redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		path := writeConfigFile(t, "dbpool.yaml", "redis:\n  enabled: true\n  url: redis://"+mr.Addr()+"\n")
		out, err := execute(t, "--config", path, "health")
		require.NoError(t, err)
		assert.Regexp(t, `redis\s+ready\s+true`, out)
		assert.Contains(t, out, "healthy: true")
	})

	t.Run("Should fail when a backend is unreachable", func(t *testing.T) {
		path := writeConfigFile(t, "dbpool.yaml", `
redis:
  enabled: true
  url: redis://127.0.0.1:1
  connection_timeout: 200ms
`)
		_, err := execute(t, "--config", path, "health")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open redis pool")
	})

	t.Run("Should give up waiting after the timeout", func(t *testing.T) {
		path := writeConfigFile(t, "dbpool.yaml", `
redis:
  enabled: true
  url: redis://127.0.0.1:1
  connection_timeout: 100ms
`)
		start := time.Now()
		_, err := execute(t, "--config", path, "health", "--wait", "--timeout", "300ms", "--interval", "20ms")
		require.Error(t, err)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("Should recover once the backend comes up while waiting", func(t *testing.T) {
		mr := miniredis.NewMiniRedis()
		require.NoError(t, mr.Start())
		addr := mr.Addr()
		mr.Close()
		path := writeConfigFile(t, "dbpool.yaml", "redis:\n  enabled: true\n  url: redis://"+addr+"\n")
		go func() {
			time.Sleep(150 * time.Millisecond)
			_ = mr.StartAddr(addr)
		}()
		t.Cleanup(mr.Close)
		out, err := execute(t, "--config", path, "health", "--wait", "--timeout", "10s", "--interval", "25ms")
		require.NoError(t, err)
		assert.Contains(t, out, "healthy: true")
	})
}

func TestMigrate(t *testing.T) {
	t.Run("Should apply migrations to a file database", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "00001_create_events.sql"), []byte(
			"-- +goose Up\nCREATE TABLE events (id INTEGER PRIMARY KEY);\n-- +goose Down\nDROP TABLE events;\n",
		), 0o600))
		path := writeConfigFile(t, "dbpool.yaml", "sqlite:\n  url: sqlite://"+filepath.Join(t.TempDir(), "app.db")+"\n")
		out, err := execute(t, "--config", path, "migrate", "--dir", dir)
		require.NoError(t, err)
		assert.Contains(t, out, "schema version: 1")
	})

	t.Run("Should reject a missing directory", func(t *testing.T) {
		_, err := execute(t, "migrate", "--dir", filepath.Join(t.TempDir(), "absent"))
		assert.ErrorContains(t, err, "not found")
	})
}

func TestVersion(t *testing.T) {
	t.Run("Should print build information as JSON", func(t *testing.T) {
		out, err := execute(t, "version", "--json")
		require.NoError(t, err)
		var info map[string]string
		require.NoError(t, json.Unmarshal([]byte(out), &info))
		assert.NotEmpty(t, info["go_version"])
		assert.Contains(t, info, "commit_hash")
	})
}

func TestRunServe(t *testing.T) {
	t.Run("Should serve until canceled and close the pools", func(t *testing.T) {
		cfg := appconfig.Default()
		cfg.Server.Host = "127.0.0.1"
		cfg.Server.Port = 0
		cfg.Monitoring.Enabled = true
		ctx, cancel := context.WithCancel(logger.ContextWithLogger(t.Context(), logger.NewForTests()))
		done := make(chan error, 1)
		go func() { done <- runServe(ctx, cfg) }()
		time.Sleep(100 * time.Millisecond)
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("serve did not stop")
		}
	})
}
