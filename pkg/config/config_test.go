package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Run("Should carry the per-backend defaults", func(t *testing.T) {
		cfg := Default()
		assert.Equal(t, "sqlite::memory:", cfg.SQLite.URL)
		assert.Equal(t, uint32(10), cfg.SQLite.MaxConnections)
		assert.Equal(t, uint32(1), cfg.SQLite.MinConnections)
		assert.Equal(t, 30*time.Second, cfg.SQLite.BusyTimeout)
		assert.True(t, cfg.SQLite.EnableWAL)
		assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
		assert.Equal(t, uint32(20), cfg.Redis.MaxConnections)
		assert.Equal(t, 5*time.Minute, cfg.Redis.IdleTimeout)
		assert.Equal(t, "http://localhost:8086", cfg.InfluxDB.URL)
		assert.Equal(t, 10*time.Second, cfg.InfluxDB.OperationTimeout)
		assert.False(t, cfg.InfluxDB.Enabled)
	})

	t.Run("Should validate cleanly", func(t *testing.T) {
		assert.NoError(t, NewService().Validate(Default()))
		assert.NoError(t, NewService().Validate(Development()))
	})
}

func TestDevelopment(t *testing.T) {
	t.Run("Should enable every backend with local targets", func(t *testing.T) {
		cfg := Development()
		assert.Equal(t, "sqlite:./data/app.db", cfg.SQLite.URL)
		assert.True(t, cfg.Redis.Enabled)
		assert.True(t, cfg.InfluxDB.Enabled)
		assert.Equal(t, "market-data", cfg.InfluxDB.Bucket)
		assert.Equal(t, "trading-org", cfg.InfluxDB.Org)
	})
}

func TestSensitiveString(t *testing.T) {
	t.Run("Should redact when printed and serialized", func(t *testing.T) {
		s := SensitiveString("secret-token")
		assert.Equal(t, "[REDACTED]", s.String())
		assert.Equal(t, "secret-token", s.Value())
		data, err := json.Marshal(struct {
			Token SensitiveString `json:"token"`
		}{s})
		require.NoError(t, err)
		assert.JSONEq(t, `{"token":"[REDACTED]"}`, string(data))
	})

	t.Run("Should mark the token path sensitive", func(t *testing.T) {
		assert.True(t, IsSensitiveConfigPath("influxdb.token"))
		assert.False(t, IsSensitiveConfigPath("influxdb.bucket"))
	})
}

func TestValidate(t *testing.T) {
	svc := NewService()

	t.Run("Should reject zero max connections naming the field", func(t *testing.T) {
		cfg := Default()
		cfg.Redis.MaxConnections = 0
		cfg.Redis.MinConnections = 0
		err := svc.Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis.max_connections must be > 0")
	})

	t.Run("Should reject min above max", func(t *testing.T) {
		cfg := Default()
		cfg.SQLite.MinConnections = 11
		err := svc.Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sqlite.min_connections cannot exceed max_connections")
	})

	t.Run("Should reject a target without the backend scheme", func(t *testing.T) {
		cfg := Default()
		cfg.InfluxDB.URL = "localhost:8086"
		err := svc.Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "influxdb.url must start with 'http://' or 'https://'")
	})

	t.Run("Should require influxdb credentials only when enabled", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, svc.Validate(cfg))
		cfg.InfluxDB.Enabled = true
		err := svc.Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "influxdb.token is required")
		assert.Contains(t, err.Error(), "influxdb.bucket is required")
	})
}
