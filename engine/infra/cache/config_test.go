package cache

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/storage/engine/infra/dbpool"
	appconfig "github.com/compozy/storage/pkg/config"
)

func TestConfig_Validate(t *testing.T) {
	t.Run("Should accept defaults", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Should accept the rediss scheme", func(t *testing.T) {
		_, err := NewBuilder().URL("rediss://cache.internal:6380/1").Build()
		assert.NoError(t, err)
	})

	t.Run("Should reject zero max connections", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxConnections = 0
		cfg.MinConnections = 0
		err := cfg.Validate()
		var perr *dbpool.Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, dbpool.KindConfiguration, perr.Kind)
		assert.Equal(t, dbpool.BackendRedis, perr.Backend)
		assert.Equal(t, "max_connections must be > 0", perr.Message)
		assert.Equal(t, "redis_config", perr.Context().Component())
	})

	t.Run("Should reject min above max", func(t *testing.T) {
		_, err := NewBuilder().MaxConnections(1).MinConnections(2).Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "min_connections cannot exceed max_connections")
	})

	t.Run("Should reject a non positive operation timeout", func(t *testing.T) {
		_, err := NewBuilder().OperationTimeout(0).Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "operation_timeout must be > 0")
	})

	t.Run("Should reject a negative database", func(t *testing.T) {
		_, err := NewBuilder().Database(-1).Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database cannot be negative")
	})
}

func TestConfigFromApp(t *testing.T) {
	t.Run("Should copy every pool setting", func(t *testing.T) {
		app := appconfig.Default()
		app.Redis.URL = "redis://cache:6379"
		app.Redis.Database = 3
		app.Redis.OperationTimeout = 2 * time.Second
		cfg := ConfigFromApp(&app.Redis)
		assert.Equal(t, "redis://cache:6379", cfg.URL)
		assert.Equal(t, 3, cfg.Database)
		assert.Equal(t, 2*time.Second, cfg.OperationTimeout)
		assert.Equal(t, app.Redis.MaxConnections, cfg.MaxConnections)
	})
}

func TestApplyConfigToOptions(t *testing.T) {
	t.Run("Should size the native pool and extend its wait limit", func(t *testing.T) {
		cfg, err := NewBuilder().
			MaxConnections(8).
			MinConnections(2).
			AcquireTimeout(time.Second).
			ConnectionTimeout(2 * time.Second).
			Build()
		require.NoError(t, err)
		opt := &redis.Options{}
		applyConfigToOptions(opt, &cfg)
		assert.Equal(t, 8, opt.PoolSize)
		assert.Equal(t, 2, opt.MinIdleConns)
		assert.Equal(t, 3*time.Second, opt.PoolTimeout)
		assert.Equal(t, 2*time.Second, opt.DialTimeout)
		assert.True(t, opt.ContextTimeoutEnabled)
		assert.Equal(t, 3, opt.MaxRetries)
	})

	t.Run("Should disable retries when no attempts are configured", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RetryAttempts = 0
		opt := &redis.Options{}
		applyConfigToOptions(opt, &cfg)
		assert.Equal(t, -1, opt.MaxRetries)
	})

	t.Run("Should keep the URL database unless overridden", func(t *testing.T) {
		cfg := DefaultConfig()
		opt := &redis.Options{DB: 4}
		applyConfigToOptions(opt, &cfg)
		assert.Equal(t, 4, opt.DB)
		cfg.Database = 1
		applyConfigToOptions(opt, &cfg)
		assert.Equal(t, 1, opt.DB)
	})

	t.Run("Should apply an explicit TLS config", func(t *testing.T) {
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
		cfg, err := NewBuilder().TLSConfig(tlsCfg).Build()
		require.NoError(t, err)
		opt := &redis.Options{}
		applyConfigToOptions(opt, &cfg)
		assert.Same(t, tlsCfg, opt.TLSConfig)
	})
}
