package cache

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/compozy/storage/engine/infra/dbpool"
	appconfig "github.com/compozy/storage/pkg/config"
)

// Config captures Redis pool configuration. The pool keeps its own copy.
type Config struct {
	// URL is a redis:// or rediss:// connection string.
	URL string

	MaxConnections uint32
	MinConnections uint32

	AcquireTimeout     time.Duration
	ConnectionTimeout  time.Duration
	IdleTimeout        time.Duration
	OperationTimeout   time.Duration
	HealthCheckTimeout time.Duration
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration

	// Database overrides the database number in URL when non-zero.
	Database      int
	RetryAttempts uint32

	// TLSConfig overrides the TLS settings derived from a rediss:// URL.
	TLSConfig *tls.Config
}

// DefaultConfig returns the local development target.
func DefaultConfig() Config {
	return Config{
		URL:                "redis://localhost:6379",
		MaxConnections:     20,
		MinConnections:     2,
		AcquireTimeout:     30 * time.Second,
		ConnectionTimeout:  10 * time.Second,
		IdleTimeout:        5 * time.Minute,
		OperationTimeout:   5 * time.Second,
		HealthCheckTimeout: 5 * time.Second,
		ReadTimeout:        3 * time.Second,
		WriteTimeout:       3 * time.Second,
		RetryAttempts:      3,
	}
}

// ConfigFromApp maps the application config section onto a pool config.
func ConfigFromApp(c *appconfig.RedisConfig) Config {
	return Config{
		URL:                c.URL,
		MaxConnections:     c.MaxConnections,
		MinConnections:     c.MinConnections,
		AcquireTimeout:     c.AcquireTimeout,
		ConnectionTimeout:  c.ConnectionTimeout,
		IdleTimeout:        c.IdleTimeout,
		OperationTimeout:   c.OperationTimeout,
		HealthCheckTimeout: c.HealthCheckTimeout,
		ReadTimeout:        c.ReadTimeout,
		WriteTimeout:       c.WriteTimeout,
		Database:           c.Database,
		RetryAttempts:      c.RetryAttempts,
	}
}

func configError(msg string) error {
	return dbpool.NewConfigurationError(dbpool.BackendRedis, msg).
		WithComponent("redis_config").
		Seal()
}

// Validate reports the first violated invariant as a configuration error.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.URL, "redis://") && !strings.HasPrefix(c.URL, "rediss://") {
		return configError("Redis URL must start with 'redis://' or 'rediss://'")
	}
	if c.MaxConnections == 0 {
		return configError("max_connections must be > 0")
	}
	if c.MinConnections > c.MaxConnections {
		return configError("min_connections cannot exceed max_connections")
	}
	if c.Database < 0 {
		return configError("database cannot be negative")
	}
	timeouts := []struct {
		name string
		d    time.Duration
	}{
		{"acquire_timeout", c.AcquireTimeout},
		{"operation_timeout", c.OperationTimeout},
		{"health_check_timeout", c.HealthCheckTimeout},
	}
	for _, t := range timeouts {
		if t.d <= 0 {
			return configError(fmt.Sprintf("%s must be > 0", t.name))
		}
	}
	return nil
}

// Builder assembles a Config starting from DefaultConfig.
type Builder struct {
	cfg Config
}

func NewBuilder() *Builder {
	return &Builder{cfg: DefaultConfig()}
}

func (b *Builder) URL(url string) *Builder {
	b.cfg.URL = url
	return b
}

func (b *Builder) MaxConnections(n uint32) *Builder {
	b.cfg.MaxConnections = n
	return b
}

func (b *Builder) MinConnections(n uint32) *Builder {
	b.cfg.MinConnections = n
	return b
}

func (b *Builder) AcquireTimeout(d time.Duration) *Builder {
	b.cfg.AcquireTimeout = d
	return b
}

func (b *Builder) ConnectionTimeout(d time.Duration) *Builder {
	b.cfg.ConnectionTimeout = d
	return b
}

func (b *Builder) IdleTimeout(d time.Duration) *Builder {
	b.cfg.IdleTimeout = d
	return b
}

func (b *Builder) OperationTimeout(d time.Duration) *Builder {
	b.cfg.OperationTimeout = d
	return b
}

func (b *Builder) HealthCheckTimeout(d time.Duration) *Builder {
	b.cfg.HealthCheckTimeout = d
	return b
}

func (b *Builder) ReadTimeout(d time.Duration) *Builder {
	b.cfg.ReadTimeout = d
	return b
}

func (b *Builder) WriteTimeout(d time.Duration) *Builder {
	b.cfg.WriteTimeout = d
	return b
}

func (b *Builder) Database(db int) *Builder {
	b.cfg.Database = db
	return b
}

func (b *Builder) RetryAttempts(n uint32) *Builder {
	b.cfg.RetryAttempts = n
	return b
}

func (b *Builder) TLSConfig(c *tls.Config) *Builder {
	b.cfg.TLSConfig = c
	return b
}

// Build validates and returns the config. It fails closed.
func (b *Builder) Build() (Config, error) {
	cfg := b.cfg
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
