package sqlite

import (
	"fmt"
	"strings"
	"time"

	"github.com/compozy/storage/engine/infra/dbpool"
	appconfig "github.com/compozy/storage/pkg/config"
)

const urlScheme = "sqlite:"

// Config captures SQLite pool configuration. The pool keeps its own copy.
type Config struct {
	// URL is "sqlite:" followed by a file path or ":memory:".
	URL string

	MaxConnections uint32
	MinConnections uint32

	AcquireTimeout     time.Duration
	ConnectionTimeout  time.Duration
	IdleTimeout        time.Duration
	MaxLifetime        time.Duration
	OperationTimeout   time.Duration
	HealthCheckTimeout time.Duration

	EnableWAL         bool
	EnableForeignKeys bool
	// BusyTimeout configures sqlite busy timeout via PRAGMA busy_timeout.
	BusyTimeout time.Duration
}

// DefaultConfig returns an in-memory database with WAL and foreign keys on.
func DefaultConfig() Config {
	return Config{
		URL:                "sqlite::memory:",
		MaxConnections:     10,
		MinConnections:     1,
		AcquireTimeout:     30 * time.Second,
		ConnectionTimeout:  10 * time.Second,
		IdleTimeout:        10 * time.Minute,
		OperationTimeout:   30 * time.Second,
		HealthCheckTimeout: 5 * time.Second,
		EnableWAL:          true,
		EnableForeignKeys:  true,
		BusyTimeout:        30 * time.Second,
	}
}

// ConfigFromApp maps the application config section onto a pool config.
func ConfigFromApp(c *appconfig.SQLiteConfig) Config {
	return Config{
		URL:                c.URL,
		MaxConnections:     c.MaxConnections,
		MinConnections:     c.MinConnections,
		AcquireTimeout:     c.AcquireTimeout,
		ConnectionTimeout:  c.ConnectionTimeout,
		IdleTimeout:        c.IdleTimeout,
		OperationTimeout:   c.OperationTimeout,
		HealthCheckTimeout: c.HealthCheckTimeout,
		EnableWAL:          c.EnableWAL,
		EnableForeignKeys:  c.EnableForeignKeys,
		BusyTimeout:        c.BusyTimeout,
	}
}

func configError(msg string) error {
	return dbpool.NewConfigurationError(dbpool.BackendSQLite, msg).
		WithComponent("sqlite_config").
		Seal()
}

// Validate reports the first violated invariant as a configuration error.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.URL, urlScheme) {
		return configError("SQLite URL must start with 'sqlite:'")
	}
	if c.MaxConnections == 0 {
		return configError("max_connections must be > 0")
	}
	if c.MinConnections > c.MaxConnections {
		return configError("min_connections cannot exceed max_connections")
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
	if c.BusyTimeout < 0 {
		return configError("busy_timeout cannot be negative")
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

func (b *Builder) MaxLifetime(d time.Duration) *Builder {
	b.cfg.MaxLifetime = d
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

func (b *Builder) EnableWAL(on bool) *Builder {
	b.cfg.EnableWAL = on
	return b
}

func (b *Builder) EnableForeignKeys(on bool) *Builder {
	b.cfg.EnableForeignKeys = on
	return b
}

func (b *Builder) BusyTimeout(d time.Duration) *Builder {
	b.cfg.BusyTimeout = d
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
