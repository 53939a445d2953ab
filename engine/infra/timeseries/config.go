package timeseries

import (
	"fmt"
	"strings"
	"time"

	"github.com/compozy/storage/engine/infra/dbpool"
	appconfig "github.com/compozy/storage/pkg/config"
)

// Config captures InfluxDB pool configuration. The pool keeps its own copy.
type Config struct {
	// URL is the http:// or https:// address of the InfluxDB server.
	URL    string
	Token  string
	Org    string
	Bucket string

	// MaxConnections bounds concurrent leases and the HTTP connections kept
	// per host. MinConnections is accepted for symmetry; HTTP connections are
	// opened on demand.
	MaxConnections uint32
	MinConnections uint32

	AcquireTimeout     time.Duration
	ConnectionTimeout  time.Duration
	IdleTimeout        time.Duration
	OperationTimeout   time.Duration
	HealthCheckTimeout time.Duration

	RetryAttempts uint32
}

// DefaultConfig returns the local development target.
func DefaultConfig() Config {
	return Config{
		URL:                "http://localhost:8086",
		Token:              "my-token",
		Org:                "my-org",
		Bucket:             "my-bucket",
		MaxConnections:     10,
		MinConnections:     0,
		AcquireTimeout:     30 * time.Second,
		ConnectionTimeout:  10 * time.Second,
		IdleTimeout:        90 * time.Second,
		OperationTimeout:   10 * time.Second,
		HealthCheckTimeout: 5 * time.Second,
		RetryAttempts:      3,
	}
}

// ConfigFromApp maps the application config section onto a pool config.
func ConfigFromApp(c *appconfig.InfluxDBConfig) Config {
	return Config{
		URL:                c.URL,
		Token:              c.Token.Value(),
		Org:                c.Org,
		Bucket:             c.Bucket,
		MaxConnections:     c.MaxConnections,
		MinConnections:     c.MinConnections,
		AcquireTimeout:     c.AcquireTimeout,
		ConnectionTimeout:  c.ConnectionTimeout,
		IdleTimeout:        c.IdleTimeout,
		OperationTimeout:   c.OperationTimeout,
		HealthCheckTimeout: c.HealthCheckTimeout,
		RetryAttempts:      c.RetryAttempts,
	}
}

func configError(msg string) error {
	return dbpool.NewConfigurationError(dbpool.BackendInfluxDB, msg).
		WithComponent("influxdb_config").
		Seal()
}

// Validate reports the first violated invariant as a configuration error.
func (c *Config) Validate() error {
	if c.URL == "" {
		return configError("InfluxDB URL cannot be empty")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return configError("InfluxDB URL must start with 'http://' or 'https://'")
	}
	if c.Bucket == "" {
		return configError("InfluxDB bucket name cannot be empty")
	}
	if c.Token == "" {
		return configError("InfluxDB token cannot be empty")
	}
	if c.Org == "" {
		return configError("InfluxDB org cannot be empty")
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

func (b *Builder) Token(token string) *Builder {
	b.cfg.Token = token
	return b
}

func (b *Builder) Org(org string) *Builder {
	b.cfg.Org = org
	return b
}

func (b *Builder) Bucket(bucket string) *Builder {
	b.cfg.Bucket = bucket
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

func (b *Builder) RetryAttempts(n uint32) *Builder {
	b.cfg.RetryAttempts = n
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
