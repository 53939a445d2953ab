package config

import (
	"context"
	"encoding/json"
	"time"
)

// Config is the complete configuration for the storage pools and the process
// that supervises them.
type Config struct {
	SQLite     SQLiteConfig     `koanf:"sqlite"     json:"sqlite"`
	Redis      RedisConfig      `koanf:"redis"      json:"redis"`
	InfluxDB   InfluxDBConfig   `koanf:"influxdb"   json:"influxdb"`
	Monitoring MonitoringConfig `koanf:"monitoring" json:"monitoring"`
	Server     ServerConfig     `koanf:"server"     json:"server"`
	Log        LogConfig        `koanf:"log"        json:"log"`
}

// SQLiteConfig configures the relational pool.
type SQLiteConfig struct {
	Enabled            bool          `koanf:"enabled"              json:"enabled"              env:"DATABASE_SQLITE_ENABLED"`
	URL                string        `koanf:"url"                  json:"url"                  env:"DATABASE_SQLITE_URL"                  validate:"required,url_scheme=sqlite:"`
	MaxConnections     uint32        `koanf:"max_connections"      json:"max_connections"      env:"DATABASE_SQLITE_MAX_CONNECTIONS"      validate:"gt=0"`
	MinConnections     uint32        `koanf:"min_connections"      json:"min_connections"      env:"DATABASE_SQLITE_MIN_CONNECTIONS"      validate:"ltefield=MaxConnections"`
	AcquireTimeout     time.Duration `koanf:"acquire_timeout"      json:"acquire_timeout"      env:"DATABASE_SQLITE_ACQUIRE_TIMEOUT"      validate:"gt=0"`
	ConnectionTimeout  time.Duration `koanf:"connection_timeout"   json:"connection_timeout"   env:"DATABASE_SQLITE_CONNECTION_TIMEOUT"   validate:"gt=0"`
	IdleTimeout        time.Duration `koanf:"idle_timeout"         json:"idle_timeout"         env:"DATABASE_SQLITE_IDLE_TIMEOUT"`
	OperationTimeout   time.Duration `koanf:"operation_timeout"    json:"operation_timeout"    env:"DATABASE_SQLITE_OPERATION_TIMEOUT"    validate:"gt=0"`
	HealthCheckTimeout time.Duration `koanf:"health_check_timeout" json:"health_check_timeout" env:"DATABASE_SQLITE_HEALTH_CHECK_TIMEOUT" validate:"gt=0"`
	EnableWAL          bool          `koanf:"enable_wal"           json:"enable_wal"           env:"DATABASE_SQLITE_ENABLE_WAL"`
	EnableForeignKeys  bool          `koanf:"enable_foreign_keys"  json:"enable_foreign_keys"  env:"DATABASE_SQLITE_ENABLE_FOREIGN_KEYS"`
	BusyTimeout        time.Duration `koanf:"busy_timeout"         json:"busy_timeout"         env:"DATABASE_SQLITE_BUSY_TIMEOUT"`
}

// RedisConfig configures the key-value cache pool.
type RedisConfig struct {
	Enabled            bool          `koanf:"enabled"              json:"enabled"              env:"DATABASE_REDIS_ENABLED"`
	URL                string        `koanf:"url"                  json:"url"                  env:"DATABASE_REDIS_URL"                  validate:"required,url_scheme=redis:// rediss://"`
	MaxConnections     uint32        `koanf:"max_connections"      json:"max_connections"      env:"DATABASE_REDIS_MAX_CONNECTIONS"      validate:"gt=0"`
	MinConnections     uint32        `koanf:"min_connections"      json:"min_connections"      env:"DATABASE_REDIS_MIN_CONNECTIONS"      validate:"ltefield=MaxConnections"`
	AcquireTimeout     time.Duration `koanf:"acquire_timeout"      json:"acquire_timeout"      env:"DATABASE_REDIS_ACQUIRE_TIMEOUT"      validate:"gt=0"`
	ConnectionTimeout  time.Duration `koanf:"connection_timeout"   json:"connection_timeout"   env:"DATABASE_REDIS_CONNECTION_TIMEOUT"   validate:"gt=0"`
	IdleTimeout        time.Duration `koanf:"idle_timeout"         json:"idle_timeout"         env:"DATABASE_REDIS_IDLE_TIMEOUT"`
	OperationTimeout   time.Duration `koanf:"operation_timeout"    json:"operation_timeout"    env:"DATABASE_REDIS_OPERATION_TIMEOUT"    validate:"gt=0"`
	HealthCheckTimeout time.Duration `koanf:"health_check_timeout" json:"health_check_timeout" env:"DATABASE_REDIS_HEALTH_CHECK_TIMEOUT" validate:"gt=0"`
	ReadTimeout        time.Duration `koanf:"read_timeout"         json:"read_timeout"         env:"DATABASE_REDIS_READ_TIMEOUT"`
	WriteTimeout       time.Duration `koanf:"write_timeout"        json:"write_timeout"        env:"DATABASE_REDIS_WRITE_TIMEOUT"`
	Database           int           `koanf:"database"             json:"database"             env:"DATABASE_REDIS_DATABASE"             validate:"min=0,max=15"`
	RetryAttempts      uint32        `koanf:"retry_attempts"       json:"retry_attempts"       env:"DATABASE_REDIS_RETRY_ATTEMPTS"`
}

// InfluxDBConfig configures the time-series pool. Org, bucket and token are
// required when the pool is enabled.
type InfluxDBConfig struct {
	Enabled            bool            `koanf:"enabled"              json:"enabled"              env:"DATABASE_INFLUXDB_ENABLED"`
	URL                string          `koanf:"url"                  json:"url"                  env:"DATABASE_INFLUXDB_URL"                  validate:"required,url_scheme=http:// https://"`
	Token              SensitiveString `koanf:"token"                json:"token"                env:"DATABASE_INFLUXDB_TOKEN"                validate:"required_if=Enabled true" sensitive:"true"`
	Org                string          `koanf:"org"                  json:"org"                  env:"DATABASE_INFLUXDB_ORG"                  validate:"required_if=Enabled true"`
	Bucket             string          `koanf:"bucket"               json:"bucket"               env:"DATABASE_INFLUXDB_BUCKET"               validate:"required_if=Enabled true"`
	MaxConnections     uint32          `koanf:"max_connections"      json:"max_connections"      env:"DATABASE_INFLUXDB_MAX_CONNECTIONS"      validate:"gt=0"`
	MinConnections     uint32          `koanf:"min_connections"      json:"min_connections"      env:"DATABASE_INFLUXDB_MIN_CONNECTIONS"      validate:"ltefield=MaxConnections"`
	AcquireTimeout     time.Duration   `koanf:"acquire_timeout"      json:"acquire_timeout"      env:"DATABASE_INFLUXDB_ACQUIRE_TIMEOUT"      validate:"gt=0"`
	ConnectionTimeout  time.Duration   `koanf:"connection_timeout"   json:"connection_timeout"   env:"DATABASE_INFLUXDB_CONNECTION_TIMEOUT"   validate:"gt=0"`
	IdleTimeout        time.Duration   `koanf:"idle_timeout"         json:"idle_timeout"         env:"DATABASE_INFLUXDB_IDLE_TIMEOUT"`
	OperationTimeout   time.Duration   `koanf:"operation_timeout"    json:"operation_timeout"    env:"DATABASE_INFLUXDB_OPERATION_TIMEOUT"    validate:"gt=0"`
	HealthCheckTimeout time.Duration   `koanf:"health_check_timeout" json:"health_check_timeout" env:"DATABASE_INFLUXDB_HEALTH_CHECK_TIMEOUT" validate:"gt=0"`
	RetryAttempts      uint32          `koanf:"retry_attempts"       json:"retry_attempts"       env:"DATABASE_INFLUXDB_RETRY_ATTEMPTS"`
}

// MonitoringConfig controls the Prometheus export of pool metrics.
type MonitoringConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled" env:"DATABASE_MONITORING_ENABLED"`
	Path    string `koanf:"path"    json:"path"    env:"DATABASE_MONITORING_PATH"    validate:"required,startswith=/"`
}

// ServerConfig contains the supervisor HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"             json:"host"             env:"DATABASE_SERVER_HOST"             validate:"required"`
	Port            int           `koanf:"port"             json:"port"             env:"DATABASE_SERVER_PORT"             validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout" env:"DATABASE_SERVER_SHUTDOWN_TIMEOUT"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `koanf:"level"  json:"level"  env:"DATABASE_LOG_LEVEL" validate:"oneof=debug info warn error disabled"`
	JSON   bool   `koanf:"json"   json:"json"   env:"DATABASE_LOG_JSON"`
	Source bool   `koanf:"source" json:"source" env:"DATABASE_LOG_SOURCE"`
}

// SensitiveString hides its value when printed or serialized.
type SensitiveString string

const redacted = "[REDACTED]"

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// Value returns the secret in clear text.
func (s SensitiveString) Value() string {
	return string(s)
}

func (s SensitiveString) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Source defines the interface for configuration sources.
type Source interface {
	// Load reads configuration from the source.
	Load() (map[string]any, error)
	// Type returns the source type identifier.
	Type() SourceType
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceDefault SourceType = "default"
	SourceYAML    SourceType = "yaml"
	SourceTOML    SourceType = "toml"
	SourceEnv     SourceType = "env"
)

// Metadata records which source supplied each key.
type Metadata struct {
	Sources  map[string]SourceType `json:"sources"`
	LoadedAt time.Time             `json:"loaded_at"`
}

// Load loads defaults and environment overrides.
func Load(ctx context.Context) (*Config, error) {
	return NewService().Load(ctx)
}

// Default returns the baseline configuration: an in-memory SQLite pool and
// the cache and time-series pools disabled.
func Default() *Config {
	return &Config{
		SQLite: SQLiteConfig{
			Enabled:            true,
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
		},
		Redis: RedisConfig{
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
			Database:           0,
			RetryAttempts:      3,
		},
		InfluxDB: InfluxDBConfig{
			URL:                "http://localhost:8086",
			MaxConnections:     10,
			MinConnections:     0,
			AcquireTimeout:     30 * time.Second,
			ConnectionTimeout:  10 * time.Second,
			IdleTimeout:        90 * time.Second,
			OperationTimeout:   10 * time.Second,
			HealthCheckTimeout: 5 * time.Second,
			RetryAttempts:      3,
		},
		Monitoring: MonitoringConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            9464,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Development returns defaults for a local stack: a file-backed SQLite
// database plus local Redis and InfluxDB instances.
func Development() *Config {
	cfg := Default()
	cfg.SQLite.URL = "sqlite:./data/app.db"
	cfg.Redis.Enabled = true
	cfg.Redis.URL = "redis://:redispassword@localhost:6379"
	cfg.InfluxDB.Enabled = true
	cfg.InfluxDB.Org = "trading-org"
	cfg.InfluxDB.Bucket = "market-data"
	cfg.InfluxDB.Token = "my-super-secret-auth-token"
	cfg.Log.Level = "debug"
	return cfg
}
