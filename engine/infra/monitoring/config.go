package monitoring

import (
	"fmt"
	"strings"

	appconfig "github.com/compozy/storage/pkg/config"
)

// Config holds configuration for the monitoring service.
type Config struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Path    string `json:"path"    yaml:"path"    mapstructure:"path"`
}

// DefaultConfig returns default monitoring configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled: false,
		Path:    "/metrics",
	}
}

// ConfigFromApp maps the application monitoring section.
func ConfigFromApp(c *appconfig.MonitoringConfig) *Config {
	return &Config{Enabled: c.Enabled, Path: c.Path}
}

// Validate validates the monitoring configuration
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("monitoring path cannot be empty")
	}
	if c.Path[0] != '/' {
		return fmt.Errorf("monitoring path must start with '/': got %s", c.Path)
	}
	// probe routes live beside the metrics endpoint
	for _, reserved := range []string{"/healthz", "/readyz"} {
		if c.Path == reserved {
			return fmt.Errorf("monitoring path cannot be %s", reserved)
		}
	}
	if strings.ContainsRune(c.Path, '?') {
		return fmt.Errorf("monitoring path cannot contain query parameters")
	}
	return nil
}
