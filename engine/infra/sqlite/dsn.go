package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const memoryPath = ":memory:"

// databasePath strips the scheme from a pool URL.
func databasePath(raw string) string {
	path := strings.TrimPrefix(raw, urlScheme)
	path = strings.TrimPrefix(path, "//")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}

func isMemory(path string) bool {
	return path == "" || path == memoryPath
}

// buildDSN renders a modernc DSN. busy_timeout and foreign_keys are set with
// _pragma parameters so every new connection in the pool gets them.
func buildDSN(cfg *Config) string {
	path := databasePath(cfg.URL)
	var base string
	var params []string
	if isMemory(path) {
		base = "file:memdb_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		params = append(params, "mode=memory", "cache=shared")
	} else {
		base = "file:" + path
	}
	if cfg.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_pragma=busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	}
	if cfg.EnableForeignKeys {
		params = append(params, "_pragma=foreign_keys(1)")
	}
	if len(params) == 0 {
		return base
	}
	return base + "?" + strings.Join(params, "&")
}

// ensureDir creates the parent directory of a file database.
func ensureDir(cfg *Config) error {
	path := databasePath(cfg.URL)
	if isMemory(path) || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create database directory %s: %w", dir, err)
	}
	return nil
}
