package runlog

import (
	"fmt"
	"strings"
)

// Backends accepted by Open.
const (
	BackendNone     = "none"
	BackendJSONL    = "jsonl"
	BackendRotating = "rotating"
	BackendSQLite   = "sqlite"
)

// Config defines settings for the iteration log and its rotation.
type Config struct {
	// Backend selects the store type: "none", "jsonl", "rotating" or "sqlite".
	Backend string `json:"backend"`
	// Path is the file location of the store.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	c.Backend = strings.ToLower(c.Backend)
	if c.Backend == "" {
		c.Backend = BackendNone
	}
	if c.Path == "" {
		switch c.Backend {
		case BackendSQLite:
			c.Path = "iterations.db"
		default:
			c.Path = "iterations.jsonl"
		}
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 10
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendNone, BackendJSONL, BackendRotating, BackendSQLite:
	default:
		return fmt.Errorf("unknown runlog backend %s", c.Backend)
	}
	if c.Backend != BackendNone && c.Path == "" {
		return fmt.Errorf("runlog path is required")
	}
	return nil
}

// Open returns the store selected by c.
func Open(c Config) (Store, error) {
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Backend {
	case BackendJSONL:
		return NewJSONLStore(c.Path)
	case BackendRotating:
		return NewRotatingJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	case BackendSQLite:
		return NewSQLiteStore(c.Path)
	}
	return NopStore{}, nil
}
