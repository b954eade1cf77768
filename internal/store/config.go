// internal/store/config.go
package store

import "time"

// Config holds the persistence gateway settings.
type Config struct {
	Table        string
	IndexName    string
	RetentionTTL time.Duration
}

func (c *Config) table() string {
	if c.Table == "" {
		return "cohort_profiles"
	}
	return c.Table
}
