// internal/analysis/config.go
package analysis

import "time"

// Config holds the settings for the branch-analysis calls against the
// generation API.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	MaxRetries     int
}
