// internal/suggest/config.go
package suggest

import "time"

type Config struct {
	BaseURL        string
	APIKey         string
	DebounceWindow time.Duration
	MinInputLength int
	RequestTimeout time.Duration
	MaxRetries     int
}
