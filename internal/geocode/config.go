// internal/geocode/config.go
package geocode

import "time"

type Config struct {
	DebounceWindow time.Duration
	MinQueryLength int

	SecondaryBaseURL    string
	SecondaryAPIKey     string
	SecondaryMaxResults int
	SecondaryTimeout    time.Duration
}
