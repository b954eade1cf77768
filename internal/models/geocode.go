// internal/models/geocode.go
package models

import "fmt"

// ProviderTier identifies which tier of the geocode chain produced a result.
type ProviderTier string

const (
	ProviderPrimary   ProviderTier = "primary"
	ProviderSecondary ProviderTier = "secondary"
	ProviderStatic    ProviderTier = "static"
	ProviderManual    ProviderTier = "manual"
	ProviderMapClick  ProviderTier = "map_click"
)

// GeocodeQuery is one free-text lookup. Token is compared against the
// resolver's latest issue so superseded queries can never surface a result.
type GeocodeQuery struct {
	Text  string `json:"text"`
	Token uint64 `json:"token"`
}

// GeocodeResult is a resolved location. Provider tells the presentation layer
// whether a degraded-mode advisory applies.
type GeocodeResult struct {
	Label     string       `json:"label"`
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	Provider  ProviderTier `json:"provider"`
}

// SynthesizeLabel renders a coordinate pair as a human-readable label for
// map-click results. 5 decimal places is roughly 1m of resolution.
func SynthesizeLabel(lat, lon float64) string {
	return fmt.Sprintf("%.5f, %.5f", lat, lon)
}
