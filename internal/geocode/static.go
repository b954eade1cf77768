// internal/geocode/static.go
package geocode

import (
	"strings"

	"cohort-intake/internal/models"
)

// curatedLocations is the fixed fallback list shown when the live providers
// yield nothing for a non-trivial query. The user must always have something
// to pick besides "try again".
var curatedLocations = []models.GeocodeResult{
	{Label: "New York, NY, United States", Latitude: 40.71278, Longitude: -74.00594, Provider: models.ProviderStatic},
	{Label: "Los Angeles, CA, United States", Latitude: 34.05223, Longitude: -118.24368, Provider: models.ProviderStatic},
	{Label: "Chicago, IL, United States", Latitude: 41.87811, Longitude: -87.62980, Provider: models.ProviderStatic},
	{Label: "London, United Kingdom", Latitude: 51.50735, Longitude: -0.12776, Provider: models.ProviderStatic},
	{Label: "Berlin, Germany", Latitude: 52.52001, Longitude: 13.40495, Provider: models.ProviderStatic},
	{Label: "Toronto, ON, Canada", Latitude: 43.65107, Longitude: -79.34702, Provider: models.ProviderStatic},
	{Label: "Sydney, NSW, Australia", Latitude: -33.86882, Longitude: 151.20930, Provider: models.ProviderStatic},
	{Label: "Singapore", Latitude: 1.35208, Longitude: 103.81984, Provider: models.ProviderStatic},
	{Label: "Bengaluru, India", Latitude: 12.97160, Longitude: 77.59457, Provider: models.ProviderStatic},
	{Label: "São Paulo, Brazil", Latitude: -23.55052, Longitude: -46.63331, Provider: models.ProviderStatic},
}

const staticUnfilteredDefaults = 2

// StaticFallback returns curated locations matching the query by substring,
// appended with up to two unfiltered defaults so the set is never empty.
func StaticFallback(query string) []models.GeocodeResult {
	q := strings.ToLower(strings.TrimSpace(query))

	var out []models.GeocodeResult
	for _, loc := range curatedLocations {
		if q != "" && strings.Contains(strings.ToLower(loc.Label), q) {
			out = append(out, loc)
		}
	}

	appended := 0
	for _, loc := range curatedLocations {
		if appended >= staticUnfilteredDefaults {
			break
		}
		if containsLabel(out, loc.Label) {
			continue
		}
		out = append(out, loc)
		appended++
	}

	return out
}

func containsLabel(results []models.GeocodeResult, label string) bool {
	for _, r := range results {
		if r.Label == label {
			return true
		}
	}
	return false
}
