// internal/geocode/secondary.go
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"cohort-intake/internal/common/httpclient"
	"cohort-intake/internal/common/logger"
	"cohort-intake/internal/models"
)

// HTTPSecondaryProvider searches a public address index over its autocomplete
// endpoint. Cancellation rides on the request context: aborting the context
// tears the connection down rather than letting the response arrive and be
// ignored.
type HTTPSecondaryProvider struct {
	baseURL    string
	apiKey     string
	maxResults int
	client     *httpclient.Client
	logger     logger.Logger
}

func NewHTTPSecondaryProvider(config *Config, log logger.Logger) *HTTPSecondaryProvider {
	return &HTTPSecondaryProvider{
		baseURL:    config.SecondaryBaseURL,
		apiKey:     config.SecondaryAPIKey,
		maxResults: config.SecondaryMaxResults,
		client:     httpclient.New(),
		logger: log.With(map[string]interface{}{
			"component": "geocode-secondary",
		}),
	}
}

type autocompleteResponse struct {
	Features []struct {
		Properties struct {
			Formatted string  `json:"formatted"`
			Lat       float64 `json:"lat"`
			Lon       float64 `json:"lon"`
		} `json:"properties"`
	} `json:"features"`
}

func (p *HTTPSecondaryProvider) Search(ctx context.Context, text string) ([]models.GeocodeResult, error) {
	endpoint := fmt.Sprintf("%s/v1/geocode/autocomplete?text=%s&limit=%s&apiKey=%s",
		p.baseURL,
		url.QueryEscape(text),
		strconv.Itoa(p.maxResults),
		url.QueryEscape(p.apiKey),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrSearchFailed, resp.StatusCode)
	}

	var body autocompleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrSearchFailed, err)
	}

	results := make([]models.GeocodeResult, 0, len(body.Features))
	for _, f := range body.Features {
		if f.Properties.Formatted == "" {
			continue
		}
		results = append(results, models.GeocodeResult{
			Label:     f.Properties.Formatted,
			Latitude:  f.Properties.Lat,
			Longitude: f.Properties.Lon,
			Provider:  models.ProviderSecondary,
		})
	}

	p.logger.Debug("address index search completed", map[string]interface{}{
		"query":   text,
		"matches": len(results),
	})

	return results, nil
}
