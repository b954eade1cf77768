// internal/geocode/resolver.go
package geocode

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"cohort-intake/internal/common/logger"
	"cohort-intake/internal/common/metrics"
	"cohort-intake/internal/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ResultsFunc receives the candidate list for the latest query, tagged with
// the tier that produced it. Superseded queries never reach it.
type ResultsFunc func(results []models.GeocodeResult, provider models.ProviderTier)

// State is the resolver snapshot the presentation layer renders from.
type State struct {
	UsingFallbackProvider bool
	Authoritative         *models.GeocodeResult
}

// Resolver walks the provider chain for each query and maintains the single
// authoritative location slot. Last write wins across suggestion selection,
// map clicks, and manual entry; there is no merging of partial results.
type Resolver struct {
	config    *Config
	primary   PrimaryProvider
	secondary SecondaryProvider
	onResults ResultsFunc
	logger    logger.Logger

	mu             sync.Mutex
	usingFallback  bool
	queryToken     uint64
	inflightCancel context.CancelFunc
	timer          *time.Timer
	pendingQuery   string
	authoritative  *models.GeocodeResult
	closed         bool
}

// NewResolver wires the chain. primary may be nil (missing configuration);
// the resolver then starts degraded and the flow remains completable through
// the secondary, static, and manual tiers.
func NewResolver(config *Config, primary PrimaryProvider, secondary SecondaryProvider, onResults ResultsFunc, log logger.Logger) *Resolver {
	r := &Resolver{
		config:    config,
		primary:   primary,
		secondary: secondary,
		onResults: onResults,
		logger: log.With(map[string]interface{}{
			"component": "geocode-resolver",
		}),
	}

	if primary == nil {
		r.usingFallback = true
	} else {
		primary.OnAuthFailure(func(err error) {
			r.markFallback("auth failure callback", err)
		})
		primary.OnPlaceSelected(func(res models.GeocodeResult) {
			r.setAuthoritative(res)
		})
	}

	return r
}

// OnQueryChanged registers a keystroke-level change of the location search
// text. Trailing-edge debounced; sub-threshold queries cancel any pending
// timer without searching.
func (r *Resolver) OnQueryChanged(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	if len(strings.TrimSpace(text)) < r.config.MinQueryLength {
		r.stopTimerLocked()
		return
	}

	r.pendingQuery = text
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.config.DebounceWindow, r.fireQuery)
}

func (r *Resolver) fireQuery() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	text := r.pendingQuery

	// Supersede: abort the previous in-flight call outright.
	if r.inflightCancel != nil {
		r.inflightCancel()
	}
	r.queryToken++
	token := r.queryToken

	ctx, cancel := context.WithTimeout(context.Background(), r.config.SecondaryTimeout)
	r.inflightCancel = cancel
	usingFallback := r.usingFallback
	r.mu.Unlock()

	go r.resolve(ctx, token, text, usingFallback)
}

// resolve walks the tiers for one query. Any result delivery is gated on the
// token still being the latest.
func (r *Resolver) resolve(ctx context.Context, token uint64, text string, usingFallback bool) {
	if !usingFallback && r.primary != nil {
		metrics.GeocodeProviderAttempts.WithLabelValues(string(models.ProviderPrimary)).Inc()
		results, err := r.primary.Search(ctx, text)
		switch {
		case err == nil:
			r.deliver(token, results, models.ProviderPrimary, text)
			return
		case errors.Is(err, ErrAuthFailed):
			r.markFallback("search auth failure", err)
		case ctx.Err() != nil:
			return // superseded or timed out; a newer query owns the UI now
		default:
			// Transient primary failure: fall through for this query only.
			r.logger.Warn("primary geocode search failed, trying secondary", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	metrics.GeocodeProviderAttempts.WithLabelValues(string(models.ProviderSecondary)).Inc()
	results, err := r.secondary.Search(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("secondary geocode search failed, using curated fallback", map[string]interface{}{
			"error": err.Error(),
		})
		results = nil
	}

	if len(results) > 0 {
		r.deliver(token, results, models.ProviderSecondary, text)
		return
	}

	// Zero matches for a non-trivial query: never present an empty set.
	metrics.GeocodeProviderAttempts.WithLabelValues(string(models.ProviderStatic)).Inc()
	r.deliver(token, StaticFallback(text), models.ProviderStatic, text)
}

func (r *Resolver) deliver(token uint64, results []models.GeocodeResult, provider models.ProviderTier, text string) {
	r.mu.Lock()
	if r.closed || token != r.queryToken {
		r.mu.Unlock()
		return
	}
	onResults := r.onResults
	r.mu.Unlock()

	r.logger.Debug("geocode results delivered", map[string]interface{}{
		"query":    text,
		"provider": string(provider),
		"count":    len(results),
	})

	if onResults != nil {
		onResults(results, provider)
	}
}

// markFallback permanently degrades to the secondary tier for the rest of
// the session; a known-broken primary is never retried.
func (r *Resolver) markFallback(reason string, err error) {
	r.mu.Lock()
	already := r.usingFallback
	r.usingFallback = true
	r.mu.Unlock()

	if already {
		return
	}

	metrics.GeocodeFallbacks.WithLabelValues(
		string(models.ProviderPrimary), string(models.ProviderSecondary),
	).Inc()
	r.logger.Warn("primary geocode provider disabled for session", map[string]interface{}{
		"reason": reason,
		"error":  err.Error(),
	})
}

// SelectSuggestion makes a search suggestion the authoritative location.
func (r *Resolver) SelectSuggestion(res models.GeocodeResult) {
	r.setAuthoritative(res)
}

// MapClick bypasses search entirely: the pin location becomes authoritative
// with a label synthesized from its coordinates.
func (r *Resolver) MapClick(lat, lon float64) models.GeocodeResult {
	res := models.GeocodeResult{
		Label:     models.SynthesizeLabel(lat, lon),
		Latitude:  lat,
		Longitude: lon,
		Provider:  models.ProviderMapClick,
	}
	r.setAuthoritative(res)
	return res
}

// SubmitManual accepts a typed address, optionally with explicit coordinates.
// This is the terminal fallback and is always available; only out-of-range
// coordinates are rejected.
func (r *Resolver) SubmitManual(address string, lat, lon *float64) (models.GeocodeResult, error) {
	if err := validation.Validate(strings.TrimSpace(address), validation.Required); err != nil {
		return models.GeocodeResult{}, err
	}
	if lat != nil {
		if err := validation.Validate(*lat, validation.Min(-90.0), validation.Max(90.0)); err != nil {
			return models.GeocodeResult{}, err
		}
	}
	if lon != nil {
		if err := validation.Validate(*lon, validation.Min(-180.0), validation.Max(180.0)); err != nil {
			return models.GeocodeResult{}, err
		}
	}

	res := models.GeocodeResult{
		Label:    strings.TrimSpace(address),
		Provider: models.ProviderManual,
	}
	if lat != nil {
		res.Latitude = *lat
	}
	if lon != nil {
		res.Longitude = *lon
	}

	metrics.GeocodeProviderAttempts.WithLabelValues(string(models.ProviderManual)).Inc()
	r.setAuthoritative(res)
	return res, nil
}

func (r *Resolver) setAuthoritative(res models.GeocodeResult) {
	r.mu.Lock()
	r.authoritative = &res
	r.mu.Unlock()
}

// Snapshot returns the current resolver state for rendering.
func (r *Resolver) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := State{UsingFallbackProvider: r.usingFallback}
	if r.authoritative != nil {
		res := *r.authoritative
		s.Authoritative = &res
	}
	return s
}

// Close aborts any in-flight query and stops the debounce timer.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.stopTimerLocked()
	if r.inflightCancel != nil {
		r.inflightCancel()
		r.inflightCancel = nil
	}
}

func (r *Resolver) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
