// internal/geocode/resolver_test.go
package geocode

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cohort-intake/internal/common/logger"
	"cohort-intake/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePrimary scripts the map-SDK adapter.
type fakePrimary struct {
	mu             sync.Mutex
	searches       []string
	searchFn       func(text string) ([]models.GeocodeResult, error)
	placeSelected  func(models.GeocodeResult)
	authFailure    func(error)
}

func (p *fakePrimary) Search(ctx context.Context, text string) ([]models.GeocodeResult, error) {
	p.mu.Lock()
	p.searches = append(p.searches, text)
	fn := p.searchFn
	p.mu.Unlock()
	if fn != nil {
		return fn(text)
	}
	return nil, ErrSearchFailed
}

func (p *fakePrimary) OnPlaceSelected(fn func(models.GeocodeResult)) { p.placeSelected = fn }
func (p *fakePrimary) OnAuthFailure(fn func(error))                  { p.authFailure = fn }

func (p *fakePrimary) searchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.searches)
}

// fakeSecondary scripts the address-index provider, optionally blocking until
// its context is cancelled to simulate a slow in-flight call.
type fakeSecondary struct {
	mu       sync.Mutex
	searches []string
	searchFn func(ctx context.Context, text string) ([]models.GeocodeResult, error)
}

func (p *fakeSecondary) Search(ctx context.Context, text string) ([]models.GeocodeResult, error) {
	p.mu.Lock()
	p.searches = append(p.searches, text)
	fn := p.searchFn
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, text)
	}
	return []models.GeocodeResult{
		{Label: text + " (indexed)", Latitude: 1, Longitude: 2, Provider: models.ProviderSecondary},
	}, nil
}

func (p *fakeSecondary) searchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.searches)
}

type resultsRecorder struct {
	mu      sync.Mutex
	batches [][]models.GeocodeResult
	tiers   []models.ProviderTier
}

func (r *resultsRecorder) record(results []models.GeocodeResult, tier models.ProviderTier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, results)
	r.tiers = append(r.tiers, tier)
}

func (r *resultsRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *resultsRecorder) last() ([]models.GeocodeResult, models.ProviderTier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batches) == 0 {
		return nil, ""
	}
	return r.batches[len(r.batches)-1], r.tiers[len(r.tiers)-1]
}

func resolverConfig() *Config {
	return &Config{
		DebounceWindow:      15 * time.Millisecond,
		MinQueryLength:      3,
		SecondaryTimeout:    time.Second,
		SecondaryMaxResults: 5,
	}
}

func TestResolver_PrimaryServesResults(t *testing.T) {
	primary := &fakePrimary{
		searchFn: func(text string) ([]models.GeocodeResult, error) {
			return []models.GeocodeResult{
				{Label: "Berlin, Germany", Latitude: 52.52, Longitude: 13.40, Provider: models.ProviderPrimary},
			}, nil
		},
	}
	secondary := &fakeSecondary{}
	rec := &resultsRecorder{}

	r := NewResolver(resolverConfig(), primary, secondary, rec.record, logger.NewTestLogger(t))
	defer r.Close()

	r.OnQueryChanged("berlin")

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	results, tier := rec.last()
	assert.Equal(t, models.ProviderPrimary, tier)
	assert.Equal(t, "Berlin, Germany", results[0].Label)
	assert.Zero(t, secondary.searchCount())
	assert.False(t, r.Snapshot().UsingFallbackProvider)
}

func TestResolver_AuthFailureFallsBackPermanently(t *testing.T) {
	primary := &fakePrimary{
		searchFn: func(text string) ([]models.GeocodeResult, error) {
			return nil, ErrAuthFailed
		},
	}
	secondary := &fakeSecondary{}
	rec := &resultsRecorder{}

	r := NewResolver(resolverConfig(), primary, secondary, rec.record, logger.NewTestLogger(t))
	defer r.Close()

	r.OnQueryChanged("first query")
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	assert.True(t, r.Snapshot().UsingFallbackProvider)
	assert.Equal(t, 1, primary.searchCount())

	// Every subsequent query in the session goes straight to the secondary.
	r.OnQueryChanged("second query")
	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
	r.OnQueryChanged("third query")
	require.Eventually(t, func() bool { return rec.count() == 3 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, primary.searchCount(), "broken primary must not be retried")
	assert.Equal(t, 3, secondary.searchCount())
}

func TestResolver_AsyncAuthFailureCallback(t *testing.T) {
	primary := &fakePrimary{}
	secondary := &fakeSecondary{}
	rec := &resultsRecorder{}

	r := NewResolver(resolverConfig(), primary, secondary, rec.record, logger.NewTestLogger(t))
	defer r.Close()

	// SDK reports a bad key asynchronously, before any search.
	primary.authFailure(errors.New("invalid api key"))

	r.OnQueryChanged("some city")
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	assert.True(t, r.Snapshot().UsingFallbackProvider)
	assert.Zero(t, primary.searchCount())
	assert.Equal(t, 1, secondary.searchCount())
}

func TestResolver_NilPrimaryStartsDegraded(t *testing.T) {
	secondary := &fakeSecondary{}
	rec := &resultsRecorder{}

	r := NewResolver(resolverConfig(), nil, secondary, rec.record, logger.NewTestLogger(t))
	defer r.Close()

	assert.True(t, r.Snapshot().UsingFallbackProvider)

	r.OnQueryChanged("anywhere")
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	_, tier := rec.last()
	assert.Equal(t, models.ProviderSecondary, tier)
}

func TestResolver_SupersededQueryIsAborted(t *testing.T) {
	released := make(chan struct{})
	var cancelled sync.Map
	secondary := &fakeSecondary{
		searchFn: func(ctx context.Context, text string) ([]models.GeocodeResult, error) {
			if text == "query one" {
				select {
				case <-ctx.Done():
					cancelled.Store(text, true)
					return nil, ctx.Err()
				case <-released:
				}
			}
			return []models.GeocodeResult{
				{Label: text, Latitude: 1, Longitude: 1, Provider: models.ProviderSecondary},
			}, nil
		},
	}
	rec := &resultsRecorder{}

	r := NewResolver(resolverConfig(), nil, secondary, rec.record, logger.NewTestLogger(t))
	defer r.Close()

	r.OnQueryChanged("query one")
	require.Eventually(t, func() bool { return secondary.searchCount() == 1 }, time.Second, time.Millisecond)

	// Second query supersedes the first while it is still in flight.
	r.OnQueryChanged("query two")
	require.Eventually(t, func() bool { return secondary.searchCount() == 2 }, time.Second, time.Millisecond)

	require.Eventually(t, func() bool { return rec.count() >= 1 }, time.Second, time.Millisecond)
	close(released)
	time.Sleep(50 * time.Millisecond)

	// Only the second query's result surfaced, and the first's network call
	// was aborted via its context rather than ignored on arrival.
	require.Equal(t, 1, rec.count())
	results, _ := rec.last()
	assert.Equal(t, "query two", results[0].Label)
	_, wasCancelled := cancelled.Load("query one")
	assert.True(t, wasCancelled)
}

func TestResolver_ZeroMatchesYieldsCuratedFallback(t *testing.T) {
	secondary := &fakeSecondary{
		searchFn: func(ctx context.Context, text string) ([]models.GeocodeResult, error) {
			return nil, nil
		},
	}
	rec := &resultsRecorder{}

	r := NewResolver(resolverConfig(), nil, secondary, rec.record, logger.NewTestLogger(t))
	defer r.Close()

	r.OnQueryChanged("xyzzy nowhere")
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	results, tier := rec.last()
	assert.Equal(t, models.ProviderStatic, tier)
	assert.NotEmpty(t, results, "user must never see an empty result set")
}

func TestResolver_StaticFallbackFiltersAndPads(t *testing.T) {
	results := StaticFallback("london")
	require.NotEmpty(t, results)
	assert.Equal(t, "London, United Kingdom", results[0].Label)
	// Substring match plus two unfiltered defaults.
	assert.Len(t, results, 3)

	// No match at all still yields the defaults.
	results = StaticFallback("qqqqq")
	assert.Len(t, results, staticUnfilteredDefaults)
}

func TestResolver_ShortQueryDoesNotSearch(t *testing.T) {
	secondary := &fakeSecondary{}
	rec := &resultsRecorder{}

	r := NewResolver(resolverConfig(), nil, secondary, rec.record, logger.NewTestLogger(t))
	defer r.Close()

	r.OnQueryChanged("ab")
	time.Sleep(60 * time.Millisecond)

	assert.Zero(t, secondary.searchCount())
	assert.Zero(t, rec.count())
}

func TestResolver_AuthoritativeSlotLastWriteWins(t *testing.T) {
	secondary := &fakeSecondary{}
	rec := &resultsRecorder{}
	r := NewResolver(resolverConfig(), nil, secondary, rec.record, logger.NewTestLogger(t))
	defer r.Close()

	r.SelectSuggestion(models.GeocodeResult{
		Label: "Berlin, Germany", Latitude: 52.52, Longitude: 13.40, Provider: models.ProviderSecondary,
	})
	require.Equal(t, "Berlin, Germany", r.Snapshot().Authoritative.Label)

	clicked := r.MapClick(48.85661, 2.35222)
	assert.Equal(t, "48.85661, 2.35222", clicked.Label)
	assert.Equal(t, models.ProviderMapClick, r.Snapshot().Authoritative.Provider)

	manual, err := r.SubmitManual("12 Rue de Rivoli, Paris", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, manual, *r.Snapshot().Authoritative)
}

func TestResolver_ManualEntryAlwaysAccepted(t *testing.T) {
	secondary := &fakeSecondary{
		searchFn: func(ctx context.Context, text string) ([]models.GeocodeResult, error) {
			return nil, nil // zero matches for everything
		},
	}
	rec := &resultsRecorder{}
	r := NewResolver(resolverConfig(), nil, secondary, rec.record, logger.NewTestLogger(t))
	defer r.Close()

	res, err := r.SubmitManual("1 Obscure Lane, Nowhereville", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "1 Obscure Lane, Nowhereville", res.Label)
	assert.Equal(t, models.ProviderManual, res.Provider)
}

func TestResolver_ManualEntryValidation(t *testing.T) {
	r := NewResolver(resolverConfig(), nil, &fakeSecondary{}, nil, logger.NewTestLogger(t))
	defer r.Close()

	_, err := r.SubmitManual("   ", nil, nil)
	assert.Error(t, err)

	badLat := 123.0
	_, err = r.SubmitManual("Somewhere", &badLat, nil)
	assert.Error(t, err)

	lat, lon := 40.0, -74.0
	res, err := r.SubmitManual("Somewhere", &lat, &lon)
	require.NoError(t, err)
	assert.Equal(t, 40.0, res.Latitude)
	assert.Equal(t, -74.0, res.Longitude)
}

func TestResolver_PlaceSelectedCallbackSetsSlot(t *testing.T) {
	primary := &fakePrimary{}
	r := NewResolver(resolverConfig(), primary, &fakeSecondary{}, nil, logger.NewTestLogger(t))
	defer r.Close()

	primary.placeSelected(models.GeocodeResult{
		Label: "Chosen on map", Latitude: 10, Longitude: 20, Provider: models.ProviderPrimary,
	})

	snap := r.Snapshot()
	require.NotNil(t, snap.Authoritative)
	assert.Equal(t, "Chosen on map", snap.Authoritative.Label)
}
