// Package catalog reads the species reference catalog on behalf of the
// pipeline. Fetches return a Result instead of an error so the caller can
// tell an empty category from a failed fetch.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/tphakala/fieldlog/internal/datastore"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/observability/metrics"
	"github.com/tphakala/fieldlog/internal/observation"
)

// Lookup fetches category catalogs through an optional read-through cache.
// Only successful fetches are cached.
type Lookup struct {
	repo     datastore.CatalogRepository
	cache    *cache.Cache // nil when caching is disabled
	cacheTTL time.Duration
	timeout  time.Duration
	log      logger.Logger
	metrics  metrics.Recorder
}

// Option configures a Lookup.
type Option func(*Lookup)

// WithCacheTTL sets how long a fetched catalog is reused. 0 disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(l *Lookup) { l.cacheTTL = ttl }
}

// WithFetchTimeout bounds each store fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(l *Lookup) { l.timeout = d }
}

func WithLogger(log logger.Logger) Option {
	return func(l *Lookup) { l.log = log }
}

func WithRecorder(r metrics.Recorder) Option {
	return func(l *Lookup) { l.metrics = r }
}

// New creates a Lookup over repo.
func New(repo datastore.CatalogRepository, opts ...Option) *Lookup {
	l := &Lookup{
		repo:     repo,
		cacheTTL: 5 * time.Minute,
		timeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.cacheTTL > 0 {
		l.cache = cache.New(l.cacheTTL, 2*l.cacheTTL)
	}
	if l.log == nil {
		l.log = logger.Global().Module("catalog")
	}
	l.metrics = metrics.OrNop(l.metrics)
	return l
}

// Fetch returns the species of category in catalog order.
func (l *Lookup) Fetch(ctx context.Context, category observation.Category) Result {
	if !category.Valid() {
		return Failed(errors.New(fmt.Errorf("%w: %q", observation.ErrInvalidCategory, category)).
			Component("catalog").
			Category(errors.CategoryValidation).
			Context("category", string(category)).
			Build())
	}

	if records, ok := l.cached(category); ok {
		l.metrics.RecordOperation(metrics.OpCatalogCache, metrics.StatusHit)
		return Ok(records)
	}
	if l.cache != nil {
		l.metrics.RecordOperation(metrics.OpCatalogCache, metrics.StatusMiss)
	}

	start := time.Now()
	records, err := observation.CallWithTimeout(ctx, l.timeout, func(ctx context.Context) ([]observation.SpeciesRecord, error) {
		return l.repo.GetCatalog(ctx, category)
	})
	l.metrics.RecordDuration(metrics.OpCatalogFetch, time.Since(start).Seconds())
	if err != nil {
		l.metrics.RecordOperation(metrics.OpCatalogFetch, metrics.StatusError)
		return Failed(l.fetchError(err, category))
	}
	l.metrics.RecordOperation(metrics.OpCatalogFetch, metrics.StatusSuccess)

	if records == nil {
		records = []observation.SpeciesRecord{}
	}
	if l.cache != nil {
		l.cache.Set(string(category), records, cache.DefaultExpiration)
	}

	l.log.Debug("catalog fetched",
		logger.String("category", string(category)),
		logger.Int("species", len(records)),
		logger.Duration("elapsed", time.Since(start)))
	return Ok(records)
}

// Find resolves a species by scientific name within category. A cached
// catalog is consulted first; a miss there still asks the store, since the
// cached copy may predate the species.
func (l *Lookup) Find(ctx context.Context, category observation.Category, scientificName string) (observation.SpeciesRecord, error) {
	if !category.Valid() {
		return observation.SpeciesRecord{}, errors.New(fmt.Errorf("%w: %q", observation.ErrInvalidCategory, category)).
			Component("catalog").
			Category(errors.CategoryValidation).
			Build()
	}
	name := strings.TrimSpace(scientificName)

	if records, ok := l.cached(category); ok {
		if rec, found := Ok(records).Lookup(observation.SpeciesRecord{Category: category, ScientificName: name}); found {
			return rec, nil
		}
	}

	rec, err := observation.CallWithTimeout(ctx, l.timeout, func(ctx context.Context) (observation.SpeciesRecord, error) {
		return l.repo.FindSpecies(ctx, category, name)
	})
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, observation.ErrSpeciesNotFound):
		return observation.SpeciesRecord{}, errors.New(err).
			Component("catalog").
			Category(errors.CategoryValidation).
			Context("category", string(category)).
			Context("scientific_name", name).
			Build()
	default:
		return observation.SpeciesRecord{}, l.fetchError(err, category)
	}
}

// Invalidate drops the cached catalog of category, or of every category when
// none is given.
func (l *Lookup) Invalidate(categories ...observation.Category) {
	if l.cache == nil {
		return
	}
	if len(categories) == 0 {
		l.cache.Flush()
		return
	}
	for _, c := range categories {
		l.cache.Delete(string(c))
	}
}

func (l *Lookup) cached(category observation.Category) ([]observation.SpeciesRecord, bool) {
	if l.cache == nil {
		return nil, false
	}
	v, found := l.cache.Get(string(category))
	if !found {
		return nil, false
	}
	records, ok := v.([]observation.SpeciesRecord)
	return records, ok
}

func (l *Lookup) fetchError(err error, category observation.Category) error {
	errCategory := errors.CategoryCatalog
	if errors.Is(err, observation.ErrTimedOut) {
		errCategory = errors.CategoryTimeout
		l.metrics.RecordError(metrics.OpCatalogFetch, metrics.ErrorTypeTimeout)
	} else {
		l.metrics.RecordError(metrics.OpCatalogFetch, metrics.ErrorTypeFetch)
	}

	l.log.Warn("catalog fetch failed",
		logger.String("category", string(category)),
		logger.Error(err))

	return errors.New(fmt.Errorf("%w: %w", observation.ErrCatalogFetchFailed, err)).
		Component("catalog").
		Category(errCategory).
		Context("category", string(category)).
		Build()
}
