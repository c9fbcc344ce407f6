package pipeline

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/fieldlog/internal/catalog"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/observation"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

var quiet = logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)

type fakeFetcher struct {
	mu      sync.Mutex
	results map[observation.Category][]observation.SpeciesRecord
	block   map[observation.Category]chan struct{}
	calls   []observation.Category
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		results: map[observation.Category][]observation.SpeciesRecord{
			observation.CategoryFauna: faunaList,
			observation.CategoryFlora: floraList,
		},
		block: map[observation.Category]chan struct{}{},
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, category observation.Category) catalog.Result {
	f.mu.Lock()
	f.calls = append(f.calls, category)
	gate := f.block[category]
	records := f.results[category]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return catalog.Failed(ctx.Err())
		}
	}
	return catalog.Ok(records)
}

type fakeConfirmer struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (c *fakeConfirmer) Confirm(_ context.Context, userID string, category observation.Category, species observation.SpeciesRecord) (observation.LogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return observation.LogEntry{}, c.err
	}
	return observation.LogEntry{
		ID:             "e-1",
		UserID:         userID,
		Category:       category,
		CommonName:     species.CommonName,
		ScientificName: species.ScientificName,
		Status:         observation.StatusMapVisible,
	}, nil
}

type fakeDrafts struct {
	drafts map[string]observation.Draft
	err    error
}

func (d fakeDrafts) Read(_ context.Context, userID string) (observation.Draft, bool, error) {
	if d.err != nil {
		return observation.Draft{}, false, d.err
	}
	dr, ok := d.drafts[userID]
	return dr, ok, nil
}

func newTestManager(t *testing.T, fetcher CatalogFetcher, confirmer Confirmer, drafts DraftReader, opts ...ManagerOption) *Manager {
	t.Helper()
	m := NewManager(fetcher, confirmer, drafts, append([]ManagerOption{WithLogger(quiet)}, opts...)...)
	t.Cleanup(m.Close)
	return m
}

func TestSessionFullFlow(t *testing.T) {
	t.Parallel()
	t.Attr("component", "pipeline")

	fetcher := newFakeFetcher()
	confirmer := &fakeConfirmer{}
	m := newTestManager(t, fetcher, confirmer, fakeDrafts{})
	ctx := context.Background()

	s, err := m.Restart(ctx, "u-1", draft)
	require.NoError(t, err)
	assert.Equal(t, Reviewing{Draft: draft}, s.State())

	_, err = s.Dispatch(ctx, CategoryChosen{Category: observation.CategoryFauna})
	require.NoError(t, err)
	s.Wait()

	sel, ok := s.State().(CategorySelected)
	require.True(t, ok)
	assert.False(t, sel.Loading)
	assert.Equal(t, faunaList, sel.Catalog.Records())

	_, err = s.Dispatch(ctx, SpeciesTapped{Species: redFox})
	require.NoError(t, err)

	final, err := s.Dispatch(ctx, ConfirmPressed{})
	require.NoError(t, err)
	confirmed, ok := final.(Confirmed)
	require.True(t, ok)
	assert.Equal(t, "Vulpes vulpes", confirmed.Entry.ScientificName)
	assert.Equal(t, 1, confirmer.calls)

	_, err = s.Dispatch(ctx, ConfirmPressed{})
	require.ErrorIs(t, err, observation.ErrInvalidTransition)
	assert.Equal(t, 1, confirmer.calls)
}

func TestSessionLoadingUntilFetchResolves(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	gate := make(chan struct{})
	fetcher.block[observation.CategoryFauna] = gate
	m := newTestManager(t, fetcher, &fakeConfirmer{}, fakeDrafts{})
	ctx := context.Background()

	s, err := m.Restart(ctx, "u-1", draft)
	require.NoError(t, err)

	st, err := s.Dispatch(ctx, CategoryChosen{Category: observation.CategoryFauna})
	require.NoError(t, err)
	assert.True(t, st.(CategorySelected).Loading)
	assert.True(t, s.State().(CategorySelected).Loading)

	close(gate)
	s.Wait()
	assert.False(t, s.State().(CategorySelected).Loading)
}

func TestSessionCategorySwitchIgnoresStaleFetch(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.block[observation.CategoryFauna] = make(chan struct{}) // never released
	m := newTestManager(t, fetcher, &fakeConfirmer{}, fakeDrafts{})
	ctx := context.Background()

	s, err := m.Restart(ctx, "u-1", draft)
	require.NoError(t, err)

	_, err = s.Dispatch(ctx, CategoryChosen{Category: observation.CategoryFauna})
	require.NoError(t, err)
	_, err = s.Dispatch(ctx, CategoryChosen{Category: observation.CategoryFlora})
	require.NoError(t, err)
	s.Wait()

	sel := s.State().(CategorySelected)
	assert.Equal(t, observation.CategoryFlora, sel.Category)
	assert.Equal(t, uint64(2), sel.FetchSeq)
	assert.False(t, sel.Loading)
	assert.Equal(t, floraList, sel.Catalog.Records())

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	// Both fetches run; their start order is up to the scheduler.
	assert.ElementsMatch(t, []observation.Category{observation.CategoryFauna, observation.CategoryFlora}, fetcher.calls)
}

func TestSessionConfirmFailure(t *testing.T) {
	t.Parallel()

	confirmer := &fakeConfirmer{err: observation.ErrNoActiveDraft}
	m := newTestManager(t, newFakeFetcher(), confirmer, fakeDrafts{})
	ctx := context.Background()

	s, err := m.Restart(ctx, "u-1", draft)
	require.NoError(t, err)
	_, err = s.Dispatch(ctx, CategoryChosen{Category: observation.CategoryFauna})
	require.NoError(t, err)
	s.Wait()
	_, err = s.Dispatch(ctx, SpeciesTapped{Species: badger})
	require.NoError(t, err)

	st, err := s.Dispatch(ctx, ConfirmPressed{})
	require.ErrorIs(t, err, observation.ErrNoActiveDraft)
	picked := st.(SpeciesPicked)
	assert.Equal(t, badger, picked.Species)
	assert.ErrorIs(t, picked.LastError, observation.ErrNoActiveDraft)
}

func TestManagerResumesFromStagedDraft(t *testing.T) {
	t.Parallel()

	drafts := fakeDrafts{drafts: map[string]observation.Draft{"u-1": draft}}
	m := newTestManager(t, newFakeFetcher(), &fakeConfirmer{}, drafts)
	ctx := context.Background()

	resumed, err := m.Session(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, Reviewing{Draft: draft}, resumed.State())

	fresh, err := m.Session(ctx, "u-2")
	require.NoError(t, err)
	assert.Equal(t, Capturing{}, fresh.State())

	again, err := m.Session(ctx, "u-1")
	require.NoError(t, err)
	assert.Same(t, resumed, again)
	assert.Equal(t, 2, m.Len())

	m.Drop("u-1")
	assert.Equal(t, 1, m.Len())
}

func TestManagerSessionReadError(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, newFakeFetcher(), &fakeConfirmer{}, fakeDrafts{err: assert.AnError})

	_, err := m.Session(context.Background(), "u-1")
	require.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, m.Len())
}

func TestManagerExpiresIdleSessions(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, newFakeFetcher(), &fakeConfirmer{}, fakeDrafts{}, WithSessionTTL(30*time.Millisecond))
	ctx := context.Background()

	first, err := m.Session(ctx, "u-1")
	require.NoError(t, err)

	// Every lookup refreshes the TTL, so stay away until it has lapsed.
	time.Sleep(100 * time.Millisecond)

	next, err := m.Session(ctx, "u-1")
	require.NoError(t, err)
	assert.NotSame(t, first, next)
}

func TestManagerRestartReplacesSession(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.block[observation.CategoryFauna] = make(chan struct{})
	m := newTestManager(t, fetcher, &fakeConfirmer{}, fakeDrafts{})
	ctx := context.Background()

	old, err := m.Restart(ctx, "u-1", draft)
	require.NoError(t, err)
	_, err = old.Dispatch(ctx, CategoryChosen{Category: observation.CategoryFauna})
	require.NoError(t, err)

	second := draft
	second.ImageRef = "photos/u-1/second.jpg"
	next, err := m.Restart(ctx, "u-1", second)
	require.NoError(t, err)

	// Replacing the session cancelled the blocked fetch.
	old.Wait()
	assert.NotSame(t, old, next)
	assert.Equal(t, Reviewing{Draft: second}, next.State())
	assert.Equal(t, 1, m.Len())
}
