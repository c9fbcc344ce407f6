package committer

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/fieldlog/internal/catalog"
	"github.com/tphakala/fieldlog/internal/conf"
	"github.com/tphakala/fieldlog/internal/datastore"
	"github.com/tphakala/fieldlog/internal/drafts"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/observation"
)

var quiet = logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)

var (
	redFox    = observation.SpeciesRecord{CommonName: "Red Fox", ScientificName: "Vulpes vulpes", Category: observation.CategoryFauna}
	dandelion = observation.SpeciesRecord{CommonName: "Common Dandelion", ScientificName: "Taraxacum officinale", Category: observation.CategoryFlora}
	madison   = &observation.Location{Latitude: 43.0731, Longitude: -89.4012}
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// faultyRepo injects failures into selected store calls.
type faultyRepo struct {
	datastore.Interface
	failCommit   error
	hangCommit   bool
	failClear    error
	failFinalize error

	afterInsertPending func(ctx context.Context)
}

func (f *faultyRepo) InsertPendingEntry(ctx context.Context, entry observation.LogEntry) error {
	if err := f.Interface.InsertPendingEntry(ctx, entry); err != nil {
		return err
	}
	if f.afterInsertPending != nil {
		f.afterInsertPending(ctx)
	}
	return nil
}

func (f *faultyRepo) CommitEntry(ctx context.Context, entry observation.LogEntry, sighting observation.ActiveSighting, fingerprint string) error {
	if f.hangCommit {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.failCommit != nil {
		return f.failCommit
	}
	return f.Interface.CommitEntry(ctx, entry, sighting, fingerprint)
}

func (f *faultyRepo) DeleteDraftIfMatches(ctx context.Context, userID, fingerprint string) (bool, error) {
	if f.failClear != nil {
		return false, f.failClear
	}
	return f.Interface.DeleteDraftIfMatches(ctx, userID, fingerprint)
}

func (f *faultyRepo) FinalizeEntry(ctx context.Context, entryID string, sighting observation.ActiveSighting) error {
	if f.failFinalize != nil {
		return f.failFinalize
	}
	return f.Interface.FinalizeEntry(ctx, entryID, sighting)
}

type recordingNotifier struct {
	mu      sync.Mutex
	entries []observation.LogEntry
	err     error
}

func (n *recordingNotifier) NotifyEntry(_ context.Context, entry observation.LogEntry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, entry)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.entries)
}

type fixture struct {
	repo      *faultyRepo
	drafts    *drafts.Store
	committer *Committer
	clock     *testClock
	notifier  *recordingNotifier
}

func newFixture(t *testing.T, mode string) *fixture {
	t.Helper()

	store := datastore.NewSQLiteStore(filepath.Join(t.TempDir(), "fieldlog.db"), quiet)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	_, err := store.SeedCatalog(context.Background(), []observation.SpeciesRecord{redFox, dandelion})
	require.NoError(t, err)

	repo := &faultyRepo{Interface: store}
	clock := &testClock{t: time.Date(2026, 6, 12, 18, 45, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	locks := drafts.NewKeyLock()

	ids := 0
	c := New(repo, catalog.New(repo, catalog.WithLogger(quiet)),
		WithMode(mode),
		WithKeyLock(locks),
		WithClock(clock.Now),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("entry-%d", ids)
		}),
		WithSightingDecay(time.Hour),
		WithStoreTimeout(5*time.Second),
		WithNotifier(notifier),
		WithLogger(quiet))

	return &fixture{
		repo:      repo,
		drafts:    drafts.New(repo, drafts.WithKeyLock(locks), drafts.WithLogger(quiet)),
		committer: c,
		clock:     clock,
		notifier:  notifier,
	}
}

func (f *fixture) stage(t *testing.T, userID, imageRef string, loc *observation.Location) observation.Draft {
	t.Helper()
	d, err := f.drafts.Stage(context.Background(), userID, observation.Draft{
		ImageRef:        imageRef,
		ObservationText: "seen at dusk",
		CapturedAt:      f.clock.Now(),
		Location:        loc,
	})
	require.NoError(t, err)
	return d
}

func (f *fixture) entryCount(t *testing.T, userID string, category observation.Category) int64 {
	t.Helper()
	n, err := f.repo.CountEntries(context.Background(), userID, category)
	require.NoError(t, err)
	return n
}

func (f *fixture) draftPresent(t *testing.T, userID string) bool {
	t.Helper()
	_, found, err := f.drafts.Read(context.Background(), userID)
	require.NoError(t, err)
	return found
}

func TestConfirmRedFox(t *testing.T) {
	t.Parallel()
	t.Attr("scenario", "red-fox")

	for _, mode := range []string{conf.CommitModeTransaction, conf.CommitModeTwoPhase} {
		t.Run(mode, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, mode)
			ctx := context.Background()
			draft := f.stage(t, "u-1", "photos/u-1/fox.jpg", madison)

			entry, err := f.committer.Confirm(ctx, "u-1", observation.CategoryFauna,
				observation.SpeciesRecord{CommonName: "Red Fox", ScientificName: "Vulpes vulpes"})
			require.NoError(t, err)

			assert.Equal(t, "logs/u-1/Fauna/entry-1", entry.Key())
			assert.Equal(t, "Red Fox", entry.CommonName)
			assert.Equal(t, "Vulpes vulpes", entry.ScientificName)
			assert.Equal(t, "seen at dusk", entry.FieldNotes)
			assert.Equal(t, "photos/u-1/fox.jpg", entry.PhotoRef)
			assert.Equal(t, "u-1", entry.PhotoAuthor)
			assert.Equal(t, draft.CapturedAt, entry.Timestamp)
			assert.Equal(t, *madison, entry.Location)
			assert.Equal(t, observation.StatusMapVisible, entry.Status)
			assert.Empty(t, entry.DraftToken)

			listed, err := f.repo.ListEntries(ctx, "u-1", observation.CategoryFauna)
			require.NoError(t, err)
			require.Len(t, listed, 1)
			assert.Equal(t, entry.ID, listed[0].ID)
			assert.Equal(t, observation.StatusMapVisible, listed[0].Status)
			assert.False(t, f.draftPresent(t, "u-1"))

			sightings, err := f.repo.ActiveSightings(ctx, f.clock.Now())
			require.NoError(t, err)
			require.Len(t, sightings, 1)
			assert.Equal(t, entry.ID, sightings[0].EntryID)
			assert.Equal(t, 1, f.notifier.count())

			_, err = f.committer.Confirm(ctx, "u-1", observation.CategoryFauna, redFox)
			require.ErrorIs(t, err, observation.ErrNoActiveDraft)
			assert.Equal(t, int64(1), f.entryCount(t, "u-1", observation.CategoryFauna))
		})
	}
}

func TestConfirmWithoutDraftWritesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, conf.CommitModeTransaction)

	_, err := f.committer.Confirm(context.Background(), "u-1", observation.CategoryFauna, redFox)
	require.ErrorIs(t, err, observation.ErrNoActiveDraft)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	assert.Zero(t, f.entryCount(t, "u-1", observation.CategoryFauna))
	assert.Zero(t, f.notifier.count())
}

func TestConfirmDraftWithoutLocation(t *testing.T) {
	t.Parallel()
	t.Attr("scenario", "permission-denied")

	f := newFixture(t, conf.CommitModeTransaction)
	f.stage(t, "u-1", "photos/u-1/owl.jpg", nil)

	_, err := f.committer.Confirm(context.Background(), "u-1", observation.CategoryFauna, redFox)
	require.ErrorIs(t, err, observation.ErrNoActiveDraft)

	assert.Zero(t, f.entryCount(t, "u-1", observation.CategoryFauna))
	assert.True(t, f.draftPresent(t, "u-1"), "the unlocated draft stays staged")
}

func TestConfirmValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		category observation.Category
		species  observation.SpeciesRecord
		notFound bool
	}{
		{"zero species", observation.CategoryFauna, observation.SpeciesRecord{}, false},
		{"category mismatch", observation.CategoryFauna, dandelion, false},
		{"unknown category", observation.Category("Fungi"), redFox, false},
		{"species not in catalog", observation.CategoryFauna,
			observation.SpeciesRecord{CommonName: "Gray Wolf", ScientificName: "Canis lupus"}, true},
		{"species filed under other category", observation.CategoryFlora,
			observation.SpeciesRecord{ScientificName: "Vulpes vulpes"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, conf.CommitModeTransaction)
			f.stage(t, "u-1", "photos/u-1/a.jpg", madison)

			_, err := f.committer.Confirm(context.Background(), "u-1", tt.category, tt.species)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
			assert.Equal(t, tt.notFound, errors.Is(err, observation.ErrSpeciesNotFound))
			assert.NotErrorIs(t, err, observation.ErrWriteFailed)

			assert.Zero(t, f.entryCount(t, "u-1", observation.CategoryFauna))
			assert.Zero(t, f.entryCount(t, "u-1", observation.CategoryFlora))
			assert.True(t, f.draftPresent(t, "u-1"))
		})
	}
}

func TestSecondCaptureIsTheOneConfirmed(t *testing.T) {
	t.Parallel()
	t.Attr("scenario", "two-captures")

	f := newFixture(t, conf.CommitModeTransaction)
	f.stage(t, "u-1", "photos/u-1/first.jpg", madison)
	f.clock.Advance(time.Minute)
	f.stage(t, "u-1", "photos/u-1/second.jpg", madison)

	entry, err := f.committer.Confirm(context.Background(), "u-1", observation.CategoryFlora, dandelion)
	require.NoError(t, err)
	assert.Equal(t, "photos/u-1/second.jpg", entry.PhotoRef)
	assert.Equal(t, int64(1), f.entryCount(t, "u-1", observation.CategoryFlora))
}

func TestWriteFailureLeavesDraft(t *testing.T) {
	t.Parallel()

	f := newFixture(t, conf.CommitModeTransaction)
	draft := f.stage(t, "u-1", "photos/u-1/a.jpg", madison)
	f.repo.failCommit = assert.AnError

	_, err := f.committer.Confirm(context.Background(), "u-1", observation.CategoryFauna, redFox)
	require.ErrorIs(t, err, observation.ErrWriteFailed)
	assert.NotErrorIs(t, err, observation.ErrPartialCommit)

	got, found, err := f.drafts.Read(context.Background(), "u-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, draft, got)
	assert.Zero(t, f.entryCount(t, "u-1", observation.CategoryFauna))
	assert.Zero(t, f.notifier.count())
}

func TestCommitTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, conf.CommitModeTransaction)
	f.committer.timeout = 200 * time.Millisecond
	f.stage(t, "u-1", "photos/u-1/a.jpg", madison)
	f.repo.hangCommit = true

	_, err := f.committer.Confirm(context.Background(), "u-1", observation.CategoryFauna, redFox)
	require.ErrorIs(t, err, observation.ErrTimedOut)
	assert.ErrorIs(t, err, observation.ErrWriteFailed)
	assert.True(t, errors.IsCategory(err, errors.CategoryTimeout))
}

func TestTwoPhaseClearFailureThenReconcile(t *testing.T) {
	t.Parallel()

	f := newFixture(t, conf.CommitModeTwoPhase)
	ctx := context.Background()
	f.stage(t, "u-1", "photos/u-1/a.jpg", madison)
	f.repo.failClear = assert.AnError

	_, err := f.committer.Confirm(ctx, "u-1", observation.CategoryFauna, redFox)
	require.ErrorIs(t, err, observation.ErrPartialCommit)

	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, errors.PriorityCritical, ee.GetPriority())

	assert.Equal(t, int64(1), f.entryCount(t, "u-1", observation.CategoryFauna))
	listed, err := f.repo.ListEntries(ctx, "u-1", observation.CategoryFauna)
	require.NoError(t, err)
	assert.Empty(t, listed, "committing entries are not listed")
	assert.True(t, f.draftPresent(t, "u-1"))

	f.repo.failClear = nil

	// Still inside the grace period.
	stats, err := f.committer.Reconcile(ctx, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)

	f.clock.Advance(2 * time.Minute)
	stats, err = f.committer.Reconcile(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Finalized)
	assert.Equal(t, 1, stats.DraftsCleared)
	assert.Zero(t, stats.Failed)

	listed, err = f.repo.ListEntries(ctx, "u-1", observation.CategoryFauna)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, observation.StatusMapVisible, listed[0].Status)
	assert.False(t, f.draftPresent(t, "u-1"))
	assert.Equal(t, 1, f.notifier.count())
}

func TestTwoPhaseFinalizeFailureThenReconcile(t *testing.T) {
	t.Parallel()

	f := newFixture(t, conf.CommitModeTwoPhase)
	ctx := context.Background()
	f.stage(t, "u-1", "photos/u-1/a.jpg", madison)
	f.repo.failFinalize = assert.AnError

	_, err := f.committer.Confirm(ctx, "u-1", observation.CategoryFauna, redFox)
	require.ErrorIs(t, err, observation.ErrPartialCommit)
	assert.False(t, f.draftPresent(t, "u-1"), "the clear already happened")

	f.repo.failFinalize = nil
	f.clock.Advance(5 * time.Minute)

	stats, err := f.committer.Reconcile(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Finalized)
	assert.Zero(t, stats.DraftsCleared)
}

func TestTwoPhaseFinalizedBySweepFromAnotherProcess(t *testing.T) {
	t.Parallel()

	f := newFixture(t, conf.CommitModeTwoPhase)
	ctx := context.Background()
	f.stage(t, "u-1", "photos/u-1/a.jpg", madison)

	// A second process shares the store but not the lock table, and its
	// clock is far enough ahead for the pending entry to be past grace.
	later := f.clock.Now().Add(time.Minute)
	other := New(f.repo.Interface, catalog.New(f.repo.Interface, catalog.WithLogger(quiet)),
		WithMode(conf.CommitModeTwoPhase),
		WithKeyLock(drafts.NewKeyLock()),
		WithClock(func() time.Time { return later }),
		WithSightingDecay(time.Hour),
		WithNotifier(f.notifier),
		WithLogger(quiet))

	var swept ReconcileStats
	f.repo.afterInsertPending = func(ctx context.Context) {
		var err error
		swept, err = other.Reconcile(ctx, 0)
		assert.NoError(t, err)
	}

	entry, err := f.committer.Confirm(ctx, "u-1", observation.CategoryFauna, redFox)
	require.NoError(t, err)
	assert.Equal(t, "entry-1", entry.ID)
	assert.Equal(t, 1, swept.Finalized)
	assert.Equal(t, 1, swept.DraftsCleared)

	listed, err := f.repo.ListEntries(ctx, "u-1", observation.CategoryFauna)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, observation.StatusMapVisible, listed[0].Status)
	assert.False(t, f.draftPresent(t, "u-1"))
	assert.Equal(t, 1, f.notifier.count(), "the sweep announced the entry")
}

func TestReconcileKeepsNewerCapture(t *testing.T) {
	t.Parallel()

	f := newFixture(t, conf.CommitModeTwoPhase)
	ctx := context.Background()
	f.stage(t, "u-1", "photos/u-1/a.jpg", madison)
	f.repo.failClear = assert.AnError

	_, err := f.committer.Confirm(ctx, "u-1", observation.CategoryFauna, redFox)
	require.ErrorIs(t, err, observation.ErrPartialCommit)
	f.repo.failClear = nil

	f.clock.Advance(time.Minute)
	newer := f.stage(t, "u-1", "photos/u-1/b.jpg", nil)

	f.clock.Advance(5 * time.Minute)
	stats, err := f.committer.Reconcile(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Finalized)
	assert.Zero(t, stats.DraftsCleared)

	got, found, err := f.drafts.Read(ctx, "u-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, newer, got)
}

func TestReconcilePurgesExpiredSightings(t *testing.T) {
	t.Parallel()

	f := newFixture(t, conf.CommitModeTransaction)
	ctx := context.Background()
	f.stage(t, "u-1", "photos/u-1/a.jpg", madison)
	_, err := f.committer.Confirm(ctx, "u-1", observation.CategoryFauna, redFox)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	stats, err := f.committer.Reconcile(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.SightingsPurged)

	sightings, err := f.repo.ActiveSightings(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, sightings)
}

func TestNotifierFailureDoesNotFailConfirm(t *testing.T) {
	t.Parallel()

	f := newFixture(t, conf.CommitModeTransaction)
	f.notifier.err = assert.AnError
	f.stage(t, "u-1", "photos/u-1/a.jpg", madison)

	_, err := f.committer.Confirm(context.Background(), "u-1", observation.CategoryFauna, redFox)
	require.NoError(t, err)
	assert.Equal(t, 1, f.notifier.count())
}

func TestConcurrentConfirmsPromoteOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, conf.CommitModeTransaction)
	f.stage(t, "u-1", "photos/u-1/a.jpg", madison)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		noDraft   int
	)
	for range 4 {
		wg.Go(func() {
			_, err := f.committer.Confirm(context.Background(), "u-1", observation.CategoryFauna, redFox)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, observation.ErrNoActiveDraft):
				noDraft++
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 3, noDraft)
	assert.Equal(t, int64(1), f.entryCount(t, "u-1", observation.CategoryFauna))
}
