// Package committer promotes a user's staged draft into a permanent log
// entry. A confirmation either writes exactly one final entry and clears the
// draft, or leaves both untouched. In two-phase mode an interrupted commit is
// left in committing state and completed later by Reconcile.
package committer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tphakala/fieldlog/internal/conf"
	"github.com/tphakala/fieldlog/internal/datastore"
	"github.com/tphakala/fieldlog/internal/drafts"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/observability/metrics"
	"github.com/tphakala/fieldlog/internal/observation"
)

// Repository is the part of the datastore the committer writes through.
type Repository interface {
	datastore.DraftRepository
	datastore.LogRepository
}

// SpeciesFinder resolves a species in the catalog. catalog.Lookup implements it.
type SpeciesFinder interface {
	Find(ctx context.Context, category observation.Category, scientificName string) (observation.SpeciesRecord, error)
}

// Notifier is told about every entry that became map-visible.
type Notifier interface {
	NotifyEntry(ctx context.Context, entry observation.LogEntry) error
}

// Committer runs confirmations and reconciliation sweeps.
type Committer struct {
	repo      Repository
	species   SpeciesFinder
	locks     *drafts.KeyLock
	mode      string
	timeout   time.Duration
	decay     time.Duration
	now       func() time.Time
	newID     func() string
	notifiers []Notifier
	log       logger.Logger
	metrics   metrics.Recorder
}

// Option configures a Committer.
type Option func(*Committer)

// WithMode selects conf.CommitModeTransaction or conf.CommitModeTwoPhase.
func WithMode(mode string) Option {
	return func(c *Committer) { c.mode = mode }
}

// WithStoreTimeout bounds every store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(c *Committer) { c.timeout = d }
}

// WithSightingDecay sets how long an active sighting stays on the map.
func WithSightingDecay(d time.Duration) Option {
	return func(c *Committer) { c.decay = d }
}

// WithKeyLock shares the draft store's per-user lock.
func WithKeyLock(k *drafts.KeyLock) Option {
	return func(c *Committer) { c.locks = k }
}

// WithNotifier adds n to the notifiers told about new sightings.
func WithNotifier(n Notifier) Option {
	return func(c *Committer) { c.notifiers = append(c.notifiers, n) }
}

func WithClock(now func() time.Time) Option {
	return func(c *Committer) { c.now = now }
}

// WithIDGenerator replaces the UUIDv4 entry id source.
func WithIDGenerator(fn func() string) Option {
	return func(c *Committer) { c.newID = fn }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Committer) { c.log = l }
}

func WithRecorder(r metrics.Recorder) Option {
	return func(c *Committer) { c.metrics = r }
}

// New creates a Committer.
func New(repo Repository, species SpeciesFinder, opts ...Option) *Committer {
	c := &Committer{
		repo:    repo,
		species: species,
		mode:    conf.CommitModeTransaction,
		timeout: 10 * time.Second,
		decay:   time.Hour,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.locks == nil {
		c.locks = drafts.NewKeyLock()
	}
	if c.log == nil {
		c.log = logger.Global().Module("committer")
	}
	c.metrics = metrics.OrNop(c.metrics)
	return c
}

// Mode returns the configured commit mode.
func (c *Committer) Mode() string {
	return c.mode
}

// Confirm promotes userID's draft into a log entry filed under category as
// species. It fails with ErrNoActiveDraft when the user has no draft or the
// draft has no location, ErrWriteFailed when nothing could be written and
// ErrPartialCommit when a two-phase commit stopped half way.
func (c *Committer) Confirm(ctx context.Context, userID string, category observation.Category, species observation.SpeciesRecord) (entry observation.LogEntry, err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordDuration(metrics.OpConfirm, time.Since(start).Seconds())
		if err != nil {
			c.metrics.RecordOperation(metrics.OpConfirm, metrics.StatusError)
			c.metrics.RecordError(metrics.OpConfirm, errorType(err))
			return
		}
		c.metrics.RecordOperation(metrics.OpConfirm, metrics.StatusSuccess)
	}()

	record, err := c.resolveSpecies(ctx, userID, category, species)
	if err != nil {
		return observation.LogEntry{}, err
	}

	unlock := c.locks.Lock(userID)
	entry, notify, err := c.confirmLocked(ctx, userID, category, record)
	unlock()
	if err != nil {
		return observation.LogEntry{}, err
	}

	c.log.Info("observation confirmed",
		logger.String("user_id", userID),
		logger.String("entry_id", entry.ID),
		logger.String("category", string(category)),
		logger.String("scientific_name", entry.ScientificName),
		logger.String("mode", c.mode))

	if notify {
		c.notify(ctx, entry)
	}
	return entry, nil
}

// resolveSpecies validates the request and returns the catalog's own record.
func (c *Committer) resolveSpecies(ctx context.Context, userID string, category observation.Category, species observation.SpeciesRecord) (observation.SpeciesRecord, error) {
	switch {
	case strings.TrimSpace(userID) == "":
		return observation.SpeciesRecord{}, validationError(fmt.Errorf("user id must not be empty"), userID)
	case !category.Valid():
		return observation.SpeciesRecord{}, validationError(fmt.Errorf("%w: %q", observation.ErrInvalidCategory, category), userID)
	case species.IsZero() || strings.TrimSpace(species.ScientificName) == "":
		return observation.SpeciesRecord{}, validationError(fmt.Errorf("no species selected"), userID)
	case species.Category != "" && species.Category != category:
		return observation.SpeciesRecord{}, validationError(
			fmt.Errorf("species %q belongs to %s, not %s", species.ScientificName, species.Category, category), userID)
	}

	record, err := c.species.Find(ctx, category, species.ScientificName)
	if err != nil {
		if errors.Is(err, observation.ErrSpeciesNotFound) {
			return observation.SpeciesRecord{}, validationError(err, userID)
		}
		return observation.SpeciesRecord{}, err
	}
	return record, nil
}

// confirmLocked reports whether the caller still has to announce the entry.
// It does not when a concurrent reconcile sweep finalized it first.
func (c *Committer) confirmLocked(ctx context.Context, userID string, category observation.Category, species observation.SpeciesRecord) (observation.LogEntry, bool, error) {
	type slot struct {
		draft observation.Draft
		found bool
	}
	s, err := observation.CallSettled(ctx, c.timeout, func(ctx context.Context) (slot, error) {
		d, found, err := c.repo.GetDraft(ctx, userID)
		return slot{d, found}, err
	})
	if err != nil {
		return observation.LogEntry{}, false, c.commitError(observation.ErrWriteFailed, err, "read_draft", userID, "")
	}
	if !s.found || !s.draft.Eligible() {
		return observation.LogEntry{}, false, errors.New(observation.ErrNoActiveDraft).
			Component("committer").
			Category(errors.CategoryState).
			Context("user_id", userID).
			Context("draft_present", s.found).
			Build()
	}

	now := c.now().UTC()
	entry, err := observation.NewLogEntry(c.newID(), userID, category, s.draft, species, now)
	if err != nil {
		return observation.LogEntry{}, false, c.commitError(observation.ErrWriteFailed, err, "build_entry", userID, "")
	}
	sighting := observation.NewActiveSighting(entry, now, c.decay)
	fingerprint := s.draft.Fingerprint()

	if c.mode == conf.CommitModeTwoPhase {
		return c.commitTwoPhase(ctx, entry, sighting, fingerprint)
	}

	err = observation.RunSettled(ctx, c.timeout, func(ctx context.Context) error {
		return c.repo.CommitEntry(ctx, entry, sighting, fingerprint)
	})
	if err != nil {
		return observation.LogEntry{}, false, c.commitError(observation.ErrWriteFailed, err, "commit_entry", userID, entry.ID)
	}
	return entry, true, nil
}

// commitTwoPhase writes the entry as committing, clears the draft and then
// finalizes the entry. A failure after the first write leaves the committing
// entry for Reconcile. A sweep from another process may finalize the entry
// between the phases; that counts as success and the sweep has already
// notified.
func (c *Committer) commitTwoPhase(ctx context.Context, entry observation.LogEntry, sighting observation.ActiveSighting, fingerprint string) (observation.LogEntry, bool, error) {
	pending := entry
	pending.Status = observation.StatusCommitting
	pending.DraftToken = fingerprint

	err := observation.RunSettled(ctx, c.timeout, func(ctx context.Context) error {
		return c.repo.InsertPendingEntry(ctx, pending)
	})
	if err != nil {
		return observation.LogEntry{}, false, c.commitError(observation.ErrWriteFailed, err, "insert_pending_entry", entry.UserID, entry.ID)
	}

	cleared, err := observation.CallSettled(ctx, c.timeout, func(ctx context.Context) (bool, error) {
		return c.repo.DeleteDraftIfMatches(ctx, entry.UserID, fingerprint)
	})
	if err != nil {
		return observation.LogEntry{}, false, c.commitError(observation.ErrPartialCommit, err, "clear_draft", entry.UserID, entry.ID)
	}
	if !cleared {
		c.log.Warn("draft replaced during two-phase commit",
			logger.String("user_id", entry.UserID),
			logger.String("entry_id", entry.ID))
	}

	err = observation.RunSettled(ctx, c.timeout, func(ctx context.Context) error {
		return c.repo.FinalizeEntry(ctx, entry.ID, sighting)
	})
	if errors.Is(err, datastore.ErrEntryNotPending) {
		c.log.Info("entry finalized by reconcile sweep",
			logger.String("user_id", entry.UserID),
			logger.String("entry_id", entry.ID))
		return entry, false, nil
	}
	if err != nil {
		return observation.LogEntry{}, false, c.commitError(observation.ErrPartialCommit, err, "finalize_entry", entry.UserID, entry.ID)
	}
	return entry, true, nil
}

func (c *Committer) notify(ctx context.Context, entry observation.LogEntry) {
	for _, n := range c.notifiers {
		if err := n.NotifyEntry(ctx, entry); err != nil {
			c.log.Warn("sighting notification failed",
				logger.String("entry_id", entry.ID),
				logger.Error(err))
		}
	}
}

// commitError wraps cause in kind. Timeouts keep ErrTimedOut in the chain.
func (c *Committer) commitError(kind, cause error, op, userID, entryID string) error {
	category := errors.CategoryCommit
	if errors.Is(cause, observation.ErrTimedOut) {
		category = errors.CategoryTimeout
	}
	priority := errors.PriorityHigh
	if kind == observation.ErrPartialCommit {
		priority = errors.PriorityCritical
	}

	builder := errors.New(fmt.Errorf("%w: %w", kind, cause)).
		Component("committer").
		Category(category).
		Priority(priority).
		Context("operation", op).
		Context("user_id", userID).
		Context("mode", c.mode)
	if entryID != "" {
		builder = builder.Context("entry_id", entryID)
	}

	c.log.Error("confirmation failed",
		logger.String("operation", op),
		logger.String("user_id", userID),
		logger.String("entry_id", entryID),
		logger.Error(cause))
	return builder.Build()
}

func validationError(err error, userID string) error {
	return errors.New(err).
		Component("committer").
		Category(errors.CategoryValidation).
		Context("user_id", userID).
		Build()
}

// errorType maps a confirmation error to its metrics label.
func errorType(err error) string {
	switch {
	case errors.Is(err, observation.ErrNoActiveDraft):
		return metrics.ErrorTypeNoDraft
	case errors.Is(err, observation.ErrPartialCommit):
		return metrics.ErrorTypePartial
	case errors.Is(err, observation.ErrTimedOut):
		return metrics.ErrorTypeTimeout
	case errors.Is(err, observation.ErrWriteFailed):
		return metrics.ErrorTypeWrite
	case errors.Is(err, observation.ErrCatalogFetchFailed):
		return metrics.ErrorTypeFetch
	default:
		return metrics.ErrorTypeValidation
	}
}
