// Package drafts owns the single draft slot each user has. Every mutation of
// a slot goes through Store, which serializes writers per user.
package drafts

import (
	"context"
	"strings"
	"time"

	"github.com/tphakala/fieldlog/internal/datastore"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/observation"
)

// Store is the accessor for per-user drafts.
type Store struct {
	repo    datastore.DraftRepository
	locks   *KeyLock
	timeout time.Duration
	log     logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTimeout bounds each store call.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithKeyLock shares an existing per-user lock, so other writers of the
// draft slot serialize with this store.
func WithKeyLock(k *KeyLock) Option {
	return func(s *Store) { s.locks = k }
}

// New creates a draft store over repo.
func New(repo datastore.DraftRepository, opts ...Option) *Store {
	s := &Store{repo: repo, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	if s.locks == nil {
		s.locks = NewKeyLock()
	}
	if s.log == nil {
		s.log = logger.Global().Module("drafts")
	}
	return s
}

// Locks returns the per-user lock guarding draft slots.
func (s *Store) Locks() *KeyLock {
	return s.locks
}

// Stage replaces the user's draft with draft and returns the stored value.
// A later Stage always wins over an earlier one.
func (s *Store) Stage(ctx context.Context, userID string, draft observation.Draft) (observation.Draft, error) {
	if err := validateUser(userID); err != nil {
		return observation.Draft{}, err
	}
	if draft.ImageRef == "" {
		return observation.Draft{}, errors.New(observation.ErrCaptureUnavailable).
			Component("drafts").
			Category(errors.CategoryValidation).
			Context("user_id", userID).
			Build()
	}

	draft = draft.Normalize()
	unlock := s.locks.Lock(userID)
	defer unlock()

	err := observation.RunSettled(ctx, s.timeout, func(ctx context.Context) error {
		return s.repo.SaveDraft(ctx, userID, draft)
	})
	if err != nil {
		return observation.Draft{}, s.storeError(err, "stage", userID)
	}

	s.log.Debug("draft staged",
		logger.String("user_id", userID),
		logger.String("image_ref", draft.ImageRef),
		logger.Bool("has_location", draft.HasLocation()))
	return draft, nil
}

// Read returns the user's draft; found is false when the slot is empty.
func (s *Store) Read(ctx context.Context, userID string) (observation.Draft, bool, error) {
	if err := validateUser(userID); err != nil {
		return observation.Draft{}, false, err
	}

	type result struct {
		draft observation.Draft
		found bool
	}
	r, err := observation.CallWithTimeout(ctx, s.timeout, func(ctx context.Context) (result, error) {
		d, found, err := s.repo.GetDraft(ctx, userID)
		return result{d, found}, err
	})
	if err != nil {
		return observation.Draft{}, false, s.storeError(err, "read", userID)
	}
	return r.draft, r.found, nil
}

// Clear empties the user's slot. Clearing an empty slot is a no-op.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if err := validateUser(userID); err != nil {
		return err
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	err := observation.RunSettled(ctx, s.timeout, func(ctx context.Context) error {
		return s.repo.DeleteDraft(ctx, userID)
	})
	if err != nil {
		return s.storeError(err, "clear", userID)
	}
	s.log.Debug("draft cleared", logger.String("user_id", userID))
	return nil
}

func (s *Store) storeError(err error, op, userID string) error {
	category := errors.CategoryDraft
	if errors.Is(err, observation.ErrTimedOut) {
		category = errors.CategoryTimeout
	}
	return errors.New(err).
		Component("drafts").
		Category(category).
		Context("operation", op).
		Context("user_id", userID).
		Build()
}

func validateUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.Newf("user id must not be empty").
			Component("drafts").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}
