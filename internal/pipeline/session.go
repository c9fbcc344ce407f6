package pipeline

import (
	"context"
	"sync"

	"github.com/tphakala/fieldlog/internal/catalog"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/observability/metrics"
	"github.com/tphakala/fieldlog/internal/observation"
)

// CatalogFetcher loads a category catalog. catalog.Lookup implements it.
type CatalogFetcher interface {
	Fetch(ctx context.Context, category observation.Category) catalog.Result
}

// Confirmer promotes a draft. committer.Committer implements it.
type Confirmer interface {
	Confirm(ctx context.Context, userID string, category observation.Category, species observation.SpeciesRecord) (observation.LogEntry, error)
}

// Session holds the pipeline state of one user. Dispatch calls are
// serialized. Catalog fetches run in the background and report back through
// CatalogLoaded; confirmations run inside Dispatch.
type Session struct {
	userID    string
	catalog   CatalogFetcher
	committer Confirmer
	log       logger.Logger
	metrics   metrics.Recorder

	mu          sync.Mutex
	state       State
	ctx         context.Context
	cancel      context.CancelFunc
	fetchCancel context.CancelFunc
	fetches     sync.WaitGroup
}

func newSession(userID string, fetcher CatalogFetcher, confirmer Confirmer, log logger.Logger, rec metrics.Recorder) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		userID:    userID,
		catalog:   fetcher,
		committer: confirmer,
		log:       log.With(logger.String("user_id", userID)),
		metrics:   metrics.OrNop(rec),
		state:     Capturing{},
		ctx:       ctx,
		cancel:    cancel,
	}
}

// UserID returns the session owner.
func (s *Session) UserID() string {
	return s.userID
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies ev and runs the resulting effects. It returns the state
// after all synchronous effects completed. The error is either an invalid
// transition, in which case the state is unchanged, or the reason a
// confirmation failed, in which case the state records it as LastError.
func (s *Session) Dispatch(ctx context.Context, ev Event) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	effects, err := s.apply(ev)
	if err != nil {
		return s.state, err
	}

	var effectErr error
	for _, eff := range effects {
		switch e := eff.(type) {
		case FetchCatalog:
			s.startFetch(e)
		case Confirm:
			entry, err := s.committer.Confirm(ctx, s.userID, e.Category, e.Species)
			if err != nil {
				effectErr = err
				_, _ = s.apply(ConfirmFailed{Err: err})
				continue
			}
			_, _ = s.apply(ConfirmSucceeded{Entry: entry})
		}
	}
	return s.state, effectErr
}

// apply runs Transition under s.mu.
func (s *Session) apply(ev Event) ([]Effect, error) {
	from := s.state
	next, effects, err := Transition(s.state, ev)
	if err != nil {
		s.metrics.RecordOperation(metrics.OpTransition, metrics.StatusError)
		s.metrics.RecordError(metrics.OpTransition, metrics.ErrorTypeTransition)
		return nil, errors.New(err).
			Component("pipeline").
			Category(errors.CategoryState).
			Context("state", from.Name()).
			Priority(errors.PriorityLow).
			Build()
	}

	s.state = next
	s.metrics.RecordOperation(metrics.OpTransition, metrics.StatusSuccess)
	if from.Name() != next.Name() {
		s.log.Debug("pipeline transition",
			logger.String("from", from.Name()),
			logger.String("to", next.Name()))
	}
	return effects, nil
}

// startFetch runs a catalog fetch in the background. A newer fetch cancels
// the one in flight; its late result is dropped by the sequence check.
func (s *Session) startFetch(e FetchCatalog) {
	if s.fetchCancel != nil {
		s.fetchCancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.fetchCancel = cancel

	s.fetches.Add(1)
	go func() {
		defer s.fetches.Done()
		defer cancel()

		result := s.catalog.Fetch(ctx, e.Category)

		s.mu.Lock()
		defer s.mu.Unlock()
		if _, err := s.apply(CatalogLoaded{Category: e.Category, Seq: e.Seq, Result: result}); err != nil {
			s.log.Debug("catalog result dropped", logger.Error(err))
		}
	}()
}

// Wait blocks until background fetches have delivered their results.
func (s *Session) Wait() {
	s.fetches.Wait()
}

// Close cancels background work and waits for it to stop.
func (s *Session) Close() {
	s.cancel()
	s.fetches.Wait()
}
