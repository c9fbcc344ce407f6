package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/observability/metrics"
	"github.com/tphakala/fieldlog/internal/observation"
)

// DraftReader reads a user's staged draft. drafts.Store implements it.
type DraftReader interface {
	Read(ctx context.Context, userID string) (observation.Draft, bool, error)
}

// Manager keeps one Session per user. Sessions idle for longer than the
// session TTL are dropped; the next access starts a new one, resumed from
// the user's staged draft when there is one.
type Manager struct {
	catalog   CatalogFetcher
	committer Confirmer
	drafts    DraftReader
	ttl       time.Duration
	log       logger.Logger
	metrics   metrics.Recorder

	mu       sync.Mutex
	sessions *cache.Cache
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSessionTTL sets how long an idle session is kept.
func WithSessionTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = ttl }
}

func WithLogger(l logger.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

func WithRecorder(r metrics.Recorder) ManagerOption {
	return func(m *Manager) { m.metrics = r }
}

// NewManager creates a session manager.
func NewManager(fetcher CatalogFetcher, confirmer Confirmer, drafts DraftReader, opts ...ManagerOption) *Manager {
	m := &Manager{
		catalog:   fetcher,
		committer: confirmer,
		drafts:    drafts,
		ttl:       30 * time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Global().Module("pipeline")
	}
	m.metrics = metrics.OrNop(m.metrics)

	m.sessions = cache.New(m.ttl, m.ttl/2)
	m.sessions.OnEvicted(func(userID string, v any) {
		if s, ok := v.(*Session); ok {
			s.Close()
		}
		m.log.Debug("pipeline session closed", logger.String("user_id", userID))
		m.reportSessions()
	})
	return m
}

// Session returns the user's live session, creating it if needed. Each call
// extends the session's lifetime.
func (m *Manager) Session(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, found := m.sessions.Get(userID); found {
		if s, ok := v.(*Session); ok {
			m.sessions.SetDefault(userID, s)
			return s, nil
		}
	}
	// Get hides expired sessions the janitor has not swept yet.
	m.sessions.Delete(userID)

	draft, found, err := m.drafts.Read(ctx, userID)
	if err != nil {
		return nil, errors.New(err).
			Component("pipeline").
			Category(errors.CategoryDraft).
			Context("operation", "restore_session").
			Build()
	}

	s := newSession(userID, m.catalog, m.committer, m.log, m.metrics)
	if found {
		if _, err := s.Dispatch(ctx, DraftRestored{Draft: draft}); err != nil {
			s.Close()
			return nil, err
		}
		m.log.Debug("pipeline session resumed from draft", logger.String("user_id", userID))
	}

	m.sessions.SetDefault(userID, s)
	m.reportSessions()
	return s, nil
}

// Restart replaces the user's session with one that starts from a fresh
// capture of draft.
func (m *Manager) Restart(ctx context.Context, userID string, draft observation.Draft) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions.Delete(userID)

	s := newSession(userID, m.catalog, m.committer, m.log, m.metrics)
	if _, err := s.Dispatch(ctx, CaptureSucceeded{Draft: draft}); err != nil {
		s.Close()
		return nil, err
	}

	m.sessions.SetDefault(userID, s)
	m.reportSessions()
	return s, nil
}

// Drop ends the user's session, if any.
func (m *Manager) Drop(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Delete(userID)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.sessions.ItemCount()
}

// Close ends every session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID := range m.sessions.Items() {
		m.sessions.Delete(userID)
	}
}

func (m *Manager) reportSessions() {
	if g, ok := m.metrics.(interface{ SetActiveSessions(int) }); ok {
		g.SetActiveSessions(m.sessions.ItemCount())
	}
}
