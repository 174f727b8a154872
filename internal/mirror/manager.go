package mirror

import (
	"context"
	"sync"
	"time"

	"warden/internal/changefeed"
	"warden/internal/config"
	"warden/internal/logger"
	"warden/internal/rulemetrics"
	"warden/internal/rules"
	"warden/pkg/errors"
	"warden/pkg/metrics"
)

// Manager owns the per-owner mirror sessions. Sessions are created explicitly
// with InitSession and torn down with DisposeSession; initializing an owner
// that already has a session replaces it, so there is never more than one live
// session (and therefore one feed subscription) per owner.
type Manager struct {
	store           rules.Store
	feed            changefeed.Feed
	publisher       changefeed.Publisher
	metricsProvider rulemetrics.Provider
	cfg             config.MirrorConfig
	logger          logger.Logger

	mu       sync.Mutex
	sessions map[string]*Service
}

func NewManager(store rules.Store, feed changefeed.Feed, publisher changefeed.Publisher,
	provider rulemetrics.Provider, cfg config.MirrorConfig, log logger.Logger) *Manager {
	return &Manager{
		store:           store,
		feed:            feed,
		publisher:       publisher,
		metricsProvider: provider,
		cfg:             cfg,
		logger:          log,
		sessions:        make(map[string]*Service),
	}
}

// InitSession builds and initializes a session for the owner, replacing any
// existing one.
func (m *Manager) InitSession(ctx context.Context, ownerID string) (*Service, error) {
	if ownerID == "" {
		return nil, errors.ErrValidation.WithDetail("message", "owner id is required")
	}

	opts := []Option{
		WithLogger(m.logger),
		WithTimeouts(secondsOrZero(m.cfg.ResyncTimeoutSeconds), secondsOrZero(m.cfg.MutationTimeoutSeconds)),
	}
	if m.feed != nil {
		opts = append(opts, WithFeed(m.feed))
	}
	if m.publisher != nil {
		opts = append(opts, WithPublisher(m.publisher))
	}
	if m.metricsProvider != nil {
		opts = append(opts, WithMetricsProvider(m.metricsProvider))
	}

	session := NewService(ownerID, m.store, opts...)
	if err := session.Init(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	previous := m.sessions[ownerID]
	m.sessions[ownerID] = session
	metrics.MirrorSessionsActive.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	if previous != nil {
		previous.Dispose()
	}

	return session, nil
}

// Session returns the live session for an owner, if any.
func (m *Manager) Session(ownerID string) (*Service, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[ownerID]
	return session, ok
}

// DisposeSession tears down the owner's session. Missing sessions are
// reported so callers can distinguish a no-op.
func (m *Manager) DisposeSession(ownerID string) error {
	m.mu.Lock()
	session, ok := m.sessions[ownerID]
	if ok {
		delete(m.sessions, ownerID)
	}
	metrics.MirrorSessionsActive.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	if !ok {
		return errors.ErrNotFound.WithDetail("owner_id", ownerID)
	}

	session.Dispose()
	return nil
}

// Close disposes every session; used on shutdown.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := make([]*Service, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.sessions = make(map[string]*Service)
	metrics.MirrorSessionsActive.Set(0)
	m.mu.Unlock()

	for _, session := range sessions {
		session.Dispose()
	}
	return nil
}

func secondsOrZero(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
