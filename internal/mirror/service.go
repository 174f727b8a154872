package mirror

import (
	"context"
	"sync"
	"time"

	"warden/internal/changefeed"
	"warden/internal/constants"
	"warden/internal/logger"
	"warden/internal/rulemetrics"
	"warden/internal/rules"
	"warden/pkg/errors"
	"warden/pkg/logging"
	"warden/pkg/metrics"
	"warden/pkg/models"
)

// Service is one owner's live mirror session: a reconciled cache fed by the
// changefeed, plus the lifecycle and view operations layered on top of it.
//
// The cache is mutated from exactly two paths, both serialized on one mutex:
// decoded feed events (ingest) and full resyncs. Local mutations never patch
// the cache directly; they call the remote store and then resync, because
// partial event-by-event merging is unreliable under concurrent edits from
// multiple sessions.
type Service struct {
	ownerID string
	cache   *Cache
	store   rules.Store
	logger  logger.Logger

	feed            changefeed.Feed
	publisher       changefeed.Publisher
	metricsProvider rulemetrics.Provider

	resyncTimeout   time.Duration
	mutationTimeout time.Duration

	mu        sync.Mutex
	sub       changefeed.Subscription
	disposed  bool
	connState string

	viewMu   sync.Mutex
	expanded map[string]bool
}

type Option func(*Service)

func WithFeed(feed changefeed.Feed) Option {
	return func(s *Service) { s.feed = feed }
}

func WithPublisher(publisher changefeed.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithMetricsProvider(provider rulemetrics.Provider) Option {
	return func(s *Service) { s.metricsProvider = provider }
}

func WithLogger(log logger.Logger) Option {
	return func(s *Service) { s.logger = log }
}

func WithTimeouts(resync, mutation time.Duration) Option {
	return func(s *Service) {
		if resync > 0 {
			s.resyncTimeout = resync
		}
		if mutation > 0 {
			s.mutationTimeout = mutation
		}
	}
}

func NewService(ownerID string, store rules.Store, opts ...Option) *Service {
	s := &Service{
		ownerID:         ownerID,
		cache:           NewCache(ownerID),
		store:           store,
		publisher:       changefeed.NopPublisher{},
		logger:          logger.NopLogger(),
		resyncTimeout:   constants.DefaultResyncTimeout,
		mutationTimeout: constants.DefaultMutationTimeout,
		connState:       "unknown",
		expanded:        make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) OwnerID() string {
	return s.ownerID
}

// Init performs the initial load and, when a feed is wired, establishes the
// owner's subscription.
func (s *Service) Init(ctx context.Context) error {
	ctx = logging.WithOwnerID(ctx, s.ownerID)

	if err := s.Resync(ctx, "initial"); err != nil {
		return err
	}

	if s.feed != nil {
		sub, err := s.feed.Subscribe(s.ownerID, s)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.sub = sub
		s.mu.Unlock()
	}

	s.logger.InfowCtx(ctx, "Mirror session initialized")
	return nil
}

// Dispose cancels the subscription and marks the session dead. Further
// mutations fail; an already-disposed session tolerates repeat calls.
func (s *Service) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	metrics.DropMirrorRules(s.ownerID)

	s.logger.Infow("Mirror session disposed", "owner_id", s.ownerID)
}

// HandleEvent applies one decoded feed event to the cache.
func (s *Service) HandleEvent(ctx context.Context, event changefeed.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}

	switch e := event.(type) {
	case changefeed.InsertEvent:
		outcome := "skipped"
		if s.cache.Upsert(e.Rule) {
			outcome = "applied"
		}
		metrics.IncChangeEvent("insert", outcome)
		s.logger.DebugwCtx(ctx, "Ingested insert event",
			"rule_id", e.Rule.ID,
			"outcome", outcome,
		)

	case changefeed.UpdateEvent:
		outcome := "skipped"
		if s.cache.Upsert(e.Rule) {
			outcome = "applied"
		}
		metrics.IncChangeEvent("update", outcome)
		s.logger.DebugwCtx(ctx, "Ingested update event",
			"rule_id", e.Rule.ID,
			"outcome", outcome,
		)

	case changefeed.DeleteEvent:
		outcome := "skipped"
		if s.cache.Delete(e.RuleID) {
			outcome = "applied"
		}
		metrics.IncChangeEvent("delete", outcome)
		s.logger.DebugwCtx(ctx, "Ingested delete event",
			"rule_id", e.RuleID,
			"outcome", outcome,
		)

	default:
		s.logger.WarnwCtx(ctx, "Ignoring unhandled event variant")
	}
}

// HandleDecodeError abandons incremental repair and rebuilds from the store.
func (s *Service) HandleDecodeError(ctx context.Context, err error) {
	s.logger.ErrorwCtx(ctx, "Feed payload did not decode, forcing resync",
		"error", err,
	)
	if rerr := s.Resync(ctx, "decode_error"); rerr != nil {
		s.logger.ErrorwCtx(ctx, "Resync after decode error failed",
			"error", rerr,
		)
	}
}

// HandleConnectionStatus tracks feed connectivity. Regaining the connection
// triggers a resync to cover any events missed while down.
func (s *Service) HandleConnectionStatus(ctx context.Context, state string) {
	s.mu.Lock()
	previous := s.connState
	s.connState = state
	s.mu.Unlock()

	s.logger.InfowCtx(ctx, "Changefeed connection state changed",
		"previous", previous,
		"state", state,
	)

	if state == models.ConnectionStateConnected &&
		(previous == models.ConnectionStateDisconnected || previous == models.ConnectionStateReconnecting) {
		if err := s.Resync(ctx, "reconnect"); err != nil {
			s.logger.ErrorwCtx(ctx, "Resync after reconnect failed",
				"error", err,
			)
		}
	}
}

// Resync fetches the owner's authoritative rule list, folds in metrics when a
// provider is wired, and atomically replaces both cache partitions.
func (s *Service) Resync(ctx context.Context, trigger string) error {
	ctx, cancel := context.WithTimeout(ctx, s.resyncTimeout)
	defer cancel()

	start := time.Now()

	fetched, err := s.store.FetchAll(ctx, s.ownerID)
	if err != nil {
		metrics.IncResync(trigger, "error")
		return errors.Wrap(err, errors.ErrRemote)
	}

	if s.metricsProvider != nil {
		s.enrich(ctx, fetched)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return errors.ErrConflict.WithDetail("message", "mirror session is disposed")
	}
	s.cache.Replace(fetched)
	s.mu.Unlock()

	metrics.IncResync(trigger, "success")
	metrics.ObserveResyncDuration(time.Since(start))

	s.logger.InfowCtx(ctx, "Mirror resynchronized",
		"trigger", trigger,
		"rules", len(fetched),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Snapshot exposes the current consistent view for the read side.
func (s *Service) Snapshot() Snapshot {
	return s.cache.Snapshot()
}

// enrich overlays provider-supplied counters onto the fetched rules. Provider
// failure is not fatal; the mirror keeps the store's last-known numbers.
func (s *Service) enrich(ctx context.Context, fetched []models.Rule) {
	byRule, err := s.metricsProvider.ForOwner(ctx, s.ownerID)
	if err != nil {
		s.logger.WarnwCtx(ctx, "Metrics provider unavailable, keeping stored counters",
			"error", err,
		)
		return
	}

	for i := range fetched {
		if m, ok := byRule[fetched[i].ID]; ok {
			fetched[i].Catches = m.Catches
			fetched[i].FalsePositives = m.FalsePositives
			fetched[i].Effectiveness = m.Effectiveness
		}
	}
}
