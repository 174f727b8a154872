package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"warden/internal/config"
	"warden/internal/logger"
	"warden/pkg/errors"
	"warden/pkg/logging"
	"warden/pkg/metrics"
	"warden/pkg/tracing"
)

const serviceName = "mirror-service"

// Handler receives the decoded traffic of one owner's subscription.
type Handler interface {
	HandleEvent(ctx context.Context, event Event)
	HandleDecodeError(ctx context.Context, err error)
	HandleConnectionStatus(ctx context.Context, state string)
}

// Subscription is a handle on one owner's changefeed consumer.
type Subscription interface {
	Cancel()
}

// Feed delivers decoded change events scoped to a single owner.
type Feed interface {
	Subscribe(ownerID string, handler Handler) (Subscription, error)
}

// KafkaFeed consumes the shared changefeed topic and fans events out to
// per-owner handlers. Establishing a subscription for an owner cancels any
// existing one, so at most one subscription per owner is ever live.
type KafkaFeed struct {
	cfg     config.ChangefeedConfig
	deduper Deduper
	logger  logger.Logger

	mu   sync.Mutex
	subs map[string]*kafkaSubscription
}

func NewKafkaFeed(cfg config.ChangefeedConfig, deduper Deduper, log logger.Logger) *KafkaFeed {
	if deduper == nil {
		deduper = NopDeduper{}
	}
	return &KafkaFeed{
		cfg:     cfg,
		deduper: deduper,
		logger:  log,
		subs:    make(map[string]*kafkaSubscription),
	}
}

func (f *KafkaFeed) Subscribe(ownerID string, handler Handler) (Subscription, error) {
	if ownerID == "" {
		return nil, errors.ErrValidation.WithDetail("message", "owner id is required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.subs[ownerID]; ok {
		existing.cancelLocked()
		delete(f.subs, ownerID)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     f.cfg.Brokers,
		GroupID:     fmt.Sprintf("%s-%s", f.cfg.GroupPrefix, ownerID),
		Topic:       f.cfg.Topic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})

	ctx, cancel := context.WithCancel(context.Background())
	ctx = logging.WithOwnerID(ctx, ownerID)
	ctx = logging.WithServiceName(ctx, serviceName)

	sub := &kafkaSubscription{
		feed:    f,
		ownerID: ownerID,
		reader:  reader,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	f.subs[ownerID] = sub
	metrics.FeedSubscriptionsActive.Inc()

	go sub.run(ctx, handler)

	f.logger.InfowCtx(ctx, "Changefeed subscription established",
		"topic", f.cfg.Topic,
		"group_id", fmt.Sprintf("%s-%s", f.cfg.GroupPrefix, ownerID),
	)

	return sub, nil
}

// Probe dials the first broker so the feed can participate in health checks.
func (f *KafkaFeed) Probe(ctx context.Context) error {
	if len(f.cfg.Brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", f.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("broker dial failed: %w", err)
	}
	return conn.Close()
}

// Close cancels every live subscription.
func (f *KafkaFeed) Close() error {
	f.mu.Lock()
	subs := make([]*kafkaSubscription, 0, len(f.subs))
	for _, sub := range f.subs {
		subs = append(subs, sub)
	}
	f.subs = make(map[string]*kafkaSubscription)
	f.mu.Unlock()

	for _, sub := range subs {
		sub.cancelLocked()
	}
	return nil
}

type kafkaSubscription struct {
	feed    *KafkaFeed
	ownerID string
	reader  *kafka.Reader
	cancel  context.CancelFunc
	done    chan struct{}

	once sync.Once
}

func (s *kafkaSubscription) Cancel() {
	s.feed.mu.Lock()
	if current, ok := s.feed.subs[s.ownerID]; ok && current == s {
		delete(s.feed.subs, s.ownerID)
	}
	s.feed.mu.Unlock()

	s.cancelLocked()
}

// cancelLocked stops the consumer without touching the subscription map; the
// caller either holds the feed mutex or has already removed the entry.
func (s *kafkaSubscription) cancelLocked() {
	s.once.Do(func() {
		s.cancel()
		s.reader.Close()
		<-s.done
		metrics.FeedSubscriptionsActive.Dec()
	})
}

func (s *kafkaSubscription) run(ctx context.Context, handler Handler) {
	defer close(s.done)

	for {
		start := time.Now()
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.feed.logger.InfowCtx(ctx, "Changefeed subscription stopped")
				return
			}
			s.feed.logger.ErrorwCtx(ctx, "Failed to read changefeed message",
				"error", err,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		metrics.IncKafkaMessagesRead(serviceName, s.reader.Config().Topic)
		metrics.ObserveKafkaReadDuration(serviceName, s.reader.Config().Topic, time.Since(start))

		msgCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "changefeed.consume", msg.Headers)
		s.handleMessage(msgCtx, msg, handler)
		span.End()
	}
}

func (s *kafkaSubscription) handleMessage(ctx context.Context, msg kafka.Message, handler Handler) {
	// A handler panic must not take the subscription loop down with it.
	defer func() {
		if err := errors.RecoverPanic(recover()); err != nil {
			s.feed.logger.ErrorwCtx(ctx, "Panic while handling changefeed message",
				"error", err,
			)
		}
	}()

	// Peek at the envelope identity before full decode: the topic is shared
	// across owners, and redelivered envelopes are dropped here.
	var header struct {
		ID      string `json:"id"`
		OwnerID string `json:"owner_id"`
	}
	if err := json.Unmarshal(msg.Value, &header); err != nil {
		metrics.DecodeFailuresTotal.Inc()
		handler.HandleDecodeError(ctx, errors.Wrap(err, errors.ErrDecode))
		return
	}

	if header.OwnerID != "" && header.OwnerID != s.ownerID {
		return
	}

	if header.ID != "" {
		seen, err := s.feed.deduper.Seen(ctx, header.ID)
		if err != nil {
			s.feed.logger.ErrorwCtx(ctx, "Dedup rejected envelope",
				"envelope_id", header.ID,
				"error", err,
			)
			return
		}
		if seen {
			s.feed.logger.DebugwCtx(ctx, "Skipping duplicate envelope",
				"envelope_id", header.ID,
			)
			return
		}
	}

	ctx = logging.WithMessageID(ctx, header.ID)

	event, err := Decode(msg.Value)
	if err != nil {
		metrics.DecodeFailuresTotal.Inc()
		s.feed.logger.ErrorwCtx(ctx, "Changefeed payload did not decode",
			"error", err,
		)
		handler.HandleDecodeError(ctx, err)
		return
	}

	if status, ok := event.(ConnectionStatusEvent); ok {
		handler.HandleConnectionStatus(ctx, status.State)
		return
	}

	handler.HandleEvent(ctx, event)
}
