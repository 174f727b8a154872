package changefeed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"warden/internal/config"
	"warden/internal/constants"
	"warden/internal/logger"
	"warden/pkg/errors"
	"warden/pkg/metrics"
	"warden/pkg/models"
	"warden/pkg/retry"
	"warden/pkg/tracing"
)

// Publisher announces locally-initiated mutations on the changefeed topic so
// other mirrors of the same owner converge without waiting for their own
// resync.
type Publisher interface {
	Publish(ctx context.Context, envelope models.ChangeEnvelope) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
	policy retry.Policy
	logger logger.Logger
}

func NewKafkaPublisher(cfg config.ChangefeedConfig, log logger.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	policy := retry.DefaultPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		policy = retry.Policy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
			Multiplier:      cfg.Retry.Multiplier,
			MaxElapsedTime:  cfg.Retry.MaxElapsedTime,
		}
	}

	return &KafkaPublisher{
		writer: writer,
		policy: policy,
		logger: log,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, envelope models.ChangeEnvelope) error {
	value, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal)
	}

	headers := tracing.InjectTraceContext(ctx, nil)

	start := time.Now()
	err = retry.RetryWithCallback(ctx, p.policy, func() error {
		return p.writer.WriteMessages(ctx, kafka.Message{
			// Keyed by owner so one owner's events stay on one partition.
			Key:     []byte(envelope.OwnerID),
			Value:   value,
			Headers: headers,
		})
	}, func(attempt int, err error, nextDelay time.Duration) {
		p.logger.WarnwCtx(ctx, "Retrying change envelope publish",
			"envelope_id", envelope.ID,
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
		)
	})
	metrics.ObserveKafkaWriteDuration(serviceName, p.writer.Topic, time.Since(start))

	if err != nil {
		p.logger.ErrorwCtx(ctx, "Failed to publish change envelope",
			"envelope_id", envelope.ID,
			"event_type", envelope.EventType,
			"error", err,
		)
		return errors.Wrap(err, errors.ErrServiceUnavailable)
	}

	metrics.IncKafkaMessagesWritten(serviceName, p.writer.Topic)
	p.logger.DebugwCtx(ctx, "Published change envelope",
		"envelope_id", envelope.ID,
		"event_type", envelope.EventType,
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher is used when the service runs without a broker.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, envelope models.ChangeEnvelope) error {
	return nil
}

func (NopPublisher) Close() error {
	return nil
}
