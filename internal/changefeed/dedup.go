package changefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"warden/internal/constants"
	"warden/internal/logger"
	"warden/pkg/metrics"
)

// Deduper answers whether a changefeed envelope has been processed before.
type Deduper interface {
	Seen(ctx context.Context, envelopeID string) (bool, error)
}

// RedisDeduper marks envelopes as seen with SetNX under a TTL. Ingest is
// idempotent, so the fallback on Redis failure is configurable: "allow"
// processes everything, "deny" drops until Redis recovers.
type RedisDeduper struct {
	client   *redis.Client
	ttl      time.Duration
	fallback string
	logger   logger.Logger
}

func NewRedisDeduper(client *redis.Client, ttlSeconds int, fallback string, log logger.Logger) *RedisDeduper {
	if ttlSeconds <= 0 {
		ttlSeconds = constants.DefaultSeenTTLSeconds
	}
	if fallback == "" {
		fallback = constants.FallbackAllow
	}
	return &RedisDeduper{
		client:   client,
		ttl:      time.Duration(ttlSeconds) * time.Second,
		fallback: fallback,
		logger:   log,
	}
}

func (d *RedisDeduper) Seen(ctx context.Context, envelopeID string) (bool, error) {
	key := constants.CacheKeyPrefixSeen + envelopeID

	isNew, err := d.client.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		metrics.DedupEnvelopesTotal.WithLabelValues("error").Inc()

		if d.fallback == constants.FallbackAllow {
			d.logger.WarnwCtx(ctx, "Dedup check failed, processing envelope anyway",
				"envelope_id", envelopeID,
				"error", err,
			)
			metrics.FallbackUsageTotal.WithLabelValues("changefeed", constants.FallbackAllow, "redis_error").Inc()
			return false, nil
		}

		metrics.FallbackUsageTotal.WithLabelValues("changefeed", constants.FallbackDeny, "redis_error").Inc()
		return true, fmt.Errorf("dedup check failed for envelope %s: %w", envelopeID, err)
	}

	if isNew {
		metrics.DedupEnvelopesTotal.WithLabelValues("unique").Inc()
		return false, nil
	}

	metrics.DedupEnvelopesTotal.WithLabelValues("duplicate").Inc()
	return true, nil
}

// NopDeduper is used when dedup is disabled; every envelope is new.
type NopDeduper struct{}

func (NopDeduper) Seen(ctx context.Context, envelopeID string) (bool, error) {
	return false, nil
}
