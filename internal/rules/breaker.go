package rules

import (
	"context"

	"github.com/sony/gobreaker"

	"warden/internal/config"
	"warden/pkg/circuitbreaker"
	pkgerrors "warden/pkg/errors"
	"warden/pkg/models"
)

// BreakerStore shields the remote store behind a circuit breaker. Client
// errors (not-found, conflict) do not count as failures; only transport and
// server-side faults trip the breaker.
type BreakerStore struct {
	store   Store
	breaker *circuitbreaker.Wrapper
}

func NewBreakerStore(store Store, cfg config.CircuitBreakerConfig) *BreakerStore {
	bcfg := circuitbreaker.DefaultConfig("rule-store")
	if cfg.MaxRequests > 0 {
		bcfg.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		bcfg.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		bcfg.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 {
		minRequests := cfg.MinRequests
		if minRequests == 0 {
			minRequests = 3
		}
		bcfg.ReadyToTrip = func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && ratio >= cfg.FailureRatio
		}
	}

	return &BreakerStore{
		store:   store,
		breaker: circuitbreaker.NewWrapper(bcfg),
	}
}

func (b *BreakerStore) FetchAll(ctx context.Context, ownerID string) ([]models.Rule, error) {
	result, err := b.execute(ctx, func() (interface{}, error) {
		return b.store.FetchAll(ctx, ownerID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.Rule), nil
}

func (b *BreakerStore) Create(ctx context.Context, req CreateRuleRequest) (*models.Rule, error) {
	result, err := b.execute(ctx, func() (interface{}, error) {
		return b.store.Create(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Rule), nil
}

func (b *BreakerStore) Update(ctx context.Context, id string, req UpdateRuleRequest) (*models.Rule, error) {
	result, err := b.execute(ctx, func() (interface{}, error) {
		return b.store.Update(ctx, id, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Rule), nil
}

func (b *BreakerStore) SoftDelete(ctx context.Context, id string) error {
	_, err := b.execute(ctx, func() (interface{}, error) {
		return nil, b.store.SoftDelete(ctx, id)
	})
	return err
}

func (b *BreakerStore) Recover(ctx context.Context, id string) error {
	_, err := b.execute(ctx, func() (interface{}, error) {
		return nil, b.store.Recover(ctx, id)
	})
	return err
}

func (b *BreakerStore) PermanentDelete(ctx context.Context, id string) error {
	_, err := b.execute(ctx, func() (interface{}, error) {
		return nil, b.store.PermanentDelete(ctx, id)
	})
	return err
}

func (b *BreakerStore) Get(ctx context.Context, id string) (*models.Rule, error) {
	result, err := b.execute(ctx, func() (interface{}, error) {
		return b.store.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Rule), nil
}

func (b *BreakerStore) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	var clientErr error

	result, err := b.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		res, err := fn()
		if err != nil && isClientError(err) {
			// Surface the error to the caller without counting it against
			// the breaker.
			clientErr = err
			return res, nil
		}
		return res, err
	})

	if clientErr != nil {
		b.breaker.RecordRequest(true)
		return nil, clientErr
	}
	if err != nil {
		b.breaker.RecordRequest(false)
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, pkgerrors.ErrServiceUnavailable.WithCause(err)
		}
		return nil, err
	}

	b.breaker.RecordRequest(true)
	return result, nil
}

func isClientError(err error) bool {
	return pkgerrors.IsNotFound(err) || pkgerrors.IsValidation(err) || pkgerrors.IsConflict(err)
}
