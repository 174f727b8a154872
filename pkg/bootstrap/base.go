package bootstrap

import (
	"context"
	"fmt"

	"warden/internal/config"
	"warden/internal/logger"
)

// Base collects the pieces every service entrypoint needs plus the shutdown
// hooks accumulated while wiring the application. Hooks run in reverse
// registration order.
type Base struct {
	Config *config.Config
	Logger logger.Logger

	hooks []namedHook
}

type namedHook struct {
	name string
	fn   func(ctx context.Context) error
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// OnShutdown registers a cleanup step to run during Shutdown.
func (b *Base) OnShutdown(name string, fn func(ctx context.Context) error) {
	b.hooks = append(b.hooks, namedHook{name: name, fn: fn})
}

func (b *Base) Shutdown(ctx context.Context) error {
	b.Logger.Info("Shutting down application...")

	var errs []error
	for i := len(b.hooks) - 1; i >= 0; i-- {
		hook := b.hooks[i]
		if err := hook.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s shutdown error: %w", hook.name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
