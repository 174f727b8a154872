package config

import (
	"fmt"
	"strings"

	"warden/internal/constants"
)

// ValidateStatic checks configuration invariants that do not require network
// access. Connectivity failures surface later through health checks.
func ValidateStatic(cfg *Config) error {
	var problems []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port must be in (0, 65535], got %d", cfg.Server.Port))
	}

	if cfg.Database.Postgres.Host == "" {
		problems = append(problems, "database.postgres.host is required")
	}
	if cfg.Database.Postgres.DBName == "" {
		problems = append(problems, "database.postgres.dbname is required")
	}

	if len(cfg.Changefeed.Brokers) == 0 {
		problems = append(problems, "changefeed.brokers must list at least one broker")
	}
	if cfg.Changefeed.Topic == "" {
		cfg.Changefeed.Topic = constants.DefaultChangefeedTopic
	}
	if cfg.Changefeed.GroupPrefix == "" {
		problems = append(problems, "changefeed.group_prefix is required")
	}

	if cfg.Changefeed.Dedup.Enabled {
		if cfg.Database.Redis.Host == "" {
			problems = append(problems, "database.redis.host is required when changefeed.dedup.enabled")
		}
		if cfg.Changefeed.Dedup.TTLSeconds <= 0 {
			cfg.Changefeed.Dedup.TTLSeconds = constants.DefaultSeenTTLSeconds
		}
		switch cfg.Changefeed.Dedup.OnRedisError {
		case "":
			cfg.Changefeed.Dedup.OnRedisError = constants.FallbackAllow
		case constants.FallbackAllow, constants.FallbackDeny:
		default:
			problems = append(problems, fmt.Sprintf("changefeed.dedup.on_redis_error must be %q or %q, got %q",
				constants.FallbackAllow, constants.FallbackDeny, cfg.Changefeed.Dedup.OnRedisError))
		}
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level))
	}

	if cfg.API.RateLimit.Enabled {
		if cfg.API.RateLimit.RPS <= 0 {
			problems = append(problems, "api.rate_limit.rps must be positive when rate limiting is enabled")
		}
		if cfg.API.RateLimit.Burst <= 0 {
			problems = append(problems, "api.rate_limit.burst must be positive when rate limiting is enabled")
		}
	}

	if cfg.CircuitBreaker.Enabled {
		if cfg.CircuitBreaker.FailureRatio <= 0 || cfg.CircuitBreaker.FailureRatio > 1 {
			problems = append(problems, "circuit_breaker.failure_ratio must be in (0, 1]")
		}
	}

	if cfg.Tracing.Enabled && cfg.Tracing.OTLP.Endpoint == "" {
		problems = append(problems, "tracing.otlp.endpoint is required when tracing is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
