package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixSeen = "seen:"
)

const (
	DefaultChangefeedTopic = "rule_changes"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultSeenTTLSeconds = 3600
)

const (
	// AttentionEffectivenessFloor and AttentionFalsePositiveCeiling bound the
	// "attention" tab: rules below the floor or above the ceiling need review.
	AttentionEffectivenessFloor   = 70
	AttentionFalsePositiveCeiling = 100
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	DefaultMongoDBName     = "warden"
	RuleMetricsCollection  = "rule_metrics"
	DefaultResyncTimeout   = 15 * time.Second
	DefaultMutationTimeout = 10 * time.Second
)
