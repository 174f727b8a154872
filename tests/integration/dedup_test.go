package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/changefeed"
	"warden/internal/constants"
)

func TestRedisDeduper_SeenOncePerEnvelope(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	ctx := context.Background()
	deduper := changefeed.NewRedisDeduper(infra.RedisClient, 60, constants.FallbackAllow, createTestLogger())

	seen, err := deduper.Seen(ctx, "envelope-1")
	require.NoError(t, err)
	assert.False(t, seen, "first delivery is processed")

	seen, err = deduper.Seen(ctx, "envelope-1")
	require.NoError(t, err)
	assert.True(t, seen, "redelivery is suppressed")

	seen, err = deduper.Seen(ctx, "envelope-2")
	require.NoError(t, err)
	assert.False(t, seen, "distinct envelopes do not collide")
}

func TestRedisDeduper_FallbackOnRedisError(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	ctx := context.Background()

	// Simulate an unreachable Redis by closing the client up front.
	require.NoError(t, infra.RedisClient.Close())

	allow := changefeed.NewRedisDeduper(infra.RedisClient, 60, constants.FallbackAllow, createTestLogger())
	seen, err := allow.Seen(ctx, "envelope-1")
	require.NoError(t, err, "allow fallback processes the envelope")
	assert.False(t, seen)

	deny := changefeed.NewRedisDeduper(infra.RedisClient, 60, constants.FallbackDeny, createTestLogger())
	_, err = deny.Seen(ctx, "envelope-1")
	assert.Error(t, err, "deny fallback surfaces the failure")
}
