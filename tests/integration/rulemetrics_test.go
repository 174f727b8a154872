package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/rulemetrics"
	"warden/pkg/migrations"
)

func TestMetricsProvider_RecordAndFetch(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, false)

	ctx := context.Background()
	require.NoError(t, migrations.EnsureMongoCollection(ctx, infra.MongoDB))

	provider := rulemetrics.NewMongoProvider(infra.MongoDB, createTestLogger())

	require.NoError(t, provider.Record(ctx, rulemetrics.Metrics{
		RuleID:         "rule-1",
		OwnerID:        "owner-1",
		Catches:        42,
		FalsePositives: 3,
		Effectiveness:  93,
	}))
	require.NoError(t, provider.Record(ctx, rulemetrics.Metrics{
		RuleID:        "rule-2",
		OwnerID:       "owner-1",
		Effectiveness: 55,
	}))
	require.NoError(t, provider.Record(ctx, rulemetrics.Metrics{
		RuleID:        "rule-3",
		OwnerID:       "owner-2",
		Effectiveness: 70,
	}))

	got, err := provider.ForOwner(ctx, "owner-1")
	require.NoError(t, err)

	require.Len(t, got, 2, "results are scoped to the owner")
	assert.Equal(t, 42, got["rule-1"].Catches)
	assert.Equal(t, 93, got["rule-1"].Effectiveness)
	assert.Equal(t, 55, got["rule-2"].Effectiveness)
	assert.False(t, got["rule-1"].UpdatedAt.IsZero())
}

func TestMetricsProvider_RecordUpserts(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, false)

	ctx := context.Background()
	require.NoError(t, migrations.EnsureMongoCollection(ctx, infra.MongoDB))

	provider := rulemetrics.NewMongoProvider(infra.MongoDB, createTestLogger())

	require.NoError(t, provider.Record(ctx, rulemetrics.Metrics{
		RuleID: "rule-1", OwnerID: "owner-1", Catches: 1,
	}))
	require.NoError(t, provider.Record(ctx, rulemetrics.Metrics{
		RuleID: "rule-1", OwnerID: "owner-1", Catches: 2,
	}))

	got, err := provider.ForOwner(ctx, "owner-1")
	require.NoError(t, err)

	require.Len(t, got, 1, "recording the same rule twice keeps one record")
	assert.Equal(t, 2, got["rule-1"].Catches)
}

func TestMetricsProvider_UnknownOwnerIsEmpty(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, false)

	ctx := context.Background()
	provider := rulemetrics.NewMongoProvider(infra.MongoDB, createTestLogger())

	got, err := provider.ForOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}
