package mirror

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/pkg/errors"
	"warden/pkg/models"
)

// viewService builds a session over a fixed set of rules covering every tab.
func viewService(t *testing.T) *Service {
	t.Helper()

	healthy := testRule("healthy", models.StatusActive, baseTime)
	healthy.Name = "Healthy rule"
	healthy.Category = "payments"
	healthy.Effectiveness = 95

	inactive := testRule("inactive", models.StatusInactive, baseTime)
	inactive.Name = "Paused rule"
	inactive.Description = "temporarily off"
	inactive.Effectiveness = 90

	warning := testRule("warning", models.StatusWarning, baseTime)
	warning.Name = "Flapping rule"
	warning.Effectiveness = 99

	ineffective := testRule("ineffective", models.StatusActive, baseTime)
	ineffective.Name = "Weak rule"
	ineffective.Effectiveness = 40

	noisy := testRule("noisy", models.StatusActive, baseTime)
	noisy.Name = "Noisy rule"
	noisy.Effectiveness = 95
	noisy.FalsePositives = 250

	deleted := testRule("deleted", models.StatusInactive, baseTime)
	deleted.Name = "Removed rule"
	deleted.IsDeleted = true
	deleted.Effectiveness = 95

	inProgress := testRule("draft", models.StatusInProgress, baseTime)
	inProgress.Name = "Draft rule"

	store := newFakeStore(healthy, inactive, warning, ineffective, noisy, deleted, inProgress)
	svc := newTestService(store)
	require.NoError(t, svc.Init(context.Background()))
	return svc
}

func TestTabCounts(t *testing.T) {
	svc := viewService(t)

	counts := svc.TabCounts()

	assert.Equal(t, 3, counts.Active, "healthy, ineffective, noisy")
	assert.Equal(t, 5, counts.All)
	assert.Equal(t, 3, counts.Attention, "warning, ineffective, noisy")
	assert.Equal(t, 1, counts.Deleted)
}

func TestFilterRulesTabs(t *testing.T) {
	svc := viewService(t)

	tests := []struct {
		tab  string
		want []string
	}{
		{tab: TabActive, want: []string{"healthy", "ineffective", "noisy"}},
		{tab: TabAll, want: []string{"healthy", "inactive", "warning", "ineffective", "noisy"}},
		{tab: TabAttention, want: []string{"warning", "ineffective", "noisy"}},
		{tab: TabDeleted, want: []string{"deleted"}},
	}

	for _, tt := range tests {
		t.Run(tt.tab, func(t *testing.T) {
			result, err := svc.FilterRules(tt.tab, "", "")
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, cacheIDs(result))
		})
	}
}

func TestTabRelations(t *testing.T) {
	svc := viewService(t)

	all, err := svc.FilterRules(TabAll, "", "")
	require.NoError(t, err)
	active, err := svc.FilterRules(TabActive, "", "")
	require.NoError(t, err)
	attention, err := svc.FilterRules(TabAttention, "", "")
	require.NoError(t, err)
	deleted, err := svc.FilterRules(TabDeleted, "", "")
	require.NoError(t, err)

	assert.Subset(t, cacheIDs(all), cacheIDs(active), "active is a subset of all")
	assert.Subset(t, cacheIDs(all), cacheIDs(attention), "attention is a subset of all")

	for _, id := range cacheIDs(deleted) {
		assert.NotContains(t, cacheIDs(all), id, "deleted and all are disjoint")
	}

	// In-progress rules appear in no tab.
	for _, tab := range []string{TabActive, TabAll, TabAttention, TabDeleted} {
		result, err := svc.FilterRules(tab, "", "")
		require.NoError(t, err)
		assert.NotContains(t, cacheIDs(result), "draft")
	}
	assert.Equal(t, []string{"draft"}, cacheIDs(svc.InProgressRules()))
}

func TestFilterRulesUnknownTab(t *testing.T) {
	svc := viewService(t)

	_, err := svc.FilterRules("archived", "", "")

	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestSearch(t *testing.T) {
	svc := viewService(t)

	t.Run("scoped to a column", func(t *testing.T) {
		result, err := svc.FilterRules(TabAll, "paused", ColumnName)
		require.NoError(t, err)
		assert.Equal(t, []string{"inactive"}, cacheIDs(result))
	})

	t.Run("case-insensitive", func(t *testing.T) {
		result, err := svc.FilterRules(TabAll, "PAUSED", ColumnName)
		require.NoError(t, err)
		assert.Equal(t, []string{"inactive"}, cacheIDs(result))
	})

	t.Run("union of all columns when unscoped", func(t *testing.T) {
		// "temporarily off" lives in the description, "payments" in category.
		result, err := svc.FilterRules(TabAll, "temporarily", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"inactive"}, cacheIDs(result))

		result, err = svc.FilterRules(TabAll, "payments", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"healthy"}, cacheIDs(result))
	})

	t.Run("scoped search misses other columns", func(t *testing.T) {
		result, err := svc.FilterRules(TabAll, "payments", ColumnName)
		require.NoError(t, err)
		assert.Empty(t, result)
	})

	t.Run("unknown column", func(t *testing.T) {
		_, err := svc.FilterRules(TabAll, "x", "severity")
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("counts ignore the current search", func(t *testing.T) {
		counts := svc.TabCounts()
		result, err := svc.FilterRules(TabAll, "paused", ColumnName)
		require.NoError(t, err)

		assert.Len(t, result, 1)
		assert.Equal(t, 5, counts.All, "counts reflect tab membership, not search results")
	})
}

func TestRowExpansion(t *testing.T) {
	svc := viewService(t)

	assert.False(t, svc.IsRowExpanded("healthy"))

	assert.True(t, svc.ToggleRowExpansion("healthy"))
	assert.True(t, svc.IsRowExpanded("healthy"))
	assert.False(t, svc.IsRowExpanded("noisy"), "expansion is tracked per id")

	assert.False(t, svc.ToggleRowExpansion("healthy"))
	assert.False(t, svc.IsRowExpanded("healthy"))
}

func TestRowExpansionSurvivesFiltering(t *testing.T) {
	svc := viewService(t)
	svc.ToggleRowExpansion("healthy")

	_, err := svc.FilterRules(TabActive, "noisy", ColumnName)
	require.NoError(t, err)

	assert.True(t, svc.IsRowExpanded("healthy"), "expansion state is orthogonal to filtering")
}
