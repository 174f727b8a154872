package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/rules"
	"warden/pkg/errors"
	"warden/pkg/models"
)

func TestRulesStore_CreateAndFetchAll(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	store := rules.NewPostgresStore(infra.PostgresDB)

	first := mustCreateRule(t, store, "owner-1", "first rule")
	time.Sleep(timestampDelay)
	second := mustCreateRule(t, store, "owner-1", "second rule")
	time.Sleep(timestampDelay)
	mustCreateRule(t, store, "owner-2", "other owner rule")

	fetched, err := store.FetchAll(ctx, "owner-1")
	require.NoError(t, err)

	require.Len(t, fetched, 2, "fetch is scoped to the owner")
	assert.Equal(t, second.ID, fetched[0].ID, "newest first")
	assert.Equal(t, first.ID, fetched[1].ID)
}

func TestRulesStore_CreateDefaults(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	store := rules.NewPostgresStore(infra.PostgresDB)

	created, err := store.Create(ctx, rules.CreateRuleRequest{
		OwnerID:   "owner-1",
		Name:      "bare rule",
		Condition: "amount > 100",
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SeverityMedium, got.Severity)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Equal(t, models.SourceUser, got.Source)
	assert.False(t, got.IsDeleted)
	assert.Zero(t, got.Catches)
	assert.Zero(t, got.Effectiveness)
}

func TestRulesStore_Update(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	store := rules.NewPostgresStore(infra.PostgresDB)
	created := mustCreateRule(t, store, "owner-1", "original name")

	time.Sleep(timestampDelay)

	newName := "renamed rule"
	newStatus := string(models.StatusInactive)
	updated, err := store.Update(ctx, created.ID, rules.UpdateRuleRequest{
		Name:   &newName,
		Status: &newStatus,
	})
	require.NoError(t, err)

	assert.Equal(t, "renamed rule", updated.Name)
	assert.Equal(t, models.StatusInactive, updated.Status)
	assert.Equal(t, created.Condition, updated.Condition, "unpatched fields are untouched")
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed rule", got.Name)
}

func TestRulesStore_DuplicateNameConflicts(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	store := rules.NewPostgresStore(infra.PostgresDB)
	mustCreateRule(t, store, "owner-1", "taken name")

	_, err := store.Create(ctx, createTestRuleRequest("owner-1", "taken name"))
	assert.True(t, errors.IsConflict(err), "live names are unique per owner")

	other, err := store.Create(ctx, createTestRuleRequest("owner-2", "taken name"))
	require.NoError(t, err, "uniqueness is scoped to the owner")

	mine := mustCreateRule(t, store, "owner-1", "my own name")
	renamed := "taken name"
	_, err = store.Update(ctx, mine.ID, rules.UpdateRuleRequest{Name: &renamed})
	assert.True(t, errors.IsConflict(err), "renaming onto a live name conflicts")

	_, err = store.Update(ctx, other.ID, rules.UpdateRuleRequest{Name: &renamed})
	require.NoError(t, err, "owner-2 keeps its own namespace")

	doomed := mustCreateRule(t, store, "owner-1", "reusable name")
	require.NoError(t, store.SoftDelete(ctx, doomed.ID))

	_, err = store.Create(ctx, createTestRuleRequest("owner-1", "reusable name"))
	require.NoError(t, err, "a soft-deleted rule does not reserve its name")

	err = store.Recover(ctx, doomed.ID)
	assert.True(t, errors.IsConflict(err), "recovery cannot collide with a live name")
}

func TestRulesStore_SoftDeleteForcesInactive(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	store := rules.NewPostgresStore(infra.PostgresDB)
	created := mustCreateRule(t, store, "owner-1", "doomed rule")
	require.Equal(t, models.StatusActive, created.Status)

	require.NoError(t, store.SoftDelete(ctx, created.ID))

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, models.StatusInactive, got.Status)
}

func TestRulesStore_RecoverKeepsInactive(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	store := rules.NewPostgresStore(infra.PostgresDB)
	created := mustCreateRule(t, store, "owner-1", "recovered rule")

	require.NoError(t, store.SoftDelete(ctx, created.ID))
	require.NoError(t, store.Recover(ctx, created.ID))

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDeleted)
	assert.Equal(t, models.StatusInactive, got.Status, "recover does not restore the pre-delete status")
}

func TestRulesStore_PermanentDelete(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	store := rules.NewPostgresStore(infra.PostgresDB)
	created := mustCreateRule(t, store, "owner-1", "gone rule")

	require.NoError(t, store.PermanentDelete(ctx, created.ID))

	_, err := store.Get(ctx, created.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestRulesStore_UnknownIDIsNotFound(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	store := rules.NewPostgresStore(infra.PostgresDB)
	ghost := uuid.NewString()

	_, err := store.Get(ctx, ghost)
	assert.True(t, errors.IsNotFound(err))

	name := "any"
	_, err = store.Update(ctx, ghost, rules.UpdateRuleRequest{Name: &name})
	assert.True(t, errors.IsNotFound(err))

	assert.True(t, errors.IsNotFound(store.SoftDelete(ctx, ghost)))
	assert.True(t, errors.IsNotFound(store.Recover(ctx, ghost)))
	assert.True(t, errors.IsNotFound(store.PermanentDelete(ctx, ghost)))
}
