package mirror

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/changefeed"
	"warden/internal/rules"
	"warden/pkg/errors"
	"warden/pkg/metrics"
	"warden/pkg/models"
)

// fakeStore is an in-memory rules.Store with per-operation error injection.
type fakeStore struct {
	mu    sync.Mutex
	data  map[string]models.Rule
	fail  map[string]error
	calls []string
}

func newFakeStore(seed ...models.Rule) *fakeStore {
	s := &fakeStore{
		data: make(map[string]models.Rule),
		fail: make(map[string]error),
	}
	for _, r := range seed {
		s.data[r.ID] = r
	}
	return s
}

func (s *fakeStore) record(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op)
	return s.fail[op]
}

func (s *fakeStore) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (s *fakeStore) FetchAll(ctx context.Context, ownerID string) ([]models.Rule, error) {
	if err := s.record("fetch_all"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Rule
	for _, r := range s.data {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) Create(ctx context.Context, req rules.CreateRuleRequest) (*models.Rule, error) {
	if err := s.record("create"); err != nil {
		return nil, err
	}
	now := time.Now()
	rule := models.Rule{
		ID:        "created-" + req.Name,
		OwnerID:   req.OwnerID,
		Name:      req.Name,
		Condition: req.Condition,
		Severity:  models.SeverityMedium,
		Status:    models.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.data[rule.ID] = rule
	s.mu.Unlock()
	return &rule, nil
}

func (s *fakeStore) Update(ctx context.Context, id string, req rules.UpdateRuleRequest) (*models.Rule, error) {
	if err := s.record("update"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.data[id]
	if !ok {
		return nil, errors.ErrNotFound.WithDetail("rule_id", id)
	}
	req.ApplyTo(&rule)
	rule.UpdatedAt = time.Now()
	s.data[id] = rule
	return &rule, nil
}

func (s *fakeStore) SoftDelete(ctx context.Context, id string) error {
	if err := s.record("soft_delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.data[id]
	if !ok {
		return errors.ErrNotFound.WithDetail("rule_id", id)
	}
	rule.IsDeleted = true
	rule.Status = models.StatusInactive
	rule.UpdatedAt = time.Now()
	s.data[id] = rule
	return nil
}

func (s *fakeStore) Recover(ctx context.Context, id string) error {
	if err := s.record("recover"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.data[id]
	if !ok {
		return errors.ErrNotFound.WithDetail("rule_id", id)
	}
	rule.IsDeleted = false
	rule.UpdatedAt = time.Now()
	s.data[id] = rule
	return nil
}

func (s *fakeStore) PermanentDelete(ctx context.Context, id string) error {
	if err := s.record("permanent_delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return errors.ErrNotFound.WithDetail("rule_id", id)
	}
	delete(s.data, id)
	return nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (*models.Rule, error) {
	if err := s.record("get"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.data[id]
	if !ok {
		return nil, errors.ErrNotFound.WithDetail("rule_id", id)
	}
	return &rule, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	envelopes []models.ChangeEnvelope
}

func (p *fakePublisher) Publish(ctx context.Context, envelope models.ChangeEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envelopes = append(p.envelopes, envelope)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.envelopes))
	for _, e := range p.envelopes {
		out = append(out, e.EventType)
	}
	return out
}

func newTestService(store *fakeStore, opts ...Option) *Service {
	return NewService("owner-1", store, opts...)
}

func TestServiceInitLoadsSnapshot(t *testing.T) {
	store := newFakeStore(
		testRule("r1", models.StatusActive, baseTime),
		testRule("r2", models.StatusInProgress, baseTime),
	)
	svc := newTestService(store)

	require.NoError(t, svc.Init(context.Background()))

	snapshot := svc.Snapshot()
	assert.Len(t, snapshot.Main, 1)
	assert.Len(t, snapshot.InProgress, 1)
}

func TestServiceIngestAppliesEvents(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	svc.HandleEvent(ctx, changefeed.InsertEvent{Rule: testRule("r1", models.StatusActive, baseTime)})
	svc.HandleEvent(ctx, changefeed.UpdateEvent{Rule: testRule("r1", models.StatusWarning, baseTime.Add(time.Minute))})

	got, ok := svc.cache.Get("r1")
	require.True(t, ok)
	assert.Equal(t, models.StatusWarning, got.Status)

	svc.HandleEvent(ctx, changefeed.DeleteEvent{RuleID: "r1"})
	_, ok = svc.cache.Get("r1")
	assert.False(t, ok)
}

func TestServiceDecodeErrorTriggersResync(t *testing.T) {
	store := newFakeStore(testRule("r1", models.StatusActive, baseTime))
	svc := newTestService(store)
	require.NoError(t, svc.Init(context.Background()))

	before := store.callCount("fetch_all")
	svc.HandleDecodeError(context.Background(), errors.ErrDecode)

	assert.Equal(t, before+1, store.callCount("fetch_all"))
	assert.Len(t, svc.Snapshot().Main, 1, "the cache is rebuilt, not incrementally repaired")
}

func TestServiceReconnectTriggersResync(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	require.NoError(t, svc.Init(context.Background()))
	ctx := context.Background()

	before := store.callCount("fetch_all")

	svc.HandleConnectionStatus(ctx, models.ConnectionStateDisconnected)
	assert.Equal(t, before, store.callCount("fetch_all"))

	svc.HandleConnectionStatus(ctx, models.ConnectionStateConnected)
	assert.Equal(t, before+1, store.callCount("fetch_all"))
}

func TestCreateRuleResyncsAndPublishes(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	svc := newTestService(store, WithPublisher(publisher))
	require.NoError(t, svc.Init(context.Background()))

	rule, err := svc.CreateRule(context.Background(), rules.CreateRuleRequest{
		Name:      "High value transfer",
		Condition: "amount > 1000",
	})

	require.NoError(t, err)
	assert.Equal(t, "owner-1", rule.OwnerID)
	assert.Equal(t, []string{models.EventTypeRuleInserted}, publisher.eventTypes())

	// Every local mutation is followed by a full resync.
	assert.Equal(t, 2, store.callCount("fetch_all"))
	assert.Len(t, svc.Snapshot().Main, 1)
}

func TestCreateRuleValidationSkipsStore(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	_, err := svc.CreateRule(context.Background(), rules.CreateRuleRequest{
		Name:      "bad",
		Condition: "DROP TABLE rules",
	})

	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Zero(t, store.callCount("create"))
}

func TestSoftDeleteConfirmationGuard(t *testing.T) {
	seed := testRule("r1", models.StatusActive, baseTime)
	seed.Name = "High value transfer"

	t.Run("wrong confirmation makes no remote call", func(t *testing.T) {
		store := newFakeStore(seed)
		svc := newTestService(store)
		require.NoError(t, svc.Init(context.Background()))
		before := svc.Snapshot()

		err := svc.SoftDelete(context.Background(), "r1", "high value transfer")

		require.Error(t, err)
		assert.True(t, errors.IsValidation(err), "confirmation is case-sensitive")
		assert.Zero(t, store.callCount("soft_delete"))
		assert.Equal(t, before, svc.Snapshot(), "the cache is untouched on rejection")
	})

	t.Run("exact name proceeds and forces inactive", func(t *testing.T) {
		store := newFakeStore(seed)
		svc := newTestService(store)
		require.NoError(t, svc.Init(context.Background()))

		require.NoError(t, svc.SoftDelete(context.Background(), "r1", "High value transfer"))

		got, ok := svc.cache.Get("r1")
		require.True(t, ok)
		assert.True(t, got.IsDeleted)
		assert.Equal(t, models.StatusInactive, got.Status)
	})

	t.Run("unknown id", func(t *testing.T) {
		svc := newTestService(newFakeStore(seed))
		require.NoError(t, svc.Init(context.Background()))

		err := svc.SoftDelete(context.Background(), "ghost", "whatever")
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestSoftDeleteThenRecoverKeepsInactive(t *testing.T) {
	seed := testRule("r1", models.StatusActive, baseTime)
	seed.Name = "High value transfer"
	store := newFakeStore(seed)
	svc := newTestService(store)
	require.NoError(t, svc.Init(context.Background()))

	require.NoError(t, svc.SoftDelete(context.Background(), "r1", "High value transfer"))
	require.NoError(t, svc.Recover(context.Background(), "r1"))

	got, ok := svc.cache.Get("r1")
	require.True(t, ok)
	assert.False(t, got.IsDeleted)
	assert.Equal(t, models.StatusInactive, got.Status,
		"recover does not restore the pre-delete status")
}

func TestPermanentDeleteRemovesFromSnapshot(t *testing.T) {
	seed := testRule("r1", models.StatusActive, baseTime)
	seed.Name = "High value transfer"
	store := newFakeStore(seed)
	publisher := &fakePublisher{}
	svc := newTestService(store, WithPublisher(publisher))
	require.NoError(t, svc.Init(context.Background()))

	require.NoError(t, svc.PermanentDelete(context.Background(), "r1", "High value transfer"))

	assert.Empty(t, svc.Snapshot().Main)
	assert.Contains(t, publisher.eventTypes(), models.EventTypeRuleDeleted)
}

func TestToggleStatus(t *testing.T) {
	t.Run("active flips to inactive", func(t *testing.T) {
		store := newFakeStore(testRule("r1", models.StatusActive, baseTime))
		svc := newTestService(store)
		require.NoError(t, svc.Init(context.Background()))

		rule, err := svc.ToggleStatus(context.Background(), "r1")

		require.NoError(t, err)
		assert.Equal(t, models.StatusInactive, rule.Status)
	})

	t.Run("inactive flips to active", func(t *testing.T) {
		store := newFakeStore(testRule("r1", models.StatusInactive, baseTime))
		svc := newTestService(store)
		require.NoError(t, svc.Init(context.Background()))

		rule, err := svc.ToggleStatus(context.Background(), "r1")

		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, rule.Status)
	})

	for _, status := range []models.Status{models.StatusWarning, models.StatusInProgress} {
		t.Run("rejected for "+string(status), func(t *testing.T) {
			store := newFakeStore(testRule("r1", status, baseTime))
			svc := newTestService(store)
			require.NoError(t, svc.Init(context.Background()))

			_, err := svc.ToggleStatus(context.Background(), "r1")

			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
			assert.Zero(t, store.callCount("update"))
		})
	}
}

func TestToggleStatusCountsOnce(t *testing.T) {
	store := newFakeStore(testRule("r1", models.StatusActive, baseTime))
	svc := newTestService(store)
	require.NoError(t, svc.Init(context.Background()))

	updates := metrics.LifecycleOperationsTotal.WithLabelValues("update", "success")
	toggles := metrics.LifecycleOperationsTotal.WithLabelValues("toggle_status", "success")
	updatesBefore := testutil.ToFloat64(updates)
	togglesBefore := testutil.ToFloat64(toggles)

	_, err := svc.ToggleStatus(context.Background(), "r1")
	require.NoError(t, err)

	assert.Equal(t, togglesBefore+1, testutil.ToFloat64(toggles))
	assert.Equal(t, updatesBefore, testutil.ToFloat64(updates),
		"a toggle is one operation, not also an update")
}

func TestRemoteFailureLeavesCacheUnchanged(t *testing.T) {
	seed := testRule("r1", models.StatusActive, baseTime)
	seed.Name = "High value transfer"
	store := newFakeStore(seed)
	svc := newTestService(store)
	require.NoError(t, svc.Init(context.Background()))
	before := svc.Snapshot()

	store.fail["soft_delete"] = errors.ErrRemote

	err := svc.SoftDelete(context.Background(), "r1", "High value transfer")

	require.Error(t, err)
	assert.True(t, errors.IsRemote(err))
	assert.Equal(t, before, svc.Snapshot(), "no optimistic pre-application to roll back")
}

func TestResyncFailurePreservesLastGoodSnapshot(t *testing.T) {
	store := newFakeStore(testRule("r1", models.StatusActive, baseTime))
	svc := newTestService(store)
	require.NoError(t, svc.Init(context.Background()))

	store.fail["fetch_all"] = errors.ErrRemote

	err := svc.Resync(context.Background(), "manual")

	require.Error(t, err)
	assert.Len(t, svc.Snapshot().Main, 1, "a failed resync keeps the previous view")
}

func TestDisposedServiceIgnoresEvents(t *testing.T) {
	svc := newTestService(newFakeStore())
	require.NoError(t, svc.Init(context.Background()))
	svc.Dispose()

	svc.HandleEvent(context.Background(), changefeed.InsertEvent{Rule: testRule("r1", models.StatusActive, baseTime)})

	assert.Empty(t, svc.Snapshot().Main)

	err := svc.Resync(context.Background(), "manual")
	assert.True(t, errors.IsConflict(err))
}
