package mirror

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/changefeed"
	"warden/internal/config"
	"warden/internal/logger"
	"warden/pkg/errors"
	"warden/pkg/models"
)

// fakeFeed records subscriptions so tests can assert the one-per-owner rule.
type fakeFeed struct {
	mu   sync.Mutex
	subs map[string][]*fakeSubscription
}

type fakeSubscription struct {
	mu        sync.Mutex
	cancelled bool
}

func (s *fakeSubscription) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

func (s *fakeSubscription) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{subs: make(map[string][]*fakeSubscription)}
}

func (f *fakeFeed) Subscribe(ownerID string, handler changefeed.Handler) (changefeed.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSubscription{}
	f.subs[ownerID] = append(f.subs[ownerID], sub)
	return sub, nil
}

func (f *fakeFeed) subscriptions(ownerID string) []*fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeSubscription(nil), f.subs[ownerID]...)
}

func newTestManager(store *fakeStore, feed changefeed.Feed) *Manager {
	return NewManager(store, feed, nil, nil, config.MirrorConfig{}, logger.NopLogger())
}

func TestManagerInitSession(t *testing.T) {
	store := newFakeStore(testRule("r1", models.StatusActive, baseTime))
	manager := newTestManager(store, newFakeFeed())

	session, err := manager.InitSession(context.Background(), "owner-1")

	require.NoError(t, err)
	assert.Len(t, session.Snapshot().Main, 1)

	got, ok := manager.Session("owner-1")
	require.True(t, ok)
	assert.Same(t, session, got)
}

func TestManagerReplacesExistingSession(t *testing.T) {
	store := newFakeStore()
	feed := newFakeFeed()
	manager := newTestManager(store, feed)

	first, err := manager.InitSession(context.Background(), "owner-1")
	require.NoError(t, err)
	second, err := manager.InitSession(context.Background(), "owner-1")
	require.NoError(t, err)

	assert.NotSame(t, first, second)

	subs := feed.subscriptions("owner-1")
	require.Len(t, subs, 2)
	assert.True(t, subs[0].isCancelled(), "replacing a session cancels the old subscription")
	assert.False(t, subs[1].isCancelled())
}

func TestManagerSessionsAreIsolatedByOwner(t *testing.T) {
	ruleA := testRule("r1", models.StatusActive, baseTime)
	ruleB := testRule("r2", models.StatusActive, baseTime)
	ruleB.OwnerID = "owner-2"

	store := newFakeStore(ruleA, ruleB)
	manager := newTestManager(store, newFakeFeed())

	a, err := manager.InitSession(context.Background(), "owner-1")
	require.NoError(t, err)
	b, err := manager.InitSession(context.Background(), "owner-2")
	require.NoError(t, err)

	assert.Equal(t, []string{"r1"}, cacheIDs(a.Snapshot().Main))
	assert.Equal(t, []string{"r2"}, cacheIDs(b.Snapshot().Main))
}

func TestManagerDisposeSession(t *testing.T) {
	store := newFakeStore()
	feed := newFakeFeed()
	manager := newTestManager(store, feed)

	_, err := manager.InitSession(context.Background(), "owner-1")
	require.NoError(t, err)

	require.NoError(t, manager.DisposeSession("owner-1"))

	_, ok := manager.Session("owner-1")
	assert.False(t, ok)
	assert.True(t, feed.subscriptions("owner-1")[0].isCancelled())

	err = manager.DisposeSession("owner-1")
	assert.True(t, errors.IsNotFound(err))
}

func TestManagerInitSessionRequiresOwner(t *testing.T) {
	manager := newTestManager(newFakeStore(), newFakeFeed())

	_, err := manager.InitSession(context.Background(), "")

	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestManagerInitSessionFailsWhenStoreDown(t *testing.T) {
	store := newFakeStore()
	store.fail["fetch_all"] = errors.ErrRemote
	manager := newTestManager(store, newFakeFeed())

	_, err := manager.InitSession(context.Background(), "owner-1")

	require.Error(t, err)
	_, ok := manager.Session("owner-1")
	assert.False(t, ok, "a failed init leaves no session behind")
}

func TestManagerClose(t *testing.T) {
	store := newFakeStore()
	feed := newFakeFeed()
	manager := newTestManager(store, feed)

	_, err := manager.InitSession(context.Background(), "owner-1")
	require.NoError(t, err)
	_, err = manager.InitSession(context.Background(), "owner-2")
	require.NoError(t, err)

	require.NoError(t, manager.Close())

	_, ok := manager.Session("owner-1")
	assert.False(t, ok)
	assert.True(t, feed.subscriptions("owner-1")[0].isCancelled())
	assert.True(t, feed.subscriptions("owner-2")[0].isCancelled())
}
