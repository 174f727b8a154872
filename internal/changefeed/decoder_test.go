package changefeed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/pkg/errors"
	"warden/pkg/models"
)

func TestDecodeInsert(t *testing.T) {
	raw := []byte(`{
		"id": "evt-1",
		"owner_id": "owner-1",
		"event_type": "rule_inserted",
		"rule": {
			"id": "rule-1",
			"owner_id": "owner-1",
			"name": "High value transfer",
			"condition": "amount > 1000",
			"severity": "high",
			"status": "active",
			"updated_at": "2026-01-10T12:00:00Z"
		}
	}`)

	event, err := Decode(raw)
	require.NoError(t, err)

	insert, ok := event.(InsertEvent)
	require.True(t, ok, "expected InsertEvent, got %T", event)
	assert.Equal(t, "rule-1", insert.Rule.ID)
	assert.Equal(t, models.StatusActive, insert.Rule.Status)
	assert.Equal(t, time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC), insert.Rule.UpdatedAt)
}

func TestDecodeUpdate(t *testing.T) {
	raw := []byte(`{
		"event_type": "rule_updated",
		"rule": {"id": "rule-2", "owner_id": "owner-1", "name": "r", "condition": "x > 1", "updated_at": "2026-01-10T12:00:00Z"}
	}`)

	event, err := Decode(raw)
	require.NoError(t, err)

	update, ok := event.(UpdateEvent)
	require.True(t, ok, "expected UpdateEvent, got %T", event)
	assert.Equal(t, "rule-2", update.Rule.ID)
}

func TestDecodeDelete(t *testing.T) {
	event, err := Decode([]byte(`{"event_type": "rule_deleted", "rule_id": "rule-3"}`))
	require.NoError(t, err)

	del, ok := event.(DeleteEvent)
	require.True(t, ok, "expected DeleteEvent, got %T", event)
	assert.Equal(t, "rule-3", del.RuleID)
}

func TestDecodeConnectionStatus(t *testing.T) {
	for _, state := range []string{
		models.ConnectionStateConnected,
		models.ConnectionStateDisconnected,
		models.ConnectionStateReconnecting,
	} {
		event, err := Decode([]byte(`{"event_type": "connection_status", "state": "` + state + `"}`))
		require.NoError(t, err)

		status, ok := event.(ConnectionStatusEvent)
		require.True(t, ok, "expected ConnectionStatusEvent, got %T", event)
		assert.Equal(t, state, status.State)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{{{`},
		{name: "missing event type", raw: `{"rule_id": "rule-1"}`},
		{name: "unknown event type", raw: `{"event_type": "rule_archived"}`},
		{name: "insert without rule", raw: `{"event_type": "rule_inserted"}`},
		{name: "insert rule without id", raw: `{"event_type": "rule_inserted", "rule": {"name": "x", "updated_at": "2026-01-10T12:00:00Z"}}`},
		{name: "insert rule without updated_at", raw: `{"event_type": "rule_inserted", "rule": {"id": "rule-1"}}`},
		{name: "update without rule", raw: `{"event_type": "rule_updated"}`},
		{name: "delete without rule id", raw: `{"event_type": "rule_deleted"}`},
		{name: "unknown connection state", raw: `{"event_type": "connection_status", "state": "flapping"}`},
		{name: "malformed timestamp", raw: `{"event_type": "rule_updated", "rule": {"id": "rule-1", "updated_at": "yesterday"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := Decode([]byte(tt.raw))

			require.Error(t, err)
			assert.Nil(t, event, "a decode error must never return a partially-populated event")
			assert.True(t, errors.IsDecode(err), "expected decode error, got %v", err)
		})
	}
}
