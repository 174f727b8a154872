package models

import "time"

// ChangeEnvelope is the wire format delivered on the changefeed topic. Exactly
// one of Rule/RuleID/State is populated depending on EventType; the decoder in
// internal/changefeed rejects anything else.
type ChangeEnvelope struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Rule      *Rule     `json:"rule,omitempty"`
	RuleID    string    `json:"rule_id,omitempty"`
	State     string    `json:"state,omitempty"`
}

const (
	EventTypeRuleInserted     = "rule_inserted"
	EventTypeRuleUpdated      = "rule_updated"
	EventTypeRuleDeleted      = "rule_deleted"
	EventTypeConnectionStatus = "connection_status"
)

const (
	ConnectionStateConnected    = "connected"
	ConnectionStateDisconnected = "disconnected"
	ConnectionStateReconnecting = "reconnecting"
)

func NewInsertEnvelope(id string, rule Rule) ChangeEnvelope {
	return ChangeEnvelope{
		ID:        id,
		OwnerID:   rule.OwnerID,
		EventType: EventTypeRuleInserted,
		Timestamp: time.Now(),
		Rule:      &rule,
	}
}

func NewUpdateEnvelope(id string, rule Rule) ChangeEnvelope {
	return ChangeEnvelope{
		ID:        id,
		OwnerID:   rule.OwnerID,
		EventType: EventTypeRuleUpdated,
		Timestamp: time.Now(),
		Rule:      &rule,
	}
}

func NewDeleteEnvelope(id, ownerID, ruleID string) ChangeEnvelope {
	return ChangeEnvelope{
		ID:        id,
		OwnerID:   ownerID,
		EventType: EventTypeRuleDeleted,
		Timestamp: time.Now(),
		RuleID:    ruleID,
	}
}
