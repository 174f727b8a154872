package changefeed

import (
	"encoding/json"

	"warden/pkg/errors"
	"warden/pkg/models"
)

// Event is the closed set of things a changefeed payload can decode into.
// Consumers switch over the concrete types; nothing outside this package can
// add a variant.
type Event interface {
	isEvent()
}

type InsertEvent struct {
	Rule models.Rule
}

type UpdateEvent struct {
	Rule models.Rule
}

type DeleteEvent struct {
	RuleID string
}

type ConnectionStatusEvent struct {
	State string
}

func (InsertEvent) isEvent()           {}
func (UpdateEvent) isEvent()           {}
func (DeleteEvent) isEvent()           {}
func (ConnectionStatusEvent) isEvent() {}

// Decode maps a raw changefeed payload onto exactly one Event variant. A
// payload that matches no variant, or that is missing required fields, yields
// a decode error and never a partially-populated event; the caller recovers
// with a full resync, not incremental repair.
func Decode(raw []byte) (Event, error) {
	var envelope models.ChangeEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errors.Wrap(err, errors.ErrDecode)
	}

	switch envelope.EventType {
	case models.EventTypeRuleInserted:
		if err := requireRule(envelope); err != nil {
			return nil, err
		}
		return InsertEvent{Rule: *envelope.Rule}, nil

	case models.EventTypeRuleUpdated:
		if err := requireRule(envelope); err != nil {
			return nil, err
		}
		return UpdateEvent{Rule: *envelope.Rule}, nil

	case models.EventTypeRuleDeleted:
		if envelope.RuleID == "" {
			return nil, errors.ErrDecode.WithDetail("message", "delete event is missing rule_id")
		}
		return DeleteEvent{RuleID: envelope.RuleID}, nil

	case models.EventTypeConnectionStatus:
		switch envelope.State {
		case models.ConnectionStateConnected, models.ConnectionStateDisconnected, models.ConnectionStateReconnecting:
			return ConnectionStatusEvent{State: envelope.State}, nil
		default:
			return nil, errors.ErrDecode.
				WithDetail("message", "unknown connection state").
				WithDetail("state", envelope.State)
		}

	case "":
		return nil, errors.ErrDecode.WithDetail("message", "payload is missing event_type")

	default:
		return nil, errors.ErrDecode.
			WithDetail("message", "unknown event type").
			WithDetail("event_type", envelope.EventType)
	}
}

func requireRule(envelope models.ChangeEnvelope) error {
	if envelope.Rule == nil {
		return errors.ErrDecode.
			WithDetail("message", "rule event is missing its rule payload").
			WithDetail("event_type", envelope.EventType)
	}
	if envelope.Rule.ID == "" {
		return errors.ErrDecode.
			WithDetail("message", "rule payload is missing id").
			WithDetail("event_type", envelope.EventType)
	}
	if envelope.Rule.UpdatedAt.IsZero() {
		return errors.ErrDecode.
			WithDetail("message", "rule payload is missing updated_at").
			WithDetail("rule_id", envelope.Rule.ID)
	}
	return nil
}
