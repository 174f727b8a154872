package mirror

import (
	"context"

	"github.com/google/uuid"

	"warden/internal/rules"
	"warden/pkg/errors"
	"warden/pkg/logging"
	"warden/pkg/metrics"
	"warden/pkg/models"
)

// Local mutations all follow the same discipline: validate, call the remote
// store, announce the change on the feed, then resync. The cache is never
// patched optimistically. While the store call is outstanding it stays
// exactly as it was, so a failure leaves nothing to roll back.

// CreateRule persists a new rule for this session's owner.
func (s *Service) CreateRule(ctx context.Context, req rules.CreateRuleRequest) (*models.Rule, error) {
	ctx = logging.WithOwnerID(ctx, s.ownerID)
	req.OwnerID = s.ownerID

	if err := rules.ValidateCreate(req); err != nil {
		metrics.IncLifecycleOperation("create", "rejected")
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.mutationTimeout)
	defer cancel()

	rule, err := s.store.Create(ctx, req)
	if err != nil {
		metrics.IncLifecycleOperation("create", "error")
		return nil, err
	}

	s.announce(ctx, models.NewInsertEnvelope(uuid.New().String(), *rule))
	metrics.IncLifecycleOperation("create", "success")

	if err := s.Resync(ctx, "mutation"); err != nil {
		return rule, err
	}
	return rule, nil
}

// UpdateRule applies a partial patch through the remote store.
func (s *Service) UpdateRule(ctx context.Context, id string, req rules.UpdateRuleRequest) (*models.Rule, error) {
	return s.updateRule(ctx, id, req, "update")
}

// updateRule carries the shared update flow; operation labels the metrics so
// a toggle counts as one toggle, not as an update too.
func (s *Service) updateRule(ctx context.Context, id string, req rules.UpdateRuleRequest, operation string) (*models.Rule, error) {
	ctx = logging.WithOwnerID(ctx, s.ownerID)

	if err := rules.ValidateUpdate(req); err != nil {
		metrics.IncLifecycleOperation(operation, "rejected")
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.mutationTimeout)
	defer cancel()

	rule, err := s.store.Update(ctx, id, req)
	if err != nil {
		metrics.IncLifecycleOperation(operation, "error")
		return nil, err
	}

	s.announce(ctx, models.NewUpdateEnvelope(uuid.New().String(), *rule))
	metrics.IncLifecycleOperation(operation, "success")

	if err := s.Resync(ctx, "mutation"); err != nil {
		return rule, err
	}
	return rule, nil
}

// SoftDelete marks a rule deleted after the caller has typed the rule's exact
// name. On mismatch no remote call is made and the cache is untouched.
func (s *Service) SoftDelete(ctx context.Context, id, confirmation string) error {
	ctx = logging.WithOwnerID(ctx, s.ownerID)

	if err := s.confirm(id, confirmation, "soft_delete"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.mutationTimeout)
	defer cancel()

	if err := s.store.SoftDelete(ctx, id); err != nil {
		metrics.IncLifecycleOperation("soft_delete", "error")
		return err
	}

	s.announceCurrent(ctx, id)
	metrics.IncLifecycleOperation("soft_delete", "success")
	return s.Resync(ctx, "mutation")
}

// Recover clears the deletion flag. No confirmation: recovery is the safe
// direction.
func (s *Service) Recover(ctx context.Context, id string) error {
	ctx = logging.WithOwnerID(ctx, s.ownerID)

	ctx, cancel := context.WithTimeout(ctx, s.mutationTimeout)
	defer cancel()

	if err := s.store.Recover(ctx, id); err != nil {
		metrics.IncLifecycleOperation("recover", "error")
		return err
	}

	s.announceCurrent(ctx, id)
	metrics.IncLifecycleOperation("recover", "success")
	return s.Resync(ctx, "mutation")
}

// PermanentDelete removes a rule irreversibly, under the same typed-name
// guard as SoftDelete. The id is absent from the next snapshot by
// construction.
func (s *Service) PermanentDelete(ctx context.Context, id, confirmation string) error {
	ctx = logging.WithOwnerID(ctx, s.ownerID)

	if err := s.confirm(id, confirmation, "permanent_delete"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.mutationTimeout)
	defer cancel()

	if err := s.store.PermanentDelete(ctx, id); err != nil {
		metrics.IncLifecycleOperation("permanent_delete", "error")
		return err
	}

	s.announce(ctx, models.NewDeleteEnvelope(uuid.New().String(), s.ownerID, id))
	metrics.IncLifecycleOperation("permanent_delete", "success")
	return s.Resync(ctx, "mutation")
}

// ToggleStatus flips a rule between active and inactive. Rules in warning or
// in_progress need an explicit target status via UpdateRule instead.
func (s *Service) ToggleStatus(ctx context.Context, id string) (*models.Rule, error) {
	ctx = logging.WithOwnerID(ctx, s.ownerID)

	current, ok := s.cache.Get(id)
	if !ok {
		metrics.IncLifecycleOperation("toggle_status", "rejected")
		return nil, errors.ErrNotFound.WithDetail("rule_id", id)
	}

	var target models.Status
	switch current.Status {
	case models.StatusActive:
		target = models.StatusInactive
	case models.StatusInactive:
		target = models.StatusActive
	default:
		metrics.IncLifecycleOperation("toggle_status", "rejected")
		return nil, errors.ErrValidation.WithDetail("message",
			"only active and inactive rules can be toggled; set an explicit status instead")
	}

	status := string(target)
	return s.updateRule(ctx, id, rules.UpdateRuleRequest{Status: &status}, "toggle_status")
}

// confirm enforces the typed-name guard for destructive operations. The
// comparison is case-sensitive and exact.
func (s *Service) confirm(id, confirmation, operation string) error {
	rule, ok := s.cache.Get(id)
	if !ok {
		metrics.IncLifecycleOperation(operation, "rejected")
		return errors.ErrNotFound.WithDetail("rule_id", id)
	}

	if confirmation != rule.Name {
		metrics.IncConfirmationRejection(operation)
		metrics.IncLifecycleOperation(operation, "rejected")
		return errors.ErrValidation.
			WithDetail("message", "confirmation text does not match the rule name").
			WithDetail("rule_id", id)
	}

	return nil
}

func (s *Service) announce(ctx context.Context, envelope models.ChangeEnvelope) {
	if err := s.publisher.Publish(ctx, envelope); err != nil {
		// The resync that follows keeps this mirror correct; other mirrors
		// converge on their next resync.
		s.logger.WarnwCtx(ctx, "Failed to announce local mutation",
			"event_type", envelope.EventType,
			"error", err,
		)
	}
}

// announceCurrent publishes the rule's post-mutation state as an update event.
func (s *Service) announceCurrent(ctx context.Context, id string) {
	rule, err := s.store.Get(ctx, id)
	if err != nil {
		s.logger.WarnwCtx(ctx, "Could not load rule for announcement",
			"rule_id", id,
			"error", err,
		)
		return
	}
	s.announce(ctx, models.NewUpdateEnvelope(uuid.New().String(), *rule))
}
