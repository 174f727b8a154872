package rules

import (
	"context"

	"warden/pkg/models"
)

// Store is the remote, authoritative home of rule records. The mirror never
// treats its own cache as durable; every mutation goes through here and is
// followed by a FetchAll-based resync.
type Store interface {
	FetchAll(ctx context.Context, ownerID string) ([]models.Rule, error)
	Create(ctx context.Context, req CreateRuleRequest) (*models.Rule, error)
	Update(ctx context.Context, id string, req UpdateRuleRequest) (*models.Rule, error)
	SoftDelete(ctx context.Context, id string) error
	Recover(ctx context.Context, id string) error
	PermanentDelete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Rule, error)
}
