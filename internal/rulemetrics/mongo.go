package rulemetrics

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"warden/internal/constants"
	"warden/internal/logger"
	"warden/pkg/errors"
)

// Metrics is the per-rule effectiveness record maintained by the detection
// pipeline. The mirror stores and filters on these numbers but never computes
// them.
type Metrics struct {
	RuleID         string    `bson:"rule_id" json:"rule_id"`
	OwnerID        string    `bson:"owner_id" json:"owner_id"`
	Catches        int       `bson:"catches" json:"catches"`
	FalsePositives int       `bson:"false_positives" json:"false_positives"`
	Effectiveness  int       `bson:"effectiveness" json:"effectiveness"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}

// Provider supplies rule metrics during resync. Implementations must treat
// missing rules as zero-valued, not as errors.
type Provider interface {
	ForOwner(ctx context.Context, ownerID string) (map[string]Metrics, error)
	Record(ctx context.Context, m Metrics) error
}

type MongoProvider struct {
	collection *mongo.Collection
	logger     logger.Logger
}

func NewMongoProvider(db *mongo.Database, log logger.Logger) *MongoProvider {
	return &MongoProvider{
		collection: db.Collection(constants.RuleMetricsCollection),
		logger:     log,
	}
}

// ForOwner returns every metrics record for the owner keyed by rule id.
func (p *MongoProvider) ForOwner(ctx context.Context, ownerID string) (map[string]Metrics, error) {
	cursor, err := p.collection.Find(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrRemote)
	}
	defer cursor.Close(ctx)

	result := make(map[string]Metrics)
	for cursor.Next(ctx) {
		var m Metrics
		if err := cursor.Decode(&m); err != nil {
			p.logger.WarnwCtx(ctx, "Skipping undecodable metrics record",
				"error", err,
			)
			continue
		}
		result[m.RuleID] = m
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrRemote)
	}

	return result, nil
}

// Record upserts a metrics record by rule id.
func (p *MongoProvider) Record(ctx context.Context, m Metrics) error {
	m.UpdatedAt = time.Now()

	_, err := p.collection.UpdateOne(ctx,
		bson.M{"rule_id": m.RuleID},
		bson.M{"$set": m},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrRemote)
	}
	return nil
}
