package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"warden/internal/constants"
)

// EnsureMongoCollection creates the indexes the rule metrics provider relies
// on. Lookups are always by rule_id; recomputation scans by updated_at.
func EnsureMongoCollection(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection(constants.RuleMetricsCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "rule_id", Value: 1}},
			Options: options.Index().SetName("idx_rule_metrics_rule_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}},
			Options: options.Index().SetName("idx_rule_metrics_owner_id"),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_rule_metrics_updated_at"),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
