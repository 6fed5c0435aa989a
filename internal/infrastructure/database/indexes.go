package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// EnsureIndexes creates the indexes the reconciler's atomic writes rely
// on: the unique external-id key plus the secondary billing-ref lookups.
func EnsureIndexes(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	users := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "clerk_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "stripe_customer_id", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "stripe_subscription_id", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}
	if _, err := db.Collection("users").Indexes().CreateMany(ctx, users); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	events := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "stripe_event_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := db.Collection("webhook_events").Indexes().CreateMany(ctx, events); err != nil {
		return fmt.Errorf("failed to create webhook event indexes: %w", err)
	}

	payments := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "invoice_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := db.Collection("invoice_payments").Indexes().CreateMany(ctx, payments); err != nil {
		return fmt.Errorf("failed to create invoice payment indexes: %w", err)
	}

	logger.Info("MongoDB indexes ensured")
	return nil
}
