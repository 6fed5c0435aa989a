package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/companionlab/billing-service/internal/domain/entity"
	domainerrors "github.com/companionlab/billing-service/internal/domain/errors"
	"github.com/companionlab/billing-service/internal/domain/repository"
)

type webhookEventRepository struct {
	col    *mongo.Collection
	logger *zap.Logger
}

// NewWebhookEventRepository returns the Mongo-backed event journal.
func NewWebhookEventRepository(db *mongo.Database, logger *zap.Logger) repository.WebhookEventRepository {
	return &webhookEventRepository{
		col:    db.Collection("webhook_events"),
		logger: logger,
	}
}

func (r *webhookEventRepository) SaveEvent(ctx context.Context, eventID, eventType string, occurredAt time.Time) (bool, error) {
	record := &entity.WebhookEvent{
		StripeEventID:   eventID,
		EventType:       eventType,
		Status:          entity.WebhookStatusPending,
		StripeCreatedAt: &occurredAt,
		CreatedAt:       time.Now(),
	}

	_, err := r.col.InsertOne(ctx, record)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to save webhook event: %w", err)
	}
	return true, nil
}

func (r *webhookEventRepository) GetEvent(ctx context.Context, eventID string) (*entity.WebhookEvent, error) {
	var record entity.WebhookEvent
	err := r.col.FindOne(ctx, bson.M{"stripe_event_id": eventID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}
	return &record, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, eventID string) error {
	now := time.Now()
	res, err := r.col.UpdateOne(ctx,
		bson.M{"stripe_event_id": eventID},
		bson.M{"$set": bson.M{
			"status":       entity.WebhookStatusCompleted,
			"processed_at": now,
		}})
	if err != nil {
		return fmt.Errorf("failed to mark webhook as processed: %w", err)
	}
	if res.MatchedCount == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *webhookEventRepository) MarkFailed(ctx context.Context, eventID string, cause error) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"stripe_event_id": eventID},
		bson.M{
			"$set": bson.M{
				"status":     entity.WebhookStatusFailed,
				"last_error": cause.Error(),
			},
			"$inc": bson.M{"processing_attempts": 1},
		})
	if err != nil {
		return fmt.Errorf("failed to mark webhook as failed: %w", err)
	}
	if res.MatchedCount == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}
