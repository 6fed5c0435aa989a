package repository

import (
	"context"
	"time"

	"github.com/companionlab/billing-service/internal/domain/entity"
)

// WebhookEventRepository journals received billing events for dedupe
// and operator visibility.
type WebhookEventRepository interface {
	// SaveEvent records a newly received event as pending. Returns
	// created=false when the event id was already journaled.
	SaveEvent(ctx context.Context, eventID, eventType string, occurredAt time.Time) (created bool, err error)

	GetEvent(ctx context.Context, eventID string) (*entity.WebhookEvent, error)
	MarkProcessed(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, cause error) error
}
