package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WebhookEventStatus tracks the processing lifecycle of a received
// billing event.
type WebhookEventStatus string

const (
	WebhookStatusPending   WebhookEventStatus = "pending"
	WebhookStatusCompleted WebhookEventStatus = "completed"
	WebhookStatusFailed    WebhookEventStatus = "failed"
)

// WebhookEvent is the journal record for a received Stripe event. The
// unique stripe_event_id index gives redelivery dedupe; processing is
// idempotent regardless, so the journal is advisory.
type WebhookEvent struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	StripeEventID      string             `bson:"stripe_event_id" json:"stripe_event_id"`
	EventType          string             `bson:"event_type" json:"event_type"`
	Status             WebhookEventStatus `bson:"status" json:"status"`
	ProcessingAttempts int                `bson:"processing_attempts" json:"processing_attempts"`
	LastError          string             `bson:"last_error,omitempty" json:"last_error,omitempty"`
	StripeCreatedAt    *time.Time         `bson:"stripe_created_at,omitempty" json:"stripe_created_at,omitempty"`
	ProcessedAt        *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
}
