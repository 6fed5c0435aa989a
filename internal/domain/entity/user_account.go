package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PlanStatus mirrors the billing provider's subscription status values.
// The provider is authoritative: any status can follow any other.
type PlanStatus string

const (
	PlanStatusActive            PlanStatus = "active"
	PlanStatusTrialing          PlanStatus = "trialing"
	PlanStatusPastDue           PlanStatus = "past_due"
	PlanStatusCanceled          PlanStatus = "canceled"
	PlanStatusIncomplete        PlanStatus = "incomplete"
	PlanStatusIncompleteExpired PlanStatus = "incomplete_expired"
	PlanStatusUnpaid            PlanStatus = "unpaid"
	PlanStatusPaused            PlanStatus = "paused"
)

// Plan is the embedded subscription state on a user account. Name holds
// the billing price identifier, or "" when no plan is attached.
type Plan struct {
	Name             string     `bson:"name" json:"name"`
	Status           PlanStatus `bson:"status" json:"status"`
	CurrentPeriodEnd *time.Time `bson:"current_period_end,omitempty" json:"current_period_end,omitempty"`
}

// UserAccount is the single per-user document. ClerkID is the stable
// identity-provider id and the primary linking key; the Stripe refs are
// set lazily as billing events arrive. A record may exist with no
// billing identifiers at all (identity-only, pre-payment).
type UserAccount struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ClerkID   string             `bson:"clerk_id" json:"clerk_id"`
	Email     string             `bson:"email" json:"email"`
	Username  string             `bson:"username,omitempty" json:"username,omitempty"`
	FirstName string             `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName  string             `bson:"last_name,omitempty" json:"last_name,omitempty"`

	StripeCustomerID     string `bson:"stripe_customer_id,omitempty" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string `bson:"stripe_subscription_id,omitempty" json:"stripe_subscription_id,omitempty"`

	Plan Plan `bson:"plan" json:"plan"`

	// LastBillingEventAt is the provider timestamp of the newest billing
	// event applied to this record. Writes carrying an older timestamp
	// are refused so a late-arriving "active" cannot revive a canceled
	// subscription.
	LastBillingEventAt *time.Time `bson:"last_billing_event_at,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
