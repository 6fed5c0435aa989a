// Package billing defines the read-only contract against the billing
// provider. The reconciler uses it to recover metadata the webhook
// payloads omit; all calls are safe to retry.
package billing

import (
	"context"
	"time"
)

// Customer is the slice of a billing customer the reconciler needs.
type Customer struct {
	ID         string
	Email      string
	ExternalID string // identity-provider id from customer metadata
}

// Subscription is the slice of a billing subscription the reconciler
// needs: first item's price, verbatim status, absolute period end.
type Subscription struct {
	ID               string
	CustomerID       string
	ExternalID       string
	PriceID          string
	Status           string
	CurrentPeriodEnd *time.Time
}

// CheckoutSession is a checkout session with line items and the created
// subscription expanded.
type CheckoutSession struct {
	ID              string
	CustomerID      string
	SubscriptionID  string
	ExternalID      string
	ClientReference string
	PriceID         string
}

// Gateway issues read-only lookups against the billing provider.
type Gateway interface {
	Customer(ctx context.Context, id string) (*Customer, error)
	Subscription(ctx context.Context, id string) (*Subscription, error)
	CheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
}
