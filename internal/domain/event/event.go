// Package event defines the classified billing events the reconciler
// consumes. Each provider event type maps to one typed variant with the
// fields already extracted; handlers never pass raw payloads inward.
package event

import "time"

type Kind string

const (
	KindCheckoutCompleted   Kind = "checkout.completed"
	KindSubscriptionChange  Kind = "subscription.change"
	KindSubscriptionDeleted Kind = "subscription.deleted"
	KindInvoicePaid         Kind = "invoice.paid"
)

// Event is one verified, classified billing lifecycle event.
type Event interface {
	Kind() Kind
	ID() string
	OccurredAt() time.Time
}

// CheckoutCompleted signals a finished checkout session. PriceID and
// SubscriptionID are usually absent from the webhook payload itself and
// recovered by re-fetching the session.
type CheckoutCompleted struct {
	EventID   string
	Created   time.Time
	SessionID string

	// ExternalID is the identity-provider id from session metadata;
	// ClientReference is the client_reference_id fallback.
	ExternalID      string
	ClientReference string

	CustomerID     string
	SubscriptionID string
	PriceID        string
}

func (e CheckoutCompleted) Kind() Kind            { return KindCheckoutCompleted }
func (e CheckoutCompleted) ID() string            { return e.EventID }
func (e CheckoutCompleted) OccurredAt() time.Time { return e.Created }

// SubscriptionChange covers subscription created and updated events.
type SubscriptionChange struct {
	EventID string
	Created time.Time

	SubscriptionID   string
	CustomerID       string
	ExternalID       string
	PriceID          string
	Status           string
	CurrentPeriodEnd *time.Time
}

func (e SubscriptionChange) Kind() Kind            { return KindSubscriptionChange }
func (e SubscriptionChange) ID() string            { return e.EventID }
func (e SubscriptionChange) OccurredAt() time.Time { return e.Created }

// SubscriptionDeleted signals a canceled subscription.
type SubscriptionDeleted struct {
	EventID string
	Created time.Time

	SubscriptionID string
	CustomerID     string
	ExternalID     string
}

func (e SubscriptionDeleted) Kind() Kind            { return KindSubscriptionDeleted }
func (e SubscriptionDeleted) ID() string            { return e.EventID }
func (e SubscriptionDeleted) OccurredAt() time.Time { return e.Created }

// InvoicePaid signals a successful invoice payment. The subscription id
// is the lookup key; plan facts are refreshed from the provider.
type InvoicePaid struct {
	EventID string
	Created time.Time

	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	AmountPaid     int64
	Currency       string
}

func (e InvoicePaid) Kind() Kind            { return KindInvoicePaid }
func (e InvoicePaid) ID() string            { return e.EventID }
func (e InvoicePaid) OccurredAt() time.Time { return e.Created }
