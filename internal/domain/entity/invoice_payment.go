package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InvoicePayment records a successful invoice payment. Amount is stored
// in major units as a Decimal128 built from the provider's minor-unit
// integer.
type InvoicePayment struct {
	ID                   primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	InvoiceID            string               `bson:"invoice_id" json:"invoice_id"`
	StripeCustomerID     string               `bson:"stripe_customer_id,omitempty" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string               `bson:"stripe_subscription_id,omitempty" json:"stripe_subscription_id,omitempty"`
	Amount               primitive.Decimal128 `bson:"amount" json:"amount"`
	Currency             string               `bson:"currency" json:"currency"`
	PaidAt               time.Time            `bson:"paid_at" json:"paid_at"`
	CreatedAt            time.Time            `bson:"created_at" json:"created_at"`
}
