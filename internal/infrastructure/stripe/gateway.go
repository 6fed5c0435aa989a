// Package stripe implements the billing gateway and event
// classification against the Stripe API.
package stripe

import (
	"context"
	"fmt"
	"time"

	stripego "github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"
	"go.uber.org/zap"

	"github.com/companionlab/billing-service/internal/domain/billing"
)

// MetadataExternalIDKey is where checkout initiation embeds the
// identity-provider id on sessions, customers and subscriptions, and
// where event classification reads it back.
const MetadataExternalIDKey = "clerkId"

// Gateway is the read-only Stripe lookup implementation. The global
// stripe key is set once at server startup.
type Gateway struct {
	logger *zap.Logger
}

func NewGateway(logger *zap.Logger) *Gateway {
	return &Gateway{logger: logger}
}

func (g *Gateway) Customer(ctx context.Context, id string) (*billing.Customer, error) {
	params := &stripego.CustomerParams{}
	params.Context = ctx

	cust, err := customer.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe customer lookup failed: %w", err)
	}

	return &billing.Customer{
		ID:         cust.ID,
		Email:      cust.Email,
		ExternalID: cust.Metadata[MetadataExternalIDKey],
	}, nil
}

func (g *Gateway) Subscription(ctx context.Context, id string) (*billing.Subscription, error) {
	params := &stripego.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items.data.price")

	sub, err := subscription.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe subscription lookup failed: %w", err)
	}

	out := &billing.Subscription{
		ID:               sub.ID,
		ExternalID:       sub.Metadata[MetadataExternalIDKey],
		PriceID:          firstSubscriptionPriceID(sub),
		Status:           string(sub.Status),
		CurrentPeriodEnd: unixToTime(sub.CurrentPeriodEnd),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	return out, nil
}

func (g *Gateway) CheckoutSession(ctx context.Context, id string) (*billing.CheckoutSession, error) {
	params := &stripego.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items.data.price")
	params.AddExpand("subscription")

	session, err := checkoutsession.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session lookup failed: %w", err)
	}

	out := &billing.CheckoutSession{
		ID:              session.ID,
		ExternalID:      session.Metadata[MetadataExternalIDKey],
		ClientReference: session.ClientReferenceID,
	}
	if session.Customer != nil {
		out.CustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		out.SubscriptionID = session.Subscription.ID
	}
	if session.LineItems != nil && len(session.LineItems.Data) > 0 {
		if price := session.LineItems.Data[0].Price; price != nil {
			out.PriceID = price.ID
		}
	}
	return out, nil
}

func firstSubscriptionPriceID(sub *stripego.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	if price := sub.Items.Data[0].Price; price != nil {
		return price.ID
	}
	return ""
}

func unixToTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
