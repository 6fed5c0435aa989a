package stripe

import (
	"encoding/json"
	"fmt"
	"time"

	stripego "github.com/stripe/stripe-go/v79"

	"github.com/companionlab/billing-service/internal/domain/event"
)

// ClassifyEvent maps a verified Stripe event onto the typed billing
// event union. Payloads that do not match the shape expected for their
// declared type are rejected rather than partially trusted. A nil, nil
// return means the event type is not one the reconciler handles.
func ClassifyEvent(ev *stripego.Event) (event.Event, error) {
	created := time.Unix(ev.Created, 0).UTC()

	switch ev.Type {
	case stripego.EventTypeCheckoutSessionCompleted:
		var session stripego.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("malformed checkout session payload: %w", err)
		}
		if session.ID == "" {
			return nil, fmt.Errorf("checkout session event %s has no session id", ev.ID)
		}

		out := event.CheckoutCompleted{
			EventID:         ev.ID,
			Created:         created,
			SessionID:       session.ID,
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

	case stripego.EventTypeCustomerSubscriptionCreated,
		stripego.EventTypeCustomerSubscriptionUpdated:
		sub, err := parseSubscription(ev)
		if err != nil {
			return nil, err
		}

		out := event.SubscriptionChange{
			EventID:          ev.ID,
			Created:          created,
			SubscriptionID:   sub.ID,
			ExternalID:       sub.Metadata[MetadataExternalIDKey],
			PriceID:          firstSubscriptionPriceID(sub),
			Status:           string(sub.Status),
			CurrentPeriodEnd: unixToTime(sub.CurrentPeriodEnd),
		}
		if sub.Customer != nil {
			out.CustomerID = sub.Customer.ID
		}
		return out, nil

	case stripego.EventTypeCustomerSubscriptionDeleted:
		sub, err := parseSubscription(ev)
		if err != nil {
			return nil, err
		}

		out := event.SubscriptionDeleted{
			EventID:        ev.ID,
			Created:        created,
			SubscriptionID: sub.ID,
			ExternalID:     sub.Metadata[MetadataExternalIDKey],
		}
		if sub.Customer != nil {
			out.CustomerID = sub.Customer.ID
		}
		return out, nil

	case stripego.EventTypeInvoicePaymentSucceeded:
		var invoice stripego.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &invoice); err != nil {
			return nil, fmt.Errorf("malformed invoice payload: %w", err)
		}
		if invoice.ID == "" {
			return nil, fmt.Errorf("invoice event %s has no invoice id", ev.ID)
		}

		out := event.InvoicePaid{
			EventID:    ev.ID,
			Created:    created,
			InvoiceID:  invoice.ID,
			AmountPaid: invoice.AmountPaid,
			Currency:   string(invoice.Currency),
		}
		if invoice.Customer != nil {
			out.CustomerID = invoice.Customer.ID
		}
		if invoice.Subscription != nil {
			out.SubscriptionID = invoice.Subscription.ID
		}
		return out, nil

	default:
		return nil, nil
	}
}

func parseSubscription(ev *stripego.Event) (*stripego.Subscription, error) {
	var sub stripego.Subscription
	if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("malformed subscription payload: %w", err)
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("subscription event %s has no subscription id", ev.ID)
	}
	return &sub, nil
}
