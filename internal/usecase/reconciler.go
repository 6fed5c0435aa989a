package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/companionlab/billing-service/internal/domain/billing"
	"github.com/companionlab/billing-service/internal/domain/entity"
	domainerrors "github.com/companionlab/billing-service/internal/domain/errors"
	"github.com/companionlab/billing-service/internal/domain/event"
	"github.com/companionlab/billing-service/internal/domain/repository"
)

// PlanNotifier is told about plan changes after a successful reconcile.
// Implementations must not block reconciliation on failure.
type PlanNotifier interface {
	NotifyPlanChanged(ctx context.Context, clerkID string, plan entity.Plan) error
}

// Reconciler maps billing lifecycle events onto user account records.
// Every write is idempotent and atomic; the only suspension points are
// read-only provider lookups, so any failure is safe to retry via
// provider redelivery. There is no internal retry loop.
type Reconciler struct {
	users    repository.UserAccountRepository
	payments repository.InvoicePaymentRepository
	gateway  billing.Gateway
	notifier PlanNotifier
	logger   *zap.Logger
}

func NewReconciler(
	users repository.UserAccountRepository,
	payments repository.InvoicePaymentRepository,
	gateway billing.Gateway,
	notifier PlanNotifier,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		users:    users,
		payments: payments,
		gateway:  gateway,
		notifier: notifier,
		logger:   logger,
	}
}

// Reconcile applies one verified billing event. A nil return means the
// event is fully handled and may be acknowledged, including the no-op
// cases (unknown user, stale event). A non-nil return means a transient
// failure; the caller should reply retryable so the provider redelivers.
func (r *Reconciler) Reconcile(ctx context.Context, ev event.Event) error {
	switch e := ev.(type) {
	case event.CheckoutCompleted:
		return r.reconcileCheckout(ctx, e)
	case event.SubscriptionChange:
		return r.reconcileSubscriptionChange(ctx, e)
	case event.SubscriptionDeleted:
		return r.reconcileSubscriptionDeleted(ctx, e)
	case event.InvoicePaid:
		return r.reconcileInvoicePaid(ctx, e)
	default:
		r.logger.Warn("Unhandled event kind", zap.String("kind", string(ev.Kind())))
		return nil
	}
}

func (r *Reconciler) reconcileCheckout(ctx context.Context, e event.CheckoutCompleted) error {
	// The webhook payload carries no line items, so the session is
	// re-fetched with line_items and subscription expanded.
	if e.PriceID == "" || e.SubscriptionID == "" {
		session, err := r.gateway.CheckoutSession(ctx, e.SessionID)
		if err != nil {
			return fmt.Errorf("failed to retrieve checkout session %s: %w", e.SessionID, err)
		}
		if e.PriceID == "" {
			e.PriceID = session.PriceID
		}
		if e.SubscriptionID == "" {
			e.SubscriptionID = session.SubscriptionID
		}
		if e.CustomerID == "" {
			e.CustomerID = session.CustomerID
		}
		if e.ExternalID == "" {
			e.ExternalID = session.ExternalID
		}
		if e.ClientReference == "" {
			e.ClientReference = session.ClientReference
		}
	}

	// Metadata wins over the client reference.
	clerkID := e.ExternalID
	if clerkID == "" {
		clerkID = e.ClientReference
	}

	upd := repository.PlanUpdate{
		CustomerID:     e.CustomerID,
		SubscriptionID: e.SubscriptionID,
		Plan: entity.Plan{
			Name:   e.PriceID,
			Status: entity.PlanStatusActive,
		},
		EventAt: e.Created,
	}

	return r.applyKeyed(ctx, clerkID, e.CustomerID, e.SubscriptionID, upd, e)
}

func (r *Reconciler) reconcileSubscriptionChange(ctx context.Context, e event.SubscriptionChange) error {
	clerkID, err := r.resolveExternalID(ctx, e.ExternalID, e.CustomerID)
	if err != nil {
		return err
	}

	upd := repository.PlanUpdate{
		CustomerID:     e.CustomerID,
		SubscriptionID: e.SubscriptionID,
		Plan: entity.Plan{
			Name:             e.PriceID,
			Status:           entity.PlanStatus(e.Status),
			CurrentPeriodEnd: e.CurrentPeriodEnd,
		},
		EventAt: e.Created,
	}

	return r.applyKeyed(ctx, clerkID, e.CustomerID, e.SubscriptionID, upd, e)
}

func (r *Reconciler) reconcileSubscriptionDeleted(ctx context.Context, e event.SubscriptionDeleted) error {
	clerkID, err := r.resolveExternalID(ctx, e.ExternalID, e.CustomerID)
	if err != nil {
		return err
	}

	upd := repository.PlanUpdate{
		CustomerID:        e.CustomerID,
		ClearSubscription: true,
		Plan: entity.Plan{
			Name:   "",
			Status: entity.PlanStatusCanceled,
		},
		EventAt: e.Created,
	}

	return r.applyKeyed(ctx, clerkID, e.CustomerID, e.SubscriptionID, upd, e)
}

func (r *Reconciler) reconcileInvoicePaid(ctx context.Context, e event.InvoicePaid) error {
	if e.SubscriptionID == "" {
		// One-off invoice with no subscription attached.
		r.logger.Info("Invoice has no subscription, skipping",
			zap.String("event_id", e.EventID),
			zap.String("invoice_id", e.InvoiceID))
		return nil
	}

	// Refresh plan facts from the subscription itself rather than
	// trusting invoice line shapes.
	sub, err := r.gateway.Subscription(ctx, e.SubscriptionID)
	if err != nil {
		return fmt.Errorf("failed to retrieve subscription %s: %w", e.SubscriptionID, err)
	}

	upd := repository.PlanUpdate{
		Plan: entity.Plan{
			Name:             sub.PriceID,
			Status:           entity.PlanStatus(sub.Status),
			CurrentPeriodEnd: sub.CurrentPeriodEnd,
		},
		EventAt: e.Created,
	}

	// Update-only: a successful payment implies an earlier event already
	// reconciled the subscription. If none matched, provider redelivery
	// will retry after the race settles, so ack without creating a
	// partial record.
	err = r.users.UpdatePlanBySubscriptionID(ctx, e.SubscriptionID, upd)
	if errors.Is(err, domainerrors.ErrNotFound) {
		r.logger.Info("No account for subscription, skipping",
			zap.String("event_id", e.EventID),
			zap.String("subscription_id", e.SubscriptionID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to update plan by subscription: %w", err)
	}

	r.recordInvoicePayment(ctx, e)
	return nil
}

// resolveExternalID returns the identity-provider id for a subscription
// event, falling back to the billing customer's metadata. An empty
// result is not an error; the caller falls through to customer-ref
// matching.
func (r *Reconciler) resolveExternalID(ctx context.Context, externalID, customerID string) (string, error) {
	if externalID != "" || customerID == "" {
		return externalID, nil
	}
	cust, err := r.gateway.Customer(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve customer %s: %w", customerID, err)
	}
	return cust.ExternalID, nil
}

// applyKeyed performs the shared resolution chain: upsert by external
// id when one is known, otherwise update-only by customer ref, then by
// subscription ref, and a logged no-op when nothing locates a record.
// Never fabricates an external id.
func (r *Reconciler) applyKeyed(ctx context.Context, clerkID, customerID, subscriptionID string, upd repository.PlanUpdate, ev event.Event) error {
	switch {
	case clerkID != "":
		err := r.users.UpsertPlanByClerkID(ctx, clerkID, upd)
		if errors.Is(err, domainerrors.ErrStaleEvent) {
			r.logger.Info("Stale event skipped",
				zap.String("event_id", ev.ID()),
				zap.String("clerk_id", clerkID),
				zap.Time("event_at", ev.OccurredAt()))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to upsert plan for %s: %w", clerkID, err)
		}
		r.notifyPlanChanged(ctx, clerkID, upd.Plan)
		return nil

	case customerID != "":
		err := r.users.UpdatePlanByCustomerID(ctx, customerID, upd)
		if errors.Is(err, domainerrors.ErrNotFound) {
			r.logger.Info("No account for customer, skipping",
				zap.String("event_id", ev.ID()),
				zap.String("customer_id", customerID))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to update plan by customer: %w", err)
		}
		return nil

	case subscriptionID != "":
		err := r.users.UpdatePlanBySubscriptionID(ctx, subscriptionID, upd)
		if errors.Is(err, domainerrors.ErrNotFound) {
			r.logger.Info("No account for subscription, skipping",
				zap.String("event_id", ev.ID()),
				zap.String("subscription_id", subscriptionID))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to update plan by subscription: %w", err)
		}
		return nil

	default:
		r.logger.Info("Event carries no resolvable linking key, skipping",
			zap.String("event_id", ev.ID()),
			zap.String("kind", string(ev.Kind())))
		return nil
	}
}

func (r *Reconciler) notifyPlanChanged(ctx context.Context, clerkID string, plan entity.Plan) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.NotifyPlanChanged(ctx, clerkID, plan); err != nil {
		r.logger.Warn("Failed to publish plan change",
			zap.String("clerk_id", clerkID),
			zap.Error(err))
	}
}

// recordInvoicePayment journals the payment. Failures are logged, not
// returned: the journal must never force a redelivery of an already
// reconciled event.
func (r *Reconciler) recordInvoicePayment(ctx context.Context, e event.InvoicePaid) {
	if r.payments == nil {
		return
	}

	major := decimal.NewFromInt(e.AmountPaid).Div(decimal.NewFromInt(100))
	amount, err := primitive.ParseDecimal128(major.String())
	if err != nil {
		r.logger.Warn("Failed to convert invoice amount",
			zap.String("invoice_id", e.InvoiceID),
			zap.Int64("amount_paid", e.AmountPaid),
			zap.Error(err))
		return
	}

	payment := &entity.InvoicePayment{
		InvoiceID:            e.InvoiceID,
		StripeCustomerID:     e.CustomerID,
		StripeSubscriptionID: e.SubscriptionID,
		Amount:               amount,
		Currency:             e.Currency,
		PaidAt:               e.Created,
		CreatedAt:            time.Now(),
	}

	if err := r.payments.Record(ctx, payment); err != nil {
		r.logger.Warn("Failed to record invoice payment",
			zap.String("invoice_id", e.InvoiceID),
			zap.Error(err))
	}
}
