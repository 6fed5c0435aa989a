package http

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"github.com/companionlab/billing-service/internal/domain/entity"
	"github.com/companionlab/billing-service/internal/domain/event"
	"github.com/companionlab/billing-service/internal/domain/repository"
	stripeinfra "github.com/companionlab/billing-service/internal/infrastructure/stripe"
)

// EventReconciler applies one classified billing event.
type EventReconciler interface {
	Reconcile(ctx context.Context, ev event.Event) error
}

type StripeWebhookHandler struct {
	logger        *zap.Logger
	webhookSecret string
	events        repository.WebhookEventRepository
	reconciler    EventReconciler
}

func NewStripeWebhookHandler(
	logger *zap.Logger,
	webhookSecret string,
	events repository.WebhookEventRepository,
	reconciler EventReconciler,
) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		logger:        logger,
		webhookSecret: webhookSecret,
		events:        events,
		reconciler:    reconciler,
	}
}

// HandleWebhook verifies, journals and reconciles one Stripe event.
// 400 means the payload is permanently invalid and must not be
// redelivered; 500 means transient failure and Stripe should retry.
func (h *StripeWebhookHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Error("Error reading request body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Error reading request body"})
	}

	sig := c.Request().Header.Get("Stripe-Signature")

	stripeEvent, err := webhook.ConstructEventWithOptions(
		body,
		sig,
		h.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		h.logger.Error("Webhook signature verification failed", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Webhook signature verification failed",
		})
	}

	h.logger.Info("Webhook event received",
		zap.String("type", string(stripeEvent.Type)),
		zap.String("id", stripeEvent.ID))

	classified, err := stripeinfra.ClassifyEvent(&stripeEvent)
	if err != nil {
		h.logger.Error("Event payload rejected",
			zap.String("id", stripeEvent.ID),
			zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Malformed event payload"})
	}
	if classified == nil {
		h.logger.Debug("Unhandled event type",
			zap.String("type", string(stripeEvent.Type)))
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}

	ctx := c.Request().Context()

	// The journal is advisory: reconciliation is idempotent, so journal
	// failures never block it.
	created, err := h.events.SaveEvent(ctx, stripeEvent.ID, string(stripeEvent.Type), classified.OccurredAt())
	if err != nil {
		h.logger.Warn("Failed to journal webhook event",
			zap.String("id", stripeEvent.ID),
			zap.Error(err))
	} else if !created {
		existing, err := h.events.GetEvent(ctx, stripeEvent.ID)
		if err == nil && existing != nil && existing.Status == entity.WebhookStatusCompleted {
			h.logger.Info("Duplicate delivery of processed event, acknowledging",
				zap.String("id", stripeEvent.ID))
			return c.JSON(http.StatusOK, echo.Map{"received": true})
		}
	}

	if err := h.reconciler.Reconcile(ctx, classified); err != nil {
		h.logger.Error("Reconciliation failed",
			zap.String("id", stripeEvent.ID),
			zap.String("type", string(stripeEvent.Type)),
			zap.Error(err))
		if markErr := h.events.MarkFailed(ctx, stripeEvent.ID, err); markErr != nil {
			h.logger.Warn("Failed to mark event as failed",
				zap.String("id", stripeEvent.ID),
				zap.Error(markErr))
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Event processing failed"})
	}

	if err := h.events.MarkProcessed(ctx, stripeEvent.ID); err != nil {
		h.logger.Warn("Failed to mark event as processed",
			zap.String("id", stripeEvent.ID),
			zap.Error(err))
	}

	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
