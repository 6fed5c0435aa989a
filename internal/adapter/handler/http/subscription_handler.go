package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/subscription"
	"go.uber.org/zap"

	"github.com/companionlab/billing-service/internal/domain/entity"
	domainerrors "github.com/companionlab/billing-service/internal/domain/errors"
	"github.com/companionlab/billing-service/internal/domain/repository"
	"github.com/companionlab/billing-service/internal/middleware/auth"
)

type SubscriptionHandler struct {
	logger *zap.Logger
	users  repository.UserAccountRepository
}

func NewSubscriptionHandler(logger *zap.Logger, users repository.UserAccountRepository) *SubscriptionHandler {
	return &SubscriptionHandler{
		logger: logger,
		users:  users,
	}
}

type SubscriptionResponse struct {
	PlanName         string     `json:"planName"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtEnd      bool       `json:"cancelAtEnd,omitempty"`
}

func (h *SubscriptionHandler) GetCurrentSubscription(c echo.Context) error {
	clerkID, err := auth.GetUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Authentication required"})
	}

	account, err := h.users.GetByClerkID(c.Request().Context(), clerkID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "No subscription"})
		}
		h.logger.Error("Failed to load user account",
			zap.String("clerk_id", clerkID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to load subscription"})
	}
	if account.StripeSubscriptionID == "" {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "No subscription"})
	}

	return c.JSON(http.StatusOK, SubscriptionResponse{
		PlanName:         account.Plan.Name,
		Status:           string(account.Plan.Status),
		CurrentPeriodEnd: account.Plan.CurrentPeriodEnd,
	})
}

// CancelSubscription schedules cancellation at period end. The local plan
// state is left untouched; the subscription-updated webhook reconciles it.
func (h *SubscriptionHandler) CancelSubscription(c echo.Context) error {
	clerkID, err := auth.GetUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Authentication required"})
	}

	account, err := h.users.GetByClerkID(c.Request().Context(), clerkID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "No subscription"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to load subscription"})
	}
	if account.StripeSubscriptionID == "" {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "No subscription"})
	}
	if account.Plan.Status == entity.PlanStatusCanceled {
		return c.JSON(http.StatusConflict, echo.Map{"error": "Subscription already canceled"})
	}

	params := &stripego.SubscriptionParams{
		CancelAtPeriodEnd: stripego.Bool(true),
	}
	params.Context = c.Request().Context()

	sub, err := subscription.Update(account.StripeSubscriptionID, params)
	if err != nil {
		h.logger.Error("Error canceling subscription",
			zap.String("clerk_id", clerkID),
			zap.String("subscription_id", account.StripeSubscriptionID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to cancel subscription"})
	}

	h.logger.Info("Subscription cancellation scheduled",
		zap.String("clerk_id", clerkID),
		zap.String("subscription_id", sub.ID))

	return c.JSON(http.StatusOK, SubscriptionResponse{
		PlanName:         account.Plan.Name,
		Status:           string(sub.Status),
		CurrentPeriodEnd: account.Plan.CurrentPeriodEnd,
		CancelAtEnd:      true,
	})
}
