package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	stripego "github.com/stripe/stripe-go/v79"
	portalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"go.uber.org/zap"

	"github.com/companionlab/billing-service/internal/domain/entity"
	domainerrors "github.com/companionlab/billing-service/internal/domain/errors"
	"github.com/companionlab/billing-service/internal/domain/repository"
	stripeinfra "github.com/companionlab/billing-service/internal/infrastructure/stripe"
	"github.com/companionlab/billing-service/internal/middleware/auth"
)

// CheckoutHandler creates checkout and billing-portal sessions. The
// authenticated external id is embedded in session metadata, the client
// reference and the subscription's own metadata so later webhook events
// can always be linked back to the user.
type CheckoutHandler struct {
	logger    *zap.Logger
	clientURL string
	users     repository.UserAccountRepository
}

func NewCheckoutHandler(logger *zap.Logger, clientURL string, users repository.UserAccountRepository) *CheckoutHandler {
	return &CheckoutHandler{
		logger:    logger,
		clientURL: clientURL,
		users:     users,
	}
}

type CreateCheckoutRequest struct {
	PriceID string `json:"priceId" validate:"required"`
}

type CreateCheckoutResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (h *CheckoutHandler) CreateSubscription(c echo.Context) error {
	clerkID, err := auth.GetUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Authentication required"})
	}

	var req CreateCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "priceId is required"})
	}

	ctx := c.Request().Context()

	customerID, err := h.ensureCustomer(c, clerkID)
	if err != nil {
		h.logger.Error("Failed to ensure billing customer",
			zap.String("clerk_id", clerkID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create customer"})
	}

	params := &stripego.CheckoutSessionParams{
		Mode:     stripego.String(string(stripego.CheckoutSessionModeSubscription)),
		Customer: stripego.String(customerID),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{
				Price:    stripego.String(req.PriceID),
				Quantity: stripego.Int64(1),
			},
		},
		SuccessURL:        stripego.String(h.clientURL + "/confirm?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripego.String(h.clientURL + "/plans"),
		ClientReferenceID: stripego.String(clerkID),
		SubscriptionData: &stripego.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				stripeinfra.MetadataExternalIDKey: clerkID,
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(stripeinfra.MetadataExternalIDKey, clerkID)

	s, err := checkoutsession.New(params)
	if err != nil {
		h.logger.Error("Error creating checkout session",
			zap.String("clerk_id", clerkID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create checkout session"})
	}

	h.logger.Info("Checkout session created",
		zap.String("session_id", s.ID),
		zap.String("clerk_id", clerkID),
		zap.String("price_id", req.PriceID))

	return c.JSON(http.StatusCreated, CreateCheckoutResponse{
		ID:  s.ID,
		URL: s.URL,
	})
}

// ensureCustomer returns the user's billing customer id, creating the
// Stripe customer and persisting the ref on first use.
func (h *CheckoutHandler) ensureCustomer(c echo.Context, clerkID string) (string, error) {
	ctx := c.Request().Context()

	account, err := h.users.GetByClerkID(ctx, clerkID)
	if err != nil && !errors.Is(err, domainerrors.ErrNotFound) {
		return "", err
	}
	if account != nil && account.StripeCustomerID != "" {
		return account.StripeCustomerID, nil
	}

	params := &stripego.CustomerParams{}
	params.Context = ctx
	params.AddMetadata(stripeinfra.MetadataExternalIDKey, clerkID)
	if account != nil && account.Email != "" {
		params.Email = stripego.String(account.Email)
	} else if user, err := auth.GetUserFromContext(c); err == nil && user.Email != "" {
		params.Email = stripego.String(user.Email)
	}

	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}

	if account != nil {
		if err := h.users.SetCustomerRef(ctx, clerkID, cust.ID); err != nil {
			return "", err
		}
		return cust.ID, nil
	}

	// Signup event not seen yet; create a minimal record so the ref is
	// not lost.
	now := time.Now()
	newAccount := &entity.UserAccount{
		ClerkID:          clerkID,
		Email:            cust.Email,
		StripeCustomerID: cust.ID,
		Plan: entity.Plan{
			Status: entity.PlanStatusCanceled,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.users.Create(ctx, newAccount); err != nil && !errors.Is(err, domainerrors.ErrDuplicate) {
		return "", err
	}
	return cust.ID, nil
}

func (h *CheckoutHandler) CreatePortalSession(c echo.Context) error {
	clerkID, err := auth.GetUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Authentication required"})
	}

	ctx := c.Request().Context()

	account, err := h.users.GetByClerkID(ctx, clerkID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "No billing account"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to load account"})
	}
	if account.StripeCustomerID == "" {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "No billing customer"})
	}

	params := &stripego.BillingPortalSessionParams{
		Customer:  stripego.String(account.StripeCustomerID),
		ReturnURL: stripego.String(h.clientURL),
	}
	params.Context = ctx

	ps, err := portalsession.New(params)
	if err != nil {
		h.logger.Error("Error creating portal session",
			zap.String("clerk_id", clerkID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create portal session"})
	}

	return c.JSON(http.StatusOK, echo.Map{"url": ps.URL})
}

func (h *CheckoutHandler) CheckSessionStatus(c echo.Context) error {
	sessionID := c.Param("sessionId")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Session ID required"})
	}

	params := &stripego.CheckoutSessionParams{}
	params.Context = c.Request().Context()

	s, err := checkoutsession.Get(sessionID, params)
	if err != nil {
		h.logger.Error("Error retrieving checkout session",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Session not found"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":             s.ID,
		"status":         s.Status,
		"payment_status": s.PaymentStatus,
	})
}
