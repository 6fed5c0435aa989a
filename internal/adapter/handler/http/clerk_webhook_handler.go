package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"

	domainerrors "github.com/companionlab/billing-service/internal/domain/errors"
	"github.com/companionlab/billing-service/internal/domain/repository"
	"github.com/companionlab/billing-service/internal/usecase"
)

// ClerkWebhookHandler consumes identity-provider lifecycle events:
// signup creates the account, update rewrites profile fields, delete
// removes the record. Plan fields are never touched here.
type ClerkWebhookHandler struct {
	logger   *zap.Logger
	verifier *svix.Webhook
	users    *usecase.UserService
}

func NewClerkWebhookHandler(logger *zap.Logger, webhookSecret string, users *usecase.UserService) (*ClerkWebhookHandler, error) {
	verifier, err := svix.NewWebhook(webhookSecret)
	if err != nil {
		return nil, err
	}
	return &ClerkWebhookHandler{
		logger:   logger,
		verifier: verifier,
		users:    users,
	}, nil
}

type clerkEvent struct {
	Type string `json:"type"`
	Data struct {
		ID             string `json:"id"`
		Username       string `json:"username"`
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		EmailAddresses []struct {
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

func (e *clerkEvent) primaryEmail() string {
	if len(e.Data.EmailAddresses) == 0 {
		return ""
	}
	return e.Data.EmailAddresses[0].EmailAddress
}

func (h *ClerkWebhookHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Error("Error reading request body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Error reading request body"})
	}

	if err := h.verifier.Verify(body, c.Request().Header); err != nil {
		h.logger.Error("Clerk webhook verification failed", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid signature"})
	}

	var ev clerkEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		h.logger.Error("Error parsing Clerk event", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Malformed event payload"})
	}
	if ev.Data.ID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Event has no user id"})
	}

	h.logger.Info("Clerk event received",
		zap.String("type", ev.Type),
		zap.String("clerk_id", ev.Data.ID))

	ctx := c.Request().Context()

	switch ev.Type {
	case "user.created":
		err := h.users.CreateUser(ctx, usecase.CreateUserParams{
			ClerkID:   ev.Data.ID,
			Email:     ev.primaryEmail(),
			Username:  ev.Data.Username,
			FirstName: ev.Data.FirstName,
			LastName:  ev.Data.LastName,
		})
		if errors.Is(err, domainerrors.ErrDuplicate) {
			// Redelivery, or billing events created the record first.
			h.logger.Info("User account already exists",
				zap.String("clerk_id", ev.Data.ID))
			return c.JSON(http.StatusOK, echo.Map{"received": true})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create user"})
		}

	case "user.updated":
		err := h.users.UpdateUser(ctx, ev.Data.ID, repository.ProfileUpdate{
			Email:     ev.primaryEmail(),
			Username:  ev.Data.Username,
			FirstName: ev.Data.FirstName,
			LastName:  ev.Data.LastName,
		})
		if errors.Is(err, domainerrors.ErrNotFound) {
			h.logger.Info("Update for unknown user, skipping",
				zap.String("clerk_id", ev.Data.ID))
			return c.JSON(http.StatusOK, echo.Map{"received": true})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to update user"})
		}

	case "user.deleted":
		err := h.users.DeleteUser(ctx, ev.Data.ID)
		if errors.Is(err, domainerrors.ErrNotFound) {
			return c.JSON(http.StatusOK, echo.Map{"received": true})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to delete user"})
		}

	default:
		h.logger.Debug("Unhandled Clerk event type", zap.String("type", ev.Type))
	}

	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
