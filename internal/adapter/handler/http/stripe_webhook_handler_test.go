package http_test

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	handlers "github.com/companionlab/billing-service/internal/adapter/handler/http"
	"github.com/companionlab/billing-service/internal/domain/entity"
	"github.com/companionlab/billing-service/internal/domain/event"
)

const testWebhookSecret = "whsec_test_secret"

// MockWebhookEventRepository is a mock implementation of WebhookEventRepository
type MockWebhookEventRepository struct {
	mock.Mock
}

func (m *MockWebhookEventRepository) SaveEvent(ctx context.Context, eventID, eventType string, occurredAt time.Time) (bool, error) {
	args := m.Called(ctx, eventID, eventType, occurredAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockWebhookEventRepository) GetEvent(ctx context.Context, eventID string) (*entity.WebhookEvent, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.WebhookEvent), args.Error(1)
}

func (m *MockWebhookEventRepository) MarkProcessed(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *MockWebhookEventRepository) MarkFailed(ctx context.Context, eventID string, cause error) error {
	args := m.Called(ctx, eventID, cause)
	return args.Error(0)
}

// MockEventReconciler is a mock implementation of EventReconciler
type MockEventReconciler struct {
	mock.Mock
}

func (m *MockEventReconciler) Reconcile(ctx context.Context, ev event.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func signedRequest(payload string) *http.Request {
	now := time.Now()
	sig := webhook.ComputeSignature(now, []byte(payload), testWebhookSecret)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Stripe-Signature", header)
	return req
}

const deletedEventPayload = `{
	"id": "evt_1",
	"type": "customer.subscription.deleted",
	"created": 1700000000,
	"data": {
		"object": {
			"id": "sub_1",
			"customer": {"id": "cus_1"},
			"metadata": {"clerkId": "user_1"}
		}
	}
}`

func TestStripeWebhookHandler_HandleWebhook(t *testing.T) {
	logger := zap.NewNop()
	e := echo.New()

	t.Run("verified event is journaled and reconciled", func(t *testing.T) {
		mockEvents := new(MockWebhookEventRepository)
		mockReconciler := new(MockEventReconciler)
		handler := handlers.NewStripeWebhookHandler(logger, testWebhookSecret, mockEvents, mockReconciler)

		mockEvents.On("SaveEvent", mock.Anything, "evt_1", "customer.subscription.deleted", mock.Anything).Return(true, nil)
		mockReconciler.On("Reconcile", mock.Anything, mock.MatchedBy(func(ev event.Event) bool {
			deleted, ok := ev.(event.SubscriptionDeleted)
			return ok && deleted.SubscriptionID == "sub_1" && deleted.ExternalID == "user_1"
		})).Return(nil)
		mockEvents.On("MarkProcessed", mock.Anything, "evt_1").Return(nil)

		rec := httptest.NewRecorder()
		c := e.NewContext(signedRequest(deletedEventPayload), rec)

		err := handler.HandleWebhook(c)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		mockEvents.AssertExpectations(t)
		mockReconciler.AssertExpectations(t)
	})

	t.Run("bad signature is rejected permanently", func(t *testing.T) {
		mockEvents := new(MockWebhookEventRepository)
		mockReconciler := new(MockEventReconciler)
		handler := handlers.NewStripeWebhookHandler(logger, testWebhookSecret, mockEvents, mockReconciler)

		req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", strings.NewReader(deletedEventPayload))
		req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.HandleWebhook(c)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockReconciler.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
	})

	t.Run("unhandled event type is acknowledged", func(t *testing.T) {
		mockEvents := new(MockWebhookEventRepository)
		mockReconciler := new(MockEventReconciler)
		handler := handlers.NewStripeWebhookHandler(logger, testWebhookSecret, mockEvents, mockReconciler)

		payload := `{"id": "evt_2", "type": "customer.created", "created": 1700000000, "data": {"object": {"id": "cus_1"}}}`
		rec := httptest.NewRecorder()
		c := e.NewContext(signedRequest(payload), rec)

		err := handler.HandleWebhook(c)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		mockEvents.AssertNotCalled(t, "SaveEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		mockReconciler.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
	})

	t.Run("malformed payload for a handled type is rejected", func(t *testing.T) {
		mockEvents := new(MockWebhookEventRepository)
		mockReconciler := new(MockEventReconciler)
		handler := handlers.NewStripeWebhookHandler(logger, testWebhookSecret, mockEvents, mockReconciler)

		payload := `{"id": "evt_3", "type": "customer.subscription.deleted", "created": 1700000000, "data": {"object": {"status": "canceled"}}}`
		rec := httptest.NewRecorder()
		c := e.NewContext(signedRequest(payload), rec)

		err := handler.HandleWebhook(c)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockReconciler.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
	})

	t.Run("redelivery of a completed event short-circuits", func(t *testing.T) {
		mockEvents := new(MockWebhookEventRepository)
		mockReconciler := new(MockEventReconciler)
		handler := handlers.NewStripeWebhookHandler(logger, testWebhookSecret, mockEvents, mockReconciler)

		mockEvents.On("SaveEvent", mock.Anything, "evt_1", mock.Anything, mock.Anything).Return(false, nil)
		mockEvents.On("GetEvent", mock.Anything, "evt_1").Return(&entity.WebhookEvent{
			StripeEventID: "evt_1",
			Status:        entity.WebhookStatusCompleted,
		}, nil)

		rec := httptest.NewRecorder()
		c := e.NewContext(signedRequest(deletedEventPayload), rec)

		err := handler.HandleWebhook(c)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		mockReconciler.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
	})

	t.Run("reconcile failure returns retryable status", func(t *testing.T) {
		mockEvents := new(MockWebhookEventRepository)
		mockReconciler := new(MockEventReconciler)
		handler := handlers.NewStripeWebhookHandler(logger, testWebhookSecret, mockEvents, mockReconciler)

		cause := errors.New("provider unavailable")
		mockEvents.On("SaveEvent", mock.Anything, "evt_1", mock.Anything, mock.Anything).Return(true, nil)
		mockReconciler.On("Reconcile", mock.Anything, mock.Anything).Return(cause)
		mockEvents.On("MarkFailed", mock.Anything, "evt_1", cause).Return(nil)

		rec := httptest.NewRecorder()
		c := e.NewContext(signedRequest(deletedEventPayload), rec)

		err := handler.HandleWebhook(c)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		mockEvents.AssertExpectations(t)
	})

	t.Run("journal failure does not block reconciliation", func(t *testing.T) {
		mockEvents := new(MockWebhookEventRepository)
		mockReconciler := new(MockEventReconciler)
		handler := handlers.NewStripeWebhookHandler(logger, testWebhookSecret, mockEvents, mockReconciler)

		mockEvents.On("SaveEvent", mock.Anything, "evt_1", mock.Anything, mock.Anything).Return(false, errors.New("journal down"))
		mockReconciler.On("Reconcile", mock.Anything, mock.Anything).Return(nil)
		mockEvents.On("MarkProcessed", mock.Anything, "evt_1").Return(nil)

		rec := httptest.NewRecorder()
		c := e.NewContext(signedRequest(deletedEventPayload), rec)

		err := handler.HandleWebhook(c)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		mockReconciler.AssertExpectations(t)
	})
}
