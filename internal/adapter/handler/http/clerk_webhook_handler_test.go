package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"

	handlers "github.com/companionlab/billing-service/internal/adapter/handler/http"
	"github.com/companionlab/billing-service/internal/domain/entity"
	domainerrors "github.com/companionlab/billing-service/internal/domain/errors"
	"github.com/companionlab/billing-service/internal/domain/repository"
	"github.com/companionlab/billing-service/internal/usecase"
)

const testClerkSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"

// MockUserAccountRepository is a mock implementation of UserAccountRepository
type MockUserAccountRepository struct {
	mock.Mock
}

func (m *MockUserAccountRepository) Create(ctx context.Context, account *entity.UserAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockUserAccountRepository) GetByClerkID(ctx context.Context, clerkID string) (*entity.UserAccount, error) {
	args := m.Called(ctx, clerkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UserAccount), args.Error(1)
}

func (m *MockUserAccountRepository) GetByCustomerID(ctx context.Context, customerID string) (*entity.UserAccount, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UserAccount), args.Error(1)
}

func (m *MockUserAccountRepository) UpdateProfile(ctx context.Context, clerkID string, profile repository.ProfileUpdate) error {
	args := m.Called(ctx, clerkID, profile)
	return args.Error(0)
}

func (m *MockUserAccountRepository) Delete(ctx context.Context, clerkID string) error {
	args := m.Called(ctx, clerkID)
	return args.Error(0)
}

func (m *MockUserAccountRepository) SetCustomerRef(ctx context.Context, clerkID, customerID string) error {
	args := m.Called(ctx, clerkID, customerID)
	return args.Error(0)
}

func (m *MockUserAccountRepository) UpsertPlanByClerkID(ctx context.Context, clerkID string, upd repository.PlanUpdate) error {
	args := m.Called(ctx, clerkID, upd)
	return args.Error(0)
}

func (m *MockUserAccountRepository) UpdatePlanByCustomerID(ctx context.Context, customerID string, upd repository.PlanUpdate) error {
	args := m.Called(ctx, customerID, upd)
	return args.Error(0)
}

func (m *MockUserAccountRepository) UpdatePlanBySubscriptionID(ctx context.Context, subscriptionID string, upd repository.PlanUpdate) error {
	args := m.Called(ctx, subscriptionID, upd)
	return args.Error(0)
}

func signedClerkRequest(t *testing.T, payload string) *http.Request {
	t.Helper()

	wh, err := svix.NewWebhook(testClerkSecret)
	require.NoError(t, err)

	now := time.Now()
	signature, err := wh.Sign("msg_test", now, []byte(payload))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook/clerk", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("svix-id", "msg_test")
	req.Header.Set("svix-timestamp", strconv.FormatInt(now.Unix(), 10))
	req.Header.Set("svix-signature", signature)
	return req
}

func TestClerkWebhookHandler_HandleWebhook(t *testing.T) {
	logger := zap.NewNop()
	e := echo.New()

	newHandler := func(t *testing.T, mockUsers *MockUserAccountRepository) *handlers.ClerkWebhookHandler {
		t.Helper()
		service := usecase.NewUserService(mockUsers, logger)
		handler, err := handlers.NewClerkWebhookHandler(logger, testClerkSecret, service)
		require.NoError(t, err)
		return handler
	}

	t.Run("user created builds an account", func(t *testing.T) {
		mockUsers := new(MockUserAccountRepository)
		handler := newHandler(t, mockUsers)

		mockUsers.On("Create", mock.Anything, mock.MatchedBy(func(a *entity.UserAccount) bool {
			return a.ClerkID == "user_1" && a.Email == "u1@example.com" && a.Username == "u1"
		})).Return(nil)

		payload := `{
			"type": "user.created",
			"data": {
				"id": "user_1",
				"username": "u1",
				"first_name": "Uma",
				"last_name": "One",
				"email_addresses": [{"email_address": "u1@example.com"}]
			}
		}`
		rec := httptest.NewRecorder()
		c := e.NewContext(signedClerkRequest(t, payload), rec)

		err := handler.HandleWebhook(c)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		mockUsers.AssertExpectations(t)
	})

	t.Run("duplicate signup is acknowledged", func(t *testing.T) {
		mockUsers := new(MockUserAccountRepository)
		handler := newHandler(t, mockUsers)

		mockUsers.On("Create", mock.Anything, mock.Anything).Return(domainerrors.ErrDuplicate)

		payload := `{"type": "user.created", "data": {"id": "user_1"}}`
		rec := httptest.NewRecorder()
		c := e.NewContext(signedClerkRequest(t, payload), rec)

		err := handler.HandleWebhook(c)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("user updated rewrites profile fields", func(t *testing.T) {
		mockUsers := new(MockUserAccountRepository)
		handler := newHandler(t, mockUsers)

		mockUsers.On("UpdateProfile", mock.Anything, "user_1", repository.ProfileUpdate{
			Email:     "renamed@example.com",
			Username:  "renamed",
			FirstName: "New",
			LastName:  "Name",
		}).Return(nil)

		payload := `{
			"type": "user.updated",
			"data": {
				"id": "user_1",
				"username": "renamed",
				"first_name": "New",
				"last_name": "Name",
				"email_addresses": [{"email_address": "renamed@example.com"}]
			}
		}`
		rec := httptest.NewRecorder()
		c := e.NewContext(signedClerkRequest(t, payload), rec)

		err := handler.HandleWebhook(c)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		mockUsers.AssertExpectations(t)
	})

	t.Run("user deleted removes the record", func(t *testing.T) {
		mockUsers := new(MockUserAccountRepository)
		handler := newHandler(t, mockUsers)

		mockUsers.On("Delete", mock.Anything, "user_1").Return(nil)

		payload := `{"type": "user.deleted", "data": {"id": "user_1"}}`
		rec := httptest.NewRecorder()
		c := e.NewContext(signedClerkRequest(t, payload), rec)

		err := handler.HandleWebhook(c)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		mockUsers.AssertExpectations(t)
	})

	t.Run("invalid signature is rejected", func(t *testing.T) {
		mockUsers := new(MockUserAccountRepository)
		handler := newHandler(t, mockUsers)

		payload := `{"type": "user.created", "data": {"id": "user_1"}}`
		req := httptest.NewRequest(http.MethodPost, "/webhook/clerk", strings.NewReader(payload))
		req.Header.Set("svix-id", "msg_test")
		req.Header.Set("svix-timestamp", "1700000000")
		req.Header.Set("svix-signature", "v1,bm90LWEtcmVhbC1zaWduYXR1cmU=")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.HandleWebhook(c)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockUsers.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("unknown event type is acknowledged", func(t *testing.T) {
		mockUsers := new(MockUserAccountRepository)
		handler := newHandler(t, mockUsers)

		payload := `{"type": "session.created", "data": {"id": "user_1"}}`
		rec := httptest.NewRecorder()
		c := e.NewContext(signedClerkRequest(t, payload), rec)

		err := handler.HandleWebhook(c)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
