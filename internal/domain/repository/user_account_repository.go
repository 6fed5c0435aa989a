package repository

import (
	"context"
	"time"

	"github.com/companionlab/billing-service/internal/domain/entity"
)

// PlanUpdate describes one reconciling write. Every update is a pure
// field-level overwrite applied as a single atomic operation; the
// repository never reads, mutates and writes back.
type PlanUpdate struct {
	// CustomerID is set on the record when non-empty.
	CustomerID string
	// SubscriptionID is set on the record when non-empty.
	SubscriptionID string
	// ClearSubscription unsets the subscription ref (cancellation).
	ClearSubscription bool
	Plan              entity.Plan
	// EventAt is the provider event timestamp used as the stale-write
	// guard.
	EventAt time.Time
}

// ProfileUpdate carries identity-provider profile fields.
type ProfileUpdate struct {
	Email     string
	Username  string
	FirstName string
	LastName  string
}

type UserAccountRepository interface {
	// Create inserts a new identity-only account.
	Create(ctx context.Context, account *entity.UserAccount) error

	GetByClerkID(ctx context.Context, clerkID string) (*entity.UserAccount, error)
	GetByCustomerID(ctx context.Context, customerID string) (*entity.UserAccount, error)

	UpdateProfile(ctx context.Context, clerkID string, profile ProfileUpdate) error
	Delete(ctx context.Context, clerkID string) error

	// SetCustomerRef lazily attaches the billing customer id.
	SetCustomerRef(ctx context.Context, clerkID, customerID string) error

	// UpsertPlanByClerkID applies a reconciling write keyed by the
	// external id, creating the account if absent. Returns ErrStaleEvent
	// when the stored state is newer than upd.EventAt.
	UpsertPlanByClerkID(ctx context.Context, clerkID string, upd PlanUpdate) error

	// UpdatePlanByCustomerID applies a reconciling write keyed by the
	// billing customer ref, update-only. Returns ErrNotFound when no
	// record matched (absent or newer state).
	UpdatePlanByCustomerID(ctx context.Context, customerID string, upd PlanUpdate) error

	// UpdatePlanBySubscriptionID applies a reconciling write keyed by
	// the subscription ref, update-only. Returns ErrNotFound when no
	// record matched.
	UpdatePlanBySubscriptionID(ctx context.Context, subscriptionID string, upd PlanUpdate) error
}
