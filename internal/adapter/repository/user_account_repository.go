package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/companionlab/billing-service/internal/domain/entity"
	domainerrors "github.com/companionlab/billing-service/internal/domain/errors"
	"github.com/companionlab/billing-service/internal/domain/repository"
)

type userAccountRepository struct {
	col    *mongo.Collection
	logger *zap.Logger
}

// NewUserAccountRepository returns the Mongo-backed account store.
func NewUserAccountRepository(db *mongo.Database, logger *zap.Logger) repository.UserAccountRepository {
	return &userAccountRepository{
		col:    db.Collection("users"),
		logger: logger,
	}
}

func (r *userAccountRepository) Create(ctx context.Context, account *entity.UserAccount) error {
	res, err := r.col.InsertOne(ctx, account)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainerrors.ErrDuplicate
		}
		return fmt.Errorf("failed to insert user account: %w", err)
	}

	if oid, ok := res.InsertedID.(interface{ Hex() string }); ok {
		r.logger.Debug("User account inserted", zap.String("id", oid.Hex()))
	}
	return nil
}

func (r *userAccountRepository) GetByClerkID(ctx context.Context, clerkID string) (*entity.UserAccount, error) {
	return r.findOne(ctx, bson.M{"clerk_id": clerkID})
}

func (r *userAccountRepository) GetByCustomerID(ctx context.Context, customerID string) (*entity.UserAccount, error) {
	return r.findOne(ctx, bson.M{"stripe_customer_id": customerID})
}

func (r *userAccountRepository) findOne(ctx context.Context, filter bson.M) (*entity.UserAccount, error) {
	var account entity.UserAccount
	err := r.col.FindOne(ctx, filter).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user account: %w", err)
	}
	return &account, nil
}

func (r *userAccountRepository) UpdateProfile(ctx context.Context, clerkID string, profile repository.ProfileUpdate) error {
	set := bson.M{
		"email":      profile.Email,
		"username":   profile.Username,
		"first_name": profile.FirstName,
		"last_name":  profile.LastName,
		"updated_at": time.Now(),
	}

	res, err := r.col.UpdateOne(ctx, bson.M{"clerk_id": clerkID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if res.MatchedCount == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *userAccountRepository) Delete(ctx context.Context, clerkID string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"clerk_id": clerkID})
	if err != nil {
		return fmt.Errorf("failed to delete user account: %w", err)
	}
	if res.DeletedCount == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *userAccountRepository) SetCustomerRef(ctx context.Context, clerkID, customerID string) error {
	update := bson.M{"$set": bson.M{
		"stripe_customer_id": customerID,
		"updated_at":         time.Now(),
	}}

	res, err := r.col.UpdateOne(ctx, bson.M{"clerk_id": clerkID}, update)
	if err != nil {
		return fmt.Errorf("failed to set customer ref: %w", err)
	}
	if res.MatchedCount == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *userAccountRepository) UpsertPlanByClerkID(ctx context.Context, clerkID string, upd repository.PlanUpdate) error {
	now := time.Now()
	filter := withEventGuard(bson.M{"clerk_id": clerkID}, upd.EventAt)
	update := bson.M{
		"$set":         planSet(upd, now),
		"$setOnInsert": bson.M{"created_at": now},
	}
	if upd.ClearSubscription {
		update["$unset"] = bson.M{"stripe_subscription_id": ""}
	}

	_, err := r.col.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to upsert plan: %w", err)
		}
		// The guard filter matched nothing and the attempted insert
		// tripped the unique clerk_id index. Two cases reach here: the
		// event is older than the stored state, or a concurrent first
		// write for the same user won the insert race. Retried as a
		// plain update the racing event still passes the guard; only a
		// genuinely stale one matches nothing.
		res, retryErr := r.col.UpdateOne(ctx, filter, update)
		if retryErr != nil {
			return fmt.Errorf("failed to upsert plan: %w", retryErr)
		}
		if res.MatchedCount == 0 {
			return domainerrors.ErrStaleEvent
		}
	}
	return nil
}

func (r *userAccountRepository) UpdatePlanByCustomerID(ctx context.Context, customerID string, upd repository.PlanUpdate) error {
	return r.updatePlan(ctx, bson.M{"stripe_customer_id": customerID}, upd)
}

func (r *userAccountRepository) UpdatePlanBySubscriptionID(ctx context.Context, subscriptionID string, upd repository.PlanUpdate) error {
	return r.updatePlan(ctx, bson.M{"stripe_subscription_id": subscriptionID}, upd)
}

func (r *userAccountRepository) updatePlan(ctx context.Context, filter bson.M, upd repository.PlanUpdate) error {
	update := bson.M{"$set": planSet(upd, time.Now())}
	if upd.ClearSubscription {
		update["$unset"] = bson.M{"stripe_subscription_id": ""}
	}

	res, err := r.col.UpdateOne(ctx, withEventGuard(filter, upd.EventAt), update)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if res.MatchedCount == 0 {
		// Either no such record or its state is newer; both are no-ops
		// for the caller.
		return domainerrors.ErrNotFound
	}
	return nil
}

// planSet builds the $set document for one reconciling write. Pure
// overwrite of the plan fields and refs; nothing is incremented or
// appended, which is what makes redelivery idempotent.
func planSet(upd repository.PlanUpdate, now time.Time) bson.M {
	set := bson.M{
		"plan":                  upd.Plan,
		"last_billing_event_at": upd.EventAt,
		"updated_at":            now,
	}
	if upd.CustomerID != "" {
		set["stripe_customer_id"] = upd.CustomerID
	}
	if upd.SubscriptionID != "" && !upd.ClearSubscription {
		set["stripe_subscription_id"] = upd.SubscriptionID
	}
	return set
}

// withEventGuard restricts a reconciling write to records whose stored
// billing state is not newer than the incoming event.
func withEventGuard(filter bson.M, eventAt time.Time) bson.M {
	filter["$or"] = bson.A{
		bson.M{"last_billing_event_at": bson.M{"$exists": false}},
		bson.M{"last_billing_event_at": bson.M{"$lte": eventAt}},
	}
	return filter
}
