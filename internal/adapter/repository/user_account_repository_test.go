package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap"

	"github.com/companionlab/billing-service/internal/domain/entity"
	domainerrors "github.com/companionlab/billing-service/internal/domain/errors"
	"github.com/companionlab/billing-service/internal/domain/repository"
)

func TestWithEventGuard(t *testing.T) {
	eventAt := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)

	filter := withEventGuard(bson.M{"clerk_id": "user_1"}, eventAt)

	assert.Equal(t, "user_1", filter["clerk_id"])

	or, ok := filter["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, or, 2)

	absent, ok := or[0].(bson.M)
	require.True(t, ok)
	assert.Equal(t, bson.M{"$exists": false}, absent["last_billing_event_at"])

	// $lte, not $lt: a redelivered event carries the same timestamp as
	// the state it already wrote and must still match.
	notNewer, ok := or[1].(bson.M)
	require.True(t, ok)
	assert.Equal(t, bson.M{"$lte": eventAt}, notNewer["last_billing_event_at"])
}

func TestPlanSet(t *testing.T) {
	now := time.Now()
	eventAt := now.Add(-time.Minute)

	t.Run("sets plan, guard timestamp and refs", func(t *testing.T) {
		set := planSet(repository.PlanUpdate{
			CustomerID:     "cus_1",
			SubscriptionID: "sub_1",
			Plan:           entity.Plan{Name: "price_pro", Status: entity.PlanStatusActive},
			EventAt:        eventAt,
		}, now)

		assert.Equal(t, entity.Plan{Name: "price_pro", Status: entity.PlanStatusActive}, set["plan"])
		assert.Equal(t, eventAt, set["last_billing_event_at"])
		assert.Equal(t, "cus_1", set["stripe_customer_id"])
		assert.Equal(t, "sub_1", set["stripe_subscription_id"])
	})

	t.Run("omits empty refs", func(t *testing.T) {
		set := planSet(repository.PlanUpdate{
			Plan:    entity.Plan{Status: entity.PlanStatusActive},
			EventAt: eventAt,
		}, now)

		assert.NotContains(t, set, "stripe_customer_id")
		assert.NotContains(t, set, "stripe_subscription_id")
	})

	t.Run("never re-sets the subscription ref it is clearing", func(t *testing.T) {
		set := planSet(repository.PlanUpdate{
			CustomerID:        "cus_1",
			SubscriptionID:    "sub_1",
			ClearSubscription: true,
			Plan:              entity.Plan{Status: entity.PlanStatusCanceled},
			EventAt:           eventAt,
		}, now)

		assert.NotContains(t, set, "stripe_subscription_id")
		assert.Equal(t, "cus_1", set["stripe_customer_id"])
	})
}

func TestUserAccountRepository_UpsertPlanByClerkID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	upd := repository.PlanUpdate{
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Plan:           entity.Plan{Name: "price_pro", Status: entity.PlanStatusActive},
		EventAt:        time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
	}

	duplicateKey := mtest.CreateWriteErrorsResponse(mtest.WriteError{
		Index:   0,
		Code:    11000,
		Message: "E11000 duplicate key error collection: billing.users index: clerk_id_1",
	})

	mt.Run("guarded upsert applies cleanly", func(mt *mtest.T) {
		repo := &userAccountRepository{col: mt.Coll, logger: zap.NewNop()}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		err := repo.UpsertPlanByClerkID(ctx, "user_1", upd)
		assert.NoError(mt, err)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "update", started.CommandName)

		statement := started.Command.Lookup("updates").Array().Index(0).Value().Document()
		_, err = statement.Lookup("q").Document().LookupErr("$or")
		assert.NoError(mt, err, "write must carry the stale-event guard")
		assert.True(mt, statement.Lookup("upsert").Boolean())
	})

	mt.Run("losing an insert race retries as a plain update", func(mt *mtest.T) {
		repo := &userAccountRepository{col: mt.Coll, logger: zap.NewNop()}
		mt.AddMockResponses(
			duplicateKey,
			mtest.CreateSuccessResponse(
				bson.E{Key: "n", Value: 1},
				bson.E{Key: "nModified", Value: 1},
			),
		)

		// The concurrent first write won the insert; this event is not
		// stale, so its state must still land.
		err := repo.UpsertPlanByClerkID(ctx, "user_1", upd)
		assert.NoError(mt, err)

		first := mt.GetStartedEvent()
		require.NotNil(mt, first)
		retry := mt.GetStartedEvent()
		require.NotNil(mt, retry)
		assert.Equal(mt, "update", retry.CommandName)

		statement := retry.Command.Lookup("updates").Array().Index(0).Value().Document()
		_, err = statement.LookupErr("upsert")
		assert.Error(mt, err, "retry must not attempt a second insert")
		_, err = statement.Lookup("q").Document().LookupErr("$or")
		assert.NoError(mt, err, "retry keeps the stale-event guard")
	})

	mt.Run("stale event is refused after the retry matches nothing", func(mt *mtest.T) {
		repo := &userAccountRepository{col: mt.Coll, logger: zap.NewNop()}
		mt.AddMockResponses(
			duplicateKey,
			mtest.CreateSuccessResponse(
				bson.E{Key: "n", Value: 0},
				bson.E{Key: "nModified", Value: 0},
			),
		)

		err := repo.UpsertPlanByClerkID(ctx, "user_1", upd)
		assert.ErrorIs(mt, err, domainerrors.ErrStaleEvent)
	})
}

func TestUserAccountRepository_UpdatePlan(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	upd := repository.PlanUpdate{
		Plan:    entity.Plan{Name: "price_pro", Status: entity.PlanStatusActive},
		EventAt: time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
	}

	mt.Run("unmatched guarded update maps to not found", func(mt *mtest.T) {
		repo := &userAccountRepository{col: mt.Coll, logger: zap.NewNop()}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		err := repo.UpdatePlanByCustomerID(ctx, "cus_unknown", upd)
		assert.ErrorIs(mt, err, domainerrors.ErrNotFound)
	})

	mt.Run("subscription-keyed update carries the guard", func(mt *mtest.T) {
		repo := &userAccountRepository{col: mt.Coll, logger: zap.NewNop()}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		err := repo.UpdatePlanBySubscriptionID(ctx, "sub_1", upd)
		assert.NoError(mt, err)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		statement := started.Command.Lookup("updates").Array().Index(0).Value().Document()
		_, err = statement.Lookup("q").Document().LookupErr("$or")
		assert.NoError(mt, err)
		_, err = statement.LookupErr("upsert")
		assert.Error(mt, err, "ref-keyed updates never create")
	})
}
