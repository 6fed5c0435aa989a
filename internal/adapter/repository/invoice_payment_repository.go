package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/companionlab/billing-service/internal/domain/entity"
	domainerrors "github.com/companionlab/billing-service/internal/domain/errors"
	"github.com/companionlab/billing-service/internal/domain/repository"
)

type invoicePaymentRepository struct {
	col    *mongo.Collection
	logger *zap.Logger
}

// NewInvoicePaymentRepository returns the Mongo-backed payment journal.
func NewInvoicePaymentRepository(db *mongo.Database, logger *zap.Logger) repository.InvoicePaymentRepository {
	return &invoicePaymentRepository{
		col:    db.Collection("invoice_payments"),
		logger: logger,
	}
}

func (r *invoicePaymentRepository) Record(ctx context.Context, payment *entity.InvoicePayment) error {
	update := bson.M{
		"$set": bson.M{
			"stripe_customer_id":     payment.StripeCustomerID,
			"stripe_subscription_id": payment.StripeSubscriptionID,
			"amount":                 payment.Amount,
			"currency":               payment.Currency,
			"paid_at":                payment.PaidAt,
		},
		"$setOnInsert": bson.M{"created_at": payment.CreatedAt},
	}

	_, err := r.col.UpdateOne(ctx,
		bson.M{"invoice_id": payment.InvoiceID},
		update,
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to record invoice payment: %w", err)
	}
	return nil
}

func (r *invoicePaymentRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*entity.InvoicePayment, error) {
	var payment entity.InvoicePayment
	err := r.col.FindOne(ctx, bson.M{"invoice_id": invoiceID}).Decode(&payment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invoice payment: %w", err)
	}
	return &payment, nil
}
