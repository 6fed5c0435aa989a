package database

import (
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	adapter "github.com/companionlab/billing-service/internal/adapter/repository"
	"github.com/companionlab/billing-service/internal/domain/repository"
)

// Repositories bundles the Mongo-backed stores handed to the server.
type Repositories struct {
	Users           repository.UserAccountRepository
	WebhookEvents   repository.WebhookEventRepository
	InvoicePayments repository.InvoicePaymentRepository
}

func NewRepositories(db *mongo.Database, logger *zap.Logger) *Repositories {
	return &Repositories{
		Users:           adapter.NewUserAccountRepository(db, logger),
		WebhookEvents:   adapter.NewWebhookEventRepository(db, logger),
		InvoicePayments: adapter.NewInvoicePaymentRepository(db, logger),
	}
}
