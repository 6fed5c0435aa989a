package repository

import (
	"context"

	"github.com/companionlab/billing-service/internal/domain/entity"
)

// InvoicePaymentRepository stores successful invoice payments. Record
// is keyed by invoice id so redelivered events overwrite rather than
// duplicate.
type InvoicePaymentRepository interface {
	Record(ctx context.Context, payment *entity.InvoicePayment) error
	GetByInvoiceID(ctx context.Context, invoiceID string) (*entity.InvoicePayment, error)
}
