package repository

import (
	"context"
	"errors"

	"github.com/Nzyazin/lnmo/internal/core/models"
)

var (
	ErrNotFound = errors.New("transaction not found")
	ErrConflict = errors.New("transaction already exists")
)

type TransactionRepository interface {
	// Create fails with ErrConflict when the process id, checkout id or
	// receipt code is already taken.
	Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
	FindByCheckoutID(ctx context.Context, checkoutID string) (*models.Transaction, error)
	FindByProcessID(ctx context.Context, processID string) (*models.Transaction, error)
	// ApplyCallback locks the row carrying update.CheckoutID, applies the
	// update through Transaction.ApplyCallback and persists it in one
	// database transaction. It returns ErrNotFound when no row matches.
	ApplyCallback(ctx context.Context, update models.CallbackUpdate) (*models.Transaction, models.CallbackOutcome, error)
}
