package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Nzyazin/lnmo/internal/core/logger"
	"github.com/Nzyazin/lnmo/internal/core/models"
	"github.com/Nzyazin/lnmo/internal/core/repository"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const transactionColumns = `id, process_id, party_a, party_b, account_reference,
	category, direction, channel, aggregator, checkout_id, amount, receipt_code,
	transaction_timestamp, details, feedback, callback_digest, status,
	created_at, updated_at`

type postgresTransactionRepo struct {
	db      *sqlx.DB
	log     logger.Logger
	timeout time.Duration
}

func NewPostgresTransactionRepo(db *sqlx.DB, log logger.Logger, timeout time.Duration) repository.TransactionRepository {
	return &postgresTransactionRepo{
		db:      db,
		log:     log,
		timeout: timeout,
	}
}

func (r *postgresTransactionRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *postgresTransactionRepo) Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if len(txn.Feedback) == 0 {
		txn.Feedback = []byte("{}")
	}

	query := `INSERT INTO transactions
		(process_id, party_a, party_b, account_reference, category, direction,
		 channel, aggregator, checkout_id, amount, receipt_code,
		 transaction_timestamp, details, feedback, status)
		VALUES (:process_id, :party_a, :party_b, :account_reference, :category, :direction,
		 :channel, :aggregator, :checkout_id, :amount, :receipt_code,
		 :transaction_timestamp, :details, :feedback, :status)
		RETURNING ` + transactionColumns

	query, args, err := sqlx.Named(query, txn)
	if err != nil {
		return nil, fmt.Errorf("bind insert: %w", err)
	}

	var created models.Transaction
	if err := r.db.GetContext(ctx, &created, r.db.Rebind(query), args...); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: process id %s", repository.ErrConflict, txn.ProcessID)
		}
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	return &created, nil
}

func (r *postgresTransactionRepo) FindByCheckoutID(ctx context.Context, checkoutID string) (*models.Transaction, error) {
	return r.findOne(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE checkout_id = $1`, checkoutID)
}

func (r *postgresTransactionRepo) FindByProcessID(ctx context.Context, processID string) (*models.Transaction, error) {
	return r.findOne(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE process_id = $1`, processID)
}

func (r *postgresTransactionRepo) findOne(ctx context.Context, query string, key string) (*models.Transaction, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var txn models.Transaction
	if err := r.db.GetContext(ctx, &txn, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", repository.ErrNotFound, key)
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &txn, nil
}

func (r *postgresTransactionRepo) ApplyCallback(ctx context.Context, update models.CallbackUpdate) (*models.Transaction, models.CallbackOutcome, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		r.log.Error("Error beginning transaction", logger.ErrorField("error", err))
		return nil, "", fmt.Errorf("error beginning transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.log.Error("Transaction rollback failed", logger.ErrorField("error", rbErr))
		}
	}()

	txn, err := r.lockByCheckoutID(ctx, tx, update.CheckoutID)
	if err != nil {
		return nil, "", err
	}

	outcome := txn.ApplyCallback(update)
	if outcome == models.OutcomeApplied {
		if err := r.persistCallback(ctx, tx, txn); err != nil {
			return nil, "", err
		}
	}

	if err := tx.Commit(); err != nil {
		r.log.Error("Error committing transaction", logger.ErrorField("error", err))
		return nil, "", fmt.Errorf("commit failed: %w", err)
	}
	committed = true

	return txn, outcome, nil
}

// lockByCheckoutID serializes concurrent deliveries for the same row.
func (r *postgresTransactionRepo) lockByCheckoutID(ctx context.Context, tx *sqlx.Tx, checkoutID string) (*models.Transaction, error) {
	var txn models.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE checkout_id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &txn, query, checkoutID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", repository.ErrNotFound, checkoutID)
		}
		return nil, fmt.Errorf("lock transaction: %w", err)
	}
	return &txn, nil
}

func (r *postgresTransactionRepo) persistCallback(ctx context.Context, tx *sqlx.Tx, txn *models.Transaction) error {
	query := `
		UPDATE transactions
		SET feedback = $1, status = $2, receipt_code = $3, callback_digest = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at
	`
	err := tx.GetContext(ctx, &txn.UpdatedAt, query,
		txn.Feedback,
		txn.Status,
		txn.ReceiptCode,
		txn.CallbackDigest,
		txn.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: receipt code already recorded", repository.ErrConflict)
		}
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
