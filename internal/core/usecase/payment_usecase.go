package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Nzyazin/lnmo/internal/core/logger"
	"github.com/Nzyazin/lnmo/internal/core/metrics"
	"github.com/Nzyazin/lnmo/internal/core/models"
	"github.com/Nzyazin/lnmo/internal/core/mpesa"
	"github.com/Nzyazin/lnmo/internal/core/repository"
)

// PaymentGateway is the remote push-payment provider.
type PaymentGateway interface {
	Push(ctx context.Context, req models.PaymentRequest) (*mpesa.Response, error)
	Query(ctx context.Context, checkoutID string) (*mpesa.Response, error)
	ShortCode() string
}

type PaymentUsecase interface {
	// Initiate pushes a payment prompt and records it as PROCESSING. It
	// returns the provider's immediate response unmodified.
	Initiate(ctx context.Context, req models.PaymentRequest) (json.RawMessage, error)
	// Query reads the provider's view of a checkout session. The store is
	// not consulted.
	Query(ctx context.Context, checkoutID string) (json.RawMessage, error)
	// ApplyCallback reconciles a provider callback with the stored record
	// and echoes the payload. Unknown or malformed callbacks are not errors.
	ApplyCallback(ctx context.Context, payload []byte) (json.RawMessage, error)
	GetTransaction(ctx context.Context, checkoutID string) (*models.Transaction, error)
}

type paymentUsecase struct {
	repo    repository.TransactionRepository
	gateway PaymentGateway
	metrics metrics.Recorder
	log     logger.Logger
	now     func() time.Time
}

func NewPaymentUsecase(repo repository.TransactionRepository, gateway PaymentGateway, rec metrics.Recorder, log logger.Logger) PaymentUsecase {
	return &paymentUsecase{
		repo:    repo,
		gateway: gateway,
		metrics: rec,
		log:     log,
		now:     time.Now,
	}
}

func (uc *paymentUsecase) Initiate(ctx context.Context, req models.PaymentRequest) (json.RawMessage, error) {
	uc.logStart(req)

	if err := req.Validate(); err != nil {
		uc.log.Warn("Rejected payment request",
			logger.StringField("process_id", req.AccountReference),
			logger.ErrorField("error", err))
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if err := uc.ensureNewProcess(ctx, req.AccountReference); err != nil {
		return nil, err
	}

	resp, pushErr := uc.gateway.Push(ctx, req)
	uc.metrics.PushInitiated(pushErr == nil)
	if resp == nil {
		uc.log.Error("Push request failed",
			logger.StringField("process_id", req.AccountReference),
			logger.ErrorField("error", pushErr))
		return nil, providerError(pushErr)
	}

	txn := uc.newTransaction(req, resp)
	if txn.CheckoutID == nil {
		uc.log.Warn("Provider response carries no checkout id; record cannot be reconciled by callback",
			logger.StringField("process_id", txn.ProcessID),
			logger.IntField("provider_status", resp.StatusCode))
	}

	if _, err := uc.repo.Create(ctx, txn); err != nil {
		if pushErr == nil {
			uc.metrics.OrphanedPush()
			uc.log.Error("Push accepted by provider but transaction was not recorded",
				logger.StringField("alert", "orphaned_push"),
				logger.StringField("process_id", txn.ProcessID),
				logger.StringField("checkout_id", resp.CheckoutRequestID),
				logger.ErrorField("error", err))
			return nil, fmt.Errorf("%w: %w: %w", ErrOrphanedPush, ErrStorage, err)
		}
		uc.log.Error("Failed to record rejected push",
			logger.StringField("process_id", txn.ProcessID),
			logger.ErrorField("error", err))
		return nil, storageError(err)
	}

	if pushErr != nil {
		uc.log.Warn("Provider rejected push request",
			logger.StringField("process_id", txn.ProcessID),
			logger.ErrorField("error", pushErr))
		return nil, providerError(pushErr)
	}

	uc.log.Info("Payment initiated",
		logger.StringField("process_id", txn.ProcessID),
		logger.StringField("checkout_id", resp.CheckoutRequestID))

	return resp.Body, nil
}

// ensureNewProcess rejects a reused process id before anything is sent to
// the provider.
func (uc *paymentUsecase) ensureNewProcess(ctx context.Context, processID string) error {
	_, err := uc.repo.FindByProcessID(ctx, processID)
	switch {
	case err == nil:
		uc.log.Warn("Duplicate process id", logger.StringField("process_id", processID))
		return fmt.Errorf("%w: process id %s", ErrConflict, processID)
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		uc.log.Error("Process id lookup failed",
			logger.StringField("process_id", processID),
			logger.ErrorField("error", err))
		return storageError(err)
	}
}

func (uc *paymentUsecase) newTransaction(req models.PaymentRequest, resp *mpesa.Response) *models.Transaction {
	txn := &models.Transaction{
		ProcessID:            req.AccountReference,
		PartyA:               req.Phone,
		PartyB:               uc.gateway.ShortCode(),
		AccountReference:     req.AccountReference,
		Category:             models.CategoryPurchaseOrder,
		Direction:            models.DirectionCredit,
		Channel:              models.ChannelPushPayment,
		Aggregator:           models.AggregatorMpesaKE,
		Amount:               req.Amount,
		TransactionTimestamp: uc.now(),
		Details:              req.Description(),
		Feedback:             []byte(resp.Body),
		Status:               models.StatusProcessing,
	}
	if resp.CheckoutRequestID != "" {
		checkoutID := resp.CheckoutRequestID
		txn.CheckoutID = &checkoutID
	}
	return txn
}

func (uc *paymentUsecase) Query(ctx context.Context, checkoutID string) (json.RawMessage, error) {
	checkoutID = strings.TrimSpace(checkoutID)
	if checkoutID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ErrValidation)
	}

	resp, err := uc.gateway.Query(ctx, checkoutID)
	if err != nil {
		uc.log.Warn("Status query failed",
			logger.StringField("checkout_id", checkoutID),
			logger.ErrorField("error", err))
		return nil, providerError(err)
	}

	return resp.Body, nil
}

func (uc *paymentUsecase) ApplyCallback(ctx context.Context, payload []byte) (json.RawMessage, error) {
	echo := echoPayload(payload)

	result, err := models.ParseCallback(payload)
	if err != nil {
		uc.metrics.CallbackProcessed(models.OutcomeMalformed)
		uc.log.Warn("Ignoring malformed callback", logger.ErrorField("error", err))
		return echo, nil
	}

	txn, outcome, err := uc.repo.ApplyCallback(ctx, result.Update())
	if errors.Is(err, repository.ErrNotFound) {
		uc.metrics.CallbackProcessed(models.OutcomeUnmatched)
		uc.log.Warn("Callback for unknown checkout id",
			logger.StringField("checkout_id", result.CheckoutID),
			logger.IntField("result_code", result.ResultCode))
		return echo, nil
	}
	if errors.Is(err, repository.ErrConflict) {
		uc.metrics.CallbackProcessed(models.OutcomeIgnored)
		uc.log.Warn("Callback receipt already recorded on another transaction",
			logger.StringField("checkout_id", result.CheckoutID),
			logger.ErrorField("error", err))
		return echo, nil
	}
	if err != nil {
		uc.log.Error("Failed to apply callback",
			logger.StringField("checkout_id", result.CheckoutID),
			logger.ErrorField("error", err))
		return nil, storageError(err)
	}

	uc.metrics.CallbackProcessed(outcome)
	fields := []logger.Field{
		logger.StringField("checkout_id", result.CheckoutID),
		logger.StringField("process_id", txn.ProcessID),
		logger.StringField("outcome", string(outcome)),
		logger.StringField("status", txn.Status.String()),
		logger.IntField("result_code", result.ResultCode),
	}
	if outcome == models.OutcomeIgnored {
		uc.log.Warn("Callback for terminal transaction ignored", fields...)
	} else {
		uc.log.Info("Callback processed", fields...)
	}

	return echo, nil
}

func (uc *paymentUsecase) GetTransaction(ctx context.Context, checkoutID string) (*models.Transaction, error) {
	txn, err := uc.repo.FindByCheckoutID(ctx, checkoutID)
	if err != nil {
		return nil, storageError(err)
	}
	return txn, nil
}

func (uc *paymentUsecase) logStart(req models.PaymentRequest) {
	uc.log.Info("Starting payment",
		logger.StringField("process_id", req.AccountReference),
		logger.StringField("phone", maskPhone(req.Phone)),
		logger.StringField("amount", req.Amount.StringFixed(2)))
}

// echoPayload returns the payload when it is valid JSON and an empty object
// otherwise, so the response envelope stays well formed.
func echoPayload(payload []byte) json.RawMessage {
	if len(payload) == 0 || !json.Valid(payload) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(payload)
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
