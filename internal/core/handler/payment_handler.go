package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Nzyazin/lnmo/internal/core/logger"
	"github.com/Nzyazin/lnmo/internal/core/models"
	"github.com/Nzyazin/lnmo/internal/core/usecase"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

const (
	maxBodyBytes = 1 << 20

	msgTransactionProcessing = "Transaction processing"
	msgQueryProcessing       = "Query processing"
	msgCallbackProcessing    = "Callback processing"
	msgWelcome               = "Welcome to the MPESA Payments API!"

	msgProviderAuth        = "Payment provider authentication failed"
	msgProviderTimeout     = "Payment provider timed out"
	msgProviderRejected    = "Payment provider rejected the request"
	msgProviderUnavailable = "Payment provider unavailable"
	msgConflict            = "Transaction already exists"
)

type PaymentHandler struct {
	usecase  usecase.PaymentUsecase
	validate *validator.Validate
	log      logger.Logger
}

type initiateRequest struct {
	Amount           decimal.Decimal `json:"amount"`
	Phone            string          `json:"phone" validate:"required,min=10,max=15"`
	AccountReference string          `json:"accountReference" validate:"required,min=1,max=100"`
}

func (r *initiateRequest) normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
	r.AccountReference = strings.TrimSpace(r.AccountReference)
}

type queryRequest struct {
	TransactionID string `json:"transactionId" validate:"required"`
}

func (r *queryRequest) normalize() {
	r.TransactionID = strings.TrimSpace(r.TransactionID)
}

type normalizer interface {
	normalize()
}

// transactionView is the stored record as returned by the API.
type transactionView struct {
	*models.Transaction
	Currency string `json:"currency"`
}

func NewPaymentHandler(usecase usecase.PaymentUsecase, log logger.Logger) *PaymentHandler {
	return &PaymentHandler{usecase: usecase, validate: validator.New(), log: log}
}

// RegisterRoutes mounts the payment API on router. limit wraps the
// caller-facing endpoints only; provider callbacks are never throttled.
func (h *PaymentHandler) RegisterRoutes(router *mux.Router, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	router.HandleFunc("/", h.Welcome).Methods(http.MethodGet)

	payments := router.PathPrefix("/payments").Subrouter()
	payments.Handle("/initiate", limit(http.HandlerFunc(h.Initiate))).Methods(http.MethodPost)
	payments.Handle("/query", limit(http.HandlerFunc(h.Query))).Methods(http.MethodPost)
	payments.HandleFunc("/callback", h.Callback).Methods(http.MethodPost)
	payments.HandleFunc("/transactions/{checkoutId}", h.GetTransaction).Methods(http.MethodGet)
}

func (h *PaymentHandler) Welcome(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"message": msgWelcome})
}

func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := h.decode(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := h.usecase.Initiate(r.Context(), models.PaymentRequest{
		Amount:           req.Amount,
		Phone:            req.Phone,
		AccountReference: req.AccountReference,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, models.InfoEnvelope(msgTransactionProcessing, data))
}

func (h *PaymentHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := h.decode(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := h.usecase.Query(r.Context(), req.TransactionID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, models.InfoEnvelope(msgQueryProcessing, data))
}

// Callback always answers 200 unless the store failed, in which case a 500
// asks the provider to deliver again.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.log.Warn("Failed to read callback body", logger.ErrorField("error", err))
		payload = nil
	}
	defer r.Body.Close()

	echo, err := h.usecase.ApplyCallback(r.Context(), payload)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, models.InfoEnvelope(msgCallbackProcessing, echo))
}

func (h *PaymentHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	checkoutID := mux.Vars(r)["checkoutId"]

	txn, err := h.usecase.GetTransaction(r.Context(), checkoutID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, models.InfoEnvelope("Transaction found", transactionView{
		Transaction: txn,
		Currency:    txn.Aggregator.Currency(),
	}))
}

// decode reads the body into dst, trims it and validates the trimmed values.
func (h *PaymentHandler) decode(w http.ResponseWriter, r *http.Request, dst normalizer) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.log.Warn("Failed to decode request body",
			logger.StringField("path", r.URL.Path),
			logger.ErrorField("error", err))
		return errors.New("invalid request payload")
	}
	dst.normalize()

	if err := h.validate.Struct(dst); err != nil {
		h.log.Warn("Request validation failed",
			logger.StringField("path", r.URL.Path),
			logger.ErrorField("error", err))
		return validationMessage(err)
	}
	return nil
}

// validationMessage turns validator output into a short message naming the
// first offending field.
func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.New("invalid request payload")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return errors.New(lowerFirst(fe.Field()) + " is required")
	case "min", "max":
		return errors.New(lowerFirst(fe.Field()) + " must be between the allowed length bounds")
	default:
		return errors.New(lowerFirst(fe.Field()) + " is invalid")
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// handleError answers with a message per error class. Transport details
// (hosts, ports, socket addresses) stay in the log; only text the provider
// itself returned is passed through.
func (h *PaymentHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, usecase.ErrValidation):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, usecase.ErrConflict):
		respondWithError(w, http.StatusBadRequest, msgConflict)
	case errors.Is(err, usecase.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Transaction not found")
	case errors.Is(err, usecase.ErrAuth):
		h.logProviderError(r, err)
		respondWithError(w, http.StatusBadRequest, withProviderMessage(msgProviderAuth, err))
	case errors.Is(err, usecase.ErrUpstreamTimeout):
		h.logProviderError(r, err)
		respondWithError(w, http.StatusBadRequest, msgProviderTimeout)
	case errors.Is(err, usecase.ErrUpstream):
		h.logProviderError(r, err)
		if msg, ok := usecase.ProviderMessage(err); ok {
			respondWithError(w, http.StatusBadRequest, msgProviderRejected+": "+msg)
			return
		}
		respondWithError(w, http.StatusBadRequest, msgProviderUnavailable)
	default:
		h.log.Error("Request failed",
			logger.StringField("method", r.Method),
			logger.StringField("path", r.URL.Path),
			logger.ErrorField("error", err))
		respondWithError(w, http.StatusInternalServerError, "Failed to process request")
	}
}

func (h *PaymentHandler) logProviderError(r *http.Request, err error) {
	h.log.Warn("Provider call failed",
		logger.StringField("path", r.URL.Path),
		logger.ErrorField("error", err))
}

func withProviderMessage(base string, err error) string {
	if msg, ok := usecase.ProviderMessage(err); ok {
		return base + ": " + msg
	}
	return base
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, models.DangerEnvelope(message))
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"status":"danger","message":"Internal Server Error","data":{}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
