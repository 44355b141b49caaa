package models

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrAmountPrecision         = errors.New("amount must have at most 2 decimal places")
	ErrAmountTooLarge          = errors.New("amount must not exceed 99999999.99")
	ErrPhoneRequired           = errors.New("phone is required")
	ErrAccountReferenceMissing = errors.New("account reference is required")
)

// MaxAmount is the largest value the NUMERIC(10,2) amount column holds.
var MaxAmount = decimal.RequireFromString("99999999.99")

// PaymentRequest is the normalized input of a push payment.
type PaymentRequest struct {
	Amount           decimal.Decimal `json:"amount"`
	Phone            string          `json:"phone"`
	AccountReference string          `json:"accountReference"`
}

func (p PaymentRequest) Validate() error {
	if p.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if !p.Amount.Equal(p.Amount.Truncate(2)) {
		return ErrAmountPrecision
	}
	if p.Amount.GreaterThan(MaxAmount) {
		return ErrAmountTooLarge
	}
	if strings.TrimSpace(p.Phone) == "" {
		return ErrPhoneRequired
	}
	if strings.TrimSpace(p.AccountReference) == "" {
		return ErrAccountReferenceMissing
	}
	return nil
}

// Description is sent to the provider as TransactionDesc and stored as details.
func (p PaymentRequest) Description() string {
	return "Payment for order " + p.AccountReference
}
