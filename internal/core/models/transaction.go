package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// Status values are persisted as integers and keep the numbering of the
// legacy table, so Pending and Processed remain readable even though no
// flow assigns them.
type Status int16

const (
	StatusPending    Status = 0
	StatusProcessing Status = 1
	StatusProcessed  Status = 2
	StatusRejected   Status = 3
	StatusAccepted   Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusProcessing:
		return "PROCESSING"
	case StatusProcessed:
		return "PROCESSED"
	case StatusRejected:
		return "REJECTED"
	case StatusAccepted:
		return "ACCEPTED"
	default:
		return "UNKNOWN"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

type Transaction struct {
	ID                   int64           `json:"id" db:"id"`
	ProcessID            string          `json:"processId" db:"process_id"`
	PartyA               string          `json:"partyA" db:"party_a"`
	PartyB               string          `json:"partyB" db:"party_b"`
	AccountReference     string          `json:"accountReference" db:"account_reference"`
	Category             Category        `json:"category" db:"category"`
	Direction            Direction       `json:"direction" db:"direction"`
	Channel              Channel         `json:"channel" db:"channel"`
	Aggregator           Aggregator      `json:"aggregator" db:"aggregator"`
	CheckoutID           *string         `json:"checkoutId" db:"checkout_id"`
	Amount               decimal.Decimal `json:"amount" db:"amount"`
	ReceiptCode          *string         `json:"receiptCode" db:"receipt_code"`
	TransactionTimestamp time.Time       `json:"transactionTimestamp" db:"transaction_timestamp"`
	Details              string          `json:"details" db:"details"`
	Feedback             types.JSONText  `json:"feedback" db:"feedback"`
	CallbackDigest       *string         `json:"-" db:"callback_digest"`
	Status               Status          `json:"status" db:"status"`
	CreatedAt            time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time       `json:"updatedAt" db:"updated_at"`
}

// CallbackUpdate is the store-level mutation derived from one callback delivery.
type CallbackUpdate struct {
	CheckoutID  string
	Payload     types.JSONText
	Digest      string
	Status      Status
	ReceiptCode *string
}

type CallbackOutcome string

const (
	// OutcomeApplied means the row moved to a terminal status.
	OutcomeApplied CallbackOutcome = "applied"
	// OutcomeReplayed means the same payload was already applied.
	OutcomeReplayed CallbackOutcome = "replayed"
	// OutcomeIgnored means the row is terminal and the payload differs from the applied one.
	OutcomeIgnored CallbackOutcome = "ignored"
	// OutcomeUnmatched means no row carries the checkout id.
	OutcomeUnmatched CallbackOutcome = "unmatched"
	// OutcomeMalformed means the payload lacked the fields needed for correlation.
	OutcomeMalformed CallbackOutcome = "malformed"
)

// ApplyCallback mutates t in place. Terminal rows are never changed; the
// receipt code is only written on acceptance and only when one was supplied.
func (t *Transaction) ApplyCallback(u CallbackUpdate) CallbackOutcome {
	if t.Status.IsTerminal() {
		if t.CallbackDigest != nil && *t.CallbackDigest == u.Digest {
			return OutcomeReplayed
		}
		return OutcomeIgnored
	}

	t.Feedback = u.Payload
	digest := u.Digest
	t.CallbackDigest = &digest

	if u.Status == StatusAccepted {
		t.Status = StatusAccepted
		if u.ReceiptCode != nil {
			code := *u.ReceiptCode
			t.ReceiptCode = &code
		}
	} else {
		t.Status = StatusRejected
	}

	return OutcomeApplied
}
