package models

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx/types"
)

const (
	// ResultCodeSuccess is the provider's success sentinel.
	ResultCodeSuccess = 0
	// ReceiptItemName marks the metadata item carrying the receipt code.
	ReceiptItemName = "MpesaReceiptNumber"
	// MaxReceiptLength matches the receipt_code column.
	MaxReceiptLength = 50
)

var ErrMalformedCallback = errors.New("malformed callback payload")

// CallbackEnvelope mirrors the provider's callback body. Only the fields
// needed for correlation are typed.
type CallbackEnvelope struct {
	Body struct {
		StkCallback *STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        *ResultCode       `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata"`
}

type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

type MetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// ResultCode accepts both a JSON number and a numeric string.
type ResultCode int

func (c *ResultCode) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("result code %q: %w", raw, err)
	}
	*c = ResultCode(n)
	return nil
}

// CallbackResult is what the lifecycle needs from one callback delivery.
type CallbackResult struct {
	CheckoutID  string
	ResultCode  int
	ResultDesc  string
	ReceiptCode *string
	Payload     types.JSONText
	Digest      string
}

// Status is the terminal status implied by the result code.
func (r CallbackResult) Status() Status {
	if r.ResultCode == ResultCodeSuccess {
		return StatusAccepted
	}
	return StatusRejected
}

// Update builds the store mutation. The receipt code is dropped for
// rejected payloads regardless of metadata content.
func (r CallbackResult) Update() CallbackUpdate {
	u := CallbackUpdate{
		CheckoutID: r.CheckoutID,
		Payload:    r.Payload,
		Digest:     r.Digest,
		Status:     r.Status(),
	}
	if u.Status == StatusAccepted {
		u.ReceiptCode = r.ReceiptCode
	}
	return u
}

// ParseCallback extracts the correlation fields from Body.stkCallback.
func ParseCallback(payload []byte) (*CallbackResult, error) {
	var env CallbackEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}

	cb := env.Body.StkCallback
	switch {
	case cb == nil:
		return nil, fmt.Errorf("%w: missing Body.stkCallback", ErrMalformedCallback)
	case cb.CheckoutRequestID == "":
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", ErrMalformedCallback)
	case cb.ResultCode == nil:
		return nil, fmt.Errorf("%w: missing ResultCode", ErrMalformedCallback)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	if hasNULEscape(compact.Bytes()) {
		return nil, fmt.Errorf("%w: payload contains a NUL character", ErrMalformedCallback)
	}
	sum := sha256.Sum256(compact.Bytes())
	result := &CallbackResult{
		CheckoutID: cb.CheckoutRequestID,
		ResultCode: int(*cb.ResultCode),
		ResultDesc: cb.ResultDesc,
		Payload:    types.JSONText(compact.Bytes()),
		Digest:     hex.EncodeToString(sum[:]),
	}

	if cb.CallbackMetadata != nil {
		result.ReceiptCode = cb.CallbackMetadata.Find(ReceiptItemName)
	}
	if result.ReceiptCode != nil && len([]rune(*result.ReceiptCode)) > MaxReceiptLength {
		return nil, fmt.Errorf("%w: receipt code longer than %d characters", ErrMalformedCallback, MaxReceiptLength)
	}

	return result, nil
}

// Find returns the value of the first item with the given name, or nil if no
// such item carries a value.
func (m *CallbackMetadata) Find(name string) *string {
	for _, item := range m.Item {
		if item.Name != name {
			continue
		}
		value := bytes.TrimSpace(item.Value)
		if len(value) == 0 || bytes.Equal(value, []byte("null")) {
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			s = string(value)
		}
		return &s
	}
	return nil
}

// hasNULEscape reports a \u0000 escape, which jsonb cannot store. Backslashes
// only occur inside strings as escape leaders, so the scan steps over
// each escape pair.
func hasNULEscape(b []byte) bool {
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' {
			continue
		}
		if bytes.HasPrefix(b[i+1:], []byte("u0000")) {
			return true
		}
		i++
	}
	return false
}
