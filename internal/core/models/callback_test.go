package models_test

import (
	"strings"
	"testing"

	"github.com/Nzyazin/lnmo/internal/core/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const acceptedCallback = `{"Body":{"stkCallback":{"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"The service request is processed successfully.","CallbackMetadata":{"Item":[{"Name":"Amount","Value":100},{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},{"Name":"PhoneNumber","Value":254712345678}]}}}}`

const rejectedCallback = `{"Body":{"stkCallback":{"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":"ws_CO_1","ResultCode":1032,"ResultDesc":"Request cancelled by user","CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":"SHOULDNOTBESET"}]}}}}`

func TestParseCallbackAccepted(t *testing.T) {
	result, err := models.ParseCallback([]byte(acceptedCallback))
	require.NoError(t, err)

	assert.Equal(t, "ws_CO_1", result.CheckoutID)
	assert.Equal(t, 0, result.ResultCode)
	assert.Equal(t, models.StatusAccepted, result.Status())
	require.NotNil(t, result.ReceiptCode)
	assert.Equal(t, "NLJ7RT61SV", *result.ReceiptCode)
	assert.Len(t, result.Digest, 64)
}

func TestParseCallbackRejectedDropsReceipt(t *testing.T) {
	result, err := models.ParseCallback([]byte(rejectedCallback))
	require.NoError(t, err)

	update := result.Update()
	assert.Equal(t, models.StatusRejected, update.Status)
	assert.Nil(t, update.ReceiptCode)
}

func TestParseCallbackStringResultCode(t *testing.T) {
	result, err := models.ParseCallback([]byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_2","ResultCode":"0"}}}`))
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, result.Status())
	assert.Nil(t, result.ReceiptCode)
}

func TestParseCallbackDigestIgnoresWhitespace(t *testing.T) {
	a, err := models.ParseCallback([]byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0}}}`))
	require.NoError(t, err)
	b, err := models.ParseCallback([]byte("{ \"Body\": { \"stkCallback\": { \"CheckoutRequestID\": \"ws_CO_1\", \"ResultCode\": 0 } } }"))
	require.NoError(t, err)

	assert.Equal(t, a.Digest, b.Digest)
}

func TestParseCallbackMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":           `{"Body":`,
		"missing body":       `{"foo":"bar"}`,
		"missing checkout":   `{"Body":{"stkCallback":{"ResultCode":0}}}`,
		"missing result":     `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1"}}}`,
		"non numeric code":   `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":"abc"}}}`,
		"array as callback":  `[]`,
		"nul in description": `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":1,"ResultDesc":"bad\u0000desc"}}}`,
		"oversized receipt":  `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0,"CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":"` + strings.Repeat("R", models.MaxReceiptLength+1) + `"}]}}}}`,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := models.ParseCallback([]byte(payload))
			assert.ErrorIs(t, err, models.ErrMalformedCallback)
		})
	}
}

func TestParseCallbackAcceptsStorableEdgeValues(t *testing.T) {
	escapedBackslash := `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":1,"ResultDesc":"path\\u0000"}}}`
	_, err := models.ParseCallback([]byte(escapedBackslash))
	assert.NoError(t, err)

	receipt := strings.Repeat("R", models.MaxReceiptLength)
	maxReceipt := `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0,"CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":"` + receipt + `"}]}}}}`
	result, err := models.ParseCallback([]byte(maxReceipt))
	require.NoError(t, err)
	require.NotNil(t, result.ReceiptCode)
	assert.Equal(t, receipt, *result.ReceiptCode)
}

func TestMetadataFindSkipsNullValue(t *testing.T) {
	md := &models.CallbackMetadata{Item: []models.MetadataItem{
		{Name: models.ReceiptItemName, Value: []byte("null")},
		{Name: models.ReceiptItemName},
	}}
	assert.Nil(t, md.Find(models.ReceiptItemName))
}

func processing() *models.Transaction {
	checkout := "ws_CO_1"
	return &models.Transaction{
		ProcessID:  "ORDER-1",
		CheckoutID: &checkout,
		Amount:     decimal.NewFromInt(100),
		Feedback:   []byte(`{"CheckoutRequestID":"ws_CO_1"}`),
		Status:     models.StatusProcessing,
	}
}

func TestApplyCallbackTransitions(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantStatus  models.Status
		wantReceipt *string
	}{
		{
			name:        "accepted with receipt",
			payload:     acceptedCallback,
			wantStatus:  models.StatusAccepted,
			wantReceipt: strPtr("NLJ7RT61SV"),
		},
		{
			name:       "accepted without metadata",
			payload:    `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0}}}`,
			wantStatus: models.StatusAccepted,
		},
		{
			name:       "rejected",
			payload:    rejectedCallback,
			wantStatus: models.StatusRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := processing()
			result, err := models.ParseCallback([]byte(tt.payload))
			require.NoError(t, err)

			outcome := txn.ApplyCallback(result.Update())

			assert.Equal(t, models.OutcomeApplied, outcome)
			assert.Equal(t, tt.wantStatus, txn.Status)
			assert.Equal(t, tt.wantReceipt, txn.ReceiptCode)
			assert.JSONEq(t, tt.payload, string(txn.Feedback))
		})
	}
}

func TestApplyCallbackReplayIsNoop(t *testing.T) {
	txn := processing()
	result, err := models.ParseCallback([]byte(acceptedCallback))
	require.NoError(t, err)

	require.Equal(t, models.OutcomeApplied, txn.ApplyCallback(result.Update()))
	assert.Equal(t, models.OutcomeReplayed, txn.ApplyCallback(result.Update()))
	assert.Equal(t, models.StatusAccepted, txn.Status)
	assert.Equal(t, "NLJ7RT61SV", *txn.ReceiptCode)
}

func TestApplyCallbackTerminalIsFrozen(t *testing.T) {
	txn := processing()
	accepted, err := models.ParseCallback([]byte(acceptedCallback))
	require.NoError(t, err)
	rejected, err := models.ParseCallback([]byte(rejectedCallback))
	require.NoError(t, err)

	require.Equal(t, models.OutcomeApplied, txn.ApplyCallback(accepted.Update()))
	assert.Equal(t, models.OutcomeIgnored, txn.ApplyCallback(rejected.Update()))

	assert.Equal(t, models.StatusAccepted, txn.Status)
	assert.Equal(t, "NLJ7RT61SV", *txn.ReceiptCode)
	assert.JSONEq(t, acceptedCallback, string(txn.Feedback))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "PROCESSING", models.StatusProcessing.String())
	assert.True(t, models.StatusRejected.IsTerminal())
	assert.False(t, models.StatusPending.IsTerminal())
	assert.False(t, models.StatusProcessed.IsTerminal())
}

func strPtr(s string) *string { return &s }
