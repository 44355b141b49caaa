package mpesa

import (
	"encoding/base64"
	"time"

	"github.com/Nzyazin/lnmo/internal/core/models"
)

const (
	TimestampLayout = "20060102150405"
	TransactionType = "CustomerPayBillOnline"
)

type Credentials struct {
	Password          string
	BusinessShortCode string
	Timestamp         string
}

type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type STKQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// Encoder builds signed provider requests. Every call derives a fresh
// timestamp because the provider rejects stale passwords.
type Encoder struct {
	ShortCode   string
	PassKey     string
	CallbackURL string
	Now         func() time.Time
}

func NewEncoder(shortCode, passKey, callbackURL string) *Encoder {
	return &Encoder{
		ShortCode:   shortCode,
		PassKey:     passKey,
		CallbackURL: callbackURL,
		Now:         time.Now,
	}
}

// Encode derives the password as base64(shortCode + passKey + timestamp).
func Encode(shortCode, passKey string, at time.Time) Credentials {
	timestamp := at.Format(TimestampLayout)
	return Credentials{
		Password:          base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp)),
		BusinessShortCode: shortCode,
		Timestamp:         timestamp,
	}
}

func (e *Encoder) credentials() Credentials {
	return Encode(e.ShortCode, e.PassKey, e.Now().Local())
}

func (e *Encoder) PushRequest(req models.PaymentRequest) STKPushRequest {
	creds := e.credentials()
	return STKPushRequest{
		BusinessShortCode: creds.BusinessShortCode,
		Password:          creds.Password,
		Timestamp:         creds.Timestamp,
		TransactionType:   TransactionType,
		Amount:            req.Amount.String(),
		PartyA:            req.Phone,
		PartyB:            e.ShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       e.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.Description(),
	}
}

func (e *Encoder) QueryRequest(checkoutID string) STKQueryRequest {
	creds := e.credentials()
	return STKQueryRequest{
		BusinessShortCode: creds.BusinessShortCode,
		Password:          creds.Password,
		Timestamp:         creds.Timestamp,
		CheckoutRequestID: checkoutID,
	}
}
