package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Nzyazin/lnmo/internal/core/logger"
	"github.com/Nzyazin/lnmo/internal/core/models"
)

const (
	pushPath  = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	maxResponseBytes = 1 << 20
)

// Response is the provider's immediate reply. Body is kept verbatim so it
// can be returned to the caller unmodified.
type Response struct {
	StatusCode        int
	Body              json.RawMessage
	CheckoutRequestID string
	ResponseCode      string
	ErrorMessage      string
}

type responseFields struct {
	CheckoutRequestID string          `json:"CheckoutRequestID"`
	ResponseCode      json.RawMessage `json:"ResponseCode"`
	ErrorMessage      string          `json:"errorMessage"`
}

// OK reports a 2xx reply.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type Client struct {
	http    *http.Client
	host    string
	tokens  TokenSource
	encoder *Encoder
	log     logger.Logger
}

func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func NewClient(httpClient *http.Client, host string, tokens TokenSource, encoder *Encoder, log logger.Logger) *Client {
	return &Client{
		http:    httpClient,
		host:    host,
		tokens:  tokens,
		encoder: encoder,
		log:     log,
	}
}

func (c *Client) ShortCode() string {
	return c.encoder.ShortCode
}

// Push issues the STK push request. When the provider replied with a JSON
// body but a non-2xx status, both the parsed Response and an ErrUpstream are
// returned, so the caller can still record what the provider said.
func (c *Client) Push(ctx context.Context, req models.PaymentRequest) (*Response, error) {
	return c.post(ctx, pushPath, c.encoder.PushRequest(req))
}

// Query asks the provider for the state of a checkout session.
func (c *Client) Query(ctx context.Context, checkoutID string) (*Response, error) {
	return c.post(ctx, queryPath, c.encoder.QueryRequest(checkoutID))
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) (*Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.log.Error("Access token request failed", logger.ErrorField("error", err))
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("Provider request failed",
			logger.StringField("path", path),
			logger.DurationField("elapsed", time.Since(start)),
			logger.ErrorField("error", err))
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %s: %v", ErrTimeout, path, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUpstream, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: read %s response: %v", ErrTimeout, path, err)
		}
		return nil, fmt.Errorf("%w: read %s response: %v", ErrUpstream, path, err)
	}

	var fields responseFields
	if !json.Valid(raw) || json.Unmarshal(raw, &fields) != nil {
		c.log.Warn("Malformed provider response",
			logger.StringField("path", path),
			logger.IntField("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: malformed response from %s (HTTP %d)", ErrUpstream, path, resp.StatusCode)
	}

	result := &Response{
		StatusCode:        resp.StatusCode,
		Body:              json.RawMessage(raw),
		CheckoutRequestID: fields.CheckoutRequestID,
		ResponseCode:      strings.Trim(string(fields.ResponseCode), `"`),
		ErrorMessage:      fields.ErrorMessage,
	}

	c.log.Info("Provider replied",
		logger.StringField("path", path),
		logger.IntField("status", resp.StatusCode),
		logger.StringField("checkout_id", result.CheckoutRequestID),
		logger.DurationField("elapsed", time.Since(start)))

	if !result.OK() {
		msg := result.ErrorMessage
		if msg == "" {
			msg = http.StatusText(result.StatusCode)
		}
		return result, &ProviderError{Kind: ErrUpstream, StatusCode: result.StatusCode, Message: msg}
	}

	return result, nil
}
