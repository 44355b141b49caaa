package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const tokenPath = "/oauth/v1/generate?grant_type=client_credentials"

type tokenResponse struct {
	AccessToken      string          `json:"access_token"`
	ExpiresIn        json.RawMessage `json:"expires_in"`
	ErrorDescription string          `json:"error_description"`
	ErrorMessage     string          `json:"errorMessage"`
}

// TokenSource yields a bearer token for one outbound call. ctx bounds any
// fetch the call triggers.
type TokenSource interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// CachedTokenSource reuses a token until the provider's advertised expiry.
// A token without an expires_in value is treated as already expired, so it
// is fetched again on the next call.
type CachedTokenSource struct {
	mu      sync.Mutex
	current *oauth2.Token
	fetcher *tokenFetcher
}

// tokenFetcher exchanges client credentials for a bearer token.
type tokenFetcher struct {
	client *http.Client
	url    string
	key    string
	secret string
	now    func() time.Time
}

// boundFetcher adapts tokenFetcher to oauth2.TokenSource for one call.
type boundFetcher struct {
	ctx context.Context
	f   *tokenFetcher
}

func (b boundFetcher) Token() (*oauth2.Token, error) {
	return b.f.fetch(b.ctx)
}

func NewTokenSource(client *http.Client, host, key, secret string) *CachedTokenSource {
	return &CachedTokenSource{
		fetcher: &tokenFetcher{
			client: client,
			url:    host + tokenPath,
			key:    key,
			secret: secret,
			now:    time.Now,
		},
	}
}

func (s *CachedTokenSource) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := oauth2.ReuseTokenSource(s.current, boundFetcher{ctx: ctx, f: s.fetcher}).Token()
	if err != nil {
		return nil, err
	}
	s.current = tok
	return tok, nil
}

func (s *tokenFetcher) fetch(ctx context.Context) (*oauth2.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrAuth, err)
	}
	req.SetBasicAuth(s.key, s.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %w: token request: %v", ErrAuth, ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: token request: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read token response: %v", ErrAuth, err)
	}

	var payload tokenResponse
	decodeErr := json.Unmarshal(body, &payload)

	if resp.StatusCode != http.StatusOK {
		desc := payload.ErrorDescription
		if desc == "" {
			desc = payload.ErrorMessage
		}
		if desc == "" {
			desc = "Unknown error"
		}
		return nil, &ProviderError{Kind: ErrAuth, StatusCode: resp.StatusCode, Message: desc}
	}
	if decodeErr != nil || payload.AccessToken == "" {
		return nil, fmt.Errorf("%w: malformed token response", ErrAuth)
	}

	tok := &oauth2.Token{
		AccessToken: payload.AccessToken,
		TokenType:   "Bearer",
		Expiry:      s.now(),
	}
	if ttl, ok := parseExpiresIn(payload.ExpiresIn); ok {
		tok.Expiry = s.now().Add(ttl)
	}

	return tok, nil
}

// parseExpiresIn accepts seconds as a number or a numeric string; the
// provider sends the latter.
func parseExpiresIn(raw json.RawMessage) (time.Duration, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
