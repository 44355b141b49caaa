package mpesa

import "errors"

var (
	ErrAuth     = errors.New("mpesa: authentication failed")
	ErrUpstream = errors.New("mpesa: upstream error")
	ErrTimeout  = errors.New("mpesa: upstream timeout")
)

// ProviderError is a failure the provider reported in its own reply body.
// Message is the provider's text and is safe to show to API callers, unlike
// transport errors, which carry local addresses.
type ProviderError struct {
	Kind       error
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return e.Kind.Error() + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Kind
}
