package usecase

import (
	"errors"
	"fmt"

	"github.com/Nzyazin/lnmo/internal/core/mpesa"
	"github.com/Nzyazin/lnmo/internal/core/repository"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrAuth            = errors.New("provider authentication failed")
	ErrUpstream        = errors.New("provider request failed")
	ErrUpstreamTimeout = errors.New("provider request timed out")
	ErrConflict        = errors.New("transaction already exists")
	ErrNotFound        = errors.New("transaction not found")
	ErrStorage         = errors.New("storage failure")
	// ErrOrphanedPush marks a push the provider accepted but the store did
	// not record. It always wraps ErrStorage.
	ErrOrphanedPush = errors.New("push accepted by provider but not recorded")
)

// providerError maps a provider-client error onto the taxonomy. Auth wins
// over timeout so a token fetch that timed out is still reported as auth.
func providerError(err error) error {
	switch {
	case errors.Is(err, mpesa.ErrAuth):
		return fmt.Errorf("%w: %w", ErrAuth, err)
	case errors.Is(err, mpesa.ErrTimeout):
		return fmt.Errorf("%w: %w", ErrUpstreamTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
}

func storageError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
}

// ProviderMessage returns the text the provider put in its reply, if the
// failure came from one. Transport failures have none.
func ProviderMessage(err error) (string, bool) {
	var providerErr *mpesa.ProviderError
	if errors.As(err, &providerErr) && providerErr.Message != "" {
		return providerErr.Message, true
	}
	return "", false
}
