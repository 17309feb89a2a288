package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrNotConnected: the location has no stored credential. A configuration
	// fault, never retried by the queue.
	ErrNotConnected = errors.New("location not connected")

	// ErrCredentialRevoked: the credential store rejected the stored refresh
	// token. The location is disconnected; a later re-auth recovers it.
	ErrCredentialRevoked = errors.New("credential revoked")

	// ErrProviderUnavailable: transient network/provider fault, retryable.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderRejected: permanent provider-side rejection (validation,
	// already replied upstream).
	ErrProviderRejected = errors.New("provider rejected request")

	// ErrAlreadyPublished is the idempotent-skip signal, not a failure.
	ErrAlreadyPublished = errors.New("reply already published")
)

// ProviderError carries the upstream HTTP status so callers can split
// transient from permanent provider failures.
type ProviderError struct {
	Status    int
	Retryable bool
	Detail    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider status %d: %s", e.Status, e.Detail)
}

func (e *ProviderError) Unwrap() error {
	if e.Retryable {
		return ErrProviderUnavailable
	}
	return ErrProviderRejected
}

// Retryable classifies an error for the job framework. Unmapped errors default
// to retryable; the attempt cap turns a persistent one into a dead letter.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotConnected),
		errors.Is(err, ErrCredentialRevoked),
		errors.Is(err, ErrProviderRejected),
		errors.Is(err, ErrAlreadyPublished),
		errors.Is(err, ErrNotFound):
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}
