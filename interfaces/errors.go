package interfaces

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every error returned by the services wraps exactly one of
// these roots; the HTTP layer maps them with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrBadRequest = errors.New("bad request")
	ErrUnexpected = errors.New("unexpected error")
)

var (
	ErrWalletNotFound              = fmt.Errorf("wallet %w", ErrNotFound)
	ErrWorkShareNotFound           = fmt.Errorf("work share %w", ErrNotFound)
	ErrWorkShareInvalidated        = fmt.Errorf("work share invalidated: %w", ErrNotFound)
	ErrRecoveryShareNotFound       = fmt.Errorf("recovery share %w", ErrNotFound)
	ErrChallengeNotFound           = fmt.Errorf("challenge %w", ErrNotFound)
	ErrRecoverableAccountsNotFound = fmt.Errorf("recoverable accounts %w", ErrNotFound)
	ErrProfileNotFound             = fmt.Errorf("profile %w", ErrNotFound)
	ErrSessionNotFound             = fmt.Errorf("session %w", ErrNotFound)

	// ErrChallengeFailed is the only verification error callers see.
	ErrChallengeFailed     = fmt.Errorf("invalid challenge solution: %w", ErrForbidden)
	ErrWalletNotEnabled    = fmt.Errorf("wallet is not enabled: %w", ErrForbidden)
	ErrInvalidRecoveryFile = fmt.Errorf("invalid recovery file signature: %w", ErrForbidden)

	ErrInvalidStatusTransition = fmt.Errorf("invalid wallet status transition: %w", ErrBadRequest)
	ErrWorkShareExists         = fmt.Errorf("work share already registered for this device: %w", ErrBadRequest)
	ErrInvalidPublicKey        = fmt.Errorf("invalid public key: %w", ErrBadRequest)
	ErrInvalidAddress          = fmt.Errorf("invalid address: %w", ErrBadRequest)
	ErrInvalidShare            = fmt.Errorf("invalid share: %w", ErrBadRequest)

	// ErrUnauthenticated is returned by identity providers; it never reaches
	// the services.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// BadRequest wraps a validation message into the BAD_REQUEST class.
func BadRequest(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrBadRequest)
}
