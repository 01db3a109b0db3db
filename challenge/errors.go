package challenge

import (
	"errors"
	"fmt"
)

// ErrorKind names the step at which verification failed. Kinds are logged,
// never returned to callers.
type ErrorKind string

const (
	KindUnexpected       ErrorKind = "CHALLENGE_UNEXPECTED_ERROR"
	KindInvalid          ErrorKind = "CHALLENGE_INVALID"
	KindExpired          ErrorKind = "CHALLENGE_EXPIRED"
	KindMissingPublicKey ErrorKind = "CHALLENGE_MISSING_PK"
	KindMissingShareHash ErrorKind = "CHALLENGE_MISSING_SHARE_HASH"
)

type VerificationError struct {
	Kind ErrorKind
	Err  error
}

func (e *VerificationError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

func verificationError(kind ErrorKind, format string, args ...any) *VerificationError {
	return &VerificationError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of a verification error, or KindUnexpected for
// any other non-nil error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var verr *VerificationError
	if errors.As(err, &verr) {
		return verr.Kind
	}
	return KindUnexpected
}

var (
	ErrDuplicateVersion  = errors.New("challenge version registered twice")
	ErrUnknownVersion    = errors.New("unknown challenge version")
	ErrMissingShareHash  = errors.New("share hash required for this purpose")
	ErrMissingSession    = errors.New("session required for user-scoped challenge")
	ErrUnsupportedKey    = errors.New("public key matches no registered challenge version")
	ErrUnsupportedSigner = errors.New("private key type not supported by this version")
)
