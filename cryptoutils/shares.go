package cryptoutils

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// MaxShareLength bounds the encoded size of an auth or recovery share.
const MaxShareLength = 4096

var ErrMalformedShare = errors.New("malformed share")

// ValidateShare checks an encoded auth share. The server never interprets
// share contents; it only bounds their size and encoding.
func ValidateShare(share string) error {
	if share == "" {
		return fmt.Errorf("%w: empty", ErrMalformedShare)
	}
	if len(share) > MaxShareLength {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrMalformedShare, len(share), MaxShareLength)
	}
	if _, err := base64.StdEncoding.DecodeString(share); err != nil {
		if _, err := hex.DecodeString(share); err != nil {
			return fmt.Errorf("%w: neither base64 nor hex", ErrMalformedShare)
		}
	}
	return nil
}

// ValidateShareHash checks that h encodes a SHA-256 digest as hex, base64 or
// base64url.
func ValidateShareHash(h string) error {
	if h == "" {
		return fmt.Errorf("%w: empty hash", ErrMalformedShare)
	}
	if b, err := hex.DecodeString(h); err == nil && len(b) == sha256.Size {
		return nil
	}
	if b, err := base64.StdEncoding.DecodeString(h); err == nil && len(b) == sha256.Size {
		return nil
	}
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(h, "=")); err == nil && len(b) == sha256.Size {
		return nil
	}
	return fmt.Errorf("%w: hash is not a SHA-256 digest", ErrMalformedShare)
}

// ShareHash returns the hex SHA-256 of a share, the format clients use for
// device and backup share hashes.
func ShareHash(share string) string {
	digest := sha256.Sum256([]byte(share))
	return hex.EncodeToString(digest[:])
}
