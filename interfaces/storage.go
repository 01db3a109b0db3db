package interfaces

import (
	"context"
	"errors"
)

// StorageBackendLocation is a backend URI of the form
// [scheme]://[auth@]host[:port][/path][?params].
type StorageBackendLocation string

var (
	// ErrContentNotFound is returned when a named secret is absent from a backend.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// StorageBackend stores small named secrets, such as the seed of the
// recovery-file signing key.
type StorageBackend interface {
	// Fetch retrieves a secret by name.
	Fetch(ctx context.Context, name string) ([]byte, error)

	// Store saves a secret under name, replacing any previous value.
	Store(ctx context.Context, name string, data []byte) error

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns a short identifier used in logs.
	Name() string

	// LocationURI returns the backend location with credentials redacted.
	LocationURI() string
}

// StorageBackendFactory creates backends from location URIs.
type StorageBackendFactory interface {
	StorageBackendFor(location StorageBackendLocation) (StorageBackend, error)
	CreateMultiBackend(locations []StorageBackendLocation) (StorageBackend, error)
}
