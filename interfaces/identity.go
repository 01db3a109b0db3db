package interfaces

import "context"

// Identity is what the external identity provider asserts about a bearer
// credential.
type Identity struct {
	UserID      string
	SessionID   string
	DeviceNonce string

	Name    string
	Email   string
	Picture string
}

// IdentityProvider validates bearer credentials. It returns an error
// wrapping ErrUnauthenticated for any invalid token.
type IdentityProvider interface {
	Authenticate(ctx context.Context, bearer string) (*Identity, error)
}
