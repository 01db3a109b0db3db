package challenge

import (
	"crypto"
	"fmt"
	"sort"

	"github.com/ruteri/embedded-wallet-custody/interfaces"
)

// Client is one versioned challenge scheme.
type Client interface {
	Version() Version

	// AcceptsKey reports whether publicKey has the shape this version
	// verifies against.
	AcceptsKey(publicKey string) bool

	RawData(c *interfaces.Challenge, s *interfaces.Session, shareHash string) ([]byte, error)
	AnonRawData(c *interfaces.AnonChallenge) ([]byte, error)

	// Solve signs rawData and returns the versioned solution string.
	Solve(key crypto.PrivateKey, rawData []byte) (string, error)

	// Verify checks a signature over rawData. It returns nil on success.
	Verify(publicKey string, rawData []byte, signature []byte) error

	// SupportsHash reports whether HASH challenges may be issued under
	// this version.
	SupportsHash() bool
}

// Registry maps versions to clients. It is built once at startup and is
// read-only afterwards.
type Registry struct {
	clients map[Version]Client
	// newest first
	order []Version
}

// NewRegistry fails with ErrDuplicateVersion if two clients claim the same
// version.
func NewRegistry(clients ...Client) (*Registry, error) {
	r := &Registry{clients: make(map[Version]Client, len(clients))}
	for _, c := range clients {
		if _, exists := r.clients[c.Version()]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateVersion, c.Version())
		}
		r.clients[c.Version()] = c
		r.order = append(r.order, c.Version())
	}
	sort.Slice(r.order, func(i, j int) bool { return r.order[i] > r.order[j] })
	return r, nil
}

// DefaultRegistry registers the RSA-PSS (v1) and Ed25519 (v2) clients.
func DefaultRegistry() (*Registry, error) {
	return NewRegistry(NewV1Client(), NewV2Client())
}

func (r *Registry) Client(v Version) (Client, bool) {
	c, ok := r.clients[v]
	return c, ok
}

func (r *Registry) Versions() []Version {
	return append([]Version(nil), r.order...)
}

// Latest returns the newest registered version.
func (r *Registry) Latest() Version {
	if len(r.order) == 0 {
		return ""
	}
	return r.order[0]
}

// VersionFor selects the version that verifies against publicKey, preferring
// newer versions.
func (r *Registry) VersionFor(publicKey string) (Version, error) {
	for _, v := range r.order {
		if r.clients[v].AcceptsKey(publicKey) {
			return v, nil
		}
	}
	return "", ErrUnsupportedKey
}

// SolveChallenge computes the solution a client would submit for c.
func (r *Registry) SolveChallenge(key crypto.PrivateKey, c *interfaces.Challenge, s *interfaces.Session, shareHash string) (string, error) {
	client, ok := r.clients[Version(c.Version)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownVersion, c.Version)
	}
	raw, err := client.RawData(c, s, shareHash)
	if err != nil {
		return "", err
	}
	return client.Solve(key, raw)
}

// SolveChallengeWith signs c using the client of version v instead of the
// version recorded on the challenge. Used when the signing key was not
// known at issuance.
func (r *Registry) SolveChallengeWith(v Version, key crypto.PrivateKey, c *interfaces.Challenge, s *interfaces.Session, shareHash string) (string, error) {
	client, ok := r.clients[v]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownVersion, v)
	}
	raw, err := client.RawData(c, s, shareHash)
	if err != nil {
		return "", err
	}
	return client.Solve(key, raw)
}

func (r *Registry) SolveAnonChallenge(key crypto.PrivateKey, c *interfaces.AnonChallenge) (string, error) {
	client, ok := r.clients[Version(c.Version)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownVersion, c.Version)
	}
	raw, err := client.AnonRawData(c)
	if err != nil {
		return "", err
	}
	return client.Solve(key, raw)
}
