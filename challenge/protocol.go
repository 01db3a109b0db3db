package challenge

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"github.com/ruteri/embedded-wallet-custody/metrics"
)

// ValueSize is the number of random bytes in a challenge value.
const ValueSize = 32

type Options struct {
	// TTL is the maximum age of a challenge at verification time.
	TTL time.Duration

	// AllowHashChallenges enables the digest-equality fallback. Test
	// environments only; config validation rejects it in production.
	AllowHashChallenges bool

	// DefaultVersion is used when a challenge is issued without a known
	// verifying key. Defaults to the newest registered version.
	DefaultVersion Version
}

// Protocol issues challenges and verifies their solutions.
type Protocol struct {
	registry *Registry
	opts     Options
	clock    clock.Clock
	log      *slog.Logger
}

func NewProtocol(registry *Registry, opts Options, clk clock.Clock, log *slog.Logger) (*Protocol, error) {
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("challenge TTL must be positive, got %s", opts.TTL)
	}
	if opts.DefaultVersion == "" {
		opts.DefaultVersion = registry.Latest()
	}
	if _, ok := registry.Client(opts.DefaultVersion); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, opts.DefaultVersion)
	}
	return &Protocol{registry: registry, opts: opts, clock: clk, log: log}, nil
}

func (p *Protocol) Registry() *Registry {
	return p.registry
}

func (p *Protocol) TTL() time.Duration {
	return p.opts.TTL
}

// selectScheme picks the version and type for a challenge verified against
// publicKey. An empty key yields a HASH challenge when the fallback is
// enabled, otherwise a SIGNATURE challenge under the default version.
func (p *Protocol) selectScheme(publicKey string) (Version, interfaces.ChallengeType, error) {
	if publicKey == "" {
		if p.opts.AllowHashChallenges {
			for _, v := range p.registry.order {
				if p.registry.clients[v].SupportsHash() {
					return v, interfaces.ChallengeTypeHash, nil
				}
			}
		}
		return p.opts.DefaultVersion, interfaces.ChallengeTypeSignature, nil
	}
	v, err := p.registry.VersionFor(publicKey)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", interfaces.ErrInvalidPublicKey, err)
	}
	return v, interfaces.ChallengeTypeSignature, nil
}

func newValue() ([]byte, error) {
	value := make([]byte, ValueSize)
	if _, err := rand.Read(value); err != nil {
		return nil, fmt.Errorf("failed to generate challenge value: %w", err)
	}
	return value, nil
}

func (p *Protocol) now() time.Time {
	return p.clock.Now().UTC().Truncate(time.Millisecond)
}

// NewChallenge builds the upsert data for a user-scoped challenge.
func (p *Protocol) NewChallenge(purpose interfaces.ChallengePurpose, publicKey, ip, userID, walletID string) (*interfaces.Challenge, error) {
	version, typ, err := p.selectScheme(publicKey)
	if err != nil {
		return nil, err
	}
	value, err := newValue()
	if err != nil {
		return nil, err
	}

	c := &interfaces.Challenge{
		ID:        uuid.NewString(),
		Type:      typ,
		Purpose:   purpose,
		Value:     value,
		Version:   string(version),
		CreatedAt: p.now(),
		UserID:    userID,
		WalletID:  walletID,
		PublicKey: publicKey,
	}

	metrics.ChallengesIssued.WithLabelValues(string(purpose)).Inc()
	p.log.Debug("Issued challenge",
		slog.String("challengeID", c.ID),
		slog.String("purpose", string(purpose)),
		slog.String("version", c.Version),
		slog.String("type", string(typ)),
		slog.String("userID", userID),
		slog.String("ip", ip))
	return c, nil
}

// NewAnonChallenge builds the upsert data for an anonymous challenge.
// Anonymous challenges are always signature challenges.
func (p *Protocol) NewAnonChallenge(purpose interfaces.ChallengePurpose, publicKey string, chain interfaces.Chain, address, userID string) (*interfaces.AnonChallenge, error) {
	if publicKey == "" {
		return nil, fmt.Errorf("%w: anonymous challenges need a verifying key", interfaces.ErrInvalidPublicKey)
	}
	version, _, err := p.selectScheme(publicKey)
	if err != nil {
		return nil, err
	}
	value, err := newValue()
	if err != nil {
		return nil, err
	}

	c := &interfaces.AnonChallenge{
		ID:        uuid.NewString(),
		Type:      interfaces.ChallengeTypeSignature,
		Purpose:   purpose,
		Value:     value,
		Version:   string(version),
		Chain:     chain,
		Address:   address,
		CreatedAt: p.now(),
		PublicKey: publicKey,
		UserID:    userID,
	}

	metrics.ChallengesIssued.WithLabelValues(string(purpose)).Inc()
	p.log.Debug("Issued anonymous challenge",
		slog.String("challengeID", c.ID),
		slog.String("purpose", string(purpose)),
		slog.String("version", c.Version),
		slog.String("chain", string(chain)))
	return c, nil
}

// VerifyChallenge checks a solution for a user-scoped challenge. It returns
// nil on success and a *VerificationError otherwise; it never panics.
func (p *Protocol) VerifyChallenge(c *interfaces.Challenge, s *interfaces.Session, shareHash, solution, publicKey string) (err error) {
	defer p.observe(string(c.Purpose), &err)
	defer recoverVerification(&err)

	client, sol, verr := p.resolve(solution)
	if verr != nil {
		return verr
	}
	if verr := p.checkAge(c.CreatedAt); verr != nil {
		return verr
	}

	raw, rerr := client.RawData(c, s, shareHash)
	if rerr != nil {
		if errors.Is(rerr, ErrMissingShareHash) {
			return &VerificationError{Kind: KindMissingShareHash, Err: rerr}
		}
		return &VerificationError{Kind: KindUnexpected, Err: rerr}
	}

	if c.Type == interfaces.ChallengeTypeSignature {
		return verifySignature(client, publicKey, raw, sol.Value)
	}
	return p.verifyHash(client, c.Type, raw, sol)
}

// VerifyAnonChallenge checks a solution for an anonymous challenge. Anonymous
// challenges always require a signature.
func (p *Protocol) VerifyAnonChallenge(c *interfaces.AnonChallenge, solution, publicKey string) (err error) {
	defer p.observe(string(c.Purpose), &err)
	defer recoverVerification(&err)

	client, sol, verr := p.resolve(solution)
	if verr != nil {
		return verr
	}
	if verr := p.checkAge(c.CreatedAt); verr != nil {
		return verr
	}

	raw, rerr := client.AnonRawData(c)
	if rerr != nil {
		return &VerificationError{Kind: KindUnexpected, Err: rerr}
	}
	return verifySignature(client, publicKey, raw, sol.Value)
}

func (p *Protocol) resolve(solution string) (Client, Solution, *VerificationError) {
	sol, err := ParseSolution(solution)
	if err != nil {
		return nil, Solution{}, &VerificationError{Kind: KindUnexpected, Err: err}
	}
	client, ok := p.registry.Client(sol.Version)
	if !ok {
		return nil, Solution{}, verificationError(KindUnexpected, "%w: %q", ErrUnknownVersion, sol.Version)
	}
	return client, sol, nil
}

func (p *Protocol) checkAge(createdAt time.Time) *VerificationError {
	age := p.clock.Now().Sub(createdAt)
	if age >= p.opts.TTL {
		return verificationError(KindExpired, "challenge is %s old, ttl %s", age.Truncate(time.Millisecond), p.opts.TTL)
	}
	return nil
}

func verifySignature(client Client, publicKey string, raw, signature []byte) error {
	if publicKey == "" {
		return verificationError(KindMissingPublicKey, "no public key to verify %s solution", client.Version())
	}
	if err := client.Verify(publicKey, raw, signature); err != nil {
		return &VerificationError{Kind: KindInvalid, Err: err}
	}
	return nil
}

func (p *Protocol) verifyHash(client Client, typ interfaces.ChallengeType, raw []byte, sol Solution) error {
	if typ != interfaces.ChallengeTypeHash {
		return verificationError(KindInvalid, "unsupported challenge type %q", typ)
	}
	if !p.opts.AllowHashChallenges {
		return verificationError(KindInvalid, "hash challenges are disabled")
	}
	if !client.SupportsHash() {
		return verificationError(KindInvalid, "version %s does not support hash challenges", client.Version())
	}
	expected := HashValue(raw)
	if subtle.ConstantTimeCompare(expected, sol.Value) != 1 {
		return verificationError(KindInvalid, "hash mismatch")
	}
	return nil
}

// HashValue is the expected solution value of a HASH challenge.
func HashValue(raw []byte) []byte {
	digest := sha256.Sum256(raw)
	return digest[:]
}

func recoverVerification(err *error) {
	if r := recover(); r != nil {
		*err = verificationError(KindUnexpected, "panic during verification: %v", r)
	}
}

func (p *Protocol) observe(purpose string, err *error) {
	result := "ok"
	if *err != nil {
		result = string(KindOf(*err))
		p.log.Warn("Challenge verification failed",
			slog.String("purpose", purpose),
			slog.String("kind", result),
			"err", *err)
	}
	metrics.ChallengeVerifications.WithLabelValues(purpose, result).Inc()
}
