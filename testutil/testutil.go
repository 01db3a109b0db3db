// Package testutil holds fixtures shared by the service and handler tests.
package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/vault/shamir"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/ruteri/embedded-wallet-custody/cryptoutils"
	"github.com/stretchr/testify/require"
)

// Now is the instant mock clocks start at.
var Now = time.Date(2025, 3, 14, 9, 26, 53, 589000000, time.UTC)

func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewClock returns a mock clock set to Now.
func NewClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(Now)
	return clk
}

// NewRSAKey returns a 2048-bit key and its base64url modulus encoding.
func NewRSAKey(t testing.TB) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, cryptoutils.MinRSAKeyBits)
	require.NoError(t, err)
	return priv, cryptoutils.EncodeRSAPublicKey(&priv.PublicKey)
}

// RSAPublicJWK encodes the public half of priv as a JWK document.
func RSAPublicJWK(t testing.TB, priv *rsa.PrivateKey) string {
	t.Helper()
	key, err := jwk.FromRaw(&priv.PublicKey)
	require.NoError(t, err)
	out, err := json.Marshal(key)
	require.NoError(t, err)
	return string(out)
}

// NewEd25519Key returns a key and its base58 public key.
func NewEd25519Key(t testing.TB) (ed25519.PrivateKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv, cryptoutils.EncodeEd25519PublicKey(pub)
}

// SplitSecret splits a random wallet secret into 2-of-3 shares, base64
// encoded the way clients submit them.
func SplitSecret(t testing.TB) []string {
	t.Helper()
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err)

	parts, err := shamir.Split(secret, 3, 2)
	require.NoError(t, err)

	shares := make([]string, 0, len(parts))
	for _, p := range parts {
		shares = append(shares, base64.StdEncoding.EncodeToString(p))
	}
	return shares
}
