package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRSAPublicKey(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, MinRSAKeyBits)
	require.NoError(t, err)
	small, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	jwkOf := func(raw any) string {
		key, err := jwk.FromRaw(raw)
		require.NoError(t, err)
		out, err := json.Marshal(key)
		require.NoError(t, err)
		return string(out)
	}

	testCases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "modulus", input: EncodeRSAPublicKey(&priv.PublicKey)},
		{name: "padded modulus", input: base64.URLEncoding.EncodeToString(priv.PublicKey.N.Bytes())},
		{name: "public jwk", input: jwkOf(&priv.PublicKey)},
		{name: "private jwk", input: jwkOf(priv)},
		{name: "short modulus", input: EncodeRSAPublicKey(&small.PublicKey), wantErr: true},
		{name: "ec jwk", input: jwkOf(&ecKey.PublicKey), wantErr: true},
		{name: "garbage", input: "{not json", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pub, err := ParseRSAPublicKey(tc.input)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrNotRSAKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, pub.N.Cmp(priv.PublicKey.N))
			assert.Equal(t, 65537, pub.E)
		})
	}
}

func TestParseEd25519PublicKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	for _, encoded := range []string{
		base58.Encode(pub),
		base64.StdEncoding.EncodeToString(pub),
	} {
		got, err := ParseEd25519PublicKey(encoded)
		require.NoError(t, err, encoded)
		assert.Equal(t, pub, got)
	}

	_, err = ParseEd25519PublicKey(base58.Encode(pub[:16]))
	require.ErrorIs(t, err, ErrNotEd25519Key)
	_, err = ParseEd25519PublicKey("")
	require.ErrorIs(t, err, ErrNotEd25519Key)
}

func TestAddresses(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	require.NoError(t, ValidateSolanaAddress(EncodeEd25519PublicKey(pub)))
	require.Error(t, ValidateSolanaAddress("0OIl"))
	require.Error(t, ValidateSolanaAddress(base58.Encode([]byte("short"))))

	priv, err := rsa.GenerateKey(rand.Reader, MinRSAKeyBits)
	require.NoError(t, err)
	address := ArweaveAddress(&priv.PublicKey)
	assert.Len(t, address, 43)
	require.NoError(t, ValidateArweaveAddress(address))
	require.Error(t, ValidateArweaveAddress("not base64url!"))
	require.Error(t, ValidateArweaveAddress(EncodeRSAPublicKey(&priv.PublicKey)))
}

func TestShares(t *testing.T) {
	require.NoError(t, ValidateShare(base64.StdEncoding.EncodeToString([]byte("share"))))
	require.NoError(t, ValidateShare(hex.EncodeToString([]byte("share"))))
	require.ErrorIs(t, ValidateShare(""), ErrMalformedShare)
	require.ErrorIs(t, ValidateShare("not a share!"), ErrMalformedShare)
	require.ErrorIs(t, ValidateShare(strings.Repeat("a", MaxShareLength+4)), ErrMalformedShare)

	hash := ShareHash("share")
	assert.Len(t, hash, 64)
	require.NoError(t, ValidateShareHash(hash))

	digest, err := hex.DecodeString(hash)
	require.NoError(t, err)
	require.NoError(t, ValidateShareHash(base64.StdEncoding.EncodeToString(digest)))
	require.NoError(t, ValidateShareHash(base64.RawURLEncoding.EncodeToString(digest)))
	require.ErrorIs(t, ValidateShareHash("abcd"), ErrMalformedShare)
}

func TestServerPubkey(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	pub, err := ServerPubkeyFromKey(&key.PublicKey)
	require.NoError(t, err)
	require.NoError(t, pub.Validate())
	assert.True(t, strings.HasPrefix(pub.String(), "-----BEGIN PUBLIC KEY-----"))

	parsed, err := pub.GetPublicKey()
	require.NoError(t, err)
	assert.True(t, parsed.Equal(&key.PublicKey))

	_, err = NewServerPubkey([]byte("not pem"))
	require.Error(t, err)
}

func TestParsePrivateKey(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, MinRSAKeyBits)
	require.NoError(t, err)
	privJWK, err := jwk.FromRaw(rsaKey)
	require.NoError(t, err)
	privJSON, err := json.Marshal(privJWK)
	require.NoError(t, err)
	pubJWK, err := jwk.FromRaw(&rsaKey.PublicKey)
	require.NoError(t, err)
	pubJSON, err := json.Marshal(pubJWK)
	require.NoError(t, err)

	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	t.Run("RSAJWK", func(t *testing.T) {
		key, err := ParsePrivateKey(privJSON)
		require.NoError(t, err)
		parsed, ok := key.(*rsa.PrivateKey)
		require.True(t, ok)
		assert.True(t, parsed.PublicKey.Equal(&rsaKey.PublicKey))
	})

	t.Run("PublicJWKIsRejected", func(t *testing.T) {
		_, err := ParsePrivateKey(pubJSON)
		require.ErrorIs(t, err, ErrUnsupportedPrivateKey)
	})

	testCases := []struct {
		name string
		data string
	}{
		{"base58 private key", base58.Encode(edKey)},
		{"base64 private key", base64.StdEncoding.EncodeToString(edKey)},
		{"base64 seed", base64.StdEncoding.EncodeToString(edKey.Seed())},
		{"base58 seed with newline", base58.Encode(edKey.Seed()) + "\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := ParsePrivateKey([]byte(tc.data))
			require.NoError(t, err)
			assert.Equal(t, edKey, key)
		})
	}

	_, err = ParsePrivateKey([]byte("garbage!"))
	require.ErrorIs(t, err, ErrUnsupportedPrivateKey)
}
