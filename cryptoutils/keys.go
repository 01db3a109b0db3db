package cryptoutils

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/mr-tron/base58"
)

// MinRSAKeyBits is the smallest RSA modulus accepted for challenge keys.
const MinRSAKeyBits = 2048

const rsaPublicExponent = 65537

var (
	ErrNotRSAKey     = errors.New("not an RSA public key")
	ErrNotEd25519Key = errors.New("not an Ed25519 public key")
)

// ParseRSAPublicKey imports an RSA public key given either as a JWK JSON
// document or as the base64url-encoded modulus (Arweave "owner" format, with
// the exponent fixed to 65537).
func ParseRSAPublicKey(s string) (*rsa.PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrNotRSAKey
	}

	var pub *rsa.PublicKey
	if strings.HasPrefix(s, "{") {
		key, err := jwk.ParseKey([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotRSAKey, err)
		}
		if key.KeyType().String() != "RSA" {
			return nil, fmt.Errorf("%w: key type %s", ErrNotRSAKey, key.KeyType())
		}
		// Accepts private JWKs too; only the public half is kept.
		pubKey, err := jwk.PublicKeyOf(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotRSAKey, err)
		}
		var raw rsa.PublicKey
		if err := pubKey.Raw(&raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotRSAKey, err)
		}
		pub = &raw
	} else {
		modulus, err := decodeBase64URL(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotRSAKey, err)
		}
		pub = &rsa.PublicKey{N: new(big.Int).SetBytes(modulus), E: rsaPublicExponent}
	}

	if pub.N.BitLen() < MinRSAKeyBits {
		return nil, fmt.Errorf("%w: modulus is %d bits", ErrNotRSAKey, pub.N.BitLen())
	}
	return pub, nil
}

// EncodeRSAPublicKey returns the base64url modulus of pub.
func EncodeRSAPublicKey(pub *rsa.PublicKey) string {
	return base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
}

// ArweaveAddress derives the Arweave address of an RSA key: the base64url
// SHA-256 of the modulus.
func ArweaveAddress(pub *rsa.PublicKey) string {
	digest := sha256.Sum256(pub.N.Bytes())
	return base64.RawURLEncoding.EncodeToString(digest[:])
}

// ParseEd25519PublicKey imports a 32-byte Ed25519 key encoded as base58
// (Solana address format), standard base64 or base64url.
func ParseEd25519PublicKey(s string) (ed25519.PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrNotEd25519Key
	}
	if b, err := base58.Decode(s); err == nil && len(b) == ed25519.PublicKeySize {
		return ed25519.PublicKey(b), nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == ed25519.PublicKeySize {
		return ed25519.PublicKey(b), nil
	}
	if b, err := decodeBase64URL(s); err == nil && len(b) == ed25519.PublicKeySize {
		return ed25519.PublicKey(b), nil
	}
	return nil, ErrNotEd25519Key
}

// EncodeEd25519PublicKey returns the base58 encoding used for Solana
// addresses.
func EncodeEd25519PublicKey(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}

// ValidateSolanaAddress checks that address is a base58 Ed25519 key.
func ValidateSolanaAddress(address string) error {
	b, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("invalid base58: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return fmt.Errorf("decoded address is %d bytes", len(b))
	}
	return nil
}

// ValidateArweaveAddress checks that address is a base64url SHA-256 digest.
func ValidateArweaveAddress(address string) error {
	b, err := decodeBase64URL(address)
	if err != nil {
		return fmt.Errorf("invalid base64url: %w", err)
	}
	if len(b) != sha256.Size {
		return fmt.Errorf("decoded address is %d bytes", len(b))
	}
	return nil
}

func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

var ErrUnsupportedPrivateKey = errors.New("unsupported challenge private key")

// ParsePrivateKey imports a challenge signing key: an RSA private JWK, or an
// Ed25519 seed (32 bytes) or private key (64 bytes) in base58 or base64.
func ParsePrivateKey(data []byte) (crypto.PrivateKey, error) {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, "{") {
		key, err := jwk.ParseKey([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedPrivateKey, err)
		}
		var priv rsa.PrivateKey
		if err := key.Raw(&priv); err != nil {
			return nil, fmt.Errorf("%w: not an RSA private JWK: %v", ErrUnsupportedPrivateKey, err)
		}
		return &priv, nil
	}

	decoders := []func(string) ([]byte, error){
		base58.Decode,
		base64.StdEncoding.DecodeString,
		decodeBase64URL,
	}
	for _, decode := range decoders {
		b, err := decode(s)
		if err != nil {
			continue
		}
		switch len(b) {
		case ed25519.SeedSize:
			return ed25519.NewKeyFromSeed(b), nil
		case ed25519.PrivateKeySize:
			return ed25519.PrivateKey(b), nil
		}
	}
	return nil, ErrUnsupportedPrivateKey
}
