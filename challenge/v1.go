package challenge

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"github.com/ruteri/embedded-wallet-custody/cryptoutils"
)

// pssSaltLength matches the Arweave wallet signing parameters.
const pssSaltLength = 32

var pssOptions = &rsa.PSSOptions{SaltLength: pssSaltLength, Hash: crypto.SHA256}

// V1Client implements RSA-PSS over SHA-256. It is the only version under
// which HASH challenges may be issued.
type V1Client struct {
	canonical
}

func NewV1Client() *V1Client {
	return &V1Client{}
}

func (*V1Client) Version() Version { return V1 }

func (*V1Client) SupportsHash() bool { return true }

func (*V1Client) AcceptsKey(publicKey string) bool {
	_, err := cryptoutils.ParseRSAPublicKey(publicKey)
	return err == nil
}

func (*V1Client) Solve(key crypto.PrivateKey, rawData []byte) (string, error) {
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return "", fmt.Errorf("%w: %T", ErrUnsupportedSigner, key)
	}

	digest := sha256.Sum256(rawData)
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge: %w", err)
	}
	return FormatSolution(V1, sig), nil
}

func (*V1Client) Verify(publicKey string, rawData []byte, signature []byte) error {
	pub, err := cryptoutils.ParseRSAPublicKey(publicKey)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(rawData)
	return rsa.VerifyPSS(pub, crypto.SHA256, digest[:], signature, pssOptions)
}
