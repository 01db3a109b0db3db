package challenge

import (
	"crypto"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/ruteri/embedded-wallet-custody/cryptoutils"
)

// V2Client implements Ed25519 signatures over the raw data bytes.
type V2Client struct {
	canonical
}

func NewV2Client() *V2Client {
	return &V2Client{}
}

func (*V2Client) Version() Version { return V2 }

func (*V2Client) SupportsHash() bool { return false }

func (*V2Client) AcceptsKey(publicKey string) bool {
	_, err := cryptoutils.ParseEd25519PublicKey(publicKey)
	return err == nil
}

func (*V2Client) Solve(key crypto.PrivateKey, rawData []byte) (string, error) {
	var priv ed25519.PrivateKey
	switch k := key.(type) {
	case ed25519.PrivateKey:
		priv = k
	case *ed25519.PrivateKey:
		priv = *k
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedSigner, key)
	}
	if len(priv) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("%w: private key is %d bytes", ErrUnsupportedSigner, len(priv))
	}
	return FormatSolution(V2, ed25519.Sign(priv, rawData)), nil
}

func (*V2Client) Verify(publicKey string, rawData []byte, signature []byte) error {
	pub, err := cryptoutils.ParseEd25519PublicKey(publicKey)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, rawData, signature) {
		return errors.New("ed25519: invalid signature")
	}
	return nil
}
