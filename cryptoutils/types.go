package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// ServerPubkey is the recovery-file signing public key in PEM format. It is
// handed to clients so they can check a recovery file offline.
type ServerPubkey []byte

// NewServerPubkey creates a new public key object from PEM-encoded data with validation.
func NewServerPubkey(data []byte) (ServerPubkey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "PUBLIC KEY" {
		return ServerPubkey{}, errors.New("invalid public key: not in PEM format or not a public key")
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return ServerPubkey{}, fmt.Errorf("invalid public key structure: %w", err)
	}
	if _, ok := key.(*ecdsa.PublicKey); !ok {
		return ServerPubkey{}, fmt.Errorf("unsupported public key type: %T", key)
	}

	return ServerPubkey(data), nil
}

// ServerPubkeyFromKey encodes an ECDSA public key as PKIX PEM.
func ServerPubkeyFromKey(pub *ecdsa.PublicKey) (ServerPubkey, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return ServerPubkey(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// Validate checks if the public key is properly formed.
func (pub ServerPubkey) Validate() error {
	_, err := NewServerPubkey(pub)
	return err
}

// GetPublicKey returns the parsed ECDSA public key.
func (pub ServerPubkey) GetPublicKey() (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pub)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unsupported public key type: %T", key)
	}
	return ecKey, nil
}

func (pub ServerPubkey) String() string {
	return string(pub)
}
