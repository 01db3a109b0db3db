package kms

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"

	"github.com/ruteri/embedded-wallet-custody/cryptoutils"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"golang.org/x/crypto/hkdf"
)

const (
	// SeedSize is the required length of the backup seed.
	SeedSize = 32

	// SeedName is the name the seed is stored under in a secret backend.
	SeedName = "backup-kms-seed"

	hkdfInfo = "embedded-wallet-custody/recovery-file/p256"
)

var ErrSeedNotFound = errors.New("backup seed not found in any backend")

// BackupKMS signs and verifies recovery files.
type BackupKMS struct {
	key    *ecdsa.PrivateKey
	pubPEM cryptoutils.ServerPubkey
}

// NewBackupKMS derives the signing key from seed.
func NewBackupKMS(seed []byte) (*BackupKMS, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("backup seed must be %d bytes, got %d", SeedSize, len(seed))
	}

	key, err := deriveKey(seed)
	if err != nil {
		return nil, err
	}
	pub, err := cryptoutils.ServerPubkeyFromKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode backup public key: %w", err)
	}
	return &BackupKMS{key: key, pubPEM: pub}, nil
}

// deriveKey maps HKDF output onto a scalar in [1, N-1].
func deriveKey(seed []byte) (*ecdsa.PrivateKey, error) {
	curve := elliptic.P256()
	params := curve.Params()

	// 16 extra bytes make the modular bias negligible.
	material := make([]byte, params.BitSize/8+16)
	if _, err := io.ReadFull(hkdf.New(sha256.New, seed, nil, []byte(hkdfInfo)), material); err != nil {
		return nil, fmt.Errorf("failed to derive backup key: %w", err)
	}

	nMinusOne := new(big.Int).Sub(params.N, big.NewInt(1))
	d := new(big.Int).SetBytes(material)
	d.Mod(d, nMinusOne)
	d.Add(d, big.NewInt(1))

	key := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve},
		D:         d,
	}
	key.PublicKey.X, key.PublicKey.Y = curve.ScalarBaseMult(d.FillBytes(make([]byte, params.BitSize/8)))
	return key, nil
}

func recoveryFileDigest(walletID, backupShareHash string) []byte {
	digest := sha256.Sum256([]byte(walletID + "|" + backupShareHash))
	return digest[:]
}

// SignRecoveryFile returns the base64 server signature over
// walletID|backupShareHash.
func (k *BackupKMS) SignRecoveryFile(walletID, backupShareHash string) (string, error) {
	sig, err := ecdsa.SignASN1(rand.Reader, k.key, recoveryFileDigest(walletID, backupShareHash))
	if err != nil {
		return "", fmt.Errorf("failed to sign recovery file: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyRecoveryFile checks a signature produced by SignRecoveryFile.
// Returns interfaces.ErrInvalidRecoveryFile on any mismatch.
func (k *BackupKMS) VerifyRecoveryFile(walletID, backupShareHash, signature string) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", interfaces.ErrInvalidRecoveryFile)
	}
	if !ecdsa.VerifyASN1(&k.key.PublicKey, recoveryFileDigest(walletID, backupShareHash), sig) {
		return interfaces.ErrInvalidRecoveryFile
	}
	return nil
}

// PublicKeyPEM returns the verifying key handed to clients.
func (k *BackupKMS) PublicKeyPEM() cryptoutils.ServerPubkey {
	return k.pubPEM
}

// LoadSeed fetches the seed from backend. If it is absent and create is
// set, a random seed is generated and stored first.
func LoadSeed(ctx context.Context, backend interfaces.StorageBackend, create bool, log *slog.Logger) ([]byte, error) {
	seed, err := backend.Fetch(ctx, SeedName)
	switch {
	case err == nil:
		if len(seed) != SeedSize {
			return nil, fmt.Errorf("stored backup seed is %d bytes, expected %d", len(seed), SeedSize)
		}
		return seed, nil
	case !errors.Is(err, interfaces.ErrContentNotFound):
		return nil, fmt.Errorf("failed to fetch backup seed from %s: %w", backend.Name(), err)
	case !create:
		return nil, ErrSeedNotFound
	}

	seed = make([]byte, SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to generate backup seed: %w", err)
	}
	if err := backend.Store(ctx, SeedName, seed); err != nil {
		return nil, fmt.Errorf("failed to store backup seed: %w", err)
	}
	log.Info("Generated new backup seed", slog.String("backend", backend.LocationURI()))
	return seed, nil
}
