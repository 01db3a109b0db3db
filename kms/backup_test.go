package kms

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"github.com/ruteri/embedded-wallet-custody/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupKMS(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, SeedSize)

	k, err := NewBackupKMS(seed)
	require.NoError(t, err)

	t.Run("deterministic", func(t *testing.T) {
		again, err := NewBackupKMS(seed)
		require.NoError(t, err)
		assert.Equal(t, k.PublicKeyPEM(), again.PublicKeyPEM())

		other, err := NewBackupKMS(bytes.Repeat([]byte{8}, SeedSize))
		require.NoError(t, err)
		assert.NotEqual(t, k.PublicKeyPEM(), other.PublicKeyPEM())

		require.NoError(t, k.PublicKeyPEM().Validate())
		pub, err := k.PublicKeyPEM().GetPublicKey()
		require.NoError(t, err)
		assert.True(t, pub.Curve.IsOnCurve(pub.X, pub.Y))
	})

	t.Run("sign and verify", func(t *testing.T) {
		sig, err := k.SignRecoveryFile("wallet-1", "hash-1")
		require.NoError(t, err)
		require.NoError(t, k.VerifyRecoveryFile("wallet-1", "hash-1", sig))

		testCases := []struct {
			name     string
			walletID string
			hash     string
			sig      string
		}{
			{name: "other wallet", walletID: "wallet-2", hash: "hash-1", sig: sig},
			{name: "other hash", walletID: "wallet-1", hash: "hash-2", sig: sig},
			{name: "separator shift", walletID: "wallet-1|hash", hash: "-1", sig: "AAAA"},
			{name: "malformed", walletID: "wallet-1", hash: "hash-1", sig: "***"},
			{name: "empty", walletID: "wallet-1", hash: "hash-1", sig: ""},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				err := k.VerifyRecoveryFile(tc.walletID, tc.hash, tc.sig)
				require.ErrorIs(t, err, interfaces.ErrInvalidRecoveryFile)
				require.ErrorIs(t, err, interfaces.ErrForbidden)
			})
		}
	})

	t.Run("rejects short seed", func(t *testing.T) {
		_, err := NewBackupKMS([]byte("short"))
		require.Error(t, err)
	})
}

func TestLoadSeed(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := storage.NewFileBackend(t.TempDir(), log)
	require.NoError(t, err)

	_, err = LoadSeed(ctx, backend, false, log)
	require.ErrorIs(t, err, ErrSeedNotFound)

	seed, err := LoadSeed(ctx, backend, true, log)
	require.NoError(t, err)
	require.Len(t, seed, SeedSize)

	again, err := LoadSeed(ctx, backend, true, log)
	require.NoError(t, err)
	assert.Equal(t, seed, again)

	require.NoError(t, backend.Store(ctx, SeedName, []byte("short")))
	_, err = LoadSeed(ctx, backend, false, log)
	require.Error(t, err)
}
