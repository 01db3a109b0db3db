package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 14, 9, 26, 53, 589000000, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenInMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newChallenge(userID string, purpose interfaces.ChallengePurpose) *interfaces.Challenge {
	return &interfaces.Challenge{
		ID:        uuid.NewString(),
		Type:      interfaces.ChallengeTypeSignature,
		Purpose:   purpose,
		Value:     []byte("challenge-value"),
		Version:   "v2",
		CreatedAt: testNow,
		UserID:    userID,
		WalletID:  "wallet-1",
		PublicKey: "pk",
	}
}

func TestOpenFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	store, err := OpenFileStore(dir, "custody.db")
	require.NoError(t, err)
	defer store.Close()

	require.FileExists(t, filepath.Join(dir, "custody.db"))
}

func TestChallenges(t *testing.T) {
	ctx := context.Background()

	t.Run("UpsertReplacesLiveChallenge", func(t *testing.T) {
		store := newTestStore(t)
		first := newChallenge("user-1", interfaces.PurposeActivation)
		second := newChallenge("user-1", interfaces.PurposeActivation)
		second.Value = []byte("other")

		require.NoError(t, store.UpsertChallenge(ctx, first))
		require.NoError(t, store.UpsertChallenge(ctx, second))

		got, err := store.ConsumeChallenge(ctx, "user-1", interfaces.PurposeActivation)
		require.NoError(t, err)
		assert.Equal(t, second.ID, got.ID)
		assert.Equal(t, []byte("other"), got.Value)
		assert.True(t, testNow.Equal(got.CreatedAt))
		assert.Equal(t, time.UTC, got.CreatedAt.Location())
	})

	t.Run("ConsumeIsSingleUse", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.UpsertChallenge(ctx, newChallenge("user-1", interfaces.PurposeActivation)))

		_, err := store.ConsumeChallenge(ctx, "user-1", interfaces.PurposeActivation)
		require.NoError(t, err)

		_, err = store.ConsumeChallenge(ctx, "user-1", interfaces.PurposeActivation)
		require.ErrorIs(t, err, interfaces.ErrChallengeNotFound)
		require.ErrorIs(t, err, interfaces.ErrNotFound)
	})

	t.Run("PurposesAreIndependent", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.UpsertChallenge(ctx, newChallenge("user-1", interfaces.PurposeActivation)))
		require.NoError(t, store.UpsertChallenge(ctx, newChallenge("user-1", interfaces.PurposeShareRotation)))

		require.NoError(t, store.DeleteChallenge(ctx, "user-1", interfaces.PurposeShareRotation))

		_, err := store.ConsumeChallenge(ctx, "user-1", interfaces.PurposeActivation)
		require.NoError(t, err)
		_, err = store.ConsumeChallenge(ctx, "user-1", interfaces.PurposeShareRotation)
		require.ErrorIs(t, err, interfaces.ErrChallengeNotFound)
	})

	t.Run("DeleteByWallet", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.UpsertChallenge(ctx, newChallenge("user-1", interfaces.PurposeActivation)))
		require.NoError(t, store.UpsertChallenge(ctx, newChallenge("user-2", interfaces.PurposeActivation)))
		other := newChallenge("user-3", interfaces.PurposeActivation)
		other.WalletID = "wallet-2"
		require.NoError(t, store.UpsertChallenge(ctx, other))

		n, err := store.DeleteChallengesByWallet(ctx, "wallet-1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		_, err = store.ConsumeChallenge(ctx, "user-3", interfaces.PurposeActivation)
		require.NoError(t, err)
	})

	t.Run("AnonUpsertAndConsume", func(t *testing.T) {
		store := newTestStore(t)
		anon := func() *interfaces.AnonChallenge {
			return &interfaces.AnonChallenge{
				ID:        uuid.NewString(),
				Type:      interfaces.ChallengeTypeSignature,
				Purpose:   interfaces.PurposeAccountRecovery,
				Value:     []byte("v"),
				Version:   "v2",
				Chain:     interfaces.ChainSolana,
				Address:   "addr",
				CreatedAt: testNow,
				PublicKey: "pk",
				UserID:    "old-user",
			}
		}
		first, second := anon(), anon()
		require.NoError(t, store.UpsertAnonChallenge(ctx, first))
		require.NoError(t, store.UpsertAnonChallenge(ctx, second))

		_, err := store.ConsumeAnonChallenge(ctx, first.ID)
		require.ErrorIs(t, err, interfaces.ErrChallengeNotFound)

		got, err := store.ConsumeAnonChallenge(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, "old-user", got.UserID)
		assert.Equal(t, interfaces.ChainSolana, got.Chain)

		_, err = store.ConsumeAnonChallenge(ctx, second.ID)
		require.ErrorIs(t, err, interfaces.ErrChallengeNotFound)
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		store := newTestStore(t)
		old := newChallenge("user-1", interfaces.PurposeActivation)
		old.CreatedAt = testNow.Add(-time.Hour)
		require.NoError(t, store.UpsertChallenge(ctx, old))
		require.NoError(t, store.UpsertChallenge(ctx, newChallenge("user-2", interfaces.PurposeActivation)))

		n, err := store.DeleteExpiredChallenges(ctx, testNow.Add(-5*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = store.ConsumeChallenge(ctx, "user-2", interfaces.PurposeActivation)
		require.NoError(t, err)
	})
}

func TestWorkKeyShares(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	share := &interfaces.WorkKeyShare{
		ID:                   uuid.NewString(),
		UserID:               "user-1",
		WalletID:             "wallet-1",
		DeviceNonce:          "device-1",
		AuthShare:            "YXV0aA==",
		DeviceShareHash:      "hash",
		DeviceSharePublicKey: "pk",
		SharesRotatedAt:      testNow,
		CreatedAt:            testNow,
		UpdatedAt:            testNow,
	}
	require.NoError(t, store.CreateWorkKeyShare(ctx, share))

	dup := *share
	dup.ID = uuid.NewString()
	err := store.CreateWorkKeyShare(ctx, &dup)
	require.ErrorIs(t, err, interfaces.ErrWorkShareExists)
	require.ErrorIs(t, err, interfaces.ErrBadRequest)

	got, err := store.GetWorkKeyShare(ctx, "user-1", "wallet-1", "device-1")
	require.NoError(t, err)
	assert.Equal(t, share.ID, got.ID)
	assert.Equal(t, 0, got.RotationWarnings)

	got.RotationWarnings = 2
	require.NoError(t, store.SaveWorkKeyShare(ctx, got))
	got, err = store.GetWorkKeyShare(ctx, "user-1", "wallet-1", "device-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.RotationWarnings)

	_, err = store.GetWorkKeyShare(ctx, "user-1", "wallet-1", "device-2")
	require.ErrorIs(t, err, interfaces.ErrWorkShareNotFound)

	n, err := store.DeleteWorkKeySharesByWallet(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRecoveryKeyShares(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	older := &interfaces.RecoveryKeyShare{
		ID:                           uuid.NewString(),
		UserID:                       "user-1",
		WalletID:                     "wallet-1",
		RecoveryAuthShare:            "old",
		RecoveryBackupShareHash:      "hash",
		RecoveryBackupSharePublicKey: "pk",
		CreatedAt:                    testNow.Add(-time.Hour),
	}
	newer := *older
	newer.ID = uuid.NewString()
	newer.RecoveryAuthShare = "new"
	newer.CreatedAt = testNow
	require.NoError(t, store.CreateRecoveryKeyShare(ctx, older))
	require.NoError(t, store.CreateRecoveryKeyShare(ctx, &newer))

	got, err := store.GetRecoveryKeyShare(ctx, "wallet-1", "hash")
	require.NoError(t, err)
	assert.Equal(t, "new", got.RecoveryAuthShare)

	_, err = store.GetRecoveryKeyShare(ctx, "wallet-1", "other")
	require.ErrorIs(t, err, interfaces.ErrRecoveryShareNotFound)
}

func TestWallets(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	wallet := &interfaces.Wallet{
		ID:        uuid.NewString(),
		UserID:    "user-1",
		Chain:     interfaces.ChainSolana,
		Address:   "addr",
		PublicKey: "pk",
		Status:    interfaces.WalletStatusEnabled,
		Privacy:   interfaces.WalletPrivacyPublic,
		Source:    interfaces.WalletSourceGenerated,
		CreatedAt: testNow,
	}
	require.NoError(t, store.CreateWallet(ctx, wallet))

	dup := *wallet
	dup.ID = uuid.NewString()
	require.ErrorIs(t, store.CreateWallet(ctx, &dup), interfaces.ErrBadRequest)

	// The same address may be owned by another user.
	other := *wallet
	other.ID = uuid.NewString()
	other.UserID = "user-2"
	other.CreatedAt = testNow.Add(time.Second)
	require.NoError(t, store.CreateWallet(ctx, &other))

	found, err := store.FindWalletsByAddress(ctx, interfaces.ChainSolana, "addr")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, wallet.ID, found[0].ID)

	activatedAt := testNow.Add(time.Minute)
	wallet.ActivationCount = 1
	wallet.LastActivatedAt = &activatedAt
	require.NoError(t, store.SaveWallet(ctx, wallet))

	got, err := store.GetWallet(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ActivationCount)
	require.NotNil(t, got.LastActivatedAt)
	assert.True(t, activatedAt.Equal(*got.LastActivatedAt))

	list, err := store.ListWallets(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, store.DeleteWallet(ctx, wallet.ID))
	require.ErrorIs(t, store.DeleteWallet(ctx, wallet.ID), interfaces.ErrWalletNotFound)
	_, err = store.GetWallet(ctx, wallet.ID)
	require.ErrorIs(t, err, interfaces.ErrWalletNotFound)
}

func TestProfilesAndSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetProfile(ctx, "user-1")
	require.ErrorIs(t, err, interfaces.ErrProfileNotFound)

	require.NoError(t, store.SaveProfile(ctx, &interfaces.UserProfile{UserID: "user-1", Name: "Alice", CreatedAt: testNow}))
	require.NoError(t, store.SaveProfile(ctx, &interfaces.UserProfile{UserID: "user-1", Name: "Alicia", CreatedAt: testNow}))
	require.NoError(t, store.SaveProfile(ctx, &interfaces.UserProfile{UserID: "user-2", Name: "Bob", CreatedAt: testNow}))

	profiles, err := store.GetProfiles(ctx, []string{"user-1", "user-2", "user-3"})
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "Alicia", profiles[0].Name)

	require.NoError(t, store.DeleteProfile(ctx, "user-2"))
	_, err = store.GetProfile(ctx, "user-2")
	require.ErrorIs(t, err, interfaces.ErrProfileNotFound)

	session := &interfaces.Session{ID: "session-1", UserID: "user-1", AuthUserID: "user-1", CreatedAt: testNow}
	require.NoError(t, store.CreateSession(ctx, session))
	session.IP = "10.0.0.1"
	require.NoError(t, store.SaveSession(ctx, session))

	got, err := store.GetSession(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", got.IP)

	_, err = store.GetSession(ctx, "missing")
	require.ErrorIs(t, err, interfaces.ErrSessionNotFound)
}

func TestDeleteOrphanDeviceAndLocations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, id := range []string{"referenced", "orphan", "fresh", "other-user"} {
		userID := "user-1"
		if id == "other-user" {
			userID = "user-2"
		}
		createdAt := testNow.Add(-48 * time.Hour)
		if id == "fresh" {
			createdAt = testNow
		}
		require.NoError(t, store.CreateDeviceAndLocation(ctx, &interfaces.DeviceAndLocation{
			ID:        id,
			UserID:    userID,
			CreatedAt: createdAt,
		}))
	}
	require.NoError(t, store.CreateWalletActivation(ctx, &interfaces.WalletActivation{
		ID:                  uuid.NewString(),
		Status:              interfaces.AuditStatusSuccessful,
		UserID:              "user-1",
		WalletID:            "wallet-1",
		DeviceAndLocationID: "referenced",
		CreatedAt:           testNow,
	}))

	n, err := store.DeleteOrphanDeviceAndLocations(ctx, "user-1", testNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.DeleteOrphanDeviceAndLocations(ctx, "", testNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	activations, err := store.ListWalletActivations(ctx, "wallet-1")
	require.NoError(t, err)
	require.Len(t, activations, 1)
	assert.Equal(t, "referenced", activations[0].DeviceAndLocationID)
}

func TestUnitOfWork(t *testing.T) {
	ctx := context.Background()

	t.Run("RollbackDiscardsWrites", func(t *testing.T) {
		store := newTestStore(t)
		uow, err := store.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, uow.UpsertChallenge(ctx, newChallenge("user-1", interfaces.PurposeActivation)))
		require.NoError(t, uow.Rollback())

		_, err = store.ConsumeChallenge(ctx, "user-1", interfaces.PurposeActivation)
		require.ErrorIs(t, err, interfaces.ErrChallengeNotFound)
	})

	t.Run("CommitPersistsWrites", func(t *testing.T) {
		store := newTestStore(t)
		uow, err := store.Begin(ctx)
		require.NoError(t, err)
		defer uow.Rollback()

		require.NoError(t, uow.UpsertChallenge(ctx, newChallenge("user-1", interfaces.PurposeActivation)))
		_, err = uow.ConsumeChallenge(ctx, "user-1", interfaces.PurposeActivation)
		require.NoError(t, err)
		require.NoError(t, uow.UpsertChallenge(ctx, newChallenge("user-1", interfaces.PurposeShareRotation)))
		require.NoError(t, uow.Commit())

		// Rollback after commit is a no-op.
		require.NoError(t, uow.Rollback())
		require.Error(t, uow.Commit())

		_, err = store.ConsumeChallenge(ctx, "user-1", interfaces.PurposeShareRotation)
		require.NoError(t, err)
	})
}
