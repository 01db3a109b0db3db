package recovery_test

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/ruteri/embedded-wallet-custody/cryptoutils"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"github.com/ruteri/embedded-wallet-custody/recovery"
	"github.com/ruteri/embedded-wallet-custody/testutil"
	"github.com/ruteri/embedded-wallet-custody/testutil/custodytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backup struct {
	key       ed25519.PrivateKey
	publicKey string
	authShare string
	shareHash string
	signature string
}

func registerBackup(t *testing.T, env *custodytest.Env, s *interfaces.Session, walletID string) *backup {
	t.Helper()
	key, pub := testutil.NewEd25519Key(t)
	shares := testutil.SplitSecret(t)
	b := &backup{key: key, publicKey: pub, authShare: shares[1], shareHash: cryptoutils.ShareHash(shares[2])}

	res, err := env.Recovery.RegisterRecoveryShare(context.Background(), s, walletID, &recovery.RegisterRecoveryShareRequest{
		RecoveryAuthShare:            b.authShare,
		RecoveryBackupShareHash:      b.shareHash,
		RecoveryBackupSharePublicKey: b.publicKey,
	})
	require.NoError(t, err)
	b.signature = res.RecoveryFileServerSignature
	return b
}

func TestRecoverWalletWithWalletKey(t *testing.T) {
	ctx := context.Background()
	env := custodytest.New(t)
	session := env.NewSession(t, "user-1", "device-1")
	wallet := env.CreateWallet(t, session, custodytest.NewDevice(t))

	newSession := env.NewSession(t, "user-1", "device-2")
	newDevice := custodytest.NewDevice(t)

	c, err := env.Recovery.GenerateWalletRecoveryChallenge(ctx, newSession, wallet.ID, "")
	require.NoError(t, err)
	assert.Equal(t, interfaces.PurposeShareRecovery, c.Purpose)
	assert.Equal(t, wallet.PublicKey, c.PublicKey)

	solution := env.Solve(t, wallet.Key, c, newSession, "")
	res, err := env.Recovery.RecoverWallet(ctx, newSession, wallet.ID, &recovery.RecoverWalletRequest{ChallengeSolution: solution})
	require.NoError(t, err)
	assert.Empty(t, res.RecoveryAuthShare)
	require.NotNil(t, res.RotationChallenge)
	assert.Equal(t, 1, res.Wallet.RecoveryCount)

	_, err = env.Recovery.RecoverWallet(ctx, newSession, wallet.ID, &recovery.RecoverWalletRequest{ChallengeSolution: solution})
	require.ErrorIs(t, err, interfaces.ErrChallengeNotFound)

	_, err = env.Activation.RotateAuthShare(ctx, newSession, wallet.ID,
		newDevice.Update(env.Solve(t, wallet.Key, res.RotationChallenge, newSession, "")))
	require.NoError(t, err)

	act, err := env.Activate(t, newSession, newDevice, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, newDevice.AuthShare, act.AuthShare)

	rows, err := env.Store.ListWalletRecoveries(ctx, wallet.ID)
	require.NoError(t, err)
	statuses := map[interfaces.AuditStatus]int{}
	for _, r := range rows {
		statuses[r.Status]++
	}
	assert.Equal(t, 1, statuses[interfaces.AuditStatusSuccessful])
	assert.Equal(t, 1, statuses[interfaces.AuditStatusFailed])
}

func TestRecoverWalletWithRecoveryFile(t *testing.T) {
	ctx := context.Background()
	env := custodytest.New(t)
	session := env.NewSession(t, "user-1", "device-1")
	wallet := env.CreateWallet(t, session, custodytest.NewDevice(t))
	b := registerBackup(t, env, session, wallet.ID)

	got, err := env.Wallets.GetWallet(ctx, "user-1", wallet.ID)
	require.NoError(t, err)
	assert.True(t, got.CanBeRecovered)
	assert.Equal(t, 1, got.BackupCount)
	require.NoError(t, env.KMS.VerifyRecoveryFile(wallet.ID, b.shareHash, b.signature))

	newSession := env.NewSession(t, "user-1", "device-2")

	t.Run("FileCheckOnly", func(t *testing.T) {
		res, err := env.Recovery.RecoverWallet(ctx, newSession, wallet.ID, &recovery.RecoverWalletRequest{
			RecoveryBackupShareHash:     b.shareHash,
			RecoveryFileServerSignature: b.signature,
		})
		require.NoError(t, err)
		assert.Equal(t, env.KMS.PublicKeyPEM(), res.RecoveryBackupServerPublicKey)
		assert.Nil(t, res.Wallet)
		assert.Empty(t, res.RecoveryAuthShare)
	})

	t.Run("ForgedFile", func(t *testing.T) {
		forged, err := env.KMS.SignRecoveryFile("other-wallet", b.shareHash)
		require.NoError(t, err)
		_, err = env.Recovery.RecoverWallet(ctx, newSession, wallet.ID, &recovery.RecoverWalletRequest{
			RecoveryBackupShareHash:     b.shareHash,
			RecoveryFileServerSignature: forged,
		})
		require.ErrorIs(t, err, interfaces.ErrInvalidRecoveryFile)
		require.ErrorIs(t, err, interfaces.ErrForbidden)
	})

	t.Run("UnknownBackupHash", func(t *testing.T) {
		_, err := env.Recovery.GenerateWalletRecoveryChallenge(ctx, newSession, wallet.ID, cryptoutils.ShareHash("unknown"))
		require.ErrorIs(t, err, interfaces.ErrRecoveryShareNotFound)
	})

	c, err := env.Recovery.GenerateWalletRecoveryChallenge(ctx, newSession, wallet.ID, b.shareHash)
	require.NoError(t, err)
	assert.Equal(t, b.publicKey, c.PublicKey)

	t.Run("WalletKeyDoesNotSolveFileChallenge", func(t *testing.T) {
		_, err := env.Recovery.RecoverWallet(ctx, newSession, wallet.ID, &recovery.RecoverWalletRequest{
			ChallengeSolution:           env.Solve(t, wallet.Key, c, newSession, ""),
			RecoveryBackupShareHash:     b.shareHash,
			RecoveryFileServerSignature: b.signature,
		})
		require.ErrorIs(t, err, interfaces.ErrChallengeFailed)
	})

	c, err = env.Recovery.GenerateWalletRecoveryChallenge(ctx, newSession, wallet.ID, b.shareHash)
	require.NoError(t, err)
	res, err := env.Recovery.RecoverWallet(ctx, newSession, wallet.ID, &recovery.RecoverWalletRequest{
		ChallengeSolution:           env.Solve(t, b.key, c, newSession, ""),
		RecoveryBackupShareHash:     b.shareHash,
		RecoveryFileServerSignature: b.signature,
	})
	require.NoError(t, err)
	assert.Equal(t, b.authShare, res.RecoveryAuthShare)
	require.NotNil(t, res.RotationChallenge)
	assert.Equal(t, b.publicKey, res.RotationChallenge.PublicKey)

	newDevice := custodytest.NewDevice(t)
	_, err = env.Activation.RotateAuthShare(ctx, newSession, wallet.ID,
		newDevice.Update(env.Solve(t, b.key, res.RotationChallenge, newSession, "")))
	require.NoError(t, err)

	_, err = env.Activate(t, newSession, newDevice, wallet.ID)
	require.NoError(t, err)
}

func TestRegisterRecoveryShareRequiresActiveShare(t *testing.T) {
	ctx := context.Background()
	env := custodytest.New(t)
	session := env.NewSession(t, "user-1", "device-1")
	wallet := env.CreateWallet(t, session, custodytest.NewDevice(t))

	_, pub := testutil.NewEd25519Key(t)
	shares := testutil.SplitSecret(t)
	req := &recovery.RegisterRecoveryShareRequest{
		RecoveryAuthShare:            shares[0],
		RecoveryBackupShareHash:      cryptoutils.ShareHash(shares[1]),
		RecoveryBackupSharePublicKey: pub,
	}

	_, err := env.Recovery.RegisterRecoveryShare(ctx, env.NewSession(t, "user-1", "device-2"), wallet.ID, req)
	require.ErrorIs(t, err, interfaces.ErrWorkShareNotFound)

	bad := *req
	bad.RecoveryBackupSharePublicKey = "not-a-key"
	_, err = env.Recovery.RegisterRecoveryShare(ctx, session, wallet.ID, &bad)
	require.ErrorIs(t, err, interfaces.ErrInvalidPublicKey)

	bad = *req
	bad.RecoveryBackupShareHash = "xyz"
	_, err = env.Recovery.RegisterRecoveryShare(ctx, session, wallet.ID, &bad)
	require.ErrorIs(t, err, interfaces.ErrInvalidShare)

	env.Clock.Add(env.Config.ShareInactiveTTL)
	_, err = env.Recovery.RegisterRecoveryShare(ctx, session, wallet.ID, req)
	require.ErrorIs(t, err, interfaces.ErrWorkShareInvalidated)

	rows, err := env.Store.ListWalletRecoveries(ctx, wallet.ID)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for _, r := range rows {
		assert.Equal(t, interfaces.AuditStatusFailed, r.Status)
		assert.NotEmpty(t, r.DeviceAndLocationID)
	}

	got, err := env.Wallets.GetWallet(ctx, "user-1", wallet.ID)
	require.NoError(t, err)
	assert.False(t, got.CanBeRecovered)
	assert.Zero(t, got.BackupCount)
}

func TestRecoverWalletRereadsWalletInTransaction(t *testing.T) {
	ctx := context.Background()
	env := custodytest.New(t)
	session := env.NewSession(t, "user-1", "device-1")
	wallet := env.CreateWallet(t, session, custodytest.NewDevice(t))

	newSession := env.NewSession(t, "user-1", "device-2")
	c, err := env.Recovery.GenerateWalletRecoveryChallenge(ctx, newSession, wallet.ID, "")
	require.NoError(t, err)
	solution := env.Solve(t, wallet.Key, c, newSession, "")

	store := custodytest.NewInterleavedStore(env.Store, 1, func() {
		_, err := env.Wallets.UpdateWalletStatus(ctx, "user-1", wallet.ID, interfaces.WalletStatusLost)
		assert.NoError(t, err)
	})
	svc := recovery.NewService(store, env.Protocol, env.KMS, env.Audit, env.Cleanup, env.Config, env.Clock, testutil.Logger())

	_, err = svc.RecoverWallet(ctx, newSession, wallet.ID, &recovery.RecoverWalletRequest{ChallengeSolution: solution})
	require.ErrorIs(t, err, interfaces.ErrWalletNotEnabled)

	got, err := env.Wallets.GetWallet(ctx, "user-1", wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.WalletStatusLost, got.Status)
	assert.Zero(t, got.RecoveryCount)

	_, err = env.Store.ConsumeChallenge(ctx, "user-1", interfaces.PurposeShareRotation)
	require.ErrorIs(t, err, interfaces.ErrChallengeNotFound)
}

func TestRecoverableAccountDiscovery(t *testing.T) {
	ctx := context.Background()
	env := custodytest.New(t)
	session := env.NewSession(t, "user-1", "device-1")
	wallet := env.CreateWallet(t, session, custodytest.NewDevice(t))

	require.NoError(t, env.Store.SaveProfile(ctx, &interfaces.UserProfile{
		UserID:      "user-1",
		Name:        "Alice",
		NamePublic:  true,
		Email:       "alice@example.com",
		EmailPublic: false,
		CreatedAt:   testutil.Now,
	}))

	c, err := env.Recovery.GenerateFetchRecoverableAccountsChallenge(ctx, interfaces.ChainSolana, wallet.Address)
	require.NoError(t, err)
	assert.Equal(t, wallet.PublicKey, c.PublicKey)

	solution := env.SolveAnon(t, wallet.Key, c)
	accounts, err := env.Recovery.FetchRecoverableAccounts(ctx, c.ID, solution)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, recovery.RecoverableAccount{UserID: "user-1", Name: "Alice"}, accounts[0])

	_, err = env.Recovery.FetchRecoverableAccounts(ctx, c.ID, solution)
	require.ErrorIs(t, err, interfaces.ErrChallengeNotFound)

	c, err = env.Recovery.GenerateFetchRecoverableAccountsChallenge(ctx, interfaces.ChainSolana, wallet.Address)
	require.NoError(t, err)
	list, err := env.Recovery.FetchRecoverableAccountWallets(ctx, "user-1", c.ID, env.SolveAnon(t, wallet.Key, c))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, wallet.ID, list[0].ID)

	t.Run("WrongKey", func(t *testing.T) {
		c, err := env.Recovery.GenerateFetchRecoverableAccountsChallenge(ctx, interfaces.ChainSolana, wallet.Address)
		require.NoError(t, err)
		other, _ := testutil.NewEd25519Key(t)
		_, err = env.Recovery.FetchRecoverableAccounts(ctx, c.ID, env.SolveAnon(t, other, c))
		require.ErrorIs(t, err, interfaces.ErrChallengeFailed)
	})

	t.Run("AccountNotOnAddress", func(t *testing.T) {
		c, err := env.Recovery.GenerateFetchRecoverableAccountsChallenge(ctx, interfaces.ChainSolana, wallet.Address)
		require.NoError(t, err)
		_, err = env.Recovery.FetchRecoverableAccountWallets(ctx, "user-2", c.ID, env.SolveAnon(t, wallet.Key, c))
		require.ErrorIs(t, err, interfaces.ErrRecoverableAccountsNotFound)
	})

	t.Run("UnknownAddress", func(t *testing.T) {
		_, address := testutil.NewEd25519Key(t)
		_, err := env.Recovery.GenerateFetchRecoverableAccountsChallenge(ctx, interfaces.ChainSolana, address)
		require.ErrorIs(t, err, interfaces.ErrRecoverableAccountsNotFound)
	})

	t.Run("MalformedAddress", func(t *testing.T) {
		_, err := env.Recovery.GenerateFetchRecoverableAccountsChallenge(ctx, interfaces.ChainArweave, "short")
		require.ErrorIs(t, err, interfaces.ErrInvalidAddress)
	})

	t.Run("DisabledWalletIsNotEligible", func(t *testing.T) {
		_, err := env.Wallets.UpdateWalletStatus(ctx, "user-1", wallet.ID, interfaces.WalletStatusDisabled)
		require.NoError(t, err)
		_, err = env.Recovery.GenerateFetchRecoverableAccountsChallenge(ctx, interfaces.ChainSolana, wallet.Address)
		require.ErrorIs(t, err, interfaces.ErrRecoverableAccountsNotFound)
	})
}

func TestRecoverAccount(t *testing.T) {
	ctx := context.Background()
	env := custodytest.New(t)

	oldSession := env.NewSession(t, "user-1", "device-1")
	oldDevice := custodytest.NewDevice(t)
	proof := env.CreateWallet(t, oldSession, oldDevice)
	registerBackup(t, env, oldSession, proof.ID)
	unrecoverable := env.CreateWallet(t, oldSession, oldDevice)

	secondSession := env.NewSession(t, "user-1", "device-2")
	secondDevice := custodytest.NewDevice(t)
	rc, err := env.Recovery.GenerateWalletRecoveryChallenge(ctx, secondSession, proof.ID, "")
	require.NoError(t, err)
	rec, err := env.Recovery.RecoverWallet(ctx, secondSession, proof.ID, &recovery.RecoverWalletRequest{
		ChallengeSolution: env.Solve(t, proof.Key, rc, secondSession, ""),
	})
	require.NoError(t, err)
	_, err = env.Activation.RotateAuthShare(ctx, secondSession, proof.ID,
		secondDevice.Update(env.Solve(t, proof.Key, rec.RotationChallenge, secondSession, "")))
	require.NoError(t, err)

	require.NoError(t, env.Store.SaveProfile(ctx, &interfaces.UserProfile{UserID: "user-1", Name: "Alice", NamePublic: true, CreatedAt: testutil.Now}))
	require.NoError(t, env.Store.SaveProfile(ctx, &interfaces.UserProfile{UserID: "user-9", Email: "alice@example.com", CreatedAt: testutil.Now}))
	newSession := env.NewSession(t, "user-9", "device-9")

	t.Run("ChallengeForAnotherAccount", func(t *testing.T) {
		c, err := env.Recovery.GenerateAccountRecoveryChallenge(ctx, interfaces.ChainSolana, proof.Address, "user-1")
		require.NoError(t, err)
		_, err = env.Recovery.RecoverAccount(ctx, newSession, "user-2", c.ID, env.SolveAnon(t, proof.Key, c))
		require.ErrorIs(t, err, interfaces.ErrChallengeNotFound)
	})

	t.Run("NotTheOwner", func(t *testing.T) {
		_, err := env.Recovery.GenerateAccountRecoveryChallenge(ctx, interfaces.ChainSolana, proof.Address, "user-2")
		require.ErrorIs(t, err, interfaces.ErrRecoverableAccountsNotFound)
	})

	c, err := env.Recovery.GenerateAccountRecoveryChallenge(ctx, interfaces.ChainSolana, proof.Address, "user-1")
	require.NoError(t, err)
	assert.Equal(t, interfaces.PurposeAccountRecovery, c.Purpose)

	profile, err := env.Recovery.RecoverAccount(ctx, newSession, "user-1", c.ID, env.SolveAnon(t, proof.Key, c))
	require.NoError(t, err)
	env.Cleanup.Wait()

	assert.Equal(t, "user-1", profile.UserID)
	assert.Equal(t, "Alice", profile.Name)
	assert.Equal(t, "alice@example.com", profile.Email)
	require.NotNil(t, profile.RecoveredAt)

	_, err = env.Store.GetProfile(ctx, "user-9")
	require.ErrorIs(t, err, interfaces.ErrProfileNotFound)

	stored, err := env.Store.GetSession(ctx, newSession.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.UserID)
	assert.Equal(t, "user-9", stored.AuthUserID)

	// Every device of the old account must activate again.
	_, err = env.Activate(t, oldSession, oldDevice, proof.ID)
	require.ErrorIs(t, err, interfaces.ErrWorkShareNotFound)
	_, err = env.Activate(t, secondSession, secondDevice, proof.ID)
	require.ErrorIs(t, err, interfaces.ErrWorkShareNotFound)

	w, err := env.Wallets.GetWallet(ctx, "user-1", proof.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.WalletStatusEnabled, w.Status)

	w, err = env.Wallets.GetWallet(ctx, "user-1", unrecoverable.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.WalletStatusLost, w.Status)

	t.Run("RecoveredSessionCanRecoverWallet", func(t *testing.T) {
		c, err := env.Recovery.GenerateWalletRecoveryChallenge(ctx, newSession, proof.ID, "")
		require.NoError(t, err)
		_, err = env.Recovery.RecoverWallet(ctx, newSession, proof.ID, &recovery.RecoverWalletRequest{
			ChallengeSolution: env.Solve(t, proof.Key, c, newSession, ""),
		})
		require.NoError(t, err)
	})
}

func TestRecoverAccountRejectsAccountWithWallets(t *testing.T) {
	ctx := context.Background()
	env := custodytest.New(t)

	oldSession := env.NewSession(t, "user-1", "device-1")
	proof := env.CreateWallet(t, oldSession, custodytest.NewDevice(t))

	newSession := env.NewSession(t, "user-9", "device-9")
	env.CreateWallet(t, newSession, custodytest.NewDevice(t))

	c, err := env.Recovery.GenerateAccountRecoveryChallenge(ctx, interfaces.ChainSolana, proof.Address, "user-1")
	require.NoError(t, err)
	_, err = env.Recovery.RecoverAccount(ctx, newSession, "user-1", c.ID, env.SolveAnon(t, proof.Key, c))
	require.ErrorIs(t, err, interfaces.ErrBadRequest)

	_, err = env.Recovery.RecoverAccount(ctx, newSession, "user-9", c.ID, "v2.AAAA")
	require.ErrorIs(t, err, interfaces.ErrBadRequest)
}
