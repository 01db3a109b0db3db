package activation_test

import (
	"context"
	"testing"
	"time"

	"github.com/ruteri/embedded-wallet-custody/activation"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"github.com/ruteri/embedded-wallet-custody/testutil"
	"github.com/ruteri/embedded-wallet-custody/testutil/custodytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndActivate(t *testing.T) {
	ctx := context.Background()
	env := custodytest.New(t)
	session := env.NewSession(t, "user-1", "device-1")
	device := custodytest.NewDevice(t)

	wallet := env.CreateWallet(t, session, device)
	assert.Equal(t, interfaces.WalletStatusEnabled, wallet.Status)
	assert.Equal(t, 1, wallet.ActivationCount)

	share, err := env.Store.GetWorkKeyShare(ctx, "user-1", wallet.ID, "device-1")
	require.NoError(t, err)
	assert.Zero(t, share.RotationWarnings)
	assert.Equal(t, device.AuthShare, share.AuthShare)
	assert.True(t, testutil.Now.Equal(share.SharesRotatedAt))

	c, err := env.Activation.GenerateWalletActivationChallenge(ctx, session, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.PurposeActivation, c.Purpose)
	assert.Equal(t, device.PublicKey, c.PublicKey)

	solution := env.Solve(t, device.Key, c, session, device.ShareHash)
	res, err := env.Activation.ActivateWallet(ctx, session, wallet.ID, solution)
	require.NoError(t, err)
	assert.Equal(t, device.AuthShare, res.AuthShare)
	assert.Nil(t, res.RotationChallenge)

	t.Run("ReplayIsRejected", func(t *testing.T) {
		_, err := env.Activation.ActivateWallet(ctx, session, wallet.ID, solution)
		require.ErrorIs(t, err, interfaces.ErrChallengeNotFound)
	})

	t.Run("AuditTrail", func(t *testing.T) {
		rows, err := env.Store.ListWalletActivations(ctx, wallet.ID)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		statuses := map[interfaces.AuditStatus]int{}
		for _, r := range rows {
			statuses[r.Status]++
			assert.Equal(t, share.ID, r.WorkKeyShareID)
			assert.NotEmpty(t, r.DeviceAndLocationID)
		}
		assert.Equal(t, 2, statuses[interfaces.AuditStatusSuccessful])
		assert.Equal(t, 1, statuses[interfaces.AuditStatusFailed])
	})

	t.Run("DuplicateRegistrationIsRejected", func(t *testing.T) {
		env.Clock.Add(env.Config.ShareActiveTTL)
		res, err := env.Activate(t, session, device, wallet.ID)
		require.NoError(t, err)
		require.NotNil(t, res.RotationChallenge)

		other := custodytest.NewDevice(t)
		_, err = env.Activation.RegisterAuthShare(ctx, session, wallet.ID,
			other.Update(env.Solve(t, wallet.Key, res.RotationChallenge, session, "")))
		require.ErrorIs(t, err, interfaces.ErrWorkShareExists)
		require.ErrorIs(t, err, interfaces.ErrBadRequest)
	})
}

func TestActivationFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("WrongDeviceKey", func(t *testing.T) {
		env := custodytest.New(t)
		session := env.NewSession(t, "user-1", "device-1")
		device := custodytest.NewDevice(t)
		wallet := env.CreateWallet(t, session, device)

		c, err := env.Activation.GenerateWalletActivationChallenge(ctx, session, wallet.ID)
		require.NoError(t, err)

		impostor := custodytest.NewDevice(t)
		_, err = env.Activation.ActivateWallet(ctx, session, wallet.ID, env.Solve(t, impostor.Key, c, session, device.ShareHash))
		require.ErrorIs(t, err, interfaces.ErrChallengeFailed)
		require.ErrorIs(t, err, interfaces.ErrForbidden)
	})

	t.Run("WrongShareHash", func(t *testing.T) {
		env := custodytest.New(t)
		session := env.NewSession(t, "user-1", "device-1")
		device := custodytest.NewDevice(t)
		wallet := env.CreateWallet(t, session, device)

		c, err := env.Activation.GenerateWalletActivationChallenge(ctx, session, wallet.ID)
		require.NoError(t, err)

		other := custodytest.NewDevice(t)
		_, err = env.Activation.ActivateWallet(ctx, session, wallet.ID, env.Solve(t, device.Key, c, session, other.ShareHash))
		require.ErrorIs(t, err, interfaces.ErrChallengeFailed)
	})

	t.Run("ExpiredChallenge", func(t *testing.T) {
		env := custodytest.New(t)
		session := env.NewSession(t, "user-1", "device-1")
		device := custodytest.NewDevice(t)
		wallet := env.CreateWallet(t, session, device)

		c, err := env.Activation.GenerateWalletActivationChallenge(ctx, session, wallet.ID)
		require.NoError(t, err)
		env.Clock.Add(env.Config.ChallengeTTL)

		_, err = env.Activation.ActivateWallet(ctx, session, wallet.ID, env.Solve(t, device.Key, c, session, device.ShareHash))
		require.ErrorIs(t, err, interfaces.ErrChallengeFailed)
	})

	t.Run("UnknownDevice", func(t *testing.T) {
		env := custodytest.New(t)
		session := env.NewSession(t, "user-1", "device-1")
		wallet := env.CreateWallet(t, session, custodytest.NewDevice(t))

		other := env.NewSession(t, "user-1", "device-2")
		_, err := env.Activation.GenerateWalletActivationChallenge(ctx, other, wallet.ID)
		require.ErrorIs(t, err, interfaces.ErrWorkShareNotFound)

		rows, err := env.Store.ListWalletActivations(ctx, wallet.ID)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		failed := 0
		for _, r := range rows {
			if r.Status == interfaces.AuditStatusFailed {
				failed++
				assert.Empty(t, r.WorkKeyShareID)
			}
		}
		assert.Equal(t, 1, failed)
	})

	t.Run("OtherUsersWallet", func(t *testing.T) {
		env := custodytest.New(t)
		session := env.NewSession(t, "user-1", "device-1")
		wallet := env.CreateWallet(t, session, custodytest.NewDevice(t))

		stranger := env.NewSession(t, "user-2", "device-1")
		_, err := env.Activation.GenerateWalletActivationChallenge(ctx, stranger, wallet.ID)
		require.ErrorIs(t, err, interfaces.ErrWalletNotFound)
	})

	t.Run("DisabledWallet", func(t *testing.T) {
		env := custodytest.New(t)
		session := env.NewSession(t, "user-1", "device-1")
		device := custodytest.NewDevice(t)
		wallet := env.CreateWallet(t, session, device)

		c, err := env.Activation.GenerateWalletActivationChallenge(ctx, session, wallet.ID)
		require.NoError(t, err)
		_, err = env.Wallets.UpdateWalletStatus(ctx, "user-1", wallet.ID, interfaces.WalletStatusDisabled)
		require.NoError(t, err)

		_, err = env.Activation.ActivateWallet(ctx, session, wallet.ID, env.Solve(t, device.Key, c, session, device.ShareHash))
		require.ErrorIs(t, err, interfaces.ErrWalletNotEnabled)

		_, err = env.Activation.GenerateWalletActivationChallenge(ctx, session, wallet.ID)
		require.ErrorIs(t, err, interfaces.ErrWalletNotEnabled)
	})
}

func TestActivationRereadsRowsInTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("WalletBecomesReadonly", func(t *testing.T) {
		env := custodytest.New(t)
		session := env.NewSession(t, "user-1", "device-1")
		device := custodytest.NewDevice(t)
		wallet := env.CreateWallet(t, session, device)

		c, err := env.Activation.GenerateWalletActivationChallenge(ctx, session, wallet.ID)
		require.NoError(t, err)
		solution := env.Solve(t, device.Key, c, session, device.ShareHash)

		store := custodytest.NewInterleavedStore(env.Store, 2, func() {
			_, err := env.Wallets.UpdateWalletStatus(ctx, "user-1", wallet.ID, interfaces.WalletStatusReadonly)
			assert.NoError(t, err)
		})
		svc := activation.NewService(store, env.Protocol, env.Audit, env.Config, env.Clock, testutil.Logger())

		_, err = svc.ActivateWallet(ctx, session, wallet.ID, solution)
		require.ErrorIs(t, err, interfaces.ErrWalletNotEnabled)

		got, err := env.Wallets.GetWallet(ctx, "user-1", wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, interfaces.WalletStatusReadonly, got.Status)
		assert.Equal(t, 1, got.ActivationCount)

		_, err = env.Store.GetWorkKeyShare(ctx, "user-1", wallet.ID, "device-1")
		require.ErrorIs(t, err, interfaces.ErrWorkShareNotFound)
	})

	t.Run("ShareRotated", func(t *testing.T) {
		env := custodytest.New(t)
		session := env.NewSession(t, "user-1", "device-1")
		device := custodytest.NewDevice(t)
		wallet := env.CreateWallet(t, session, device)

		env.Clock.Add(env.Config.ShareActiveTTL)
		res, err := env.Activate(t, session, device, wallet.ID)
		require.NoError(t, err)
		require.NotNil(t, res.RotationChallenge)
		rotated := custodytest.NewDevice(t)
		update := rotated.Update(env.Solve(t, wallet.Key, res.RotationChallenge, session, ""))

		c, err := env.Activation.GenerateWalletActivationChallenge(ctx, session, wallet.ID)
		require.NoError(t, err)
		solution := env.Solve(t, device.Key, c, session, device.ShareHash)

		store := custodytest.NewInterleavedStore(env.Store, 2, func() {
			_, err := env.Activation.RotateAuthShare(ctx, session, wallet.ID, update)
			assert.NoError(t, err)
		})
		svc := activation.NewService(store, env.Protocol, env.Audit, env.Config, env.Clock, testutil.Logger())

		_, err = svc.ActivateWallet(ctx, session, wallet.ID, solution)
		require.ErrorIs(t, err, interfaces.ErrChallengeFailed)

		share, err := env.Store.GetWorkKeyShare(ctx, "user-1", wallet.ID, "device-1")
		require.NoError(t, err)
		assert.Equal(t, rotated.AuthShare, share.AuthShare)
		assert.Equal(t, rotated.PublicKey, share.DeviceSharePublicKey)
		assert.Zero(t, share.RotationWarnings)
	})
}

func TestInvalidShareUpdateIsAudited(t *testing.T) {
	ctx := context.Background()
	env := custodytest.New(t)
	session := env.NewSession(t, "user-1", "device-1")
	device := custodytest.NewDevice(t)
	wallet := env.CreateWallet(t, session, device)

	testCases := []struct {
		name   string
		update *activation.ShareUpdate
		err    error
	}{
		{
			name:   "bad auth share",
			update: &activation.ShareUpdate{AuthShare: "", DeviceShareHash: device.ShareHash, DeviceSharePublicKey: device.PublicKey, ChallengeSolution: "v2.AAAA"},
			err:    interfaces.ErrInvalidShare,
		},
		{
			name:   "bad share hash",
			update: &activation.ShareUpdate{AuthShare: device.AuthShare, DeviceShareHash: "xyz", DeviceSharePublicKey: device.PublicKey, ChallengeSolution: "v2.AAAA"},
			err:    interfaces.ErrInvalidShare,
		},
		{
			name:   "bad device key",
			update: &activation.ShareUpdate{AuthShare: device.AuthShare, DeviceShareHash: device.ShareHash, DeviceSharePublicKey: "not-a-key", ChallengeSolution: "v2.AAAA"},
			err:    interfaces.ErrInvalidPublicKey,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Activation.RotateAuthShare(ctx, session, wallet.ID, tc.update)
			require.ErrorIs(t, err, tc.err)
			_, err = env.Activation.RegisterAuthShare(ctx, session, wallet.ID, tc.update)
			require.ErrorIs(t, err, tc.err)
		})
	}

	rows, err := env.Store.ListWalletActivations(ctx, wallet.ID)
	require.NoError(t, err)
	failed := 0
	for _, r := range rows {
		if r.Status == interfaces.AuditStatusFailed {
			failed++
		}
	}
	assert.Equal(t, 2*len(testCases), failed)
}

func TestRotation(t *testing.T) {
	ctx := context.Background()
	env := custodytest.New(t)
	session := env.NewSession(t, "user-1", "device-1")
	device := custodytest.NewDevice(t)
	wallet := env.CreateWallet(t, session, device)

	env.Clock.Add(env.Config.ShareActiveTTL + time.Hour)

	res, err := env.Activate(t, session, device, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, device.AuthShare, res.AuthShare)
	require.NotNil(t, res.RotationChallenge)
	assert.Equal(t, interfaces.PurposeShareRotation, res.RotationChallenge.Purpose)
	assert.Equal(t, wallet.PublicKey, res.RotationChallenge.PublicKey)

	share, err := env.Store.GetWorkKeyShare(ctx, "user-1", wallet.ID, "device-1")
	require.NoError(t, err)
	assert.Equal(t, 1, share.RotationWarnings)

	t.Run("DeviceKeyDoesNotRotate", func(t *testing.T) {
		_, err := env.Activation.RotateAuthShare(ctx, session, wallet.ID,
			device.Update(env.Solve(t, device.Key, res.RotationChallenge, session, "")))
		require.ErrorIs(t, err, interfaces.ErrChallengeFailed)
	})

	res, err = env.Activate(t, session, device, wallet.ID)
	require.NoError(t, err)
	require.NotNil(t, res.RotationChallenge)

	device.Resplit(t)
	next, err := env.Activation.RotateAuthShare(ctx, session, wallet.ID,
		device.Update(env.Solve(t, wallet.Key, res.RotationChallenge, session, "")))
	require.NoError(t, err)

	now := env.Clock.Now().UTC().Truncate(time.Millisecond)
	assert.True(t, now.Add(env.Config.ShareActiveTTL).Equal(next))

	share, err = env.Store.GetWorkKeyShare(ctx, "user-1", wallet.ID, "device-1")
	require.NoError(t, err)
	assert.Zero(t, share.RotationWarnings)
	assert.True(t, now.Equal(share.SharesRotatedAt))
	assert.Equal(t, device.AuthShare, share.AuthShare)
	assert.Equal(t, device.ShareHash, share.DeviceShareHash)

	got, err := env.Wallets.GetWallet(ctx, "user-1", wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RotationCount)

	res, err = env.Activate(t, session, device, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, device.AuthShare, res.AuthShare)
	assert.Nil(t, res.RotationChallenge)
}

func TestRotationForLegacyDeviceKey(t *testing.T) {
	ctx := context.Background()
	env := custodytest.New(t)
	session := env.NewSession(t, "user-1", "device-1")
	device := custodytest.NewDevice(t)
	wallet := env.CreateWallet(t, session, device)

	rsaKey, modulus := testutil.NewRSAKey(t)
	share, err := env.Store.GetWorkKeyShare(ctx, "user-1", wallet.ID, "device-1")
	require.NoError(t, err)
	share.DeviceSharePublicKey = modulus
	require.NoError(t, env.Store.SaveWorkKeyShare(ctx, share))

	c, err := env.Activation.GenerateWalletActivationChallenge(ctx, session, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", c.Version)

	res, err := env.Activation.ActivateWallet(ctx, session, wallet.ID, env.Solve(t, rsaKey, c, session, device.ShareHash))
	require.NoError(t, err)
	assert.NotNil(t, res.RotationChallenge)
}

func TestShareInvalidation(t *testing.T) {
	ctx := context.Background()

	t.Run("InactiveTTL", func(t *testing.T) {
		env := custodytest.New(t)
		session := env.NewSession(t, "user-1", "device-1")
		device := custodytest.NewDevice(t)
		wallet := env.CreateWallet(t, session, device)

		env.Clock.Add(env.Config.ShareInactiveTTL)

		_, err := env.Activate(t, session, device, wallet.ID)
		require.ErrorIs(t, err, interfaces.ErrWorkShareInvalidated)

		_, err = env.Store.GetWorkKeyShare(ctx, "user-1", wallet.ID, "device-1")
		require.ErrorIs(t, err, interfaces.ErrWorkShareNotFound)

		_, err = env.Activation.GenerateWalletActivationChallenge(ctx, session, wallet.ID)
		require.ErrorIs(t, err, interfaces.ErrWorkShareNotFound)
	})

	t.Run("IgnoredRotations", func(t *testing.T) {
		env := custodytest.New(t)
		session := env.NewSession(t, "user-1", "device-1")
		device := custodytest.NewDevice(t)
		wallet := env.CreateWallet(t, session, device)

		env.Clock.Add(env.Config.ShareActiveTTL)
		for i := 1; i <= env.Config.ShareMaxRotationIgnores; i++ {
			res, err := env.Activate(t, session, device, wallet.ID)
			require.NoError(t, err)
			require.NotNil(t, res.RotationChallenge)
		}

		_, err := env.Activate(t, session, device, wallet.ID)
		require.ErrorIs(t, err, interfaces.ErrWorkShareInvalidated)

		_, err = env.Activate(t, session, device, wallet.ID)
		require.ErrorIs(t, err, interfaces.ErrWorkShareNotFound)
	})
}

func TestInvalidated(t *testing.T) {
	env := custodytest.New(t)
	cfg := env.Config
	now := testutil.Now

	testCases := []struct {
		name     string
		share    interfaces.WorkKeyShare
		expected bool
	}{
		{"Fresh", interfaces.WorkKeyShare{SharesRotatedAt: now}, false},
		{"RotationDue", interfaces.WorkKeyShare{SharesRotatedAt: now.Add(-cfg.ShareActiveTTL), RotationWarnings: 1}, false},
		{"TooManyIgnores", interfaces.WorkKeyShare{SharesRotatedAt: now, RotationWarnings: cfg.ShareMaxRotationIgnores}, true},
		{"Inactive", interfaces.WorkKeyShare{SharesRotatedAt: now.Add(-cfg.ShareInactiveTTL)}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, activation.Invalidated(cfg, &tc.share, now))
		})
	}
}
