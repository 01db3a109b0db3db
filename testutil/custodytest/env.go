// Package custodytest wires the custody services to an in-memory store and
// a mock clock for end-to-end tests.
package custodytest

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/ruteri/embedded-wallet-custody/activation"
	"github.com/ruteri/embedded-wallet-custody/audit"
	"github.com/ruteri/embedded-wallet-custody/challenge"
	"github.com/ruteri/embedded-wallet-custody/config"
	"github.com/ruteri/embedded-wallet-custody/cryptoutils"
	"github.com/ruteri/embedded-wallet-custody/db"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"github.com/ruteri/embedded-wallet-custody/janitor"
	"github.com/ruteri/embedded-wallet-custody/kms"
	"github.com/ruteri/embedded-wallet-custody/recovery"
	"github.com/ruteri/embedded-wallet-custody/testutil"
	"github.com/ruteri/embedded-wallet-custody/wallets"
	"github.com/stretchr/testify/require"
)

type Env struct {
	Store    *db.Store
	Clock    *clock.Mock
	Config   *config.Config
	Registry *challenge.Registry
	Protocol *challenge.Protocol
	Audit    *audit.Recorder
	Cleanup  *janitor.Queue
	KMS      *kms.BackupKMS

	Wallets    *wallets.Service
	Activation *activation.Service
	Recovery   *recovery.Service
}

// New builds the services on a fresh in-memory store with default
// configuration in the test environment.
func New(t testing.TB) *Env {
	t.Helper()

	store, err := db.OpenInMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default()
	cfg.Environment = config.EnvTest
	require.NoError(t, cfg.Validate())

	log := testutil.Logger()
	clk := testutil.NewClock()

	registry, err := challenge.DefaultRegistry()
	require.NoError(t, err)
	protocol, err := challenge.NewProtocol(registry, challenge.Options{TTL: cfg.ChallengeTTL}, clk, log)
	require.NoError(t, err)

	seed := make([]byte, kms.SeedSize)
	_, err = rand.Read(seed)
	require.NoError(t, err)
	backup, err := kms.NewBackupKMS(seed)
	require.NoError(t, err)

	queue := janitor.NewQueue(1, 16, log)
	t.Cleanup(queue.Close)

	recorder := audit.NewRecorder(store, clk, log)

	return &Env{
		Store:      store,
		Clock:      clk,
		Config:     cfg,
		Registry:   registry,
		Protocol:   protocol,
		Audit:      recorder,
		Cleanup:    queue,
		KMS:        backup,
		Wallets:    wallets.NewService(store, protocol, queue, cfg, clk, log),
		Activation: activation.NewService(store, protocol, recorder, cfg, clk, log),
		Recovery:   recovery.NewService(store, protocol, backup, recorder, queue, cfg, clk, log),
	}
}

// NewSession stores a session for userID on the given device.
func (e *Env) NewSession(t testing.TB, userID, deviceNonce string) *interfaces.Session {
	t.Helper()
	s := &interfaces.Session{
		ID:          "session-" + userID + "-" + deviceNonce,
		UserID:      userID,
		AuthUserID:  userID,
		DeviceNonce: deviceNonce,
		IP:          "10.0.0.1",
		CountryCode: "DE",
		UserAgent:   "custodytest/1.0",
		CreatedAt:   e.Clock.Now().UTC(),
		UpdatedAt:   e.Clock.Now().UTC(),
	}
	require.NoError(t, e.Store.CreateSession(context.Background(), s))
	return s
}

func (e *Env) Solve(t testing.TB, key crypto.PrivateKey, c *interfaces.Challenge, s *interfaces.Session, shareHash string) string {
	t.Helper()
	sol, err := e.Registry.SolveChallenge(key, c, s, shareHash)
	require.NoError(t, err)
	return sol
}

func (e *Env) SolveAnon(t testing.TB, key crypto.PrivateKey, c *interfaces.AnonChallenge) string {
	t.Helper()
	sol, err := e.Registry.SolveAnonChallenge(key, c)
	require.NoError(t, err)
	return sol
}

// Device is a client that holds a device key and its shares.
type Device struct {
	Key         ed25519.PrivateKey
	PublicKey   string
	DeviceShare string
	AuthShare   string
	ShareHash   string
}

// NewDevice generates a v2 device key and a fresh share split.
func NewDevice(t testing.TB) *Device {
	t.Helper()
	priv, pub := testutil.NewEd25519Key(t)
	d := &Device{Key: priv, PublicKey: pub}
	d.Resplit(t)
	return d
}

// Resplit replaces the device and auth shares with a new split.
func (d *Device) Resplit(t testing.TB) {
	shares := testutil.SplitSecret(t)
	d.DeviceShare = shares[0]
	d.AuthShare = shares[1]
	d.ShareHash = cryptoutils.ShareHash(d.DeviceShare)
}

func (d *Device) Update(solution string) *activation.ShareUpdate {
	return &activation.ShareUpdate{
		AuthShare:            d.AuthShare,
		DeviceShareHash:      d.ShareHash,
		DeviceSharePublicKey: d.PublicKey,
		ChallengeSolution:    solution,
	}
}

type Wallet struct {
	*interfaces.Wallet
	Key ed25519.PrivateKey
}

// CreateWallet creates a PUBLIC, account-recovering Solana wallet for the
// session and registers the device's auth share on it.
func (e *Env) CreateWallet(t testing.TB, s *interfaces.Session, d *Device) *Wallet {
	t.Helper()
	ctx := context.Background()

	key, address := testutil.NewEd25519Key(t)
	w, c, err := e.Wallets.CreateWallet(ctx, s, &wallets.CreateWalletRequest{
		Chain:             interfaces.ChainSolana,
		Address:           address,
		PublicKey:         address,
		Privacy:           interfaces.WalletPrivacyPublic,
		CanRecoverAccount: true,
		Source:            interfaces.WalletSourceGenerated,
	})
	require.NoError(t, err)

	res, err := e.Activation.RegisterAuthShare(ctx, s, w.ID, d.Update(e.Solve(t, key, c, s, "")))
	require.NoError(t, err)
	return &Wallet{Wallet: res.Wallet, Key: key}
}

// Activate runs the activation challenge round trip.
func (e *Env) Activate(t testing.TB, s *interfaces.Session, d *Device, walletID string) (*activation.ActivationResult, error) {
	t.Helper()
	ctx := context.Background()

	c, err := e.Activation.GenerateWalletActivationChallenge(ctx, s, walletID)
	if err != nil {
		return nil, err
	}
	return e.Activation.ActivateWallet(ctx, s, walletID, e.Solve(t, d.Key, c, s, d.ShareHash))
}
