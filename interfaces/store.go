package interfaces

import (
	"context"
	"time"
)

// ChallengeStore persists user-scoped and anonymous challenges.
type ChallengeStore interface {
	// UpsertChallenge replaces any live challenge for (UserID, Purpose).
	UpsertChallenge(ctx context.Context, c *Challenge) error

	// ConsumeChallenge loads and deletes the live challenge for
	// (userID, purpose) in one step. Returns ErrChallengeNotFound if none.
	ConsumeChallenge(ctx context.Context, userID string, purpose ChallengePurpose) (*Challenge, error)

	DeleteChallenge(ctx context.Context, userID string, purpose ChallengePurpose) error
	DeleteChallengesByWallet(ctx context.Context, walletID string) (int64, error)

	// UpsertAnonChallenge replaces any live challenge for
	// (Chain, Address, Purpose).
	UpsertAnonChallenge(ctx context.Context, c *AnonChallenge) error

	// ConsumeAnonChallenge loads and deletes an anonymous challenge by id.
	ConsumeAnonChallenge(ctx context.Context, id string) (*AnonChallenge, error)

	// DeleteExpiredChallenges removes user-scoped and anonymous challenges
	// created before the cutoff.
	DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error)
}

// ShareStore persists work shares and recovery shares.
type ShareStore interface {
	GetWorkKeyShare(ctx context.Context, userID, walletID, deviceNonce string) (*WorkKeyShare, error)
	// CreateWorkKeyShare fails with ErrWorkShareExists on a duplicate
	// (UserID, WalletID, DeviceNonce).
	CreateWorkKeyShare(ctx context.Context, s *WorkKeyShare) error
	SaveWorkKeyShare(ctx context.Context, s *WorkKeyShare) error
	DeleteWorkKeyShare(ctx context.Context, id string) error
	DeleteWorkKeySharesByUser(ctx context.Context, userID string) (int64, error)
	DeleteWorkKeySharesByWallet(ctx context.Context, walletID string) (int64, error)

	CreateRecoveryKeyShare(ctx context.Context, s *RecoveryKeyShare) error
	GetRecoveryKeyShare(ctx context.Context, walletID, backupShareHash string) (*RecoveryKeyShare, error)
	DeleteRecoveryKeySharesByWallet(ctx context.Context, walletID string) (int64, error)
}

type WalletStore interface {
	CreateWallet(ctx context.Context, w *Wallet) error
	GetWallet(ctx context.Context, id string) (*Wallet, error)
	ListWallets(ctx context.Context, userID string) ([]*Wallet, error)
	// FindWalletsByAddress returns every wallet on the chain with the address,
	// across all users.
	FindWalletsByAddress(ctx context.Context, chain Chain, address string) ([]*Wallet, error)
	SaveWallet(ctx context.Context, w *Wallet) error
	DeleteWallet(ctx context.Context, id string) error
}

type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)
	GetProfiles(ctx context.Context, userIDs []string) ([]*UserProfile, error)
	SaveProfile(ctx context.Context, p *UserProfile) error
	DeleteProfile(ctx context.Context, userID string) error
}

type SessionStore interface {
	GetSession(ctx context.Context, id string) (*Session, error)
	CreateSession(ctx context.Context, s *Session) error
	SaveSession(ctx context.Context, s *Session) error

	CreateDeviceAndLocation(ctx context.Context, d *DeviceAndLocation) error
	// DeleteOrphanDeviceAndLocations removes rows created before the cutoff
	// that no audit row references. An empty userID matches every user.
	DeleteOrphanDeviceAndLocations(ctx context.Context, userID string, before time.Time) (int64, error)
}

// AuditStore is append-only.
type AuditStore interface {
	CreateWalletActivation(ctx context.Context, a *WalletActivation) error
	CreateWalletRecovery(ctx context.Context, r *WalletRecovery) error
	ListWalletActivations(ctx context.Context, walletID string) ([]*WalletActivation, error)
	ListWalletRecoveries(ctx context.Context, walletID string) ([]*WalletRecovery, error)
}

// Repositories groups every store contract.
type Repositories interface {
	ChallengeStore
	ShareStore
	WalletStore
	ProfileStore
	SessionStore
	AuditStore
}

// UnitOfWork is a transaction over Repositories. Rollback after Commit is
// a no-op, so callers may defer it unconditionally.
type UnitOfWork interface {
	Repositories
	Commit() error
	Rollback() error
}

// Store is the transactional persistence service.
type Store interface {
	Repositories
	Begin(ctx context.Context) (UnitOfWork, error)
	Close() error
}

// RunInTx runs fn in a unit of work and commits it if fn succeeds. The
// transaction is rolled back before RunInTx returns an error, so callers
// may use the root store again afterwards.
func RunInTx(ctx context.Context, store Store, fn func(tx UnitOfWork) error) error {
	tx, err := store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// OwnedWallet loads a wallet and hides it from every user but its owner.
func OwnedWallet(ctx context.Context, ws WalletStore, userID, walletID string) (*Wallet, error) {
	w, err := ws.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if w.UserID != userID {
		return nil, ErrWalletNotFound
	}
	return w, nil
}

// EnabledWallet is OwnedWallet for operations that require an ENABLED
// wallet. Call it on the transaction that writes the wallet back.
func EnabledWallet(ctx context.Context, ws WalletStore, userID, walletID string) (*Wallet, error) {
	w, err := OwnedWallet(ctx, ws, userID, walletID)
	if err != nil {
		return nil, err
	}
	if w.Status != WalletStatusEnabled {
		return nil, ErrWalletNotEnabled
	}
	return w, nil
}
