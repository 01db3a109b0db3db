// Package wallets manages the wallet records an account owns: creation with
// its registration challenge, status transitions, deletion and export stats.
package wallets

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/ruteri/embedded-wallet-custody/activation"
	"github.com/ruteri/embedded-wallet-custody/challenge"
	"github.com/ruteri/embedded-wallet-custody/config"
	"github.com/ruteri/embedded-wallet-custody/cryptoutils"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"github.com/ruteri/embedded-wallet-custody/janitor"
)

type Service struct {
	store    interfaces.Store
	protocol *challenge.Protocol
	cleanup  *janitor.Queue
	cfg      *config.Config
	clock    clock.Clock
	log      *slog.Logger
}

func NewService(store interfaces.Store, protocol *challenge.Protocol, cleanup *janitor.Queue, cfg *config.Config, clk clock.Clock, log *slog.Logger) *Service {
	return &Service{
		store:    store,
		protocol: protocol,
		cleanup:  cleanup,
		cfg:      cfg,
		clock:    clk,
		log:      log.With(slog.String("component", "wallets")),
	}
}

type CreateWalletRequest struct {
	Chain             interfaces.Chain
	Address           string
	PublicKey         string
	Privacy           interfaces.WalletPrivacy
	CanRecoverAccount bool
	Source            interfaces.WalletSource
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}

// normalizeKey checks the wallet key against the chain and address and
// returns it in its canonical encoding. An empty key stays empty.
func normalizeKey(chain interfaces.Chain, address, publicKey string) (string, error) {
	switch chain {
	case interfaces.ChainArweave:
		if err := cryptoutils.ValidateArweaveAddress(address); err != nil {
			return "", fmt.Errorf("%w: %v", interfaces.ErrInvalidAddress, err)
		}
		if publicKey == "" {
			return "", nil
		}
		pub, err := cryptoutils.ParseRSAPublicKey(publicKey)
		if err != nil {
			return "", fmt.Errorf("%w: %v", interfaces.ErrInvalidPublicKey, err)
		}
		if cryptoutils.ArweaveAddress(pub) != address {
			return "", fmt.Errorf("%w: key does not match address", interfaces.ErrInvalidPublicKey)
		}
		return cryptoutils.EncodeRSAPublicKey(pub), nil

	case interfaces.ChainSolana:
		if err := cryptoutils.ValidateSolanaAddress(address); err != nil {
			return "", fmt.Errorf("%w: %v", interfaces.ErrInvalidAddress, err)
		}
		if publicKey == "" {
			return "", nil
		}
		pub, err := cryptoutils.ParseEd25519PublicKey(publicKey)
		if err != nil {
			return "", fmt.Errorf("%w: %v", interfaces.ErrInvalidPublicKey, err)
		}
		if cryptoutils.EncodeEd25519PublicKey(pub) != address {
			return "", fmt.Errorf("%w: key does not match address", interfaces.ErrInvalidPublicKey)
		}
		return cryptoutils.EncodeEd25519PublicKey(pub), nil
	}
	return "", interfaces.BadRequest("unsupported chain %q", chain)
}

func (s *Service) buildWallet(userID string, req *CreateWalletRequest) (*interfaces.Wallet, error) {
	if req.Source == "" {
		req.Source = interfaces.WalletSourceGenerated
	}
	if !req.Privacy.Valid() {
		return nil, interfaces.BadRequest("unsupported privacy setting %q", req.Privacy)
	}
	if !req.Source.Valid() {
		return nil, interfaces.BadRequest("unsupported wallet source %q", req.Source)
	}

	publicKey, err := normalizeKey(req.Chain, req.Address, req.PublicKey)
	if err != nil {
		return nil, err
	}

	switch req.Privacy {
	case interfaces.WalletPrivacyPrivate:
		if publicKey != "" {
			return nil, interfaces.BadRequest("private wallets cannot carry a public key")
		}
		if req.CanRecoverAccount {
			return nil, interfaces.BadRequest("private wallets cannot recover the account")
		}
	case interfaces.WalletPrivacyPublic:
		if publicKey == "" && req.Chain == interfaces.ChainSolana {
			// A Solana address is its public key.
			publicKey = req.Address
		}
		if publicKey == "" {
			return nil, fmt.Errorf("%w: public wallets need a public key", interfaces.ErrInvalidPublicKey)
		}
	}

	now := s.now()
	return &interfaces.Wallet{
		ID:                       uuid.NewString(),
		UserID:                   userID,
		Chain:                    req.Chain,
		Address:                  req.Address,
		PublicKey:                publicKey,
		Status:                   interfaces.WalletStatusEnabled,
		Privacy:                  req.Privacy,
		Source:                   req.Source,
		CanRecoverAccountSetting: req.CanRecoverAccount,
		CreatedAt:                now,
		UpdatedAt:                now,
	}, nil
}

// CreateWallet registers a wallet and issues the SHARE_ROTATION challenge
// that the first RegisterAuthShare call consumes.
func (s *Service) CreateWallet(ctx context.Context, session *interfaces.Session, req *CreateWalletRequest) (*interfaces.Wallet, *interfaces.Challenge, error) {
	wallet, err := s.buildWallet(session.UserID, req)
	if err != nil {
		return nil, nil, err
	}

	c, err := s.protocol.NewChallenge(interfaces.PurposeShareRotation, wallet.PublicKey, session.IP, session.UserID, wallet.ID)
	if err != nil {
		return nil, nil, err
	}

	err = interfaces.RunInTx(ctx, s.store, func(tx interfaces.UnitOfWork) error {
		if err := tx.CreateWallet(ctx, wallet); err != nil {
			return err
		}
		return tx.UpsertChallenge(ctx, c)
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("Wallet created",
		slog.String("walletID", wallet.ID),
		slog.String("userID", wallet.UserID),
		slog.String("chain", string(wallet.Chain)),
		slog.String("privacy", string(wallet.Privacy)))
	return wallet, c, nil
}

func (s *Service) GetWallet(ctx context.Context, userID, walletID string) (*interfaces.Wallet, error) {
	return interfaces.OwnedWallet(ctx, s.store, userID, walletID)
}

func (s *Service) ListWallets(ctx context.Context, userID string) ([]*interfaces.Wallet, error) {
	return s.store.ListWallets(ctx, userID)
}

// CheckTransition validates a status change. ENABLED and DISABLED may be
// swapped freely; READONLY and LOST can be entered but never left.
func CheckTransition(from, to interfaces.WalletStatus) error {
	if !to.Valid() {
		return interfaces.BadRequest("unsupported wallet status %q", to)
	}
	if from == to {
		return fmt.Errorf("%w: wallet is already %s", interfaces.ErrInvalidStatusTransition, to)
	}
	if from.Terminal() {
		return fmt.Errorf("%w: %s is final", interfaces.ErrInvalidStatusTransition, from)
	}
	return nil
}

// UpdateWalletStatus applies a status transition. Entering READONLY or LOST
// removes every work share and challenge of the wallet.
func (s *Service) UpdateWalletStatus(ctx context.Context, userID, walletID string, status interfaces.WalletStatus) (*interfaces.Wallet, error) {
	var wallet *interfaces.Wallet
	var purged int64
	err := interfaces.RunInTx(ctx, s.store, func(tx interfaces.UnitOfWork) error {
		w, err := interfaces.OwnedWallet(ctx, tx, userID, walletID)
		if err != nil {
			return err
		}
		if err := CheckTransition(w.Status, status); err != nil {
			return err
		}

		w.Status = status
		w.UpdatedAt = s.now()
		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}
		if status.Terminal() {
			if purged, err = tx.DeleteWorkKeySharesByWallet(ctx, walletID); err != nil {
				return err
			}
			if _, err := tx.DeleteChallengesByWallet(ctx, walletID); err != nil {
				return err
			}
		}
		wallet = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Wallet status updated",
		slog.String("walletID", walletID),
		slog.String("status", string(status)),
		slog.Int64("sharesDeleted", purged))
	return wallet, nil
}

// DeleteWallet removes the wallet with its shares and challenges. Audit rows
// are kept.
func (s *Service) DeleteWallet(ctx context.Context, userID, walletID string) error {
	err := interfaces.RunInTx(ctx, s.store, func(tx interfaces.UnitOfWork) error {
		if _, err := interfaces.OwnedWallet(ctx, tx, userID, walletID); err != nil {
			return err
		}
		if _, err := tx.DeleteWorkKeySharesByWallet(ctx, walletID); err != nil {
			return err
		}
		if _, err := tx.DeleteRecoveryKeySharesByWallet(ctx, walletID); err != nil {
			return err
		}
		if _, err := tx.DeleteChallengesByWallet(ctx, walletID); err != nil {
			return err
		}
		return tx.DeleteWallet(ctx, walletID)
	})
	if err != nil {
		return err
	}

	s.log.Info("Wallet deleted", slog.String("walletID", walletID), slog.String("userID", userID))

	cutoff := s.now().Add(-s.cfg.DeviceLocationRetention)
	s.cleanup.Go("delete-orphan-device-locations", func(ctx context.Context) error {
		_, err := s.store.DeleteOrphanDeviceAndLocations(ctx, userID, cutoff)
		return err
	})
	return nil
}

// RecordWalletExport bumps the export stats of a wallet. The caller's
// device must hold a usable work share.
func (s *Service) RecordWalletExport(ctx context.Context, session *interfaces.Session, walletID string) (*interfaces.Wallet, error) {
	now := s.now()
	var wallet *interfaces.Wallet
	err := interfaces.RunInTx(ctx, s.store, func(tx interfaces.UnitOfWork) error {
		w, err := interfaces.OwnedWallet(ctx, tx, session.UserID, walletID)
		if err != nil {
			return err
		}
		if w.Status == interfaces.WalletStatusLost {
			return interfaces.BadRequest("lost wallets cannot be exported")
		}
		share, err := tx.GetWorkKeyShare(ctx, session.UserID, walletID, session.DeviceNonce)
		if err != nil {
			return err
		}
		if activation.Invalidated(s.cfg, share, now) {
			return interfaces.ErrWorkShareInvalidated
		}

		w.ExportCount++
		w.LastExportedAt = &now
		w.UpdatedAt = now
		wallet = w
		return tx.SaveWallet(ctx, w)
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}
