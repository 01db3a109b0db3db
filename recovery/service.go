// Package recovery re-establishes access after a device share, a wallet or
// a whole account is lost.
//
// Each path has its own challenge purpose and its own source for the
// verifying key:
//
//	wallet recovery      SHARE_RECOVERY    recovery backup key or wallet key
//	account recovery     ACCOUNT_RECOVERY  old account's recovery-eligible wallet key
//	account discovery    FETCH_RECOVERABLE_ACCOUNTS  any recovery-eligible wallet key
//
// Every failure of a wallet-bound path appends a FAILED WalletRecovery row.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/ruteri/embedded-wallet-custody/activation"
	"github.com/ruteri/embedded-wallet-custody/audit"
	"github.com/ruteri/embedded-wallet-custody/challenge"
	"github.com/ruteri/embedded-wallet-custody/config"
	"github.com/ruteri/embedded-wallet-custody/cryptoutils"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"github.com/ruteri/embedded-wallet-custody/janitor"
	"golang.org/x/sync/errgroup"
)

// RecoveryFileSigner signs walletID|backupShareHash for recovery files.
type RecoveryFileSigner interface {
	SignRecoveryFile(walletID, backupShareHash string) (string, error)
	VerifyRecoveryFile(walletID, backupShareHash, signature string) error
	PublicKeyPEM() cryptoutils.ServerPubkey
}

type Service struct {
	store    interfaces.Store
	protocol *challenge.Protocol
	signer   RecoveryFileSigner
	audit    *audit.Recorder
	cleanup  *janitor.Queue
	cfg      *config.Config
	clock    clock.Clock
	log      *slog.Logger
}

func NewService(store interfaces.Store, protocol *challenge.Protocol, signer RecoveryFileSigner, recorder *audit.Recorder, cleanup *janitor.Queue, cfg *config.Config, clk clock.Clock, log *slog.Logger) *Service {
	return &Service{
		store:    store,
		protocol: protocol,
		signer:   signer,
		audit:    recorder,
		cleanup:  cleanup,
		cfg:      cfg,
		clock:    clk,
		log:      log.With(slog.String("component", "recovery")),
	}
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}

type RecoverWalletRequest struct {
	ChallengeSolution           string
	RecoveryBackupShareHash     string
	RecoveryFileServerSignature string
}

// WalletRecoveryResult is either a full recovery (Wallet and
// RotationChallenge set, RecoveryAuthShare set for file recovery) or, for a
// bare recovery file check, only RecoveryBackupServerPublicKey.
type WalletRecoveryResult struct {
	Wallet                        *interfaces.Wallet
	RecoveryAuthShare             string
	RotationChallenge             *interfaces.Challenge
	RecoveryBackupServerPublicKey cryptoutils.ServerPubkey
}

type RegisterRecoveryShareRequest struct {
	RecoveryAuthShare            string
	RecoveryBackupShareHash      string
	RecoveryBackupSharePublicKey string
}

type RecoveryShareResult struct {
	Wallet                      *interfaces.Wallet
	RecoveryFileServerSignature string
}

// GenerateWalletRecoveryChallenge issues a SHARE_RECOVERY challenge. With a
// backup share hash it is verified by that recovery share's backup key,
// otherwise by the wallet key.
func (s *Service) GenerateWalletRecoveryChallenge(ctx context.Context, session *interfaces.Session, walletID, backupShareHash string) (*interfaces.Challenge, error) {
	entry := audit.Entry{UserID: session.UserID, WalletID: walletID}
	entry.DeviceAndLocationID = s.audit.RecordDevice(ctx, session)

	c, err := s.generateWalletRecoveryChallenge(ctx, session, walletID, backupShareHash, &entry)
	if err != nil {
		s.audit.RecoveryFailed(ctx, entry, err)
		return nil, err
	}
	return c, nil
}

func (s *Service) generateWalletRecoveryChallenge(ctx context.Context, session *interfaces.Session, walletID, backupShareHash string, entry *audit.Entry) (*interfaces.Challenge, error) {
	wallet, err := interfaces.OwnedWallet(ctx, s.store, session.UserID, walletID)
	if err != nil {
		return nil, err
	}
	if wallet.Status != interfaces.WalletStatusEnabled {
		return nil, interfaces.ErrWalletNotEnabled
	}

	key := wallet.PublicKey
	if backupShareHash != "" {
		if err := cryptoutils.ValidateShareHash(backupShareHash); err != nil {
			return nil, fmt.Errorf("%w: recovery backup share hash: %v", interfaces.ErrInvalidShare, err)
		}
		rs, err := s.store.GetRecoveryKeyShare(ctx, walletID, backupShareHash)
		if err != nil {
			return nil, err
		}
		entry.ShareID = rs.ID
		key = rs.RecoveryBackupSharePublicKey
	}
	if key == "" {
		return nil, interfaces.BadRequest("wallet has no public key, recover it with a recovery file")
	}

	c, err := s.protocol.NewChallenge(interfaces.PurposeShareRecovery, key, session.IP, session.UserID, walletID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpsertChallenge(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RecoverWallet verifies a SHARE_RECOVERY solution and hands back what the
// device needs to rotate in a fresh share. A request carrying only a
// recovery file signature checks the file and returns the server key.
func (s *Service) RecoverWallet(ctx context.Context, session *interfaces.Session, walletID string, req *RecoverWalletRequest) (*WalletRecoveryResult, error) {
	entry := audit.Entry{UserID: session.UserID, WalletID: walletID}
	entry.DeviceAndLocationID = s.audit.RecordDevice(ctx, session)

	res, err := s.recoverWallet(ctx, session, walletID, req, &entry)
	if err != nil {
		s.audit.RecoveryFailed(ctx, entry, err)
		return nil, err
	}
	return res, nil
}

func (s *Service) verifyRecoveryFile(walletID string, req *RecoverWalletRequest) error {
	if req.RecoveryBackupShareHash == "" {
		return interfaces.BadRequest("recovery file check needs the recovery backup share hash")
	}
	if err := s.signer.VerifyRecoveryFile(walletID, req.RecoveryBackupShareHash, req.RecoveryFileServerSignature); err != nil {
		s.log.Warn("Recovery file signature rejected", slog.String("walletID", walletID), "err", err)
		return interfaces.ErrInvalidRecoveryFile
	}
	return nil
}

func (s *Service) recoverWallet(ctx context.Context, session *interfaces.Session, walletID string, req *RecoverWalletRequest, entry *audit.Entry) (*WalletRecoveryResult, error) {
	if req.ChallengeSolution == "" {
		if req.RecoveryFileServerSignature == "" {
			return nil, interfaces.BadRequest("challenge solution or recovery file signature is required")
		}
		if _, err := interfaces.OwnedWallet(ctx, s.store, session.UserID, walletID); err != nil {
			return nil, err
		}
		if err := s.verifyRecoveryFile(walletID, req); err != nil {
			return nil, err
		}
		return &WalletRecoveryResult{RecoveryBackupServerPublicKey: s.signer.PublicKeyPEM()}, nil
	}

	if req.RecoveryBackupShareHash != "" {
		if err := s.verifyRecoveryFile(walletID, req); err != nil {
			return nil, err
		}
	}

	var (
		c          *interfaces.Challenge
		wallet     *interfaces.Wallet
		rs         *interfaces.RecoveryKeyShare
		cErr, wErr error
		rErr       error
	)
	var g errgroup.Group
	g.Go(func() error {
		c, cErr = s.store.ConsumeChallenge(ctx, session.UserID, interfaces.PurposeShareRecovery)
		return nil
	})
	g.Go(func() error {
		wallet, wErr = interfaces.OwnedWallet(ctx, s.store, session.UserID, walletID)
		return nil
	})
	if req.RecoveryBackupShareHash != "" {
		g.Go(func() error {
			rs, rErr = s.store.GetRecoveryKeyShare(ctx, walletID, req.RecoveryBackupShareHash)
			return nil
		})
	}
	_ = g.Wait()

	if wErr != nil {
		return nil, wErr
	}
	if rErr != nil {
		return nil, rErr
	}
	if wallet.Status != interfaces.WalletStatusEnabled {
		return nil, interfaces.ErrWalletNotEnabled
	}
	if cErr != nil {
		return nil, cErr
	}
	if c.WalletID != walletID {
		return nil, fmt.Errorf("%w: challenge issued for another wallet", interfaces.ErrChallengeNotFound)
	}

	key := wallet.PublicKey
	if rs != nil {
		entry.ShareID = rs.ID
		key = rs.RecoveryBackupSharePublicKey
	}
	if err := s.protocol.VerifyChallenge(c, session, "", req.ChallengeSolution, key); err != nil {
		s.log.Warn("Recovery challenge rejected",
			slog.String("walletID", walletID),
			slog.String("kind", string(challenge.KindOf(err))))
		return nil, interfaces.ErrChallengeFailed
	}

	rotation, err := s.protocol.NewChallenge(interfaces.PurposeShareRotation, key, session.IP, session.UserID, walletID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	err = interfaces.RunInTx(ctx, s.store, func(tx interfaces.UnitOfWork) error {
		w, err := interfaces.EnabledWallet(ctx, tx, session.UserID, walletID)
		if err != nil {
			return err
		}
		w.RecoveryCount++
		w.LastRecoveredAt = &now
		w.UpdatedAt = now
		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}
		wallet = w
		if err := tx.UpsertChallenge(ctx, rotation); err != nil {
			return err
		}
		return s.audit.Recovery(ctx, tx, *entry)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Wallet recovered",
		slog.String("walletID", walletID),
		slog.String("userID", session.UserID),
		slog.Bool("recoveryFile", rs != nil))

	res := &WalletRecoveryResult{Wallet: wallet, RotationChallenge: rotation}
	if rs != nil {
		res.RecoveryAuthShare = rs.RecoveryAuthShare
	}
	return res, nil
}

// RegisterRecoveryShare stores a backup split for the wallet and returns
// the server signature that goes into the recovery file.
func (s *Service) RegisterRecoveryShare(ctx context.Context, session *interfaces.Session, walletID string, req *RegisterRecoveryShareRequest) (*RecoveryShareResult, error) {
	entry := audit.Entry{UserID: session.UserID, WalletID: walletID}
	entry.DeviceAndLocationID = s.audit.RecordDevice(ctx, session)

	res, err := s.registerRecoveryShare(ctx, session, walletID, req, &entry)
	if err != nil {
		s.audit.RecoveryFailed(ctx, entry, err)
		return nil, err
	}
	return res, nil
}

func (s *Service) registerRecoveryShare(ctx context.Context, session *interfaces.Session, walletID string, req *RegisterRecoveryShareRequest, entry *audit.Entry) (*RecoveryShareResult, error) {
	if err := cryptoutils.ValidateShare(req.RecoveryAuthShare); err != nil {
		return nil, fmt.Errorf("%w: recovery auth share: %v", interfaces.ErrInvalidShare, err)
	}
	if err := cryptoutils.ValidateShareHash(req.RecoveryBackupShareHash); err != nil {
		return nil, fmt.Errorf("%w: recovery backup share hash: %v", interfaces.ErrInvalidShare, err)
	}
	if _, err := s.protocol.Registry().VersionFor(req.RecoveryBackupSharePublicKey); err != nil {
		return nil, fmt.Errorf("%w: recovery backup share public key: %v", interfaces.ErrInvalidPublicKey, err)
	}

	signature, err := s.signer.SignRecoveryFile(walletID, req.RecoveryBackupShareHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrUnexpected, err)
	}

	now := s.now()
	rs := &interfaces.RecoveryKeyShare{
		ID:                           uuid.NewString(),
		UserID:                       session.UserID,
		WalletID:                     walletID,
		RecoveryAuthShare:            req.RecoveryAuthShare,
		RecoveryBackupShareHash:      req.RecoveryBackupShareHash,
		RecoveryBackupSharePublicKey: req.RecoveryBackupSharePublicKey,
		DeviceAndLocationID:          entry.DeviceAndLocationID,
		CreatedAt:                    now,
	}

	var wallet *interfaces.Wallet
	err = interfaces.RunInTx(ctx, s.store, func(tx interfaces.UnitOfWork) error {
		w, err := interfaces.EnabledWallet(ctx, tx, session.UserID, walletID)
		if err != nil {
			return err
		}
		share, err := tx.GetWorkKeyShare(ctx, session.UserID, walletID, session.DeviceNonce)
		if err != nil {
			return err
		}
		if activation.Invalidated(s.cfg, share, now) {
			return interfaces.ErrWorkShareInvalidated
		}

		if err := tx.CreateRecoveryKeyShare(ctx, rs); err != nil {
			return err
		}
		w.CanBeRecovered = true
		w.BackupCount++
		w.LastBackedUpAt = &now
		w.UpdatedAt = now
		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}
		wallet = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Recovery share registered",
		slog.String("walletID", walletID),
		slog.String("recoveryShareID", rs.ID))
	return &RecoveryShareResult{Wallet: wallet, RecoveryFileServerSignature: signature}, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, interfaces.ErrNotFound)
}
