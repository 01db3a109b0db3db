// Package activation exchanges challenge solutions signed with a device key
// for the wallet's auth share, and rotates the share on a schedule.
//
// A work share moves through NO_SHARE -> ACTIVE -> ROTATION_DUE and back to
// ACTIVE on rotation. A share whose rotation requests were ignored too often,
// or that has not rotated within the inactive TTL, is deleted on the next
// activation attempt. Only the recovery flow can replace it.
package activation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/ruteri/embedded-wallet-custody/audit"
	"github.com/ruteri/embedded-wallet-custody/challenge"
	"github.com/ruteri/embedded-wallet-custody/config"
	"github.com/ruteri/embedded-wallet-custody/cryptoutils"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"github.com/ruteri/embedded-wallet-custody/metrics"
	"golang.org/x/sync/errgroup"
)

type Service struct {
	store    interfaces.Store
	protocol *challenge.Protocol
	audit    *audit.Recorder
	cfg      *config.Config
	clock    clock.Clock
	log      *slog.Logger
}

func NewService(store interfaces.Store, protocol *challenge.Protocol, recorder *audit.Recorder, cfg *config.Config, clk clock.Clock, log *slog.Logger) *Service {
	return &Service{
		store:    store,
		protocol: protocol,
		audit:    recorder,
		cfg:      cfg,
		clock:    clk,
		log:      log.With(slog.String("component", "activation")),
	}
}

// ActivationResult is returned by ActivateWallet. RotationChallenge is set
// when the device should rotate its shares.
type ActivationResult struct {
	AuthShare         string
	RotationChallenge *interfaces.Challenge
}

// ShareUpdate carries a freshly split share pair.
type ShareUpdate struct {
	AuthShare            string
	DeviceShareHash      string
	DeviceSharePublicKey string
	ChallengeSolution    string
}

type RegistrationResult struct {
	Wallet         *interfaces.Wallet
	NextRotationAt time.Time
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}

// Invalidated reports whether a work share may no longer be used.
func Invalidated(cfg *config.Config, share *interfaces.WorkKeyShare, now time.Time) bool {
	return share.RotationWarnings >= cfg.ShareMaxRotationIgnores ||
		now.Sub(share.SharesRotatedAt) >= cfg.ShareInactiveTTL
}

// GenerateWalletActivationChallenge issues an ACTIVATION challenge verified
// by the device key of the caller's work share.
func (s *Service) GenerateWalletActivationChallenge(ctx context.Context, session *interfaces.Session, walletID string) (*interfaces.Challenge, error) {
	entry := audit.Entry{UserID: session.UserID, WalletID: walletID}
	entry.DeviceAndLocationID = s.audit.RecordDevice(ctx, session)

	c, err := s.generateActivationChallenge(ctx, session, walletID, &entry)
	if err != nil {
		s.audit.ActivationFailed(ctx, entry, err)
		return nil, err
	}
	return c, nil
}

func (s *Service) generateActivationChallenge(ctx context.Context, session *interfaces.Session, walletID string, entry *audit.Entry) (*interfaces.Challenge, error) {
	wallet, err := interfaces.OwnedWallet(ctx, s.store, session.UserID, walletID)
	if err != nil {
		return nil, err
	}
	share, err := s.store.GetWorkKeyShare(ctx, session.UserID, walletID, session.DeviceNonce)
	if err != nil {
		return nil, err
	}
	entry.ShareID = share.ID
	if wallet.Status != interfaces.WalletStatusEnabled {
		return nil, interfaces.ErrWalletNotEnabled
	}

	c, err := s.protocol.NewChallenge(interfaces.PurposeActivation, share.DeviceSharePublicKey, session.IP, session.UserID, walletID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpsertChallenge(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ActivateWallet verifies an ACTIVATION solution and returns the auth share.
func (s *Service) ActivateWallet(ctx context.Context, session *interfaces.Session, walletID, solution string) (*ActivationResult, error) {
	entry := audit.Entry{UserID: session.UserID, WalletID: walletID}
	entry.DeviceAndLocationID = s.audit.RecordDevice(ctx, session)

	res, err := s.activate(ctx, session, walletID, solution, &entry)
	if err != nil {
		s.audit.ActivationFailed(ctx, entry, err)
		return nil, err
	}
	return res, nil
}

func (s *Service) activate(ctx context.Context, session *interfaces.Session, walletID, solution string, entry *audit.Entry) (*ActivationResult, error) {
	var (
		c                 *interfaces.Challenge
		wallet            *interfaces.Wallet
		share             *interfaces.WorkKeyShare
		cErr, wErr, shErr error
	)

	// The challenge is consumed whatever the outcome.
	var g errgroup.Group
	g.Go(func() error {
		c, cErr = s.store.ConsumeChallenge(ctx, session.UserID, interfaces.PurposeActivation)
		return nil
	})
	g.Go(func() error {
		wallet, wErr = interfaces.OwnedWallet(ctx, s.store, session.UserID, walletID)
		return nil
	})
	g.Go(func() error {
		share, shErr = s.store.GetWorkKeyShare(ctx, session.UserID, walletID, session.DeviceNonce)
		return nil
	})
	_ = g.Wait()

	if wErr != nil {
		return nil, wErr
	}
	if shErr != nil {
		return nil, shErr
	}
	entry.ShareID = share.ID

	now := s.now()
	if Invalidated(s.cfg, share, now) {
		s.invalidate(ctx, share, now)
		return nil, interfaces.ErrWorkShareInvalidated
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

	if err := s.protocol.VerifyChallenge(c, session, share.DeviceShareHash, solution, share.DeviceSharePublicKey); err != nil {
		s.log.Warn("Activation challenge rejected",
			slog.String("walletID", walletID),
			slog.String("kind", string(challenge.KindOf(err))))
		return nil, interfaces.ErrChallengeFailed
	}

	var (
		rotation *interfaces.Challenge
		current  *interfaces.WorkKeyShare
	)
	err := interfaces.RunInTx(ctx, s.store, func(tx interfaces.UnitOfWork) error {
		// Rows read above may predate a status change or rotation.
		w, err := interfaces.EnabledWallet(ctx, tx, session.UserID, walletID)
		if err != nil {
			return err
		}
		current, err = tx.GetWorkKeyShare(ctx, session.UserID, walletID, session.DeviceNonce)
		if err != nil {
			return err
		}
		if !sameShare(current, share) {
			return fmt.Errorf("%w: work share was rotated", interfaces.ErrChallengeFailed)
		}
		if Invalidated(s.cfg, current, now) {
			return interfaces.ErrWorkShareInvalidated
		}

		if s.rotationDue(current, now) {
			rotation, err = s.protocol.NewChallenge(interfaces.PurposeShareRotation, rotationKey(w, current), session.IP, session.UserID, walletID)
			if err != nil {
				return err
			}
			if err := tx.UpsertChallenge(ctx, rotation); err != nil {
				return err
			}
			current.RotationWarnings++
		}
		current.SessionID = session.ID
		current.UpdatedAt = now

		w.ActivationCount++
		w.LastActivatedAt = &now
		w.UpdatedAt = now

		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}
		if err := tx.SaveWorkKeyShare(ctx, current); err != nil {
			return err
		}
		return s.audit.Activation(ctx, tx, *entry)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Wallet activated",
		slog.String("walletID", walletID),
		slog.String("userID", session.UserID),
		slog.Bool("rotationRequested", rotation != nil),
		slog.Int("rotationWarnings", current.RotationWarnings))

	return &ActivationResult{AuthShare: current.AuthShare, RotationChallenge: rotation}, nil
}

// sameShare reports whether b still holds the split and device key of a.
func sameShare(a, b *interfaces.WorkKeyShare) bool {
	return a.ID == b.ID &&
		a.AuthShare == b.AuthShare &&
		a.DeviceShareHash == b.DeviceShareHash &&
		a.DeviceSharePublicKey == b.DeviceSharePublicKey
}

func (s *Service) invalidate(ctx context.Context, share *interfaces.WorkKeyShare, now time.Time) {
	s.log.Warn("Invalidating work share",
		slog.String("shareID", share.ID),
		slog.String("walletID", share.WalletID),
		slog.Int("rotationWarnings", share.RotationWarnings),
		slog.Duration("sinceRotation", now.Sub(share.SharesRotatedAt)))
	if err := s.store.DeleteWorkKeyShare(ctx, share.ID); err != nil {
		s.log.Error("Failed to delete invalidated work share", slog.String("shareID", share.ID), "err", err)
		return
	}
	metrics.ShareInvalidations.Inc()
}

// rotationDue reports whether activation should ask for new shares: the
// share is older than the active TTL, or its device key is not of the
// preferred version.
func (s *Service) rotationDue(share *interfaces.WorkKeyShare, now time.Time) bool {
	if now.Sub(share.SharesRotatedAt) >= s.cfg.ShareActiveTTL {
		return true
	}
	v, err := s.protocol.Registry().VersionFor(share.DeviceSharePublicKey)
	if err != nil {
		return true
	}
	return string(v) != s.cfg.PreferredDeviceKeyVersion
}

// rotationKey is the key that verifies a SHARE_ROTATION challenge: the
// wallet key, or the current device key for wallets without one.
func rotationKey(wallet *interfaces.Wallet, share *interfaces.WorkKeyShare) string {
	if wallet.PublicKey != "" {
		return wallet.PublicKey
	}
	return share.DeviceSharePublicKey
}

func (s *Service) validateUpdate(u *ShareUpdate) error {
	if err := cryptoutils.ValidateShare(u.AuthShare); err != nil {
		return fmt.Errorf("%w: auth share: %v", interfaces.ErrInvalidShare, err)
	}
	if err := cryptoutils.ValidateShareHash(u.DeviceShareHash); err != nil {
		return fmt.Errorf("%w: device share hash: %v", interfaces.ErrInvalidShare, err)
	}
	if _, err := s.protocol.Registry().VersionFor(u.DeviceSharePublicKey); err != nil {
		return fmt.Errorf("%w: device share public key: %v", interfaces.ErrInvalidPublicKey, err)
	}
	if u.ChallengeSolution == "" {
		return interfaces.BadRequest("challenge solution is required")
	}
	return nil
}

// consumeRotation checks the wallet and consumes the caller's SHARE_ROTATION
// challenge concurrently. The wallet is read again by the writing
// transaction.
func (s *Service) consumeRotation(ctx context.Context, session *interfaces.Session, walletID string) (*interfaces.Challenge, error) {
	var (
		c          *interfaces.Challenge
		wallet     *interfaces.Wallet
		cErr, wErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		c, cErr = s.store.ConsumeChallenge(ctx, session.UserID, interfaces.PurposeShareRotation)
		return nil
	})
	g.Go(func() error {
		wallet, wErr = interfaces.OwnedWallet(ctx, s.store, session.UserID, walletID)
		return nil
	})
	_ = g.Wait()

	if wErr != nil {
		return nil, wErr
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
	return c, nil
}

// RotateAuthShare replaces the caller's share pair. The SHARE_ROTATION
// challenge is verified against the key recorded when it was issued. A
// device without a share gets a new one, which is how a recovered device
// is re-provisioned.
func (s *Service) RotateAuthShare(ctx context.Context, session *interfaces.Session, walletID string, u *ShareUpdate) (time.Time, error) {
	entry := audit.Entry{UserID: session.UserID, WalletID: walletID}
	entry.DeviceAndLocationID = s.audit.RecordDevice(ctx, session)

	next, err := s.rotate(ctx, session, walletID, u, &entry)
	if err != nil {
		s.audit.ActivationFailed(ctx, entry, err)
		return time.Time{}, err
	}
	metrics.ShareRotations.Inc()
	return next, nil
}

func (s *Service) rotate(ctx context.Context, session *interfaces.Session, walletID string, u *ShareUpdate, entry *audit.Entry) (time.Time, error) {
	if err := s.validateUpdate(u); err != nil {
		return time.Time{}, err
	}
	c, err := s.consumeRotation(ctx, session, walletID)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.protocol.VerifyChallenge(c, session, "", u.ChallengeSolution, c.PublicKey); err != nil {
		s.log.Warn("Rotation challenge rejected",
			slog.String("walletID", walletID),
			slog.String("kind", string(challenge.KindOf(err))))
		return time.Time{}, interfaces.ErrChallengeFailed
	}

	now := s.now()
	err = interfaces.RunInTx(ctx, s.store, func(tx interfaces.UnitOfWork) error {
		wallet, err := interfaces.EnabledWallet(ctx, tx, session.UserID, walletID)
		if err != nil {
			return err
		}
		share, err := tx.GetWorkKeyShare(ctx, session.UserID, walletID, session.DeviceNonce)
		save := tx.SaveWorkKeyShare
		switch {
		case errors.Is(err, interfaces.ErrWorkShareNotFound):
			save = tx.CreateWorkKeyShare
			share = &interfaces.WorkKeyShare{
				ID:          uuid.NewString(),
				UserID:      session.UserID,
				WalletID:    walletID,
				DeviceNonce: session.DeviceNonce,
				CreatedAt:   now,
			}
		case err != nil:
			return err
		}
		entry.ShareID = share.ID

		share.AuthShare = u.AuthShare
		share.DeviceShareHash = u.DeviceShareHash
		share.DeviceSharePublicKey = u.DeviceSharePublicKey
		share.RotationWarnings = 0
		share.SharesRotatedAt = now
		share.SessionID = session.ID
		share.UpdatedAt = now
		if err := save(ctx, share); err != nil {
			return err
		}

		wallet.RotationCount++
		wallet.LastRotatedAt = &now
		wallet.UpdatedAt = now
		if err := tx.SaveWallet(ctx, wallet); err != nil {
			return err
		}
		return s.audit.Activation(ctx, tx, *entry)
	})
	if err != nil {
		return time.Time{}, err
	}

	s.log.Info("Auth share rotated",
		slog.String("walletID", walletID),
		slog.String("userID", session.UserID),
		slog.String("shareID", entry.ShareID))
	return now.Add(s.cfg.ShareActiveTTL), nil
}

// RegisterAuthShare stores the first share pair of a device, proven by the
// registration challenge issued with the wallet.
func (s *Service) RegisterAuthShare(ctx context.Context, session *interfaces.Session, walletID string, u *ShareUpdate) (*RegistrationResult, error) {
	entry := audit.Entry{UserID: session.UserID, WalletID: walletID}
	entry.DeviceAndLocationID = s.audit.RecordDevice(ctx, session)

	res, err := s.register(ctx, session, walletID, u, &entry)
	if err != nil {
		s.audit.ActivationFailed(ctx, entry, err)
		return nil, err
	}
	return res, nil
}

func (s *Service) register(ctx context.Context, session *interfaces.Session, walletID string, u *ShareUpdate, entry *audit.Entry) (*RegistrationResult, error) {
	if err := s.validateUpdate(u); err != nil {
		return nil, err
	}
	c, err := s.consumeRotation(ctx, session, walletID)
	if err != nil {
		return nil, err
	}

	key := c.PublicKey
	if key == "" {
		key = u.DeviceSharePublicKey
	}
	if err := s.protocol.VerifyChallenge(c, session, "", u.ChallengeSolution, key); err != nil {
		s.log.Warn("Registration challenge rejected",
			slog.String("walletID", walletID),
			slog.String("kind", string(challenge.KindOf(err))))
		return nil, interfaces.ErrChallengeFailed
	}

	now := s.now()
	share := &interfaces.WorkKeyShare{
		ID:                   uuid.NewString(),
		UserID:               session.UserID,
		WalletID:             walletID,
		DeviceNonce:          session.DeviceNonce,
		AuthShare:            u.AuthShare,
		DeviceShareHash:      u.DeviceShareHash,
		DeviceSharePublicKey: u.DeviceSharePublicKey,
		SharesRotatedAt:      now,
		SessionID:            session.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	entry.ShareID = share.ID

	var wallet *interfaces.Wallet
	err = interfaces.RunInTx(ctx, s.store, func(tx interfaces.UnitOfWork) error {
		w, err := interfaces.EnabledWallet(ctx, tx, session.UserID, walletID)
		if err != nil {
			return err
		}
		if err := tx.CreateWorkKeyShare(ctx, share); err != nil {
			return err
		}
		w.ActivationCount++
		w.LastActivatedAt = &now
		w.UpdatedAt = now
		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}
		wallet = w
		return s.audit.Activation(ctx, tx, *entry)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Auth share registered",
		slog.String("walletID", walletID),
		slog.String("userID", session.UserID),
		slog.String("shareID", share.ID))
	return &RegistrationResult{Wallet: wallet, NextRotationAt: now.Add(s.cfg.ShareActiveTTL)}, nil
}
