package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ruteri/embedded-wallet-custody/audit"
	"github.com/ruteri/embedded-wallet-custody/challenge"
	"github.com/ruteri/embedded-wallet-custody/cryptoutils"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
)

// RecoverableAccount is an account discovered through one of its wallets.
// Profile fields are blank unless the profile marks them public.
type RecoverableAccount struct {
	UserID  string
	Name    string
	Email   string
	Phone   string
	Picture string
}

func recoverableAccount(userID string, p *interfaces.UserProfile) RecoverableAccount {
	a := RecoverableAccount{UserID: userID}
	if p == nil {
		return a
	}
	if p.NamePublic {
		a.Name = p.Name
	}
	if p.EmailPublic {
		a.Email = p.Email
	}
	if p.PhonePublic {
		a.Phone = p.Phone
	}
	if p.PicturePublic {
		a.Picture = p.Picture
	}
	return a
}

func validateAddress(chain interfaces.Chain, address string) error {
	var err error
	switch chain {
	case interfaces.ChainArweave:
		err = cryptoutils.ValidateArweaveAddress(address)
	case interfaces.ChainSolana:
		err = cryptoutils.ValidateSolanaAddress(address)
	default:
		return interfaces.BadRequest("unsupported chain %q", chain)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrInvalidAddress, err)
	}
	return nil
}

// eligibleWallets returns the recovery-eligible wallets on the address,
// optionally restricted to one owner.
func (s *Service) eligibleWallets(ctx context.Context, chain interfaces.Chain, address, userID string) ([]*interfaces.Wallet, error) {
	all, err := s.store.FindWalletsByAddress(ctx, chain, address)
	if err != nil {
		return nil, err
	}
	var out []*interfaces.Wallet
	for _, w := range all {
		if !w.RecoveryEligible() {
			continue
		}
		if userID != "" && w.UserID != userID {
			continue
		}
		out = append(out, w)
	}
	if len(out) == 0 {
		return nil, interfaces.ErrRecoverableAccountsNotFound
	}
	return out, nil
}

// GenerateFetchRecoverableAccountsChallenge issues an anonymous challenge for
// the key behind (chain, address).
func (s *Service) GenerateFetchRecoverableAccountsChallenge(ctx context.Context, chain interfaces.Chain, address string) (*interfaces.AnonChallenge, error) {
	if err := validateAddress(chain, address); err != nil {
		return nil, err
	}
	wallets, err := s.eligibleWallets(ctx, chain, address, "")
	if err != nil {
		return nil, err
	}

	c, err := s.protocol.NewAnonChallenge(interfaces.PurposeFetchRecoverableAccounts, wallets[0].PublicKey, chain, address, "")
	if err != nil {
		return nil, err
	}
	if err := s.store.UpsertAnonChallenge(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// consumeAnon consumes an anonymous challenge of the given purpose and
// verifies the solution against the key it was issued for.
func (s *Service) consumeAnon(ctx context.Context, challengeID, solution string, purpose interfaces.ChallengePurpose) (*interfaces.AnonChallenge, error) {
	c, err := s.store.ConsumeAnonChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if c.Purpose != purpose {
		return nil, fmt.Errorf("%w: challenge issued for %s", interfaces.ErrChallengeNotFound, c.Purpose)
	}
	if err := s.protocol.VerifyAnonChallenge(c, solution, c.PublicKey); err != nil {
		s.log.Warn("Anonymous challenge rejected",
			slog.String("purpose", string(purpose)),
			slog.String("chain", string(c.Chain)),
			slog.String("kind", string(challenge.KindOf(err))))
		return nil, interfaces.ErrChallengeFailed
	}
	return c, nil
}

// FetchRecoverableAccounts lists the accounts owning a recovery-eligible
// wallet on the proven address.
func (s *Service) FetchRecoverableAccounts(ctx context.Context, challengeID, solution string) ([]RecoverableAccount, error) {
	c, err := s.consumeAnon(ctx, challengeID, solution, interfaces.PurposeFetchRecoverableAccounts)
	if err != nil {
		return nil, err
	}
	wallets, err := s.eligibleWallets(ctx, c.Chain, c.Address, "")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var userIDs []string
	for _, w := range wallets {
		if !seen[w.UserID] {
			seen[w.UserID] = true
			userIDs = append(userIDs, w.UserID)
		}
	}
	sort.Strings(userIDs)

	profiles, err := s.store.GetProfiles(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	byUser := make(map[string]*interfaces.UserProfile, len(profiles))
	for _, p := range profiles {
		byUser[p.UserID] = p
	}

	accounts := make([]RecoverableAccount, 0, len(userIDs))
	for _, id := range userIDs {
		accounts = append(accounts, recoverableAccount(id, byUser[id]))
	}
	return accounts, nil
}

// FetchRecoverableAccountWallets lists the PUBLIC wallets of an account
// discovered through the proven address.
func (s *Service) FetchRecoverableAccountWallets(ctx context.Context, userID, challengeID, solution string) ([]*interfaces.Wallet, error) {
	c, err := s.consumeAnon(ctx, challengeID, solution, interfaces.PurposeFetchRecoverableAccounts)
	if err != nil {
		return nil, err
	}
	if _, err := s.eligibleWallets(ctx, c.Chain, c.Address, userID); err != nil {
		return nil, err
	}

	all, err := s.store.ListWallets(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []*interfaces.Wallet
	for _, w := range all {
		if w.Privacy == interfaces.WalletPrivacyPublic {
			out = append(out, w)
		}
	}
	return out, nil
}

// GenerateAccountRecoveryChallenge issues an anonymous ACCOUNT_RECOVERY
// challenge bound to userID and verified by that account's wallet on
// (chain, address).
func (s *Service) GenerateAccountRecoveryChallenge(ctx context.Context, chain interfaces.Chain, address, userID string) (*interfaces.AnonChallenge, error) {
	if err := validateAddress(chain, address); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, interfaces.BadRequest("user id is required")
	}
	wallets, err := s.eligibleWallets(ctx, chain, address, userID)
	if err != nil {
		return nil, err
	}

	c, err := s.protocol.NewAnonChallenge(interfaces.PurposeAccountRecovery, wallets[0].PublicKey, chain, address, userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpsertAnonChallenge(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RecoverAccount re-links the caller's session to oldUserID after the
// caller proves control of one of its recovery-eligible wallets.
//
// The caller's current profile is dropped and its fields fill the gaps of
// the old profile. Every work share of the old account is deleted, so each
// device must activate again. Generated wallets that never got a recovery
// share are marked LOST.
func (s *Service) RecoverAccount(ctx context.Context, session *interfaces.Session, oldUserID, challengeID, solution string) (*interfaces.UserProfile, error) {
	newUserID := session.UserID
	if oldUserID == "" || oldUserID == newUserID {
		return nil, interfaces.BadRequest("cannot recover the current account")
	}

	entry := audit.Entry{UserID: newUserID}
	entry.DeviceAndLocationID = s.audit.RecordDevice(ctx, session)

	profile, err := s.recoverAccount(ctx, session, oldUserID, challengeID, solution, &entry)
	if err != nil {
		s.audit.RecoveryFailed(ctx, entry, err)
		return nil, err
	}

	cutoff := s.now()
	s.cleanup.Go("delete-abandoned-account-devices", func(ctx context.Context) error {
		_, err := s.store.DeleteOrphanDeviceAndLocations(ctx, newUserID, cutoff)
		return err
	})
	return profile, nil
}

func (s *Service) recoverAccount(ctx context.Context, session *interfaces.Session, oldUserID, challengeID, solution string, entry *audit.Entry) (*interfaces.UserProfile, error) {
	newUserID := session.UserID

	c, err := s.store.ConsumeAnonChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if c.Purpose != interfaces.PurposeAccountRecovery || c.UserID != oldUserID {
		return nil, fmt.Errorf("%w: challenge not issued for this account", interfaces.ErrChallengeNotFound)
	}
	wallets, err := s.eligibleWallets(ctx, c.Chain, c.Address, oldUserID)
	if err != nil {
		return nil, err
	}
	proof := wallets[0]
	entry.WalletID = proof.ID

	if err := s.protocol.VerifyAnonChallenge(c, solution, proof.PublicKey); err != nil {
		s.log.Warn("Account recovery challenge rejected",
			slog.String("oldUserID", oldUserID),
			slog.String("kind", string(challenge.KindOf(err))))
		return nil, interfaces.ErrChallengeFailed
	}

	owned, err := s.store.ListWallets(ctx, newUserID)
	if err != nil {
		return nil, err
	}
	if len(owned) > 0 {
		return nil, interfaces.BadRequest("the current account already owns wallets")
	}

	now := s.now()
	var merged *interfaces.UserProfile
	var lost int
	err = interfaces.RunInTx(ctx, s.store, func(tx interfaces.UnitOfWork) error {
		current, err := tx.GetProfile(ctx, newUserID)
		if err != nil && !isNotFound(err) {
			return err
		}
		old, err := tx.GetProfile(ctx, oldUserID)
		if isNotFound(err) {
			old = &interfaces.UserProfile{UserID: oldUserID, CreatedAt: now}
		} else if err != nil {
			return err
		}

		if current != nil {
			if err := tx.DeleteProfile(ctx, newUserID); err != nil {
				return err
			}
			mergeProfile(old, current)
		}
		old.RecoveredAt = &now
		old.UpdatedAt = now
		if err := tx.SaveProfile(ctx, old); err != nil {
			return err
		}
		merged = old

		session.UserID = oldUserID
		session.UpdatedAt = now
		if err := tx.SaveSession(ctx, session); err != nil {
			return err
		}

		if _, err := tx.DeleteWorkKeySharesByUser(ctx, oldUserID); err != nil {
			return err
		}

		wallets, err := tx.ListWallets(ctx, oldUserID)
		if err != nil {
			return err
		}
		for _, w := range wallets {
			if w.Source != interfaces.WalletSourceGenerated || w.CanBeRecovered || w.Status.Terminal() {
				continue
			}
			w.Status = interfaces.WalletStatusLost
			w.UpdatedAt = now
			if err := tx.SaveWallet(ctx, w); err != nil {
				return err
			}
			if _, err := tx.DeleteRecoveryKeySharesByWallet(ctx, w.ID); err != nil {
				return err
			}
			if _, err := tx.DeleteChallengesByWallet(ctx, w.ID); err != nil {
				return err
			}
			lost++
		}

		entry.UserID = oldUserID
		return s.audit.Recovery(ctx, tx, *entry)
	})
	if err != nil {
		session.UserID = newUserID
		return nil, err
	}

	s.log.Info("Account recovered",
		slog.String("oldUserID", oldUserID),
		slog.String("newUserID", newUserID),
		slog.String("sessionID", session.ID),
		slog.Int("walletsLost", lost))
	return merged, nil
}

// mergeProfile fills empty fields of dst from src.
func mergeProfile(dst, src *interfaces.UserProfile) {
	if dst.Name == "" {
		dst.Name, dst.NamePublic = src.Name, src.NamePublic
	}
	if dst.Email == "" {
		dst.Email, dst.EmailPublic = src.Email, src.EmailPublic
	}
	if dst.Phone == "" {
		dst.Phone, dst.PhonePublic = src.Phone, src.PhonePublic
	}
	if dst.Picture == "" {
		dst.Picture, dst.PicturePublic = src.Picture, src.PicturePublic
	}
}
