package db

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"gorm.io/gorm"
)

func (r *repositories) UpsertChallenge(ctx context.Context, c *interfaces.Challenge) error {
	row := challengeRow(c)
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND purpose = ?", row.UserID, row.Purpose).Delete(&Challenge{}).Error; err != nil {
			return err
		}
		return tx.Create(row).Error
	})
	return errors.Wrap(err, "failed to upsert challenge")
}

func (r *repositories) ConsumeChallenge(ctx context.Context, userID string, purpose interfaces.ChallengePurpose) (*interfaces.Challenge, error) {
	var row Challenge
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND purpose = ?", userID, string(purpose)).First(&row).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", row.ID).Delete(&Challenge{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// A concurrent attempt consumed it first.
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrChallengeNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to consume challenge")
	}
	return row.entity(), nil
}

func (r *repositories) DeleteChallenge(ctx context.Context, userID string, purpose interfaces.ChallengePurpose) error {
	err := r.conn(ctx).Where("user_id = ? AND purpose = ?", userID, string(purpose)).Delete(&Challenge{}).Error
	return errors.Wrap(err, "failed to delete challenge")
}

func (r *repositories) DeleteChallengesByWallet(ctx context.Context, walletID string) (int64, error) {
	res := r.conn(ctx).Where("wallet_id = ?", walletID).Delete(&Challenge{})
	return res.RowsAffected, errors.Wrap(res.Error, "failed to delete wallet challenges")
}

func (r *repositories) UpsertAnonChallenge(ctx context.Context, c *interfaces.AnonChallenge) error {
	row := anonChallengeRow(c)
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chain = ? AND address = ? AND purpose = ?", row.Chain, row.Address, row.Purpose).Delete(&AnonChallenge{}).Error; err != nil {
			return err
		}
		return tx.Create(row).Error
	})
	return errors.Wrap(err, "failed to upsert anonymous challenge")
}

func (r *repositories) ConsumeAnonChallenge(ctx context.Context, id string) (*interfaces.AnonChallenge, error) {
	var row AnonChallenge
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&AnonChallenge{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrChallengeNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to consume anonymous challenge")
	}
	return row.entity(), nil
}

func (r *repositories) DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("created_at < ?", before.UTC()).Delete(&Challenge{})
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected

		res = tx.Where("created_at < ?", before.UTC()).Delete(&AnonChallenge{})
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete expired challenges")
	}
	return total, nil
}
