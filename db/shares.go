package db

import (
	"context"

	"github.com/pkg/errors"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"gorm.io/gorm"
)

func (r *repositories) GetWorkKeyShare(ctx context.Context, userID, walletID, deviceNonce string) (*interfaces.WorkKeyShare, error) {
	var row WorkKeyShare
	err := r.conn(ctx).
		Where("user_id = ? AND wallet_id = ? AND device_nonce = ?", userID, walletID, deviceNonce).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrWorkShareNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load work share")
	}
	return row.entity(), nil
}

func (r *repositories) CreateWorkKeyShare(ctx context.Context, s *interfaces.WorkKeyShare) error {
	err := r.conn(ctx).Create(workKeyShareRow(s)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return interfaces.ErrWorkShareExists
	}
	return errors.Wrap(err, "failed to create work share")
}

func (r *repositories) SaveWorkKeyShare(ctx context.Context, s *interfaces.WorkKeyShare) error {
	err := r.conn(ctx).Save(workKeyShareRow(s)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return interfaces.ErrWorkShareExists
	}
	return errors.Wrap(err, "failed to save work share")
}

func (r *repositories) DeleteWorkKeyShare(ctx context.Context, id string) error {
	err := r.conn(ctx).Where("id = ?", id).Delete(&WorkKeyShare{}).Error
	return errors.Wrap(err, "failed to delete work share")
}

func (r *repositories) DeleteWorkKeySharesByUser(ctx context.Context, userID string) (int64, error) {
	res := r.conn(ctx).Where("user_id = ?", userID).Delete(&WorkKeyShare{})
	return res.RowsAffected, errors.Wrap(res.Error, "failed to delete user work shares")
}

func (r *repositories) DeleteWorkKeySharesByWallet(ctx context.Context, walletID string) (int64, error) {
	res := r.conn(ctx).Where("wallet_id = ?", walletID).Delete(&WorkKeyShare{})
	return res.RowsAffected, errors.Wrap(res.Error, "failed to delete wallet work shares")
}

func (r *repositories) CreateRecoveryKeyShare(ctx context.Context, s *interfaces.RecoveryKeyShare) error {
	err := r.conn(ctx).Create(recoveryKeyShareRow(s)).Error
	return errors.Wrap(err, "failed to create recovery share")
}

func (r *repositories) GetRecoveryKeyShare(ctx context.Context, walletID, backupShareHash string) (*interfaces.RecoveryKeyShare, error) {
	var row RecoveryKeyShare
	err := r.conn(ctx).
		Where("wallet_id = ? AND recovery_backup_share_hash = ?", walletID, backupShareHash).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrRecoveryShareNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load recovery share")
	}
	return row.entity(), nil
}

func (r *repositories) DeleteRecoveryKeySharesByWallet(ctx context.Context, walletID string) (int64, error) {
	res := r.conn(ctx).Where("wallet_id = ?", walletID).Delete(&RecoveryKeyShare{})
	return res.RowsAffected, errors.Wrap(res.Error, "failed to delete wallet recovery shares")
}
