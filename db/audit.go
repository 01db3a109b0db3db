package db

import (
	"context"

	"github.com/pkg/errors"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
)

func (r *repositories) CreateWalletActivation(ctx context.Context, a *interfaces.WalletActivation) error {
	row := &WalletActivation{
		ID:                  a.ID,
		Status:              string(a.Status),
		UserID:              a.UserID,
		WalletID:            a.WalletID,
		WorkKeyShareID:      a.WorkKeyShareID,
		DeviceAndLocationID: a.DeviceAndLocationID,
		CreatedAt:           utc(a.CreatedAt),
	}
	return errors.Wrap(r.conn(ctx).Create(row).Error, "failed to record wallet activation")
}

func (r *repositories) CreateWalletRecovery(ctx context.Context, rec *interfaces.WalletRecovery) error {
	row := &WalletRecovery{
		ID:                  rec.ID,
		Status:              string(rec.Status),
		UserID:              rec.UserID,
		WalletID:            rec.WalletID,
		RecoveryKeyShareID:  rec.RecoveryKeyShareID,
		DeviceAndLocationID: rec.DeviceAndLocationID,
		CreatedAt:           utc(rec.CreatedAt),
	}
	return errors.Wrap(r.conn(ctx).Create(row).Error, "failed to record wallet recovery")
}

func (r *repositories) ListWalletActivations(ctx context.Context, walletID string) ([]*interfaces.WalletActivation, error) {
	var rows []WalletActivation
	if err := r.conn(ctx).Where("wallet_id = ?", walletID).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list wallet activations")
	}
	out := make([]*interfaces.WalletActivation, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].entity())
	}
	return out, nil
}

func (r *repositories) ListWalletRecoveries(ctx context.Context, walletID string) ([]*interfaces.WalletRecovery, error) {
	var rows []WalletRecovery
	if err := r.conn(ctx).Where("wallet_id = ?", walletID).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list wallet recoveries")
	}
	out := make([]*interfaces.WalletRecovery, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].entity())
	}
	return out, nil
}
