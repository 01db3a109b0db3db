package db

import (
	"context"

	"github.com/pkg/errors"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"gorm.io/gorm"
)

func (r *repositories) CreateWallet(ctx context.Context, w *interfaces.Wallet) error {
	err := r.conn(ctx).Create(walletRow(w)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return interfaces.BadRequest("wallet %s is already registered on %s", w.Address, w.Chain)
	}
	return errors.Wrap(err, "failed to create wallet")
}

func (r *repositories) GetWallet(ctx context.Context, id string) (*interfaces.Wallet, error) {
	var row Wallet
	err := r.conn(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrWalletNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load wallet")
	}
	return row.entity(), nil
}

func (r *repositories) ListWallets(ctx context.Context, userID string) ([]*interfaces.Wallet, error) {
	var rows []Wallet
	if err := r.conn(ctx).Where("user_id = ?", userID).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list wallets")
	}
	return walletEntities(rows), nil
}

func (r *repositories) FindWalletsByAddress(ctx context.Context, chain interfaces.Chain, address string) ([]*interfaces.Wallet, error) {
	var rows []Wallet
	err := r.conn(ctx).
		Where("chain = ? AND address = ?", string(chain), address).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find wallets by address")
	}
	return walletEntities(rows), nil
}

func (r *repositories) SaveWallet(ctx context.Context, w *interfaces.Wallet) error {
	err := r.conn(ctx).Save(walletRow(w)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return interfaces.BadRequest("wallet %s is already registered on %s", w.Address, w.Chain)
	}
	return errors.Wrap(err, "failed to save wallet")
}

func (r *repositories) DeleteWallet(ctx context.Context, id string) error {
	res := r.conn(ctx).Where("id = ?", id).Delete(&Wallet{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to delete wallet")
	}
	if res.RowsAffected == 0 {
		return interfaces.ErrWalletNotFound
	}
	return nil
}

func walletEntities(rows []Wallet) []*interfaces.Wallet {
	out := make([]*interfaces.Wallet, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].entity())
	}
	return out
}
