package db

import (
	"context"

	"github.com/pkg/errors"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"gorm.io/gorm"
)

func (r *repositories) GetProfile(ctx context.Context, userID string) (*interfaces.UserProfile, error) {
	var row UserProfile
	err := r.conn(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrProfileNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load profile")
	}
	return row.entity(), nil
}

// GetProfiles skips ids without a profile.
func (r *repositories) GetProfiles(ctx context.Context, userIDs []string) ([]*interfaces.UserProfile, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var rows []UserProfile
	if err := r.conn(ctx).Where("user_id IN ?", userIDs).Order("user_id ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to load profiles")
	}
	out := make([]*interfaces.UserProfile, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].entity())
	}
	return out, nil
}

func (r *repositories) SaveProfile(ctx context.Context, p *interfaces.UserProfile) error {
	return errors.Wrap(r.conn(ctx).Save(profileRow(p)).Error, "failed to save profile")
}

func (r *repositories) DeleteProfile(ctx context.Context, userID string) error {
	err := r.conn(ctx).Where("user_id = ?", userID).Delete(&UserProfile{}).Error
	return errors.Wrap(err, "failed to delete profile")
}
