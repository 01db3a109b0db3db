package db

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"gorm.io/gorm"
)

func (r *repositories) GetSession(ctx context.Context, id string) (*interfaces.Session, error) {
	var row Session
	err := r.conn(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load session")
	}
	return row.entity(), nil
}

func (r *repositories) CreateSession(ctx context.Context, s *interfaces.Session) error {
	return errors.Wrap(r.conn(ctx).Create(sessionRow(s)).Error, "failed to create session")
}

func (r *repositories) SaveSession(ctx context.Context, s *interfaces.Session) error {
	return errors.Wrap(r.conn(ctx).Save(sessionRow(s)).Error, "failed to save session")
}

func (r *repositories) CreateDeviceAndLocation(ctx context.Context, d *interfaces.DeviceAndLocation) error {
	row := &DeviceAndLocation{
		ID:          d.ID,
		UserID:      d.UserID,
		DeviceNonce: d.DeviceNonce,
		IP:          d.IP,
		CountryCode: d.CountryCode,
		UserAgent:   d.UserAgent,
		CreatedAt:   utc(d.CreatedAt),
	}
	return errors.Wrap(r.conn(ctx).Create(row).Error, "failed to create device and location")
}

func (r *repositories) DeleteOrphanDeviceAndLocations(ctx context.Context, userID string, before time.Time) (int64, error) {
	db := r.conn(ctx)
	q := db.Where("created_at < ?", before.UTC()).
		Where("id NOT IN (?)", db.Model(&WalletActivation{}).Select("device_and_location_id")).
		Where("id NOT IN (?)", db.Model(&WalletRecovery{}).Select("device_and_location_id")).
		Where("id NOT IN (?)", db.Model(&RecoveryKeyShare{}).Select("device_and_location_id"))
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	res := q.Delete(&DeviceAndLocation{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "failed to delete orphan device and location rows")
	}
	return res.RowsAffected, nil
}
