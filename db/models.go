package db

import (
	"time"

	"github.com/ruteri/embedded-wallet-custody/interfaces"
)

// Rows mirror the interfaces entities one to one. Pointers to time mark
// nullable timestamps. All timestamps are stored in UTC.

type Wallet struct {
	ID                       string `gorm:"primaryKey;size:36"`
	UserID                   string `gorm:"uniqueIndex:idx_wallet_owner;not null"`
	Chain                    string `gorm:"uniqueIndex:idx_wallet_owner;index:idx_wallet_address;not null"`
	Address                  string `gorm:"uniqueIndex:idx_wallet_owner;index:idx_wallet_address;not null"`
	PublicKey                string `gorm:"type:text"`
	Status                   string `gorm:"index;not null"`
	Privacy                  string `gorm:"not null"`
	Source                   string `gorm:"not null"`
	CanRecoverAccountSetting bool
	CanBeRecovered           bool
	ActivationCount          int
	LastActivatedAt          *time.Time
	RotationCount            int
	LastRotatedAt            *time.Time
	BackupCount              int
	LastBackedUpAt           *time.Time
	ExportCount              int
	LastExportedAt           *time.Time
	RecoveryCount            int
	LastRecoveredAt          *time.Time
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

type Challenge struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Type      string    `gorm:"not null"`
	Purpose   string    `gorm:"uniqueIndex:idx_challenge_scope;not null"`
	Value     []byte    `gorm:"not null"`
	Version   string    `gorm:"not null"`
	UserID    string    `gorm:"uniqueIndex:idx_challenge_scope;not null"`
	WalletID  string    `gorm:"index;not null;default:''"`
	PublicKey string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

type AnonChallenge struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Type      string    `gorm:"not null"`
	Purpose   string    `gorm:"uniqueIndex:idx_anon_challenge_scope;not null"`
	Value     []byte    `gorm:"not null"`
	Version   string    `gorm:"not null"`
	Chain     string    `gorm:"uniqueIndex:idx_anon_challenge_scope;not null"`
	Address   string    `gorm:"uniqueIndex:idx_anon_challenge_scope;not null"`
	PublicKey string    `gorm:"type:text"`
	UserID    string    `gorm:"not null;default:''"`
	CreatedAt time.Time `gorm:"index"`
}

type WorkKeyShare struct {
	ID                   string `gorm:"primaryKey;size:36"`
	UserID               string `gorm:"uniqueIndex:idx_work_share_device;not null"`
	WalletID             string `gorm:"uniqueIndex:idx_work_share_device;index;not null"`
	DeviceNonce          string `gorm:"uniqueIndex:idx_work_share_device;not null"`
	AuthShare            string `gorm:"type:text;not null"`
	DeviceShareHash      string `gorm:"not null"`
	DeviceSharePublicKey string `gorm:"type:text;not null"`
	SharesRotatedAt      time.Time
	RotationWarnings     int
	SessionID            string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type RecoveryKeyShare struct {
	ID                           string `gorm:"primaryKey;size:36"`
	UserID                       string `gorm:"index;not null"`
	WalletID                     string `gorm:"index:idx_recovery_share_hash;not null"`
	RecoveryAuthShare            string `gorm:"type:text;not null"`
	RecoveryBackupShareHash      string `gorm:"index:idx_recovery_share_hash;not null"`
	RecoveryBackupSharePublicKey string `gorm:"type:text;not null"`
	DeviceAndLocationID          string `gorm:"not null;default:''"`
	CreatedAt                    time.Time
}

type WalletActivation struct {
	ID                  string `gorm:"primaryKey;size:36"`
	Status              string `gorm:"not null"`
	UserID              string `gorm:"index;not null"`
	WalletID            string `gorm:"index;not null"`
	WorkKeyShareID      string `gorm:"not null;default:''"`
	DeviceAndLocationID string `gorm:"index;not null;default:''"`
	CreatedAt           time.Time
}

type WalletRecovery struct {
	ID                  string `gorm:"primaryKey;size:36"`
	Status              string `gorm:"not null"`
	UserID              string `gorm:"index;not null"`
	WalletID            string `gorm:"index;not null"`
	RecoveryKeyShareID  string `gorm:"not null;default:''"`
	DeviceAndLocationID string `gorm:"index;not null;default:''"`
	CreatedAt           time.Time
}

type Session struct {
	ID          string `gorm:"primaryKey;size:36"`
	UserID      string `gorm:"index;not null"`
	AuthUserID  string `gorm:"not null"`
	DeviceNonce string
	IP          string
	CountryCode string
	UserAgent   string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type DeviceAndLocation struct {
	ID          string `gorm:"primaryKey;size:36"`
	UserID      string `gorm:"index;not null"`
	DeviceNonce string
	IP          string
	CountryCode string
	UserAgent   string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"index"`
}

type UserProfile struct {
	UserID        string `gorm:"primaryKey"`
	Name          string
	Email         string
	Phone         string
	Picture       string `gorm:"type:text"`
	NamePublic    bool
	EmailPublic   bool
	PhonePublic   bool
	PicturePublic bool
	RecoveredAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func walletRow(w *interfaces.Wallet) *Wallet {
	return &Wallet{
		ID:                       w.ID,
		UserID:                   w.UserID,
		Chain:                    string(w.Chain),
		Address:                  w.Address,
		PublicKey:                w.PublicKey,
		Status:                   string(w.Status),
		Privacy:                  string(w.Privacy),
		Source:                   string(w.Source),
		CanRecoverAccountSetting: w.CanRecoverAccountSetting,
		CanBeRecovered:           w.CanBeRecovered,
		ActivationCount:          w.ActivationCount,
		LastActivatedAt:          utcPtr(w.LastActivatedAt),
		RotationCount:            w.RotationCount,
		LastRotatedAt:            utcPtr(w.LastRotatedAt),
		BackupCount:              w.BackupCount,
		LastBackedUpAt:           utcPtr(w.LastBackedUpAt),
		ExportCount:              w.ExportCount,
		LastExportedAt:           utcPtr(w.LastExportedAt),
		RecoveryCount:            w.RecoveryCount,
		LastRecoveredAt:          utcPtr(w.LastRecoveredAt),
		CreatedAt:                utc(w.CreatedAt),
		UpdatedAt:                utc(w.UpdatedAt),
	}
}

func (r *Wallet) entity() *interfaces.Wallet {
	return &interfaces.Wallet{
		ID:                       r.ID,
		UserID:                   r.UserID,
		Chain:                    interfaces.Chain(r.Chain),
		Address:                  r.Address,
		PublicKey:                r.PublicKey,
		Status:                   interfaces.WalletStatus(r.Status),
		Privacy:                  interfaces.WalletPrivacy(r.Privacy),
		Source:                   interfaces.WalletSource(r.Source),
		CanRecoverAccountSetting: r.CanRecoverAccountSetting,
		CanBeRecovered:           r.CanBeRecovered,
		ActivationCount:          r.ActivationCount,
		LastActivatedAt:          utcPtr(r.LastActivatedAt),
		RotationCount:            r.RotationCount,
		LastRotatedAt:            utcPtr(r.LastRotatedAt),
		BackupCount:              r.BackupCount,
		LastBackedUpAt:           utcPtr(r.LastBackedUpAt),
		ExportCount:              r.ExportCount,
		LastExportedAt:           utcPtr(r.LastExportedAt),
		RecoveryCount:            r.RecoveryCount,
		LastRecoveredAt:          utcPtr(r.LastRecoveredAt),
		CreatedAt:                utc(r.CreatedAt),
		UpdatedAt:                utc(r.UpdatedAt),
	}
}

func challengeRow(c *interfaces.Challenge) *Challenge {
	return &Challenge{
		ID:        c.ID,
		Type:      string(c.Type),
		Purpose:   string(c.Purpose),
		Value:     c.Value,
		Version:   c.Version,
		UserID:    c.UserID,
		WalletID:  c.WalletID,
		PublicKey: c.PublicKey,
		CreatedAt: utc(c.CreatedAt),
	}
}

func (r *Challenge) entity() *interfaces.Challenge {
	return &interfaces.Challenge{
		ID:        r.ID,
		Type:      interfaces.ChallengeType(r.Type),
		Purpose:   interfaces.ChallengePurpose(r.Purpose),
		Value:     r.Value,
		Version:   r.Version,
		CreatedAt: utc(r.CreatedAt),
		UserID:    r.UserID,
		WalletID:  r.WalletID,
		PublicKey: r.PublicKey,
	}
}

func anonChallengeRow(c *interfaces.AnonChallenge) *AnonChallenge {
	return &AnonChallenge{
		ID:        c.ID,
		Type:      string(c.Type),
		Purpose:   string(c.Purpose),
		Value:     c.Value,
		Version:   c.Version,
		Chain:     string(c.Chain),
		Address:   c.Address,
		PublicKey: c.PublicKey,
		UserID:    c.UserID,
		CreatedAt: utc(c.CreatedAt),
	}
}

func (r *AnonChallenge) entity() *interfaces.AnonChallenge {
	return &interfaces.AnonChallenge{
		ID:        r.ID,
		Type:      interfaces.ChallengeType(r.Type),
		Purpose:   interfaces.ChallengePurpose(r.Purpose),
		Value:     r.Value,
		Version:   r.Version,
		Chain:     interfaces.Chain(r.Chain),
		Address:   r.Address,
		CreatedAt: utc(r.CreatedAt),
		PublicKey: r.PublicKey,
		UserID:    r.UserID,
	}
}

func workKeyShareRow(s *interfaces.WorkKeyShare) *WorkKeyShare {
	return &WorkKeyShare{
		ID:                   s.ID,
		UserID:               s.UserID,
		WalletID:             s.WalletID,
		DeviceNonce:          s.DeviceNonce,
		AuthShare:            s.AuthShare,
		DeviceShareHash:      s.DeviceShareHash,
		DeviceSharePublicKey: s.DeviceSharePublicKey,
		SharesRotatedAt:      utc(s.SharesRotatedAt),
		RotationWarnings:     s.RotationWarnings,
		SessionID:            s.SessionID,
		CreatedAt:            utc(s.CreatedAt),
		UpdatedAt:            utc(s.UpdatedAt),
	}
}

func (r *WorkKeyShare) entity() *interfaces.WorkKeyShare {
	return &interfaces.WorkKeyShare{
		ID:                   r.ID,
		UserID:               r.UserID,
		WalletID:             r.WalletID,
		DeviceNonce:          r.DeviceNonce,
		AuthShare:            r.AuthShare,
		DeviceShareHash:      r.DeviceShareHash,
		DeviceSharePublicKey: r.DeviceSharePublicKey,
		SharesRotatedAt:      utc(r.SharesRotatedAt),
		RotationWarnings:     r.RotationWarnings,
		SessionID:            r.SessionID,
		CreatedAt:            utc(r.CreatedAt),
		UpdatedAt:            utc(r.UpdatedAt),
	}
}

func recoveryKeyShareRow(s *interfaces.RecoveryKeyShare) *RecoveryKeyShare {
	return &RecoveryKeyShare{
		ID:                           s.ID,
		UserID:                       s.UserID,
		WalletID:                     s.WalletID,
		RecoveryAuthShare:            s.RecoveryAuthShare,
		RecoveryBackupShareHash:      s.RecoveryBackupShareHash,
		RecoveryBackupSharePublicKey: s.RecoveryBackupSharePublicKey,
		DeviceAndLocationID:          s.DeviceAndLocationID,
		CreatedAt:                    utc(s.CreatedAt),
	}
}

func (r *RecoveryKeyShare) entity() *interfaces.RecoveryKeyShare {
	return &interfaces.RecoveryKeyShare{
		ID:                           r.ID,
		UserID:                       r.UserID,
		WalletID:                     r.WalletID,
		RecoveryAuthShare:            r.RecoveryAuthShare,
		RecoveryBackupShareHash:      r.RecoveryBackupShareHash,
		RecoveryBackupSharePublicKey: r.RecoveryBackupSharePublicKey,
		DeviceAndLocationID:          r.DeviceAndLocationID,
		CreatedAt:                    utc(r.CreatedAt),
	}
}

func (r *WalletActivation) entity() *interfaces.WalletActivation {
	return &interfaces.WalletActivation{
		ID:                  r.ID,
		Status:              interfaces.AuditStatus(r.Status),
		UserID:              r.UserID,
		WalletID:            r.WalletID,
		WorkKeyShareID:      r.WorkKeyShareID,
		DeviceAndLocationID: r.DeviceAndLocationID,
		CreatedAt:           utc(r.CreatedAt),
	}
}

func (r *WalletRecovery) entity() *interfaces.WalletRecovery {
	return &interfaces.WalletRecovery{
		ID:                  r.ID,
		Status:              interfaces.AuditStatus(r.Status),
		UserID:              r.UserID,
		WalletID:            r.WalletID,
		RecoveryKeyShareID:  r.RecoveryKeyShareID,
		DeviceAndLocationID: r.DeviceAndLocationID,
		CreatedAt:           utc(r.CreatedAt),
	}
}

func sessionRow(s *interfaces.Session) *Session {
	return &Session{
		ID:          s.ID,
		UserID:      s.UserID,
		AuthUserID:  s.AuthUserID,
		DeviceNonce: s.DeviceNonce,
		IP:          s.IP,
		CountryCode: s.CountryCode,
		UserAgent:   s.UserAgent,
		CreatedAt:   utc(s.CreatedAt),
		UpdatedAt:   utc(s.UpdatedAt),
	}
}

func (r *Session) entity() *interfaces.Session {
	return &interfaces.Session{
		ID:          r.ID,
		UserID:      r.UserID,
		AuthUserID:  r.AuthUserID,
		DeviceNonce: r.DeviceNonce,
		IP:          r.IP,
		CountryCode: r.CountryCode,
		UserAgent:   r.UserAgent,
		CreatedAt:   utc(r.CreatedAt),
		UpdatedAt:   utc(r.UpdatedAt),
	}
}

func profileRow(p *interfaces.UserProfile) *UserProfile {
	return &UserProfile{
		UserID:        p.UserID,
		Name:          p.Name,
		Email:         p.Email,
		Phone:         p.Phone,
		Picture:       p.Picture,
		NamePublic:    p.NamePublic,
		EmailPublic:   p.EmailPublic,
		PhonePublic:   p.PhonePublic,
		PicturePublic: p.PicturePublic,
		RecoveredAt:   utcPtr(p.RecoveredAt),
		CreatedAt:     utc(p.CreatedAt),
		UpdatedAt:     utc(p.UpdatedAt),
	}
}

func (r *UserProfile) entity() *interfaces.UserProfile {
	return &interfaces.UserProfile{
		UserID:        r.UserID,
		Name:          r.Name,
		Email:         r.Email,
		Phone:         r.Phone,
		Picture:       r.Picture,
		NamePublic:    r.NamePublic,
		EmailPublic:   r.EmailPublic,
		PhonePublic:   r.PhonePublic,
		PicturePublic: r.PicturePublic,
		RecoveredAt:   utcPtr(r.RecoveredAt),
		CreatedAt:     utc(r.CreatedAt),
		UpdatedAt:     utc(r.UpdatedAt),
	}
}
