package interfaces

import (
	"time"
)

// Chain identifies the network a wallet lives on. The chain determines the
// key scheme used to verify challenges signed by the wallet key.
type Chain string

const (
	// ChainArweave wallets use RSA-PSS keys (challenge version v1).
	ChainArweave Chain = "ARWEAVE"
	// ChainSolana wallets use Ed25519 keys (challenge version v2).
	ChainSolana Chain = "SOLANA"
)

func (c Chain) Valid() bool {
	return c == ChainArweave || c == ChainSolana
}

// WalletStatus is the lifecycle state of a wallet.
// READONLY and LOST are terminal.
type WalletStatus string

const (
	WalletStatusEnabled  WalletStatus = "ENABLED"
	WalletStatusDisabled WalletStatus = "DISABLED"
	WalletStatusReadonly WalletStatus = "READONLY"
	WalletStatusLost     WalletStatus = "LOST"
)

func (s WalletStatus) Valid() bool {
	switch s {
	case WalletStatusEnabled, WalletStatusDisabled, WalletStatusReadonly, WalletStatusLost:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave this status.
func (s WalletStatus) Terminal() bool {
	return s == WalletStatusReadonly || s == WalletStatusLost
}

type WalletPrivacy string

const (
	WalletPrivacyPublic  WalletPrivacy = "PUBLIC"
	WalletPrivacyPrivate WalletPrivacy = "PRIVATE"
)

func (p WalletPrivacy) Valid() bool {
	return p == WalletPrivacyPublic || p == WalletPrivacyPrivate
}

type WalletSource string

const (
	WalletSourceGenerated WalletSource = "GENERATED"
	WalletSourceImported  WalletSource = "IMPORTED"
)

func (s WalletSource) Valid() bool {
	return s == WalletSourceGenerated || s == WalletSourceImported
}

// Wallet is a user's embedded wallet. The private key never reaches the
// server; only the auth share is kept, in WorkKeyShare rows.
type Wallet struct {
	ID        string
	UserID    string
	Chain     Chain
	Address   string
	PublicKey string // empty for PRIVATE wallets

	Status                   WalletStatus
	Privacy                  WalletPrivacy
	Source                   WalletSource
	CanRecoverAccountSetting bool
	CanBeRecovered           bool

	ActivationCount int
	LastActivatedAt *time.Time
	RotationCount   int
	LastRotatedAt   *time.Time
	BackupCount     int
	LastBackedUpAt  *time.Time
	ExportCount     int
	LastExportedAt  *time.Time
	RecoveryCount   int
	LastRecoveredAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecoveryEligible reports whether the wallet may prove ownership of its
// account during anonymous discovery or account recovery.
func (w *Wallet) RecoveryEligible() bool {
	return w.Privacy == WalletPrivacyPublic &&
		w.CanRecoverAccountSetting &&
		w.Status == WalletStatusEnabled &&
		w.PublicKey != ""
}

// ChallengeType selects how a challenge is solved.
type ChallengeType string

const (
	ChallengeTypeSignature ChallengeType = "SIGNATURE"
	// ChallengeTypeHash is only accepted when hash challenges are enabled
	// for a test environment.
	ChallengeTypeHash ChallengeType = "HASH"
)

type ChallengePurpose string

const (
	PurposeActivation               ChallengePurpose = "ACTIVATION"
	PurposeShareRotation            ChallengePurpose = "SHARE_ROTATION"
	PurposeShareRecovery            ChallengePurpose = "SHARE_RECOVERY"
	PurposeAccountRecovery          ChallengePurpose = "ACCOUNT_RECOVERY"
	PurposeFetchRecoverableAccounts ChallengePurpose = "FETCH_RECOVERABLE_ACCOUNTS"
)

// ShareScoped reports whether raw data for this purpose must include a
// share hash.
func (p ChallengePurpose) ShareScoped() bool {
	switch p {
	case PurposeShareRotation, PurposeAccountRecovery, PurposeShareRecovery:
		return false
	}
	return true
}

// Challenge is a single-use value bound to a user and, optionally, a wallet.
// At most one live challenge exists per (UserID, Purpose).
type Challenge struct {
	ID        string
	Type      ChallengeType
	Purpose   ChallengePurpose
	Value     []byte
	Version   string
	CreatedAt time.Time
	UserID    string
	WalletID  string

	// PublicKey is the key the solution is verified against, fixed when the
	// challenge is issued. Empty for registration challenges of PRIVATE
	// wallets and for hash challenges.
	PublicKey string
}

// AnonChallenge is a challenge for callers without a session, scoped by
// (Chain, Address, Purpose).
type AnonChallenge struct {
	ID        string
	Type      ChallengeType
	Purpose   ChallengePurpose
	Value     []byte
	Version   string
	Chain     Chain
	Address   string
	CreatedAt time.Time

	PublicKey string
	// UserID, when set, limits what the solved challenge discloses to
	// that account.
	UserID string
}

// WorkKeyShare is the server half of the live key split for one wallet on
// one device. Unique per (UserID, WalletID, DeviceNonce).
type WorkKeyShare struct {
	ID                   string
	UserID               string
	WalletID             string
	DeviceNonce          string
	AuthShare            string
	DeviceShareHash      string
	DeviceSharePublicKey string
	SharesRotatedAt      time.Time
	RotationWarnings     int
	SessionID            string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// RecoveryKeyShare is a durable backup split, independent of any device.
type RecoveryKeyShare struct {
	ID                           string
	UserID                       string
	WalletID                     string
	RecoveryAuthShare            string
	RecoveryBackupShareHash      string
	RecoveryBackupSharePublicKey string
	DeviceAndLocationID          string
	CreatedAt                    time.Time
}

type AuditStatus string

const (
	AuditStatusSuccessful AuditStatus = "SUCCESSFUL"
	AuditStatusFailed     AuditStatus = "FAILED"
)

// WalletActivation is an append-only audit row.
type WalletActivation struct {
	ID                  string
	Status              AuditStatus
	UserID              string
	WalletID            string
	WorkKeyShareID      string
	DeviceAndLocationID string
	CreatedAt           time.Time
}

// WalletRecovery is an append-only audit row.
type WalletRecovery struct {
	ID                  string
	Status              AuditStatus
	UserID              string
	WalletID            string
	RecoveryKeyShareID  string
	DeviceAndLocationID string
	CreatedAt           time.Time
}

// Session identifies the calling device and location. Its fields feed the
// canonical raw data of every user-scoped challenge.
type Session struct {
	ID          string
	UserID      string
	AuthUserID  string
	DeviceNonce string
	IP          string
	CountryCode string
	UserAgent   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type DeviceAndLocation struct {
	ID          string
	UserID      string
	DeviceNonce string
	IP          string
	CountryCode string
	UserAgent   string
	CreatedAt   time.Time
}

// UserProfile holds the account details disclosed during recovery. Each
// field is only disclosed when its matching *Public flag is set.
type UserProfile struct {
	UserID  string
	Name    string
	Email   string
	Phone   string
	Picture string

	NamePublic    bool
	EmailPublic   bool
	PhonePublic   bool
	PicturePublic bool

	RecoveredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
