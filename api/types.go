package api

import (
	"time"

	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"github.com/ruteri/embedded-wallet-custody/recovery"
)

// Wallet is the public view of a wallet. Shares never appear here.
type Wallet struct {
	ID                string                   `json:"id"`
	UserID            string                   `json:"user_id"`
	Chain             interfaces.Chain         `json:"chain"`
	Address           string                   `json:"address"`
	PublicKey         string                   `json:"public_key,omitempty"`
	Status            interfaces.WalletStatus  `json:"status"`
	Privacy           interfaces.WalletPrivacy `json:"privacy"`
	Source            interfaces.WalletSource  `json:"source"`
	CanRecoverAccount bool                     `json:"can_recover_account"`
	CanBeRecovered    bool                     `json:"can_be_recovered"`

	ActivationCount int        `json:"activation_count"`
	LastActivatedAt *time.Time `json:"last_activated_at,omitempty"`
	RotationCount   int        `json:"rotation_count"`
	LastRotatedAt   *time.Time `json:"last_rotated_at,omitempty"`
	BackupCount     int        `json:"backup_count"`
	LastBackedUpAt  *time.Time `json:"last_backed_up_at,omitempty"`
	ExportCount     int        `json:"export_count"`
	LastExportedAt  *time.Time `json:"last_exported_at,omitempty"`
	RecoveryCount   int        `json:"recovery_count"`
	LastRecoveredAt *time.Time `json:"last_recovered_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewWallet(w *interfaces.Wallet) *Wallet {
	if w == nil {
		return nil
	}
	return &Wallet{
		ID:                w.ID,
		UserID:            w.UserID,
		Chain:             w.Chain,
		Address:           w.Address,
		PublicKey:         w.PublicKey,
		Status:            w.Status,
		Privacy:           w.Privacy,
		Source:            w.Source,
		CanRecoverAccount: w.CanRecoverAccountSetting,
		CanBeRecovered:    w.CanBeRecovered,
		ActivationCount:   w.ActivationCount,
		LastActivatedAt:   w.LastActivatedAt,
		RotationCount:     w.RotationCount,
		LastRotatedAt:     w.LastRotatedAt,
		BackupCount:       w.BackupCount,
		LastBackedUpAt:    w.LastBackedUpAt,
		ExportCount:       w.ExportCount,
		LastExportedAt:    w.LastExportedAt,
		RecoveryCount:     w.RecoveryCount,
		LastRecoveredAt:   w.LastRecoveredAt,
		CreatedAt:         w.CreatedAt,
		UpdatedAt:         w.UpdatedAt,
	}
}

func NewWallets(ws []*interfaces.Wallet) []*Wallet {
	out := make([]*Wallet, 0, len(ws))
	for _, w := range ws {
		out = append(out, NewWallet(w))
	}
	return out
}

// Challenge carries everything a client needs to rebuild the canonical raw
// data. Value is base64 (standard encoding), matching the raw data.
type Challenge struct {
	ID        string                      `json:"id"`
	Type      interfaces.ChallengeType    `json:"type"`
	Purpose   interfaces.ChallengePurpose `json:"purpose"`
	Value     []byte                      `json:"value"`
	Version   string                      `json:"version"`
	CreatedAt time.Time                   `json:"created_at"`
	UserID    string                      `json:"user_id"`
	WalletID  string                      `json:"wallet_id,omitempty"`
}

func NewChallenge(c *interfaces.Challenge) *Challenge {
	if c == nil {
		return nil
	}
	return &Challenge{
		ID:        c.ID,
		Type:      c.Type,
		Purpose:   c.Purpose,
		Value:     c.Value,
		Version:   c.Version,
		CreatedAt: c.CreatedAt,
		UserID:    c.UserID,
		WalletID:  c.WalletID,
	}
}

func (c *Challenge) Entity() *interfaces.Challenge {
	return &interfaces.Challenge{
		ID:        c.ID,
		Type:      c.Type,
		Purpose:   c.Purpose,
		Value:     c.Value,
		Version:   c.Version,
		CreatedAt: c.CreatedAt,
		UserID:    c.UserID,
		WalletID:  c.WalletID,
	}
}

type AnonChallenge struct {
	ID        string                      `json:"id"`
	Type      interfaces.ChallengeType    `json:"type"`
	Purpose   interfaces.ChallengePurpose `json:"purpose"`
	Value     []byte                      `json:"value"`
	Version   string                      `json:"version"`
	Chain     interfaces.Chain            `json:"chain"`
	Address   string                      `json:"address"`
	CreatedAt time.Time                   `json:"created_at"`
}

func NewAnonChallenge(c *interfaces.AnonChallenge) *AnonChallenge {
	return &AnonChallenge{
		ID:        c.ID,
		Type:      c.Type,
		Purpose:   c.Purpose,
		Value:     c.Value,
		Version:   c.Version,
		Chain:     c.Chain,
		Address:   c.Address,
		CreatedAt: c.CreatedAt,
	}
}

func (c *AnonChallenge) Entity() *interfaces.AnonChallenge {
	return &interfaces.AnonChallenge{
		ID:        c.ID,
		Type:      c.Type,
		Purpose:   c.Purpose,
		Value:     c.Value,
		Version:   c.Version,
		Chain:     c.Chain,
		Address:   c.Address,
		CreatedAt: c.CreatedAt,
	}
}

// Session is the subset of a session that enters the raw data. The
// challenge-solver reads it from a file.
type Session struct {
	ID          string `json:"id"`
	IP          string `json:"ip"`
	DeviceNonce string `json:"device_nonce"`
	UserAgent   string `json:"user_agent"`
}

func (s *Session) Entity() *interfaces.Session {
	return &interfaces.Session{
		ID:          s.ID,
		IP:          s.IP,
		DeviceNonce: s.DeviceNonce,
		UserAgent:   s.UserAgent,
	}
}

type CreateWalletRequest struct {
	Chain             interfaces.Chain         `json:"chain"`
	Address           string                   `json:"address"`
	PublicKey         string                   `json:"public_key,omitempty"`
	Privacy           interfaces.WalletPrivacy `json:"privacy"`
	CanRecoverAccount bool                     `json:"can_recover_account"`
	Source            interfaces.WalletSource  `json:"source,omitempty"`
}

type CreateWalletResponse struct {
	Wallet                *Wallet    `json:"wallet"`
	RegistrationChallenge *Challenge `json:"registration_challenge"`
}

type UpdateWalletStatusRequest struct {
	Status interfaces.WalletStatus `json:"status"`
}

type ChallengeResponse struct {
	Challenge *Challenge `json:"challenge"`
}

type AnonChallengeResponse struct {
	Challenge *AnonChallenge `json:"challenge"`
}

type ActivateWalletRequest struct {
	ChallengeSolution string `json:"challenge_solution"`
}

type ActivateWalletResponse struct {
	AuthShare         string     `json:"auth_share"`
	RotationChallenge *Challenge `json:"rotation_challenge,omitempty"`
}

type AuthShareRequest struct {
	AuthShare            string `json:"auth_share"`
	DeviceShareHash      string `json:"device_share_hash"`
	DeviceSharePublicKey string `json:"device_share_public_key"`
	ChallengeSolution    string `json:"challenge_solution"`
}

type RegisterAuthShareResponse struct {
	Wallet         *Wallet   `json:"wallet"`
	NextRotationAt time.Time `json:"next_rotation_at"`
}

type RotateAuthShareResponse struct {
	NextRotationAt time.Time `json:"next_rotation_at"`
}

type RecoveryChallengeRequest struct {
	RecoveryBackupShareHash string `json:"recovery_backup_share_hash,omitempty"`
}

type RecoverWalletRequest struct {
	ChallengeSolution           string `json:"challenge_solution,omitempty"`
	RecoveryBackupShareHash     string `json:"recovery_backup_share_hash,omitempty"`
	RecoveryFileServerSignature string `json:"recovery_file_server_signature,omitempty"`
}

type RecoverWalletResponse struct {
	Wallet                        *Wallet    `json:"wallet"`
	RecoveryAuthShare             string     `json:"recovery_auth_share,omitempty"`
	RotationChallenge             *Challenge `json:"rotation_challenge,omitempty"`
	RecoveryBackupServerPublicKey string     `json:"recovery_backup_server_public_key,omitempty"`
}

func NewRecoverWalletResponse(r *recovery.WalletRecoveryResult) *RecoverWalletResponse {
	return &RecoverWalletResponse{
		Wallet:                        NewWallet(r.Wallet),
		RecoveryAuthShare:             r.RecoveryAuthShare,
		RotationChallenge:             NewChallenge(r.RotationChallenge),
		RecoveryBackupServerPublicKey: string(r.RecoveryBackupServerPublicKey),
	}
}

type RegisterRecoveryShareRequest struct {
	RecoveryAuthShare            string `json:"recovery_auth_share"`
	RecoveryBackupShareHash      string `json:"recovery_backup_share_hash"`
	RecoveryBackupSharePublicKey string `json:"recovery_backup_share_public_key"`
}

type RegisterRecoveryShareResponse struct {
	Wallet                      *Wallet `json:"wallet"`
	RecoveryFileServerSignature string  `json:"recovery_file_server_signature"`
}

type AddressRequest struct {
	Chain   interfaces.Chain `json:"chain"`
	Address string           `json:"address"`
}

type AnonSolutionRequest struct {
	ChallengeID       string `json:"challenge_id"`
	ChallengeSolution string `json:"challenge_solution"`
}

type RecoverableAccount struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Picture string `json:"picture,omitempty"`
}

func NewRecoverableAccounts(accounts []recovery.RecoverableAccount) []RecoverableAccount {
	out := make([]RecoverableAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, RecoverableAccount(a))
	}
	return out
}

type RecoverableAccountsResponse struct {
	Accounts []RecoverableAccount `json:"accounts"`
}

type WalletsResponse struct {
	Wallets []*Wallet `json:"wallets"`
}

type RecoverAccountRequest struct {
	UserID            string `json:"user_id"`
	ChallengeID       string `json:"challenge_id"`
	ChallengeSolution string `json:"challenge_solution"`
}

type UserProfile struct {
	UserID      string     `json:"user_id"`
	Name        string     `json:"name,omitempty"`
	Email       string     `json:"email,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Picture     string     `json:"picture,omitempty"`
	RecoveredAt *time.Time `json:"recovered_at,omitempty"`
}

func NewUserProfile(p *interfaces.UserProfile) *UserProfile {
	return &UserProfile{
		UserID:      p.UserID,
		Name:        p.Name,
		Email:       p.Email,
		Phone:       p.Phone,
		Picture:     p.Picture,
		RecoveredAt: p.RecoveredAt,
	}
}
