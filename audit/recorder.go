// Package audit appends WalletActivation and WalletRecovery rows and the
// DeviceAndLocation rows they reference.
//
// Successful rows are written inside the caller's unit of work. Failed rows
// are written on the root store after the caller has rolled back, so they
// survive the failure they describe.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"github.com/ruteri/embedded-wallet-custody/metrics"
)

type Recorder struct {
	store interfaces.Store
	clock clock.Clock
	log   *slog.Logger
}

func NewRecorder(store interfaces.Store, clk clock.Clock, log *slog.Logger) *Recorder {
	return &Recorder{
		store: store,
		clock: clk,
		log:   log.With(slog.String("component", "audit")),
	}
}

func (r *Recorder) now() time.Time {
	return r.clock.Now().UTC().Truncate(time.Millisecond)
}

// RecordDevice appends a DeviceAndLocation row for the session and returns
// its id, or "" if the row could not be written.
func (r *Recorder) RecordDevice(ctx context.Context, s *interfaces.Session) string {
	d := &interfaces.DeviceAndLocation{
		ID:          uuid.NewString(),
		UserID:      s.UserID,
		DeviceNonce: s.DeviceNonce,
		IP:          s.IP,
		CountryCode: s.CountryCode,
		UserAgent:   s.UserAgent,
		CreatedAt:   r.now(),
	}
	if err := r.store.CreateDeviceAndLocation(ctx, d); err != nil {
		r.log.Warn("Failed to record device and location",
			slog.String("userID", s.UserID),
			slog.String("sessionID", s.ID),
			"err", err)
		return ""
	}
	return d.ID
}

// Entry identifies the subject of an audit row.
type Entry struct {
	UserID              string
	WalletID            string
	ShareID             string
	DeviceAndLocationID string
}

// Activation appends a SUCCESSFUL activation row through repo.
func (r *Recorder) Activation(ctx context.Context, repo interfaces.AuditStore, e Entry) error {
	if err := repo.CreateWalletActivation(ctx, r.activation(e, interfaces.AuditStatusSuccessful)); err != nil {
		return err
	}
	metrics.WalletActivations.WithLabelValues(string(interfaces.AuditStatusSuccessful)).Inc()
	return nil
}

// ActivationFailed appends a FAILED activation row on the root store. Write
// errors are logged only.
func (r *Recorder) ActivationFailed(ctx context.Context, e Entry, cause error) {
	metrics.WalletActivations.WithLabelValues(string(interfaces.AuditStatusFailed)).Inc()
	r.log.Info("Wallet activation failed",
		slog.String("userID", e.UserID),
		slog.String("walletID", e.WalletID),
		"err", cause)
	if err := r.store.CreateWalletActivation(ctx, r.activation(e, interfaces.AuditStatusFailed)); err != nil {
		r.log.Error("Failed to record failed wallet activation",
			slog.String("userID", e.UserID),
			slog.String("walletID", e.WalletID),
			"err", err)
	}
}

// Recovery appends a SUCCESSFUL recovery row through repo.
func (r *Recorder) Recovery(ctx context.Context, repo interfaces.AuditStore, e Entry) error {
	if err := repo.CreateWalletRecovery(ctx, r.recovery(e, interfaces.AuditStatusSuccessful)); err != nil {
		return err
	}
	metrics.WalletRecoveries.WithLabelValues(string(interfaces.AuditStatusSuccessful)).Inc()
	return nil
}

// RecoveryFailed appends a FAILED recovery row on the root store.
func (r *Recorder) RecoveryFailed(ctx context.Context, e Entry, cause error) {
	metrics.WalletRecoveries.WithLabelValues(string(interfaces.AuditStatusFailed)).Inc()
	r.log.Info("Wallet recovery failed",
		slog.String("userID", e.UserID),
		slog.String("walletID", e.WalletID),
		"err", cause)
	if err := r.store.CreateWalletRecovery(ctx, r.recovery(e, interfaces.AuditStatusFailed)); err != nil {
		r.log.Error("Failed to record failed wallet recovery",
			slog.String("userID", e.UserID),
			slog.String("walletID", e.WalletID),
			"err", err)
	}
}

func (r *Recorder) activation(e Entry, status interfaces.AuditStatus) *interfaces.WalletActivation {
	return &interfaces.WalletActivation{
		ID:                  uuid.NewString(),
		Status:              status,
		UserID:              e.UserID,
		WalletID:            e.WalletID,
		WorkKeyShareID:      e.ShareID,
		DeviceAndLocationID: e.DeviceAndLocationID,
		CreatedAt:           r.now(),
	}
}

func (r *Recorder) recovery(e Entry, status interfaces.AuditStatus) *interfaces.WalletRecovery {
	return &interfaces.WalletRecovery{
		ID:                  uuid.NewString(),
		Status:              status,
		UserID:              e.UserID,
		WalletID:            e.WalletID,
		RecoveryKeyShareID:  e.ShareID,
		DeviceAndLocationID: e.DeviceAndLocationID,
		CreatedAt:           r.now(),
	}
}
