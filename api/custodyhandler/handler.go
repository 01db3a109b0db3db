// Package custodyhandler exposes the wallet, activation and recovery
// services over HTTP.
package custodyhandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/embedded-wallet-custody/activation"
	"github.com/ruteri/embedded-wallet-custody/auth"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"github.com/ruteri/embedded-wallet-custody/recovery"
	"github.com/ruteri/embedded-wallet-custody/wallets"
)

// maxBodySize limits request bodies to 64KiB. RSA JWKs are the largest
// field any request carries.
const maxBodySize = 64 * 1024

type Handler struct {
	wallets    *wallets.Service
	activation *activation.Service
	recovery   *recovery.Service
	sessions   func(http.Handler) http.Handler
	log        *slog.Logger
}

// NewHandler wires the services behind the session middleware. Anonymous
// recovery routes bypass it.
func NewHandler(w *wallets.Service, a *activation.Service, rec *recovery.Service, sessions *auth.Middleware, log *slog.Logger) *Handler {
	return &Handler{
		wallets:    w,
		activation: a,
		recovery:   rec,
		sessions:   sessions.Handler,
		log:        log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.sessions)

		r.Post("/api/wallets", h.HandleCreateWallet)
		r.Get("/api/wallets", h.HandleListWallets)
		r.Get("/api/wallets/{wallet_id}", h.HandleGetWallet)
		r.Put("/api/wallets/{wallet_id}/status", h.HandleUpdateWalletStatus)
		r.Delete("/api/wallets/{wallet_id}", h.HandleDeleteWallet)
		r.Post("/api/wallets/{wallet_id}/exports", h.HandleRecordWalletExport)

		r.Post("/api/wallets/{wallet_id}/activation-challenge", h.HandleActivationChallenge)
		r.Post("/api/wallets/{wallet_id}/activate", h.HandleActivateWallet)
		r.Post("/api/wallets/{wallet_id}/auth-share", h.HandleRegisterAuthShare)
		r.Put("/api/wallets/{wallet_id}/auth-share", h.HandleRotateAuthShare)

		r.Post("/api/wallets/{wallet_id}/recovery-challenge", h.HandleRecoveryChallenge)
		r.Post("/api/wallets/{wallet_id}/recover", h.HandleRecoverWallet)
		r.Post("/api/wallets/{wallet_id}/recovery-share", h.HandleRegisterRecoveryShare)

		r.Post("/api/account/recover", h.HandleRecoverAccount)
	})

	r.Post("/api/recovery/accounts/challenge", h.HandleRecoverableAccountsChallenge)
	r.Post("/api/recovery/accounts", h.HandleFetchRecoverableAccounts)
	r.Post("/api/recovery/accounts/{user_id}/wallets", h.HandleFetchRecoverableAccountWallets)
	r.Post("/api/recovery/accounts/{user_id}/challenge", h.HandleAccountRecoveryChallenge)
}

// writeError maps the error taxonomy to a status code. Unclassified errors
// never leak their message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var code int
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, interfaces.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, interfaces.ErrBadRequest):
		code = http.StatusBadRequest
	default:
		h.log.Error("Request failed", slog.String("op", op), slog.String("path", r.URL.Path), "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.log.Debug("Request rejected",
		slog.String("op", op),
		slog.Int("status", code),
		"err", err)
	http.Error(w, err.Error(), code)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func mustSession(w http.ResponseWriter, r *http.Request) (*interfaces.Session, bool) {
	s, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return s, ok
}
