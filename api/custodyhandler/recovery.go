package custodyhandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/embedded-wallet-custody/api"
	"github.com/ruteri/embedded-wallet-custody/recovery"
)

// URL format: POST /api/wallets/{wallet_id}/recovery-challenge
// Body: {"recovery_backup_share_hash": "..."} selects the recovery file
// path; an empty body selects the wallet key path.
func (h *Handler) HandleRecoveryChallenge(w http.ResponseWriter, r *http.Request) {
	session, ok := mustSession(w, r)
	if !ok {
		return
	}
	var req api.RecoveryChallengeRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	c, err := h.recovery.GenerateWalletRecoveryChallenge(r.Context(), session, chi.URLParam(r, "wallet_id"), req.RecoveryBackupShareHash)
	if err != nil {
		h.writeError(w, r, "generateWalletRecoveryChallenge", err)
		return
	}
	h.writeJSON(w, http.StatusOK, &api.ChallengeResponse{Challenge: api.NewChallenge(c)})
}

// URL format: POST /api/wallets/{wallet_id}/recover
func (h *Handler) HandleRecoverWallet(w http.ResponseWriter, r *http.Request) {
	session, ok := mustSession(w, r)
	if !ok {
		return
	}
	var req api.RecoverWalletRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.recovery.RecoverWallet(r.Context(), session, chi.URLParam(r, "wallet_id"), &recovery.RecoverWalletRequest{
		ChallengeSolution:           req.ChallengeSolution,
		RecoveryBackupShareHash:     req.RecoveryBackupShareHash,
		RecoveryFileServerSignature: req.RecoveryFileServerSignature,
	})
	if err != nil {
		h.writeError(w, r, "recoverWallet", err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.NewRecoverWalletResponse(res))
}

// URL format: POST /api/wallets/{wallet_id}/recovery-share
func (h *Handler) HandleRegisterRecoveryShare(w http.ResponseWriter, r *http.Request) {
	session, ok := mustSession(w, r)
	if !ok {
		return
	}
	var req api.RegisterRecoveryShareRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.recovery.RegisterRecoveryShare(r.Context(), session, chi.URLParam(r, "wallet_id"), &recovery.RegisterRecoveryShareRequest{
		RecoveryAuthShare:            req.RecoveryAuthShare,
		RecoveryBackupShareHash:      req.RecoveryBackupShareHash,
		RecoveryBackupSharePublicKey: req.RecoveryBackupSharePublicKey,
	})
	if err != nil {
		h.writeError(w, r, "registerRecoveryShare", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, &api.RegisterRecoveryShareResponse{
		Wallet:                      api.NewWallet(res.Wallet),
		RecoveryFileServerSignature: res.RecoveryFileServerSignature,
	})
}

// HandleRecoverAccount moves the calling session onto the account that
// owns the proving wallet.
//
// URL format: POST /api/account/recover
func (h *Handler) HandleRecoverAccount(w http.ResponseWriter, r *http.Request) {
	session, ok := mustSession(w, r)
	if !ok {
		return
	}
	var req api.RecoverAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	profile, err := h.recovery.RecoverAccount(r.Context(), session, req.UserID, req.ChallengeID, req.ChallengeSolution)
	if err != nil {
		h.writeError(w, r, "recoverAccount", err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.NewUserProfile(profile))
}

// URL format: POST /api/recovery/accounts/challenge
func (h *Handler) HandleRecoverableAccountsChallenge(w http.ResponseWriter, r *http.Request) {
	var req api.AddressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.recovery.GenerateFetchRecoverableAccountsChallenge(r.Context(), req.Chain, req.Address)
	if err != nil {
		h.writeError(w, r, "generateFetchRecoverableAccountsChallenge", err)
		return
	}
	h.writeJSON(w, http.StatusOK, &api.AnonChallengeResponse{Challenge: api.NewAnonChallenge(c)})
}

// URL format: POST /api/recovery/accounts
func (h *Handler) HandleFetchRecoverableAccounts(w http.ResponseWriter, r *http.Request) {
	var req api.AnonSolutionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	accounts, err := h.recovery.FetchRecoverableAccounts(r.Context(), req.ChallengeID, req.ChallengeSolution)
	if err != nil {
		h.writeError(w, r, "fetchRecoverableAccounts", err)
		return
	}
	h.writeJSON(w, http.StatusOK, &api.RecoverableAccountsResponse{Accounts: api.NewRecoverableAccounts(accounts)})
}

// URL format: POST /api/recovery/accounts/{user_id}/wallets
func (h *Handler) HandleFetchRecoverableAccountWallets(w http.ResponseWriter, r *http.Request) {
	var req api.AnonSolutionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ws, err := h.recovery.FetchRecoverableAccountWallets(r.Context(), chi.URLParam(r, "user_id"), req.ChallengeID, req.ChallengeSolution)
	if err != nil {
		h.writeError(w, r, "fetchRecoverableAccountWallets", err)
		return
	}
	h.writeJSON(w, http.StatusOK, &api.WalletsResponse{Wallets: api.NewWallets(ws)})
}

// URL format: POST /api/recovery/accounts/{user_id}/challenge
func (h *Handler) HandleAccountRecoveryChallenge(w http.ResponseWriter, r *http.Request) {
	var req api.AddressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.recovery.GenerateAccountRecoveryChallenge(r.Context(), req.Chain, req.Address, chi.URLParam(r, "user_id"))
	if err != nil {
		h.writeError(w, r, "generateAccountRecoveryChallenge", err)
		return
	}
	h.writeJSON(w, http.StatusOK, &api.AnonChallengeResponse{Challenge: api.NewAnonChallenge(c)})
}
