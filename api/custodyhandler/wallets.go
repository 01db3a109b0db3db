package custodyhandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/embedded-wallet-custody/api"
	"github.com/ruteri/embedded-wallet-custody/wallets"
)

// HandleCreateWallet creates a wallet and returns the challenge the device
// solves to register its first auth share.
//
// URL format: POST /api/wallets
func (h *Handler) HandleCreateWallet(w http.ResponseWriter, r *http.Request) {
	session, ok := mustSession(w, r)
	if !ok {
		return
	}
	var req api.CreateWalletRequest
	if !decodeBody(w, r, &req) {
		return
	}

	wallet, c, err := h.wallets.CreateWallet(r.Context(), session, &wallets.CreateWalletRequest{
		Chain:             req.Chain,
		Address:           req.Address,
		PublicKey:         req.PublicKey,
		Privacy:           req.Privacy,
		CanRecoverAccount: req.CanRecoverAccount,
		Source:            req.Source,
	})
	if err != nil {
		h.writeError(w, r, "createWallet", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, &api.CreateWalletResponse{
		Wallet:                api.NewWallet(wallet),
		RegistrationChallenge: api.NewChallenge(c),
	})
}

// URL format: GET /api/wallets
func (h *Handler) HandleListWallets(w http.ResponseWriter, r *http.Request) {
	session, ok := mustSession(w, r)
	if !ok {
		return
	}
	ws, err := h.wallets.ListWallets(r.Context(), session.UserID)
	if err != nil {
		h.writeError(w, r, "listWallets", err)
		return
	}
	h.writeJSON(w, http.StatusOK, &api.WalletsResponse{Wallets: api.NewWallets(ws)})
}

// URL format: GET /api/wallets/{wallet_id}
func (h *Handler) HandleGetWallet(w http.ResponseWriter, r *http.Request) {
	session, ok := mustSession(w, r)
	if !ok {
		return
	}
	wallet, err := h.wallets.GetWallet(r.Context(), session.UserID, chi.URLParam(r, "wallet_id"))
	if err != nil {
		h.writeError(w, r, "getWallet", err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.NewWallet(wallet))
}

// URL format: PUT /api/wallets/{wallet_id}/status
func (h *Handler) HandleUpdateWalletStatus(w http.ResponseWriter, r *http.Request) {
	session, ok := mustSession(w, r)
	if !ok {
		return
	}
	var req api.UpdateWalletStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	wallet, err := h.wallets.UpdateWalletStatus(r.Context(), session.UserID, chi.URLParam(r, "wallet_id"), req.Status)
	if err != nil {
		h.writeError(w, r, "updateWalletStatus", err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.NewWallet(wallet))
}

// URL format: DELETE /api/wallets/{wallet_id}
func (h *Handler) HandleDeleteWallet(w http.ResponseWriter, r *http.Request) {
	session, ok := mustSession(w, r)
	if !ok {
		return
	}
	if err := h.wallets.DeleteWallet(r.Context(), session.UserID, chi.URLParam(r, "wallet_id")); err != nil {
		h.writeError(w, r, "deleteWallet", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRecordWalletExport counts a private key export performed on the
// device.
//
// URL format: POST /api/wallets/{wallet_id}/exports
func (h *Handler) HandleRecordWalletExport(w http.ResponseWriter, r *http.Request) {
	session, ok := mustSession(w, r)
	if !ok {
		return
	}
	wallet, err := h.wallets.RecordWalletExport(r.Context(), session, chi.URLParam(r, "wallet_id"))
	if err != nil {
		h.writeError(w, r, "recordWalletExport", err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.NewWallet(wallet))
}
