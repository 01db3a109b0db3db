package custodyhandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/embedded-wallet-custody/activation"
	"github.com/ruteri/embedded-wallet-custody/api"
)

// URL format: POST /api/wallets/{wallet_id}/activation-challenge
func (h *Handler) HandleActivationChallenge(w http.ResponseWriter, r *http.Request) {
	session, ok := mustSession(w, r)
	if !ok {
		return
	}
	c, err := h.activation.GenerateWalletActivationChallenge(r.Context(), session, chi.URLParam(r, "wallet_id"))
	if err != nil {
		h.writeError(w, r, "generateWalletActivationChallenge", err)
		return
	}
	h.writeJSON(w, http.StatusOK, &api.ChallengeResponse{Challenge: api.NewChallenge(c)})
}

// HandleActivateWallet exchanges a solved activation challenge for the auth
// share. A rotation challenge is attached when the share is due.
//
// URL format: POST /api/wallets/{wallet_id}/activate
func (h *Handler) HandleActivateWallet(w http.ResponseWriter, r *http.Request) {
	session, ok := mustSession(w, r)
	if !ok {
		return
	}
	var req api.ActivateWalletRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.activation.ActivateWallet(r.Context(), session, chi.URLParam(r, "wallet_id"), req.ChallengeSolution)
	if err != nil {
		h.writeError(w, r, "activateWallet", err)
		return
	}
	h.writeJSON(w, http.StatusOK, &api.ActivateWalletResponse{
		AuthShare:         res.AuthShare,
		RotationChallenge: api.NewChallenge(res.RotationChallenge),
	})
}

func shareUpdate(req *api.AuthShareRequest) *activation.ShareUpdate {
	return &activation.ShareUpdate{
		AuthShare:            req.AuthShare,
		DeviceShareHash:      req.DeviceShareHash,
		DeviceSharePublicKey: req.DeviceSharePublicKey,
		ChallengeSolution:    req.ChallengeSolution,
	}
}

// URL format: POST /api/wallets/{wallet_id}/auth-share
func (h *Handler) HandleRegisterAuthShare(w http.ResponseWriter, r *http.Request) {
	session, ok := mustSession(w, r)
	if !ok {
		return
	}
	var req api.AuthShareRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.activation.RegisterAuthShare(r.Context(), session, chi.URLParam(r, "wallet_id"), shareUpdate(&req))
	if err != nil {
		h.writeError(w, r, "registerAuthShare", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, &api.RegisterAuthShareResponse{
		Wallet:         api.NewWallet(res.Wallet),
		NextRotationAt: res.NextRotationAt,
	})
}

// URL format: PUT /api/wallets/{wallet_id}/auth-share
func (h *Handler) HandleRotateAuthShare(w http.ResponseWriter, r *http.Request) {
	session, ok := mustSession(w, r)
	if !ok {
		return
	}
	var req api.AuthShareRequest
	if !decodeBody(w, r, &req) {
		return
	}
	next, err := h.activation.RotateAuthShare(r.Context(), session, chi.URLParam(r, "wallet_id"), shareUpdate(&req))
	if err != nil {
		h.writeError(w, r, "rotateAuthShare", err)
		return
	}
	h.writeJSON(w, http.StatusOK, &api.RotateAuthShareResponse{NextRotationAt: next})
}
