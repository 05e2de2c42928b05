package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/pledgepoint/guard/internal/guard/service"
	"github.com/pledgepoint/guard/internal/guard/store"
	"github.com/pledgepoint/guard/pkg/httpx"
	"github.com/pledgepoint/guard/pkg/qrcode"
	"github.com/pledgepoint/guard/pkg/slogx"
)

// TwoFactorHandler serves the 2FA lifecycle endpoints.
type TwoFactorHandler struct {
	TwoFactorService *service.TwoFactorService
}

// HandleStatus handles GET /v1/2fa/status?account_id=.
func (h *TwoFactorHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		writeInvalidRequest(w, "account_id is required")
		return
	}

	status, err := h.TwoFactorService.Status(ctx, accountID)
	if err != nil {
		log.Error("failed to load 2fa status", "account_id", accountID, "err", err)
		writeServerError(w)
		return
	}

	resp := statusResponse{
		Enabled:                status.Enabled,
		RecoveryCodesRemaining: status.RecoveryCodesRemaining,
	}
	if status.EnabledAt != nil {
		resp.EnabledAt = status.EnabledAt.Format(time.RFC3339)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleEnroll handles POST /v1/2fa/enroll.
func (h *TwoFactorHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, "Invalid JSON body")
		return
	}
	if req.AccountID == "" {
		writeInvalidRequest(w, "account_id is required")
		return
	}

	enrollment, err := h.TwoFactorService.Enroll(ctx, req.AccountID)
	switch {
	case errors.Is(err, service.ErrAlreadyEnabled):
		httpx.WriteError(w, http.StatusConflict, "already_enabled",
			"Two-factor authentication is already enabled for this account")
		return
	case errors.Is(err, store.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "account_not_found", "Unknown account")
		return
	case err != nil:
		log.Error("failed to enroll 2fa", "account_id", req.AccountID, "err", err)
		writeServerError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, enrollResponse{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		RecoveryCodes:   enrollment.RecoveryCodes,
	})
}

// HandleVerify handles POST /v1/2fa/verify.
func (h *TwoFactorHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, "Invalid JSON body")
		return
	}
	if req.AccountID == "" || req.Code == "" {
		writeInvalidRequest(w, "account_id and code are required")
		return
	}

	result, err := h.TwoFactorService.Verify(ctx, req.AccountID, req.Code)
	switch {
	case errors.Is(err, service.ErrNoFactor):
		httpx.WriteError(w, http.StatusConflict, "no_factor",
			"No pending or active two-factor enrollment for this account")
		return
	case errors.Is(err, service.ErrInvalidCode):
		log.Warn("invalid 2fa code", "account_id", req.AccountID)
		httpx.WriteError(w, http.StatusBadRequest, "invalid_code", "Invalid TOTP code")
		return
	case err != nil:
		log.Error("failed to verify 2fa code", "account_id", req.AccountID, "err", err)
		writeServerError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, verifyResponse{
		Activated:     result.Activated,
		RecoveryCodes: result.RecoveryCodes,
	})
}

// HandleDisable handles DELETE /v1/2fa.
func (h *TwoFactorHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req disableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, "Invalid JSON body")
		return
	}
	if req.AccountID == "" || req.Password == "" {
		writeInvalidRequest(w, "account_id and password are required")
		return
	}

	err := h.TwoFactorService.Disable(ctx, req.AccountID, req.Password)
	switch {
	case errors.Is(err, service.ErrNotEnabled):
		httpx.WriteError(w, http.StatusConflict, "not_enabled",
			"Two-factor authentication is not enabled for this account")
		return
	case errors.Is(err, service.ErrIncorrectPassword):
		log.Warn("2fa disable rejected", "account_id", req.AccountID)
		httpx.WriteError(w, http.StatusUnauthorized, "incorrect_password", "Password check failed")
		return
	case err != nil:
		log.Error("failed to disable 2fa", "account_id", req.AccountID, "err", err)
		writeServerError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}

// HandleQR handles GET /v1/2fa/qr?account_id=&size=. It renders the
// Pending enrollment's provisioning URI as a PNG.
func (h *TwoFactorHandler) HandleQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		writeInvalidRequest(w, "account_id is required")
		return
	}

	size := qrcode.DefaultSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeInvalidRequest(w, "size must be an integer")
			return
		}
		size = parsed
	}

	png, err := h.TwoFactorService.ProvisioningPNG(ctx, accountID, size)
	switch {
	case errors.Is(err, service.ErrNoFactor):
		httpx.WriteError(w, http.StatusConflict, "no_factor",
			"No pending enrollment to render")
		return
	case errors.Is(err, qrcode.ErrInvalidSize):
		writeInvalidRequest(w, "size is out of range")
		return
	case err != nil:
		log.Error("failed to render 2fa QR", "account_id", accountID, "err", err)
		writeServerError(w)
		return
	}

	httpx.NoCache(w)
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
