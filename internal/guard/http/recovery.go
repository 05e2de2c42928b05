package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pledgepoint/guard/internal/guard/service"
	"github.com/pledgepoint/guard/pkg/httpx"
	"github.com/pledgepoint/guard/pkg/slogx"
)

// RecoveryHandler serves the recovery-code endpoints.
type RecoveryHandler struct {
	RecoveryService *service.RecoveryService
}

// HandleConsume handles POST /v1/2fa/recovery/consume.
func (h *RecoveryHandler) HandleConsume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req consumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, "Invalid JSON body")
		return
	}
	if req.AccountID == "" || req.Code == "" {
		writeInvalidRequest(w, "account_id and code are required")
		return
	}

	result, err := h.RecoveryService.Consume(ctx, req.AccountID, req.Code)
	switch {
	case errors.Is(err, service.ErrNotEnabled):
		httpx.WriteError(w, http.StatusConflict, "not_enabled",
			"Two-factor authentication is not active for this account")
		return
	case errors.Is(err, service.ErrInvalidCode):
		log.Warn("invalid recovery code", "account_id", req.AccountID)
		httpx.WriteError(w, http.StatusBadRequest, "invalid_code", "Invalid recovery code")
		return
	case errors.Is(err, service.ErrRecoveryCodeUsed):
		log.Warn("reused recovery code", "account_id", req.AccountID)
		httpx.WriteError(w, http.StatusConflict, "code_already_used",
			"This recovery code has already been used")
		return
	case err != nil:
		log.Error("failed to consume recovery code", "account_id", req.AccountID, "err", err)
		writeServerError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, consumeResponse{Remaining: result.Remaining})
}
