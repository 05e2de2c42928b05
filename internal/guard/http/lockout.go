package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pledgepoint/guard/internal/guard/service"
	"github.com/pledgepoint/guard/pkg/httpx"
	"github.com/pledgepoint/guard/pkg/slogx"
)

// LockoutHandler records login outcomes reported by the login frontend.
type LockoutHandler struct {
	LockoutService *service.LockoutService
}

// HandleRecordAttempt handles POST /v1/internal/login-attempts. A locked
// account answers 423 with the seconds left in the window.
func (h *LockoutHandler) HandleRecordAttempt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, "Invalid JSON body")
		return
	}
	if req.AccountID == "" {
		writeInvalidRequest(w, "account_id is required")
		return
	}

	result, err := h.LockoutService.RecordAttempt(ctx, req.AccountID, req.Succeeded)
	if err != nil {
		var locked *service.AccountLockedError
		if errors.As(err, &locked) {
			log.Warn("attempt on locked account", "account_id", req.AccountID)
			httpx.WriteJSON(w, http.StatusLocked, loginAttemptResponse{
				Locked:           true,
				RemainingSeconds: int64(locked.Remaining.Seconds()),
			})
			return
		}
		log.Error("failed to record login attempt", "account_id", req.AccountID, "err", err)
		writeServerError(w)
		return
	}

	if result.Locked {
		log.Warn("account locked after repeated failures",
			"account_id", req.AccountID, "failures", result.Failures)
	}

	httpx.WriteJSON(w, http.StatusOK, loginAttemptResponse{
		Locked:           result.Locked,
		RemainingSeconds: int64(result.Remaining.Seconds()),
		Failures:         result.Failures,
		NotifyOwner:      result.NotifyOwner,
	})
}
