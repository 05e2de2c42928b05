package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pledgepoint/guard/internal/guard/service"
	"github.com/pledgepoint/guard/pkg/httpx"
	"github.com/pledgepoint/guard/pkg/slogx"
)

// AccountHandler serves the internal account-provisioning endpoints the
// platform backend uses to sync credentials in.
type AccountHandler struct {
	AccountService *service.AccountService
}

// HandleCreate handles POST /v1/internal/accounts.
func (h *AccountHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, "Invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeInvalidRequest(w, "email and password are required")
		return
	}

	account, err := h.AccountService.CreateAccount(ctx, req.Email, req.Password)
	switch {
	case errors.Is(err, service.ErrEmailTaken):
		httpx.WriteError(w, http.StatusConflict, "email_taken",
			"An account with this email already exists")
		return
	case err != nil:
		log.Error("failed to create account", "err", err)
		writeServerError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, accountResponse{
		ID:    account.ID,
		Email: account.Email,
	})
}

// HandleUpdatePassword handles PUT /v1/internal/accounts/{id}/password.
func (h *AccountHandler) HandleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID := r.PathValue("id")
	if accountID == "" {
		writeInvalidRequest(w, "account id is required")
		return
	}

	var req updatePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, "Invalid JSON body")
		return
	}
	if req.Password == "" {
		writeInvalidRequest(w, "password is required")
		return
	}

	err := h.AccountService.UpdatePassword(ctx, accountID, req.Password)
	switch {
	case errors.Is(err, service.ErrAccountNotFound):
		httpx.WriteError(w, http.StatusNotFound, "account_not_found", "Unknown account")
		return
	case err != nil:
		log.Error("failed to update password", "account_id", accountID, "err", err)
		writeServerError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}
