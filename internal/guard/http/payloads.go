package http

import (
	"net/http"

	"github.com/pledgepoint/guard/pkg/httpx"
)

// Request and response bodies for the guard API. Callers are other
// platform services, never browsers, so payloads stay flat and literal.

type statusResponse struct {
	Enabled                bool   `json:"enabled"`
	EnabledAt              string `json:"enabled_at,omitempty"` // RFC 3339
	RecoveryCodesRemaining int    `json:"recovery_codes_remaining"`
}

type accountRequest struct {
	AccountID string `json:"account_id"`
}

type enrollResponse struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	RecoveryCodes   []string `json:"recovery_codes,omitempty"`
}

type verifyRequest struct {
	AccountID string `json:"account_id"`
	Code      string `json:"code"`
}

type verifyResponse struct {
	Activated     bool     `json:"activated"`
	RecoveryCodes []string `json:"recovery_codes,omitempty"`
}

type consumeRequest struct {
	AccountID string `json:"account_id"`
	Code      string `json:"code"`
}

type consumeResponse struct {
	Remaining int `json:"remaining"`
}

type disableRequest struct {
	AccountID string `json:"account_id"`
	Password  string `json:"password"`
}

type loginAttemptRequest struct {
	AccountID string `json:"account_id"`
	Succeeded bool   `json:"succeeded"`
}

type loginAttemptResponse struct {
	Locked           bool  `json:"locked"`
	RemainingSeconds int64 `json:"remaining_seconds,omitempty"`
	Failures         int   `json:"failures"`
	NotifyOwner      bool  `json:"notify_owner"`
}

type createAccountRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type updatePasswordRequest struct {
	Password string `json:"password"`
}

type healthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *healthChecks `json:"checks,omitempty"`
}

type healthChecks struct {
	Database string `json:"database"`
}

func writeInvalidRequest(w http.ResponseWriter, description string) {
	httpx.WriteError(w, http.StatusBadRequest, "invalid_request", description)
}

func writeServerError(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusInternalServerError, "server_error", "An internal error occurred")
}
