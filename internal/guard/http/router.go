package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pledgepoint/guard/internal/guard/service"
	"github.com/pledgepoint/guard/internal/guard/store"
	"github.com/pledgepoint/guard/pkg/httpx"
	"github.com/pledgepoint/guard/pkg/jwtx"
	"github.com/pledgepoint/guard/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     *jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	TwoFactorService *service.TwoFactorService
	RecoveryService  *service.RecoveryService
	LockoutService   *service.LockoutService
	AccountService   *service.AccountService
}

func NewRouter(
	verifier *jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerTwoFactor()
	r.registerRecovery()
	r.registerInternal()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware
// chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerTwoFactor() {
	handler := &TwoFactorHandler{TwoFactorService: r.TwoFactorService}

	// Status and QR are read-only; lenient per-IP limits.
	r.Mux.Handle("GET /v1/2fa/status",
		httpx.Chain(http.HandlerFunc(handler.HandleStatus),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByIP(httpx.LenientLimit),
		))
	r.Mux.Handle("GET /v1/2fa/qr",
		httpx.Chain(http.HandlerFunc(handler.HandleQR),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByAccountQuery(httpx.ModerateLimit, "account_id"),
		))

	r.Mux.Handle("POST /v1/2fa/enroll",
		httpx.Chain(http.HandlerFunc(handler.HandleEnroll),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByAccountField(httpx.ModerateLimit, "account_id"),
		))

	// Verify is the code-guessing surface; strict per-account limit.
	r.Mux.Handle("POST /v1/2fa/verify",
		httpx.Chain(http.HandlerFunc(handler.HandleVerify),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByAccountField(httpx.StrictLimit, "account_id"),
		))

	r.Mux.Handle("DELETE /v1/2fa",
		httpx.Chain(http.HandlerFunc(handler.HandleDisable),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByAccountField(httpx.ModerateLimit, "account_id"),
		))
}

func (r *Router) registerRecovery() {
	handler := &RecoveryHandler{RecoveryService: r.RecoveryService}

	r.Mux.Handle("POST /v1/2fa/recovery/consume",
		httpx.Chain(http.HandlerFunc(handler.HandleConsume),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByAccountField(httpx.StrictLimit, "account_id"),
		))
}

func (r *Router) registerInternal() {
	lockouts := &LockoutHandler{LockoutService: r.LockoutService}
	accounts := &AccountHandler{AccountService: r.AccountService}

	// The login frontend already rate-limits per client; no extra limit on
	// attempt recording beyond the lockout itself.
	r.Mux.Handle("POST /v1/internal/login-attempts",
		httpx.Chain(http.HandlerFunc(lockouts.HandleRecordAttempt),
			httpx.AuthnMiddleware(r.verifier),
		))

	r.Mux.Handle("POST /v1/internal/accounts",
		httpx.Chain(http.HandlerFunc(accounts.HandleCreate),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		))
	r.Mux.Handle("PUT /v1/internal/accounts/{id}/password",
		httpx.Chain(http.HandlerFunc(accounts.HandleUpdatePassword),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
}
