package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/pledgepoint/guard/internal/guard/http"
	"github.com/pledgepoint/guard/internal/guard/service"
	"github.com/pledgepoint/guard/internal/guard/store"
	"github.com/pledgepoint/guard/internal/guard/store/drivers/sqlite"
	"github.com/pledgepoint/guard/pkg/cryptox"
	"github.com/pledgepoint/guard/pkg/jwtx"
	"github.com/pledgepoint/guard/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application wires the guard service together: store, services, HTTP
// server, and the housekeeping worker.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	twoFactorService    *service.TwoFactorService
	recoveryService     *service.RecoveryService
	lockoutService      *service.LockoutService
	accountService      *service.AccountService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "guard",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepper(cfg.PasswordPepper)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	cipher, err := app.loadCipher()
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}

	verifier, err := app.loadVerifier()
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices(cipher)
	app.initHTTP(verifier)

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("guard service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains outstanding requests, stops the housekeeping worker
// and closes the database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down guard service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("guard service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// loadCipher builds the at-rest cipher from config. Development runs
// without a configured key get an ephemeral one; every restart then
// invalidates stored secrets.
func (app *Application) loadCipher() (*cryptox.Cipher, error) {
	if app.cfg.EncryptionKey == "" {
		key, err := cryptox.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral encryption key: %w", err)
		}
		app.logger.Warn("no encryption key configured, using an ephemeral key")
		return cryptox.NewCipher(key)
	}

	key, err := cryptox.ParseKey(app.cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse encryption key: %w", err)
	}
	return cryptox.NewCipher(key)
}

func (app *Application) loadVerifier() (*jwtx.Verifier, error) {
	secret := []byte(app.cfg.ServiceTokenSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral token secret: %w", err)
		}
		app.logger.Warn("no service token secret configured, using an ephemeral one",
			"secret", base64.StdEncoding.EncodeToString(secret))
	}
	return jwtx.NewVerifier(secret, app.cfg.Issuer)
}

func (app *Application) initServices(cipher *cryptox.Cipher) {
	app.twoFactorService = &service.TwoFactorService{
		Store:  app.db,
		Cipher: cipher,
		Issuer: app.cfg.Issuer,
	}
	app.recoveryService = &service.RecoveryService{Store: app.db}
	app.lockoutService = &service.LockoutService{
		Store:        app.db,
		Threshold:    app.cfg.LockoutThreshold,
		LockDuration: app.cfg.LockoutDuration,
	}
	app.accountService = &service.AccountService{Store: app.db}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP(verifier *jwtx.Verifier) {
	router := httpapi.NewRouter(verifier, BuildVersion, app.db, app.logger)
	router.TwoFactorService = app.twoFactorService
	router.RecoveryService = app.recoveryService
	router.LockoutService = app.lockoutService
	router.AccountService = app.accountService
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
