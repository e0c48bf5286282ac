// Command server runs the approval gateway: the requester API, the WhatsApp
// webhook, and the OTP engine behind them.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-approval-gateway/internal/config"
	httpapi "github.com/tbourn/go-approval-gateway/internal/http"
	"github.com/tbourn/go-approval-gateway/internal/observability"
	"github.com/tbourn/go-approval-gateway/internal/repo"
	"github.com/tbourn/go-approval-gateway/internal/services"
	"github.com/tbourn/go-approval-gateway/internal/sysutil"
	"github.com/tbourn/go-approval-gateway/internal/verify"
	"github.com/tbourn/go-approval-gateway/internal/whatsapp"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()
	cfg := config.MustLoad()

	setupLogging(cfg)
	gin.SetMode(cfg.GinMode)

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	shutdownOTel, err := observability.SetupOTel(sigCtx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}

	db, err := openDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	st, err := newStores(sigCtx, cfg, db)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("open stores")
	}
	defer st.Close()

	provider := verify.NewTwilioProvider(cfg.Twilio)
	wa := whatsapp.NewClient(cfg.WhatsApp.APIURL, cfg.WhatsApp.Token, cfg.WhatsApp.Language, cfg.WhatsApp.Timeout)

	engine := services.NewOTPEngine(db, provider, cfg.OTP.Expiry, cfg.OTP.MaxAttempts)
	dispatcher := services.NewDispatcher(wa, st.Correlations, st.Links, cfg.WhatsApp.Templates, cfg.OTP.ResendLinkTTL)
	approvals := services.NewApprovalService(db, engine, dispatcher, cfg.OTP.IssueParallel)
	router := &services.Router{
		Engine:       engine,
		Approvals:    approvals,
		Prompts:      dispatcher,
		Correlations: st.Correlations,
		Links:        st.Links,
		Callback:     services.NewHTTPCallback(0),
		Locks:        st.Locks,
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{DB: db, Approvals: approvals, Webhook: router}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Str("store_backend", cfg.StoreBackend).Msg("listening")
		serverErrCh <- srv.ListenAndServe()
	}()

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("stopped")
}

// setupLogging configures the global zerolog logger. Request-scoped loggers
// are derived from it and reached through log.Ctx in services.
func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.OTEL.ServiceName).Logger()
	}
	zerolog.DefaultContextLogger = &log.Logger
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	if cfg.DBDriver == "postgres" {
		return repo.OpenPostgres(cfg.DatabaseURL)
	}
	return repo.OpenSQLite(cfg.DBPath)
}
