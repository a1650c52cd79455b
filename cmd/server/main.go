package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zoosats/devicetimer/internal/admission"
	"github.com/zoosats/devicetimer/internal/config"
	"github.com/zoosats/devicetimer/internal/database"
	"github.com/zoosats/devicetimer/internal/fx"
	"github.com/zoosats/devicetimer/internal/handler"
	"github.com/zoosats/devicetimer/internal/jobs"
	"github.com/zoosats/devicetimer/internal/middleware"
	"github.com/zoosats/devicetimer/internal/redis"
	"github.com/zoosats/devicetimer/internal/repository"
	"github.com/zoosats/devicetimer/internal/service"
	"github.com/zoosats/devicetimer/internal/settlement"
	"github.com/zoosats/devicetimer/internal/wallet"
	"github.com/zoosats/devicetimer/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	deviceRepo := repository.NewDeviceRepository(db.DB)
	paymentRepo := repository.NewPaymentRepository(db.DB)

	registry := ws.NewRegistry()
	evaluator := admission.NewEvaluator(paymentRepo)
	walletClient := wallet.NewClient(cfg.WalletAPIURL)
	converter := fx.NewConverter(cfg.RateAPIURL, cfg.RateCacheTTL(), redisClient)

	deviceService := service.NewDeviceService(deviceRepo, cfg.PublicURL)
	paymentService := service.NewPaymentService(
		deviceRepo, paymentRepo, evaluator, walletClient, converter, cfg.PublicURL,
	)

	adminKeyMiddleware := middleware.NewAdminKeyMiddleware(cfg.AdminAPIKey)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(redisClient.Client, cfg.LnurlRateLimitPerMin)

	deviceHandler := handler.NewDeviceHandler(deviceService)
	lnurlHandler := handler.NewLnurlHandler(paymentService)
	qrcodeHandler := handler.NewQRCodeHandler(deviceService, paymentService)
	wsHandler := handler.NewWSHandler(registry)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		// Device management, admin only.
		api.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Use(adminKeyMiddleware.Handler)
			r.Post("/v1/device", deviceHandler.Create)
			r.Get("/v1/device", deviceHandler.List)
			r.Get("/v1/device/{deviceID}", deviceHandler.Get)
			r.Put("/v1/device/{deviceID}", deviceHandler.Update)
			r.Delete("/v1/device/{deviceID}", deviceHandler.Delete)
			r.Get("/v1/currencies", deviceHandler.Currencies)
			r.Get("/v1/timezones", deviceHandler.Timezones)
		})

		// Wallet-facing LNURL endpoints, unauthenticated but rate limited.
		api.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Use(rateLimitMiddleware.Handler)
			r.Get("/v1/lnurl/{deviceID}", lnurlHandler.PayRequest)
			r.Get("/v2/lnurl/{deviceID}", lnurlHandler.PayRequest)
			r.Get("/v1/lnurl/cb/{paymentID}", lnurlHandler.Callback)
		})

		// WebSocket connections are long-lived; no request timeout.
		api.Get("/v1/ws/status", wsHandler.Status)
		api.Get("/v1/ws/{deviceID}", wsHandler.Connect)
	})

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Mount("/device", qrcodeHandler.Routes())
	})

	listenerCtx, stopListener := context.WithCancel(context.Background())
	defer stopListener()

	feed := settlement.NewFeed(redisClient, cfg.SettlementChannel)
	listener := settlement.NewListener(paymentRepo, deviceRepo, registry)
	go listener.Run(listenerCtx, feed.Events(listenerCtx))

	var rateJob *jobs.RateRefreshJob
	if cfg.RateAPIURL != "" {
		rateJob = jobs.NewRateRefreshJob(converter, fx.SupportedCurrencies, config.RateRefreshInterval)
		rateJob.Start()
		defer rateJob.Stop()
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	stopListener()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
