// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"membership-checkout/internal/config"
	"membership-checkout/internal/domain/model"
	"membership-checkout/internal/infra/backendapi"
	"membership-checkout/internal/infra/logging"
	"membership-checkout/internal/infra/metrics"
	"membership-checkout/internal/infra/processor"
	red "membership-checkout/internal/infra/redis"
	"membership-checkout/internal/infra/web"
	"membership-checkout/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logging)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}
	metrics.MustRegister()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	sessionRepo := red.NewCheckoutStateRepo(redisClient, cfg.Redis.TTL)
	credStore := red.NewCredentialStore(redisClient, 24*time.Hour)
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Gateways ----
	backend := backendapi.NewClient(cfg.Backend.BaseURL, logger)
	gateway := processor.NewHostedFieldsGateway(cfg.Processor.BaseURL, cfg.Processor.SecretKey, logger)

	// ---- Use cases ----
	guard := usecase.NewSessionGuard(credStore, logger)
	fetcher := usecase.NewResourceFetcher(backend, logger)
	provisioner := usecase.NewIntentProvisioner(backend, guard, logger)
	form := usecase.NewCardCaptureForm(gateway, logger)

	breakdowns := map[model.PurchaseKind]model.BreakdownFunc{
		model.KindMembership:   model.MembershipBreakdown,
		model.KindRegistration: model.RegistrationBreakdown(cfg.Checkout.RegistrationFeeBps),
	}
	coordinator := usecase.NewCheckoutCoordinator(
		sessionRepo, backend, gateway,
		fetcher, provisioner, form, guard,
		locker, breakdowns,
		usecase.SettlePolicy{
			AutoAttempts: cfg.Checkout.SettleAutoAttempts,
			Backoff:      cfg.Checkout.SettleBackoff,
			MaxRounds:    cfg.Checkout.SettleMaxRounds,
		},
		logger,
	)

	// ---- HTTP server ----
	srv := web.NewServer(coordinator, rateLimiter, cfg.Processor.PublishableKey, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: srv.Router()}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("checkout api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	_ = redisClient.Close()
}
