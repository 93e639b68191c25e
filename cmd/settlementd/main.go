// File: cmd/settlementd/main.go
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
	"membership-checkout/internal/infra/logging"
	"membership-checkout/internal/infra/metrics"
	"membership-checkout/internal/infra/processor"
	"membership-checkout/internal/settlement"
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
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := settlement.NewPgxPool(ctx, cfg.Settlement.DatabaseURL, 10)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	store := settlement.NewPgStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}

	// ---- Processor + auth ----
	gateway := processor.NewHostedFieldsGateway(cfg.Processor.BaseURL, cfg.Processor.SecretKey, logger)
	auth := settlement.NewAuthManager(cfg.Settlement.SessionSecret, 30*time.Minute)

	breakdowns := map[model.PurchaseKind]model.BreakdownFunc{
		model.KindMembership:   model.MembershipBreakdown,
		model.KindRegistration: model.RegistrationBreakdown(cfg.Checkout.RegistrationFeeBps),
	}
	srv := settlement.NewServer(store, gateway, auth, breakdowns, logger)

	// ---- Intent reconciler ----
	reconciler := settlement.NewReconciler(store, gateway, time.Minute, 30*time.Minute, logger)
	go reconciler.Start(ctx)

	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Settlement.Port), Handler: srv.Router()}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("settlement api listening")
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
}
