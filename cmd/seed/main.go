// File: cmd/seed/main.go
//
// Seeds the settlement database with sample resources and mints a developer
// session token, enough to exercise the full checkout flow locally.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"membership-checkout/internal/config"
	"membership-checkout/internal/domain/model"
	"membership-checkout/internal/settlement"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	userID := flag.String("user", "dev-user", "user id to mint a session token for")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := settlement.NewPgxPool(ctx, cfg.Settlement.DatabaseURL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	store := settlement.NewPgStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}

	seed := []*model.PurchasableResource{
		{ID: "club-standard", Kind: model.KindMembership, Name: "Standard membership", Description: "Monthly club access", Price: 1500, Currency: cfg.Settlement.Currency},
		{ID: "club-patron", Kind: model.KindMembership, Name: "Patron membership", Description: "Monthly club access plus guest passes", Price: 4500, Currency: cfg.Settlement.Currency},
		{ID: "evt-summer-gala", Kind: model.KindRegistration, Name: "Summer gala", Description: "One ticket to the summer gala", Price: 8000, Currency: cfg.Settlement.Currency},
		{ID: "evt-open-day", Kind: model.KindRegistration, Name: "Open day", Description: "Free open day registration", Price: 0, Currency: cfg.Settlement.Currency},
	}
	for _, r := range seed {
		if err := store.SaveResource(ctx, r); err != nil {
			log.Fatalf("seed resource %q: %v", r.ID, err)
		}
		fmt.Printf("seeded: %s (%s, price=%d %s)\n", r.ID, r.Kind, r.Price, r.Currency)
	}

	auth := settlement.NewAuthManager(cfg.Settlement.SessionSecret, 24*time.Hour)
	token, err := auth.Mint(*userID)
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}
	fmt.Printf("session token for %s:\n%s\n", *userID, token)
}
