package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"astro-referrals/internal/config"
	"astro-referrals/internal/infra/api"
	"astro-referrals/internal/infra/db/postgres"
	"astro-referrals/internal/infra/logging"
)

// Resets the referral tables to a clean state for manual end-to-end testing
// and prints a short-lived service token for calling the internal API.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	subject := flag.String("subject", "e2e", "service token subject")
	ttl := flag.Duration("ttl", time.Hour, "service token lifetime")
	keepData := flag.Bool("keep-data", false, "only mint the token")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	if !*keepData {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 2)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		defer pool.Close()

		logger.Info().Msg("wiping referral data")
		if _, err := pool.Exec(ctx, `
			TRUNCATE referral_tier_awards, referrals, subscriptions, push_tokens, user_sessions, users
			RESTART IDENTITY CASCADE;
		`); err != nil {
			logger.Fatal().Err(err).Msg("failed to truncate tables")
		}
	}

	auth := api.NewServiceAuth(cfg.Auth.ServiceTokenSecret, cfg.Auth.Issuer, logger)
	tok, err := auth.Mint(*subject, "activations", *ttl)
	if err != nil {
		logger.Fatal().Err(err).Msg("mint service token")
	}
	fmt.Println(tok)
}
