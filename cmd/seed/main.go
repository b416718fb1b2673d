package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v4"

	"astro-referrals/internal/config"
	"astro-referrals/internal/domain"
	"astro-referrals/internal/domain/model"
	"astro-referrals/internal/domain/ports/repository"
	pg "astro-referrals/internal/infra/db/postgres"
	"astro-referrals/internal/infra/logging"
)

// Seeds a referrer with a handful of pending referrals so the activation
// endpoint can be exercised by hand. Safe to re-run.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	count := flag.Int("referred", 4, "number of referred users to create")
	age := flag.Duration("age", 3*time.Hour, "account age of the referred users")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	tm := pg.NewTxManager(pool)
	referrals := pg.NewReferralRepo(pool)
	createdAt := time.Now().Add(-*age)

	const referrerID = "demo-referrer"
	err = tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		q := tx.(pgx.Tx)
		if err := insertUser(ctx, q, referrerID, time.Now().Add(-30*24*time.Hour), "198.51.100.1"); err != nil {
			return err
		}
		if _, err := q.Exec(ctx,
			`INSERT INTO push_tokens (token, user_id, platform) VALUES ($1,$2,'web') ON CONFLICT DO NOTHING`,
			"demo-token-"+referrerID, referrerID); err != nil {
			return fmt.Errorf("push token: %w", err)
		}

		for i := 1; i <= *count; i++ {
			id := fmt.Sprintf("demo-referred-%d", i)
			ip := fmt.Sprintf("203.0.113.%d", i)
			if err := insertUser(ctx, q, id, createdAt, ip); err != nil {
				return err
			}
			ref, err := model.NewReferral(referrerID, id, "DEMO")
			if err != nil {
				return err
			}
			if err := referrals.Create(ctx, tx, ref); err != nil {
				if errors.Is(err, domain.ErrAlreadyExists) {
					continue
				}
				return fmt.Errorf("referral %s: %w", id, err)
			}
			logger.Info().Str("referred", id).Str("ip", ip).Msg("seeded referral")
		}
		return nil
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}
	logger.Info().Str("referrer", referrerID).Int("referred", *count).Msg("seeding complete")
}

func insertUser(ctx context.Context, q pgx.Tx, id string, createdAt time.Time, ip string) error {
	if _, err := q.Exec(ctx,
		`INSERT INTO users (id, email, created_at) VALUES ($1,$2,$3) ON CONFLICT (id) DO NOTHING`,
		id, id+"@example.com", createdAt); err != nil {
		return fmt.Errorf("user %s: %w", id, err)
	}
	if _, err := q.Exec(ctx,
		`INSERT INTO user_sessions (id, user_id, ip_address, created_at) VALUES ($1,$2,$3,$4) ON CONFLICT (id) DO NOTHING`,
		id+"-session", id, ip, createdAt.Add(time.Minute)); err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	return nil
}
