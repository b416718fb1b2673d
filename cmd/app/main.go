// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"astro-referrals/internal/config"
	"astro-referrals/internal/domain/ports/adapter"
	"astro-referrals/internal/domain/ports/repository"
	payAdapters "astro-referrals/internal/infra/adapters/payment"
	pushAdapters "astro-referrals/internal/infra/adapters/push"
	"astro-referrals/internal/infra/api"
	"astro-referrals/internal/infra/api/apiv1"
	pg "astro-referrals/internal/infra/db/postgres"
	"astro-referrals/internal/infra/i18n"
	"astro-referrals/internal/infra/logging"
	"astro-referrals/internal/infra/metrics"
	red "astro-referrals/internal/infra/redis"
	"astro-referrals/internal/infra/sched"
	"astro-referrals/internal/infra/worker"
	"astro-referrals/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop processor and push, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("referral service stopped")
	}
	logger.Info().Msg("referral service stopped")
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	// ---- Redis (optional: the ledger alone still prevents double rewards) ----
	var (
		locker      adapter.Locker
		limiter     apiv1.IntakeLimiter
		redisClient *red.Client
	)
	if cfg.Redis.URL != "" {
		redisClient, err = red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Error().Err(err).Msg("redis unavailable; running without lock, intake limit and cache")
		} else {
			defer redisClient.Close()
			locker = red.NewLocker(redisClient)
			limiter = red.NewRateLimiter(redisClient)
		}
	}

	// ---- Repositories ----
	referralRepo := pg.NewReferralRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	pushTokenRepo := pg.NewPushTokenRepo(pool)
	awardRepo := pg.NewTierAwardRepo(pool)
	var identityRepo repository.IdentityRepository = pg.NewIdentityRepo(pool)
	if redisClient != nil {
		identityRepo = pg.NewIdentityRepoCacheDecorator(identityRepo, redisClient)
	}

	// ---- Payment processor ----
	var processor adapter.PaymentProcessor
	switch {
	case cfg.Stripe.SecretKey != "":
		stripeProc, err := payAdapters.NewStripeProcessor(cfg.Stripe.SecretKey, logger)
		if err != nil {
			return fmt.Errorf("stripe: %w", err)
		}
		processor = stripeProc
	case cfg.Runtime.Dev:
		processor = payAdapters.NewNoopProcessor()
	default:
		logger.Warn().Msg("stripe.secret_key not set; processor-managed subscriptions cannot be rewarded")
	}

	// ---- Push ----
	var sender adapter.PushSender
	if cfg.Firebase.CredentialsFile != "" {
		fcm, err := pushAdapters.NewFCMClient(ctx, cfg.Firebase)
		if err != nil {
			return fmt.Errorf("firebase: %w", err)
		}
		sender = pushAdapters.NewFCMSender(fcm, pushTokenRepo, cfg.Firebase.SendRate, cfg.Firebase.SendBurst, logger)
	} else {
		logger.Warn().Msg("firebase.credentials_file not set; notifications are logged only")
		sender = pushAdapters.NewNoopSender(logger)
	}

	catalog, err := i18n.NewCatalog(i18n.LocalesFS, cfg.Notifications.Locale)
	if err != nil {
		return fmt.Errorf("notification copy: %w", err)
	}

	// ---- Workers ----
	// Workers outlive the signal context so Stop can drain queued tasks.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	workers := worker.NewPool(cfg.Workers.Notifications, 30*time.Second, logger)
	workers.Start(workerCtx)

	// ---- Use cases ----
	rc := cfg.Referral
	guard := usecase.NewGuardChain(referralRepo, identityRepo, usecase.GuardPolicy{
		MinAccountAge:       rc.MinAccountAge,
		VelocityCap:         rc.VelocityCap,
		VelocityWindow:      rc.VelocityWindow,
		MaxActivationsPerIP: rc.MaxActivationsIP,
		Dev:                 cfg.Runtime.Dev,
	}, logger)
	rewards := usecase.NewRewardEngine(subRepo, processor, usecase.RewardPolicy{
		ReferrerExtension: rc.ReferrerExtension(),
		ReferredExtension: rc.ReferredExtension(),
		ProcessorTimeout:  rc.ProcessorTimeout,
	}, logger)
	ledger := usecase.NewActivationLedger(referralRepo, logger)
	tiers := usecase.NewTierProgression(referralRepo, rc.Tiers)
	notifier := usecase.NewNotificationUseCase(sender, catalog, logger)
	tierRewards := usecase.NewTierRewardUseCase(referralRepo, awardRepo, rewards, notifier, rc.Tiers, logger)
	statsUC := usecase.NewStatsUseCase(referralRepo, awardRepo, tiers, logger)

	activation := usecase.NewActivationUseCase(usecase.ActivationDeps{
		Guard:       guard,
		Rewards:     rewards,
		Ledger:      ledger,
		Tiers:       tiers,
		Notifier:    notifier,
		TierRewards: tierRewards,
		Referrals:   referralRepo,
		Locker:      locker,
		LockTTL:     cfg.Redis.LockTTL,
		Runner:      workers,
	}, logger)

	// ---- Scheduler ----
	scheduler, err := sched.NewScheduler(ctx, logger)
	if err != nil {
		return err
	}
	reconciler := sched.NewTierReconciler(tierRewards, referralRepo, cfg.Jobs.TierReconcileLookback, logger)
	for _, j := range []sched.Job{
		sched.StatsJob(cfg.Jobs.StatsInterval, statsUC, pool),
		reconciler.Job(cfg.Jobs.TierReconcileInterval),
	} {
		if err := scheduler.Add(j); err != nil {
			return err
		}
	}
	scheduler.Start()

	// ---- HTTP ----
	checks := map[string]api.Pinger{"postgres": pool.Ping}
	if redisClient != nil {
		checks["redis"] = redisClient.Ping
	}
	v1 := apiv1.NewServer(activation, statsUC, limiter, cfg.HTTP.IntakeRateLimit, logger)
	auth := api.NewServiceAuth(cfg.Auth.ServiceTokenSecret, cfg.Auth.Issuer, logger)
	srv := api.NewServer(cfg.HTTP.Port, api.NewRouter(v1, auth, cfg.HTTP.RequestTimeout, checks, logger), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		err := srv.Shutdown(shutCtx)
		if serr := scheduler.Shutdown(); serr != nil {
			err = errors.Join(err, serr)
		}
		// queued notifications and tier rewards still run
		workers.Stop()
		return err
	})
	return g.Wait()
}
