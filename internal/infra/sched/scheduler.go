package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// Job is one periodic unit of work.
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds one run; zero means Interval.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs Jobs on gocron. A slow run is never overlapped by the next.
type Scheduler struct {
	s   gocron.Scheduler
	ctx context.Context
	log *zerolog.Logger
}

func NewScheduler(ctx context.Context, logger *zerolog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	compLog := logger.With().Str("component", "Scheduler").Logger()
	return &Scheduler{s: s, ctx: ctx, log: &compLog}, nil
}

func (sc *Scheduler) Add(j Job) error {
	if j.Interval <= 0 {
		j.Interval = time.Minute
	}
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = j.Interval
	}
	_, err := sc.s.NewJob(
		gocron.DurationJob(j.Interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(sc.ctx, timeout)
			defer cancel()
			start := time.Now()
			if err := j.Run(ctx); err != nil {
				sc.log.Warn().Err(err).Str("job", j.Name).Msg("job run failed")
				return
			}
			sc.log.Debug().Str("job", j.Name).Dur("took", time.Since(start)).Msg("job run finished")
		}),
		gocron.WithName(j.Name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", j.Name, err)
	}
	return nil
}

func (sc *Scheduler) Start() {
	sc.log.Info().Int("jobs", len(sc.s.Jobs())).Msg("Starting scheduler")
	sc.s.Start()
}

func (sc *Scheduler) Shutdown() error {
	sc.log.Info().Msg("Stopping scheduler")
	return sc.s.Shutdown()
}
