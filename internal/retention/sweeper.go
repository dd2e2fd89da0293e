// Package retention periodically purges old completed tasks.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"workdeck/internal/store"
)

type Sweeper struct {
	repo   store.Repository
	sched  cron.Schedule
	maxAge time.Duration
	stop   chan struct{}
}

// New builds a sweeper that deletes COMPLETED tasks last touched more than
// maxAge ago, on the given standard cron schedule.
func New(repo store.Repository, cronExpr string, maxAge time.Duration) (*Sweeper, error) {
	sched, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, err
	}
	return &Sweeper{repo: repo, sched: sched, maxAge: maxAge, stop: make(chan struct{})}, nil
}

func (s *Sweeper) Run(ctx context.Context) {
	next := s.sched.Next(time.Now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	log.Info().Time("next_run", next).Dur("max_age", s.maxAge).Msg("retention sweeper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case now := <-timer.C:
			s.sweep(ctx, now)
			next = s.sched.Next(now)
			timer.Reset(time.Until(next))
		}
	}
}

func (s *Sweeper) Stop() { close(s.stop) }

func (s *Sweeper) sweep(ctx context.Context, now time.Time) {
	n, err := s.repo.PurgeCompletedBefore(ctx, now.Add(-s.maxAge))
	if err != nil {
		log.Error().Err(err).Msg("retention sweep failed")
		return
	}
	if n > 0 {
		log.Info().Int64("purged", n).Msg("retention sweep purged completed tasks")
	}
}
