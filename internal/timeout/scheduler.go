package timeout

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Expirer cancels PENDING orders created before a cutoff.
type Expirer interface {
	ExpireStale(ctx context.Context, before time.Time, limit int) (int, error)
}

// Scheduler periodically cancels orders whose payment never arrived. It can
// run next to the payment consumer; the order status CAS decides which wins.
type Scheduler struct {
	expirer  Expirer
	ttl      time.Duration
	interval time.Duration
	batch    int
	log      zerolog.Logger
	now      func() time.Time
}

func New(e Expirer, ttl, interval time.Duration, batch int, log zerolog.Logger) *Scheduler {
	if batch <= 0 {
		batch = 100
	}
	return &Scheduler{
		expirer:  e,
		ttl:      ttl,
		interval: interval,
		batch:    batch,
		log:      log.With().Str("component", "timeout").Logger(),
		now:      time.Now,
	}
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	s.log.Info().Dur("ttl", s.ttl).Dur("interval", s.interval).Msg("timeout scheduler started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Tick expires stale orders in batches until a batch comes back short.
func (s *Scheduler) Tick(ctx context.Context) int {
	cutoff := s.now().Add(-s.ttl)
	total := 0
	for ctx.Err() == nil {
		n, err := s.expirer.ExpireStale(ctx, cutoff, s.batch)
		total += n
		if err != nil {
			if ctx.Err() == nil {
				s.log.Error().Err(err).Msg("expire stale orders")
			}
			break
		}
		if n < s.batch {
			break
		}
	}
	if total > 0 {
		s.log.Info().Int("expired", total).Time("cutoff", cutoff).Msg("expired stale orders")
	}
	return total
}
