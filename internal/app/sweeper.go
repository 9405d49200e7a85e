package app

import (
	"context"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// Sweeper periodically evicts idle rooms.
type Sweeper struct {
	Store    *RoomStore
	Interval time.Duration
	MaxIdle  time.Duration
	// OnEvicted is told which rooms went away so any members left can be
	// notified.
	OnEvicted func([]domain.RoomCode)
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	log.Info().Str("module", "app.sweeper").Dur("interval", s.Interval).Dur("max_idle", s.MaxIdle).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.sweeper").Msg("sweeper stopped")
			return nil
		case <-t.C:
			s.SweepOnce()
		}
	}
}

func (s *Sweeper) SweepOnce() []domain.RoomCode {
	codes := s.Store.SweepExpired(s.MaxIdle)
	if len(codes) > 0 && s.OnEvicted != nil {
		s.OnEvicted(codes)
	}
	return codes
}
