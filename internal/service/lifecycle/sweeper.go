package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hammerstone/live-auction-backend/internal/infrastructure/config"
)

// Sweeper periodically closes active auctions whose end time has passed.
// Safe to run on every instance: the per-auction lock plus the status
// re-check make concurrent sweeps converge.
type Sweeper struct {
	service  *Service
	logger   *zap.Logger
	interval time.Duration
	batch    int
}

// NewSweeper creates the expiry sweeper.
func NewSweeper(service *Service, cfg *config.Config, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		service:  service,
		logger:   logger,
		interval: cfg.Sweeper.Interval,
		batch:    cfg.Sweeper.Batch,
	}
}

// Run blocks until ctx is cancelled, sweeping on every tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("auction sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("auction sweeper stopped")
			return
		case <-ticker.C:
			closed, err := s.service.CloseDue(ctx, s.batch)
			if err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
				continue
			}
			if closed > 0 {
				s.logger.Info("closed due auctions", zap.Int("count", closed))
			}
		}
	}
}
