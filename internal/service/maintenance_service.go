package service

import (
	"context"

	"gamestore/internal/metrics"

	"github.com/rs/zerolog"
)

type OrphanSweeper interface {
	DeleteOrphanedCartEntries(ctx context.Context) (int64, error)
}

type MaintenanceService struct {
	sweeper OrphanSweeper
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewMaintenanceService(logger zerolog.Logger, sweeper OrphanSweeper, m *metrics.Metrics) *MaintenanceService {
	return &MaintenanceService{
		sweeper: sweeper,
		metrics: m,
		logger:  logger.With().Str("service", "maintenance").Logger(),
	}
}

// SweepOrphanedCartEntries drops cart rows that point at a deleted game or
// a deleted user.
func (s *MaintenanceService) SweepOrphanedCartEntries(ctx context.Context) (int64, error) {
	removed, err := s.sweeper.DeleteOrphanedCartEntries(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("cart sweep failed")
		return 0, err
	}
	s.metrics.RecordCartSweep(removed)
	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Msg("removed orphaned cart entries")
	}
	return removed, nil
}
