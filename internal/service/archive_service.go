package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/bondable/internal/domain"
)

// ArchiveService periodically exports the event journal of matured markets to
// cold storage.
type ArchiveService struct {
	archiver domain.Archiver
	interval time.Duration
	logger   *slog.Logger
}

// NewArchiveService creates an ArchiveService running at the given interval.
func NewArchiveService(archiver domain.Archiver, interval time.Duration, logger *slog.Logger) *ArchiveService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ArchiveService{
		archiver: archiver,
		interval: interval,
		logger:   logger.With(slog.String("component", "archive_service")),
	}
}

// Run archives once immediately, then on every tick until ctx is cancelled.
func (s *ArchiveService) Run(ctx context.Context) error {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *ArchiveService) runOnce(ctx context.Context) {
	n, err := s.archiver.ArchiveEvents(ctx, time.Now())
	if err != nil {
		s.logger.ErrorContext(ctx, "archive run failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "archive run complete",
			slog.Int64("events", n),
		)
	}
}
