package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/updownhq/updown/internal/domain"
)

// ArchiveService periodically offloads settled rounds and their bets that
// have aged past the retention window to blob storage. Archival is
// deliberately lazy: the hot store keeps everything inside the window, so
// claims against recent rounds never touch the archive.
type ArchiveService struct {
	archiver domain.Archiver
	retain   time.Duration
	pollDur  time.Duration
	logger   *slog.Logger
}

// NewArchiveService creates an ArchiveService. retain is how long settled
// data stays in the hot store.
func NewArchiveService(archiver domain.Archiver, retain, pollInterval time.Duration, logger *slog.Logger) *ArchiveService {
	if retain <= 0 {
		retain = 30 * 24 * time.Hour
	}
	if pollInterval <= 0 {
		pollInterval = time.Hour
	}
	return &ArchiveService{
		archiver: archiver,
		retain:   retain,
		pollDur:  pollInterval,
		logger:   logger.With(slog.String("component", "archive_service")),
	}
}

// Run archives on a timer until ctx is cancelled. Call in a goroutine.
func (a *ArchiveService) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "archiver started",
		slog.Duration("retain", a.retain),
		slog.Duration("poll_interval", a.pollDur),
	)
	ticker := time.NewTicker(a.pollDur)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.sweep(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep runs one archival pass immediately, outside the timer. Exposed
// for operations tooling.
func (a *ArchiveService) Sweep(ctx context.Context) error {
	return a.sweep(ctx)
}

func (a *ArchiveService) sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-a.retain)

	rounds, err := a.archiver.ArchiveRounds(ctx, cutoff)
	if err != nil {
		return err
	}
	bets, err := a.archiver.ArchiveBets(ctx, cutoff)
	if err != nil {
		return err
	}
	if rounds > 0 || bets > 0 {
		a.logger.InfoContext(ctx, "archived aged records",
			slog.Time("cutoff", cutoff),
			slog.Int64("rounds", rounds),
			slog.Int64("bets", bets),
		)
	}
	return nil
}
