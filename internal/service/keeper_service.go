package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/updownhq/updown/internal/domain"
	"github.com/updownhq/updown/internal/metrics"
)

// settleLockKey elects one settling instance across the fleet.
const settleLockKey = "settle"

// SettleDriver is the slice of the market surface the keeper drives.
// *MarketService satisfies it.
type SettleDriver interface {
	Settle(ctx context.Context, actor string, outcome int64) (domain.RoundResult, error)
	UntilSettlement() time.Duration
}

// Alerter delivers operator notifications. *notify.Notifier satisfies it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// KeeperService drives settlement: when a round's interval elapses it
// reads the outcome source and feeds the value to the market under the
// keeper identity. With a LockManager configured, instances race for a
// short lock so exactly one settles each round; losers skip the tick and
// the idempotent engine rejects any straggler that slips through.
type KeeperService struct {
	market   SettleDriver
	source   domain.ReportSource
	locks    domain.LockManager
	alerter  Alerter
	metrics  *metrics.Metrics
	identity string
	pollDur  time.Duration
	lockTTL  time.Duration
	logger   *slog.Logger
}

// NewKeeperService creates a KeeperService. locks and alerter may be nil
// (single instance, no notifications). identity must match the market's
// configured keeper or owner for Settle to be accepted.
func NewKeeperService(
	market SettleDriver,
	source domain.ReportSource,
	locks domain.LockManager,
	alerter Alerter,
	m *metrics.Metrics,
	identity string,
	pollInterval time.Duration,
	logger *slog.Logger,
) *KeeperService {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &KeeperService{
		market:   market,
		source:   source,
		locks:    locks,
		alerter:  alerter,
		metrics:  m,
		identity: identity,
		pollDur:  pollInterval,
		lockTTL:  pollInterval + 5*time.Second,
		logger:   logger.With(slog.String("component", "keeper_service")),
	}
}

// Run polls until ctx is cancelled, settling each round as it becomes
// due. Call in a goroutine.
func (k *KeeperService) Run(ctx context.Context) error {
	k.logger.InfoContext(ctx, "keeper started",
		slog.String("identity", k.identity),
		slog.Duration("poll_interval", k.pollDur),
	)
	ticker := time.NewTicker(k.pollDur)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := k.tick(ctx); err != nil {
				k.logger.ErrorContext(ctx, "keeper tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

// tick settles the open round if due. A nil return covers both "settled"
// and "nothing to do"; errors are real faults worth an operator's eyes.
func (k *KeeperService) tick(ctx context.Context) error {
	if wait := k.market.UntilSettlement(); wait > 0 {
		return nil
	}

	if k.locks != nil {
		unlock, err := k.locks.Acquire(ctx, settleLockKey, k.lockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				k.logger.DebugContext(ctx, "settle lock held elsewhere")
				return nil
			}
			return fmt.Errorf("keeper_service: acquire settle lock: %w", err)
		}
		defer unlock()
	}

	outcome, err := k.source.Report(ctx)
	if err != nil {
		k.metrics.OracleErrors.Inc()
		return fmt.Errorf("keeper_service: read outcome source: %w", err)
	}
	k.metrics.OracleReads.Inc()

	res, err := k.market.Settle(ctx, k.identity, outcome)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotSettleable), errors.Is(err, domain.ErrBusy):
			// Lost the race to another settler; the next round's tick picks up.
			k.logger.DebugContext(ctx, "settle skipped", slog.String("reason", err.Error()))
			return nil
		case errors.Is(err, domain.ErrPaused):
			k.logger.DebugContext(ctx, "settle skipped while paused")
			return nil
		}
		k.metrics.SettleErrors.Inc()
		k.alert(ctx, "settle.failed", "Settlement failed",
			fmt.Sprintf("Round settlement failed: %v", err))
		return fmt.Errorf("keeper_service: settle: %w", err)
	}

	k.logger.InfoContext(ctx, "round settled",
		slog.Uint64("round", res.Round),
		slog.String("tag", string(res.Tag)),
		slog.Int64("outcome", res.Outcome),
		slog.Int64("fee", res.Fee),
		slog.Int64("distributable", res.Distributable),
	)
	pot := res.HigherPool + res.LowerPool + res.RolloverIn
	k.alert(ctx, "round.settled", fmt.Sprintf("Round %d settled", res.Round),
		fmt.Sprintf("Tag %s, outcome %d vs baseline %d, pot %d, fee %d.",
			res.Tag, res.Outcome, res.Baseline, pot, res.Fee))
	return nil
}

func (k *KeeperService) alert(ctx context.Context, event, title, message string) {
	if k.alerter == nil {
		return
	}
	if err := k.alerter.Notify(ctx, event, title, message); err != nil {
		k.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
