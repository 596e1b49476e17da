package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/updownhq/updown/internal/domain"
)

// Stake wagers amount on side for the open round. The amount is collected
// into escrow and journaled before the live pools change; repeated stakes
// by the same participant accumulate, on either side.
func (m *Market) Stake(ctx context.Context, participant string, side domain.Side, amount int64) (domain.Bet, error) {
	if err := m.guard.acquire(); err != nil {
		return domain.Bet{}, fmt.Errorf("engine: stake: %w", err)
	}
	defer m.guard.release()

	p, s := m.params, m.snap
	now := m.now()

	switch {
	case participant == "":
		return domain.Bet{}, fmt.Errorf("engine: stake: %w: participant required", domain.ErrInvalidAccount)
	case !side.Valid():
		return domain.Bet{}, fmt.Errorf("engine: stake: %q: %w", side, domain.ErrInvalidSide)
	case amount <= 0:
		return domain.Bet{}, fmt.Errorf("engine: stake: %d: %w", amount, domain.ErrInvalidAmount)
	case p.Paused:
		return domain.Bet{}, fmt.Errorf("engine: stake: %w", domain.ErrPaused)
	case p.SafeMode:
		return domain.Bet{}, fmt.Errorf("engine: stake: %w", domain.ErrSafeMode)
	case amount < p.MinBet:
		return domain.Bet{}, fmt.Errorf("engine: stake: %d below %d: %w", amount, p.MinBet, domain.ErrBetTooSmall)
	case p.MaxBet != 0 && amount > p.MaxBet:
		return domain.Bet{}, fmt.Errorf("engine: stake: %d above %d: %w", amount, p.MaxBet, domain.ErrBetTooLarge)
	case !BettingOpen(now, s.LastSettlement, p.Interval, p.CutoffLead, false):
		return domain.Bet{}, fmt.Errorf("engine: stake round %d: %w", s.Round, domain.ErrBettingClosed)
	}

	bet := domain.Bet{
		ID:          uuid.NewString(),
		Round:       s.Round,
		Participant: participant,
		Side:        side,
		Amount:      amount,
		Baseline:    s.Baseline,
		PlacedAt:    now,
	}

	ref := fmt.Sprintf("stake:%d:%s:%s", bet.Round, participant, bet.ID)
	if err := m.deps.Bank.Collect(ctx, participant, amount, ref); err != nil {
		return domain.Bet{}, fmt.Errorf("engine: stake: collecting %d from %s: %w", amount, participant, err)
	}

	if err := m.deps.Bets.Record(ctx, bet); err != nil {
		// Escrow must not hold value with no journal row backing it.
		if rerr := m.deps.Bank.Disburse(ctx, participant, amount, "reversal:"+ref); rerr != nil {
			m.logger.ErrorContext(ctx, "engine: stake reversal failed, escrow holds unjournaled funds",
				slog.String("participant", participant),
				slog.Int64("amount", amount),
				slog.String("bet_id", bet.ID),
				slog.String("error", rerr.Error()),
			)
		}
		return domain.Bet{}, fmt.Errorf("engine: stake: journaling bet: %w", err)
	}

	m.mu.Lock()
	m.fold(participant, side, amount)
	m.mu.Unlock()

	m.emit(ctx, domain.EventBetPlaced, now, domain.BetPlaced{
		Round:       bet.Round,
		Participant: participant,
		Side:        side,
		Amount:      amount,
		Baseline:    bet.Baseline,
	})

	m.logger.InfoContext(ctx, "engine: bet placed",
		slog.Uint64("round", bet.Round),
		slog.String("participant", participant),
		slog.String("side", string(side)),
		slog.Int64("amount", amount),
	)

	return bet, nil
}
