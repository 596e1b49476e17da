package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/updownhq/updown/internal/domain"
)

// settlementPlan is the pure outcome of classifying a round.
type settlementPlan struct {
	tag           domain.RoundTag
	winning       domain.Side
	newStakes     int64
	totalPot      int64
	fee           int64
	distributable int64
	rolloverOut   int64
}

// classify applies the settlement rules in priority order. The fee applies
// to this round's stakes only, never to carried rollover.
func classify(higher, lower, rollover, baseline, outcome, feeBps int64) settlementPlan {
	newStakes := higher + lower
	plan := settlementPlan{
		newStakes: newStakes,
		totalPot:  newStakes + rollover,
	}

	switch {
	case newStakes == 0:
		// Nothing was staked this round. Carried value, if any, keeps
		// waiting: rollover only moves on a tie or distributes on a
		// decisive win.
		plan.tag = domain.RoundNoParticipation
		plan.rolloverOut = rollover
	case higher == 0 || lower == 0:
		// Exactly one side is funded. No comparison happened, so stakers
		// get their own money back; carried rollover is not refunded here.
		plan.tag = domain.RoundOneSided
		plan.distributable = newStakes
		plan.rolloverOut = rollover
	case outcome == baseline:
		plan.tag = domain.RoundTie
		plan.rolloverOut = plan.totalPot
	default:
		plan.tag = domain.RoundDecided
		if outcome > baseline {
			plan.winning = domain.SideHigher
		} else {
			plan.winning = domain.SideLower
		}
		plan.fee = mulDiv(newStakes, feeBps, 10000)
		plan.distributable = plan.totalPot - plan.fee
	}

	return plan
}

// Settle consumes the reported outcome for the open round, freezes its
// RoundResult, and rotates to a fresh round with the outcome as the new
// baseline. Only the keeper or owner may settle. The fee moves to the
// treasury before anything is written, the result and rotation are written
// in one store transaction, and the live round resets only after that
// write succeeds.
func (m *Market) Settle(ctx context.Context, actor string, outcome int64) (domain.RoundResult, error) {
	if err := m.guard.acquire(); err != nil {
		return domain.RoundResult{}, fmt.Errorf("engine: settle: %w", err)
	}
	defer m.guard.release()

	p, s := m.params, m.snap

	if actor != p.Owner && actor != p.Keeper {
		return domain.RoundResult{}, fmt.Errorf("engine: settle by %q: %w", actor, domain.ErrUnauthorized)
	}
	if p.Paused {
		return domain.RoundResult{}, fmt.Errorf("engine: settle: %w", domain.ErrPaused)
	}

	now := m.now()
	if UntilSettlement(now, s.LastSettlement, p.Interval) > 0 {
		return domain.RoundResult{}, fmt.Errorf("engine: settle round %d: %w", s.Round, domain.ErrNotSettleable)
	}
	if outcome < p.OutcomeMin || outcome > p.OutcomeMax {
		return domain.RoundResult{}, fmt.Errorf("engine: settle: outcome %d: %w", outcome, domain.ErrOutcomeOutOfRange)
	}

	plan := classify(m.higher, m.lower, s.Rollover, s.Baseline, outcome, p.FeeBps)

	res := domain.RoundResult{
		Round:         s.Round,
		Tag:           plan.tag,
		Baseline:      s.Baseline,
		Outcome:       outcome,
		WinningSide:   plan.winning,
		HigherPool:    m.higher,
		LowerPool:     m.lower,
		Fee:           plan.fee,
		Distributable: plan.distributable,
		RolloverIn:    s.Rollover,
		RolloverOut:   plan.rolloverOut,
		SettledAt:     now,
	}

	// The fee moves first: a sink that refuses payment aborts the whole
	// settlement before anything is written.
	feeRef := fmt.Sprintf("fee:%d", res.Round)
	if res.Fee > 0 {
		if err := m.deps.Bank.Disburse(ctx, p.Treasury, res.Fee, feeRef); err != nil {
			return domain.RoundResult{}, fmt.Errorf("engine: settle: paying fee %d to treasury: %w", res.Fee, err)
		}
	}

	next := domain.MarketSnapshot{
		Round:          s.Round + 1,
		Baseline:       outcome,
		LastSettlement: now,
		Rollover:       plan.rolloverOut,
	}

	if err := m.deps.Rounds.SaveResult(ctx, res, next); err != nil {
		if res.Fee > 0 {
			if cerr := m.deps.Bank.Collect(ctx, p.Treasury, res.Fee, "reversal:"+feeRef); cerr != nil {
				m.logger.ErrorContext(ctx, "engine: fee reversal failed after aborted settlement",
					slog.Uint64("round", res.Round),
					slog.Int64("fee", res.Fee),
					slog.String("error", cerr.Error()),
				)
			}
		}
		return domain.RoundResult{}, fmt.Errorf("engine: settle: freezing result: %w", err)
	}

	// The frozen result is durable; only now does the live round rotate.
	m.mu.Lock()
	m.snap = next
	m.higher, m.lower = 0, 0
	m.stakes = make(map[string]sideTotals)
	m.mu.Unlock()

	m.emit(ctx, domain.EventRoundSettled, now, domain.RoundSettled{
		Round:         res.Round,
		Tag:           res.Tag,
		Baseline:      res.Baseline,
		Outcome:       res.Outcome,
		WinningSide:   res.WinningSide,
		HigherPool:    res.HigherPool,
		LowerPool:     res.LowerPool,
		TotalPot:      plan.totalPot,
		Fee:           res.Fee,
		Distributable: res.Distributable,
		Rollover:      res.RolloverOut,
	})

	m.logger.InfoContext(ctx, "engine: round settled",
		slog.Uint64("round", res.Round),
		slog.String("tag", string(res.Tag)),
		slog.Int64("outcome", res.Outcome),
		slog.Int64("baseline", res.Baseline),
		slog.String("winning_side", string(res.WinningSide)),
		slog.Int64("fee", res.Fee),
		slog.Int64("distributable", res.Distributable),
		slog.Int64("rollover", res.RolloverOut),
	)

	return res, nil
}
