package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/updownhq/updown/internal/domain"
)

// Claim realizes the participant's payout for a settled round: a win share
// on a decided round or a refund on a one-sided one. The claim record is
// written before the payout moves, so a transfer that re-enters the engine
// can never pay twice; if the transfer fails the record is rolled back and
// the claim may be retried.
func (m *Market) Claim(ctx context.Context, participant string, round uint64) (int64, error) {
	if err := m.guard.acquire(); err != nil {
		return 0, fmt.Errorf("engine: claim: %w", err)
	}
	defer m.guard.release()

	if participant == "" {
		return 0, fmt.Errorf("engine: claim: %w: participant required", domain.ErrInvalidAccount)
	}

	res, err := m.deps.Rounds.Result(ctx, round)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, fmt.Errorf("engine: claim round %d: %w", round, domain.ErrRoundNotSettled)
		}
		return 0, fmt.Errorf("engine: claim: loading result: %w", err)
	}

	claimed, err := m.deps.Claims.Claimed(ctx, round, participant)
	if err != nil {
		return 0, fmt.Errorf("engine: claim: checking record: %w", err)
	}
	if claimed {
		return 0, fmt.Errorf("engine: claim round %d: %w", round, domain.ErrAlreadyClaimed)
	}

	pos, err := m.deps.Bets.PositionFor(ctx, round, participant)
	if err != nil {
		return 0, fmt.Errorf("engine: claim: loading position: %w", err)
	}

	payout := payoutFor(res, pos)
	if payout == 0 {
		return 0, fmt.Errorf("engine: claim round %d: %w", round, domain.ErrNothingToClaim)
	}

	now := m.now()
	rec := domain.ClaimRecord{
		Round:       round,
		Participant: participant,
		Amount:      payout,
		ClaimedAt:   now,
	}

	// Mark first: the record's uniqueness is the double-claim gate even if
	// the transfer below re-enters.
	if err := m.deps.Claims.Mark(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrAlreadyClaimed) {
			return 0, fmt.Errorf("engine: claim round %d: %w", round, domain.ErrAlreadyClaimed)
		}
		return 0, fmt.Errorf("engine: claim: marking record: %w", err)
	}

	ref := fmt.Sprintf("claim:%d:%s", round, participant)
	if err := m.deps.Bank.Disburse(ctx, participant, payout, ref); err != nil {
		if uerr := m.deps.Claims.Unmark(ctx, round, participant); uerr != nil {
			m.logger.ErrorContext(ctx, "engine: claim rollback failed, record stuck claimed",
				slog.Uint64("round", round),
				slog.String("participant", participant),
				slog.String("error", uerr.Error()),
			)
		}
		return 0, fmt.Errorf("engine: claim: paying %d to %s: %w", payout, participant, err)
	}

	m.emit(ctx, domain.EventClaimPaid, now, domain.ClaimPaid{
		Round:       round,
		Participant: participant,
		Amount:      payout,
	})

	m.logger.InfoContext(ctx, "engine: claim paid",
		slog.Uint64("round", round),
		slog.String("participant", participant),
		slog.Int64("amount", payout),
	)

	return payout, nil
}

// Claimable computes what Claim would pay, without mutating anything.
// It returns 0 whenever Claim would fail.
func (m *Market) Claimable(ctx context.Context, round uint64, participant string) (int64, error) {
	if participant == "" {
		return 0, nil
	}

	res, err := m.deps.Rounds.Result(ctx, round)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("engine: claimable: loading result: %w", err)
	}

	claimed, err := m.deps.Claims.Claimed(ctx, round, participant)
	if err != nil {
		return 0, fmt.Errorf("engine: claimable: checking record: %w", err)
	}
	if claimed {
		return 0, nil
	}

	pos, err := m.deps.Bets.PositionFor(ctx, round, participant)
	if err != nil {
		return 0, fmt.Errorf("engine: claimable: loading position: %w", err)
	}

	return payoutFor(res, pos), nil
}

// payoutFor computes a participant's entitlement against a frozen result.
// Zero means a claim would fail with nothing to claim.
func payoutFor(res domain.RoundResult, pos domain.BetPosition) int64 {
	switch res.Tag {
	case domain.RoundOneSided:
		// Only one side held stake that round, so the sum is the refund.
		return pos.Higher + pos.Lower
	case domain.RoundDecided:
		stake, pool := pos.Lower, res.LowerPool
		if res.WinningSide == domain.SideHigher {
			stake, pool = pos.Higher, res.HigherPool
		}
		if stake == 0 || pool == 0 {
			return 0
		}
		return mulDiv(stake, res.Distributable, pool)
	default:
		// Tie and no-participation rounds never pay.
		return 0
	}
}

// mulDiv returns floor(a*b/den) without intermediate overflow.
func mulDiv(a, b, den int64) int64 {
	prod := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	return prod.Div(prod, big.NewInt(den)).Int64()
}
