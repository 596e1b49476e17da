package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/updownhq/updown/internal/domain"
)

func TestClaimDecidedRound(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1000)
	f.fund("bob", 1000)
	f.stake("alice", domain.SideHigher, 100)
	f.stake("bob", domain.SideLower, 100)
	f.settle(145000)

	got, err := f.market.Claim(f.ctx, "alice", 1)
	if err != nil {
		t.Fatalf("winner claim: %v", err)
	}
	if got != 196 {
		t.Errorf("payout = %d, want 196", got)
	}
	f.assertBalance("alice", 1096)

	if _, err := f.market.Claim(f.ctx, "bob", 1); !errors.Is(err, domain.ErrNothingToClaim) {
		t.Errorf("loser claim: error = %v, want ErrNothingToClaim", err)
	}
	f.assertBalance("bob", 900)

	// 200 in, 4 fee out, 196 paid out.
	f.assertBalance("escrow", 0)
	f.assertBalance("treasury", 4)
}

func TestClaimIdempotent(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1000)
	f.fund("bob", 1000)
	f.stake("alice", domain.SideHigher, 100)
	f.stake("bob", domain.SideLower, 100)
	f.settle(145000)

	if _, err := f.market.Claim(f.ctx, "alice", 1); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := f.market.Claim(f.ctx, "alice", 1); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Fatalf("second claim: error = %v, want ErrAlreadyClaimed", err)
	}
	f.assertBalance("alice", 1096)
}

func TestClaimSurvivesLaterRounds(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1000)
	f.fund("bob", 1000)
	f.stake("alice", domain.SideHigher, 100)
	f.stake("bob", domain.SideLower, 100)
	f.settle(145000)

	// Two more rounds settle before alice gets around to claiming round 1.
	f.settle(150000)
	f.settle(140000)

	got, err := f.market.Claim(f.ctx, "alice", 1)
	if err != nil {
		t.Fatalf("late claim: %v", err)
	}
	if got != 196 {
		t.Errorf("late payout = %d, want 196", got)
	}
}

func TestClaimUnsettledRound(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1000)
	f.stake("alice", domain.SideHigher, 100)

	// The open round has no frozen result yet.
	if _, err := f.market.Claim(f.ctx, "alice", 1); !errors.Is(err, domain.ErrRoundNotSettled) {
		t.Errorf("claim open round: error = %v, want ErrRoundNotSettled", err)
	}
	// Neither does a round that never existed.
	if _, err := f.market.Claim(f.ctx, "alice", 99); !errors.Is(err, domain.ErrRoundNotSettled) {
		t.Errorf("claim unknown round: error = %v, want ErrRoundNotSettled", err)
	}
}

func TestClaimEmptyParticipant(t *testing.T) {
	f := newFixture(t)
	if _, err := f.market.Claim(f.ctx, "", 1); !errors.Is(err, domain.ErrInvalidAccount) {
		t.Errorf("claim without participant: error = %v, want ErrInvalidAccount", err)
	}
}

func TestClaimByNonParticipant(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1000)
	f.fund("bob", 1000)
	f.stake("alice", domain.SideHigher, 100)
	f.stake("bob", domain.SideLower, 100)
	f.settle(145000)

	if _, err := f.market.Claim(f.ctx, "mallory", 1); !errors.Is(err, domain.ErrNothingToClaim) {
		t.Errorf("claim by bystander: error = %v, want ErrNothingToClaim", err)
	}
}

func TestClaimWhilePaused(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1000)
	f.fund("bob", 1000)
	f.stake("alice", domain.SideHigher, 100)
	f.stake("bob", domain.SideLower, 100)
	f.settle(145000)

	if err := f.market.Pause(f.ctx, "owner"); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	// A pause halts the wagering cycle, never settled payouts.
	got, err := f.market.Claim(f.ctx, "alice", 1)
	if err != nil {
		t.Fatalf("claim while paused: %v", err)
	}
	if got != 196 {
		t.Errorf("payout = %d, want 196", got)
	}
}

func TestClaimTransferFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1000)
	f.fund("bob", 1000)
	f.stake("alice", domain.SideHigher, 100)
	f.stake("bob", domain.SideLower, 100)
	f.settle(145000)

	wireDown := errors.New("payout rail down")
	f.bank.beforeDisburse = func(to string, amount int64, ref string) error {
		if to == "alice" {
			return wireDown
		}
		return nil
	}

	if _, err := f.market.Claim(f.ctx, "alice", 1); !errors.Is(err, wireDown) {
		t.Fatalf("claim error = %v, want the transfer failure", err)
	}

	// The record was rolled back, so nothing is stuck claimed.
	claimed, err := f.store.Claimed(f.ctx, 1, "alice")
	if err != nil {
		t.Fatalf("Claimed: %v", err)
	}
	if claimed {
		t.Fatal("claim record survived a failed transfer")
	}
	f.assertBalance("alice", 900)

	// Retry pays exactly once.
	f.bank.beforeDisburse = nil
	got, err := f.market.Claim(f.ctx, "alice", 1)
	if err != nil {
		t.Fatalf("retry claim: %v", err)
	}
	if got != 196 {
		t.Errorf("retry payout = %d, want 196", got)
	}
	if _, err := f.market.Claim(f.ctx, "alice", 1); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Errorf("claim after retry: error = %v, want ErrAlreadyClaimed", err)
	}
	f.assertBalance("alice", 1096)
}

func TestClaimReentryRejected(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1000)
	f.fund("bob", 1000)
	f.stake("alice", domain.SideHigher, 100)
	f.stake("bob", domain.SideLower, 100)
	f.settle(145000)

	// A transfer that calls back into the engine mid-payout is refused
	// without blocking; the outer claim still completes.
	var reentry error
	f.bank.beforeDisburse = func(to string, amount int64, ref string) error {
		if strings.HasPrefix(ref, "claim:") {
			_, reentry = f.market.Claim(f.ctx, "alice", 1)
		}
		return nil
	}

	got, err := f.market.Claim(f.ctx, "alice", 1)
	if err != nil {
		t.Fatalf("outer claim: %v", err)
	}
	if got != 196 {
		t.Errorf("outer payout = %d, want 196", got)
	}
	if !errors.Is(reentry, domain.ErrBusy) {
		t.Errorf("re-entrant claim: error = %v, want ErrBusy", reentry)
	}
	f.assertBalance("alice", 1096)
}

func TestClaimableMatchesClaim(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1000)
	f.fund("bob", 1000)
	f.stake("alice", domain.SideHigher, 100)
	f.stake("bob", domain.SideLower, 100)

	// Nothing is claimable while the round is open.
	if got := f.claimable(1, "alice"); got != 0 {
		t.Errorf("claimable before settlement = %d, want 0", got)
	}

	f.settle(145000)

	if got := f.claimable(1, "alice"); got != 196 {
		t.Errorf("winner claimable = %d, want 196", got)
	}
	if got := f.claimable(1, "bob"); got != 0 {
		t.Errorf("loser claimable = %d, want 0", got)
	}
	if got := f.claimable(7, "alice"); got != 0 {
		t.Errorf("claimable unknown round = %d, want 0", got)
	}
	if got := f.claimable(1, ""); got != 0 {
		t.Errorf("claimable empty participant = %d, want 0", got)
	}

	paid, err := f.market.Claim(f.ctx, "alice", 1)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid != 196 {
		t.Errorf("paid = %d, want 196", paid)
	}
	if got := f.claimable(1, "alice"); got != 0 {
		t.Errorf("claimable after claim = %d, want 0", got)
	}
}

func (f *fixture) claimable(round uint64, participant string) int64 {
	f.t.Helper()
	got, err := f.market.Claimable(f.ctx, round, participant)
	if err != nil {
		f.t.Fatalf("Claimable(%d, %q): %v", round, participant, err)
	}
	return got
}

func TestClaimFlooringConservesValue(t *testing.T) {
	f := newFixture(t, func(p *domain.MarketParams) {
		p.FeeBps = 0
	})
	f.fund("alice", 100)
	f.fund("bob", 100)
	f.fund("carol", 100)

	f.stake("alice", domain.SideHigher, 10)
	f.stake("bob", domain.SideHigher, 20)
	f.stake("carol", domain.SideLower, 50)
	res := f.settle(145000)

	if res.Distributable != 80 {
		t.Fatalf("distributable = %d, want 80", res.Distributable)
	}

	// floor(10*80/30) and floor(20*80/30): each share floors down.
	p1, err := f.market.Claim(f.ctx, "alice", 1)
	if err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	p2, err := f.market.Claim(f.ctx, "bob", 1)
	if err != nil {
		t.Fatalf("bob claim: %v", err)
	}
	if p1 != 26 || p2 != 53 {
		t.Errorf("payouts = %d/%d, want 26/53", p1, p2)
	}

	// The dust stays in escrow and is below the winner count.
	dust := res.Distributable - p1 - p2
	if dust != 1 {
		t.Errorf("dust = %d, want 1", dust)
	}
	f.assertBalance("escrow", dust)
}

func TestPayoutFor(t *testing.T) {
	decided := domain.RoundResult{
		Tag:           domain.RoundDecided,
		WinningSide:   domain.SideHigher,
		HigherPool:    100,
		LowerPool:     100,
		Distributable: 196,
	}

	cases := []struct {
		name string
		res  domain.RoundResult
		pos  domain.BetPosition
		want int64
	}{
		{"full winning pool", decided, domain.BetPosition{Higher: 100}, 196},
		{"half the winning pool", decided, domain.BetPosition{Higher: 50}, 98},
		{"losing side only", decided, domain.BetPosition{Lower: 100}, 0},
		{"both sides pays winning share", decided, domain.BetPosition{Higher: 50, Lower: 30}, 98},
		{"no position", decided, domain.BetPosition{}, 0},
		{
			"one sided refunds the sum",
			domain.RoundResult{Tag: domain.RoundOneSided},
			domain.BetPosition{Higher: 70, Lower: 0},
			70,
		},
		{
			"tie pays nothing",
			domain.RoundResult{Tag: domain.RoundTie},
			domain.BetPosition{Higher: 100},
			0,
		},
		{
			"no participation pays nothing",
			domain.RoundResult{Tag: domain.RoundNoParticipation},
			domain.BetPosition{},
			0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := payoutFor(tc.res, tc.pos); got != tc.want {
				t.Errorf("payoutFor = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestMulDivAvoidsOverflow(t *testing.T) {
	// 2^62 * 3 overflows int64; the big.Int path must not.
	const huge = int64(1) << 62
	if got := mulDiv(huge, 3, 3); got != huge {
		t.Errorf("mulDiv(2^62, 3, 3) = %d, want %d", got, huge)
	}
	if got := mulDiv(7, 3, 2); got != 10 {
		t.Errorf("mulDiv(7, 3, 2) = %d, want 10 (floored)", got)
	}
	if got := mulDiv(0, 100, 7); got != 0 {
		t.Errorf("mulDiv(0, 100, 7) = %d, want 0", got)
	}
}
