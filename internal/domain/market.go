// Package domain holds the core types, errors, and interfaces of the
// updown wagering market. All monetary amounts are int64 in the smallest
// currency unit; outcome and baseline values are int64 fixed-point with
// two implied decimal digits.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Side is one of the two positions a participant can take against the
// baseline.
type Side string

const (
	SideHigher Side = "higher"
	SideLower  Side = "lower"
)

// Valid reports whether s is a recognized side.
func (s Side) Valid() bool {
	return s == SideHigher || s == SideLower
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideHigher {
		return SideLower
	}
	return SideHigher
}

// RoundTag classifies how a round settled.
type RoundTag string

const (
	// RoundNoParticipation: nothing at stake, nothing carried in.
	RoundNoParticipation RoundTag = "no_participation"
	// RoundOneSided: exactly one side had stake; stakers are refunded.
	RoundOneSided RoundTag = "one_sided"
	// RoundTie: outcome equalled the baseline; the whole pot rolls over.
	RoundTie RoundTag = "tie"
	// RoundDecided: one side won; winners split the pot proportionally.
	RoundDecided RoundTag = "decided"
)

// MarketParams is the singleton market configuration, mutated only by the
// owner role through audited setter operations.
type MarketParams struct {
	MinBet     int64
	MaxBet     int64 // 0 = unlimited
	FeeBps     int64 // basis points charged on a decided round's new stakes
	Interval   time.Duration
	CutoffLead time.Duration // betting closes this long before settlement
	OutcomeMin int64         // inclusive bound on reported outcomes
	OutcomeMax int64
	Owner      string
	Keeper     string
	Treasury   string
	Paused     bool
	SafeMode   bool // halts new stakes only; settlement and claims continue
}

// Validate checks the internal consistency of the parameters. All problems
// are reported in a single error wrapping ErrInvalidParams.
func (p MarketParams) Validate() error {
	var problems []string

	if p.MinBet <= 0 {
		problems = append(problems, "min bet must be positive")
	}
	if p.MaxBet != 0 && p.MaxBet < p.MinBet {
		problems = append(problems, "max bet below min bet")
	}
	if p.FeeBps < 0 || p.FeeBps > 10000 {
		problems = append(problems, "fee bps must be in [0, 10000]")
	}
	if p.Interval <= 0 {
		problems = append(problems, "interval must be positive")
	}
	if p.CutoffLead < 0 || p.CutoffLead > p.Interval {
		problems = append(problems, "cutoff lead must be in [0, interval]")
	}
	if p.OutcomeMin <= 0 || p.OutcomeMax <= p.OutcomeMin {
		problems = append(problems, "outcome bounds must satisfy 0 < min < max")
	}
	if p.Owner == "" {
		problems = append(problems, "owner identity required")
	}
	if p.Keeper == "" {
		problems = append(problems, "keeper identity required")
	}
	if p.Treasury == "" {
		problems = append(problems, "treasury identity required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(problems, "; "))
	}
	return nil
}

// Halted reports whether new stakes are currently refused.
func (p MarketParams) Halted() bool {
	return p.Paused || p.SafeMode
}

// MarketSnapshot is the rotating per-round state persisted alongside the
// parameters: which round is open, what it is measured against, and what
// undistributed value it inherited.
type MarketSnapshot struct {
	Round          uint64
	Baseline       int64
	LastSettlement time.Time
	Rollover       int64
}

// RoundResult is the immutable record frozen at settlement. It is the sole
// source of truth for all later claims; the live pools it was computed from
// are reset the moment it is written.
type RoundResult struct {
	Round         uint64
	Tag           RoundTag
	Baseline      int64
	Outcome       int64
	WinningSide   Side // set only when Tag == RoundDecided
	HigherPool    int64
	LowerPool     int64
	Fee           int64
	Distributable int64 // decided: post-fee winner pot; one-sided: refund base
	RolloverIn    int64 // carried value merged into this round's pot
	RolloverOut   int64 // value handed to the next round
	SettledAt     time.Time
}

// Bet is one staking event, journaled for rehydration, position queries,
// claim computation, and archival.
type Bet struct {
	ID          string
	Round       uint64
	Participant string
	Side        Side
	Amount      int64
	Baseline    int64 // the round's baseline at stake time
	PlacedAt    time.Time
}

// BetPosition is a participant's cumulative exposure in one round. A
// participant may hold stake on both sides at once.
type BetPosition struct {
	Round  uint64
	Higher int64
	Lower  int64
}

// Total returns the participant's combined stake across both sides.
func (p BetPosition) Total() int64 {
	return p.Higher + p.Lower
}

// ClaimRecord marks a payout as realized for one (round, participant) pair.
// Written exactly once per successful claim.
type ClaimRecord struct {
	Round       uint64
	Participant string
	Amount      int64
	ClaimedAt   time.Time
}

// MarketState is the read-only snapshot served to clients.
type MarketState struct {
	Round             uint64
	Baseline          int64
	HigherPool        int64
	LowerPool         int64
	Rollover          int64
	BettingOpen       bool
	UntilBettingClose time.Duration
	UntilSettlement   time.Duration
	Paused            bool
	SafeMode          bool
	MinBet            int64
	MaxBet            int64
	FeeBps            int64
	LastSettlement    time.Time
	AsOf              time.Time
}
