package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// RoundStore persists immutable settlement results. SaveResult writes the
// result and the rotated snapshot atomically: claims must never observe a
// result without the rotation, nor a rotation without its result.
type RoundStore interface {
	SaveResult(ctx context.Context, res RoundResult, next MarketSnapshot) error
	Result(ctx context.Context, round uint64) (RoundResult, error)
	ListResults(ctx context.Context, opts ListOpts) ([]RoundResult, error)
	// ListResultsBefore returns results settled strictly before the cutoff,
	// for archival.
	ListResultsBefore(ctx context.Context, before time.Time) ([]RoundResult, error)
}

// BetStore journals every staking event.
type BetStore interface {
	Record(ctx context.Context, bet Bet) error
	// PositionFor sums a participant's recorded stakes per side for one round.
	PositionFor(ctx context.Context, round uint64, participant string) (BetPosition, error)
	ListByRound(ctx context.Context, round uint64) ([]Bet, error)
	ListByParticipant(ctx context.Context, participant string, opts ListOpts) ([]Bet, error)
	// ListBefore returns bets placed strictly before the cutoff, for archival.
	ListBefore(ctx context.Context, before time.Time) ([]Bet, error)
}

// ClaimStore persists claim records. Mark fails with ErrAlreadyClaimed when
// the (round, participant) pair exists; Unmark removes a record written by
// a claim whose payout transfer subsequently failed.
type ClaimStore interface {
	Mark(ctx context.Context, rec ClaimRecord) error
	Unmark(ctx context.Context, round uint64, participant string) error
	Claimed(ctx context.Context, round uint64, participant string) (bool, error)
	ListClaims(ctx context.Context, round uint64) ([]ClaimRecord, error)
}

// ParamsStore persists the market parameters and rotation snapshot as a
// single row. Load returns ErrNotFound before the first Seed.
type ParamsStore interface {
	Load(ctx context.Context) (MarketParams, MarketSnapshot, error)
	Seed(ctx context.Context, p MarketParams, s MarketSnapshot) error
	SaveParams(ctx context.Context, p MarketParams) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
