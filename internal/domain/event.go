package domain

import (
	"context"
	"time"
)

// EventType names a state transition in the market lifecycle.
type EventType string

const (
	EventBetPlaced      EventType = "bet.placed"
	EventRoundSettled   EventType = "round.settled"
	EventClaimPaid      EventType = "claim.paid"
	EventMarketPaused   EventType = "market.paused"
	EventMarketUnpaused EventType = "market.unpaused"
	EventParamsUpdated  EventType = "params.updated"
	EventFundsRescued   EventType = "funds.rescued"
)

// Event is the envelope emitted exactly once per committed state change.
// Events are the canonical audit trail: they are published after the change
// is durable, never speculatively.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// BetPlaced is the payload for EventBetPlaced.
type BetPlaced struct {
	Round       uint64 `json:"round"`
	Participant string `json:"participant"`
	Side        Side   `json:"side"`
	Amount      int64  `json:"amount"`
	Baseline    int64  `json:"baseline"`
}

// RoundSettled is the payload for EventRoundSettled.
type RoundSettled struct {
	Round         uint64   `json:"round"`
	Tag           RoundTag `json:"tag"`
	Baseline      int64    `json:"baseline"`
	Outcome       int64    `json:"outcome"`
	WinningSide   Side     `json:"winning_side,omitempty"`
	HigherPool    int64    `json:"higher_pool"`
	LowerPool     int64    `json:"lower_pool"`
	TotalPot      int64    `json:"total_pot"`
	Fee           int64    `json:"fee"`
	Distributable int64    `json:"distributable"`
	Rollover      int64    `json:"rollover"`
}

// ClaimPaid is the payload for EventClaimPaid.
type ClaimPaid struct {
	Round       uint64 `json:"round"`
	Participant string `json:"participant"`
	Amount      int64  `json:"amount"`
}

// ParamsUpdated is the payload for EventParamsUpdated and the pause events.
type ParamsUpdated struct {
	Field string `json:"field"`
	Value string `json:"value"`
	Actor string `json:"actor"`
}

// FundsRescued is the payload for EventFundsRescued.
type FundsRescued struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	Actor     string `json:"actor"`
}

// EventSink receives committed events. Implementations must tolerate
// being called from the hot path: slow or failing sinks may drop or log,
// but must never unwind the state change that produced the event.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}
