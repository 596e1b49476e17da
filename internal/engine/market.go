package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/updownhq/updown/internal/domain"
)

// Deps are the collaborators the engine writes through to. Rounds, Bets,
// Claims, Params, and Bank are required; Events, Logger, and Now are
// optional.
type Deps struct {
	Rounds domain.RoundStore
	Bets   domain.BetStore
	Claims domain.ClaimStore
	Params domain.ParamsStore
	Bank   domain.Bank
	Events domain.EventSink
	Logger *slog.Logger
	Now    func() time.Time
}

// sideTotals is a participant's live exposure in the open round.
type sideTotals struct {
	higher int64
	lower  int64
}

// Market is the authoritative engine for one market. It holds the open
// round in memory, serializes every mutating operation through a fail-fast
// busy guard, and writes settlement results and claim records through the
// stores before committing any in-memory change that depends on them.
type Market struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time

	guard busyGuard

	// mu protects the fields below for readers; writers additionally hold
	// the busy guard, so a guard holder may read them without mu.
	mu     sync.RWMutex
	params domain.MarketParams
	snap   domain.MarketSnapshot
	higher int64
	lower  int64
	stakes map[string]sideTotals
}

// New loads the persisted market, seeding it from initial and
// initialBaseline on first boot, and rehydrates the open round from the
// bet journal.
func New(ctx context.Context, initial domain.MarketParams, initialBaseline int64, deps Deps) (*Market, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger.With(slog.String("component", "engine"))

	params, snap, err := deps.Params.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if err := initial.Validate(); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		if initialBaseline < initial.OutcomeMin || initialBaseline > initial.OutcomeMax {
			return nil, fmt.Errorf("engine: initial baseline %d: %w", initialBaseline, domain.ErrOutcomeOutOfRange)
		}
		params = initial
		snap = domain.MarketSnapshot{
			Round:          1,
			Baseline:       initialBaseline,
			LastSettlement: deps.Now(),
		}
		if err := deps.Params.Seed(ctx, params, snap); err != nil {
			return nil, fmt.Errorf("engine: seeding market: %w", err)
		}
		logger.InfoContext(ctx, "engine: market seeded",
			slog.Uint64("round", snap.Round),
			slog.Int64("baseline", snap.Baseline),
		)
	case err != nil:
		return nil, fmt.Errorf("engine: loading market: %w", err)
	default:
		if err := params.Validate(); err != nil {
			return nil, fmt.Errorf("engine: persisted params: %w", err)
		}
	}

	m := &Market{
		deps:   deps,
		logger: logger,
		now:    deps.Now,
		params: params,
		snap:   snap,
		stakes: make(map[string]sideTotals),
	}

	// Rebuild the open round's pools from its journal.
	bets, err := deps.Bets.ListByRound(ctx, snap.Round)
	if err != nil {
		return nil, fmt.Errorf("engine: rehydrating round %d: %w", snap.Round, err)
	}
	for _, b := range bets {
		m.fold(b.Participant, b.Side, b.Amount)
	}
	if len(bets) > 0 {
		logger.InfoContext(ctx, "engine: round rehydrated",
			slog.Uint64("round", snap.Round),
			slog.Int("bets", len(bets)),
			slog.Int64("higher_pool", m.higher),
			slog.Int64("lower_pool", m.lower),
		)
	}

	return m, nil
}

// fold adds a stake to the live pools and the participant map. Callers
// hold the busy guard or run before the engine is shared.
func (m *Market) fold(participant string, side domain.Side, amount int64) {
	if side == domain.SideHigher {
		m.higher += amount
	} else {
		m.lower += amount
	}
	pos := m.stakes[participant]
	if side == domain.SideHigher {
		pos.higher += amount
	} else {
		pos.lower += amount
	}
	m.stakes[participant] = pos
}

// Params returns the current market parameters.
func (m *Market) Params() domain.MarketParams {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.params
}

// State returns a consistent snapshot of the live market.
func (m *Market) State() domain.MarketState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	p, s := m.params, m.snap
	return domain.MarketState{
		Round:             s.Round,
		Baseline:          s.Baseline,
		HigherPool:        m.higher,
		LowerPool:         m.lower,
		Rollover:          s.Rollover,
		BettingOpen:       BettingOpen(now, s.LastSettlement, p.Interval, p.CutoffLead, p.Halted()),
		UntilBettingClose: UntilBettingClose(now, s.LastSettlement, p.Interval, p.CutoffLead),
		UntilSettlement:   UntilSettlement(now, s.LastSettlement, p.Interval),
		Paused:            p.Paused,
		SafeMode:          p.SafeMode,
		MinBet:            p.MinBet,
		MaxBet:            p.MaxBet,
		FeeBps:            p.FeeBps,
		LastSettlement:    s.LastSettlement,
		AsOf:              now,
	}
}

// MyBet returns the participant's live exposure in the open round.
func (m *Market) MyBet(participant string) domain.BetPosition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos := m.stakes[participant]
	return domain.BetPosition{
		Round:  m.snap.Round,
		Higher: pos.higher,
		Lower:  pos.lower,
	}
}

// BettingOpen reports whether a stake would pass the window check now.
func (m *Market) BettingOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return BettingOpen(m.now(), m.snap.LastSettlement, m.params.Interval, m.params.CutoffLead, m.params.Halted())
}

// UntilBettingClose returns the remaining open-window time, floored at zero.
func (m *Market) UntilBettingClose() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return UntilBettingClose(m.now(), m.snap.LastSettlement, m.params.Interval, m.params.CutoffLead)
}

// UntilSettlement returns the time until the round is settleable, floored
// at zero.
func (m *Market) UntilSettlement() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return UntilSettlement(m.now(), m.snap.LastSettlement, m.params.Interval)
}

// emit publishes an event after its state change has committed. Sink
// failures are logged and dropped; they never unwind the change.
func (m *Market) emit(ctx context.Context, t domain.EventType, at time.Time, data any) {
	if m.deps.Events == nil {
		return
	}
	ev := domain.Event{ID: uuid.NewString(), Type: t, At: at, Data: data}
	if err := m.deps.Events.Publish(ctx, ev); err != nil {
		m.logger.WarnContext(ctx, "engine: event publish failed",
			slog.String("event_type", string(t)),
			slog.String("error", err.Error()),
		)
	}
}
