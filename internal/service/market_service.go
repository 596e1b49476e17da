// Package service composes the engine, stores, cache, and report source
// into the units the transport layer and background workers call.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/updownhq/updown/internal/domain"
	"github.com/updownhq/updown/internal/engine"
)

// MarketService fronts the engine for the transport layer. Reads prefer
// the shared state cache; every mutation refreshes it so all instances
// serve the change immediately instead of waiting out the TTL.
type MarketService struct {
	market   *engine.Market
	rounds   domain.RoundStore
	bets     domain.BetStore
	claims   domain.ClaimStore
	bank     domain.Bank
	admin    domain.AccountAdmin
	cache    domain.StateCache
	stateTTL time.Duration
	logger   *slog.Logger
}

// NewMarketService creates a MarketService. cache and admin may be nil;
// state reads then always hit the engine and account adjustments are
// refused.
func NewMarketService(
	market *engine.Market,
	rounds domain.RoundStore,
	bets domain.BetStore,
	claims domain.ClaimStore,
	bank domain.Bank,
	admin domain.AccountAdmin,
	cache domain.StateCache,
	stateTTL time.Duration,
	logger *slog.Logger,
) *MarketService {
	if stateTTL <= 0 {
		stateTTL = 2 * time.Second
	}
	return &MarketService{
		market:   market,
		rounds:   rounds,
		bets:     bets,
		claims:   claims,
		bank:     bank,
		admin:    admin,
		cache:    cache,
		stateTTL: stateTTL,
		logger:   logger.With(slog.String("component", "market_service")),
	}
}

// State returns the live market state, preferring the shared cache.
func (s *MarketService) State(ctx context.Context) (domain.MarketState, error) {
	if s.cache != nil {
		if state, err := s.cache.Get(ctx); err == nil {
			return state, nil
		}
	}

	state := s.market.State()
	s.fillCache(ctx, state)
	return state, nil
}

// Stake places a wager and refreshes the shared state.
func (s *MarketService) Stake(ctx context.Context, participant string, side domain.Side, amount int64) (domain.Bet, error) {
	bet, err := s.market.Stake(ctx, participant, side, amount)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("market_service: stake: %w", err)
	}
	s.refreshCache(ctx)
	return bet, nil
}

// Claim realizes a payout for a settled round. Claims do not touch the
// open round, so the cache stays as it is.
func (s *MarketService) Claim(ctx context.Context, participant string, round uint64) (int64, error) {
	amount, err := s.market.Claim(ctx, participant, round)
	if err != nil {
		return 0, fmt.Errorf("market_service: claim: %w", err)
	}
	return amount, nil
}

// Claimable reports what Claim would pay without mutating anything.
func (s *MarketService) Claimable(ctx context.Context, round uint64, participant string) (int64, error) {
	amount, err := s.market.Claimable(ctx, round, participant)
	if err != nil {
		return 0, fmt.Errorf("market_service: claimable: %w", err)
	}
	return amount, nil
}

// MyBet returns the participant's exposure in the open round.
func (s *MarketService) MyBet(participant string) domain.BetPosition {
	return s.market.MyBet(participant)
}

// UntilSettlement reports how long until the open round becomes
// settleable, straight from the engine clock. Never served from cache;
// the keeper schedules off this.
func (s *MarketService) UntilSettlement() time.Duration {
	return s.market.UntilSettlement()
}

// Result returns the frozen result of a settled round.
func (s *MarketService) Result(ctx context.Context, round uint64) (domain.RoundResult, error) {
	res, err := s.rounds.Result(ctx, round)
	if err != nil {
		return domain.RoundResult{}, fmt.Errorf("market_service: result %d: %w", round, err)
	}
	return res, nil
}

// Results lists settled rounds, newest first.
func (s *MarketService) Results(ctx context.Context, opts domain.ListOpts) ([]domain.RoundResult, error) {
	results, err := s.rounds.ListResults(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list results: %w", err)
	}
	return results, nil
}

// BetsFor lists a participant's journaled bets, newest first.
func (s *MarketService) BetsFor(ctx context.Context, participant string, opts domain.ListOpts) ([]domain.Bet, error) {
	bets, err := s.bets.ListByParticipant(ctx, participant, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: bets for %s: %w", participant, err)
	}
	return bets, nil
}

// ClaimsFor lists the realized payouts of one round.
func (s *MarketService) ClaimsFor(ctx context.Context, round uint64) ([]domain.ClaimRecord, error) {
	recs, err := s.claims.ListClaims(ctx, round)
	if err != nil {
		return nil, fmt.Errorf("market_service: claims round %d: %w", round, err)
	}
	return recs, nil
}

// Balance returns an account's bank balance.
func (s *MarketService) Balance(ctx context.Context, account string) (int64, error) {
	bal, err := s.bank.Balance(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("market_service: balance %s: %w", account, err)
	}
	return bal, nil
}

// Settle consumes the reported outcome for the open round.
func (s *MarketService) Settle(ctx context.Context, actor string, outcome int64) (domain.RoundResult, error) {
	res, err := s.market.Settle(ctx, actor, outcome)
	if err != nil {
		return domain.RoundResult{}, fmt.Errorf("market_service: settle: %w", err)
	}
	s.refreshCache(ctx)
	return res, nil
}

// --------------------------------------------------------------------------
// Administration
// --------------------------------------------------------------------------

// Pause halts stakes and settlement.
func (s *MarketService) Pause(ctx context.Context, actor string) error {
	return s.adminOp(ctx, "pause", s.market.Pause(ctx, actor))
}

// Unpause resumes the wagering cycle.
func (s *MarketService) Unpause(ctx context.Context, actor string) error {
	return s.adminOp(ctx, "unpause", s.market.Unpause(ctx, actor))
}

// SetSafeMode toggles the stake-only halt.
func (s *MarketService) SetSafeMode(ctx context.Context, actor string, enabled bool) error {
	return s.adminOp(ctx, "set safe mode", s.market.SetSafeMode(ctx, actor, enabled))
}

// SetKeeper rotates the keeper identity.
func (s *MarketService) SetKeeper(ctx context.Context, actor, keeper string) error {
	return s.adminOp(ctx, "set keeper", s.market.SetKeeper(ctx, actor, keeper))
}

// SetTreasury redirects future fees.
func (s *MarketService) SetTreasury(ctx context.Context, actor, treasury string) error {
	return s.adminOp(ctx, "set treasury", s.market.SetTreasury(ctx, actor, treasury))
}

// SetMinBet updates the minimum stake.
func (s *MarketService) SetMinBet(ctx context.Context, actor string, v int64) error {
	return s.adminOp(ctx, "set min bet", s.market.SetMinBet(ctx, actor, v))
}

// SetMaxBet updates the maximum stake.
func (s *MarketService) SetMaxBet(ctx context.Context, actor string, v int64) error {
	return s.adminOp(ctx, "set max bet", s.market.SetMaxBet(ctx, actor, v))
}

// TransferOwnership hands the owner role to a new identity.
func (s *MarketService) TransferOwnership(ctx context.Context, actor, newOwner string) error {
	return s.adminOp(ctx, "transfer ownership", s.market.TransferOwnership(ctx, actor, newOwner))
}

// Rescue moves escrow funds to a recovery account while paused.
func (s *MarketService) Rescue(ctx context.Context, actor, recipient string, amount int64) error {
	return s.adminOp(ctx, "rescue", s.market.Rescue(ctx, actor, recipient, amount))
}

// CreditAccount adds external value to an account. Owner only.
func (s *MarketService) CreditAccount(ctx context.Context, actor, account string, amount int64) error {
	if err := s.requireOwner(actor); err != nil {
		return err
	}
	if s.admin == nil {
		return fmt.Errorf("market_service: credit: account administration not configured")
	}
	if err := s.admin.Credit(ctx, account, amount, "admin:"+actor); err != nil {
		return fmt.Errorf("market_service: credit %s: %w", account, err)
	}
	return nil
}

// DebitAccount removes value from an account. Owner only.
func (s *MarketService) DebitAccount(ctx context.Context, actor, account string, amount int64) error {
	if err := s.requireOwner(actor); err != nil {
		return err
	}
	if s.admin == nil {
		return fmt.Errorf("market_service: debit: account administration not configured")
	}
	if err := s.admin.Debit(ctx, account, amount, "admin:"+actor); err != nil {
		return fmt.Errorf("market_service: debit %s: %w", account, err)
	}
	return nil
}

func (s *MarketService) requireOwner(actor string) error {
	if actor != s.market.Params().Owner {
		return fmt.Errorf("market_service: %q: %w", actor, domain.ErrUnauthorized)
	}
	return nil
}

func (s *MarketService) adminOp(ctx context.Context, name string, err error) error {
	if err != nil {
		return fmt.Errorf("market_service: %s: %w", name, err)
	}
	s.refreshCache(ctx)
	return nil
}

// refreshCache rewrites the shared state after a mutation. Failures are
// non-fatal; the TTL bounds staleness.
func (s *MarketService) refreshCache(ctx context.Context) {
	s.fillCache(ctx, s.market.State())
}

func (s *MarketService) fillCache(ctx context.Context, state domain.MarketState) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, state, s.stateTTL); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("error", err.Error()),
		)
	}
}
