package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/updownhq/updown/internal/domain"
	"github.com/updownhq/updown/internal/engine"
	"github.com/updownhq/updown/internal/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeCache is an in-memory StateCache with injectable failures.
type fakeCache struct {
	mu     sync.Mutex
	state  domain.MarketState
	has    bool
	ttl    time.Duration
	sets   int
	getErr error
	setErr error
}

func (c *fakeCache) Set(_ context.Context, state domain.MarketState, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.state, c.has, c.ttl = state, true, ttl
	c.sets++
	return nil
}

func (c *fakeCache) Get(_ context.Context) (domain.MarketState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return domain.MarketState{}, c.getErr
	}
	if !c.has {
		return domain.MarketState{}, domain.ErrNotFound
	}
	return c.state, nil
}

func (c *fakeCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.has = false
	return nil
}

func (c *fakeCache) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func testParams() domain.MarketParams {
	return domain.MarketParams{
		MinBet:     10,
		FeeBps:     200,
		Interval:   5 * time.Minute,
		CutoffLead: time.Minute,
		OutcomeMin: 1,
		OutcomeMax: 100_000_000,
		Owner:      "owner",
		Keeper:     "keeper",
		Treasury:   "treasury",
	}
}

type svcFixture struct {
	t      *testing.T
	ctx    context.Context
	clock  *fakeClock
	store  *memory.Store
	bank   *memory.Bank
	cache  *fakeCache
	market *engine.Market
	svc    *MarketService
}

func newSvcFixture(t *testing.T) *svcFixture {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.New()
	bank := memory.NewBank("escrow")

	market, err := engine.New(context.Background(), testParams(), 121000, engine.Deps{
		Rounds: store,
		Bets:   store,
		Claims: store,
		Params: store,
		Bank:   bank,
		Logger: discardLogger(),
		Now:    clock.Now,
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	cache := &fakeCache{}
	svc := NewMarketService(market, store, store, store, bank, bank, cache, time.Second, discardLogger())

	return &svcFixture{
		t:      t,
		ctx:    context.Background(),
		clock:  clock,
		store:  store,
		bank:   bank,
		cache:  cache,
		market: market,
		svc:    svc,
	}
}

func (f *svcFixture) fund(account string, amount int64) {
	f.t.Helper()
	if err := f.bank.Credit(f.ctx, account, amount, "seed"); err != nil {
		f.t.Fatalf("funding %s: %v", account, err)
	}
}

func (f *svcFixture) settle(outcome int64) domain.RoundResult {
	f.t.Helper()
	if d := f.market.UntilSettlement(); d > 0 {
		f.clock.advance(d)
	}
	res, err := f.svc.Settle(f.ctx, "keeper", outcome)
	if err != nil {
		f.t.Fatalf("settle %d: %v", outcome, err)
	}
	return res
}

func TestStateFillsCacheOnMiss(t *testing.T) {
	f := newSvcFixture(t)

	state, err := f.svc.State(f.ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Round != 1 || state.Baseline != 121000 {
		t.Fatalf("state = round %d baseline %d, want round 1 baseline 121000", state.Round, state.Baseline)
	}
	if f.cache.setCount() != 1 {
		t.Errorf("cache sets = %d, want 1", f.cache.setCount())
	}
	if f.cache.ttl != time.Second {
		t.Errorf("cache ttl = %v, want %v", f.cache.ttl, time.Second)
	}
}

func TestStatePrefersCache(t *testing.T) {
	f := newSvcFixture(t)

	cached := domain.MarketState{Round: 42, Baseline: 999}
	if err := f.cache.Set(f.ctx, cached, time.Second); err != nil {
		t.Fatalf("priming cache: %v", err)
	}

	state, err := f.svc.State(f.ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Round != 42 {
		t.Errorf("state round = %d, want cached 42", state.Round)
	}
}

func TestStateSurvivesCacheFailure(t *testing.T) {
	f := newSvcFixture(t)
	f.cache.getErr = errors.New("redis down")
	f.cache.setErr = errors.New("redis down")

	state, err := f.svc.State(f.ctx)
	if err != nil {
		t.Fatalf("State with broken cache: %v", err)
	}
	if state.Round != 1 {
		t.Errorf("state round = %d, want 1", state.Round)
	}
}

func TestStakeRefreshesCache(t *testing.T) {
	f := newSvcFixture(t)
	f.fund("alice", 1000)

	bet, err := f.svc.Stake(f.ctx, "alice", domain.SideHigher, 100)
	if err != nil {
		t.Fatalf("Stake: %v", err)
	}
	if bet.Amount != 100 || bet.Round != 1 {
		t.Errorf("bet = round %d amount %d, want round 1 amount 100", bet.Round, bet.Amount)
	}

	state, err := f.cache.Get(f.ctx)
	if err != nil {
		t.Fatalf("cache after stake: %v", err)
	}
	if state.HigherPool != 100 {
		t.Errorf("cached higher pool = %d, want 100", state.HigherPool)
	}
}

func TestStakeErrorsPassThrough(t *testing.T) {
	f := newSvcFixture(t)
	f.fund("alice", 1000)

	if _, err := f.svc.Stake(f.ctx, "alice", domain.SideHigher, 5); !errors.Is(err, domain.ErrBetTooSmall) {
		t.Errorf("tiny stake err = %v, want ErrBetTooSmall", err)
	}
	if f.cache.setCount() != 0 {
		t.Errorf("cache sets after failed stake = %d, want 0", f.cache.setCount())
	}
}

func TestClaimRoundTrip(t *testing.T) {
	f := newSvcFixture(t)
	f.fund("alice", 1000)
	f.fund("bob", 1000)

	if _, err := f.svc.Stake(f.ctx, "alice", domain.SideHigher, 100); err != nil {
		t.Fatalf("stake alice: %v", err)
	}
	if _, err := f.svc.Stake(f.ctx, "bob", domain.SideLower, 100); err != nil {
		t.Fatalf("stake bob: %v", err)
	}
	res := f.settle(121500)

	claimable, err := f.svc.Claimable(f.ctx, res.Round, "alice")
	if err != nil {
		t.Fatalf("Claimable: %v", err)
	}
	paid, err := f.svc.Claim(f.ctx, "alice", res.Round)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if paid != claimable || paid != res.Distributable {
		t.Errorf("paid %d, claimable %d, want both %d", paid, claimable, res.Distributable)
	}

	if _, err := f.svc.Claim(f.ctx, "alice", res.Round); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Errorf("second claim err = %v, want ErrAlreadyClaimed", err)
	}
	if _, err := f.svc.Claim(f.ctx, "bob", res.Round); !errors.Is(err, domain.ErrNothingToClaim) {
		t.Errorf("loser claim err = %v, want ErrNothingToClaim", err)
	}
}

func TestReadsDelegate(t *testing.T) {
	f := newSvcFixture(t)
	f.fund("alice", 1000)
	f.fund("bob", 1000)

	if _, err := f.svc.Stake(f.ctx, "alice", domain.SideHigher, 100); err != nil {
		t.Fatalf("stake alice: %v", err)
	}
	if _, err := f.svc.Stake(f.ctx, "bob", domain.SideLower, 50); err != nil {
		t.Fatalf("stake bob: %v", err)
	}
	res := f.settle(121500)

	got, err := f.svc.Result(f.ctx, res.Round)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if got != res {
		t.Errorf("Result = %+v, want %+v", got, res)
	}

	results, err := f.svc.Results(f.ctx, domain.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 1 || results[0].Round != res.Round {
		t.Errorf("Results = %+v, want one entry for round %d", results, res.Round)
	}

	bets, err := f.svc.BetsFor(f.ctx, "alice", domain.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("BetsFor: %v", err)
	}
	if len(bets) != 1 || bets[0].Amount != 100 {
		t.Errorf("BetsFor alice = %+v, want one bet of 100", bets)
	}

	if _, err := f.svc.Claim(f.ctx, "alice", res.Round); err != nil {
		t.Fatalf("claim: %v", err)
	}
	claims, err := f.svc.ClaimsFor(f.ctx, res.Round)
	if err != nil {
		t.Fatalf("ClaimsFor: %v", err)
	}
	if len(claims) != 1 || claims[0].Participant != "alice" {
		t.Errorf("ClaimsFor = %+v, want alice's claim", claims)
	}

	bal, err := f.svc.Balance(f.ctx, "alice")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal != 1000-100+res.Distributable {
		t.Errorf("alice balance = %d, want %d", bal, 1000-100+res.Distributable)
	}

	if _, err := f.svc.Result(f.ctx, 99); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown round err = %v, want ErrNotFound", err)
	}
}

func TestAdminOpsRefreshCache(t *testing.T) {
	f := newSvcFixture(t)

	if err := f.svc.Pause(f.ctx, "owner"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	state, err := f.cache.Get(f.ctx)
	if err != nil {
		t.Fatalf("cache after pause: %v", err)
	}
	if !state.Paused {
		t.Error("cached state not paused after Pause")
	}

	if err := f.svc.Unpause(f.ctx, "owner"); err != nil {
		t.Fatalf("Unpause: %v", err)
	}
	if err := f.svc.SetSafeMode(f.ctx, "owner", true); err != nil {
		t.Fatalf("SetSafeMode: %v", err)
	}
	state, _ = f.cache.Get(f.ctx)
	if state.Paused || !state.SafeMode {
		t.Errorf("cached state paused=%v safe=%v, want false/true", state.Paused, state.SafeMode)
	}
}

func TestAdminOpsKeepSentinels(t *testing.T) {
	f := newSvcFixture(t)

	if err := f.svc.Pause(f.ctx, "mallory"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("stranger pause err = %v, want ErrUnauthorized", err)
	}
	if err := f.svc.SetMinBet(f.ctx, "keeper", 5); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("keeper set min bet err = %v, want ErrUnauthorized", err)
	}
	if err := f.svc.Rescue(f.ctx, "owner", "vault", 10); !errors.Is(err, domain.ErrNotPaused) {
		t.Errorf("rescue unpaused err = %v, want ErrNotPaused", err)
	}
}

func TestAccountAdjustmentsOwnerOnly(t *testing.T) {
	f := newSvcFixture(t)

	if err := f.svc.CreditAccount(f.ctx, "mallory", "alice", 100); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("stranger credit err = %v, want ErrUnauthorized", err)
	}

	if err := f.svc.CreditAccount(f.ctx, "owner", "alice", 100); err != nil {
		t.Fatalf("owner credit: %v", err)
	}
	bal, err := f.svc.Balance(f.ctx, "alice")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal != 100 {
		t.Errorf("alice balance = %d, want 100", bal)
	}

	if err := f.svc.DebitAccount(f.ctx, "owner", "alice", 40); err != nil {
		t.Fatalf("owner debit: %v", err)
	}
	bal, _ = f.svc.Balance(f.ctx, "alice")
	if bal != 60 {
		t.Errorf("alice balance = %d, want 60", bal)
	}

	if err := f.svc.DebitAccount(f.ctx, "owner", "alice", 1000); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("overdrawn debit err = %v, want ErrInsufficientFunds", err)
	}
}

func TestUntilSettlementIgnoresCache(t *testing.T) {
	f := newSvcFixture(t)

	// A stale cached state must not influence scheduling.
	stale := domain.MarketState{Round: 1, UntilSettlement: 0}
	if err := f.cache.Set(f.ctx, stale, time.Minute); err != nil {
		t.Fatalf("priming cache: %v", err)
	}

	if d := f.svc.UntilSettlement(); d != 5*time.Minute {
		t.Errorf("UntilSettlement = %v, want 5m", d)
	}
	f.clock.advance(5 * time.Minute)
	if d := f.svc.UntilSettlement(); d != 0 {
		t.Errorf("UntilSettlement at boundary = %v, want 0", d)
	}
}
