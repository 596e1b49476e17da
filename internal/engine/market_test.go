package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/updownhq/updown/internal/domain"
	"github.com/updownhq/updown/internal/store/memory"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// failBank wraps the memory bank with injectable hooks. A hook returning a
// non-nil error fails the movement before it is applied.
type failBank struct {
	*memory.Bank
	beforeCollect  func(from string, amount int64, ref string) error
	beforeDisburse func(to string, amount int64, ref string) error
}

func (b *failBank) Collect(ctx context.Context, from string, amount int64, ref string) error {
	if b.beforeCollect != nil {
		if err := b.beforeCollect(from, amount, ref); err != nil {
			return err
		}
	}
	return b.Bank.Collect(ctx, from, amount, ref)
}

func (b *failBank) Disburse(ctx context.Context, to string, amount int64, ref string) error {
	if b.beforeDisburse != nil {
		if err := b.beforeDisburse(to, amount, ref); err != nil {
			return err
		}
	}
	return b.Bank.Disburse(ctx, to, amount, ref)
}

// failRounds wraps a RoundStore so SaveResult can be made to fail.
type failRounds struct {
	domain.RoundStore
	saveErr error
}

func (f *failRounds) SaveResult(ctx context.Context, res domain.RoundResult, next domain.MarketSnapshot) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.RoundStore.SaveResult(ctx, res, next)
}

// failBets wraps a BetStore so Record can be made to fail.
type failBets struct {
	domain.BetStore
	recordErr error
}

func (f *failBets) Record(ctx context.Context, bet domain.Bet) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	return f.BetStore.Record(ctx, bet)
}

const (
	baseline   = int64(121000) // 1210.00
	interval   = 5 * time.Minute
	cutoffLead = 1 * time.Minute
)

func testParams() domain.MarketParams {
	return domain.MarketParams{
		MinBet:     10,
		MaxBet:     0,
		FeeBps:     200,
		Interval:   interval,
		CutoffLead: cutoffLead,
		OutcomeMin: 1,
		OutcomeMax: 100_000_000,
		Owner:      "owner",
		Keeper:     "keeper",
		Treasury:   "treasury",
	}
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	clock  *fakeClock
	store  *memory.Store
	bank   *failBank
	rounds *failRounds
	bets   *failBets
	market *Market
}

func newFixture(t *testing.T, mutate ...func(*domain.MarketParams)) *fixture {
	t.Helper()

	params := testParams()
	for _, fn := range mutate {
		fn(&params)
	}

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.New()
	bank := &failBank{Bank: memory.NewBank("escrow")}
	rounds := &failRounds{RoundStore: store}
	bets := &failBets{BetStore: store}

	market, err := New(context.Background(), params, baseline, Deps{
		Rounds: rounds,
		Bets:   bets,
		Claims: store,
		Params: store,
		Bank:   bank,
		Now:    clock.Now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &fixture{
		t:      t,
		ctx:    context.Background(),
		clock:  clock,
		store:  store,
		bank:   bank,
		rounds: rounds,
		bets:   bets,
		market: market,
	}
}

func (f *fixture) fund(account string, amount int64) {
	f.t.Helper()
	if err := f.bank.Credit(f.ctx, account, amount, "seed"); err != nil {
		f.t.Fatalf("funding %s: %v", account, err)
	}
}

func (f *fixture) stake(participant string, side domain.Side, amount int64) {
	f.t.Helper()
	if _, err := f.market.Stake(f.ctx, participant, side, amount); err != nil {
		f.t.Fatalf("stake %s %s %d: %v", participant, side, amount, err)
	}
}

// settle advances the clock to the settlement boundary and settles as the
// keeper.
func (f *fixture) settle(outcome int64) domain.RoundResult {
	f.t.Helper()
	res, err := f.settleErr(outcome)
	if err != nil {
		f.t.Fatalf("settle %d: %v", outcome, err)
	}
	return res
}

func (f *fixture) settleErr(outcome int64) (domain.RoundResult, error) {
	if d := f.market.UntilSettlement(); d > 0 {
		f.clock.advance(d)
	}
	return f.market.Settle(f.ctx, "keeper", outcome)
}

func (f *fixture) balance(account string) int64 {
	f.t.Helper()
	bal, err := f.bank.Balance(f.ctx, account)
	if err != nil {
		f.t.Fatalf("balance %s: %v", account, err)
	}
	return bal
}

func (f *fixture) assertBalance(account string, want int64) {
	f.t.Helper()
	if got := f.balance(account); got != want {
		f.t.Errorf("balance %s = %d, want %d", account, got, want)
	}
}

func TestStakeValidation(t *testing.T) {
	cases := []struct {
		name        string
		setup       func(*testing.T, *fixture)
		participant string
		side        domain.Side
		amount      int64
		wantErr     error
	}{
		{
			name:        "empty participant",
			participant: "",
			side:        domain.SideHigher,
			amount:      100,
			wantErr:     domain.ErrInvalidAccount,
		},
		{
			name:        "bad side",
			participant: "alice",
			side:        domain.Side("sideways"),
			amount:      100,
			wantErr:     domain.ErrInvalidSide,
		},
		{
			name:        "zero amount",
			participant: "alice",
			side:        domain.SideHigher,
			amount:      0,
			wantErr:     domain.ErrInvalidAmount,
		},
		{
			name:        "below minimum",
			participant: "alice",
			side:        domain.SideHigher,
			amount:      9,
			wantErr:     domain.ErrBetTooSmall,
		},
		{
			name: "above maximum",
			setup: func(t *testing.T, f *fixture) {
				if err := f.market.SetMaxBet(f.ctx, "owner", 500); err != nil {
					t.Fatalf("SetMaxBet: %v", err)
				}
			},
			participant: "alice",
			side:        domain.SideLower,
			amount:      501,
			wantErr:     domain.ErrBetTooLarge,
		},
		{
			name: "paused",
			setup: func(t *testing.T, f *fixture) {
				if err := f.market.Pause(f.ctx, "owner"); err != nil {
					t.Fatalf("Pause: %v", err)
				}
			},
			participant: "alice",
			side:        domain.SideHigher,
			amount:      100,
			wantErr:     domain.ErrPaused,
		},
		{
			name: "safe mode",
			setup: func(t *testing.T, f *fixture) {
				if err := f.market.SetSafeMode(f.ctx, "owner", true); err != nil {
					t.Fatalf("SetSafeMode: %v", err)
				}
			},
			participant: "alice",
			side:        domain.SideHigher,
			amount:      100,
			wantErr:     domain.ErrSafeMode,
		},
		{
			name: "window closed",
			setup: func(t *testing.T, f *fixture) {
				f.clock.advance(interval - cutoffLead)
			},
			participant: "alice",
			side:        domain.SideHigher,
			amount:      100,
			wantErr:     domain.ErrBettingClosed,
		},
		{
			name: "insufficient funds",
			participant: "brokealice",
			side:        domain.SideHigher,
			amount:      100,
			wantErr:     domain.ErrInsufficientFunds,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.fund("alice", 1000)
			if tc.setup != nil {
				tc.setup(t, f)
			}

			_, err := f.market.Stake(f.ctx, tc.participant, tc.side, tc.amount)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Stake error = %v, want %v", err, tc.wantErr)
			}

			state := f.market.State()
			if state.HigherPool != 0 || state.LowerPool != 0 {
				t.Errorf("pools mutated on rejected stake: higher=%d lower=%d", state.HigherPool, state.LowerPool)
			}
			f.assertBalance("alice", 1000)
			f.assertBalance("escrow", 0)
		})
	}
}

func TestStakeAccumulatesAcrossSides(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1000)

	f.stake("alice", domain.SideHigher, 100)
	f.stake("alice", domain.SideHigher, 50)
	f.stake("alice", domain.SideLower, 30)

	pos := f.market.MyBet("alice")
	if pos.Higher != 150 || pos.Lower != 30 {
		t.Errorf("position = %d/%d, want 150/30", pos.Higher, pos.Lower)
	}
	if pos.Round != 1 {
		t.Errorf("position round = %d, want 1", pos.Round)
	}

	state := f.market.State()
	if state.HigherPool != 150 || state.LowerPool != 30 {
		t.Errorf("pools = %d/%d, want 150/30", state.HigherPool, state.LowerPool)
	}

	f.assertBalance("alice", 820)
	f.assertBalance("escrow", 180)
}

func TestStakeBoundaryInstant(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1000)

	// One instant before the cutoff the window is still open.
	f.clock.advance(interval - cutoffLead - time.Nanosecond)
	if !f.market.BettingOpen() {
		t.Fatal("betting should be open just before the cutoff")
	}
	f.stake("alice", domain.SideHigher, 100)

	// At the boundary it is closed.
	f.clock.advance(time.Nanosecond)
	if f.market.BettingOpen() {
		t.Fatal("betting should be closed at the cutoff")
	}
	if _, err := f.market.Stake(f.ctx, "alice", domain.SideHigher, 100); !errors.Is(err, domain.ErrBettingClosed) {
		t.Fatalf("Stake at boundary error = %v, want ErrBettingClosed", err)
	}
}

func TestStakeJournalFailureReversesCollection(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1000)
	f.bets.recordErr = errors.New("journal down")

	_, err := f.market.Stake(f.ctx, "alice", domain.SideHigher, 100)
	if err == nil {
		t.Fatal("Stake should fail when the journal write fails")
	}

	f.assertBalance("alice", 1000)
	f.assertBalance("escrow", 0)
	if state := f.market.State(); state.HigherPool != 0 {
		t.Errorf("higher pool = %d, want 0", state.HigherPool)
	}

	// Clearing the fault makes staking work again.
	f.bets.recordErr = nil
	f.stake("alice", domain.SideHigher, 100)
	f.assertBalance("escrow", 100)
}

func TestAdminRequiresOwner(t *testing.T) {
	f := newFixture(t)

	calls := []struct {
		name string
		call func(actor string) error
	}{
		{"pause", func(a string) error { return f.market.Pause(f.ctx, a) }},
		{"set keeper", func(a string) error { return f.market.SetKeeper(f.ctx, a, "k2") }},
		{"set treasury", func(a string) error { return f.market.SetTreasury(f.ctx, a, "t2") }},
		{"set min bet", func(a string) error { return f.market.SetMinBet(f.ctx, a, 20) }},
		{"set max bet", func(a string) error { return f.market.SetMaxBet(f.ctx, a, 900) }},
		{"set safe mode", func(a string) error { return f.market.SetSafeMode(f.ctx, a, true) }},
		{"transfer ownership", func(a string) error { return f.market.TransferOwnership(f.ctx, a, "o2") }},
	}

	for _, c := range calls {
		if err := c.call("keeper"); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("%s as keeper: error = %v, want ErrUnauthorized", c.name, err)
		}
		if err := c.call("mallory"); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("%s as mallory: error = %v, want ErrUnauthorized", c.name, err)
		}
	}
}

func TestAdminSetterValidation(t *testing.T) {
	f := newFixture(t)

	if err := f.market.SetMaxBet(f.ctx, "owner", 5); !errors.Is(err, domain.ErrInvalidParams) {
		t.Errorf("SetMaxBet below min: error = %v, want ErrInvalidParams", err)
	}
	if err := f.market.SetMinBet(f.ctx, "owner", 0); !errors.Is(err, domain.ErrInvalidParams) {
		t.Errorf("SetMinBet zero: error = %v, want ErrInvalidParams", err)
	}
	if err := f.market.SetKeeper(f.ctx, "owner", ""); !errors.Is(err, domain.ErrInvalidParams) {
		t.Errorf("SetKeeper empty: error = %v, want ErrInvalidParams", err)
	}

	// Valid updates stick and survive a reload.
	if err := f.market.SetMinBet(f.ctx, "owner", 25); err != nil {
		t.Fatalf("SetMinBet: %v", err)
	}
	if got := f.market.Params().MinBet; got != 25 {
		t.Errorf("MinBet = %d, want 25", got)
	}
	p, _, err := f.store.Load(f.ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.MinBet != 25 {
		t.Errorf("persisted MinBet = %d, want 25", p.MinBet)
	}
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture(t)

	if err := f.market.TransferOwnership(f.ctx, "owner", "newowner"); err != nil {
		t.Fatalf("TransferOwnership: %v", err)
	}
	if err := f.market.Pause(f.ctx, "owner"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("old owner after transfer: error = %v, want ErrUnauthorized", err)
	}
	if err := f.market.Pause(f.ctx, "newowner"); err != nil {
		t.Errorf("new owner pause: %v", err)
	}
}

func TestKeeperRotation(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1000)
	f.stake("alice", domain.SideHigher, 100)

	if err := f.market.SetKeeper(f.ctx, "owner", "keeper2"); err != nil {
		t.Fatalf("SetKeeper: %v", err)
	}

	f.clock.advance(f.market.UntilSettlement())
	if _, err := f.market.Settle(f.ctx, "keeper", 145000); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("old keeper settle: error = %v, want ErrUnauthorized", err)
	}
	if _, err := f.market.Settle(f.ctx, "keeper2", 145000); err != nil {
		t.Errorf("new keeper settle: %v", err)
	}
}

func TestPauseLifecycle(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1000)

	if err := f.market.Pause(f.ctx, "owner"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := f.market.Pause(f.ctx, "owner"); !errors.Is(err, domain.ErrPaused) {
		t.Errorf("double pause: error = %v, want ErrPaused", err)
	}

	if _, err := f.market.Stake(f.ctx, "alice", domain.SideHigher, 100); !errors.Is(err, domain.ErrPaused) {
		t.Errorf("stake while paused: error = %v, want ErrPaused", err)
	}
	f.clock.advance(interval)
	if _, err := f.market.Settle(f.ctx, "keeper", 145000); !errors.Is(err, domain.ErrPaused) {
		t.Errorf("settle while paused: error = %v, want ErrPaused", err)
	}

	if err := f.market.Unpause(f.ctx, "owner"); err != nil {
		t.Fatalf("Unpause: %v", err)
	}
	if err := f.market.Unpause(f.ctx, "owner"); !errors.Is(err, domain.ErrNotPaused) {
		t.Errorf("double unpause: error = %v, want ErrNotPaused", err)
	}
	if _, err := f.market.Settle(f.ctx, "keeper", 145000); err != nil {
		t.Errorf("settle after unpause: %v", err)
	}
}

func TestSafeModeAllowsSettlementAndClaims(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1000)
	f.stake("alice", domain.SideHigher, 100)
	f.fund("bob", 1000)
	f.stake("bob", domain.SideLower, 100)

	if err := f.market.SetSafeMode(f.ctx, "owner", true); err != nil {
		t.Fatalf("SetSafeMode: %v", err)
	}

	if _, err := f.market.Stake(f.ctx, "alice", domain.SideHigher, 50); !errors.Is(err, domain.ErrSafeMode) {
		t.Errorf("stake in safe mode: error = %v, want ErrSafeMode", err)
	}

	res := f.settle(145000)
	if res.Tag != domain.RoundDecided {
		t.Fatalf("tag = %s, want decided", res.Tag)
	}

	got, err := f.market.Claim(f.ctx, "alice", res.Round)
	if err != nil {
		t.Fatalf("claim in safe mode: %v", err)
	}
	if got != 196 {
		t.Errorf("claim = %d, want 196", got)
	}
}

func TestRescueRequiresPauseAndOwner(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1000)
	f.stake("alice", domain.SideHigher, 100)

	if err := f.market.Rescue(f.ctx, "owner", "recovery", 50); !errors.Is(err, domain.ErrNotPaused) {
		t.Errorf("rescue unpaused: error = %v, want ErrNotPaused", err)
	}

	if err := f.market.Pause(f.ctx, "owner"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := f.market.Rescue(f.ctx, "keeper", "recovery", 50); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("rescue as keeper: error = %v, want ErrUnauthorized", err)
	}

	if err := f.market.Rescue(f.ctx, "owner", "recovery", 50); err != nil {
		t.Fatalf("Rescue: %v", err)
	}
	f.assertBalance("recovery", 50)
	f.assertBalance("escrow", 50)

	// More than escrow holds is refused.
	if err := f.market.Rescue(f.ctx, "owner", "recovery", 1000); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("rescue beyond escrow: error = %v, want ErrInsufficientFunds", err)
	}
}

func TestRehydrationRestoresOpenRound(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 1000)
	f.fund("bob", 1000)
	f.stake("alice", domain.SideHigher, 100)
	f.stake("bob", domain.SideLower, 70)

	// A second engine over the same stores sees the same round.
	reborn, err := New(f.ctx, testParams(), baseline, Deps{
		Rounds: f.rounds,
		Bets:   f.bets,
		Claims: f.store,
		Params: f.store,
		Bank:   f.bank,
		Now:    f.clock.Now,
	})
	if err != nil {
		t.Fatalf("New (rehydrate): %v", err)
	}

	state := reborn.State()
	if state.Round != 1 || state.HigherPool != 100 || state.LowerPool != 70 {
		t.Errorf("rehydrated state = round %d pools %d/%d, want round 1 pools 100/70",
			state.Round, state.HigherPool, state.LowerPool)
	}
	pos := reborn.MyBet("alice")
	if pos.Higher != 100 || pos.Lower != 0 {
		t.Errorf("rehydrated position = %d/%d, want 100/0", pos.Higher, pos.Lower)
	}

	// The rehydrated engine settles the round correctly.
	f.clock.advance(reborn.UntilSettlement())
	res, err := reborn.Settle(f.ctx, "keeper", 145000)
	if err != nil {
		t.Fatalf("settle after rehydration: %v", err)
	}
	if res.HigherPool != 100 || res.LowerPool != 70 {
		t.Errorf("frozen pools = %d/%d, want 100/70", res.HigherPool, res.LowerPool)
	}
}

func TestStateReflectsConfiguration(t *testing.T) {
	f := newFixture(t)

	state := f.market.State()
	if state.Round != 1 {
		t.Errorf("round = %d, want 1", state.Round)
	}
	if state.Baseline != baseline {
		t.Errorf("baseline = %d, want %d", state.Baseline, baseline)
	}
	if !state.BettingOpen {
		t.Error("betting should be open at round start")
	}
	if state.UntilBettingClose != interval-cutoffLead {
		t.Errorf("until close = %s, want %s", state.UntilBettingClose, interval-cutoffLead)
	}
	if state.UntilSettlement != interval {
		t.Errorf("until settlement = %s, want %s", state.UntilSettlement, interval)
	}
	if state.FeeBps != 200 || state.MinBet != 10 {
		t.Errorf("params in state = fee %d min %d, want 200/10", state.FeeBps, state.MinBet)
	}
}
