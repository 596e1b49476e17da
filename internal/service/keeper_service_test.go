package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/updownhq/updown/internal/domain"
	"github.com/updownhq/updown/internal/metrics"
)

// fakeDriver scripts the market surface the keeper sees.
type fakeDriver struct {
	until      time.Duration
	settleRes  domain.RoundResult
	settleErr  error
	settles    int
	lastActor  string
	lastReport int64
}

func (d *fakeDriver) UntilSettlement() time.Duration { return d.until }

func (d *fakeDriver) Settle(_ context.Context, actor string, outcome int64) (domain.RoundResult, error) {
	d.settles++
	d.lastActor = actor
	d.lastReport = outcome
	if d.settleErr != nil {
		return domain.RoundResult{}, d.settleErr
	}
	return d.settleRes, nil
}

type fakeSource struct {
	value int64
	err   error
	reads int
}

func (s *fakeSource) Report(_ context.Context) (int64, error) {
	s.reads++
	if s.err != nil {
		return 0, s.err
	}
	return s.value, nil
}

type fakeLocks struct {
	err      error
	acquired int
	released int
}

func (l *fakeLocks) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func() { l.released++ }, nil
}

type fakeAlerter struct {
	events []string
}

func (a *fakeAlerter) Notify(_ context.Context, event, _, _ string) error {
	a.events = append(a.events, event)
	return nil
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range fam.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
		return sum
	}
	return 0
}

type keeperFixture struct {
	driver  *fakeDriver
	source  *fakeSource
	locks   *fakeLocks
	alerter *fakeAlerter
	reg     *prometheus.Registry
	keeper  *KeeperService
}

func newKeeperFixture() *keeperFixture {
	f := &keeperFixture{
		driver:  &fakeDriver{},
		source:  &fakeSource{value: 121500},
		locks:   &fakeLocks{},
		alerter: &fakeAlerter{},
		reg:     prometheus.NewRegistry(),
	}
	f.keeper = NewKeeperService(
		f.driver, f.source, f.locks, f.alerter,
		metrics.New(f.reg), "keeper", time.Second, discardLogger(),
	)
	return f
}

func TestKeeperTickNotDue(t *testing.T) {
	f := newKeeperFixture()
	f.driver.until = 30 * time.Second

	if err := f.keeper.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if f.source.reads != 0 || f.driver.settles != 0 || f.locks.acquired != 0 {
		t.Errorf("reads=%d settles=%d locks=%d, want all 0 before the interval elapses",
			f.source.reads, f.driver.settles, f.locks.acquired)
	}
}

func TestKeeperTickSettles(t *testing.T) {
	f := newKeeperFixture()
	f.driver.settleRes = domain.RoundResult{Round: 7, Tag: domain.RoundDecided, Outcome: 121500}

	if err := f.keeper.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if f.driver.settles != 1 {
		t.Fatalf("settles = %d, want 1", f.driver.settles)
	}
	if f.driver.lastActor != "keeper" || f.driver.lastReport != 121500 {
		t.Errorf("settled as %q with %d, want keeper with 121500", f.driver.lastActor, f.driver.lastReport)
	}
	if f.locks.acquired != 1 || f.locks.released != 1 {
		t.Errorf("lock acquired=%d released=%d, want 1/1", f.locks.acquired, f.locks.released)
	}
	if len(f.alerter.events) != 1 || f.alerter.events[0] != "round.settled" {
		t.Errorf("alerts = %v, want [round.settled]", f.alerter.events)
	}
	if got := counterValue(t, f.reg, "updown_oracle_reads_total"); got != 1 {
		t.Errorf("oracle reads = %v, want 1", got)
	}
}

func TestKeeperTickLockHeldElsewhere(t *testing.T) {
	f := newKeeperFixture()
	f.locks.err = domain.ErrLockHeld

	if err := f.keeper.tick(context.Background()); err != nil {
		t.Fatalf("tick with held lock: %v", err)
	}
	if f.source.reads != 0 || f.driver.settles != 0 {
		t.Errorf("reads=%d settles=%d, want 0/0 when another instance holds the lock",
			f.source.reads, f.driver.settles)
	}
}

func TestKeeperWithoutLockManager(t *testing.T) {
	f := newKeeperFixture()
	f.keeper.locks = nil

	if err := f.keeper.tick(context.Background()); err != nil {
		t.Fatalf("tick without locks: %v", err)
	}
	if f.driver.settles != 1 {
		t.Errorf("settles = %d, want 1", f.driver.settles)
	}
}

func TestKeeperTickSourceFailure(t *testing.T) {
	f := newKeeperFixture()
	f.source.err = errors.New("feed timeout")

	if err := f.keeper.tick(context.Background()); err == nil {
		t.Fatal("tick with broken source returned nil")
	}
	if f.driver.settles != 0 {
		t.Errorf("settles = %d, want 0 when the source fails", f.driver.settles)
	}
	if got := counterValue(t, f.reg, "updown_oracle_errors_total"); got != 1 {
		t.Errorf("oracle errors = %v, want 1", got)
	}
	if f.locks.released != 1 {
		t.Errorf("lock released = %d, want 1 even on failure", f.locks.released)
	}
}

func TestKeeperTickLostRace(t *testing.T) {
	for _, benign := range []error{domain.ErrNotSettleable, domain.ErrBusy, domain.ErrPaused} {
		f := newKeeperFixture()
		f.driver.settleErr = benign

		if err := f.keeper.tick(context.Background()); err != nil {
			t.Errorf("tick with %v: %v, want nil", benign, err)
		}
		if len(f.alerter.events) != 0 {
			t.Errorf("alerts for %v = %v, want none", benign, f.alerter.events)
		}
		if got := counterValue(t, f.reg, "updown_settle_errors_total"); got != 0 {
			t.Errorf("settle errors for %v = %v, want 0", benign, got)
		}
	}
}

func TestKeeperTickSettleFailureAlerts(t *testing.T) {
	f := newKeeperFixture()
	f.driver.settleErr = errors.New("store unavailable")

	if err := f.keeper.tick(context.Background()); err == nil {
		t.Fatal("tick with failing settle returned nil")
	}
	if len(f.alerter.events) != 1 || f.alerter.events[0] != "settle.failed" {
		t.Errorf("alerts = %v, want [settle.failed]", f.alerter.events)
	}
	if got := counterValue(t, f.reg, "updown_settle_errors_total"); got != 1 {
		t.Errorf("settle errors = %v, want 1", got)
	}
}

func TestKeeperRunStopsOnCancel(t *testing.T) {
	f := newKeeperFixture()
	f.driver.until = time.Hour
	f.keeper.pollDur = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.keeper.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
