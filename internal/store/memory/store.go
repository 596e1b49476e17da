// Package memory provides in-memory implementations of the domain stores
// and the bank. They back dev mode and the test suites; nothing here
// survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/updownhq/updown/internal/domain"
)

type claimKey struct {
	round       uint64
	participant string
}

// Store is a single in-memory database implementing the round, bet, claim,
// params, and audit store interfaces.
type Store struct {
	mu      sync.RWMutex
	seeded  bool
	params  domain.MarketParams
	snap    domain.MarketSnapshot
	results map[uint64]domain.RoundResult
	bets    []domain.Bet
	claims  map[claimKey]domain.ClaimRecord
	audit   []domain.AuditEntry
	auditID int64
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		results: make(map[uint64]domain.RoundResult),
		claims:  make(map[claimKey]domain.ClaimRecord),
	}
}

var (
	_ domain.RoundStore  = (*Store)(nil)
	_ domain.BetStore    = (*Store)(nil)
	_ domain.ClaimStore  = (*Store)(nil)
	_ domain.ParamsStore = (*Store)(nil)
	_ domain.AuditStore  = (*Store)(nil)
)

// --------------------------------------------------------------------------
// RoundStore
// --------------------------------------------------------------------------

func (s *Store) SaveResult(_ context.Context, res domain.RoundResult, next domain.MarketSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.results[res.Round]; ok {
		return fmt.Errorf("memory: result for round %d already frozen", res.Round)
	}
	s.results[res.Round] = res
	s.snap = next
	return nil
}

func (s *Store) Result(_ context.Context, round uint64) (domain.RoundResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.results[round]
	if !ok {
		return domain.RoundResult{}, domain.ErrNotFound
	}
	return res, nil
}

func (s *Store) ListResults(_ context.Context, opts domain.ListOpts) ([]domain.RoundResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.RoundResult, 0, len(s.results))
	for _, res := range s.results {
		all = append(all, res)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Round > all[j].Round })

	return paginate(all, opts), nil
}

func (s *Store) ListResultsBefore(_ context.Context, before time.Time) ([]domain.RoundResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.RoundResult
	for _, res := range s.results {
		if res.SettledAt.Before(before) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Round < out[j].Round })
	return out, nil
}

// --------------------------------------------------------------------------
// BetStore
// --------------------------------------------------------------------------

func (s *Store) Record(_ context.Context, bet domain.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bets = append(s.bets, bet)
	return nil
}

func (s *Store) PositionFor(_ context.Context, round uint64, participant string) (domain.BetPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos := domain.BetPosition{Round: round}
	for _, b := range s.bets {
		if b.Round != round || b.Participant != participant {
			continue
		}
		if b.Side == domain.SideHigher {
			pos.Higher += b.Amount
		} else {
			pos.Lower += b.Amount
		}
	}
	return pos, nil
}

func (s *Store) ListByRound(_ context.Context, round uint64) ([]domain.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Bet
	for _, b := range s.bets {
		if b.Round == round {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) ListByParticipant(_ context.Context, participant string, opts domain.ListOpts) ([]domain.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []domain.Bet
	for _, b := range s.bets {
		if b.Participant == participant {
			all = append(all, b)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].PlacedAt.After(all[j].PlacedAt) })
	return paginate(all, opts), nil
}

func (s *Store) ListBefore(_ context.Context, before time.Time) ([]domain.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Bet
	for _, b := range s.bets {
		if b.PlacedAt.Before(before) {
			out = append(out, b)
		}
	}
	return out, nil
}

// --------------------------------------------------------------------------
// ClaimStore
// --------------------------------------------------------------------------

func (s *Store) Mark(_ context.Context, rec domain.ClaimRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := claimKey{rec.Round, rec.Participant}
	if _, ok := s.claims[key]; ok {
		return domain.ErrAlreadyClaimed
	}
	s.claims[key] = rec
	return nil
}

func (s *Store) Unmark(_ context.Context, round uint64, participant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, claimKey{round, participant})
	return nil
}

func (s *Store) Claimed(_ context.Context, round uint64, participant string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.claims[claimKey{round, participant}]
	return ok, nil
}

func (s *Store) ListClaims(_ context.Context, round uint64) ([]domain.ClaimRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ClaimRecord
	for _, rec := range s.claims {
		if rec.Round == round {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Participant < out[j].Participant })
	return out, nil
}

// --------------------------------------------------------------------------
// ParamsStore
// --------------------------------------------------------------------------

func (s *Store) Load(_ context.Context) (domain.MarketParams, domain.MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.seeded {
		return domain.MarketParams{}, domain.MarketSnapshot{}, domain.ErrNotFound
	}
	return s.params, s.snap, nil
}

func (s *Store) Seed(_ context.Context, p domain.MarketParams, snap domain.MarketSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seeded {
		return fmt.Errorf("memory: market already seeded")
	}
	s.seeded = true
	s.params = p
	s.snap = snap
	return nil
}

func (s *Store) SaveParams(_ context.Context, p domain.MarketParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.seeded {
		return domain.ErrNotFound
	}
	s.params = p
	return nil
}

// --------------------------------------------------------------------------
// AuditStore
// --------------------------------------------------------------------------

func (s *Store) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditID++
	s.audit = append(s.audit, domain.AuditEntry{
		ID:        s.auditID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *Store) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.AuditEntry, len(s.audit))
	copy(all, s.audit)
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return paginate(all, opts), nil
}

func paginate[T any](all []T, opts domain.ListOpts) []T {
	if opts.Offset >= len(all) {
		return []T{}
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all
}
