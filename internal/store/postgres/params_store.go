package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/updownhq/updown/internal/domain"
)

// ParamsStore implements domain.ParamsStore using PostgreSQL. The market
// configuration and rotation snapshot live in a single constrained row.
type ParamsStore struct {
	pool *pgxpool.Pool
}

// NewParamsStore creates a ParamsStore backed by the given connection pool.
func NewParamsStore(pool *pgxpool.Pool) *ParamsStore {
	return &ParamsStore{pool: pool}
}

var _ domain.ParamsStore = (*ParamsStore)(nil)

// Load reads the singleton row. ErrNotFound means the market was never
// seeded.
func (s *ParamsStore) Load(ctx context.Context) (domain.MarketParams, domain.MarketSnapshot, error) {
	const query = `
		SELECT
			min_bet, max_bet, fee_bps, interval_ms, cutoff_lead_ms,
			outcome_min, outcome_max, owner_id, keeper_id, treasury_id,
			paused, safe_mode,
			round, baseline, last_settlement, rollover
		FROM market_config WHERE id = 1`

	var p domain.MarketParams
	var snap domain.MarketSnapshot
	var intervalMS, cutoffMS, round int64
	err := s.pool.QueryRow(ctx, query).Scan(
		&p.MinBet, &p.MaxBet, &p.FeeBps, &intervalMS, &cutoffMS,
		&p.OutcomeMin, &p.OutcomeMax, &p.Owner, &p.Keeper, &p.Treasury,
		&p.Paused, &p.SafeMode,
		&round, &snap.Baseline, &snap.LastSettlement, &snap.Rollover,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.MarketParams{}, domain.MarketSnapshot{}, domain.ErrNotFound
		}
		return domain.MarketParams{}, domain.MarketSnapshot{}, fmt.Errorf("postgres: load market config: %w", err)
	}

	p.Interval = time.Duration(intervalMS) * time.Millisecond
	p.CutoffLead = time.Duration(cutoffMS) * time.Millisecond
	snap.Round = uint64(round)
	return p, snap, nil
}

// Seed writes the initial configuration. It fails when the market was
// already seeded; the row is created exactly once.
func (s *ParamsStore) Seed(ctx context.Context, p domain.MarketParams, snap domain.MarketSnapshot) error {
	const query = `
		INSERT INTO market_config (
			id,
			min_bet, max_bet, fee_bps, interval_ms, cutoff_lead_ms,
			outcome_min, outcome_max, owner_id, keeper_id, treasury_id,
			paused, safe_mode,
			round, baseline, last_settlement, rollover
		) VALUES (
			1,
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12,
			$13, $14, $15, $16
		)`
	_, err := s.pool.Exec(ctx, query,
		p.MinBet, p.MaxBet, p.FeeBps, p.Interval.Milliseconds(), p.CutoffLead.Milliseconds(),
		p.OutcomeMin, p.OutcomeMax, p.Owner, p.Keeper, p.Treasury,
		p.Paused, p.SafeMode,
		int64(snap.Round), snap.Baseline, snap.LastSettlement, snap.Rollover,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: seed market config: already seeded")
		}
		return fmt.Errorf("postgres: seed market config: %w", err)
	}
	return nil
}

// SaveParams updates the configuration columns, leaving the rotation
// snapshot untouched.
func (s *ParamsStore) SaveParams(ctx context.Context, p domain.MarketParams) error {
	const query = `
		UPDATE market_config SET
			min_bet        = $1,
			max_bet        = $2,
			fee_bps        = $3,
			interval_ms    = $4,
			cutoff_lead_ms = $5,
			outcome_min    = $6,
			outcome_max    = $7,
			owner_id       = $8,
			keeper_id      = $9,
			treasury_id    = $10,
			paused         = $11,
			safe_mode      = $12,
			updated_at     = NOW()
		WHERE id = 1`
	tag, err := s.pool.Exec(ctx, query,
		p.MinBet, p.MaxBet, p.FeeBps, p.Interval.Milliseconds(), p.CutoffLead.Milliseconds(),
		p.OutcomeMin, p.OutcomeMax, p.Owner, p.Keeper, p.Treasury,
		p.Paused, p.SafeMode,
	)
	if err != nil {
		return fmt.Errorf("postgres: save market params: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: save market params: %w", domain.ErrNotFound)
	}
	return nil
}
