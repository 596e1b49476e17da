package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/updownhq/updown/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL. The journal is
// append-only; archival copies rows out but never removes them.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

var _ domain.BetStore = (*BetStore)(nil)

// Record appends one staking event to the journal.
func (s *BetStore) Record(ctx context.Context, bet domain.Bet) error {
	const query = `
		INSERT INTO bets (id, round, participant, side, amount, baseline, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query,
		bet.ID, int64(bet.Round), bet.Participant, string(bet.Side),
		bet.Amount, bet.Baseline, bet.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record bet %s: %w", bet.ID, err)
	}
	return nil
}

// PositionFor sums a participant's recorded stakes per side for one round.
func (s *BetStore) PositionFor(ctx context.Context, round uint64, participant string) (domain.BetPosition, error) {
	const query = `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE side = 'higher'), 0),
			COALESCE(SUM(amount) FILTER (WHERE side = 'lower'), 0)
		FROM bets
		WHERE round = $1 AND participant = $2`

	pos := domain.BetPosition{Round: round}
	err := s.pool.QueryRow(ctx, query, int64(round), participant).Scan(&pos.Higher, &pos.Lower)
	if err != nil {
		return domain.BetPosition{}, fmt.Errorf("postgres: position round %d %s: %w", round, participant, err)
	}
	return pos, nil
}

const betCols = `id, round, participant, side, amount, baseline, placed_at`

func scanBet(row pgx.Row) (domain.Bet, error) {
	var b domain.Bet
	var round int64
	var side string
	err := row.Scan(&b.ID, &round, &b.Participant, &side, &b.Amount, &b.Baseline, &b.PlacedAt)
	if err != nil {
		return domain.Bet{}, err
	}
	b.Round = uint64(round)
	b.Side = domain.Side(side)
	return b, nil
}

// ListByRound returns every bet of one round in placement order.
func (s *BetStore) ListByRound(ctx context.Context, round uint64) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betCols+` FROM bets WHERE round = $1 ORDER BY placed_at ASC, id ASC`, int64(round))
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets round %d: %w", round, err)
	}
	defer rows.Close()

	return collectBets(rows)
}

// ListByParticipant returns a participant's bets, newest first, with
// pagination.
func (s *BetStore) ListByParticipant(ctx context.Context, participant string, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betCols + ` FROM bets WHERE participant = $1 ORDER BY placed_at DESC, id DESC`
	args := []any{participant}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for %s: %w", participant, err)
	}
	defer rows.Close()

	return collectBets(rows)
}

// ListBefore returns bets placed strictly before the cutoff, oldest first,
// for archival.
func (s *BetStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betCols+` FROM bets WHERE placed_at < $1 ORDER BY placed_at ASC, id ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets before %s: %w", before, err)
	}
	defer rows.Close()

	return collectBets(rows)
}

func collectBets(rows pgx.Rows) ([]domain.Bet, error) {
	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bets rows: %w", err)
	}
	return bets, nil
}
