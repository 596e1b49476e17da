package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/updownhq/updown/internal/domain"
)

// RoundStore implements domain.RoundStore using PostgreSQL.
type RoundStore struct {
	pool *pgxpool.Pool
}

// NewRoundStore creates a RoundStore backed by the given connection pool.
func NewRoundStore(pool *pgxpool.Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

var _ domain.RoundStore = (*RoundStore)(nil)

// SaveResult freezes a settlement result and rotates the market snapshot
// in one transaction. Either both land or neither does.
func (s *RoundStore) SaveResult(ctx context.Context, res domain.RoundResult, next domain.MarketSnapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: save result round %d: begin: %w", res.Round, err)
	}
	defer tx.Rollback(ctx)

	const insertResult = `
		INSERT INTO rounds (
			round, tag, baseline, outcome, winning_side,
			higher_pool, lower_pool, fee, distributable,
			rollover_in, rollover_out, settled_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12
		)`
	if _, err := tx.Exec(ctx, insertResult,
		int64(res.Round), string(res.Tag), res.Baseline, res.Outcome, string(res.WinningSide),
		res.HigherPool, res.LowerPool, res.Fee, res.Distributable,
		res.RolloverIn, res.RolloverOut, res.SettledAt,
	); err != nil {
		return fmt.Errorf("postgres: save result round %d: %w", res.Round, err)
	}

	const rotate = `
		UPDATE market_config SET
			round           = $1,
			baseline        = $2,
			last_settlement = $3,
			rollover        = $4,
			updated_at      = NOW()
		WHERE id = 1`
	if _, err := tx.Exec(ctx, rotate,
		int64(next.Round), next.Baseline, next.LastSettlement, next.Rollover,
	); err != nil {
		return fmt.Errorf("postgres: save result round %d: rotate: %w", res.Round, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: save result round %d: commit: %w", res.Round, err)
	}
	return nil
}

const roundCols = `round, tag, baseline, outcome, winning_side,
	higher_pool, lower_pool, fee, distributable,
	rollover_in, rollover_out, settled_at`

// scanRound scans a single result row into a domain.RoundResult.
func scanRound(row pgx.Row) (domain.RoundResult, error) {
	var res domain.RoundResult
	var round int64
	var tag, winning string
	err := row.Scan(
		&round, &tag, &res.Baseline, &res.Outcome, &winning,
		&res.HigherPool, &res.LowerPool, &res.Fee, &res.Distributable,
		&res.RolloverIn, &res.RolloverOut, &res.SettledAt,
	)
	if err != nil {
		return domain.RoundResult{}, err
	}
	res.Round = uint64(round)
	res.Tag = domain.RoundTag(tag)
	res.WinningSide = domain.Side(winning)
	return res, nil
}

// Result retrieves the frozen result for one round.
func (s *RoundStore) Result(ctx context.Context, round uint64) (domain.RoundResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+roundCols+` FROM rounds WHERE round = $1`, int64(round))
	res, err := scanRound(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.RoundResult{}, domain.ErrNotFound
		}
		return domain.RoundResult{}, fmt.Errorf("postgres: get result round %d: %w", round, err)
	}
	return res, nil
}

// ListResults returns settled rounds, newest first, with pagination.
func (s *RoundStore) ListResults(ctx context.Context, opts domain.ListOpts) ([]domain.RoundResult, error) {
	query := `SELECT ` + roundCols + ` FROM rounds ORDER BY round DESC`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list results: %w", err)
	}
	defer rows.Close()

	return collectRounds(rows)
}

// ListResultsBefore returns results settled strictly before the cutoff,
// oldest first, for archival.
func (s *RoundStore) ListResultsBefore(ctx context.Context, before time.Time) ([]domain.RoundResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+roundCols+` FROM rounds WHERE settled_at < $1 ORDER BY round ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list results before %s: %w", before, err)
	}
	defer rows.Close()

	return collectRounds(rows)
}

func collectRounds(rows pgx.Rows) ([]domain.RoundResult, error) {
	var results []domain.RoundResult
	for rows.Next() {
		res, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan result: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list results rows: %w", err)
	}
	return results, nil
}
