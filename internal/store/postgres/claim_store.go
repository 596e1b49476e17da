package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/updownhq/updown/internal/domain"
)

// ClaimStore implements domain.ClaimStore using PostgreSQL. The table's
// composite primary key is what makes Mark exactly-once.
type ClaimStore struct {
	pool *pgxpool.Pool
}

// NewClaimStore creates a ClaimStore backed by the given connection pool.
func NewClaimStore(pool *pgxpool.Pool) *ClaimStore {
	return &ClaimStore{pool: pool}
}

var _ domain.ClaimStore = (*ClaimStore)(nil)

// Mark writes the claim record, failing with ErrAlreadyClaimed when the
// (round, participant) pair exists.
func (s *ClaimStore) Mark(ctx context.Context, rec domain.ClaimRecord) error {
	const query = `
		INSERT INTO claims (round, participant, amount, claimed_at)
		VALUES ($1, $2, $3, $4)`
	_, err := s.pool.Exec(ctx, query,
		int64(rec.Round), rec.Participant, rec.Amount, rec.ClaimedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: mark claim round %d %s: %w", rec.Round, rec.Participant, domain.ErrAlreadyClaimed)
		}
		return fmt.Errorf("postgres: mark claim round %d %s: %w", rec.Round, rec.Participant, err)
	}
	return nil
}

// Unmark removes a record written by a claim whose payout transfer failed.
func (s *ClaimStore) Unmark(ctx context.Context, round uint64, participant string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM claims WHERE round = $1 AND participant = $2`,
		int64(round), participant,
	)
	if err != nil {
		return fmt.Errorf("postgres: unmark claim round %d %s: %w", round, participant, err)
	}
	return nil
}

// Claimed reports whether the pair already has a claim record.
func (s *ClaimStore) Claimed(ctx context.Context, round uint64, participant string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM claims WHERE round = $1 AND participant = $2)`,
		int64(round), participant,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check claim round %d %s: %w", round, participant, err)
	}
	return exists, nil
}

// ListClaims returns every claim record of one round in claim order.
func (s *ClaimStore) ListClaims(ctx context.Context, round uint64) ([]domain.ClaimRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT round, participant, amount, claimed_at
		 FROM claims WHERE round = $1 ORDER BY claimed_at ASC`, int64(round))
	if err != nil {
		return nil, fmt.Errorf("postgres: list claims round %d: %w", round, err)
	}
	defer rows.Close()

	var recs []domain.ClaimRecord
	for rows.Next() {
		var rec domain.ClaimRecord
		var r int64
		if err := rows.Scan(&r, &rec.Participant, &rec.Amount, &rec.ClaimedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan claim: %w", err)
		}
		rec.Round = uint64(r)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list claims rows: %w", err)
	}
	return recs, nil
}
