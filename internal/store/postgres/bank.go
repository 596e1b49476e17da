package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/updownhq/updown/internal/domain"
)

// Bank implements domain.Bank and domain.AccountAdmin on the accounts and
// ledger tables. Every movement is one transaction: the balance updates
// and the ledger rows land together or not at all, and balances can never
// go negative.
type Bank struct {
	pool   *pgxpool.Pool
	escrow string
}

// NewBank creates a Bank holding market value in the named escrow account.
func NewBank(pool *pgxpool.Pool, escrow string) *Bank {
	return &Bank{pool: pool, escrow: escrow}
}

var (
	_ domain.Bank         = (*Bank)(nil)
	_ domain.AccountAdmin = (*Bank)(nil)
)

// Collect pulls amount from a participant account into escrow.
func (b *Bank) Collect(ctx context.Context, from string, amount int64, ref string) error {
	if err := checkMovement(from, amount); err != nil {
		return err
	}
	if err := b.move(ctx, from, b.escrow, amount, ref); err != nil {
		return fmt.Errorf("postgres: collect %s (%s): %w: %w", from, ref, domain.ErrTransferFailed, err)
	}
	return nil
}

// Disburse pays amount out of escrow to an account.
func (b *Bank) Disburse(ctx context.Context, to string, amount int64, ref string) error {
	if err := checkMovement(to, amount); err != nil {
		return err
	}
	if err := b.move(ctx, b.escrow, to, amount, ref); err != nil {
		return fmt.Errorf("postgres: disburse %s (%s): %w: %w", to, ref, domain.ErrTransferFailed, err)
	}
	return nil
}

// Balance returns an account's balance; unknown accounts hold zero.
func (b *Bank) Balance(ctx context.Context, account string) (int64, error) {
	var balance int64
	err := b.pool.QueryRow(ctx,
		`SELECT COALESCE((SELECT balance FROM accounts WHERE account = $1), 0)`,
		account,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("postgres: balance %s: %w", account, err)
	}
	return balance, nil
}

// Credit adds external value to an account.
func (b *Bank) Credit(ctx context.Context, account string, amount int64, ref string) error {
	if err := checkMovement(account, amount); err != nil {
		return err
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: credit %s: begin: %w", account, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, upsertBalance, account, amount); err != nil {
		return fmt.Errorf("postgres: credit %s (%s): %w", account, ref, err)
	}
	if _, err := tx.Exec(ctx, insertLedger, account, amount, ref); err != nil {
		return fmt.Errorf("postgres: credit %s (%s): ledger: %w", account, ref, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: credit %s: commit: %w", account, err)
	}
	return nil
}

// Debit removes value from an account toward the outside world.
func (b *Bank) Debit(ctx context.Context, account string, amount int64, ref string) error {
	if err := checkMovement(account, amount); err != nil {
		return err
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: debit %s: begin: %w", account, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, conditionalDebit, amount, account)
	if err != nil {
		return fmt.Errorf("postgres: debit %s (%s): %w", account, ref, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: debit %s (%s): %w", account, ref, domain.ErrInsufficientFunds)
	}
	if _, err := tx.Exec(ctx, insertLedger, account, -amount, ref); err != nil {
		return fmt.Errorf("postgres: debit %s (%s): ledger: %w", account, ref, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: debit %s: commit: %w", account, err)
	}
	return nil
}

const (
	// Debits only apply when the balance covers them; zero rows affected
	// means insufficient funds.
	conditionalDebit = `
		UPDATE accounts
		SET balance = balance - $1, updated_at = NOW()
		WHERE account = $2 AND balance >= $1`

	upsertBalance = `
		INSERT INTO accounts (account, balance) VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE
		SET balance = accounts.balance + EXCLUDED.balance, updated_at = NOW()`

	insertLedger = `INSERT INTO ledger (account, delta, ref) VALUES ($1, $2, $3)`
)

// move shifts amount between two accounts and writes both ledger rows in
// one transaction.
func (b *Bank) move(ctx context.Context, from, to string, amount int64, ref string) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, conditionalDebit, amount, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	if _, err := tx.Exec(ctx, upsertBalance, to, amount); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, insertLedger, from, -amount, ref); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, insertLedger, to, amount, ref); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func checkMovement(account string, amount int64) error {
	if account == "" {
		return fmt.Errorf("postgres: %w: account required", domain.ErrInvalidAccount)
	}
	if amount <= 0 {
		return fmt.Errorf("postgres: %w: amount %d", domain.ErrInvalidAmount, amount)
	}
	return nil
}
