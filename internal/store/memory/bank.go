package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/updownhq/updown/internal/domain"
)

// Bank is a map-backed escrow bank. Movements are atomic under one mutex
// and balances never go negative.
type Bank struct {
	mu       sync.Mutex
	escrow   string
	accounts map[string]int64
}

// NewBank creates a Bank holding market value in the named escrow account.
func NewBank(escrow string) *Bank {
	return &Bank{
		escrow:   escrow,
		accounts: map[string]int64{escrow: 0},
	}
}

var (
	_ domain.Bank         = (*Bank)(nil)
	_ domain.AccountAdmin = (*Bank)(nil)
)

func (b *Bank) Collect(_ context.Context, from string, amount int64, ref string) error {
	if err := checkMovement(from, amount); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.accounts[from] < amount {
		return fmt.Errorf("memory: collect %s (%s): %w: %w", from, ref, domain.ErrTransferFailed, domain.ErrInsufficientFunds)
	}
	b.accounts[from] -= amount
	b.accounts[b.escrow] += amount
	return nil
}

func (b *Bank) Disburse(_ context.Context, to string, amount int64, ref string) error {
	if err := checkMovement(to, amount); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.accounts[b.escrow] < amount {
		return fmt.Errorf("memory: disburse %s (%s): escrow short: %w: %w", to, ref, domain.ErrTransferFailed, domain.ErrInsufficientFunds)
	}
	b.accounts[b.escrow] -= amount
	b.accounts[to] += amount
	return nil
}

func (b *Bank) Balance(_ context.Context, account string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts[account], nil
}

func (b *Bank) Credit(_ context.Context, account string, amount int64, ref string) error {
	if err := checkMovement(account, amount); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[account] += amount
	return nil
}

func (b *Bank) Debit(_ context.Context, account string, amount int64, ref string) error {
	if err := checkMovement(account, amount); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.accounts[account] < amount {
		return fmt.Errorf("memory: debit %s (%s): %w", account, ref, domain.ErrInsufficientFunds)
	}
	b.accounts[account] -= amount
	return nil
}

func checkMovement(account string, amount int64) error {
	if account == "" {
		return fmt.Errorf("memory: %w: account required", domain.ErrInvalidAccount)
	}
	if amount <= 0 {
		return fmt.Errorf("memory: %w: amount %d", domain.ErrInvalidAmount, amount)
	}
	return nil
}
