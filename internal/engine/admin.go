package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/updownhq/updown/internal/domain"
)

// setParams runs an owner-only parameter mutation: authorize, mutate,
// re-validate, persist, commit, emit.
func (m *Market) setParams(ctx context.Context, actor, field, value string, evType domain.EventType, mutate func(*domain.MarketParams) error) error {
	if err := m.guard.acquire(); err != nil {
		return fmt.Errorf("engine: set %s: %w", field, err)
	}
	defer m.guard.release()

	if actor != m.params.Owner {
		return fmt.Errorf("engine: set %s by %q: %w", field, actor, domain.ErrUnauthorized)
	}

	updated := m.params
	if err := mutate(&updated); err != nil {
		return fmt.Errorf("engine: set %s: %w", field, err)
	}
	if err := updated.Validate(); err != nil {
		return fmt.Errorf("engine: set %s: %w", field, err)
	}

	if err := m.deps.Params.SaveParams(ctx, updated); err != nil {
		return fmt.Errorf("engine: set %s: persisting: %w", field, err)
	}

	m.mu.Lock()
	m.params = updated
	m.mu.Unlock()

	m.emit(ctx, evType, m.now(), domain.ParamsUpdated{Field: field, Value: value, Actor: actor})

	m.logger.InfoContext(ctx, "engine: params updated",
		slog.String("field", field),
		slog.String("value", value),
		slog.String("actor", actor),
	)
	return nil
}

// Pause halts staking and settlement. Claims stay open so funds are never
// trapped, and pausing is the precondition for Rescue.
func (m *Market) Pause(ctx context.Context, actor string) error {
	return m.setParams(ctx, actor, "paused", "true", domain.EventMarketPaused, func(p *domain.MarketParams) error {
		if p.Paused {
			return domain.ErrPaused
		}
		p.Paused = true
		return nil
	})
}

// Unpause resumes normal operation.
func (m *Market) Unpause(ctx context.Context, actor string) error {
	return m.setParams(ctx, actor, "paused", "false", domain.EventMarketUnpaused, func(p *domain.MarketParams) error {
		if !p.Paused {
			return domain.ErrNotPaused
		}
		p.Paused = false
		return nil
	})
}

// SetSafeMode toggles the stake-only halt: new bets are refused while
// settlement and claims continue, winding the market down.
func (m *Market) SetSafeMode(ctx context.Context, actor string, on bool) error {
	return m.setParams(ctx, actor, "safe_mode", strconv.FormatBool(on), domain.EventParamsUpdated, func(p *domain.MarketParams) error {
		p.SafeMode = on
		return nil
	})
}

// SetKeeper replaces the keeper identity.
func (m *Market) SetKeeper(ctx context.Context, actor, keeper string) error {
	return m.setParams(ctx, actor, "keeper", keeper, domain.EventParamsUpdated, func(p *domain.MarketParams) error {
		p.Keeper = keeper
		return nil
	})
}

// SetTreasury replaces the fee recipient.
func (m *Market) SetTreasury(ctx context.Context, actor, treasury string) error {
	return m.setParams(ctx, actor, "treasury", treasury, domain.EventParamsUpdated, func(p *domain.MarketParams) error {
		p.Treasury = treasury
		return nil
	})
}

// SetMinBet replaces the minimum stake.
func (m *Market) SetMinBet(ctx context.Context, actor string, amount int64) error {
	return m.setParams(ctx, actor, "min_bet", strconv.FormatInt(amount, 10), domain.EventParamsUpdated, func(p *domain.MarketParams) error {
		p.MinBet = amount
		return nil
	})
}

// SetMaxBet replaces the maximum stake; zero removes the cap.
func (m *Market) SetMaxBet(ctx context.Context, actor string, amount int64) error {
	return m.setParams(ctx, actor, "max_bet", strconv.FormatInt(amount, 10), domain.EventParamsUpdated, func(p *domain.MarketParams) error {
		p.MaxBet = amount
		return nil
	})
}

// TransferOwnership hands the owner role to a new identity.
func (m *Market) TransferOwnership(ctx context.Context, actor, newOwner string) error {
	return m.setParams(ctx, actor, "owner", newOwner, domain.EventParamsUpdated, func(p *domain.MarketParams) error {
		p.Owner = newOwner
		return nil
	})
}

// Rescue moves amount from escrow to recipient. Owner only, and only while
// the market is paused: recovery is a last resort, not an operating mode.
func (m *Market) Rescue(ctx context.Context, actor, recipient string, amount int64) error {
	if err := m.guard.acquire(); err != nil {
		return fmt.Errorf("engine: rescue: %w", err)
	}
	defer m.guard.release()

	p := m.params
	if actor != p.Owner {
		return fmt.Errorf("engine: rescue by %q: %w", actor, domain.ErrUnauthorized)
	}
	if !p.Paused {
		return fmt.Errorf("engine: rescue: %w", domain.ErrNotPaused)
	}
	if recipient == "" {
		return fmt.Errorf("engine: rescue: %w: recipient required", domain.ErrInvalidAccount)
	}
	if amount <= 0 {
		return fmt.Errorf("engine: rescue: %d: %w", amount, domain.ErrInvalidAmount)
	}

	ref := "rescue:" + uuid.NewString()
	if err := m.deps.Bank.Disburse(ctx, recipient, amount, ref); err != nil {
		return fmt.Errorf("engine: rescue: moving %d to %s: %w", amount, recipient, err)
	}

	now := m.now()
	m.emit(ctx, domain.EventFundsRescued, now, domain.FundsRescued{
		Recipient: recipient,
		Amount:    amount,
		Actor:     actor,
	})

	m.logger.WarnContext(ctx, "engine: funds rescued",
		slog.String("recipient", recipient),
		slog.Int64("amount", amount),
		slog.String("actor", actor),
	)
	return nil
}
