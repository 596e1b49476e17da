package domain

import "context"

// Bank moves value between participant accounts and the market escrow.
// Every movement carries a reference tag recorded in the ledger, making the
// journal the audit trail for conservation checks. Failed movements leave
// no trace and surface as ErrTransferFailed (wrapping the cause, e.g.
// ErrInsufficientFunds).
//
// The bank is the only inbound value path: there is no way to place value
// under the market's control except through a Collect issued by a defined
// operation, so all held value is accounted for by the ledger.
type Bank interface {
	// Collect pulls amount from a participant account into escrow.
	Collect(ctx context.Context, from string, amount int64, ref string) error
	// Disburse pays amount out of escrow to an account.
	Disburse(ctx context.Context, to string, amount int64, ref string) error
	Balance(ctx context.Context, account string) (int64, error)
}

// AccountAdmin adjusts account balances against the outside world.
// Normally a payments pipeline drives these; they are exposed to the owner
// for operations tooling.
type AccountAdmin interface {
	Credit(ctx context.Context, account string, amount int64, ref string) error
	Debit(ctx context.Context, account string, amount int64, ref string) error
}
