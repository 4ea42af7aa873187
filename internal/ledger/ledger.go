// Package ledger tracks per-user token balances. Tokens meter AI
// generation: one is consumed per generation attempt and packs are
// credited after a verified purchase.
package ledger

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrInsufficientBalance means the user's balance cannot cover the
	// requested debit. The balance is left untouched.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrUserNotFound means the user id has no ledger account.
	ErrUserNotFound = errors.New("ledger: user not found")
)

// Ledger debits and credits user token balances. Implementations must
// make Consume and Credit atomic with respect to concurrent calls on
// the same user: a balance can never go negative and no update may be
// lost.
type Ledger interface {
	// Consume debits amount from the user's balance and returns the new
	// balance. Fails with ErrInsufficientBalance without any partial
	// debit when the balance is short.
	Consume(ctx context.Context, userID string, amount float64, reason, reference string) (float64, error)

	// Credit adds amount to the user's balance and returns the new
	// balance. Fails only with ErrUserNotFound (or a storage error).
	Credit(ctx context.Context, userID string, amount float64, reason, reference string) (float64, error)

	// Balance reports the current balance.
	Balance(ctx context.Context, userID string) (float64, error)
}

// TxLedger additionally credits inside a caller-owned transaction, so
// a balance change can commit atomically with the caller's own rows
// (a purchase settling, for instance) and roll back together with
// them.
type TxLedger interface {
	Ledger

	// CreditInTx behaves like Credit but runs on tx and leaves commit
	// and rollback to the caller.
	CreditInTx(ctx context.Context, tx *sqlx.Tx, userID string, amount float64, reason, reference string) (float64, error)
}
