package ledger

import (
	"context"
	"sync"

	"github.com/jmoiron/sqlx"
)

// MemoryLedger keeps balances in process memory under a mutex. It backs
// tests and local development without Postgres; the contract matches
// PostgresLedger exactly.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]float64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]float64)}
}

// Seed creates or overwrites a user's balance.
func (l *MemoryLedger) Seed(userID string, balance float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = balance
}

func (l *MemoryLedger) Consume(ctx context.Context, userID string, amount float64, reason, reference string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	if balance < amount {
		return balance, ErrInsufficientBalance
	}
	balance -= amount
	l.balances[userID] = balance
	return balance, nil
}

func (l *MemoryLedger) Credit(ctx context.Context, userID string, amount float64, reason, reference string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	balance += amount
	l.balances[userID] = balance
	return balance, nil
}

// CreditInTx satisfies TxLedger; the in-memory ledger has no transactions,
// so the tx handle is ignored.
func (l *MemoryLedger) CreditInTx(ctx context.Context, tx *sqlx.Tx, userID string, amount float64, reason, reference string) (float64, error) {
	return l.Credit(ctx, userID, amount, reason, reference)
}

func (l *MemoryLedger) Balance(ctx context.Context, userID string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	return balance, nil
}
