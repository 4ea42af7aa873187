package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// PostgresLedger stores balances on the users table. Both operations
// are a single conditional UPDATE, so the database's row-level
// atomicity is the only concurrency primitive needed: two concurrent
// debits can never read the same pre-debit balance.
type PostgresLedger struct {
	db    *sqlx.DB
	audit *zap.Logger
}

func NewPostgresLedger(db *sqlx.DB, audit *zap.Logger) *PostgresLedger {
	if audit == nil {
		audit = zap.NewNop()
	}
	return &PostgresLedger{db: db, audit: audit}
}

func (l *PostgresLedger) Consume(ctx context.Context, userID string, amount float64, reason, reference string) (float64, error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var balance float64
	query := `UPDATE users SET tokens = tokens - $1, updated_at = NOW()
	          WHERE clerk_id = $2 AND tokens >= $1
	          RETURNING tokens`
	err = tx.GetContext(ctx, &balance, query, amount, userID)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the user is missing or the balance is short; a plain
		// read tells which without racing the debit we didn't make.
		var current float64
		err = tx.GetContext(ctx, &current, `SELECT tokens FROM users WHERE clerk_id = $1`, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		if err != nil {
			return 0, err
		}
		return current, ErrInsufficientBalance
	}
	if err != nil {
		return 0, err
	}

	if err := l.record(ctx, tx, userID, -amount, balance, reason, reference); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	l.audit.Info("consume",
		zap.String("user", userID),
		zap.Float64("amount", amount),
		zap.Float64("balance", balance),
		zap.String("reason", reason),
		zap.String("reference", reference),
	)
	return balance, nil
}

func (l *PostgresLedger) Credit(ctx context.Context, userID string, amount float64, reason, reference string) (float64, error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	balance, err := l.CreditInTx(ctx, tx, userID, amount, reason, reference)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	l.audit.Info("credit",
		zap.String("user", userID),
		zap.Float64("amount", amount),
		zap.Float64("balance", balance),
		zap.String("reason", reason),
		zap.String("reference", reference),
	)
	return balance, nil
}

// CreditInTx applies the credit and its audit row on the caller's
// transaction. The caller owns commit and rollback; a rollback undoes
// the credit together with whatever else the transaction changed.
func (l *PostgresLedger) CreditInTx(ctx context.Context, tx *sqlx.Tx, userID string, amount float64, reason, reference string) (float64, error) {
	var balance float64
	query := `UPDATE users SET tokens = tokens + $1, updated_at = NOW()
	          WHERE clerk_id = $2
	          RETURNING tokens`
	err := tx.GetContext(ctx, &balance, query, amount, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	if err := l.record(ctx, tx, userID, amount, balance, reason, reference); err != nil {
		return 0, err
	}
	return balance, nil
}

func (l *PostgresLedger) Balance(ctx context.Context, userID string) (float64, error) {
	var balance float64
	err := l.db.GetContext(ctx, &balance, `SELECT tokens FROM users WHERE clerk_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// record appends the audit row inside the same transaction as the
// balance change.
func (l *PostgresLedger) record(ctx context.Context, tx *sqlx.Tx, userID string, delta, balance float64, reason, reference string) error {
	query := `INSERT INTO token_transactions (clerk_id, delta, balance, reason, reference)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := tx.ExecContext(ctx, query, userID, delta, balance, reason, reference)
	return err
}
