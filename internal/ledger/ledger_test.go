package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestConsumeThenCreditRoundTrip(t *testing.T) {
	l := NewMemoryLedger()
	l.Seed("user_1", 10)

	if _, err := l.Consume(context.Background(), "user_1", 3, "generation", ""); err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if _, err := l.Credit(context.Background(), "user_1", 3, "refund", ""); err != nil {
		t.Fatalf("credit failed: %v", err)
	}

	balance, err := l.Balance(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if balance != 10 {
		t.Errorf("expected balance 10 after round trip, got %v", balance)
	}
}

func TestConsumeInsufficientLeavesBalance(t *testing.T) {
	l := NewMemoryLedger()
	l.Seed("user_1", 2)

	_, err := l.Consume(context.Background(), "user_1", 5, "generation", "")
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	balance, _ := l.Balance(context.Background(), "user_1")
	if balance != 2 {
		t.Errorf("expected balance untouched at 2, got %v", balance)
	}
}

func TestConsumeUnknownUser(t *testing.T) {
	l := NewMemoryLedger()

	if _, err := l.Consume(context.Background(), "nobody", 1, "generation", ""); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("consume: expected ErrUserNotFound, got %v", err)
	}
	if _, err := l.Credit(context.Background(), "nobody", 1, "purchase", ""); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("credit: expected ErrUserNotFound, got %v", err)
	}
}

func TestConcurrentConsumeNoLostUpdates(t *testing.T) {
	const balance = 50

	l := NewMemoryLedger()
	l.Seed("user_1", balance)

	var wg sync.WaitGroup
	errs := make(chan error, balance)
	for i := 0; i < balance; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Consume(context.Background(), "user_1", 1, "generation", "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		if err == nil {
			successes++
		} else if !errors.Is(err, ErrInsufficientBalance) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != balance {
		t.Errorf("expected exactly %d successful debits, got %d", balance, successes)
	}

	final, _ := l.Balance(context.Background(), "user_1")
	if final != 0 {
		t.Errorf("expected final balance 0, got %v", final)
	}
}

func TestConsumeNeverGoesNegative(t *testing.T) {
	const balance = 10

	l := NewMemoryLedger()
	l.Seed("user_1", balance)

	// Twice as many debits as the balance covers.
	var wg sync.WaitGroup
	for i := 0; i < balance*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Consume(context.Background(), "user_1", 1, "generation", "")
		}()
	}
	wg.Wait()

	final, _ := l.Balance(context.Background(), "user_1")
	if final != 0 {
		t.Errorf("expected final balance 0, got %v", final)
	}
}
