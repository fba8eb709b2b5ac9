package game

import (
	"errors"
	"sync"
	"testing"
)

func TestRegistry_ReserveOnce(t *testing.T) {
	r := NewRegistry()

	if err := r.Reserve("u1", "alice", 50); err != nil {
		t.Fatalf("Reserve() first call failed: %v", err)
	}
	if err := r.Reserve("u1", "alice", 50); !errors.Is(err, ErrDuplicateBet) {
		t.Errorf("Reserve() second call = %v, want ErrDuplicateBet", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_ConcurrentReserve(t *testing.T) {
	r := NewRegistry()

	// Many goroutines race for the same user's slot; exactly one may win.
	var wg sync.WaitGroup
	successes := make(chan struct{}, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Reserve("u1", "alice", 50); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	won := 0
	for range successes {
		won++
	}
	if won != 1 {
		t.Errorf("concurrent Reserve() succeeded %d times, want 1", won)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_ReleaseFreesSlot(t *testing.T) {
	r := NewRegistry()

	if err := r.Reserve("u1", "alice", 50); err != nil {
		t.Fatalf("Reserve() failed: %v", err)
	}
	r.Release("u1")

	if err := r.Reserve("u1", "alice", 75); err != nil {
		t.Errorf("Reserve() after Release() = %v, want nil", err)
	}
}

func TestRegistry_CashOutPayout(t *testing.T) {
	r := NewRegistry()

	if err := r.Reserve("u1", "alice", 50); err != nil {
		t.Fatalf("Reserve() failed: %v", err)
	}
	r.Commit("u1", "bet-1")

	entry, err := r.CashOut("u1", 2.50)
	if err != nil {
		t.Fatalf("CashOut() failed: %v", err)
	}
	if entry.Payout != 125.00 {
		t.Errorf("Payout = %v, want 125.00", entry.Payout)
	}
	if entry.CashoutMultiplier != 2.50 {
		t.Errorf("CashoutMultiplier = %v, want 2.50", entry.CashoutMultiplier)
	}
	if !entry.CashedOut {
		t.Error("entry not marked cashed out")
	}
}

func TestRegistry_CashOutErrors(t *testing.T) {
	r := NewRegistry()

	if _, err := r.CashOut("ghost", 2.0); !errors.Is(err, ErrNoActiveBet) {
		t.Errorf("CashOut() unknown user = %v, want ErrNoActiveBet", err)
	}

	r.Reserve("u1", "alice", 50)
	if _, err := r.CashOut("u1", 2.0); err != nil {
		t.Fatalf("CashOut() failed: %v", err)
	}
	if _, err := r.CashOut("u1", 3.0); !errors.Is(err, ErrAlreadyCashedOut) {
		t.Errorf("CashOut() second call = %v, want ErrAlreadyCashedOut", err)
	}
}

func TestRegistry_ConcurrentCashOut(t *testing.T) {
	r := NewRegistry()
	r.Reserve("u1", "alice", 50)

	var wg sync.WaitGroup
	successes := make(chan PlayerBet, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if entry, err := r.CashOut("u1", 1.87); err == nil {
				successes <- entry
			}
		}()
	}
	wg.Wait()
	close(successes)

	won := 0
	for range successes {
		won++
	}
	if won != 1 {
		t.Errorf("concurrent CashOut() succeeded %d times, want 1", won)
	}
}

func TestRegistry_UndoCashOut(t *testing.T) {
	r := NewRegistry()
	r.Reserve("u1", "alice", 50)

	if _, err := r.CashOut("u1", 2.0); err != nil {
		t.Fatalf("CashOut() failed: %v", err)
	}
	r.UndoCashOut("u1")

	entry, err := r.CashOut("u1", 2.5)
	if err != nil {
		t.Fatalf("CashOut() after UndoCashOut() = %v, want nil", err)
	}
	if entry.Payout != 125.00 {
		t.Errorf("Payout = %v, want 125.00", entry.Payout)
	}
}

func TestRegistry_ClearAndSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Reserve("u1", "alice", 50)
	r.Reserve("u2", "bob", 20)

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() returned %d entries, want 2", len(snap))
	}

	// Mutating the snapshot must not touch the registry.
	snap[0].CashedOut = true
	for _, entry := range r.Snapshot() {
		if entry.CashedOut {
			t.Error("Snapshot() leaked a mutable reference")
		}
	}

	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Len() after Clear() = %d, want 0", r.Len())
	}
}
