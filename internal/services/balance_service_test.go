package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/credstack/credits-backend/internal/keyedmutex"
	"github.com/credstack/credits-backend/internal/models"
	"github.com/credstack/credits-backend/internal/repository/memory"
	"github.com/credstack/credits-backend/internal/worker"
)

func newTestService(t *testing.T) (*BalanceService, *memory.Store, *keyedmutex.KeyedMutex) {
	t.Helper()
	store := memory.NewStore()
	repos := store.Repositories()
	locks := keyedmutex.New(keyedmutex.WithWaitTimeout(2*time.Second), keyedmutex.WithHoldTimeout(5*time.Second))
	wp := worker.NewPool(2)
	t.Cleanup(wp.Stop)
	return NewBalanceService(repos.Balances, repos.History, repos.AuditLogs, locks, wp), store, locks
}

func TestGetBalanceUnknownUserIsZero(t *testing.T) {
	s, _, _ := newTestService(t)
	b, err := s.GetBalance(context.Background(), 1)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if b.UserID != 1 || b.Amount != 0 {
		t.Fatalf("expected zero balance, got %+v", b)
	}
}

func TestChargeUseSequence(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	b, err := s.Charge(ctx, 1, 1000)
	if err != nil || b.Amount != 1000 {
		t.Fatalf("charge 1000: balance %d err %v", b.Amount, err)
	}
	b, err = s.Use(ctx, 1, 300)
	if err != nil || b.Amount != 700 {
		t.Fatalf("use 300: balance %d err %v", b.Amount, err)
	}
	b, err = s.Charge(ctx, 1, 500)
	if err != nil || b.Amount != 1200 {
		t.Fatalf("charge 500: balance %d err %v", b.Amount, err)
	}

	hist, err := s.GetHistory(ctx, 1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(hist))
	}
	want := []struct {
		amount int64
		kind   models.HistoryKind
	}{
		{500, models.HistoryCharge},
		{300, models.HistoryUse},
		{1000, models.HistoryCharge},
	}
	for i, w := range want {
		if hist[i].Amount != w.amount || hist[i].Kind != w.kind {
			t.Fatalf("entry %d: expected %d %s, got %d %s", i, w.amount, w.kind, hist[i].Amount, hist[i].Kind)
		}
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].At.After(hist[i-1].At) {
			t.Fatalf("history not newest first at index %d", i)
		}
	}
}

func TestConcurrentChargesSameUser(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	amounts := []int64{1000, 500, 300}
	var wg sync.WaitGroup
	for _, a := range amounts {
		wg.Add(1)
		go func(a int64) {
			defer wg.Done()
			if _, err := s.Charge(ctx, 1, a); err != nil {
				t.Errorf("charge %d: %v", a, err)
			}
		}(a)
	}
	wg.Wait()

	b, _ := s.GetBalance(ctx, 1)
	if b.Amount != 1800 {
		t.Fatalf("expected 1800, got %d", b.Amount)
	}
	hist, _ := s.GetHistory(ctx, 1)
	if len(hist) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(hist))
	}
	var sum int64
	for _, e := range hist {
		sum += e.Amount
	}
	if sum != 1800 {
		t.Fatalf("history amounts sum to %d, expected 1800", sum)
	}
}

func TestConcurrentUsesSameUser(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := s.Charge(ctx, 1, 10000); err != nil {
		t.Fatalf("seed charge: %v", err)
	}

	var wg sync.WaitGroup
	for _, a := range []int64{1000, 500, 300} {
		wg.Add(1)
		go func(a int64) {
			defer wg.Done()
			if _, err := s.Use(ctx, 1, a); err != nil {
				t.Errorf("use %d: %v", a, err)
			}
		}(a)
	}
	wg.Wait()

	b, _ := s.GetBalance(ctx, 1)
	if b.Amount != 8200 {
		t.Fatalf("expected 8200, got %d", b.Amount)
	}
}

func TestNoLostUpdatesUnderContention(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := s.Charge(ctx, 1, 5000); err != nil {
		t.Fatalf("seed charge: %v", err)
	}

	// 20 charges of 10 and 20 uses of 10 leave the balance where it started.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := s.Charge(ctx, 1, 10); err != nil {
				t.Errorf("charge: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := s.Use(ctx, 1, 10); err != nil {
				t.Errorf("use: %v", err)
			}
		}()
	}
	wg.Wait()

	b, _ := s.GetBalance(ctx, 1)
	if b.Amount != 5000 {
		t.Fatalf("lost update: expected 5000, got %d", b.Amount)
	}
	hist, _ := s.GetHistory(ctx, 1)
	if len(hist) != 41 {
		t.Fatalf("expected 41 history entries, got %d", len(hist))
	}
}

func TestInsufficientBalance(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := s.Charge(ctx, 1, 100); err != nil {
		t.Fatalf("seed charge: %v", err)
	}
	if _, err := s.Use(ctx, 1, 500); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	b, _ := s.GetBalance(ctx, 1)
	if b.Amount != 100 {
		t.Fatalf("balance changed on rejected use: %d", b.Amount)
	}
	hist, _ := s.GetHistory(ctx, 1)
	if len(hist) != 1 || hist[0].Kind != models.HistoryCharge {
		t.Fatalf("rejected use left a history entry: %+v", hist)
	}
}

func TestInvalidAmount(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	for _, a := range []int64{0, -5} {
		if _, err := s.Charge(ctx, 1, a); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("charge %d: expected ErrInvalidAmount, got %v", a, err)
		}
		if _, err := s.Use(ctx, 1, a); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("use %d: expected ErrInvalidAmount, got %v", a, err)
		}
	}

	b, _ := s.GetBalance(ctx, 1)
	if b.Amount != 0 {
		t.Fatalf("balance mutated by invalid amounts: %d", b.Amount)
	}
	if hist, _ := s.GetHistory(ctx, 1); len(hist) != 0 {
		t.Fatalf("invalid amounts left history entries: %d", len(hist))
	}
}

func TestIndependentUsers(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := s.Charge(ctx, 1, 1000); err != nil {
			t.Errorf("user1 charge: %v", err)
		}
		if _, err := s.Use(ctx, 1, 300); err != nil {
			t.Errorf("user1 use: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := s.Charge(ctx, 2, 2000); err != nil {
			t.Errorf("user2 charge: %v", err)
		}
		if _, err := s.Use(ctx, 2, 500); err != nil {
			t.Errorf("user2 use: %v", err)
		}
	}()
	wg.Wait()

	b1, _ := s.GetBalance(ctx, 1)
	b2, _ := s.GetBalance(ctx, 2)
	if b1.Amount != 700 || b2.Amount != 1500 {
		t.Fatalf("expected 700/1500, got %d/%d", b1.Amount, b2.Amount)
	}
	h1, _ := s.GetHistory(ctx, 1)
	h2, _ := s.GetHistory(ctx, 2)
	if len(h1) != 2 || len(h2) != 2 {
		t.Fatalf("expected 2 history entries each, got %d/%d", len(h1), len(h2))
	}
}

func TestHistoryTieBreakByInsertion(t *testing.T) {
	s, store, _ := newTestService(t)
	ctx := context.Background()

	// Two entries with the same timestamp: the later insertion wins.
	repos := store.Repositories()
	at := time.Now()
	_ = repos.History.Append(ctx, 1, 100, models.HistoryCharge, at)
	_ = repos.History.Append(ctx, 1, 200, models.HistoryCharge, at)
	_ = repos.History.Append(ctx, 1, 300, models.HistoryCharge, at.Add(-time.Second))

	hist, err := s.GetHistory(ctx, 1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	want := []int64{200, 100, 300}
	for i, w := range want {
		if hist[i].Amount != w {
			t.Fatalf("entry %d: expected %d, got %d", i, w, hist[i].Amount)
		}
	}
}

func TestLockWaitTimeoutLeavesNoTrace(t *testing.T) {
	store := memory.NewStore()
	repos := store.Repositories()
	locks := keyedmutex.New(keyedmutex.WithWaitTimeout(20*time.Millisecond), keyedmutex.WithHoldTimeout(5*time.Second))
	wp := worker.NewPool(1)
	t.Cleanup(wp.Stop)
	s := NewBalanceService(repos.Balances, repos.History, repos.AuditLogs, locks, wp)

	// Occupy the user's key so the charge cannot get in.
	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = locks.Run(context.Background(), "user:1", func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	if _, err := s.Charge(context.Background(), 1, 100); !errors.Is(err, keyedmutex.ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}

	b, _ := s.GetBalance(context.Background(), 1)
	if b.Amount != 0 {
		t.Fatalf("balance mutated despite wait timeout: %d", b.Amount)
	}
	if hist, _ := s.GetHistory(context.Background(), 1); len(hist) != 0 {
		t.Fatalf("history written despite wait timeout: %d", len(hist))
	}
}

func TestAuditTrailRecordsOutcomes(t *testing.T) {
	store := memory.NewStore()
	repos := store.Repositories()
	locks := keyedmutex.New()
	wp := worker.NewPool(1)
	s := NewBalanceService(repos.Balances, repos.History, repos.AuditLogs, locks, wp)
	ctx := context.Background()

	if _, err := s.Charge(ctx, 1, 100); err != nil {
		t.Fatalf("charge: %v", err)
	}
	if _, err := s.Use(ctx, 1, 500); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	wp.Stop() // flush async audit writes

	audits := store.Audits()
	if len(audits) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(audits))
	}
	if audits[0].Action != "charge" || audits[1].Action != "use_rejected" {
		t.Fatalf("unexpected audit actions: %s, %s", audits[0].Action, audits[1].Action)
	}
}
