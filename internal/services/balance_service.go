package services

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/credstack/credits-backend/internal/keyedmutex"
	"github.com/credstack/credits-backend/internal/metrics"
	"github.com/credstack/credits-backend/internal/models"
	repo "github.com/credstack/credits-backend/internal/repository"
	"github.com/credstack/credits-backend/internal/worker"
)

// BalanceService owns the per-user credit protocol: mutations run inside a
// keyed critical section (validate, read, compute, persist, append history),
// reads go straight to the stores.
type BalanceService struct {
	bal   repo.Balances
	hist  repo.History
	audit repo.AuditLogs
	locks *keyedmutex.KeyedMutex
	wp    *worker.Pool
}

func NewBalanceService(bal repo.Balances, hist repo.History, audit repo.AuditLogs, locks *keyedmutex.KeyedMutex, wp *worker.Pool) *BalanceService {
	return &BalanceService{bal: bal, hist: hist, audit: audit, locks: locks, wp: wp}
}

func lockKey(userID int64) string { return "user:" + strconv.FormatInt(userID, 10) }

// GetBalance needs no lock: it is a single store read and the store hands
// back a zero-value record for users it has never seen.
func (s *BalanceService) GetBalance(ctx context.Context, userID int64) (models.Balance, error) {
	return s.bal.Get(ctx, userID)
}

func (s *BalanceService) Charge(ctx context.Context, userID, amount int64) (models.Balance, error) {
	var out models.Balance
	err := s.locks.Run(ctx, lockKey(userID), func() error {
		if amount <= 0 {
			return ErrInvalidAmount
		}
		cur, err := s.bal.Get(ctx, userID)
		if err != nil {
			return err
		}
		now := time.Now()
		next := cur.Amount + amount
		if err := s.bal.Put(ctx, userID, next, now); err != nil {
			return err
		}
		if err := s.hist.Append(ctx, userID, amount, models.HistoryCharge, now); err != nil {
			return err
		}
		out = models.Balance{UserID: userID, Amount: next, UpdatedAt: now}
		return nil
	})
	s.finish(userID, amount, "charge", err)
	if err != nil {
		return models.Balance{}, err
	}
	return out, nil
}

func (s *BalanceService) Use(ctx context.Context, userID, amount int64) (models.Balance, error) {
	var out models.Balance
	err := s.locks.Run(ctx, lockKey(userID), func() error {
		if amount <= 0 {
			return ErrInvalidAmount
		}
		cur, err := s.bal.Get(ctx, userID)
		if err != nil {
			return err
		}
		if cur.Amount < amount {
			return ErrInsufficientBalance
		}
		now := time.Now()
		next := cur.Amount - amount
		if err := s.bal.Put(ctx, userID, next, now); err != nil {
			return err
		}
		if err := s.hist.Append(ctx, userID, amount, models.HistoryUse, now); err != nil {
			return err
		}
		out = models.Balance{UserID: userID, Amount: next, UpdatedAt: now}
		return nil
	})
	s.finish(userID, amount, "use", err)
	if err != nil {
		return models.Balance{}, err
	}
	return out, nil
}

// GetHistory returns the ledger newest first. Stores hand entries back in
// insertion order, so reversing before the stable sort makes entries with
// equal timestamps come out most-recently-inserted first.
func (s *BalanceService) GetHistory(ctx context.Context, userID int64) ([]models.HistoryEntry, error) {
	entries, err := s.hist.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].At.After(entries[j].At) })
	return entries, nil
}

// finish records the outcome: counters immediately, the audit row through the
// worker pool so the request does not wait on it.
func (s *BalanceService) finish(userID, amount int64, op string, err error) {
	switch {
	case err == nil:
		metrics.MutationsTotal.WithLabelValues(op).Inc()
	case errors.Is(err, keyedmutex.ErrWaitTimeout):
		metrics.LockWaitTimeouts.Inc()
	default:
		metrics.MutationsRejected.WithLabelValues(op).Inc()
	}

	action := op
	details := map[string]any{"amount": amount}
	if err != nil {
		action = op + "_rejected"
		details["reason"] = err.Error()
	}
	entityID := strconv.FormatInt(userID, 10)
	s.wp.Submit(func() {
		_ = s.audit.Create(context.Background(), models.AuditLog{
			EntityType: "balance",
			EntityID:   entityID,
			Action:     action,
			Details:    details,
		})
	})
}
