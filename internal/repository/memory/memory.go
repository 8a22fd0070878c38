// Package memory provides map-backed stores guarded by a single RWMutex.
// They back the service tests and the zero-dependency dev mode.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/credstack/credits-backend/internal/models"
	repo "github.com/credstack/credits-backend/internal/repository"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("memory: not found")

// Store holds all state; the exported repository facets below share it.
type Store struct {
	mu       sync.RWMutex
	balances map[int64]models.Balance
	history  map[int64][]models.HistoryEntry
	users    map[int64]models.User
	byEmail  map[string]int64
	audits   []models.AuditLog
	nextUser int64
}

func NewStore() *Store {
	return &Store{
		balances: make(map[int64]models.Balance),
		history:  make(map[int64][]models.HistoryEntry),
		users:    make(map[int64]models.User),
		byEmail:  make(map[string]int64),
		nextUser: 1,
	}
}

func (s *Store) Repositories() repo.Repositories {
	return repo.Repositories{
		Balances:  balancesRepo{s},
		History:   historyRepo{s},
		Users:     usersRepo{s},
		AuditLogs: auditLogsRepo{s},
	}
}

// Audits returns a copy of everything written so far.
func (s *Store) Audits() []models.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AuditLog, len(s.audits))
	copy(out, s.audits)
	return out
}

type balancesRepo struct{ s *Store }

func (r balancesRepo) Get(_ context.Context, userID int64) (models.Balance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if b, ok := r.s.balances[userID]; ok {
		return b, nil
	}
	return models.Balance{UserID: userID}, nil
}

func (r balancesRepo) Put(_ context.Context, userID, amount int64, updatedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.balances[userID] = models.Balance{UserID: userID, Amount: amount, UpdatedAt: updatedAt}
	return nil
}

type historyRepo struct{ s *Store }

func (r historyRepo) Append(_ context.Context, userID, amount int64, kind models.HistoryKind, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.history[userID] = append(r.s.history[userID], models.HistoryEntry{
		ID:     uuid.NewString(),
		UserID: userID,
		Amount: amount,
		Kind:   kind,
		At:     at,
	})
	return nil
}

func (r historyRepo) ListByUser(_ context.Context, userID int64) ([]models.HistoryEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.HistoryEntry, len(r.s.history[userID]))
	copy(out, r.s.history[userID])
	return out, nil
}

type usersRepo struct{ s *Store }

func (r usersRepo) Create(_ context.Context, username, email, passwordHash string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.byEmail[email]; ok {
		return models.User{}, errors.New("memory: email taken")
	}
	now := time.Now()
	u := models.User{
		ID:           r.s.nextUser,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.s.nextUser++
	r.s.users[u.ID] = u
	r.s.byEmail[email] = u.ID
	return u, nil
}

func (r usersRepo) GetByID(_ context.Context, id int64) (models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (r usersRepo) GetByEmail(_ context.Context, email string) (models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.byEmail[email]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return r.s.users[id], nil
}

type auditLogsRepo struct{ s *Store }

func (r auditLogsRepo) Create(_ context.Context, l models.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	r.s.audits = append(r.s.audits, l)
	return nil
}
