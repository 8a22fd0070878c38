package repository

import (
	"context"
	"time"

	"github.com/credstack/credits-backend/internal/models"
)

// Balances is the per-user credit record store. Get never fails for an
// unknown user: it returns a zero-amount Balance for the given id, which is
// what makes lazy balance creation a store-level concern instead of an
// upsert branch in the service.
type Balances interface {
	Get(ctx context.Context, userID int64) (models.Balance, error)
	Put(ctx context.Context, userID, amount int64, updatedAt time.Time) error
}

// History is the append-only mutation ledger. ListByUser returns entries in
// insertion order; callers that need a different order sort themselves.
type History interface {
	Append(ctx context.Context, userID, amount int64, kind models.HistoryKind, at time.Time) error
	ListByUser(ctx context.Context, userID int64) ([]models.HistoryEntry, error)
}

type Users interface {
	Create(ctx context.Context, username, email, passwordHash string) (models.User, error)
	GetByID(ctx context.Context, id int64) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}

// Repositories bundles one implementation of every store so wiring code can
// pass them around as a unit.
type Repositories struct {
	Balances  Balances
	History   History
	Users     Users
	AuditLogs AuditLogs
}
