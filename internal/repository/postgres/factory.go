package postgres

import (
	repo "github.com/credstack/credits-backend/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

func NewRepositories(pool *pgxpool.Pool) repo.Repositories {
	return repo.Repositories{
		Balances:  &balancesRepo{pool},
		History:   &historyRepo{pool},
		Users:     &usersRepo{pool},
		AuditLogs: &auditLogsRepo{pool},
	}
}
