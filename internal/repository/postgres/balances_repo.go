package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/credstack/credits-backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type balancesRepo struct{ pool *pgxpool.Pool }

// Get returns a zero-amount balance for users that have no row yet; the row
// itself is only written on the first Put.
func (r *balancesRepo) Get(ctx context.Context, userID int64) (models.Balance, error) {
	var b models.Balance
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, amount, updated_at
		   FROM balances
		  WHERE user_id=$1`,
		userID,
	).Scan(&b.UserID, &b.Amount, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Balance{UserID: userID}, nil
	}
	return b, err
}

func (r *balancesRepo) Put(ctx context.Context, userID, amount int64, updatedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO balances(user_id, amount, updated_at)
		 VALUES($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE
		 SET amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at`,
		userID, amount, updatedAt,
	)
	return err
}
