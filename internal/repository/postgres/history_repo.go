package postgres

import (
	"context"
	"time"

	"github.com/credstack/credits-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type historyRepo struct{ pool *pgxpool.Pool }

func (r *historyRepo) Append(ctx context.Context, userID, amount int64, kind models.HistoryKind, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO balance_history(id, user_id, amount, kind, at)
		 VALUES($1, $2, $3, $4, $5)`,
		uuid.NewString(), userID, amount, string(kind), at,
	)
	return err
}

// ListByUser returns entries in insertion order (seq ascending).
func (r *historyRepo) ListByUser(ctx context.Context, userID int64) ([]models.HistoryEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, amount, kind, at
		   FROM balance_history
		  WHERE user_id=$1
		  ORDER BY seq ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Kind, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
