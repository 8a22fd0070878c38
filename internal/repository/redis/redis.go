// Package redis implements the balance and history stores on top of a redis
// instance, for deployments that keep credit state in redis instead of
// postgres. Balances are JSON values, history is a per-user list.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/credstack/credits-backend/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Stores struct {
	rdb *redis.Client
}

func NewStores(rdb *redis.Client) *Stores { return &Stores{rdb: rdb} }

func balanceKey(userID int64) string { return "balance:" + strconv.FormatInt(userID, 10) }
func historyKey(userID int64) string { return "history:" + strconv.FormatInt(userID, 10) }

// Get returns a zero-amount balance when the key is missing, matching the
// store contract's lazy creation semantics.
func (s *Stores) Get(ctx context.Context, userID int64) (models.Balance, error) {
	val, err := s.rdb.Get(ctx, balanceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.Balance{UserID: userID}, nil
	}
	if err != nil {
		return models.Balance{}, err
	}
	var b models.Balance
	if err := json.Unmarshal([]byte(val), &b); err != nil {
		return models.Balance{}, err
	}
	return b, nil
}

func (s *Stores) Put(ctx context.Context, userID, amount int64, updatedAt time.Time) error {
	b, err := json.Marshal(models.Balance{UserID: userID, Amount: amount, UpdatedAt: updatedAt})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, balanceKey(userID), b, 0).Err()
}

// Append pushes to the tail of the per-user list, so LRange(0, -1) yields
// insertion order as the History contract requires.
func (s *Stores) Append(ctx context.Context, userID, amount int64, kind models.HistoryKind, at time.Time) error {
	e, err := json.Marshal(models.HistoryEntry{
		ID:     uuid.NewString(),
		UserID: userID,
		Amount: amount,
		Kind:   kind,
		At:     at,
	})
	if err != nil {
		return err
	}
	return s.rdb.RPush(ctx, historyKey(userID), e).Err()
}

func (s *Stores) ListByUser(ctx context.Context, userID int64) ([]models.HistoryEntry, error) {
	vals, err := s.rdb.LRange(ctx, historyKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.HistoryEntry, 0, len(vals))
	for _, v := range vals {
		var e models.HistoryEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
