package models

import "time"

// Balance is the single per-user credit record. It is created lazily with a
// zero amount the first time a user is read or mutated and never deleted.
type Balance struct {
	UserID    int64     `json:"user_id"`
	Amount    int64     `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}
