package models

import "time"

type HistoryKind string

const (
	HistoryCharge HistoryKind = "charge"
	HistoryUse    HistoryKind = "use"
)

// HistoryEntry is one line of the append-only ledger. Exactly one entry is
// written per accepted mutation; rejected mutations write nothing.
type HistoryEntry struct {
	ID     string      `json:"id"`
	UserID int64       `json:"user_id"`
	Amount int64       `json:"amount"`
	Kind   HistoryKind `json:"kind"`
	At     time.Time   `json:"at"`
}
