package models

import (
	"database/sql"
	"time"
)

type CreditBalance struct {
	ID        int64         `db:"id" json:"id"`
	UserID    int64         `db:"user_id" json:"user_id"`
	TeamID    sql.NullInt64 `db:"team_id" json:"team_id,omitempty"`
	Balance   float64       `db:"balance" json:"balance"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

const (
	CreditEntryUsage  = "usage"
	CreditEntryRefund = "refund"
)

// CreditEntry rows are append-only; the balance is never edited
// without a matching entry.
type CreditEntry struct {
	ID          int64         `db:"id" json:"id"`
	UserID      int64         `db:"user_id" json:"user_id"`
	TeamID      sql.NullInt64 `db:"team_id" json:"team_id,omitempty"`
	EntryType   string        `db:"entry_type" json:"entry_type"`
	Amount      float64       `db:"amount" json:"amount"`
	Description string        `db:"description" json:"description"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}
