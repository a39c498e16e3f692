package model

import (
	"time"
)

type Player struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TokenHash string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

type CreatePlayerParams struct {
	ID        string
	Name      string
	TokenHash string
	CreatedAt time.Time
}

// Balance is an account's withdrawable amount in the withdrawal ledger.
type Balance struct {
	Account   string    `json:"account"`
	Amount    int64     `json:"amount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Wallet holds the funds a player can stake, kept by the SQL value ledger.
type Wallet struct {
	Account   string    `json:"account"`
	Funds     int64     `json:"funds"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LedgerEntry is one row of the append-only funds journal.
type LedgerEntry struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	SessionID *string   `json:"sessionId,omitempty"`
	Kind      EntryKind `json:"kind"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}
