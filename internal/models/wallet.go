package models

import (
	"time"
)

// TransactionKind is the direction of a wallet transaction.
type TransactionKind string

const (
	KindDebit  TransactionKind = "DEBIT"
	KindCredit TransactionKind = "CREDIT"
)

// Wallet holds a customer's prepaid balance. The balance is only ever
// mutated through the ledger service; it must equal the sum of all
// transaction deltas at all times.
type Wallet struct {
	ID         int       `json:"id" db:"id"`
	CustomerID int       `json:"customer_id" db:"customer_id"`
	Balance    int64     `json:"balance" db:"balance"` // in cents
	Currency   string    `json:"currency" db:"currency"`
	Version    int       `json:"version" db:"version"` // for optimistic locking
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// WalletTransaction is an immutable, append-only ledger row.
type WalletTransaction struct {
	ID           int             `json:"id" db:"id"`
	WalletID     int             `json:"wallet_id" db:"wallet_id"`
	Amount       int64           `json:"amount" db:"amount"` // signed delta, in cents
	Kind         TransactionKind `json:"kind" db:"kind"`
	Description  string          `json:"description" db:"description"`
	ReferenceID  string          `json:"reference_id,omitempty" db:"reference_id"` // idempotency key, empty if none
	BalanceAfter int64           `json:"balance_after" db:"balance_after"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
