package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"
	"github.com/replywave/backend/internal/models"
)

var (
	// ErrInsufficientFunds is returned when a debit would take the
	// balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrWalletNotFound is returned when the customer has no wallet.
	ErrWalletNotFound = errors.New("wallet not found")
)

// WalletService is the only code path that mutates a prepaid balance.
// Debit and Credit run the balance read, the transaction-log insert and
// the balance write inside one database transaction, with a row lock on
// the wallet and an optimistic version check as backstop, so concurrent
// operations against the same wallet serialize.
type WalletService struct {
	db *sql.DB
}

func NewWalletService(db *sql.DB) *WalletService {
	return &WalletService{db: db}
}

// Debit deducts amount (cents) from the customer's wallet and appends a
// DEBIT transaction. If referenceID is non-empty and a DEBIT with that
// reference already exists, nothing is written and the stored resulting
// balance is returned (idempotent replay).
func (s *WalletService) Debit(ctx context.Context, customerID int, amount int64, description, referenceID string) (int64, error) {
	return s.apply(ctx, customerID, amount, models.KindDebit, description, referenceID)
}

// Credit adds amount (cents) to the customer's wallet and appends a
// CREDIT transaction, with the same idempotency contract as Debit.
func (s *WalletService) Credit(ctx context.Context, customerID int, amount int64, description, referenceID string) (int64, error) {
	return s.apply(ctx, customerID, amount, models.KindCredit, description, referenceID)
}

func (s *WalletService) apply(ctx context.Context, customerID int, amount int64, kind models.TransactionKind, description, referenceID string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %d", amount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if referenceID != "" {
		balance, found, err := s.findReplay(ctx, tx, customerID, kind, referenceID)
		if err != nil {
			return 0, err
		}
		if found {
			log.Printf("[WALLET] Idempotent replay for customer %d, kind %s, reference %s", customerID, kind, referenceID)
			return balance, nil
		}
	}

	var walletID int
	var balance int64
	var version int
	err = tx.QueryRowContext(ctx, `
		SELECT id, balance, version FROM wallets
		WHERE customer_id = $1
		FOR UPDATE`, customerID).Scan(&walletID, &balance, &version)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrWalletNotFound
		}
		return 0, err
	}

	delta := amount
	if kind == models.KindDebit {
		delta = -amount
	}
	newBalance := balance + delta
	if newBalance < 0 {
		return 0, ErrInsufficientFunds
	}

	ref := sql.NullString{String: referenceID, Valid: referenceID != ""}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (wallet_id, amount, kind, description, reference_id, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		walletID, delta, string(kind), description, ref, newBalance, time.Now())
	if err != nil {
		// Unique (reference_id, kind) violation means a concurrent
		// duplicate won the race; converge on its result.
		if isUniqueViolation(err) && referenceID != "" {
			tx.Rollback()
			return s.replayAfterConflict(ctx, customerID, kind, referenceID)
		}
		return 0, err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, time.Now(), walletID, version)
	if err != nil {
		return 0, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rowsAffected == 0 {
		return 0, fmt.Errorf("optimistic lock failed for wallet %d", walletID)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return newBalance, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *WalletService) findReplay(ctx context.Context, q queryRower, customerID int, kind models.TransactionKind, referenceID string) (int64, bool, error) {
	var balanceAfter int64
	err := q.QueryRowContext(ctx, `
		SELECT wt.balance_after
		FROM wallet_transactions wt
		JOIN wallets w ON wt.wallet_id = w.id
		WHERE w.customer_id = $1 AND wt.reference_id = $2 AND wt.kind = $3`,
		customerID, referenceID, string(kind)).Scan(&balanceAfter)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return balanceAfter, true, nil
}

func (s *WalletService) replayAfterConflict(ctx context.Context, customerID int, kind models.TransactionKind, referenceID string) (int64, error) {
	balance, found, err := s.findReplay(ctx, s.db, customerID, kind, referenceID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("reference %s conflicted but no transaction found", referenceID)
	}
	return balance, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// Balance returns the current balance and currency of a customer's wallet.
func (s *WalletService) Balance(ctx context.Context, customerID int) (int64, string, error) {
	var balance int64
	var currency string
	err := s.db.QueryRowContext(ctx, `
		SELECT balance, currency FROM wallets
		WHERE customer_id = $1`, customerID).Scan(&balance, &currency)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, "", ErrWalletNotFound
		}
		return 0, "", err
	}
	return balance, currency, nil
}

// Transactions returns a bounded, newest-first page of the transaction
// log. beforeID of 0 means start from the newest row.
func (s *WalletService) Transactions(ctx context.Context, customerID int, limit, beforeID int) ([]models.WalletTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	before := beforeID
	if before <= 0 {
		before = 1<<31 - 1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT wt.id, wt.wallet_id, wt.amount, wt.kind, wt.description,
		       COALESCE(wt.reference_id, '') AS reference_id, wt.balance_after, wt.created_at
		FROM wallet_transactions wt
		JOIN wallets w ON wt.wallet_id = w.id
		WHERE w.customer_id = $1 AND wt.id < $2
		ORDER BY wt.id DESC
		LIMIT $3`, customerID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.WalletTransaction{}
	for rows.Next() {
		var t models.WalletTransaction
		var kind string
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Amount, &kind, &t.Description,
			&t.ReferenceID, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Kind = models.TransactionKind(kind)
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// CreateWallet provisions the wallet row for a new customer. Used by
// registration inside its own transaction.
func CreateWalletTx(tx *sql.Tx, customerID int, currency string) error {
	_, err := tx.Exec(`
		INSERT INTO wallets (customer_id, balance, currency, version, updated_at)
		VALUES ($1, 0, $2, 1, NOW())`, customerID, currency)
	return err
}
