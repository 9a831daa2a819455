package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestWalletService_Debit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewWalletService(db)
	ctx := context.Background()

	t.Run("successful debit", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT wt.balance_after").
			WithArgs(1, "CA123", "DEBIT").
			WillReturnError(sql.ErrNoRows)

		mock.ExpectQuery("SELECT id, balance, version FROM wallets").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "version"}).
				AddRow(10, 5000, 3))

		mock.ExpectExec("INSERT INTO wallet_transactions").
			WithArgs(10, int64(-99), "DEBIT", "missed call reply", "CA123", int64(4901), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("UPDATE wallets SET balance = \\$1, version = version \\+ 1, updated_at = \\$2 WHERE id = \\$3 AND version = \\$4").
			WithArgs(int64(4901), sqlmock.AnyArg(), 10, 3).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		balance, err := service.Debit(ctx, 1, 99, "missed call reply", "CA123")
		assert.NoError(t, err)
		assert.Equal(t, int64(4901), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("idempotent replay returns stored balance", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT wt.balance_after").
			WithArgs(1, "CA123", "DEBIT").
			WillReturnRows(sqlmock.NewRows([]string{"balance_after"}).AddRow(4901))

		mock.ExpectRollback()

		balance, err := service.Debit(ctx, 1, 99, "missed call reply", "CA123")
		assert.NoError(t, err)
		assert.Equal(t, int64(4901), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds leaves no transaction", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT wt.balance_after").
			WithArgs(2, "CA456", "DEBIT").
			WillReturnError(sql.ErrNoRows)

		mock.ExpectQuery("SELECT id, balance, version FROM wallets").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "version"}).
				AddRow(20, 50, 1))

		mock.ExpectRollback()

		_, err := service.Debit(ctx, 2, 99, "missed call reply", "CA456")
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wallet not found", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT id, balance, version FROM wallets").
			WithArgs(3).
			WillReturnError(sql.ErrNoRows)

		mock.ExpectRollback()

		_, err := service.Debit(ctx, 3, 99, "missed call reply", "")
		assert.ErrorIs(t, err, ErrWalletNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent duplicate converges on winner's result", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT wt.balance_after").
			WithArgs(1, "CA789", "DEBIT").
			WillReturnError(sql.ErrNoRows)

		mock.ExpectQuery("SELECT id, balance, version FROM wallets").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "version"}).
				AddRow(10, 5000, 4))

		mock.ExpectExec("INSERT INTO wallet_transactions").
			WillReturnError(&pq.Error{Code: "23505"})

		mock.ExpectRollback()

		// Loser re-reads the winner's row outside the transaction.
		mock.ExpectQuery("SELECT wt.balance_after").
			WithArgs(1, "CA789", "DEBIT").
			WillReturnRows(sqlmock.NewRows([]string{"balance_after"}).AddRow(4901))

		balance, err := service.Debit(ctx, 1, 99, "missed call reply", "CA789")
		assert.NoError(t, err)
		assert.Equal(t, int64(4901), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("optimistic lock failure", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT wt.balance_after").
			WithArgs(1, "CA999", "DEBIT").
			WillReturnError(sql.ErrNoRows)

		mock.ExpectQuery("SELECT id, balance, version FROM wallets").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "version"}).
				AddRow(10, 5000, 4))

		mock.ExpectExec("INSERT INTO wallet_transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("UPDATE wallets").
			WillReturnResult(sqlmock.NewResult(1, 0))

		mock.ExpectRollback()

		_, err := service.Debit(ctx, 1, 99, "missed call reply", "CA999")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "optimistic lock failed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		_, err := service.Debit(ctx, 1, 0, "noop", "")
		assert.Error(t, err)
	})
}

func TestWalletService_Credit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewWalletService(db)
	ctx := context.Background()

	t.Run("successful credit", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT wt.balance_after").
			WithArgs(1, "refund:CA123", "CREDIT").
			WillReturnError(sql.ErrNoRows)

		mock.ExpectQuery("SELECT id, balance, version FROM wallets").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "version"}).
				AddRow(10, 4901, 4))

		mock.ExpectExec("INSERT INTO wallet_transactions").
			WithArgs(10, int64(99), "CREDIT", "refund", "refund:CA123", int64(5000), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(2, 1))

		mock.ExpectExec("UPDATE wallets").
			WithArgs(int64(5000), sqlmock.AnyArg(), 10, 4).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		balance, err := service.Credit(ctx, 1, 99, "refund", "refund:CA123")
		assert.NoError(t, err)
		assert.Equal(t, int64(5000), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replayed credit does not double-apply", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT wt.balance_after").
			WithArgs(1, "refund:CA123", "CREDIT").
			WillReturnRows(sqlmock.NewRows([]string{"balance_after"}).AddRow(5000))

		mock.ExpectRollback()

		balance, err := service.Credit(ctx, 1, 99, "refund", "refund:CA123")
		assert.NoError(t, err)
		assert.Equal(t, int64(5000), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWalletService_Transactions(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewWalletService(db)

	now := time.Now()
	mock.ExpectQuery("SELECT wt.id, wt.wallet_id, wt.amount, wt.kind").
		WithArgs(1, 1<<31-1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_id", "amount", "kind", "description", "reference_id", "balance_after", "created_at"}).
			AddRow(8, 10, -99, "DEBIT", "missed call reply", "CA2", 4802, now).
			AddRow(7, 10, -99, "DEBIT", "missed call reply", "CA1", 4901, now))

	page, err := service.Transactions(context.Background(), 1, 2, 0)
	assert.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Equal(t, 8, page[0].ID)
	assert.Equal(t, int64(-99), page[0].Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
