package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/replywave/backend/internal/config"
	"github.com/stretchr/testify/assert"
)

type fakeSender struct {
	calls  int
	lastTo string
	err    error
}

func (f *fakeSender) Send(ctx context.Context, from, to, body string) (*SMSResult, error) {
	f.calls++
	f.lastTo = to
	if f.err != nil {
		return nil, f.err
	}
	return &SMSResult{MessageSid: "SM123", Status: "queued"}, nil
}

type fakeGenerator struct {
	lastInput GenerationInput
}

func (f *fakeGenerator) Generate(ctx context.Context, input GenerationInput) (string, error) {
	f.lastInput = input
	return "We missed your call!", nil
}

type fakeTranscriber struct {
	transcript string
	err        error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, recordingURL string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.transcript, nil
}

func newTestPipeline(db *sql.DB, sender SMSSender, generator ResponseGenerator, transcriber Transcriber) *PipelineService {
	cfg := &config.PipelineConfig{
		DefaultPriceCents:      99,
		DefaultLowBalanceCents: 500,
		AlertCooldown:          24 * time.Hour,
	}
	wallet := NewWalletService(db)
	settings := NewSettingsService(db, cfg)
	alerts := NewAlertService(db, &recordingNotifier{}, cfg.AlertCooldown)
	return NewPipelineService(db, wallet, sender, generator, transcriber, alerts, settings)
}

func expectCustomerLookup(mock sqlmock.Sqlmock, number string) {
	mock.ExpectQuery(`SELECT id, email, business_name, phone_number, created_at`).
		WithArgs(number).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "business_name", "phone_number", "created_at"}).
			AddRow(10, "owner@example.com", "Acme Plumbing", number, time.Now()))
}

func expectNoCallLog(mock sqlmock.Sqlmock, callSid string) {
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM call_logs`).
		WithArgs(callSid).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
}

func expectDefaultSettings(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT greeting, standard_template`).
		WithArgs(10).
		WillReturnError(sql.ErrNoRows)
}

func expectDebit(mock sqlmock.Sqlmock, callSid string, balanceBefore int64) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT wt.balance_after`).
		WithArgs(10, callSid, "DEBIT").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT id, balance, version FROM wallets`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "version"}).AddRow(1, balanceBefore, 3))
	mock.ExpectExec(`INSERT INTO wallet_transactions`).
		WithArgs(1, int64(-99), "DEBIT", sqlmock.AnyArg(), callSid, balanceBefore-99, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs(balanceBefore-99, sqlmock.AnyArg(), 1, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestHandleMissedCall(t *testing.T) {
	ctx := context.Background()

	t.Run("successful run sends, charges and records once", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		sender := &fakeSender{}
		generator := &fakeGenerator{}
		pipeline := newTestPipeline(db, sender, generator, nil)

		expectCustomerLookup(mock, "+15552223333")
		expectNoCallLog(mock, "CA123")
		expectDefaultSettings(mock)
		expectDebit(mock, "CA123", 5000)
		mock.ExpectQuery(`INSERT INTO call_logs`).
			WithArgs(10, "CA123", "+15550001111", "standard", "We missed your call!",
				"SM123", "queued", int64(99), "", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

		err = pipeline.HandleMissedCall(ctx, MissedCallJob{
			CallSid:    "CA123",
			From:       "+15550001111",
			To:         "+15552223333",
			ReceivedAt: time.Now(),
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, sender.calls)
		assert.Equal(t, "+15550001111", sender.lastTo)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown number is dropped without a send", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		sender := &fakeSender{}
		pipeline := newTestPipeline(db, sender, &fakeGenerator{}, nil)

		mock.ExpectQuery(`SELECT id, email, business_name, phone_number, created_at`).
			WithArgs("+15559998888").
			WillReturnError(sql.ErrNoRows)

		err = pipeline.HandleMissedCall(ctx, MissedCallJob{
			CallSid: "CA124", From: "+15550001111", To: "+15559998888", ReceivedAt: time.Now(),
		})
		assert.NoError(t, err)
		assert.Equal(t, 0, sender.calls)
	})

	t.Run("duplicate delivery is skipped without a send", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		sender := &fakeSender{}
		pipeline := newTestPipeline(db, sender, &fakeGenerator{}, nil)

		expectCustomerLookup(mock, "+15552223333")
		mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM call_logs`).
			WithArgs("CA123").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err = pipeline.HandleMissedCall(ctx, MissedCallJob{
			CallSid: "CA123", From: "+15550001111", To: "+15552223333", ReceivedAt: time.Now(),
		})
		assert.NoError(t, err)
		assert.Equal(t, 0, sender.calls)
	})

	t.Run("insufficient funds yields a free reply, no record, no error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		sender := &fakeSender{}
		pipeline := newTestPipeline(db, sender, &fakeGenerator{}, nil)

		expectCustomerLookup(mock, "+15552223333")
		expectNoCallLog(mock, "CA125")
		expectDefaultSettings(mock)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT wt.balance_after`).
			WithArgs(10, "CA125", "DEBIT").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`SELECT id, balance, version FROM wallets`).
			WithArgs(10).
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "version"}).AddRow(1, 50, 3))
		mock.ExpectRollback()

		err = pipeline.HandleMissedCall(ctx, MissedCallJob{
			CallSid: "CA125", From: "+15550001111", To: "+15552223333", ReceivedAt: time.Now(),
		})
		assert.NoError(t, err)
		// The reply went out before the charge was attempted.
		assert.Equal(t, 1, sender.calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("record failure refunds the charge", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		sender := &fakeSender{}
		pipeline := newTestPipeline(db, sender, &fakeGenerator{}, nil)

		expectCustomerLookup(mock, "+15552223333")
		expectNoCallLog(mock, "CA126")
		expectDefaultSettings(mock)
		expectDebit(mock, "CA126", 5000)
		mock.ExpectQuery(`INSERT INTO call_logs`).
			WillReturnError(errors.New("disk full"))

		// Compensation: credit back under the refund reference.
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT wt.balance_after`).
			WithArgs(10, "refund:CA126", "CREDIT").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`SELECT id, balance, version FROM wallets`).
			WithArgs(10).
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "version"}).AddRow(1, 4901, 4))
		mock.ExpectExec(`INSERT INTO wallet_transactions`).
			WithArgs(1, int64(99), "CREDIT", sqlmock.AnyArg(), "refund:CA126", int64(5000), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectExec(`UPDATE wallets`).
			WithArgs(int64(5000), sqlmock.AnyArg(), 1, 4).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = pipeline.HandleMissedCall(ctx, MissedCallJob{
			CallSid: "CA126", From: "+15550001111", To: "+15552223333", ReceivedAt: time.Now(),
		})
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("send failure aborts before any charge", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		sender := &fakeSender{err: errors.New("provider timeout")}
		pipeline := newTestPipeline(db, sender, &fakeGenerator{}, nil)

		expectCustomerLookup(mock, "+15552223333")
		expectNoCallLog(mock, "CA127")
		expectDefaultSettings(mock)

		err = pipeline.HandleMissedCall(ctx, MissedCallJob{
			CallSid: "CA127", From: "+15550001111", To: "+15552223333", ReceivedAt: time.Now(),
		})
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("recording classifies the call as voicemail with transcript", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		sender := &fakeSender{}
		generator := &fakeGenerator{}
		transcriber := &fakeTranscriber{transcript: "please call me back about the quote"}
		pipeline := newTestPipeline(db, sender, generator, transcriber)

		expectCustomerLookup(mock, "+15552223333")
		expectNoCallLog(mock, "CA128")
		expectDefaultSettings(mock)
		expectDebit(mock, "CA128", 5000)
		mock.ExpectQuery(`INSERT INTO call_logs`).
			WithArgs(10, "CA128", "+15550001111", "voicemail", "We missed your call!",
				"SM123", "queued", int64(99), "please call me back about the quote", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(43))

		err = pipeline.HandleMissedCall(ctx, MissedCallJob{
			CallSid:      "CA128",
			From:         "+15550001111",
			To:           "+15552223333",
			RecordingURL: "https://api.twilio.com/recordings/RE1",
			ReceivedAt:   time.Now(),
		})
		assert.NoError(t, err)
		assert.Equal(t, "please call me back about the quote", generator.lastInput.Transcript)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("transcription failure is tolerated", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		sender := &fakeSender{}
		transcriber := &fakeTranscriber{err: errors.New("speech api unavailable")}
		pipeline := newTestPipeline(db, sender, &fakeGenerator{}, transcriber)

		expectCustomerLookup(mock, "+15552223333")
		expectNoCallLog(mock, "CA129")
		expectDefaultSettings(mock)
		expectDebit(mock, "CA129", 5000)
		mock.ExpectQuery(`INSERT INTO call_logs`).
			WithArgs(10, "CA129", "+15550001111", "voicemail", "We missed your call!",
				"SM123", "queued", int64(99), "", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(44))

		err = pipeline.HandleMissedCall(ctx, MissedCallJob{
			CallSid:      "CA129",
			From:         "+15550001111",
			To:           "+15552223333",
			RecordingURL: "https://api.twilio.com/recordings/RE2",
			ReceivedAt:   time.Now(),
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, sender.calls)
	})
}

func TestHandleMissedCallLowBalanceAlert(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	sender := &fakeSender{}
	pipeline := newTestPipeline(db, sender, &fakeGenerator{}, nil)

	expectCustomerLookup(mock, "+15552223333")
	expectNoCallLog(mock, "CA130")
	expectDefaultSettings(mock)
	// Balance drops from 550 to 451, below the default 500 threshold.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT wt.balance_after`).
		WithArgs(10, "CA130", "DEBIT").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT id, balance, version FROM wallets`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "version"}).AddRow(1, 550, 3))
	mock.ExpectExec(`INSERT INTO wallet_transactions`).
		WithArgs(1, int64(-99), "DEBIT", sqlmock.AnyArg(), "CA130", int64(451), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs(int64(451), sqlmock.AnyArg(), 1, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`INSERT INTO call_logs`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(45))
	mock.ExpectQuery(`SELECT last_alerted_at FROM low_balance_alerts`).
		WithArgs(10, int64(500)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO low_balance_alerts`).
		WithArgs(10, int64(500), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = pipeline.HandleMissedCall(ctx, MissedCallJob{
		CallSid: "CA130", From: "+15550001111", To: "+15552223333", ReceivedAt: time.Now(),
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
