package services

import (
	"context"
	"database/sql"
	"log"
	"time"
)

// Notifier delivers a low-balance alert. The side effect lives outside
// this system; alerts are informational and never undone.
type Notifier interface {
	NotifyLowBalance(ctx context.Context, customerID int, email string, balanceCents, thresholdCents int64) error
}

// LogNotifier is the default notifier: an operational log line for the
// alerting sidecar to pick up.
type LogNotifier struct{}

func (LogNotifier) NotifyLowBalance(ctx context.Context, customerID int, email string, balanceCents, thresholdCents int64) error {
	log.Printf("[ALERT] Low balance for customer %d (%s): %d cents below threshold %d", customerID, email, balanceCents, thresholdCents)
	return nil
}

// AlertService raises a low-balance alert when a wallet drops below its
// threshold, at most once per cooldown window per (customer, threshold).
type AlertService struct {
	db       *sql.DB
	notifier Notifier
	cooldown time.Duration
}

func NewAlertService(db *sql.DB, notifier Notifier, cooldown time.Duration) *AlertService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &AlertService{db: db, notifier: notifier, cooldown: cooldown}
}

// CheckBalance raises an alert if balanceCents is below thresholdCents
// and the last alert for this pair is outside the cooldown window.
// Returns whether an alert fired. Notifier failures are logged, not
// propagated: the charge that triggered the check must not be undone
// because an email did not go out.
func (s *AlertService) CheckBalance(ctx context.Context, customerID int, email string, balanceCents, thresholdCents int64) bool {
	if thresholdCents <= 0 || balanceCents >= thresholdCents {
		return false
	}

	var lastAlertedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT last_alerted_at FROM low_balance_alerts
		WHERE customer_id = $1 AND threshold_cents = $2`,
		customerID, thresholdCents).Scan(&lastAlertedAt)
	if err != nil && err != sql.ErrNoRows {
		log.Printf("[ALERT] Failed to read alert state for customer %d: %v", customerID, err)
		return false
	}
	if err == nil && time.Since(lastAlertedAt) < s.cooldown {
		return false
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO low_balance_alerts (customer_id, threshold_cents, last_alerted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id, threshold_cents)
		DO UPDATE SET last_alerted_at = EXCLUDED.last_alerted_at`,
		customerID, thresholdCents, time.Now())
	if err != nil {
		log.Printf("[ALERT] Failed to record alert for customer %d: %v", customerID, err)
		return false
	}

	if err := s.notifier.NotifyLowBalance(ctx, customerID, email, balanceCents, thresholdCents); err != nil {
		log.Printf("[ALERT] Notifier failed for customer %d: %v", customerID, err)
	}
	return true
}
