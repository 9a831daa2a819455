package models

import (
	"time"
)

// LowBalanceAlert records the last time a (customer, threshold) alert
// fired, so repeated crossings inside the cooldown window stay quiet.
type LowBalanceAlert struct {
	CustomerID     int       `json:"customer_id" db:"customer_id"`
	ThresholdCents int64     `json:"threshold_cents" db:"threshold_cents"`
	LastAlertedAt  time.Time `json:"last_alerted_at" db:"last_alerted_at"`
}
