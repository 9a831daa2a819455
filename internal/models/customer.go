package models

import (
	"time"
)

// Customer is a business account that owns one wallet and one
// provisioned phone number.
type Customer struct {
	ID           int       `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	BusinessName string    `json:"business_name" db:"business_name"`
	PhoneNumber  string    `json:"phone_number" db:"phone_number"` // provisioned inbound number
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// CustomerSettings carries the per-customer knobs the pipeline reads:
// reply templates, business hours, pricing and alerting thresholds.
type CustomerSettings struct {
	CustomerID          int    `json:"customer_id" db:"customer_id"`
	Greeting            string `json:"greeting" db:"greeting"`
	StandardTemplate    string `json:"standard_template" db:"standard_template"`
	VoicemailTemplate   string `json:"voicemail_template" db:"voicemail_template"`
	AfterHoursTemplate  string `json:"after_hours_template" db:"after_hours_template"`
	Timezone            string `json:"timezone" db:"timezone"`
	OpenHour            int    `json:"open_hour" db:"open_hour"`   // 0-23, local
	CloseHour           int    `json:"close_hour" db:"close_hour"` // 0-23, local
	PricePerEventCents  int64  `json:"price_per_event_cents" db:"price_per_event_cents"`
	LowBalanceCents     int64  `json:"low_balance_cents" db:"low_balance_cents"`
	AlertEmail          string `json:"alert_email" db:"alert_email"`
}
