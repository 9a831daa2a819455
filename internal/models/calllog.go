package models

import (
	"time"
)

// ResponseKind classifies a missed call and selects the reply template.
type ResponseKind string

const (
	ResponseStandard   ResponseKind = "standard"
	ResponseVoicemail  ResponseKind = "voicemail"
	ResponseAfterHours ResponseKind = "after_hours"
)

// CallLog is the auditable record of one processed missed call.
// CallSid is the provider's identifier for the physical call and is
// unique; a redelivered webhook must resolve to the same row.
type CallLog struct {
	ID             int          `json:"id" db:"id"`
	CustomerID     int          `json:"customer_id" db:"customer_id"`
	CallSid        string       `json:"call_sid" db:"call_sid"`
	CallerNumber   string       `json:"caller_number" db:"caller_number"`
	ResponseKind   ResponseKind `json:"response_kind" db:"response_kind"`
	ResponseText   string       `json:"response_text" db:"response_text"`
	MessageSid     string       `json:"message_sid" db:"message_sid"`
	MessageStatus  string       `json:"message_status" db:"message_status"`
	CostCents      int64        `json:"cost_cents" db:"cost_cents"`
	Transcript     string       `json:"transcript,omitempty" db:"transcript"`
	ReplyBody      string       `json:"reply_body,omitempty" db:"reply_body"`
	ReplyReceived  *time.Time   `json:"reply_received,omitempty" db:"reply_received"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}
