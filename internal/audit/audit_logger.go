package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	EventType  string    `json:"event_type"`
	CallSid    string    `json:"call_sid"`
	CustomerID int       `json:"customer_id"`
	Amount     int64     `json:"amount"`
	Status     string    `json:"status"`
	Details    any       `json:"details"`
}

// Logger emits structured audit lines for every money movement and for
// the failures that need operator follow-up.
type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogCharge(callSid string, customerID int, amount, balanceAfter int64) {
	a.log(Event{
		Timestamp:  time.Now(),
		EventType:  "CHARGE",
		CallSid:    callSid,
		CustomerID: customerID,
		Amount:     amount,
		Status:     "SUCCESS",
		Details:    map[string]int64{"balance_after": balanceAfter},
	})
}

func (a *Logger) LogRefund(callSid string, customerID int, amount int64) {
	a.log(Event{
		Timestamp:  time.Now(),
		EventType:  "REFUND",
		CallSid:    callSid,
		CustomerID: customerID,
		Amount:     amount,
		Status:     "SUCCESS",
	})
}

func (a *Logger) LogError(callSid string, customerID int, err error) {
	a.log(Event{
		Timestamp:  time.Now(),
		EventType:  "ERROR",
		CallSid:    callSid,
		CustomerID: customerID,
		Status:     "FAILED",
		Details:    map[string]string{"error": err.Error()},
	})
}

// LogReconciliation marks money taken without a corresponding record:
// a refund that itself failed. These lines are the manual-reconciliation
// queue and are distinguished from ordinary errors.
func (a *Logger) LogReconciliation(callSid string, customerID int, amount int64, err error) {
	a.log(Event{
		Timestamp:  time.Now(),
		EventType:  "RECONCILE",
		CallSid:    callSid,
		CustomerID: customerID,
		Amount:     amount,
		Status:     "NEEDS_MANUAL_REVIEW",
		Details:    map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
