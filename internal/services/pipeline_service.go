package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/replywave/backend/internal/audit"
	"github.com/replywave/backend/internal/models"
	"github.com/replywave/backend/internal/saga"
)

// CallContext is the transient saga state for one missed-call run. It
// lives only for the duration of the pipeline and is never persisted.
type CallContext struct {
	Customer     models.Customer
	Settings     models.CustomerSettings
	CallSid      string
	CallerNumber string
	RecordingURL string
	Kind         models.ResponseKind
	Transcript   string

	ResponseText  string
	MessageSid    string
	MessageStatus string
	AmountCents   int64
	BalanceAfter  int64
	CallLogID     int
}

// PipelineService runs the missed-call saga: generate a reply, send it,
// charge the wallet, record the event, check for low balance. Ordering
// is deliberate: the send happens before the charge, so an insufficient
// balance yields a free reply rather than a charge without a send.
type PipelineService struct {
	db          *sql.DB
	wallet      *WalletService
	sender      SMSSender
	generator   ResponseGenerator
	transcriber Transcriber
	alerts      *AlertService
	settings    *SettingsService
	audit       *audit.Logger
}

func NewPipelineService(db *sql.DB, wallet *WalletService, sender SMSSender, generator ResponseGenerator, transcriber Transcriber, alerts *AlertService, settings *SettingsService) *PipelineService {
	return &PipelineService{
		db:          db,
		wallet:      wallet,
		sender:      sender,
		generator:   generator,
		transcriber: transcriber,
		alerts:      alerts,
		settings:    settings,
		audit:       audit.NewLogger(),
	}
}

// HandleMissedCall is the dispatcher's entry point for one delivery.
func (p *PipelineService) HandleMissedCall(ctx context.Context, job MissedCallJob) error {
	customer, err := p.settings.CustomerByNumber(ctx, job.To)
	if err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			log.Printf("[PIPELINE] No customer owns number %s, dropping call %s", job.To, job.CallSid)
			return nil
		}
		return err
	}

	// Idempotency guard: an existing record means this is an ordinary
	// at-least-once redelivery.
	duplicate, err := p.callLogExists(ctx, job.CallSid)
	if err != nil {
		return err
	}
	if duplicate {
		log.Printf("[PIPELINE] Duplicate delivery for call %s, skipping", job.CallSid)
		return nil
	}

	settings, err := p.settings.Settings(ctx, customer.ID)
	if err != nil {
		return err
	}

	state := &CallContext{
		Customer:     *customer,
		Settings:     settings,
		CallSid:      job.CallSid,
		CallerNumber: job.From,
		RecordingURL: job.RecordingURL,
		Kind:         Classify(settings, job.RecordingURL != "", job.ReceivedAt),
		AmountCents:  settings.PricePerEventCents,
	}

	if state.Kind == models.ResponseVoicemail && p.transcriber != nil {
		transcript, err := p.transcriber.Transcribe(ctx, job.RecordingURL)
		if err != nil {
			log.Printf("[PIPELINE] Transcription failed for call %s, continuing without: %v", job.CallSid, err)
		} else {
			state.Transcript = transcript
		}
	}

	result := saga.Run(ctx, p.steps(), state)
	if !result.Success() {
		if errors.Is(result.Err, ErrInsufficientFunds) {
			// The reply already went out; the customer got it for free.
			// Logged as a billing exception, never retried.
			log.Printf("[BILLING] Insufficient funds for customer %d on call %s, reply sent uncharged", customer.ID, job.CallSid)
			return nil
		}
		p.audit.LogError(job.CallSid, customer.ID, result.Err)
		return result.Err
	}

	log.Printf("[PIPELINE] Call %s processed for customer %d: kind=%s, charged=%d, balance=%d",
		job.CallSid, customer.ID, state.Kind, state.AmountCents, state.BalanceAfter)
	return nil
}

func (p *PipelineService) steps() []saga.Step[CallContext] {
	return []saga.Step[CallContext]{
		p.generateResponseStep(),
		p.sendSMSStep(),
		p.debitWalletStep(),
		p.createCallLogStep(),
		p.lowBalanceCheckStep(),
	}
}

func (p *PipelineService) generateResponseStep() saga.Step[CallContext] {
	return saga.Func[CallContext]{
		StepName: "generate_response",
		ExecuteFn: func(ctx context.Context, state *CallContext) error {
			text, err := p.generator.Generate(ctx, GenerationInput{
				Settings:     state.Settings,
				BusinessName: state.Customer.BusinessName,
				Kind:         state.Kind,
				CallerNumber: state.CallerNumber,
				Transcript:   state.Transcript,
			})
			if err != nil {
				return err
			}
			state.ResponseText = text
			return nil
		},
		CompensateFn: saga.NoCompensation[CallContext],
	}
}

// sendSMSStep dispatches the reply. The send is irreversible: if a
// later step fails, the message stays delivered and only the charge is
// compensated. That risk window is accepted; the alternative (charge
// before send) risks charging for a reply that never goes out.
func (p *PipelineService) sendSMSStep() saga.Step[CallContext] {
	return saga.Func[CallContext]{
		StepName: "send_sms",
		ExecuteFn: func(ctx context.Context, state *CallContext) error {
			result, err := p.sender.Send(ctx, state.Customer.PhoneNumber, state.CallerNumber, state.ResponseText)
			if err != nil {
				return err
			}
			state.MessageSid = result.MessageSid
			state.MessageStatus = result.Status
			return nil
		},
		CompensateFn: saga.NoCompensation[CallContext],
	}
}

func (p *PipelineService) debitWalletStep() saga.Step[CallContext] {
	return saga.Func[CallContext]{
		StepName: "debit_wallet",
		ExecuteFn: func(ctx context.Context, state *CallContext) error {
			balance, err := p.wallet.Debit(ctx, state.Customer.ID, state.AmountCents,
				fmt.Sprintf("Missed call reply to %s", state.CallerNumber), state.CallSid)
			if err != nil {
				return err
			}
			state.BalanceAfter = balance
			p.audit.LogCharge(state.CallSid, state.Customer.ID, state.AmountCents, balance)
			return nil
		},
		CompensateFn: func(ctx context.Context, state *CallContext) {
			_, err := p.wallet.Credit(ctx, state.Customer.ID, state.AmountCents,
				fmt.Sprintf("Refund for call %s", state.CallSid), "refund:"+state.CallSid)
			if err != nil {
				// Money moved with no record and no refund; escalate for
				// manual reconciliation instead of losing it silently.
				log.Printf("[RECONCILE] Refund failed for call %s, customer %d, amount %d: %v",
					state.CallSid, state.Customer.ID, state.AmountCents, err)
				p.audit.LogReconciliation(state.CallSid, state.Customer.ID, state.AmountCents, err)
				return
			}
			p.audit.LogRefund(state.CallSid, state.Customer.ID, state.AmountCents)
		},
	}
}

func (p *PipelineService) createCallLogStep() saga.Step[CallContext] {
	return saga.Func[CallContext]{
		StepName: "create_call_log",
		ExecuteFn: func(ctx context.Context, state *CallContext) error {
			var id int
			err := p.db.QueryRowContext(ctx, `
				INSERT INTO call_logs (customer_id, call_sid, caller_number, response_kind,
				                       response_text, message_sid, message_status, cost_cents, transcript, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				RETURNING id`,
				state.Customer.ID, state.CallSid, state.CallerNumber, string(state.Kind),
				state.ResponseText, state.MessageSid, state.MessageStatus,
				state.AmountCents, state.Transcript, time.Now()).Scan(&id)
			if err != nil {
				if isUniqueViolation(err) {
					// A concurrent duplicate delivery won the race past
					// the pre-check; the unique constraint is the backstop.
					return fmt.Errorf("call %s already recorded: %w", state.CallSid, err)
				}
				return err
			}
			state.CallLogID = id
			return nil
		},
		CompensateFn: func(ctx context.Context, state *CallContext) {
			if state.CallLogID == 0 {
				return
			}
			if _, err := p.db.ExecContext(ctx, `DELETE FROM call_logs WHERE id = $1`, state.CallLogID); err != nil {
				log.Printf("[PIPELINE] Failed to delete call log %d during compensation: %v", state.CallLogID, err)
			}
		},
	}
}

// lowBalanceCheckStep never fails the saga: alerting is informational
// and must not unwind a completed charge.
func (p *PipelineService) lowBalanceCheckStep() saga.Step[CallContext] {
	return saga.Func[CallContext]{
		StepName: "low_balance_check",
		ExecuteFn: func(ctx context.Context, state *CallContext) error {
			email := state.Settings.AlertEmail
			if email == "" {
				email = state.Customer.Email
			}
			p.alerts.CheckBalance(ctx, state.Customer.ID, email, state.BalanceAfter, state.Settings.LowBalanceCents)
			return nil
		},
		CompensateFn: saga.NoCompensation[CallContext],
	}
}

// CallLogExists is the idempotency pre-check used by the webhook
// handler and the pipeline.
func (p *PipelineService) CallLogExists(ctx context.Context, callSid string) (bool, error) {
	return p.callLogExists(ctx, callSid)
}

func (p *PipelineService) callLogExists(ctx context.Context, callSid string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM call_logs WHERE call_sid = $1)`, callSid).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
