package handlers

import (
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/replywave/backend/internal/config"
	"github.com/replywave/backend/internal/services"
)

const signatureHeader = "X-Twilio-Signature"

// EventWebhookHandler receives the provider's call-completion callback,
// authenticates it, acknowledges fast, and hands processing to the
// background dispatcher. The provider redelivers on non-2xx or slow
// responses, so the handler never waits on the pipeline.
type EventWebhookHandler struct {
	validator  *services.SignatureValidator
	pipeline   *services.PipelineService
	dispatcher *services.Dispatcher
	cfg        *config.TelephonyConfig
}

func NewEventWebhookHandler(validator *services.SignatureValidator, pipeline *services.PipelineService, dispatcher *services.Dispatcher, cfg *config.TelephonyConfig) *EventWebhookHandler {
	return &EventWebhookHandler{
		validator:  validator,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// HandleCallEvent processes a call-completion webhook delivery
// @Summary Call event webhook
// @Description Validate, acknowledge and enqueue a missed-call event
// @Tags webhooks
// @Accept x-www-form-urlencoded
// @Produce plain
// @Success 200 {string} string "OK"
// @Failure 400 {string} string "Missing fields"
// @Failure 403 {string} string "Bad signature"
// @Router /webhooks/call-event [post]
func (h *EventWebhookHandler) HandleCallEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	// The signature covers the exact raw body and the callback URL;
	// validate before touching any state.
	params, err := url.ParseQuery(string(body))
	if err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	callbackURL := h.cfg.CallbackBaseURL + r.URL.RequestURI()
	if !h.validator.Validate(callbackURL, params, r.Header.Get(signatureHeader)) {
		log.Printf("[WEBHOOK_SECURITY] Signature validation failed for %s from %s", r.URL.Path, r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	callSid := params.Get("CallSid")
	from := params.Get("From")
	to := params.Get("To")
	if callSid == "" || from == "" || to == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	job := services.MissedCallJob{
		CallSid:      callSid,
		From:         from,
		To:           to,
		RecordingURL: params.Get("RecordingUrl"),
		ReceivedAt:   time.Now(),
	}

	// Duplicate deliveries are routine with at-least-once webhooks;
	// they still get a 200 so the provider stops retrying.
	if duplicate, err := h.pipeline.CallLogExists(r.Context(), callSid); err == nil && duplicate {
		log.Printf("[WEBHOOK] Duplicate delivery for call %s, acknowledged without processing", callSid)
		h.ack(w)
		return
	}

	h.ack(w)
	h.dispatcher.Enqueue(job)
}

func (h *EventWebhookHandler) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
