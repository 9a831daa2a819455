package handlers

import (
	"encoding/xml"
	"log"
	"net/http"

	"github.com/replywave/backend/internal/config"
	"github.com/replywave/backend/internal/services"
)

// TwiML is the provider's response markup: play a greeting, record the
// caller, and point the recording callback at the event webhook.
type TwiML struct {
	XMLName xml.Name     `xml:"Response"`
	Say     *TwiMLSay    `xml:"Say,omitempty"`
	Record  *TwiMLRecord `xml:"Record,omitempty"`
	Hangup  *struct{}    `xml:"Hangup,omitempty"`
}

type TwiMLSay struct {
	Voice string `xml:"voice,attr,omitempty"`
	Text  string `xml:",chardata"`
}

type TwiMLRecord struct {
	Action    string `xml:"action,attr"`
	Method    string `xml:"method,attr"`
	MaxLength int    `xml:"maxLength,attr"`
	PlayBeep  bool   `xml:"playBeep,attr"`
}

// VoiceHandler answers the provider's voice webhook for an unanswered
// call. No charge happens here; the billable event arrives on the event
// webhook once the call completes.
type VoiceHandler struct {
	settings *services.SettingsService
	cfg      *config.TelephonyConfig
}

func NewVoiceHandler(settings *services.SettingsService, cfg *config.TelephonyConfig) *VoiceHandler {
	return &VoiceHandler{settings: settings, cfg: cfg}
}

const defaultGreeting = "Sorry we missed your call. Please leave a message after the beep and we will text you right back."

// HandleVoice responds with call-flow markup for an inbound call
// @Summary Voice webhook
// @Description Answer an inbound call with a greeting and recording prompt
// @Tags webhooks
// @Accept x-www-form-urlencoded
// @Produce xml
// @Success 200 {string} string "TwiML document"
// @Router /webhooks/voice [post]
func (h *VoiceHandler) HandleVoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	to := r.PostFormValue("To")
	from := r.PostFormValue("From")
	log.Printf("[VOICE] Inbound call from %s to %s", from, to)

	greeting := defaultGreeting
	if customer, err := h.settings.CustomerByNumber(r.Context(), to); err == nil {
		if settings, err := h.settings.Settings(r.Context(), customer.ID); err == nil && settings.Greeting != "" {
			greeting = settings.Greeting
		}
	}

	doc := TwiML{
		Say: &TwiMLSay{Voice: "alice", Text: greeting},
		Record: &TwiMLRecord{
			Action:    h.cfg.CallbackBaseURL + "/webhooks/call-event",
			Method:    "POST",
			MaxLength: 120,
			PlayBeep:  true,
		},
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(xml.Header))
	if err := xml.NewEncoder(w).Encode(doc); err != nil {
		log.Printf("[VOICE] Failed to encode response: %v", err)
	}
}
