package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/replywave/backend/internal/models"
	"github.com/replywave/backend/internal/services"
)

// SettingsHandler exposes the per-customer pipeline settings.
type SettingsHandler struct {
	settings  *services.SettingsService
	validator *services.ValidationHelper
}

func NewSettingsHandler(settings *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{
		settings:  settings,
		validator: services.NewValidationHelper(),
	}
}

type settingsRequest struct {
	Greeting           string `json:"greeting" validate:"max=500"`
	StandardTemplate   string `json:"standardTemplate" validate:"max=500"`
	VoicemailTemplate  string `json:"voicemailTemplate" validate:"max=500"`
	AfterHoursTemplate string `json:"afterHoursTemplate" validate:"max=500"`
	Timezone           string `json:"timezone" validate:"max=64"`
	OpenHour           int    `json:"openHour" validate:"gte=0,lte=23"`
	CloseHour          int    `json:"closeHour" validate:"gte=0,lte=23"`
	LowBalanceCents    int64  `json:"lowBalanceCents" validate:"gte=0"`
	AlertEmail         string `json:"alertEmail" validate:"omitempty,email"`
}

// GetSettings returns the customer's pipeline settings
// @Summary Get settings
// @Description Pipeline settings for the authenticated customer, with defaults applied
// @Tags settings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.CustomerSettings
// @Failure 401 {object} services.ErrorResponse
// @Router /settings [get]
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	customerID, ok := customerIDFromContext(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	settings, err := h.settings.Settings(r.Context(), customerID)
	if err != nil {
		log.Printf("[SETTINGS] Failed to load settings for customer %d: %v", customerID, err)
		services.SendErrorResponse(w, "Failed to load settings", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}

// UpdateSettings saves the customer's pipeline settings
// @Summary Update settings
// @Description Save greeting, reply templates, business hours and alert threshold
// @Tags settings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body settingsRequest true "Settings"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /settings [put]
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	customerID, ok := customerIDFromContext(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req settingsRequest
	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// The per-reply price is operator-set; customers cannot discount
	// themselves, so the request never carries it.
	current, err := h.settings.Settings(r.Context(), customerID)
	if err != nil {
		log.Printf("[SETTINGS] Failed to load settings for customer %d: %v", customerID, err)
		services.SendErrorResponse(w, "Failed to save settings", http.StatusInternalServerError, nil)
		return
	}

	updated := models.CustomerSettings{
		CustomerID:         customerID,
		Greeting:           req.Greeting,
		StandardTemplate:   req.StandardTemplate,
		VoicemailTemplate:  req.VoicemailTemplate,
		AfterHoursTemplate: req.AfterHoursTemplate,
		Timezone:           req.Timezone,
		OpenHour:           req.OpenHour,
		CloseHour:          req.CloseHour,
		PricePerEventCents: current.PricePerEventCents,
		LowBalanceCents:    req.LowBalanceCents,
		AlertEmail:         req.AlertEmail,
	}
	if updated.Timezone == "" {
		updated.Timezone = "UTC"
	}

	if err := h.settings.UpdateSettings(r.Context(), updated); err != nil {
		log.Printf("[SETTINGS] Failed to save settings for customer %d: %v", customerID, err)
		services.SendErrorResponse(w, "Failed to save settings", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}
