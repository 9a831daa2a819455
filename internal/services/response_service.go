package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/replywave/backend/internal/models"
)

// GenerationInput carries everything the response generator may use.
type GenerationInput struct {
	Settings     models.CustomerSettings
	BusinessName string
	Kind         models.ResponseKind
	CallerNumber string
	Transcript   string
}

// ResponseGenerator produces the reply text for a missed call. It is
// treated as an opaque function that may fail; the pipeline does not
// care how the text is produced.
type ResponseGenerator interface {
	Generate(ctx context.Context, input GenerationInput) (string, error)
}

// Classify decides which reply a missed call gets: voicemail when the
// provider returned a recording, after-hours when the call fell outside
// the customer's business hours, standard otherwise. This runs before
// the pipeline, not as a pipeline step.
func Classify(settings models.CustomerSettings, hasRecording bool, at time.Time) models.ResponseKind {
	if hasRecording {
		return models.ResponseVoicemail
	}
	if !withinBusinessHours(settings, at) {
		return models.ResponseAfterHours
	}
	return models.ResponseStandard
}

func withinBusinessHours(settings models.CustomerSettings, at time.Time) bool {
	// Equal open and close hours means hours were never configured;
	// treat the business as always open.
	if settings.OpenHour == settings.CloseHour {
		return true
	}

	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		loc = time.UTC
	}
	hour := at.In(loc).Hour()

	if settings.OpenHour < settings.CloseHour {
		return hour >= settings.OpenHour && hour < settings.CloseHour
	}
	// Overnight hours, e.g. 18-02.
	return hour >= settings.OpenHour || hour < settings.CloseHour
}

// TemplateResponder renders the customer's configured template for the
// event kind, with built-in fallbacks.
type TemplateResponder struct{}

func NewTemplateResponder() *TemplateResponder {
	return &TemplateResponder{}
}

const (
	defaultStandardTemplate   = "Hi, this is {business}. Sorry we missed your call! Reply here and we'll text you right back."
	defaultVoicemailTemplate  = "Hi, this is {business}. Thanks for your voicemail, we'll get back to you shortly. You can also reply here by text."
	defaultAfterHoursTemplate = "Hi, this is {business}. We're closed right now, but we saw your call and will reply first thing when we open."
)

func (t *TemplateResponder) Generate(ctx context.Context, input GenerationInput) (string, error) {
	var template string
	switch input.Kind {
	case models.ResponseVoicemail:
		template = input.Settings.VoicemailTemplate
		if template == "" {
			template = defaultVoicemailTemplate
		}
	case models.ResponseAfterHours:
		template = input.Settings.AfterHoursTemplate
		if template == "" {
			template = defaultAfterHoursTemplate
		}
	case models.ResponseStandard:
		template = input.Settings.StandardTemplate
		if template == "" {
			template = defaultStandardTemplate
		}
	default:
		return "", errors.New("unknown response kind")
	}

	business := input.BusinessName
	if business == "" {
		business = "our team"
	}
	return strings.ReplaceAll(template, "{business}", business), nil
}
