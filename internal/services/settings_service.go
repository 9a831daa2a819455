package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/replywave/backend/internal/config"
	"github.com/replywave/backend/internal/models"
)

// ErrCustomerNotFound is returned when no customer owns the number a
// webhook was delivered for.
var ErrCustomerNotFound = errors.New("customer not found")

// SettingsService resolves customers by their provisioned number and
// loads the per-customer pipeline settings, falling back to configured
// defaults when a customer never saved any.
type SettingsService struct {
	db  *sql.DB
	cfg *config.PipelineConfig
}

func NewSettingsService(db *sql.DB, cfg *config.PipelineConfig) *SettingsService {
	return &SettingsService{db: db, cfg: cfg}
}

// CustomerByNumber finds the customer that owns the called number.
func (s *SettingsService) CustomerByNumber(ctx context.Context, phoneNumber string) (*models.Customer, error) {
	var c models.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, business_name, phone_number, created_at
		FROM customers
		WHERE phone_number = $1`, phoneNumber).
		Scan(&c.ID, &c.Email, &c.BusinessName, &c.PhoneNumber, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Settings loads a customer's pipeline settings, with defaults for any
// customer that has not customized them yet.
func (s *SettingsService) Settings(ctx context.Context, customerID int) (models.CustomerSettings, error) {
	settings := models.CustomerSettings{
		CustomerID:         customerID,
		PricePerEventCents: s.cfg.DefaultPriceCents,
		LowBalanceCents:    s.cfg.DefaultLowBalanceCents,
		Timezone:           "UTC",
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT greeting, standard_template, voicemail_template, after_hours_template,
		       timezone, open_hour, close_hour, price_per_event_cents, low_balance_cents, alert_email
		FROM customer_settings
		WHERE customer_id = $1`, customerID).
		Scan(&settings.Greeting, &settings.StandardTemplate, &settings.VoicemailTemplate,
			&settings.AfterHoursTemplate, &settings.Timezone, &settings.OpenHour,
			&settings.CloseHour, &settings.PricePerEventCents, &settings.LowBalanceCents,
			&settings.AlertEmail)
	if err == sql.ErrNoRows {
		return settings, nil
	}
	if err != nil {
		return settings, err
	}

	if settings.PricePerEventCents <= 0 {
		settings.PricePerEventCents = s.cfg.DefaultPriceCents
	}
	return settings, nil
}

// UpdateSettings upserts a customer's pipeline settings.
func (s *SettingsService) UpdateSettings(ctx context.Context, settings models.CustomerSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customer_settings (customer_id, greeting, standard_template, voicemail_template,
		                               after_hours_template, timezone, open_hour, close_hour,
		                               price_per_event_cents, low_balance_cents, alert_email, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (customer_id)
		DO UPDATE SET greeting = EXCLUDED.greeting,
		              standard_template = EXCLUDED.standard_template,
		              voicemail_template = EXCLUDED.voicemail_template,
		              after_hours_template = EXCLUDED.after_hours_template,
		              timezone = EXCLUDED.timezone,
		              open_hour = EXCLUDED.open_hour,
		              close_hour = EXCLUDED.close_hour,
		              price_per_event_cents = EXCLUDED.price_per_event_cents,
		              low_balance_cents = EXCLUDED.low_balance_cents,
		              alert_email = EXCLUDED.alert_email,
		              updated_at = NOW()`,
		settings.CustomerID, settings.Greeting, settings.StandardTemplate,
		settings.VoicemailTemplate, settings.AfterHoursTemplate, settings.Timezone,
		settings.OpenHour, settings.CloseHour, settings.PricePerEventCents,
		settings.LowBalanceCents, settings.AlertEmail)
	return err
}
