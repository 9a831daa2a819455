package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/go-resty/resty/v2"
	"github.com/replywave/backend/internal/config"
)

// SMSResult is the provider's receipt for a dispatched message.
type SMSResult struct {
	MessageSid string
	Status     string
}

// SMSSender dispatches a text through the external messaging channel.
// Sends are irreversible; a timeout counts as a failed send.
type SMSSender interface {
	Send(ctx context.Context, from, to, body string) (*SMSResult, error)
}

// TwilioSMSService sends messages through the provider's REST API.
type TwilioSMSService struct {
	client     *resty.Client
	accountSID string
}

func NewTwilioSMSService(cfg *config.TelephonyConfig) *TwilioSMSService {
	client := resty.New().
		SetBaseURL(cfg.APIBaseURL).
		SetTimeout(cfg.SendTimeout).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken)
	return &TwilioSMSService{
		client:     client,
		accountSID: cfg.AccountSID,
	}
}

type messageResponse struct {
	Sid          string `json:"sid"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

func (s *TwilioSMSService) Send(ctx context.Context, from, to, body string) (*SMSResult, error) {
	if body == "" {
		return nil, errors.New("message body is empty")
	}

	var result messageResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"From": from,
			"To":   to,
			"Body": body,
		}).
		SetResult(&result).
		Post(fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", s.accountSID))
	if err != nil {
		return nil, fmt.Errorf("sms send failed: %w", err)
	}
	if resp.IsError() {
		log.Printf("[SMS] Provider rejected message to %s: status %d", to, resp.StatusCode())
		return nil, fmt.Errorf("sms send failed with status %d", resp.StatusCode())
	}

	log.Printf("[SMS] Message %s dispatched to %s, status: %s", result.Sid, to, result.Status)
	return &SMSResult{MessageSid: result.Sid, Status: result.Status}, nil
}
