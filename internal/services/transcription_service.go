package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/go-resty/resty/v2"
)

// Transcriber turns a voicemail recording into text. Transcription is
// best-effort: the pipeline proceeds with an empty transcript when it
// fails.
type Transcriber interface {
	Transcribe(ctx context.Context, recordingURL string) (string, error)
}

// TranscriptionService fetches the provider's recording and runs it
// through Cloud Speech.
type TranscriptionService struct {
	client *speech.Client
	http   *resty.Client
}

func NewTranscriptionService() *TranscriptionService {
	ctx := context.Background()
	client, err := speech.NewClient(ctx)
	if err != nil {
		log.Printf("Warning: Failed to initialize speech client: %v", err)
		client = nil
	}
	return &TranscriptionService{
		client: client,
		http:   resty.New().SetTimeout(30 * time.Second),
	}
}

func (s *TranscriptionService) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *TranscriptionService) Transcribe(ctx context.Context, recordingURL string) (string, error) {
	if s.client == nil {
		return "", errors.New("speech client not available")
	}
	if recordingURL == "" {
		return "", errors.New("no recording URL")
	}

	resp, err := s.http.R().SetContext(ctx).Get(recordingURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch recording: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("recording fetch returned status %d", resp.StatusCode())
	}
	audioBytes := resp.Body()
	if len(audioBytes) == 0 {
		return "", errors.New("recording is empty")
	}

	// Provider recordings are 8kHz mono WAV.
	speechReq := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            8000,
			LanguageCode:               "en-US",
			EnableAutomaticPunctuation: true,
			Model:                      "phone_call",
			UseEnhanced:                true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{
				Content: audioBytes,
			},
		},
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := s.client.Recognize(timeoutCtx, speechReq)
	if err != nil {
		return "", fmt.Errorf("recognition failed: %w", err)
	}

	var transcript strings.Builder
	for _, r := range result.Results {
		if len(r.Alternatives) > 0 {
			transcript.WriteString(r.Alternatives[0].Transcript)
			transcript.WriteString(" ")
		}
	}

	final := strings.TrimSpace(transcript.String())
	if final == "" {
		return "", errors.New("no transcription results")
	}
	return final, nil
}
